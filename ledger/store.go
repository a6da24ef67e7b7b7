/*
store.go - In-memory account store

PURPOSE:
  Owns the set of accounts for the lifetime of the process. Accounts are
  keyed by id, kept in insertion order, and indexed by holder name for the
  creation-time duplicate check.

INVARIANTS:
  - Uniqueness of id and holder name is checked by the caller before
    Create; the store does not re-validate.
  - Accounts created with an empty holder name (transfer destinations)
    are not indexed by name.
  - FindByID is an exact match; callers normalize ids.

CONCURRENCY:
  None. The engine is driven by a single session, one operation at a time.
  Snapshot() hands out deep copies so a background writer never shares
  memory with the engine.

SEE ALSO:
  - engine.go: the only caller that mutates
  - persist.go: Snapshot
*/
package ledger

import (
	"fmt"
	"iter"
	"math/rand/v2"
	"regexp"
	"slices"
)

const (
	idPrefix    = "ACC-"
	idSuffixMin = 1000
	idSpace     = 9000 // suffixes 1000..9999
)

var generatedIDPattern = regexp.MustCompile(`^ACC-[1-9][0-9]{3}$`)

// Store is the in-memory ledger.
type Store struct {
	accounts map[string]*Account
	order    []string
	holders  map[string]string // holder name -> account id
	intN     func(n int) int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRand makes id generation draw from r instead of the global source.
func WithRand(r *rand.Rand) StoreOption {
	return func(s *Store) { s.intN = r.IntN }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		accounts: make(map[string]*Account),
		holders:  make(map[string]string),
		intN:     rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts an account. Re-creating an existing id replaces it in place.
func (s *Store) Create(a *Account) {
	if old, ok := s.accounts[a.ID]; ok {
		s.unindex(old)
	} else {
		s.order = append(s.order, a.ID)
	}
	s.accounts[a.ID] = a
	if a.HolderName != "" {
		s.holders[a.HolderName] = a.ID
	}
}

// FindByID returns the account with exactly this id.
func (s *Store) FindByID(id string) (*Account, bool) {
	a, ok := s.accounts[id]
	return a, ok
}

// All yields accounts in insertion order. The sequence reads live state, so
// ranging over it again reflects later mutations.
func (s *Store) All() iter.Seq[*Account] {
	return func(yield func(*Account) bool) {
		for _, id := range s.order {
			if !yield(s.accounts[id]) {
				return
			}
		}
	}
}

// Delete removes an account and its history. It reports false if absent.
func (s *Store) Delete(id string) bool {
	a, ok := s.accounts[id]
	if !ok {
		return false
	}
	s.unindex(a)
	delete(s.accounts, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

func (s *Store) unindex(a *Account) {
	if a.HolderName != "" && s.holders[a.HolderName] == a.ID {
		delete(s.holders, a.HolderName)
	}
}

func (s *Store) Len() int { return len(s.order) }

// HasHolder implements HolderIndex.
func (s *Store) HasHolder(name string) bool {
	_, ok := s.holders[name]
	return ok
}

// HolderNames yields every indexed holder name in account order.
func (s *Store) HolderNames() iter.Seq[string] {
	return func(yield func(string) bool) {
		for a := range s.All() {
			if a.HolderName == "" || s.holders[a.HolderName] != a.ID {
				continue
			}
			if !yield(a.HolderName) {
				return
			}
		}
	}
}

// GenerateID draws random ACC-#### ids until one is free.
func (s *Store) GenerateID() (string, error) {
	used := 0
	for _, id := range s.order {
		if generatedIDPattern.MatchString(id) {
			used++
		}
	}
	if used >= idSpace {
		return "", ErrIDSpaceExhausted
	}
	for {
		id := fmt.Sprintf("%s%d", idPrefix, idSuffixMin+s.intN(idSpace))
		if _, taken := s.accounts[id]; !taken {
			return id, nil
		}
	}
}

// =============================================================================
// SNAPSHOT CONVERSION
// =============================================================================

// Snapshot returns a deep copy of every account in insertion order.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{Accounts: make([]Account, 0, len(s.order))}
	for a := range s.All() {
		snap.Accounts = append(snap.Accounts, a.clone())
	}
	return snap
}

// Restore replaces the store's contents with the snapshot's accounts.
func (s *Store) Restore(snap Snapshot) {
	s.accounts = make(map[string]*Account, len(snap.Accounts))
	s.holders = make(map[string]string, len(snap.Accounts))
	s.order = s.order[:0]
	for i := range snap.Accounts {
		a := snap.Accounts[i].clone()
		s.Create(&a)
	}
}
