/*
Package jsonfile stores the ledger as a single indented JSON document.

PURPOSE:
  The reference Persistence Adapter. The whole ledger is rewritten on
  every save; there is no journal and no history of previous versions.

FORMAT:
  {
    "accounts": [
      {
        "id": "ACC-1234",
        "holderName": "Ada Lovelace",
        "balance": 150.25,
        "createdAt": "2026-10-16T14:30:00Z",
        "transactions": [
          {"id": "...", "type": "DEPOSIT", "amount": 150.25,
           "timestamp": "2026-10-16T14:30:00Z", "balanceAfter": 150.25,
           "description": "Initial deposit"}
        ]
      }
    ]
  }

  Non-finite balances are written as "NaN", "+Inf" or "-Inf".

WRITE STRATEGY:
  Encode into path+".tmp", close it, then rename over path. Every file
  handle is closed on every return path, and the temp file is removed if
  anything fails before the rename.

SEE ALSO:
  - ledger/persist.go: Persister contract
  - store/sqlite: alternative backend
*/
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/warp/ledger/ledger"
)

// Store implements ledger.Persister on a JSON file.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// document mirrors ledger.Snapshot but detects a missing accounts field.
type document struct {
	Accounts *[]ledger.Account `json:"accounts"`
}

// Load reads the file. A missing file yields ledger.ErrNoSnapshot.
func (s *Store) Load(ctx context.Context) (ledger.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Snapshot{}, err
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.Snapshot{}, ledger.ErrNoSnapshot
	}
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	var doc document
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("%w: %s: %v", ledger.ErrCorruptSnapshot, s.path, err)
	}
	if doc.Accounts == nil {
		return ledger.Snapshot{}, fmt.Errorf("%w: %s: missing accounts", ledger.ErrCorruptSnapshot, s.path)
	}
	if err := checkAccounts(*doc.Accounts); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("%w: %s: %v", ledger.ErrCorruptSnapshot, s.path, err)
	}
	return ledger.Snapshot{Accounts: *doc.Accounts}, nil
}

// checkAccounts enforces what the sqlite schema enforces: unique account ids
// and known transaction types.
func checkAccounts(accounts []ledger.Account) error {
	seen := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if seen[a.ID] {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
		for i, tx := range a.Transactions {
			if !tx.Type.Valid() {
				return fmt.Errorf("account %s transaction %d: unknown type %q", a.ID, i, tx.Type)
			}
		}
	}
	return nil
}

// Save replaces the file with snap.
func (s *Store) Save(ctx context.Context, snap ledger.Snapshot) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Accounts == nil {
		snap.Accounts = []ledger.Account{}
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
