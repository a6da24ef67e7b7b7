package ledger_test

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func seededStore() *ledger.Store {
	return ledger.NewStore(ledger.WithRand(rand.New(rand.NewPCG(7, 11))))
}

func account(id, holder string, balance float64) *ledger.Account {
	return &ledger.Account{
		ID:           id,
		HolderName:   holder,
		Balance:      ledger.Money(balance),
		CreatedAt:    time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC),
		Transactions: []ledger.Transaction{},
	}
}

func ids(s *ledger.Store) []string {
	var out []string
	for a := range s.All() {
		out = append(out, a.ID)
	}
	return out
}

// =============================================================================
// CRUD
// =============================================================================

func TestStore_CreateFindDelete(t *testing.T) {
	s := seededStore()
	s.Create(account("ACC-1111", "Ada", 10))
	s.Create(account("ACC-2222", "Grace", 20))

	a, ok := s.FindByID("ACC-1111")
	require.True(t, ok)
	assert.Equal(t, "Ada", a.HolderName)

	// no trimming inside the store
	_, ok = s.FindByID(" ACC-1111 ")
	assert.False(t, ok)

	assert.True(t, s.Delete("ACC-1111"))
	_, ok = s.FindByID("ACC-1111")
	assert.False(t, ok)
	assert.False(t, s.HasHolder("Ada"))
	assert.Equal(t, 1, s.Len())

	assert.False(t, s.Delete("ACC-9999"), "deleting a missing id reports not found")
	assert.Equal(t, 1, s.Len())
}

func TestStore_AllIsInsertionOrderedAndRestartable(t *testing.T) {
	s := seededStore()
	for _, id := range []string{"ACC-3000", "ACC-1000", "ACC-2000"} {
		s.Create(account(id, "", 0))
	}

	assert.Equal(t, []string{"ACC-3000", "ACC-1000", "ACC-2000"}, ids(s))
	assert.Equal(t, []string{"ACC-3000", "ACC-1000", "ACC-2000"}, ids(s), "second pass yields the same sequence")

	s.Delete("ACC-1000")
	assert.Equal(t, []string{"ACC-3000", "ACC-2000"}, ids(s))

	// early break
	n := 0
	for range s.All() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestStore_EmptyHolderNotIndexed(t *testing.T) {
	s := seededStore()
	s.Create(account("ACC-1234", "", 5))

	assert.False(t, s.HasHolder(""))
	var names []string
	for n := range s.HolderNames() {
		names = append(names, n)
	}
	assert.Empty(t, names)
}

// =============================================================================
// ID GENERATION
// =============================================================================

func TestStore_GenerateID_Format(t *testing.T) {
	s := seededStore()
	for i := 0; i < 200; i++ {
		id, err := s.GenerateID()
		require.NoError(t, err)
		assert.Regexp(t, `^ACC-[1-9][0-9]{3}$`, id)
	}
}

func TestStore_GenerateID_AvoidsExistingIDs(t *testing.T) {
	// GIVEN: every id but ACC-5000 is taken
	// WHEN: generating an id
	// THEN: the only free id comes back
	s := seededStore()
	for n := 1000; n <= 9999; n++ {
		if n == 5000 {
			continue
		}
		s.Create(account(fmt.Sprintf("ACC-%d", n), "", 0))
	}

	id, err := s.GenerateID()
	require.NoError(t, err)
	assert.Equal(t, "ACC-5000", id)
}

func TestStore_GenerateID_Exhausted(t *testing.T) {
	s := seededStore()
	for n := 1000; n <= 9999; n++ {
		s.Create(account(fmt.Sprintf("ACC-%d", n), "", 0))
	}
	// ids outside the generated range do not count
	s.Create(account("ACC-0001", "", 0))

	_, err := s.GenerateID()
	assert.ErrorIs(t, err, ledger.ErrIDSpaceExhausted)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	s := seededStore()
	a := account("ACC-1234", "Ada", 10)
	a.Transactions = append(a.Transactions, ledger.Transaction{Type: ledger.TxDeposit, Amount: 10, BalanceAfter: 10})
	s.Create(a)

	snap := s.Snapshot()
	a.Balance = 99
	a.Transactions[0].Description = "mutated"

	require.Len(t, snap.Accounts, 1)
	assert.Equal(t, ledger.Money(10), snap.Accounts[0].Balance)
	assert.Empty(t, snap.Accounts[0].Transactions[0].Description)
}

func TestStore_RestoreReplacesContents(t *testing.T) {
	s := seededStore()
	s.Create(account("ACC-1111", "Old", 1))

	s.Restore(ledger.Snapshot{Accounts: []ledger.Account{
		*account("ACC-2222", "Ada", 2),
		*account("ACC-3333", "", 3),
	}})

	assert.Equal(t, []string{"ACC-2222", "ACC-3333"}, ids(s))
	assert.False(t, s.HasHolder("Old"))
	assert.True(t, s.HasHolder("Ada"))
}
