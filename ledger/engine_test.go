package ledger_test

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// recordingFlusher keeps every requested snapshot.
type recordingFlusher struct {
	snaps []ledger.Snapshot
}

func (f *recordingFlusher) Request(s ledger.Snapshot) { f.snaps = append(f.snaps, s) }

func (f *recordingFlusher) last() ledger.Snapshot { return f.snaps[len(f.snaps)-1] }

// memPersister is a Persister backed by a variable.
type memPersister struct {
	snap    *ledger.Snapshot
	loadErr error
}

func (p *memPersister) Load(context.Context) (ledger.Snapshot, error) {
	if p.loadErr != nil {
		return ledger.Snapshot{}, p.loadErr
	}
	if p.snap == nil {
		return ledger.Snapshot{}, ledger.ErrNoSnapshot
	}
	return *p.snap, nil
}

func (p *memPersister) Save(_ context.Context, s ledger.Snapshot) error {
	p.snap = &s
	return nil
}

var testNow = time.Date(2026, time.October, 16, 14, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...ledger.Option) (*ledger.Engine, *recordingFlusher) {
	t.Helper()
	f := &recordingFlusher{}
	base := []ledger.Option{
		ledger.WithClock(func() time.Time { return testNow }),
		ledger.WithStore(ledger.NewStore(ledger.WithRand(rand.New(rand.NewPCG(1, 2))))),
	}
	return ledger.New(f, append(base, opts...)...), f
}

func mustCreate(t *testing.T, e *ledger.Engine, holder, deposit string) string {
	t.Helper()
	id, err := e.CreateAccount(holder, deposit)
	require.NoError(t, err)
	return id
}

func balanceOf(t *testing.T, e *ledger.Engine, id string) ledger.Money {
	t.Helper()
	v, err := e.ViewAccount(id)
	require.NoError(t, err)
	return v.Balance
}

func lastTx(t *testing.T, e *ledger.Engine, id string) ledger.Transaction {
	t.Helper()
	h, err := e.TransactionHistory(id)
	require.NoError(t, err)
	require.NotEmpty(t, h.Transactions)
	return h.Transactions[len(h.Transactions)-1]
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateAccount_RecordsInitialDeposit(t *testing.T) {
	e, f := newTestEngine(t)

	id, err := e.CreateAccount("  Ada Lovelace ", "150.25")
	require.NoError(t, err)
	assert.Regexp(t, `^ACC-\d{4}$`, id)

	v, err := e.ViewAccount(id)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", v.HolderName)
	assert.Equal(t, ledger.Money(150.25), v.Balance)
	assert.Equal(t, testNow, v.CreatedAt)
	assert.Equal(t, "2026-10-16", v.CreatedOn)

	h, err := e.TransactionHistory(id)
	require.NoError(t, err)
	require.Len(t, h.Transactions, 1)
	tx := h.Transactions[0]
	assert.Equal(t, ledger.TxDeposit, tx.Type)
	assert.Equal(t, "Initial deposit", tx.Description)
	assert.Equal(t, ledger.Money(150.25), tx.BalanceAfter)
	assert.NotEmpty(t, tx.ID)

	require.Len(t, f.snaps, 1, "one flush per mutation")
	assert.Len(t, f.last().Accounts, 1)
}

func TestCreateAccount_GateOrder(t *testing.T) {
	// Name is checked before the deposit; the first failing gate wins.
	e, f := newTestEngine(t)

	_, err := e.CreateAccount("", "abc")
	var vErr *ledger.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "holder_name", vErr.Field)

	_, err = e.CreateAccount("Ada", "1.999")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "deposit", vErr.Field)
	assert.Equal(t, ledger.CodeTooManyDecimals, vErr.Code)

	_, err = e.CreateAccount("Ada", "")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, ledger.CodeRequired, vErr.Code)

	assert.Empty(t, e.ListAccounts().Accounts)
	assert.Empty(t, f.snaps, "rejected operations do not persist")
}

func TestCreateAccount_DuplicateHolderRejected(t *testing.T) {
	// GIVEN: an account for "Ada"
	// WHEN: creating another account for "Ada"
	// THEN: rejected with "already exists", store unchanged
	e, _ := newTestEngine(t)
	mustCreate(t, e, "Ada", "10")

	_, err := e.CreateAccount("Ada", "20")
	assert.ErrorIs(t, err, ledger.ErrDuplicateHolder)
	assert.Contains(t, err.Error(), "already exists")
	assert.Len(t, e.ListAccounts().Accounts, 1)

	// trimmed before the duplicate check
	_, err = e.CreateAccount("  Ada ", "20")
	assert.ErrorIs(t, err, ledger.ErrDuplicateHolder)
}

func TestCreateAccount_HolderFreedAfterDelete(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "Ada", "10")
	require.NoError(t, e.DeleteAccount(id))

	_, err := e.CreateAccount("Ada", "10")
	assert.NoError(t, err)
}

// =============================================================================
// DEPOSIT / WITHDRAW
// =============================================================================

func TestDepositWithdraw_Arithmetic(t *testing.T) {
	cases := []struct {
		name    string
		amount  string
		deposit float64
	}{
		{"positive", "25.5", 25.5},
		{"zero", "0", 0},
		{"negative", "-40", -40},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, f := newTestEngine(t)
			id := mustCreate(t, e, "Ada", "100")

			tx, err := e.Deposit(id, tc.amount)
			require.NoError(t, err)
			assert.Equal(t, ledger.Money(100+tc.deposit), balanceOf(t, e, id))
			assert.Equal(t, ledger.TxDeposit, tx.Type)
			assert.Equal(t, ledger.Money(tc.deposit), tx.Amount, "amount stored as entered")
			assert.Equal(t, balanceOf(t, e, id), tx.BalanceAfter)

			tx, err = e.Withdraw(id, tc.amount)
			require.NoError(t, err)
			assert.Equal(t, ledger.Money(100), balanceOf(t, e, id))
			assert.Equal(t, ledger.TxWithdrawal, tx.Type)
			assert.Equal(t, ledger.Money(100), tx.BalanceAfter)

			h, _ := e.TransactionHistory(id)
			assert.Len(t, h.Transactions, 3)
			assert.Len(t, f.snaps, 3)
		})
	}
}

func TestWithdraw_NoOverdraftCheck(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "Ada", "10")

	_, err := e.Withdraw(id, "50")
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(-40), balanceOf(t, e, id))
}

func TestDeposit_NonNumericPropagatesNaN(t *testing.T) {
	// GIVEN: legacy policy
	// WHEN: depositing a non-numeric string
	// THEN: balance becomes NaN, a transaction is still recorded, no error
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "Ada", "10")

	tx, err := e.Deposit(id, "ten dollars")
	require.NoError(t, err)
	assert.True(t, tx.Amount.IsNaN())
	assert.True(t, tx.BalanceAfter.IsNaN())
	assert.True(t, balanceOf(t, e, id).IsNaN())

	// NaN is sticky
	_, err = e.Deposit(id, "5")
	require.NoError(t, err)
	assert.True(t, balanceOf(t, e, id).IsNaN())
	assert.True(t, lastTx(t, e, id).BalanceAfter.IsNaN())
}

func TestDeposit_TrimsID(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "Ada", "10")

	_, err := e.Deposit("  "+id+"\t", "1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(11), balanceOf(t, e, id))
}

func TestDepositWithdraw_NotFound(t *testing.T) {
	e, f := newTestEngine(t)

	_, err := e.Deposit("ACC-0000", "10")
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ACC-0000", nf.AccountID)

	_, err = e.Withdraw(" ACC-0000 ", "10")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ACC-0000", nf.AccountID)

	assert.Empty(t, f.snaps)
}

func TestStrictPolicy_RejectsBadAmounts(t *testing.T) {
	e, f := newTestEngine(t, ledger.WithPolicy(ledger.PolicyStrict))
	id := mustCreate(t, e, "Ada", "100")
	flushes := len(f.snaps)

	for _, raw := range []string{"abc", "", "0", "-5", "1.234", "2000000"} {
		_, err := e.Deposit(id, raw)
		assert.ErrorIs(t, err, ledger.ErrValidation, "deposit %q", raw)
		_, err = e.Withdraw(id, raw)
		assert.ErrorIs(t, err, ledger.ErrValidation, "withdraw %q", raw)
		_, err = e.Transfer(id, "ACC-7777", raw)
		assert.ErrorIs(t, err, ledger.ErrValidation, "transfer %q", raw)
	}

	assert.Equal(t, ledger.Money(100), balanceOf(t, e, id))
	assert.Equal(t, flushes, len(f.snaps))
	_, err := e.ViewAccount("ACC-7777")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound, "rejected transfer must not create the destination")

	_, err = e.Withdraw(id, "150.50")
	require.NoError(t, err, "strict mode still allows overdraft")
	assert.Equal(t, ledger.Money(-50.5), balanceOf(t, e, id))
}

// =============================================================================
// TRANSFER
// =============================================================================

func TestTransfer_ToExistingAccount(t *testing.T) {
	e, f := newTestEngine(t)
	a := mustCreate(t, e, "Ada", "100")
	b := mustCreate(t, e, "Grace", "50")
	flushes := len(f.snaps)

	res, err := e.Transfer(a, b, "30")
	require.NoError(t, err)
	assert.False(t, res.DestinationCreated)

	assert.Equal(t, ledger.Money(70), balanceOf(t, e, a))
	assert.Equal(t, ledger.Money(80), balanceOf(t, e, b))

	out := lastTx(t, e, a)
	in := lastTx(t, e, b)
	assert.Equal(t, ledger.TxTransferOut, out.Type)
	assert.Equal(t, "To "+b, out.Description)
	assert.Equal(t, ledger.Money(70), out.BalanceAfter)
	assert.Equal(t, ledger.TxTransferIn, in.Type)
	assert.Equal(t, "From "+a, in.Description)
	assert.Equal(t, ledger.Money(80), in.BalanceAfter)
	assert.Equal(t, out.Timestamp, in.Timestamp, "both legs share one timestamp")

	assert.Equal(t, flushes+1, len(f.snaps), "persisted once after both legs")
}

func TestTransfer_CreatesMissingDestination(t *testing.T) {
	// GIVEN: source A with 100, no account ACC-4242
	// WHEN: transferring 40 to " ACC-4242 "
	// THEN: A has 60, ACC-4242 exists with balance 40, empty holder,
	//       exactly one TRANSFER_IN with balanceAfter 40
	e, _ := newTestEngine(t)
	a := mustCreate(t, e, "Ada", "100")

	res, err := e.Transfer(" "+a+" ", " ACC-4242 ", "40")
	require.NoError(t, err)
	assert.True(t, res.DestinationCreated)
	assert.Equal(t, "To ACC-4242", res.Out.Description)

	assert.Equal(t, ledger.Money(60), balanceOf(t, e, a))

	v, err := e.ViewAccount("ACC-4242")
	require.NoError(t, err)
	assert.Empty(t, v.HolderName)
	assert.Equal(t, ledger.Money(40), v.Balance)
	assert.Equal(t, testNow, v.CreatedAt)

	h, err := e.TransactionHistory("ACC-4242")
	require.NoError(t, err)
	require.Len(t, h.Transactions, 1)
	assert.Equal(t, ledger.TxTransferIn, h.Transactions[0].Type)
	assert.Equal(t, ledger.Money(40), h.Transactions[0].BalanceAfter)
	assert.Equal(t, "From "+a, h.Transactions[0].Description)
}

func TestTransfer_AutoCreatedHolderBypassesDuplicateCheck(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustCreate(t, e, "Ada", "100")
	_, err := e.Transfer(a, "X-1", "1")
	require.NoError(t, err)
	_, err = e.Transfer(a, "X-2", "1")
	require.NoError(t, err, "two unnamed accounts may coexist")
	assert.Len(t, e.ListAccounts().Accounts, 3)
}

func TestTransfer_SourceNotFound(t *testing.T) {
	e, f := newTestEngine(t)

	_, err := e.Transfer("ACC-0000", "ACC-1111", "10")
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.RoleSource, nf.Role)
	assert.Empty(t, e.ListAccounts().Accounts, "destination must not be created")
	assert.Empty(t, f.snaps)
}

func TestTransfer_SelfTransferIsNotGuarded(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustCreate(t, e, "Ada", "100")

	res, err := e.Transfer(a, a, "25")
	require.NoError(t, err)
	assert.False(t, res.DestinationCreated)
	assert.Equal(t, ledger.Money(100), balanceOf(t, e, a))

	h, _ := e.TransactionHistory(a)
	require.Len(t, h.Transactions, 3)
	assert.Equal(t, ledger.Money(75), h.Transactions[1].BalanceAfter)
	assert.Equal(t, ledger.Money(100), h.Transactions[2].BalanceAfter)
}

func TestTransfer_NaNAmount(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustCreate(t, e, "Ada", "100")

	res, err := e.Transfer(a, "ACC-5555", "lots")
	require.NoError(t, err)
	assert.True(t, balanceOf(t, e, a).IsNaN())
	assert.True(t, res.In.BalanceAfter.IsNaN())
}

// =============================================================================
// DELETE / LIST / HISTORY
// =============================================================================

func TestDeleteAccount(t *testing.T) {
	e, f := newTestEngine(t)
	a := mustCreate(t, e, "Ada", "10")
	flushes := len(f.snaps)

	err := e.DeleteAccount("ACC-0000")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.Len(t, e.ListAccounts().Accounts, 1)
	assert.Equal(t, flushes, len(f.snaps))

	require.NoError(t, e.DeleteAccount(" "+a))
	_, err = e.ViewAccount(a)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, err = e.TransactionHistory(a)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.True(t, e.ListAccounts().Empty())
	assert.Equal(t, flushes+1, len(f.snaps))
}

func TestListAccounts_TotalIncludesNegativeAndNaN(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.True(t, e.ListAccounts().Empty())

	a := mustCreate(t, e, "Ada", "100")
	b := mustCreate(t, e, "Grace", "50.5")
	_, _ = e.Withdraw(b, "80")

	res := e.ListAccounts()
	assert.False(t, res.Empty())
	assert.Equal(t, []string{a, b}, []string{res.Accounts[0].ID, res.Accounts[1].ID})
	assert.InDelta(t, 70.5, res.Total.Float64(), 1e-9)

	_, _ = e.Deposit(a, "oops")
	assert.True(t, math.IsNaN(e.ListAccounts().Total.Float64()))
}

func TestTransactionHistory_ReplayMatchesBalance(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustCreate(t, e, "Ada", "100")
	b := mustCreate(t, e, "Grace", "0")
	_, _ = e.Deposit(a, "20.10")
	_, _ = e.Withdraw(a, "5.05")
	_, _ = e.Transfer(a, b, "15")

	h, err := e.TransactionHistory(a)
	require.NoError(t, err)
	assert.False(t, h.Empty())
	assert.InDelta(t, h.Account.Balance.Float64(), h.Replayed.Float64(), 1e-9)
	assert.Equal(t, h.Account.Balance, h.Transactions[len(h.Transactions)-1].BalanceAfter)

	types := make([]ledger.TransactionType, 0, len(h.Transactions))
	for _, tx := range h.Transactions {
		types = append(types, tx.Type)
	}
	assert.Equal(t, []ledger.TransactionType{ledger.TxDeposit, ledger.TxDeposit, ledger.TxWithdrawal, ledger.TxTransferOut}, types)
}

func TestTransactionHistory_EmptyIsDistinct(t *testing.T) {
	// Only a stored ledger can carry an account without transactions.
	snap := ledger.Snapshot{Accounts: []ledger.Account{{
		ID:         "ACC-1000",
		HolderName: "Imported",
		Balance:    12,
		CreatedAt:  testNow,
	}}}
	e, err := ledger.Open(context.Background(), &memPersister{snap: &snap}, &recordingFlusher{})
	require.NoError(t, err)

	h, err := e.TransactionHistory("ACC-1000")
	require.NoError(t, err)
	assert.True(t, h.Empty())
	assert.Equal(t, "Imported", h.Account.HolderName)
}

// =============================================================================
// OPEN
// =============================================================================

func TestOpen_AbsentPersistsImmediately(t *testing.T) {
	f := &recordingFlusher{}
	e, err := ledger.Open(context.Background(), &memPersister{}, f)
	require.NoError(t, err)
	assert.True(t, e.ListAccounts().Empty())
	require.Len(t, f.snaps, 1)
	assert.Empty(t, f.snaps[0].Accounts)
	assert.NotNil(t, f.snaps[0].Accounts, "an empty ledger still has an accounts list")
}

func TestOpen_CorruptFallsBackToEmpty(t *testing.T) {
	f := &recordingFlusher{}
	p := &memPersister{loadErr: errors.Join(ledger.ErrCorruptSnapshot, errors.New("unexpected EOF"))}

	e, err := ledger.Open(context.Background(), p, f)
	require.NoError(t, err)
	assert.True(t, e.ListAccounts().Empty())
	assert.Empty(t, f.snaps, "corrupt content is only overwritten on the next save")
}

func TestOpen_OtherLoadErrorsFail(t *testing.T) {
	p := &memPersister{loadErr: errors.New("permission denied")}
	_, err := ledger.Open(context.Background(), p, &recordingFlusher{})
	assert.ErrorContains(t, err, "permission denied")
}

func TestOpen_RestoresAccounts(t *testing.T) {
	src, f := newTestEngine(t)
	a := mustCreate(t, src, "Ada", "10")
	_, _ = src.Transfer(a, "ACC-2020", "4")
	snap := f.last()

	e, err := ledger.Open(context.Background(), &memPersister{snap: &snap}, &recordingFlusher{})
	require.NoError(t, err)

	assert.Equal(t, ledger.Money(6), balanceOf(t, e, a))
	assert.Equal(t, ledger.Money(4), balanceOf(t, e, "ACC-2020"))

	// holder index is rebuilt
	_, err = e.CreateAccount("Ada", "1")
	assert.ErrorIs(t, err, ledger.ErrDuplicateHolder)
}
