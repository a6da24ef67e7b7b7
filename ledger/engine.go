/*
engine.go - Ledger engine

PURPOSE:
  Orchestrates validation, store mutation, transaction recording and
  persistence for every operation. This is the only component with
  business rules.

OPERATION FLOW (mutating operations):
  1. Normalize ids (trim) at the entry boundary
  2. Run validation gates in order; the first failure is returned
  3. Mutate the account balance
  4. Record the transaction (balanceAfter = new balance)
  5. Request a flush of the whole ledger

  A rejected operation performs none of steps 3-5. A failed save happens
  after step 5 and never rolls back memory.

KNOWN GAPS:
  - Under PolicyLegacy, deposit/withdraw/transfer amounts are not
    validated; non-numeric input becomes NaN and propagates.
  - No overdraft check, no self-transfer guard.
  - A transfer to an unknown id creates that account with an empty
    holder name.

SEE ALSO:
  - validate.go: the gates
  - recorder.go: mutate-then-record contract
  - flush/writer.go: what happens after Request
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock returns the current time.
type Clock func() time.Time

// Engine is the ledger engine. It is not safe for concurrent use.
type Engine struct {
	store    *Store
	recorder *Recorder
	flusher  Flusher
	clock    Clock
	policy   AmountPolicy
	log      logrus.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }
func WithPolicy(p AmountPolicy) Option { return func(e *Engine) { e.policy = p } }
func WithStore(s *Store) Option { return func(e *Engine) { e.store = s } }
func WithRecorder(r *Recorder) Option { return func(e *Engine) { e.recorder = r } }
func WithLogger(l logrus.FieldLogger) Option { return func(e *Engine) { e.log = l } }

// New builds an engine over an empty (or caller-supplied) store.
func New(flusher Flusher, opts ...Option) *Engine {
	e := &Engine{
		recorder: NewRecorder(),
		flusher:  flusher,
		clock:    func() time.Time { return time.Now().UTC() },
		policy:   PolicyLegacy,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = NewStore()
	}
	if e.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		e.log = l
	}
	return e
}

// Open loads the ledger from p and returns an engine over it.
func Open(ctx context.Context, p Persister, flusher Flusher, opts ...Option) (*Engine, error) {
	e := New(flusher, opts...)

	snap, err := p.Load(ctx)
	switch {
	case err == nil:
		e.store.Restore(snap)
		e.log.WithField("accounts", e.store.Len()).Info("ledger loaded")
	case errors.Is(err, ErrNoSnapshot):
		e.log.Info("no stored ledger, starting empty")
		e.persist()
	case errors.Is(err, ErrCorruptSnapshot):
		e.log.WithError(&PersistenceWarning{Op: "load", Err: err}).
			Warn("stored ledger is unreadable, starting empty; it will be overwritten on next save")
	default:
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return e, nil
}

// Policy reports the amount policy in effect.
func (e *Engine) Policy() AmountPolicy { return e.policy }

func (e *Engine) persist() {
	e.flusher.Request(e.store.Snapshot())
}

func (e *Engine) find(id, role string) (*Account, error) {
	a, ok := e.store.FindByID(id)
	if !ok {
		return nil, &NotFoundError{AccountID: id, Role: role}
	}
	return a, nil
}

// =============================================================================
// MUTATING OPERATIONS
// =============================================================================

// CreateAccount opens an account with an initial deposit and returns its id.
func (e *Engine) CreateAccount(holderName, depositRaw string) (string, error) {
	name, err := ValidateHolderName(holderName)
	if err != nil {
		return "", err
	}
	if err := ValidateDuplicateHolder(name, e.store); err != nil {
		return "", err
	}
	deposit, err := ValidateMoneyInput("deposit", depositRaw, CreationRange)
	if err != nil {
		return "", err
	}
	id, err := e.store.GenerateID()
	if err != nil {
		return "", err
	}

	now := e.clock()
	a := &Account{
		ID:           id,
		HolderName:   name,
		Balance:      MoneyFromDecimal(deposit),
		CreatedAt:    now,
		Transactions: []Transaction{},
	}
	e.recorder.Record(a, TxDeposit, a.Balance, "Initial deposit", now)
	e.store.Create(a)
	e.persist()

	e.log.WithFields(logrus.Fields{"op": "create", "account_id": id}).Debug("account created")
	return id, nil
}

// Deposit adds amountRaw to the account's balance.
func (e *Engine) Deposit(accountID, amountRaw string) (Transaction, error) {
	id := strings.TrimSpace(accountID)
	a, err := e.find(id, RoleAccount)
	if err != nil {
		return Transaction{}, err
	}
	amount, err := e.policy.parseAmount(amountRaw)
	if err != nil {
		return Transaction{}, err
	}

	a.Balance += amount
	tx := e.recorder.Record(a, TxDeposit, amount, "Deposit", e.clock())
	e.persist()

	e.log.WithFields(logrus.Fields{"op": "deposit", "account_id": id}).Debug("deposit applied")
	return tx, nil
}

// Withdraw subtracts amountRaw from the account's balance. There is no
// overdraft check.
func (e *Engine) Withdraw(accountID, amountRaw string) (Transaction, error) {
	id := strings.TrimSpace(accountID)
	a, err := e.find(id, RoleAccount)
	if err != nil {
		return Transaction{}, err
	}
	amount, err := e.policy.parseAmount(amountRaw)
	if err != nil {
		return Transaction{}, err
	}

	a.Balance -= amount
	tx := e.recorder.Record(a, TxWithdrawal, amount, "Withdrawal", e.clock())
	e.persist()

	e.log.WithFields(logrus.Fields{"op": "withdraw", "account_id": id}).Debug("withdrawal applied")
	return tx, nil
}

// TransferResult describes both legs of a transfer.
type TransferResult struct {
	Out                Transaction
	In                 Transaction
	DestinationCreated bool
}

// Transfer moves amountRaw from one account to another. An unknown
// destination is created on the fly with an empty holder name.
func (e *Engine) Transfer(fromID, toID, amountRaw string) (TransferResult, error) {
	from := strings.TrimSpace(fromID)
	to := strings.TrimSpace(toID)

	src, err := e.find(from, RoleSource)
	if err != nil {
		return TransferResult{}, err
	}
	amount, err := e.policy.parseAmount(amountRaw)
	if err != nil {
		return TransferResult{}, err
	}

	now := e.clock()
	var res TransferResult

	src.Balance -= amount
	res.Out = e.recorder.Record(src, TxTransferOut, amount, "To "+to, now)

	dst, ok := e.store.FindByID(to)
	if !ok {
		dst = &Account{
			ID:           to,
			Balance:      amount,
			CreatedAt:    now,
			Transactions: []Transaction{},
		}
		res.In = e.recorder.Record(dst, TxTransferIn, amount, "From "+from, now)
		e.store.Create(dst)
		res.DestinationCreated = true
	} else {
		dst.Balance += amount
		res.In = e.recorder.Record(dst, TxTransferIn, amount, "From "+from, now)
	}
	e.persist()

	e.log.WithFields(logrus.Fields{
		"op":           "transfer",
		"account_id":   from,
		"to":           to,
		"dest_created": res.DestinationCreated,
	}).Debug("transfer applied")
	return res, nil
}

// DeleteAccount removes an account and its history irreversibly.
func (e *Engine) DeleteAccount(accountID string) error {
	id := strings.TrimSpace(accountID)
	if !e.store.Delete(id) {
		return &NotFoundError{AccountID: id, Role: RoleAccount}
	}
	e.persist()

	e.log.WithFields(logrus.Fields{"op": "delete", "account_id": id}).Debug("account deleted")
	return nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// ViewAccount returns a read-only projection of one account.
func (e *Engine) ViewAccount(accountID string) (AccountView, error) {
	a, err := e.find(strings.TrimSpace(accountID), RoleAccount)
	if err != nil {
		return AccountView{}, err
	}
	return viewOf(a), nil
}

// ListResult holds every account and the sum of their balances.
type ListResult struct {
	Accounts []AccountView
	Total    Money
}

// Empty reports the no-accounts state, which is not an error.
func (r ListResult) Empty() bool { return len(r.Accounts) == 0 }

// ListAccounts returns all accounts in insertion order. Total is a plain
// IEEE-754 sum, so a single NaN balance makes it NaN.
func (e *Engine) ListAccounts() ListResult {
	res := ListResult{Accounts: make([]AccountView, 0, e.store.Len())}
	for a := range e.store.All() {
		res.Accounts = append(res.Accounts, viewOf(a))
		res.Total += a.Balance
	}
	return res
}

// HistoryResult holds an account's transactions in insertion order.
type HistoryResult struct {
	Account      AccountView
	Transactions []Transaction
	// Replayed is the balance recomputed from the transactions alone.
	Replayed Money
}

// Empty reports an account with no transactions, which is not an error.
func (r HistoryResult) Empty() bool { return len(r.Transactions) == 0 }

// TransactionHistory returns a copy of an account's transactions.
func (e *Engine) TransactionHistory(accountID string) (HistoryResult, error) {
	a, err := e.find(strings.TrimSpace(accountID), RoleAccount)
	if err != nil {
		return HistoryResult{}, err
	}
	txs := make([]Transaction, len(a.Transactions))
	copy(txs, a.Transactions)
	return HistoryResult{
		Account:      viewOf(a),
		Transactions: txs,
		Replayed:     Replay(txs),
	}, nil
}
