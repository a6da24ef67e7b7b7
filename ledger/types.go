/*
Package ledger provides the account ledger engine.

PURPOSE:
  This package holds the data model, the validation rules, the in-memory
  account store, the transaction recorder and the engine that orchestrates
  them. It has no knowledge of menus, terminals or file formats; the
  presentation layer hands it raw strings and the persistence adapters
  hand it Snapshots.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a float64 balance/amount that survives JSON even when NaN
  - Account: a named, balance-holding entity with append-only history
  - Transaction: an immutable record of one balance-affecting event
  - AccountView: read-only projection handed to callers

DESIGN PRINCIPLES:
  1. Mutate, then record: balanceAfter always reflects post-mutation state
  2. Append-only history: transactions are never edited or removed
  3. Faithful amounts: the amount is stored as entered, sign included

USAGE:
  engine, err := ledger.Open(ctx, persister, writer)
  id, err := engine.CreateAccount("Ada Lovelace", "100.00")
  _, err = engine.Deposit(id, "25")

SEE ALSO:
  - engine.go: the operations
  - store.go: the in-memory store
  - persist.go: Persister contract and Snapshot
*/
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - float64 amount with a NaN-safe JSON encoding
// =============================================================================

// Money is a balance or transaction amount. It is a float64 rather than a
// decimal because post-creation amounts are not validated and a balance may
// legitimately become NaN or infinite.
type Money float64

// Float64 returns the raw value.
func (m Money) Float64() float64 { return float64(m) }

// IsNaN reports whether the value is not-a-number.
func (m Money) IsNaN() bool { return math.IsNaN(float64(m)) }

// IsFinite reports whether the value is neither NaN nor ±Inf.
func (m Money) IsFinite() bool { return !math.IsNaN(float64(m)) && !math.IsInf(float64(m), 0) }

// Decimal returns the value rounded to cents. ok is false for NaN and ±Inf,
// which have no decimal form.
func (m Money) Decimal() (d decimal.Decimal, ok bool) {
	if !m.IsFinite() {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(float64(m)).Round(2), true
}

// MoneyFromDecimal converts a validated decimal amount.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.InexactFloat64())
}

// String renders the value without currency formatting.
func (m Money) String() string {
	return strconv.FormatFloat(float64(m), 'g', -1, 64)
}

// MarshalJSON writes finite values as JSON numbers and NaN/±Inf as the
// strings "NaN", "+Inf" and "-Inf".
func (m Money) MarshalJSON() ([]byte, error) {
	f := float64(m)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte(strconv.Quote(m.String())), nil
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	return strconv.AppendFloat(nil, f, format, -1, 64), nil
}

// UnmarshalJSON accepts numbers, the quoted non-finite forms written by
// MarshalJSON, and null (read as NaN).
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = Money(math.NaN())
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid money value %q", s)
		}
		*m = Money(f)
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid money value %s", b)
	}
	*m = Money(f)
	return nil
}

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionType string

const (
	TxDeposit     TransactionType = "DEPOSIT"
	TxWithdrawal  TransactionType = "WITHDRAWAL"
	TxTransferOut TransactionType = "TRANSFER_OUT"
	TxTransferIn  TransactionType = "TRANSFER_IN"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxTransferOut, TxTransferIn:
		return true
	}
	return false
}

// Transaction is immutable once appended to an account.
type Transaction struct {
	ID           string          `json:"id,omitempty"`
	Type         TransactionType `json:"type"`
	Amount       Money           `json:"amount"`
	Timestamp    time.Time       `json:"timestamp"`
	BalanceAfter Money           `json:"balanceAfter"`
	Description  string          `json:"description"`
}

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is the stored form of an account. The engine mutates Balance and
// appends to Transactions; every other field is fixed at creation.
type Account struct {
	ID           string        `json:"id"`
	HolderName   string        `json:"holderName"`
	Balance      Money         `json:"balance"`
	CreatedAt    time.Time     `json:"createdAt"`
	Transactions []Transaction `json:"transactions"`
}

func (a *Account) clone() Account {
	cp := *a
	cp.Transactions = make([]Transaction, len(a.Transactions))
	copy(cp.Transactions, a.Transactions)
	return cp
}

// DateLayout is the date-only format used for AccountView.CreatedOn.
const DateLayout = "2006-01-02"

// AccountView is a read-only projection of an account.
type AccountView struct {
	ID               string
	HolderName       string
	Balance          Money
	CreatedAt        time.Time
	CreatedOn        string // CreatedAt as YYYY-MM-DD
	TransactionCount int
}

func viewOf(a *Account) AccountView {
	return AccountView{
		ID:               a.ID,
		HolderName:       a.HolderName,
		Balance:          a.Balance,
		CreatedAt:        a.CreatedAt,
		CreatedOn:        a.CreatedAt.Format(DateLayout),
		TransactionCount: len(a.Transactions),
	}
}
