package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Recorder appends transactions to account histories.
//
// The caller must apply the balance change before calling Record: the
// entry's BalanceAfter is read from the account, never computed here. Every
// mutating engine operation follows the same mutate-then-record order.
type Recorder struct {
	newID func() string
}

func NewRecorder() *Recorder {
	return &Recorder{newID: uuid.NewString}
}

// Record appends one entry timestamped at and returns it.
func (r *Recorder) Record(a *Account, typ TransactionType, amount Money, description string, at time.Time) Transaction {
	tx := Transaction{
		ID:           r.newID(),
		Type:         typ,
		Amount:       amount,
		Timestamp:    at,
		BalanceAfter: a.Balance,
		Description:  description,
	}
	a.Transactions = append(a.Transactions, tx)
	return tx
}

// Replay recomputes a balance from zero by summing transaction amounts with
// the sign implied by their type.
func Replay(txs []Transaction) Money {
	var balance Money
	for _, tx := range txs {
		switch tx.Type {
		case TxDeposit, TxTransferIn:
			balance += tx.Amount
		case TxWithdrawal, TxTransferOut:
			balance -= tx.Amount
		}
	}
	return balance
}
