/*
Package sqlite provides a SQLite-backed implementation of ledger.Persister.

PURPOSE:
  An alternative to the JSON file for operators who want to query their
  ledger with SQL. It keeps the same whole-snapshot contract: every Save
  replaces all rows inside a single SQL transaction, so a failed save
  leaves the previous snapshot intact.

KEY TABLES:
  ledger_meta:   key/value; a 'saved_at' row marks that a snapshot exists
  accounts:      one row per account, position preserves insertion order
  transactions:  one row per entry, seq preserves per-account order

NUMBERS:
  Balances and amounts are TEXT written with strconv.FormatFloat('g'),
  so NaN and ±Inf round-trip exactly.

USAGE:
  store, err := sqlite.New("./ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/persist.go: Persister contract
  - store/jsonfile: default backend
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/ledger/ledger"
)

// Store implements ledger.Persister using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	store, err := NewWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an existing handle and migrates the schema.
func NewWithDB(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		holder_name TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		tx_id TEXT,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT NOT NULL,
		PRIMARY KEY (account_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_position
		ON accounts(position);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SAVE
// =============================================================================

// Save replaces the stored ledger with snap atomically.
func (s *Store) Save(ctx context.Context, snap ledger.Snapshot) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("failed to clear transactions: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("failed to clear accounts: %w", err)
	}

	for pos, a := range snap.Accounts {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO accounts (id, position, holder_name, balance, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, a.ID, pos, a.HolderName, formatMoney(a.Balance), a.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert account %s: %w", a.ID, err)
		}

		for seq, tx := range a.Transactions {
			_, err := sqlTx.ExecContext(ctx, `
				INSERT INTO transactions
				(account_id, seq, tx_id, tx_type, amount, timestamp, balance_after, description)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, a.ID, seq, tx.ID, string(tx.Type), formatMoney(tx.Amount),
				tx.Timestamp.Format(time.RFC3339Nano), formatMoney(tx.BalanceAfter), tx.Description)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %d of %s: %w", seq, a.ID, err)
			}
		}
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO ledger_meta (key, value) VALUES ('saved_at', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to mark snapshot: %w", err)
	}

	return sqlTx.Commit()
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the stored ledger. An unsaved database yields ledger.ErrNoSnapshot.
func (s *Store) Load(ctx context.Context) (ledger.Snapshot, error) {
	var savedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM ledger_meta WHERE key = 'saved_at'`,
	).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Snapshot{}, ledger.ErrNoSnapshot
	}
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("failed to read snapshot marker: %w", err)
	}

	accounts, index, err := s.loadAccounts(ctx)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	if err := s.loadTransactions(ctx, accounts, index); err != nil {
		return ledger.Snapshot{}, err
	}
	return ledger.Snapshot{Accounts: accounts}, nil
}

func (s *Store) loadAccounts(ctx context.Context) ([]ledger.Account, map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, holder_name, balance, created_at
		FROM accounts
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []ledger.Account{}
	index := make(map[string]int)
	for rows.Next() {
		var a ledger.Account
		var balance, createdAt string
		if err := rows.Scan(&a.ID, &a.HolderName, &balance, &createdAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if a.Balance, err = parseMoney(balance); err != nil {
			return nil, nil, corrupt("account %s balance: %v", a.ID, err)
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, nil, corrupt("account %s created_at: %v", a.ID, err)
		}
		a.Transactions = []ledger.Transaction{}
		index[a.ID] = len(accounts)
		accounts = append(accounts, a)
	}
	return accounts, index, rows.Err()
}

func (s *Store) loadTransactions(ctx context.Context, accounts []ledger.Account, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, tx_id, tx_type, amount, timestamp, balance_after, description
		FROM transactions
		ORDER BY account_id ASC, seq ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			accountID, txType, amount, ts, balanceAfter string
			txID                                        sql.NullString
			tx                                          ledger.Transaction
		)
		if err := rows.Scan(&accountID, &txID, &txType, &amount, &ts, &balanceAfter, &tx.Description); err != nil {
			return fmt.Errorf("failed to scan transaction: %w", err)
		}
		i, ok := index[accountID]
		if !ok {
			return corrupt("transaction for unknown account %s", accountID)
		}
		tx.ID = txID.String
		tx.Type = ledger.TransactionType(txType)
		if !tx.Type.Valid() {
			return corrupt("account %s: unknown transaction type %q", accountID, txType)
		}
		if tx.Amount, err = parseMoney(amount); err != nil {
			return corrupt("account %s amount: %v", accountID, err)
		}
		if tx.BalanceAfter, err = parseMoney(balanceAfter); err != nil {
			return corrupt("account %s balance_after: %v", accountID, err)
		}
		if tx.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return corrupt("account %s timestamp: %v", accountID, err)
		}
		accounts[i].Transactions = append(accounts[i].Transactions, tx)
	}
	return rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatMoney(m ledger.Money) string {
	return strconv.FormatFloat(m.Float64(), 'g', -1, 64)
}

func parseMoney(s string) (ledger.Money, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return ledger.Money(f), nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ledger.ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}
