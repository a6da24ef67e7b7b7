/*
persist.go - Persistence adapter contract

PURPOSE:
  Defines how the engine talks to durable storage. The engine never
  writes files itself: after every mutation it hands a Snapshot to a
  Flusher, which decides when the Persister actually saves it.

LOAD SEMANTICS:
  - ErrNoSnapshot:       start empty and persist immediately
  - ErrCorruptSnapshot:  log a warning, start empty, overwrite on next save
  - any other error:     fail startup
  - success:             restore accounts in stored order

IMPLEMENTATIONS:
  - store/jsonfile: whole-file JSON snapshot (default)
  - store/sqlite:   whole-ledger snapshot in SQLite
  - flush.Writer:   the Flusher used in production
*/
package ledger

import "context"

// Snapshot is the durable form of the ledger: a single field holding the
// ordered accounts.
type Snapshot struct {
	Accounts []Account `json:"accounts"`
}

// Persister loads and saves whole snapshots.
type Persister interface {
	// Load returns ErrNoSnapshot when nothing is stored, or an error
	// wrapping ErrCorruptSnapshot when stored content cannot be decoded.
	Load(ctx context.Context) (Snapshot, error)

	// Save replaces whatever is stored with snap.
	Save(ctx context.Context, snap Snapshot) error
}

// Flusher accepts save requests. Request must not block on I/O and must not
// retain memory shared with the engine beyond the snapshot it was given.
type Flusher interface {
	Request(snap Snapshot)
}
