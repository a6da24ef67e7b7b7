/*
writer.go - Background ledger writer

PURPOSE:
  Owns the single goroutine that saves ledger snapshots. The engine calls
  Request after every mutation and returns to the operator immediately;
  the writer persists in the background.

CONTENTION POLICY:
  A request that arrives while an earlier one is pending or being written
  is handled according to Policy:
    DropWhileBusy - the request is discarded. Disk may lag memory until
                    the next request that finds the writer idle.
    Coalesce      - the request replaces any pending snapshot and is
                    written as soon as the current write ends. The
                    newest snapshot always reaches disk.

FAILURES:
  A failed save is logged as a ledger.PersistenceWarning and counted. It
  is never retried and never rolls back the engine's memory.

USAGE:
  w := flush.NewWriter(persister, flush.Coalesce, flush.WithLogger(log))
  w.Start()
  engine := ledger.New(w)
  // ... later
  w.Close(ctx) // drains pending work

SEE ALSO:
  - ledger/persist.go: Flusher and Persister
*/
package flush

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/ledger/ledger"
)

// Policy decides what happens to a request while the writer is busy.
type Policy string

const (
	Coalesce      Policy = "coalesce"
	DropWhileBusy Policy = "drop"
)

func (p Policy) Valid() bool { return p == Coalesce || p == DropWhileBusy }

// Saver is the subset of ledger.Persister the writer needs.
type Saver interface {
	Save(ctx context.Context, snap ledger.Snapshot) error
}

// Stats counts what happened to requests.
type Stats struct {
	Requested int
	Written   int
	Failed    int
	Dropped   int
	Coalesced int
}

// Writer implements ledger.Flusher with one background goroutine.
type Writer struct {
	saver   Saver
	policy  Policy
	timeout time.Duration
	log     logrus.FieldLogger

	mu      sync.Mutex
	pending *ledger.Snapshot
	busy    bool
	closed  bool
	idle    chan struct{} // closed while nothing is pending or in flight
	stats   Stats

	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	started bool
	once    sync.Once
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger for save failures and drops.
func WithLogger(l logrus.FieldLogger) Option { return func(w *Writer) { w.log = l } }

// WithTimeout bounds each individual save.
func WithTimeout(d time.Duration) Option { return func(w *Writer) { w.timeout = d } }

func NewWriter(saver Saver, policy Policy, opts ...Option) *Writer {
	idle := make(chan struct{})
	close(idle)
	w := &Writer{
		saver:   saver,
		policy:  policy,
		timeout: 10 * time.Second,
		idle:    idle,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logrus.StandardLogger()
	}
	return w
}

// Start launches the writer goroutine. Requests made before Start are kept
// and written once it runs.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	go w.run()
}

// Request implements ledger.Flusher.
func (w *Writer) Request(snap ledger.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.Requested++
	if w.closed {
		w.stats.Dropped++
		w.log.Warn("ledger writer is closed, save request dropped")
		return
	}

	inFlight := w.busy || w.pending != nil
	switch {
	case !inFlight:
		w.idle = make(chan struct{})
		w.pending = &snap
	case w.policy == DropWhileBusy:
		w.stats.Dropped++
		w.log.WithField("dropped", w.stats.Dropped).Debug("save already in progress, request dropped")
		return
	default:
		if w.pending != nil {
			w.stats.Coalesced++
		}
		w.pending = &snap
	}

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

// drain writes until nothing is pending.
func (w *Writer) drain() {
	for {
		w.mu.Lock()
		snap := w.pending
		if snap == nil {
			if w.busy || !isClosed(w.idle) {
				w.busy = false
				close(w.idle)
			}
			w.mu.Unlock()
			return
		}
		w.pending = nil
		w.busy = true
		w.mu.Unlock()

		w.write(*snap)
	}
}

func (w *Writer) write(snap ledger.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	err := w.saver.Save(ctx, snap)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.Failed++
		w.log.WithError(&ledger.PersistenceWarning{Op: "save", Err: err}).
			Warn("ledger save failed, memory is ahead of disk until the next successful save")
		return
	}
	w.stats.Written++
	w.log.WithField("written", w.stats.Written).Debug("ledger saved")
}

// Wait blocks until nothing is pending or in flight, or ctx is done.
func (w *Writer) Wait(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ledger writer: %w", ctx.Err())
	}
}

// Close drains pending work, then stops the goroutine. Requests after
// Close are dropped.
func (w *Writer) Close(ctx context.Context) error {
	w.Start()
	waitErr := w.Wait(ctx)

	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.stop)
	})

	select {
	case <-w.done:
		return waitErr
	case <-ctx.Done():
		return fmt.Errorf("stopping ledger writer: %w", ctx.Err())
	}
}

// Stats returns a copy of the counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
