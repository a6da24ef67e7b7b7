/*
main.go - Application entry point

PURPOSE:
  Starts the interactive account ledger. Wires configuration, logging,
  the persistence backend, the background writer and the engine, then
  hands the terminal to the menu loop.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML, .env, environment, flags)
  2. Build the logger (stderr)
  3. Open the persistence backend (JSON file or SQLite)
  4. Start the background writer
  5. Load the ledger and run the menu on stdin/stdout

SHUTDOWN:
  On option 9, end of input, or SIGINT/SIGTERM:
  1. Stop the menu
  2. Drain pending saves (bounded by twice the save timeout)
  3. Close the backend
  4. Exit

EXAMPLES:
  # Default: ./ledger.json
  ./ledger

  # SQLite backend with strict amount validation
  ./ledger -backend=sqlite -data=./ledger.db -policy=strict

  # Debug logging as JSON
  LEDGER_LOG_LEVEL=debug ./ledger -log-format=json 2>ledger.log

SEE ALSO:
  - config/config.go: all flags and environment variables
  - cli/session.go: menu loop
  - flush/writer.go: background saves
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/warp/ledger/cli"
	"github.com/warp/ledger/config"
	"github.com/warp/ledger/flush"
	"github.com/warp/ledger/ledger"
	"github.com/warp/ledger/store/jsonfile"
	"github.com/warp/ledger/store/sqlite"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger: %v\n", err)
		return 2
	}

	log, err := config.NewLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger: %v\n", err)
		return 2
	}

	persister, closeStore, err := openPersister(cfg)
	if err != nil {
		log.WithError(err).Error("failed to open storage")
		return 1
	}
	defer closeStore()

	writer := flush.NewWriter(persister, flush.Policy(cfg.FlushPolicy),
		flush.WithLogger(log), flush.WithTimeout(cfg.SaveTimeout))
	writer.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := ledger.Open(ctx, persister, writer,
		ledger.WithPolicy(ledger.AmountPolicy(cfg.AmountPolicy)),
		ledger.WithLogger(log))
	if err != nil {
		log.WithError(err).Error("failed to load ledger")
		shutdown(writer, cfg, log)
		return 1
	}

	log.WithFields(logrus.Fields{
		"data":    cfg.DataFile,
		"backend": cfg.Backend,
		"policy":  cfg.AmountPolicy,
		"flush":   cfg.FlushPolicy,
	}).Info("ledger ready")

	err = cli.NewSession(engine, os.Stdin, os.Stdout, log).Run(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stdout, "\nInterrupted.")
		err = nil
	}

	shutdown(writer, cfg, log)
	if err != nil {
		log.WithError(err).Error("session ended with error")
		return 1
	}
	return 0
}

func openPersister(cfg config.Config) (ledger.Persister, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := sqlite.New(cfg.DataFile)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return jsonfile.New(cfg.DataFile), func() {}, nil
	}
}

func shutdown(w *flush.Writer, cfg config.Config, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.SaveTimeout)
	defer cancel()

	if err := w.Close(ctx); err != nil {
		log.WithError(err).Warn("pending saves did not finish")
	}
	stats := w.Stats()
	log.WithFields(logrus.Fields{
		"written": stats.Written,
		"failed":  stats.Failed,
		"dropped": stats.Dropped,
	}).Info("writer stopped")
}
