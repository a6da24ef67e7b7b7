/*
session.go - Interactive menu loop

PURPOSE:
  Reads operator input line by line, calls the ledger engine with the raw
  strings, and renders results or errors. All formatting lives here; the
  engine never prints.

INPUT:
  Lines are read on a dedicated goroutine so a cancelled context (SIGINT)
  ends the session even while a prompt is waiting. EOF ends the session
  cleanly, as does option 9.

SEE ALSO:
  - format.go: money formatting and tables
  - ledger/engine.go: the operations behind each menu entry
*/
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/warp/ledger/ledger"
)

// Ledger is the engine surface the menu drives.
type Ledger interface {
	CreateAccount(holderName, depositRaw string) (string, error)
	Deposit(accountID, amountRaw string) (ledger.Transaction, error)
	Withdraw(accountID, amountRaw string) (ledger.Transaction, error)
	Transfer(fromID, toID, amountRaw string) (ledger.TransferResult, error)
	DeleteAccount(accountID string) error
	ViewAccount(accountID string) (ledger.AccountView, error)
	ListAccounts() ledger.ListResult
	TransactionHistory(accountID string) (ledger.HistoryResult, error)
}

// Session is one operator's menu loop.
type Session struct {
	ledger Ledger
	in     io.Reader
	out    io.Writer
	log    logrus.FieldLogger

	lines *lineReader
}

// NewSession builds a session. A nil logger discards log output.
func NewSession(l Ledger, in io.Reader, out io.Writer, log logrus.FieldLogger) *Session {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &Session{ledger: l, in: in, out: out, log: log}
}

type menuItem struct {
	label  string
	action func(s *Session, ctx context.Context) error
}

var menu = []menuItem{
	{"Create account", (*Session).createAccount},
	{"Deposit", (*Session).deposit},
	{"Withdraw", (*Session).withdraw},
	{"Transfer", (*Session).transfer},
	{"View account", (*Session).viewAccount},
	{"List accounts", (*Session).listAccounts},
	{"Transaction history", (*Session).history},
	{"Delete account", (*Session).deleteAccount},
	{"Exit", nil},
}

// Run shows the menu until the operator exits, input ends, or ctx is
// cancelled. It returns nil on a normal exit and ctx.Err() on cancellation.
func (s *Session) Run(ctx context.Context) error {
	s.lines = newLineReader(s.in)
	defer s.lines.stop()

	for {
		s.printMenu()
		choice, err := s.prompt(ctx, fmt.Sprintf("Choose an option (1-%d): ", len(menu)))
		if err != nil {
			return s.endOfInput(err)
		}

		item, ok := lookup(choice)
		if !ok {
			s.printf("Invalid option %q.\n", choice)
			continue
		}
		if item.action == nil {
			s.printf("Goodbye.\n")
			return nil
		}

		if err := item.action(s, ctx); err != nil {
			var ie *inputError
			if errors.As(err, &ie) {
				return s.endOfInput(ie.err)
			}
			s.showError(err)
		}
	}
}

func lookup(choice string) (menuItem, bool) {
	for i, item := range menu {
		if choice == fmt.Sprint(i+1) {
			return item, true
		}
	}
	return menuItem{}, false
}

func (s *Session) printMenu() {
	s.printf("\n=== Account Ledger ===\n")
	for i, item := range menu {
		s.printf("%d. %s\n", i+1, item.label)
	}
}

func (s *Session) endOfInput(err error) error {
	if errors.Is(err, io.EOF) {
		s.printf("\nGoodbye.\n")
		return nil
	}
	return err
}

func (s *Session) showError(err error) {
	if !ledger.IsClientError(err) {
		s.log.WithError(err).Error("operation failed")
	}
	s.printf("Error: %s\n", err)
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// =============================================================================
// ACTIONS
// =============================================================================

func (s *Session) createAccount(ctx context.Context) error {
	name, err := s.prompt(ctx, "Holder name: ")
	if err != nil {
		return err
	}
	deposit, err := s.prompt(ctx, "Initial deposit: ")
	if err != nil {
		return err
	}

	id, err := s.ledger.CreateAccount(name, deposit)
	if err != nil {
		return err
	}
	s.printf("Account %s created.\n", id)
	return nil
}

func (s *Session) deposit(ctx context.Context) error {
	id, amount, err := s.promptIDAndAmount(ctx, "Account ID: ")
	if err != nil {
		return err
	}
	tx, err := s.ledger.Deposit(id, amount)
	if err != nil {
		return err
	}
	s.printf("Deposited %s. New balance: %s\n", formatMoney(tx.Amount), formatMoney(tx.BalanceAfter))
	return nil
}

func (s *Session) withdraw(ctx context.Context) error {
	id, amount, err := s.promptIDAndAmount(ctx, "Account ID: ")
	if err != nil {
		return err
	}
	tx, err := s.ledger.Withdraw(id, amount)
	if err != nil {
		return err
	}
	s.printf("Withdrew %s. New balance: %s\n", formatMoney(tx.Amount), formatMoney(tx.BalanceAfter))
	return nil
}

func (s *Session) transfer(ctx context.Context) error {
	from, err := s.prompt(ctx, "From account ID: ")
	if err != nil {
		return err
	}
	to, amount, err := s.promptIDAndAmount(ctx, "To account ID: ")
	if err != nil {
		return err
	}

	res, err := s.ledger.Transfer(from, to, amount)
	if err != nil {
		return err
	}
	s.printf("Transferred %s from %s to %s.\n", formatMoney(res.Out.Amount), from, to)
	if res.DestinationCreated {
		s.printf("Account %s did not exist and was created.\n", to)
	}
	return nil
}

func (s *Session) viewAccount(ctx context.Context) error {
	id, err := s.prompt(ctx, "Account ID: ")
	if err != nil {
		return err
	}
	v, err := s.ledger.ViewAccount(id)
	if err != nil {
		return err
	}
	s.printf("Account ID:   %s\n", v.ID)
	s.printf("Holder:       %s\n", displayHolder(v.HolderName))
	s.printf("Balance:      %s\n", formatMoney(v.Balance))
	s.printf("Created:      %s\n", v.CreatedOn)
	s.printf("Transactions: %d\n", v.TransactionCount)
	return nil
}

func (s *Session) listAccounts(context.Context) error {
	res := s.ledger.ListAccounts()
	if res.Empty() {
		s.printf("No accounts found.\n")
		return nil
	}
	renderAccounts(s.out, res)
	return nil
}

func (s *Session) history(ctx context.Context) error {
	id, err := s.prompt(ctx, "Account ID: ")
	if err != nil {
		return err
	}
	h, err := s.ledger.TransactionHistory(id)
	if err != nil {
		return err
	}

	s.printf("History for %s (%s)\n", h.Account.ID, displayHolder(h.Account.HolderName))
	if h.Empty() {
		s.printf("No transactions recorded.\n")
		return nil
	}
	renderHistory(s.out, h.Transactions)

	if got, want := formatMoney(h.Replayed), formatMoney(h.Account.Balance); got != want {
		s.printf("Warning: history adds up to %s but the balance is %s.\n", got, want)
	}
	return nil
}

func (s *Session) deleteAccount(ctx context.Context) error {
	id, err := s.prompt(ctx, "Account ID: ")
	if err != nil {
		return err
	}
	v, err := s.ledger.ViewAccount(id)
	if err != nil {
		return err
	}

	answer, err := s.prompt(ctx, fmt.Sprintf("Delete %s (%s, balance %s)? (y/N): ",
		v.ID, displayHolder(v.HolderName), formatMoney(v.Balance)))
	if err != nil {
		return err
	}
	if a := strings.ToLower(answer); a != "y" && a != "yes" {
		s.printf("Deletion cancelled.\n")
		return nil
	}

	if err := s.ledger.DeleteAccount(v.ID); err != nil {
		return err
	}
	s.printf("Account %s deleted.\n", v.ID)
	return nil
}

// =============================================================================
// INPUT
// =============================================================================

// inputError marks a failure to read input, as opposed to a rejected
// operation. It ends the session.
type inputError struct{ err error }

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

// prompt writes label and returns the next line with surrounding spaces
// removed.
func (s *Session) prompt(ctx context.Context, label string) (string, error) {
	s.printf("%s", label)
	line, err := s.lines.next(ctx)
	if err != nil {
		return "", &inputError{err: err}
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) promptIDAndAmount(ctx context.Context, idLabel string) (string, string, error) {
	id, err := s.prompt(ctx, idLabel)
	if err != nil {
		return "", "", err
	}
	amount, err := s.prompt(ctx, "Amount: ")
	if err != nil {
		return "", "", err
	}
	return id, amount, nil
}

type lineReader struct {
	lines chan string
	done  chan struct{}
	err   error
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{lines: make(chan string), done: make(chan struct{})}
	go func() {
		defer close(lr.lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lr.lines <- scanner.Text():
			case <-lr.done:
				return
			}
		}
		lr.err = scanner.Err()
	}()
	return lr
}

func (lr *lineReader) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lr.lines:
		if !ok {
			if lr.err != nil {
				return "", lr.err
			}
			return "", io.EOF
		}
		return line, nil
	}
}

func (lr *lineReader) stop() { close(lr.done) }
