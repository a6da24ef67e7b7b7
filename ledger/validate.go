/*
validate.go - Input validation rules

PURPOSE:
  Pure predicates over raw operator strings. Each returns either the
  normalized value or a *ValidationError naming the first rule violated.
  Nothing here touches the store.

CHECK ORDER (first failure wins):
  Holder name:  required -> length -> charset
  Money input:  required -> numeric -> decimals -> min -> max

AMOUNT POLICIES:
  Creation deposits are always validated with ValidateMoneyInput.
  Deposit/withdraw/transfer amounts depend on the engine's AmountPolicy:
    PolicyLegacy  - ParseLenientAmount, non-numeric input becomes NaN
    PolicyStrict  - ValidateMoneyInput with TransactionRange
*/
package ledger

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const MaxHolderNameLength = 50

var (
	holderNamePattern = regexp.MustCompile(`^[A-Za-z \-]+$`)
	moneyPattern      = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)
)

// Range bounds an accepted money value, inclusive on both ends.
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

var (
	// CreationRange bounds the initial deposit of a new account.
	CreationRange = Range{Min: decimal.Zero, Max: decimal.NewFromInt(1_000_000)}

	// TransactionRange bounds post-creation amounts under PolicyStrict.
	TransactionRange = Range{Min: decimal.New(1, -2), Max: decimal.NewFromInt(1_000_000)}
)

// ValidateHolderName returns the trimmed name. The length limit applies to
// the input as given, surrounding whitespace included.
func ValidateHolderName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", &ValidationError{Field: "holder_name", Code: CodeRequired,
			Message: "Holder name is required"}
	}
	if utf8.RuneCountInString(raw) > MaxHolderNameLength {
		return "", &ValidationError{Field: "holder_name", Code: CodeTooLong,
			Message: fmt.Sprintf("Holder name must be %d characters or fewer", MaxHolderNameLength)}
	}
	if !holderNamePattern.MatchString(name) {
		return "", &ValidationError{Field: "holder_name", Code: CodeInvalidCharacters,
			Message: "Holder name may only contain letters, spaces and hyphens"}
	}
	return name, nil
}

// HolderIndex answers whether a holder name is already in use.
type HolderIndex interface {
	HasHolder(name string) bool
}

// ValidateDuplicateHolder rejects a name that is already present.
func ValidateDuplicateHolder(name string, existing HolderIndex) error {
	if existing.HasHolder(name) {
		return &ValidationError{Field: "holder_name", Code: CodeDuplicate,
			Message: fmt.Sprintf("Account holder %q already exists", name)}
	}
	return nil
}

// ValidateMoneyInput validates a money string against r and returns the
// exact decimal value. field names the input in the returned error.
func ValidateMoneyInput(field, raw string, r Range) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, &ValidationError{Field: field, Code: CodeRequired,
			Message: "Amount is required"}
	}
	if f, err := strconv.ParseFloat(s, 64); err != nil || math.IsNaN(f) {
		return decimal.Zero, &ValidationError{Field: field, Code: CodeInvalidNumber,
			Message: "Amount must be a valid number"}
	}
	if !moneyPattern.MatchString(s) {
		return decimal.Zero, &ValidationError{Field: field, Code: CodeTooManyDecimals,
			Message: "Amount can have at most 2 decimal places"}
	}
	// The pattern guarantees a plain decimal literal.
	d := decimal.RequireFromString(s)
	if d.LessThan(r.Min) {
		return decimal.Zero, &ValidationError{Field: field, Code: CodeTooLow,
			Message: fmt.Sprintf("Amount must be at least %s", r.Min.String())}
	}
	if d.GreaterThan(r.Max) {
		return decimal.Zero, &ValidationError{Field: field, Code: CodeTooHigh,
			Message: fmt.Sprintf("Amount cannot exceed %s", r.Max.String())}
	}
	return d, nil
}

// ParseLenientAmount parses an amount with no validation. Input that is not
// a float in full yields NaN, so "12abc" is NaN rather than 12; overflow
// yields ±Inf.
func ParseLenientAmount(raw string) Money {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Money(math.NaN())
	}
	return Money(f)
}

// AmountPolicy selects how post-creation amounts are checked.
type AmountPolicy string

const (
	PolicyLegacy AmountPolicy = "legacy"
	PolicyStrict AmountPolicy = "strict"
)

func (p AmountPolicy) Valid() bool {
	return p == PolicyLegacy || p == PolicyStrict
}

// parseAmount applies the policy to a deposit, withdrawal or transfer amount.
func (p AmountPolicy) parseAmount(raw string) (Money, error) {
	if p == PolicyStrict {
		d, err := ValidateMoneyInput("amount", raw, TransactionRange)
		if err != nil {
			return 0, err
		}
		return MoneyFromDecimal(d), nil
	}
	return ParseLenientAmount(raw), nil
}
