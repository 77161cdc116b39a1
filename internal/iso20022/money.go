package iso20022

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUnknownCurrency   = errors.New("unknown currency")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrFractionalMinorUn = errors.New("amount is not a whole number of minor units")
)

// maxFractionalDigits is the fixed scale of every Money value in the engine.
const maxFractionalDigits = 4

// Money is a fixed-point amount with at most four fractional digits and an
// ISO 4217 currency. Negative amounts are invalid by construction.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney parses value into a Money, rejecting negatives, more than four
// fractional digits, and unknown currencies.
func NewMoney(value, currency string) (Money, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, fmt.Errorf("%w: parsing %q: %v", ErrInvalidAmount, value, err)
	}
	return NewMoneyFromDecimal(amount, currency)
}

// NewMoneyFromDecimal validates an already-parsed decimal.
func NewMoneyFromDecimal(amount decimal.Decimal, currency string) (Money, error) {
	if amount.Exponent() < -maxFractionalDigits {
		return Money{}, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, amount.String(), maxFractionalDigits)
	}
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, amount.String())
	}

	ccy := strings.ToUpper(strings.TrimSpace(currency))
	if !IsValidCurrency(ccy) {
		return Money{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}

	return Money{Amount: amount, Currency: ccy}, nil
}

// Add returns m+other, failing on currency mismatch.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Cmp compares amounts: -1 when m < other, 0 when equal, +1 when m > other.
func (m Money) Cmp(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return m.Amount.Cmp(other.Amount), nil
}

func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

func (m Money) IsZero() bool { return m.Amount.IsZero() }

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// AmountString renders the amount at the engine's fixed four-digit scale.
func (m Money) AmountString() string { return m.Amount.StringFixed(maxFractionalDigits) }

// WireAmount renders the amount the way ISO amount elements carry it, scaled
// to the currency's minor-unit exponent (e.g. "1000.00" for ZAR, "1000" for JPY).
func (m Money) WireAmount() string {
	units, err := CurrencyMinorUnits(m.Currency)
	if err != nil {
		return m.AmountString()
	}
	return m.Amount.StringFixed(units)
}

// MinorUnits returns the amount as a whole count of the currency's minor
// units, e.g. 1000.50 ZAR → 100050. Fails when the amount has precision the
// currency cannot carry.
func (m Money) MinorUnits() (int64, error) {
	units, err := CurrencyMinorUnits(m.Currency)
	if err != nil {
		return 0, err
	}
	shifted := m.Amount.Shift(units)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s %s", ErrFractionalMinorUn, m.AmountString(), m.Currency)
	}
	return shifted.IntPart(), nil
}

func (m Money) String() string {
	return m.AmountString() + " " + m.Currency
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.AmountString(), Currency: m.Currency})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewMoney(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
