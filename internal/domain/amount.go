package domain

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// Bounds on accepted amounts. Anything wider is treated as malformed.
const (
	maxAmountScale       = 12
	maxAmountIntegerSize = 15
	maxAmountExponent    = 2 * maxAmountScale
)

// Amount is a non-negative money value. Malformed, negative or out of range
// input decodes to zero instead of failing.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	if d.IsNegative() {
		return Amount{}
	}
	exp := int(d.Exponent())
	if exp > maxAmountExponent || exp < -maxAmountExponent {
		return Amount{}
	}
	if exp < -maxAmountScale {
		d = d.Round(maxAmountScale)
	}
	if d.IsZero() {
		return Amount{}
	}
	if d.NumDigits()+int(d.Exponent()) > maxAmountIntegerSize {
		return Amount{}
	}
	return Amount{Decimal: d}
}

func AmountFromFloat(f float64) Amount {
	return NewAmount(decimal.NewFromFloat(f))
}

// ParseAmount coerces free-form user input into an Amount.
func ParseAmount(raw string) Amount {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}
	}
	return NewAmount(d)
}

func (a Amount) Add(other Amount) Amount {
	return Amount{Decimal: a.Decimal.Add(other.Decimal)}
}

// Format renders the amount with two decimals, e.g. "12.50".
func (a Amount) Format() string {
	return a.Decimal.StringFixed(2)
}

func (a Amount) Equal(other Amount) bool {
	return a.Decimal.Equal(other.Decimal)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if raw == "" || raw == "null" {
		*a = Amount{}
		return nil
	}
	*a = ParseAmount(raw)
	return nil
}
