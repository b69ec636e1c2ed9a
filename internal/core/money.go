// Package core provides the domain types of the contribution engine.
//
// This file contains the Money value: integer minor units internally, with
// conversion to and from decimal major units for transport. Conversions
// round half to even at two decimal places.
package core

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// minorExp is the exponent of the minor unit (cents).
const minorExp = -2

// Money is an amount in minor units (cents). Equality and summation are
// defined on Cents only.
type Money struct {
	Cents int64
}

// NewMoney returns a Money of the given minor units.
func NewMoney(cents int64) Money {
	return Money{Cents: cents}
}

// ParseMoney converts a decimal string in major units to Money.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Extra
// fractional digits are rounded half to even:
//
//	ParseMoney("12.345") -> 1234 (ties to even)
//	ParseMoney("12.355") -> 1236
//	ParseMoney("12.346") -> 1235
//
// Negative values are rejected; zero is allowed.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.Sign() < 0 {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d), nil
}

// MoneyFromDecimal rounds a major-unit decimal half to even at two places.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.RoundBank(-minorExp).Shift(-minorExp).IntPart()}
}

// Decimal returns the value in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, minorExp)
}

// String formats the value in major units with two decimals.
func (m Money) String() string {
	return m.Decimal().StringFixed(-minorExp)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

func (m Money) IsPositive() bool {
	return m.Cents > 0
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Sum adds all values.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MarshalJSON encodes the amount as a bare decimal number, e.g. 12.34.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	data = bytes.Trim(data, `"`)
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return ErrInvalidAmount
	}
	*m = MoneyFromDecimal(d)
	return nil
}
