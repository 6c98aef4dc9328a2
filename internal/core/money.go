// Package core provides the ledger domain: money, dates, transaction records
// and the ordered ledger that owns them.
//
// This file contains money parsing and formatting. Amounts are kept as
// integer cents; shopspring/decimal is only used at the string boundary.
package core

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Money is an amount with two decimal places, stored as cents.
// Deltas and signed ledger amounts may be negative.
type Money struct {
	Cents int64
}

// MaxAmount is the largest balance an account may hold (9 integer digits).
var MaxAmount = Money{Cents: 999_999_999_00}

var maxParsable = decimal.New(math.MaxInt64/100, 0)

// Cents builds a Money from a cent count.
func Cents(c int64) Money { return Money{Cents: c} }

// FromDecimal converts d to Money, truncating toward zero past two decimals.
func FromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Shift(2).Truncate(0).IntPart()}
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// GreaterThan reports whether m > o.
func (m Money) GreaterThan(o Money) bool { return m.Cents > o.Cents }

// Decimal returns the exact decimal value of m.
func (m Money) Decimal() decimal.Decimal { return decimal.New(m.Cents, -2) }

// String formats m with exactly two decimals, e.g. "500.00".
func (m Money) String() string { return m.Decimal().StringFixed(2) }

// Validate rejects zero and negative amounts.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ParseDecimalToCents converts a user-entered decimal string to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up on the third decimal place. Signs, exponents and zero are rejected.
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil
func ParseDecimalToCents(s string) (int64, error) {
	d, err := parseUnsignedDecimal(s)
	if err != nil {
		return 0, err
	}
	cents := d.Round(2).Shift(2).IntPart()
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseMoney parses a positive user-entered amount.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, fmt.Errorf("%q: %w", strings.TrimSpace(s), err)
	}
	return Money{Cents: cents}, nil
}

// ParseStoredMoney parses an amount read back from a storage table. Stored
// amounts are already truncated, so extra digits are truncated too and zero
// is accepted.
func ParseStoredMoney(s string) (Money, error) {
	d, err := parseUnsignedDecimal(s)
	if err != nil {
		return Money{}, fmt.Errorf("%q: %w", s, err)
	}
	return FromDecimal(d), nil
}

func parseUnsignedDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	dots := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
		case !unicode.IsDigit(r):
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if dots > 1 || s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.GreaterThan(maxParsable) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
