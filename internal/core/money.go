// Package core holds the domain model shared by the stores, the ledger and the engine.
//
// Amounts travel as decimal strings and are parsed with shopspring/decimal; nothing in this
// package converts money through float64.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a non-negative decimal string. Both "12.34" and "12,34" are accepted.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// SignedAmount returns +amount for income categories and -amount otherwise.
func SignedAmount(t Transaction, c Category) (decimal.Decimal, error) {
	amount, err := ParseAmount(t.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	if c.Direction() == Income {
		return amount, nil
	}
	return amount.Neg(), nil
}

// FormatAmount renders a decimal the way amounts are stored: two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
