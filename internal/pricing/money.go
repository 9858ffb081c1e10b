package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents an exact decimal monetary value in the store currency.
type Money = decimal.Decimal

// Zero is the additive identity for Money.
var Zero = decimal.Zero

// ParseMoney parses a decimal string such as "100.00" into Money.
func ParseMoney(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Zero, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return d, nil
}

// MustMoney parses value and panics on failure. Intended for constants and tests.
func MustMoney(value string) Money {
	d, err := ParseMoney(value)
	if err != nil {
		panic(err)
	}
	return d
}

// Percent returns amount × rate / 100 without rounding.
func Percent(amount, rate Money) Money {
	return amount.Mul(rate).Shift(-2)
}

// Clamp bounds v to the inclusive range [lo, hi].
func Clamp(v, lo, hi Money) Money {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
