package payment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// ErrNegativeAmount is returned when a negative amount reaches a provider boundary.
var ErrNegativeAmount = errors.New("payment amount must not be negative")

var hundred = decimal.NewFromInt(100)

// MinorUnits rounds m half away from zero to two places and returns it in
// minor currency units (kuruş for TRY).
func MinorUnits(m pricing.Money) (int64, error) {
	if m.IsNegative() {
		return 0, ErrNegativeAmount
	}
	minor := m.Round(2).Mul(hundred)
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s out of range", m.String())
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts a provider amount back into Money.
func FromMinorUnits(v int64) pricing.Money {
	return decimal.New(v, -2)
}

// DecimalString renders m rounded to two places for providers that take decimal strings.
func DecimalString(m pricing.Money) (string, error) {
	if m.IsNegative() {
		return "", ErrNegativeAmount
	}
	return m.StringFixed(2), nil
}
