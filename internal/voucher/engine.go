package voucher

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotEligible is returned when the coupon cannot be applied to the provided context.
	ErrNotEligible = errors.New("coupon not eligible")
	// ErrVoucherInactive is returned when the coupon has been switched off by an administrator.
	ErrVoucherInactive = errors.New("coupon not active")
	// ErrVoucherNotStarted is returned when the coupon validity window has not opened yet.
	ErrVoucherNotStarted = errors.New("coupon not started")
	// ErrVoucherExpired is returned when the coupon has already expired.
	ErrVoucherExpired = errors.New("coupon expired")
	// ErrMinimumSpendUnmet indicates the cart total did not meet the coupon requirement.
	ErrMinimumSpendUnmet = errors.New("coupon minimum cart amount not met")
)

// Kind enumerates the supported discount types.
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

// ParseKind normalises a discount type string.
func ParseKind(value string) (Kind, error) {
	switch {
	case strings.EqualFold(value, "percentage"), strings.EqualFold(value, "percent"):
		return KindPercentage, nil
	case strings.EqualFold(value, "fixed"), strings.EqualFold(value, "amount"):
		return KindFixed, nil
	default:
		return "", fmt.Errorf("unknown discount type %q", value)
	}
}

// Coupon captures a discount definition and its validity constraints.
type Coupon struct {
	ID            uuid.UUID
	Code          string
	Kind          Kind
	Value         decimal.Decimal
	MinCartAmount *decimal.Decimal
	StartDate     time.Time
	EndDate       time.Time
	Active        bool
}

// MinimumSpendError reports the minimum the cart failed to reach.
type MinimumSpendError struct {
	Minimum decimal.Decimal
}

func (e *MinimumSpendError) Error() string {
	return fmt.Sprintf("minimum cart amount %s not met", e.Minimum.StringFixed(2))
}

// Unwrap lets errors.Is match ErrMinimumSpendUnmet.
func (e *MinimumSpendError) Unwrap() error { return ErrMinimumSpendUnmet }

// Validate reports the first reason the coupon cannot apply at now to a cart whose
// VAT-inclusive subtotal is taxInclusive. Both window bounds are inclusive.
func (c Coupon) Validate(now time.Time, taxInclusive decimal.Decimal) error {
	if !c.Active {
		return ErrVoucherInactive
	}
	if now.Before(c.StartDate) {
		return ErrVoucherNotStarted
	}
	if now.After(c.EndDate) {
		return ErrVoucherExpired
	}
	if c.MinCartAmount != nil && taxInclusive.LessThan(*c.MinCartAmount) {
		return &MinimumSpendError{Minimum: *c.MinCartAmount}
	}
	return nil
}

// IsEligible reports whether the coupon applies at now to the given VAT-inclusive subtotal.
func IsEligible(c Coupon, taxInclusive decimal.Decimal, now time.Time) bool {
	return c.Validate(now, taxInclusive) == nil
}

// Discount computes the reduction for a VAT-exclusive subtotal, clamped to [0, subtotal].
// Eligibility is not checked here.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch c.Kind {
	case KindPercentage:
		discount = subtotal.Mul(c.Value).Shift(-2)
	default:
		discount = c.Value
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// CheckDefinition validates a coupon prior to persisting it.
func (c Coupon) CheckDefinition() error {
	if strings.TrimSpace(c.Code) == "" {
		return errors.New("code is required")
	}
	if c.Kind != KindPercentage && c.Kind != KindFixed {
		return fmt.Errorf("unknown discount type %q", c.Kind)
	}
	if c.Value.IsNegative() {
		return errors.New("value must not be negative")
	}
	if c.Kind == KindPercentage && c.Value.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("percentage must not exceed 100")
	}
	if c.MinCartAmount != nil && c.MinCartAmount.IsNegative() {
		return errors.New("minimum cart amount must not be negative")
	}
	if c.EndDate.Before(c.StartDate) {
		return errors.New("end date precedes start date")
	}
	return nil
}

// Reason returns a short machine-readable label for a validation error.
func Reason(err error) string {
	switch {
	case err == nil:
		return "eligible"
	case errors.Is(err, ErrVoucherInactive):
		return "inactive"
	case errors.Is(err, ErrVoucherNotStarted):
		return "not_started"
	case errors.Is(err, ErrVoucherExpired):
		return "expired"
	case errors.Is(err, ErrMinimumSpendUnmet):
		return "minimum_unmet"
	case errors.Is(err, ErrNotEligible):
		return "not_found"
	default:
		return "error"
	}
}
