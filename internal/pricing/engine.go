package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/voucher"
)

var (
	// ErrInvalidLine is returned when a line item carries a negative price, a negative VAT rate or a quantity below one.
	ErrInvalidLine = errors.New("invalid line item")
	// ErrInvalidSettings is returned when the pricing settings carry negative values.
	ErrInvalidSettings = errors.New("invalid pricing settings")
)

// LineItem describes a cart line as of calculation time.
type LineItem struct {
	ProductID uuid.UUID
	Name      string
	UnitPrice Money
	// VatRate is a percentage. Zero means the product has no rate of its own.
	VatRate  Money
	Quantity int
}

// Settings is the site-wide pricing configuration.
type Settings struct {
	VatRate               Money
	ShippingFee           Money
	FreeShippingThreshold *Money
}

// DefaultSettings returns the configuration used when none has been stored.
func DefaultSettings() Settings {
	return Settings{
		VatRate:     MustMoney("20"),
		ShippingFee: Zero,
	}
}

// Validate rejects negative configuration values.
func (s Settings) Validate() error {
	if s.VatRate.IsNegative() {
		return fmt.Errorf("vat rate must not be negative: %w", ErrInvalidSettings)
	}
	if s.ShippingFee.IsNegative() {
		return fmt.Errorf("shipping fee must not be negative: %w", ErrInvalidSettings)
	}
	if s.FreeShippingThreshold != nil && s.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("free shipping threshold must not be negative: %w", ErrInvalidSettings)
	}
	return nil
}

// Line holds the figures derived for a single line item.
type Line struct {
	LineItem
	EffectiveVatRate Money
	UnitVat          Money
	UnitPriceWithVat Money
	Subtotal         Money
	Vat              Money
	Total            Money
}

// Totals aggregates every computed pricing component for a cart.
type Totals struct {
	Lines             []Line
	Subtotal          Money
	TotalVat          Money
	TaxInclusiveTotal Money
	Discount          Money
	Shipping          Money
	GrandTotal        Money
	FreeShipping      bool
	CouponCode        string
	CouponApplied     bool
	// CouponRejection explains why an attached coupon contributed no discount.
	CouponRejection error
}

// ItemCount returns the total quantity across all lines.
func (t Totals) ItemCount() int {
	var n int
	for _, l := range t.Lines {
		n += l.Quantity
	}
	return n
}

// Calculate derives cart totals from line items, site settings and an optional coupon.
// The coupon is re-validated against now. Values are exact; no rounding takes place.
func Calculate(items []LineItem, settings Settings, coupon *voucher.Coupon, now time.Time) (Totals, error) {
	if err := settings.Validate(); err != nil {
		return Totals{}, err
	}
	totals := Totals{
		Lines:    make([]Line, 0, len(items)),
		Subtotal: Zero,
		TotalVat: Zero,
		Discount: Zero,
		Shipping: Zero,
	}
	for i, it := range items {
		if err := checkLine(it); err != nil {
			return Totals{}, fmt.Errorf("line %d (product %s): %w", i, it.ProductID, err)
		}
		rate := settings.VatRate
		if it.VatRate.IsPositive() {
			rate = it.VatRate
		}
		qty := decimal.NewFromInt(int64(it.Quantity))
		unitVat := Percent(it.UnitPrice, rate)
		line := Line{
			LineItem:         it,
			EffectiveVatRate: rate,
			UnitVat:          unitVat,
			UnitPriceWithVat: it.UnitPrice.Add(unitVat),
			Subtotal:         it.UnitPrice.Mul(qty),
			Vat:              unitVat.Mul(qty),
		}
		line.Total = line.Subtotal.Add(line.Vat)
		totals.Lines = append(totals.Lines, line)
		totals.Subtotal = totals.Subtotal.Add(line.Subtotal)
		totals.TotalVat = totals.TotalVat.Add(line.Vat)
	}
	totals.TaxInclusiveTotal = totals.Subtotal.Add(totals.TotalVat)

	if coupon != nil {
		totals.CouponCode = coupon.Code
		if err := coupon.Validate(now, totals.TaxInclusiveTotal); err != nil {
			totals.CouponRejection = err
		} else {
			totals.Discount = Clamp(coupon.Discount(totals.Subtotal), Zero, totals.Subtotal)
			totals.CouponApplied = true
		}
	}

	switch {
	case len(totals.Lines) == 0:
		totals.Shipping = Zero
	case settings.FreeShippingThreshold != nil && totals.TaxInclusiveTotal.GreaterThanOrEqual(*settings.FreeShippingThreshold):
		totals.Shipping = Zero
		totals.FreeShipping = true
	default:
		totals.Shipping = settings.ShippingFee
	}

	grand := totals.TaxInclusiveTotal.Add(totals.Shipping).Sub(totals.Discount)
	if grand.IsNegative() {
		grand = Zero
	}
	totals.GrandTotal = grand
	return totals, nil
}

func checkLine(it LineItem) error {
	if it.UnitPrice.IsNegative() {
		return fmt.Errorf("negative unit price: %w", ErrInvalidLine)
	}
	if it.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1: %w", ErrInvalidLine)
	}
	if it.VatRate.IsNegative() {
		return fmt.Errorf("negative vat rate: %w", ErrInvalidLine)
	}
	return nil
}
