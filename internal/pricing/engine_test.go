package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/voucher"
)

func requireMoney(t *testing.T, want string, got Money) {
	t.Helper()
	require.Truef(t, MustMoney(want).Equal(got), "want %s, got %s", want, got.String())
}

func ptr(m Money) *Money { return &m }

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func activeCoupon(kind voucher.Kind, value string) *voucher.Coupon {
	return &voucher.Coupon{
		Code:      "SAVE10",
		Kind:      kind,
		Value:     MustMoney(value),
		StartDate: now.Add(-24 * time.Hour),
		EndDate:   now.Add(24 * time.Hour),
		Active:    true,
	}
}

func TestCalculateWorkedExample(t *testing.T) {
	items := []LineItem{
		{ProductID: uuid.New(), Name: "A", UnitPrice: MustMoney("100.00"), VatRate: MustMoney("20"), Quantity: 2},
		{ProductID: uuid.New(), Name: "B", UnitPrice: MustMoney("50.00"), VatRate: MustMoney("10"), Quantity: 1},
	}
	settings := Settings{VatRate: MustMoney("18"), ShippingFee: MustMoney("30.00"), FreeShippingThreshold: ptr(MustMoney("250.00"))}

	totals, err := Calculate(items, settings, activeCoupon(voucher.KindPercentage, "10"), now)
	require.NoError(t, err)

	requireMoney(t, "250.00", totals.Subtotal)
	requireMoney(t, "45.00", totals.TotalVat)
	requireMoney(t, "295.00", totals.TaxInclusiveTotal)
	requireMoney(t, "0", totals.Shipping)
	requireMoney(t, "25.00", totals.Discount)
	requireMoney(t, "270.00", totals.GrandTotal)
	require.True(t, totals.FreeShipping)
	require.True(t, totals.CouponApplied)
	require.NoError(t, totals.CouponRejection)

	require.Len(t, totals.Lines, 2)
	requireMoney(t, "20.00", totals.Lines[0].UnitVat)
	requireMoney(t, "120.00", totals.Lines[0].UnitPriceWithVat)
	requireMoney(t, "40.00", totals.Lines[0].Vat)
	requireMoney(t, "5.00", totals.Lines[1].UnitVat)
	require.Equal(t, 3, totals.ItemCount())
}

func TestCalculateFallsBackToSettingsRate(t *testing.T) {
	items := []LineItem{{ProductID: uuid.New(), UnitPrice: MustMoney("10"), Quantity: 3}}
	totals, err := Calculate(items, Settings{VatRate: MustMoney("18"), ShippingFee: MustMoney("5")}, nil, now)
	require.NoError(t, err)
	requireMoney(t, "18", totals.Lines[0].EffectiveVatRate)
	requireMoney(t, "5.4", totals.TotalVat)
	requireMoney(t, "5", totals.Shipping)
	requireMoney(t, "40.4", totals.GrandTotal)
}

func TestCalculateEmptyCart(t *testing.T) {
	totals, err := Calculate(nil, Settings{VatRate: MustMoney("20"), ShippingFee: MustMoney("30")}, nil, now)
	require.NoError(t, err)
	requireMoney(t, "0", totals.Subtotal)
	requireMoney(t, "0", totals.Shipping)
	requireMoney(t, "0", totals.GrandTotal)
	require.False(t, totals.FreeShipping)
}

func TestCalculateThresholdIsInclusive(t *testing.T) {
	items := []LineItem{{ProductID: uuid.New(), UnitPrice: MustMoney("100"), VatRate: MustMoney("20"), Quantity: 1}}
	settings := Settings{VatRate: MustMoney("20"), ShippingFee: MustMoney("30"), FreeShippingThreshold: ptr(MustMoney("120"))}
	totals, err := Calculate(items, settings, nil, now)
	require.NoError(t, err)
	requireMoney(t, "0", totals.Shipping)

	settings.FreeShippingThreshold = ptr(MustMoney("120.01"))
	totals, err = Calculate(items, settings, nil, now)
	require.NoError(t, err)
	requireMoney(t, "30", totals.Shipping)
	requireMoney(t, "150", totals.GrandTotal)
}

func TestCalculateFixedDiscountClampedToSubtotal(t *testing.T) {
	items := []LineItem{{ProductID: uuid.New(), UnitPrice: MustMoney("40"), VatRate: MustMoney("10"), Quantity: 1}}
	totals, err := Calculate(items, Settings{VatRate: MustMoney("20"), ShippingFee: MustMoney("15")}, activeCoupon(voucher.KindFixed, "500"), now)
	require.NoError(t, err)
	requireMoney(t, "40", totals.Discount)
	// 44 + 15 - 40
	requireMoney(t, "19", totals.GrandTotal)
}

func TestCalculateGrandTotalNeverNegative(t *testing.T) {
	items := []LineItem{{ProductID: uuid.New(), UnitPrice: MustMoney("0"), Quantity: 1}}
	totals, err := Calculate(items, Settings{VatRate: MustMoney("20")}, activeCoupon(voucher.KindFixed, "10"), now)
	require.NoError(t, err)
	requireMoney(t, "0", totals.Discount)
	require.False(t, totals.GrandTotal.IsNegative())
}

func TestCalculateIneligibleCouponContributesNothing(t *testing.T) {
	items := []LineItem{{ProductID: uuid.New(), UnitPrice: MustMoney("100"), VatRate: MustMoney("20"), Quantity: 1}}
	settings := Settings{VatRate: MustMoney("20"), ShippingFee: MustMoney("10")}

	expired := activeCoupon(voucher.KindPercentage, "10")
	expired.EndDate = now.Add(-time.Second)
	totals, err := Calculate(items, settings, expired, now)
	require.NoError(t, err)
	requireMoney(t, "0", totals.Discount)
	require.False(t, totals.CouponApplied)
	require.ErrorIs(t, totals.CouponRejection, voucher.ErrVoucherExpired)
	require.Equal(t, "SAVE10", totals.CouponCode)

	minimum := activeCoupon(voucher.KindPercentage, "10")
	minimum.MinCartAmount = ptr(MustMoney("120.01"))
	totals, err = Calculate(items, settings, minimum, now)
	require.NoError(t, err)
	requireMoney(t, "0", totals.Discount)
	require.ErrorIs(t, totals.CouponRejection, voucher.ErrMinimumSpendUnmet)

	// minimum is compared against the VAT-inclusive subtotal
	minimum.MinCartAmount = ptr(MustMoney("120"))
	totals, err = Calculate(items, settings, minimum, now)
	require.NoError(t, err)
	requireMoney(t, "10", totals.Discount)
}

func TestCalculateRejectsInvalidLines(t *testing.T) {
	settings := DefaultSettings()
	cases := map[string]LineItem{
		"negative price": {ProductID: uuid.New(), UnitPrice: MustMoney("-1"), Quantity: 1},
		"zero quantity":  {ProductID: uuid.New(), UnitPrice: MustMoney("1"), Quantity: 0},
		"negative rate":  {ProductID: uuid.New(), UnitPrice: MustMoney("1"), VatRate: MustMoney("-5"), Quantity: 1},
	}
	for name, item := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Calculate([]LineItem{{ProductID: uuid.New(), UnitPrice: MustMoney("5"), Quantity: 1}, item}, settings, nil, now)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidLine))
		})
	}
}

func TestCalculateRejectsNegativeSettings(t *testing.T) {
	_, err := Calculate(nil, Settings{VatRate: MustMoney("20"), ShippingFee: MustMoney("-1")}, nil, now)
	require.ErrorIs(t, err, ErrInvalidSettings)
}

func TestCalculateIsDeterministic(t *testing.T) {
	items := []LineItem{
		{ProductID: uuid.New(), UnitPrice: MustMoney("19.99"), VatRate: MustMoney("8"), Quantity: 7},
		{ProductID: uuid.New(), UnitPrice: MustMoney("0.333"), Quantity: 3},
	}
	settings := Settings{VatRate: MustMoney("18"), ShippingFee: MustMoney("12.50"), FreeShippingThreshold: ptr(MustMoney("1000"))}
	first, err := Calculate(items, settings, activeCoupon(voucher.KindPercentage, "7.5"), now)
	require.NoError(t, err)
	second, err := Calculate(items, settings, activeCoupon(voucher.KindPercentage, "7.5"), now)
	require.NoError(t, err)
	require.True(t, first.GrandTotal.Equal(second.GrandTotal))
	require.True(t, first.Subtotal.Add(first.TotalVat).Equal(first.TaxInclusiveTotal))
	require.True(t, first.Discount.LessThanOrEqual(first.Subtotal))
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	requireMoney(t, "20", s.VatRate)
	requireMoney(t, "0", s.ShippingFee)
	require.Nil(t, s.FreeShippingThreshold)
}
