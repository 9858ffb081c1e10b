package pricing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/voucher"
)

func TestRoundedMatchesExactGrandToTheCent(t *testing.T) {
	cases := []struct {
		price, coupon, grand string
	}{
		{"1.19", "7.5", "1.31"},
		{"2.09", "12.5", "2.20"},
		{"2.99", "17.5", "3.00"},
	}
	settings := Settings{VatRate: MustMoney("18"), ShippingFee: Zero}
	for _, tc := range cases {
		items := []LineItem{{ProductID: uuid.New(), Name: "A", UnitPrice: MustMoney(tc.price), Quantity: 1}}
		exact, err := Calculate(items, settings, activeCoupon(voucher.KindPercentage, tc.coupon), now)
		require.NoError(t, err)

		r := exact.Rounded()
		requireMoney(t, tc.grand, r.GrandTotal)
		for _, m := range []Money{r.Subtotal, r.TotalVat, r.TaxInclusiveTotal, r.Discount, r.Shipping, r.GrandTotal} {
			require.True(t, m.Equal(m.Round(Cents)), "%s has sub-cent digits", m)
		}
		// exact figures stay untouched
		require.False(t, exact.GrandTotal.Equal(r.GrandTotal))
	}
}

func TestRoundedAllocatesLineVatToTotal(t *testing.T) {
	items := []LineItem{
		{ProductID: uuid.New(), Name: "A", UnitPrice: MustMoney("0.05"), Quantity: 1},
		{ProductID: uuid.New(), Name: "B", UnitPrice: MustMoney("0.05"), Quantity: 1},
		{ProductID: uuid.New(), Name: "C", UnitPrice: MustMoney("0.05"), Quantity: 1},
	}
	exact, err := Calculate(items, Settings{VatRate: MustMoney("10"), ShippingFee: Zero}, nil, now)
	require.NoError(t, err)
	requireMoney(t, "0.015", exact.TotalVat)

	r := exact.Rounded()
	requireMoney(t, "0.02", r.TotalVat)
	sum := Zero
	for _, l := range r.Lines {
		sum = sum.Add(l.Vat)
		requireMoney(t, l.Subtotal.Add(l.Vat).String(), l.Total)
	}
	requireMoney(t, "0.02", sum)
	// the input lines are not modified
	requireMoney(t, "0.005", exact.Lines[0].Vat)
}

func TestRoundedLeavesWorkedExampleAlone(t *testing.T) {
	items := []LineItem{
		{ProductID: uuid.New(), Name: "A", UnitPrice: MustMoney("100.00"), VatRate: MustMoney("20"), Quantity: 2},
		{ProductID: uuid.New(), Name: "B", UnitPrice: MustMoney("50.00"), VatRate: MustMoney("10"), Quantity: 1},
	}
	settings := Settings{VatRate: MustMoney("18"), ShippingFee: MustMoney("30.00"), FreeShippingThreshold: ptr(MustMoney("250.00"))}
	exact, err := Calculate(items, settings, activeCoupon(voucher.KindPercentage, "10"), now)
	require.NoError(t, err)

	r := exact.Rounded()
	requireMoney(t, "295.00", r.TaxInclusiveTotal)
	requireMoney(t, "25.00", r.Discount)
	requireMoney(t, "270.00", r.GrandTotal)
	requireMoney(t, "40.00", r.Lines[0].Vat)
	requireMoney(t, "5.00", r.Lines[1].Vat)
}
