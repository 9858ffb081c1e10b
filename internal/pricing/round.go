package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Cents is the number of decimal places money is shown, stored and charged with.
const Cents = 2

var cent = decimal.New(1, -Cents)

// Rounded returns a copy of t with every money figure at cent precision.
//
// Each aggregate is rounded half away from zero on its own, so the grand total
// is the exact grand total to the cent. Line VAT is allocated in whole cents so
// that it sums to the rounded VAT total.
func (t Totals) Rounded() Totals {
	out := t
	out.Lines = make([]Line, len(t.Lines))
	copy(out.Lines, t.Lines)

	out.Subtotal = t.Subtotal.Round(Cents)
	out.TotalVat = t.TotalVat.Round(Cents)
	out.Discount = t.Discount.Round(Cents)
	out.Shipping = t.Shipping.Round(Cents)
	out.TaxInclusiveTotal = t.TaxInclusiveTotal.Round(Cents)
	out.GrandTotal = t.GrandTotal.Round(Cents)

	vats := make([]Money, len(t.Lines))
	for i, l := range t.Lines {
		vats[i] = l.Vat
	}
	vats = allocate(vats, out.TotalVat)
	for i := range out.Lines {
		l := &out.Lines[i]
		l.UnitPrice = l.UnitPrice.Round(Cents)
		l.UnitVat = l.UnitVat.Round(Cents)
		l.UnitPriceWithVat = l.UnitPriceWithVat.Round(Cents)
		l.Subtotal = l.Subtotal.Round(Cents)
		l.Vat = vats[i]
		l.Total = l.Subtotal.Add(l.Vat)
	}
	return out
}

// allocate truncates each non-negative share to whole cents and hands the
// remaining cents to the shares with the largest truncated remainder.
func allocate(shares []Money, total Money) []Money {
	out := make([]Money, len(shares))
	if len(shares) == 0 {
		return out
	}
	type rem struct {
		idx  int
		frac Money
	}
	rems := make([]rem, len(shares))
	sum := Zero
	for i, s := range shares {
		out[i] = s.Truncate(Cents)
		sum = sum.Add(out[i])
		rems[i] = rem{idx: i, frac: s.Sub(out[i])}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac.GreaterThan(rems[b].frac) })
	left := total.Sub(sum).Div(cent).IntPart()
	for i := 0; left > 0; i = (i + 1) % len(rems) {
		out[rems[i].idx] = out[rems[i].idx].Add(cent)
		left--
	}
	return out
}
