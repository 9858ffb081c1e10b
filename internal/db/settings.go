package db

import (
	"context"

	"github.com/shopspring/decimal"
)

const settingsColumns = `vat_rate, shipping_fee, free_shipping_threshold, updated_at`

func (q *Queries) GetSiteSettings(ctx context.Context) (SiteSettings, error) {
	var s SiteSettings
	err := q.db.QueryRow(ctx, `SELECT `+settingsColumns+` FROM site_settings WHERE id = 1`).
		Scan(&s.VatRate, &s.ShippingFee, &s.FreeShippingThreshold, &s.UpdatedAt)
	return s, err
}

type SiteSettingsParams struct {
	VatRate               decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.NullDecimal
}

// EnsureSiteSettings creates the singleton row with the given values unless it
// already exists, and returns whatever row is stored.
func (q *Queries) EnsureSiteSettings(ctx context.Context, arg SiteSettingsParams) (SiteSettings, error) {
	if _, err := q.db.Exec(ctx, `INSERT INTO site_settings (id, vat_rate, shipping_fee, free_shipping_threshold)
VALUES (1, $1, $2, $3) ON CONFLICT (id) DO NOTHING`, arg.VatRate, arg.ShippingFee, arg.FreeShippingThreshold); err != nil {
		return SiteSettings{}, err
	}
	return q.GetSiteSettings(ctx)
}

func (q *Queries) UpsertSiteSettings(ctx context.Context, arg SiteSettingsParams) (SiteSettings, error) {
	var s SiteSettings
	err := q.db.QueryRow(ctx, `INSERT INTO site_settings (id, vat_rate, shipping_fee, free_shipping_threshold)
VALUES (1, $1, $2, $3)
ON CONFLICT (id) DO UPDATE SET vat_rate = EXCLUDED.vat_rate, shipping_fee = EXCLUDED.shipping_fee,
    free_shipping_threshold = EXCLUDED.free_shipping_threshold, updated_at = now()
RETURNING `+settingsColumns, arg.VatRate, arg.ShippingFee, arg.FreeShippingThreshold).
		Scan(&s.VatRate, &s.ShippingFee, &s.FreeShippingThreshold, &s.UpdatedAt)
	return s, err
}
