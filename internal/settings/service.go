// Package settings owns the site-wide pricing configuration.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

const cacheKey = "settings:pricing"

// Querier captures the database methods required by the settings provider.
type Querier interface {
	GetSiteSettings(ctx context.Context) (db.SiteSettings, error)
	EnsureSiteSettings(ctx context.Context, arg db.SiteSettingsParams) (db.SiteSettings, error)
	UpsertSiteSettings(ctx context.Context, arg db.SiteSettingsParams) (db.SiteSettings, error)
}

// Provider serves the pricing settings, creating the singleton row with
// defaults on first access.
type Provider struct {
	Q      Querier
	Cache  *Cache
	Logger zerolog.Logger
}

type cachedSettings struct {
	VatRate               decimal.Decimal  `json:"vatRate"`
	ShippingFee           decimal.Decimal  `json:"shippingFee"`
	FreeShippingThreshold *decimal.Decimal `json:"freeShippingThreshold"`
}

// GetPricingSettings returns the current settings.
func (p *Provider) GetPricingSettings(ctx context.Context) (pricing.Settings, error) {
	if p == nil || p.Q == nil {
		return pricing.Settings{}, errors.New("settings provider not configured")
	}
	var cached cachedSettings
	if ok, err := p.Cache.GetJSON(ctx, cacheKey, &cached); err != nil {
		p.Logger.Warn().Err(err).Msg("settings cache read failed")
	} else if ok {
		return pricing.Settings(cached), nil
	}

	row, err := p.Q.GetSiteSettings(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		row, err = p.Q.EnsureSiteSettings(ctx, toParams(pricing.DefaultSettings()))
	}
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("load pricing settings: %w", err)
	}
	s := fromModel(row)
	if err := p.Cache.SetJSON(ctx, cacheKey, cachedSettings(s)); err != nil {
		p.Logger.Warn().Err(err).Msg("settings cache write failed")
	}
	return s, nil
}

// Update stores new settings and invalidates the cache.
func (p *Provider) Update(ctx context.Context, s pricing.Settings) (pricing.Settings, error) {
	if p == nil || p.Q == nil {
		return pricing.Settings{}, errors.New("settings provider not configured")
	}
	if err := s.Validate(); err != nil {
		return pricing.Settings{}, common.BadRequest(err.Error(), err)
	}
	row, err := p.Q.UpsertSiteSettings(ctx, toParams(s))
	if err != nil {
		return pricing.Settings{}, err
	}
	if err := p.Cache.Delete(ctx, cacheKey); err != nil {
		p.Logger.Warn().Err(err).Msg("settings cache invalidation failed")
	}
	return fromModel(row), nil
}

func fromModel(row db.SiteSettings) pricing.Settings {
	s := pricing.Settings{VatRate: row.VatRate, ShippingFee: row.ShippingFee}
	if row.FreeShippingThreshold.Valid {
		t := row.FreeShippingThreshold.Decimal
		s.FreeShippingThreshold = &t
	}
	return s
}

func toParams(s pricing.Settings) db.SiteSettingsParams {
	p := db.SiteSettingsParams{VatRate: s.VatRate, ShippingFee: s.ShippingFee}
	if s.FreeShippingThreshold != nil {
		p.FreeShippingThreshold = decimal.NullDecimal{Decimal: *s.FreeShippingThreshold, Valid: true}
	}
	return p
}
