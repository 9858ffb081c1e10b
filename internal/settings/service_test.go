package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

type fakeQueries struct {
	row     *db.SiteSettings
	reads   int
	ensures int
}

func (f *fakeQueries) GetSiteSettings(ctx context.Context) (db.SiteSettings, error) {
	f.reads++
	if f.row == nil {
		return db.SiteSettings{}, pgx.ErrNoRows
	}
	return *f.row, nil
}

func (f *fakeQueries) EnsureSiteSettings(ctx context.Context, arg db.SiteSettingsParams) (db.SiteSettings, error) {
	f.ensures++
	if f.row == nil {
		f.row = &db.SiteSettings{VatRate: arg.VatRate, ShippingFee: arg.ShippingFee, FreeShippingThreshold: arg.FreeShippingThreshold}
	}
	return *f.row, nil
}

func (f *fakeQueries) UpsertSiteSettings(ctx context.Context, arg db.SiteSettingsParams) (db.SiteSettings, error) {
	f.row = &db.SiteSettings{VatRate: arg.VatRate, ShippingFee: arg.ShippingFee, FreeShippingThreshold: arg.FreeShippingThreshold}
	return *f.row, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestProviderCreatesDefaultsLazily(t *testing.T) {
	q := &fakeQueries{}
	p := &Provider{Q: q}
	s, err := p.GetPricingSettings(context.Background())
	require.NoError(t, err)
	require.True(t, s.VatRate.Equal(decimal.NewFromInt(20)))
	require.True(t, s.ShippingFee.IsZero())
	require.Nil(t, s.FreeShippingThreshold)
	require.Equal(t, 1, q.ensures)

	_, err = p.GetPricingSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, q.ensures)
}

func TestProviderCachesAndInvalidates(t *testing.T) {
	threshold := decimal.NewFromInt(250)
	q := &fakeQueries{row: &db.SiteSettings{
		VatRate:               decimal.NewFromInt(18),
		ShippingFee:           decimal.RequireFromString("30.00"),
		FreeShippingThreshold: decimal.NullDecimal{Decimal: threshold, Valid: true},
	}}
	p := &Provider{Q: q, Cache: NewCache(newRedis(t), time.Minute)}
	ctx := context.Background()

	first, err := p.GetPricingSettings(ctx)
	require.NoError(t, err)
	second, err := p.GetPricingSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, q.reads)
	require.True(t, second.VatRate.Equal(first.VatRate))
	require.NotNil(t, second.FreeShippingThreshold)
	require.True(t, second.FreeShippingThreshold.Equal(threshold))

	_, err = p.Update(ctx, pricing.Settings{VatRate: decimal.NewFromInt(20), ShippingFee: decimal.NewFromInt(15)})
	require.NoError(t, err)
	third, err := p.GetPricingSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, q.reads)
	require.True(t, third.ShippingFee.Equal(decimal.NewFromInt(15)))
	require.Nil(t, third.FreeShippingThreshold)
}

func TestProviderRejectsNegativeSettings(t *testing.T) {
	p := &Provider{Q: &fakeQueries{}}
	_, err := p.Update(context.Background(), pricing.Settings{VatRate: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, pricing.ErrInvalidSettings)
}

func TestHandlerUpdateAndGet(t *testing.T) {
	h := &Handler{Provider: &Provider{Q: &fakeQueries{}}}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings/pricing",
		strings.NewReader(`{"vatRate":"18","shippingFee":"30","freeShippingThreshold":"250"}`))
	rr := httptest.NewRecorder()
	h.Update(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Get(rr, httptest.NewRequest(http.MethodGet, "/api/v1/settings/pricing", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data settingsView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "18", body.Data.VatRate)
	require.Equal(t, "30.00", body.Data.ShippingFee)
	require.NotNil(t, body.Data.FreeShippingThreshold)
	require.Equal(t, "250.00", *body.Data.FreeShippingThreshold)

	rr = httptest.NewRecorder()
	h.Update(rr, httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"vatRate":"-2","shippingFee":"0"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
