package app

import (
	"sort"
	"time"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/notify"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/settings"
	"github.com/noah-isme/toko-checkout/internal/user"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

// Services is the domain service graph built on top of Dependencies.
type Services struct {
	Settings  *settings.Provider
	Coupons   *voucher.Service
	Carts     *cart.Service
	Addresses *user.Service
	Orders    *order.Service
	Checkout  *checkout.Service
	Payments  *payment.Service
	Bus       *events.Bus
}

// NewServices wires every domain service from deps and cfg.
func NewServices(deps *Dependencies, cfg *config.Config) *Services {
	queries := deps.Store.Queries
	logger := deps.Logger

	bus := &events.Bus{
		Store: queries,
		Notifiers: []events.Notifier{notify.OrderNotifier{
			Queue:       deps.Tasks,
			AdminEmails: cfg.NotifyAdminEmails,
			Logger:      obs.Component(logger, "notify"),
		}},
	}

	settingsProvider := &settings.Provider{
		Q:      queries,
		Cache:  settings.NewCache(deps.Redis, cfg.SettingsCacheTTL),
		Logger: obs.Component(logger, "settings"),
	}
	coupons := &voucher.Service{Q: queries}
	addresses := &user.Service{Q: queries}

	carts := &cart.Service{
		Q:        queries,
		Tx:       cart.StoreTx(deps.Store),
		Coupons:  coupons,
		Settings: settingsProvider,
		Locker: lock.Locker{
			R:            deps.Redis,
			RetryBackoff: 50 * time.Millisecond,
			MaxWait:      cfg.MergeLockWait,
		},
		LockTTL: cfg.MergeLockTTL,
		TTL:     cfg.CartTTL,
		Logger:  obs.Component(logger, "cart"),
	}

	return &Services{
		Settings:  settingsProvider,
		Coupons:   coupons,
		Carts:     carts,
		Addresses: addresses,
		Orders:    &order.Service{Q: queries, Events: bus, Logger: obs.Component(logger, "order")},
		Checkout: &checkout.Service{
			Carts:     carts,
			Addresses: addresses,
			Store:     deps.Store,
			Events:    bus,
			Currency:  cfg.Currency,
			Logger:    obs.Component(logger, "checkout"),
		},
		Payments: &payment.Service{
			Q:               queries,
			Providers:       PaymentProviders(cfg),
			Events:          bus,
			CallbackBaseURL: cfg.PaymentCallbackBaseURL,
			Logger:          obs.Component(logger, "payment"),
		},
		Bus: bus,
	}
}

// PaymentProviders returns the card providers whose credentials are configured,
// keyed by the payment method they serve.
func PaymentProviders(cfg *config.Config) map[order.PaymentMethod]payment.Provider {
	providers := map[order.PaymentMethod]payment.Provider{}
	if cfg.PayTR.Enabled() {
		providers[order.PaymentCreditCard] = payment.PayTR{
			MerchantID:   cfg.PayTR.MerchantID,
			MerchantKey:  cfg.PayTR.MerchantKey,
			MerchantSalt: cfg.PayTR.MerchantSalt,
			TestMode:     cfg.PayTR.TestMode,
			OkURL:        cfg.PayTR.OkURL,
			FailURL:      cfg.PayTR.FailURL,
		}
	}
	if cfg.Iyzico.Enabled() {
		providers[order.PaymentCreditCardIyzico] = payment.Iyzico{
			APIKey:    cfg.Iyzico.APIKey,
			SecretKey: cfg.Iyzico.SecretKey,
			BaseURL:   cfg.Iyzico.BaseURL,
		}
	}
	return providers
}

// ProviderNames lists the configured provider names in a stable order.
func ProviderNames(providers map[order.PaymentMethod]payment.Provider) []string {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}
