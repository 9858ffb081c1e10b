package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-checkout/internal/app"
	"github.com/noah-isme/toko-checkout/internal/audit"
	"github.com/noah-isme/toko-checkout/internal/auth"
	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/health"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/ratelimit"
	"github.com/noah-isme/toko-checkout/internal/security"
	"github.com/noah-isme/toko-checkout/internal/settings"
	"github.com/noah-isme/toko-checkout/internal/user"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "checkout")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "toko-checkout-api",
			ServiceVersion: envOrDefault("APP_VERSION", "dev"),
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio:  envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	deps, err := app.Open(ctx, cfg, logger, app.Options{ApplicationName: "toko-checkout-api", RedisMetrics: metricsEnabled})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	svcs := app.NewServices(deps, cfg)

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: cfg.JWTClockSkew,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Verifier: verifier, AccessCookie: cfg.AccessCookie}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	couponLimiter, err := ratelimit.NewRedisLimiter(deps.Redis, "ratelimit:coupon", cfg.CouponRateWindow, cfg.CouponRateMax)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise coupon rate limiter")
	}
	couponLimit := ratelimit.Handler{
		Limiter: couponLimiter,
		Key:     ratelimit.CallerKey("coupon"),
		OnError: func(err error) { logger.Warn().Err(err).Msg("coupon rate limiter unavailable") },
	}

	settingsHandler := &settings.Handler{Provider: svcs.Settings}
	voucherHandler := &voucher.Handler{Svc: svcs.Coupons}
	cartHandler := &cart.Handler{Svc: svcs.Carts}
	addressHandler := &user.Handler{Service: svcs.Addresses}
	checkoutHandler := &checkout.Handler{Svc: svcs.Checkout}
	orderHandler := &order.Handler{Svc: svcs.Orders}
	orderAdmin := &order.AdminHandler{Svc: svcs.Orders}
	paymentHandler := &payment.Handler{Svc: svcs.Payments}
	paymentWebhook := payment.Webhook{Svc: svcs.Payments, Replay: deps.Redis, ReplayTTL: cfg.WebhookReplayTTL}

	auditService := &audit.Service{
		Store:        deps.Store.Queries,
		Enabled:      envBool("AUDIT_ENABLED", true),
		SamplingRate: envFloat("AUDIT_SAMPLING_RATE", 1),
	}
	auditRecorder := audit.HTTPRecorder{Service: auditService, Logger: obs.Component(logger, "audit")}
	auditHandler := audit.Handler{Store: deps.Store.Queries}
	audited := func(action, resource, param string) func(http.Handler) http.Handler {
		return auditRecorder.Middleware(audit.HTTPConfig{Action: action, ResourceType: resource, ResourceIDParam: param})
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		EnableHSTS:            envBool("SECURE_HSTS", cfg.AppEnv == "production"),
		HSTSIncludeSubdomains: envBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", false),
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token", cart.AnonHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: deps.Pool, redis: deps.Redis},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		Providers:    app.ProviderNames(svcs.Payments.Providers),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(security.BodyLimit{Max: int64(envInt("HTTP_MAX_BODY_BYTES", 1<<20))}.Middleware)

		api.Post("/webhooks/payment/{provider}", paymentWebhook.Handle)

		api.Group(func(v chi.Router) {
			v.Use(security.CSRF{SessionCookie: cfg.AccessCookie}.Middleware)
			v.Use(authMiddleware.Authenticate)

			v.Get("/settings/pricing", settingsHandler.Get)

			v.Route("/cart", func(c chi.Router) {
				c.Use(cart.AnonIDMiddleware)
				c.Get("/", cartHandler.Get)
				c.Post("/items", cartHandler.AddItem)
				c.Patch("/items/{productId}", cartHandler.UpdateItem)
				c.Delete("/items/{productId}", cartHandler.RemoveItem)
				c.With(couponLimit.Middleware).Post("/coupon", cartHandler.ApplyCoupon)
				c.Delete("/coupon", cartHandler.RemoveCoupon)
				c.With(authMiddleware.RequireAuth, idem.Middleware).Post("/merge", cartHandler.Merge)
			})

			v.With(authMiddleware.RequireAuth, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)

			v.Group(func(authR chi.Router) {
				authR.Use(authMiddleware.RequireAuth)
				authR.Get("/orders", orderHandler.List)
				authR.Get("/orders/{id}", orderHandler.Get)
				authR.With(idem.Middleware).Post("/payments/{orderId}/intent", paymentHandler.Intent)

				authR.Route("/users/me/addresses", func(a chi.Router) {
					a.Get("/", addressHandler.List)
					a.Post("/", addressHandler.Create)
					a.Delete("/{id}", addressHandler.Delete)
				})
			})

			v.Route("/admin", func(admin chi.Router) {
				admin.Use(authMiddleware.RequireRole("admin"))
				admin.With(audited("settings.pricing.update", "settings", "")).Put("/settings/pricing", settingsHandler.Update)
				admin.Get("/coupons", voucherHandler.List)
				admin.With(audited("coupon.create", "coupon", "")).Post("/coupons", voucherHandler.Create)
				admin.With(audited("coupon.update", "coupon", "code")).Put("/coupons/{code}", voucherHandler.Update)
				admin.With(audited("coupon.delete", "coupon", "code")).Delete("/coupons/{code}", voucherHandler.Delete)
				admin.Get("/orders/{id}", orderAdmin.Get)
				admin.With(audited("order.status.update", "order", "id")).Patch("/orders/{id}/status", orderAdmin.PatchStatus)
				admin.With(audited("order.shipping_note.update", "order", "id")).Patch("/orders/{id}/shipping-note", orderAdmin.PatchShippingNote)
				admin.Get("/audit-logs", auditHandler.List)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		health.SetReady(false)
		logger.Info().Msg("server draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Strs("payment_providers", healthHandler.Providers).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
