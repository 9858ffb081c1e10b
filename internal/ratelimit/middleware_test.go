package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/toko-checkout/internal/common"
)

type failingStore struct {
	limiter.Store
}

func (failingStore) Get(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errors.New("store down")
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	lim, err := NewRedisLimiter(client, "ratelimit", time.Minute, 1)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	handler := Handler{Limiter: lim, Key: CallerKey("coupon")}

	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/cart/coupon", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "u1"))
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rr2.Code)
	}
	if rr2.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected limit header: %q", rr2.Header().Get("X-RateLimit-Limit"))
	}

	other := httptest.NewRequest(http.MethodPost, "/cart/coupon", nil)
	other = other.WithContext(common.WithUserID(other.Context(), "u2"))
	rr3 := httptest.NewRecorder()
	counted.ServeHTTP(rr3, other)
	if rr3.Code != http.StatusOK {
		t.Fatalf("expected other caller allowed, got %d", rr3.Code)
	}
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	handler := Handler{
		Limiter: New(failingStore{memory.NewStore()}, time.Second, 1),
		Key:     func(*http.Request) string { return "err" },
	}

	called := false
	handler.OnError = func(error) { called = true }

	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	counted.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected handler to proceed on error, got %d", rr.Code)
	}
	if !called {
		t.Fatal("expected OnError callback to be invoked")
	}
}

func TestCallerKeyFallsBackToIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	if got := CallerKey("coupon")(req); got != "coupon:ip:10.1.2.3" {
		t.Fatalf("unexpected key %q", got)
	}
	req.Header.Set("X-Anon-ID", "guest-1")
	if got := CallerKey("coupon")(req); got != "coupon:anon:guest-1" {
		t.Fatalf("unexpected key %q", got)
	}
	if _, err := (*Limiter)(nil).Allow(context.Background(), "k"); err != nil {
		t.Fatalf("nil limiter should allow: %v", err)
	}
}
