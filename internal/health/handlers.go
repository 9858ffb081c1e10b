package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/toko-checkout/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the process-wide readiness flag. The API clears it when a
// shutdown begins so load balancers stop routing checkout traffic first.
func SetReady(v bool) { ready.Store(v) }

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
	// Providers lists the payment providers configured at startup.
	Providers []string
}

type readiness struct {
	Status    string   `json:"status"`
	DB        string   `json:"db"`
	Redis     string   `json:"redis"`
	Providers []string `json:"paymentProviders"`
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable", nil)
		return
	}
	if !ready.Load() {
		common.JSONError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is draining", nil)
		return
	}
	ctx := r.Context()
	body := readiness{Status: "ok", DB: "ok", Redis: "ok", Providers: h.Providers}
	if body.Providers == nil {
		body.Providers = []string{}
	}
	if err := h.Checker.PingDB(ctx, h.dbTimeout()); err != nil {
		body.DB = err.Error()
		body.Status = "degraded"
	}
	if err := h.Checker.PingRedis(ctx, h.redisTimeout()); err != nil {
		body.Redis = err.Error()
		body.Status = "degraded"
	}
	status := http.StatusOK
	if body.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, body)
}

func (h Handler) dbTimeout() time.Duration {
	if h.DBTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.DBTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
