package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Decision is the outcome of counting one request against a key.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Limiter counts requests per key in fixed windows held in Redis.
type Limiter struct {
	l *limiter.Limiter
}

// NewRedisLimiter builds a limiter allowing max requests per window for each key.
func NewRedisLimiter(client *redis.Client, prefix string, window time.Duration, max int64) (*Limiter, error) {
	if client == nil {
		return nil, fmt.Errorf("ratelimit: redis client is required")
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: create store: %w", err)
	}
	return New(store, window, max), nil
}

// New builds a limiter on top of any ulule/limiter store.
func New(store limiter.Store, window time.Duration, max int64) *Limiter {
	return &Limiter{l: limiter.New(store, limiter.Rate{Period: window, Limit: max})}
}

// Allow registers a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil || l.l == nil {
		return Decision{Allowed: true}, nil
	}
	res, err := l.l.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetAt:   time.Unix(res.Reset, 0),
	}, nil
}

// CallerKey scopes a limit to the authenticated user, the guest cart id, or the client IP.
func CallerKey(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := common.UserID(r.Context()); ok && id != "" {
			return scope + ":user:" + id
		}
		if anon, ok := common.AnonID(r.Context()); ok {
			return scope + ":anon:" + anon
		}
		if anon := strings.TrimSpace(r.Header.Get("X-Anon-ID")); anon != "" {
			return scope + ":anon:" + anon
		}
		return scope + ":ip:" + common.ClientIP(r)
	}
}
