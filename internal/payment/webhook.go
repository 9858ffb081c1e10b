package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/order"
)

const maxCallbackBody = 64 << 10

// Webhook handles payment provider callbacks, including signature verification and settlement.
type Webhook struct {
	Svc       *Service
	Replay    redis.Cmdable
	ReplayTTL time.Duration
}

func replayKey(provider string, body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("wh:%s:%s", provider, hex.EncodeToString(sum[:]))
}

// Handle processes callbacks for the provider named in the route.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Svc.Provider(providerKey)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	result, err := provider.VerifyCallback(r, body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !result.Valid {
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	ctx := r.Context()
	key := replayKey(providerKey, body)
	if h.Replay != nil && h.ReplayTTL > 0 {
		ok, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			ack(w)
			return
		}
	}
	outcome, err := h.Svc.HandleCallback(ctx, providerKey, result)
	if err != nil {
		// a retry after a transient failure must not be mistaken for a replay
		if h.Replay != nil && !errors.Is(err, ErrAmountMismatch) && !errors.Is(err, order.ErrNotFound) {
			_ = h.Replay.Del(ctx, key).Err()
		}
		common.WriteError(w, HTTPError(err))
		return
	}
	h.Svc.Logger.Debug().Str("provider", providerKey).Str("outcome", string(outcome)).Msg("payment callback handled")
	ack(w)
}

// ack writes the plain "OK" body providers expect before they stop retrying.
func ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
