package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
)

func TestHandlerList(t *testing.T) {
	actor := uuid.New()
	store := &stubStore{rows: []db.AuditLog{{
		ID:           uuid.New(),
		ActorUserID:  &actor,
		Action:       "coupon.update",
		ResourceType: "coupon",
		Method:       http.MethodPut,
		Route:        "/api/v1/admin/coupons/{code}",
		Status:       200,
		Metadata:     []byte(`{"code":"SAVE50"}`),
		CreatedAt:    time.Now(),
	}}}
	h := Handler{Store: store}

	req := httptest.NewRequest(http.MethodGet, "/audit-logs?limit=25&page=3&resource=coupon", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int32(25), store.list.Limit)
	require.Equal(t, int32(50), store.list.Offset)
	require.Equal(t, "coupon", store.list.ResourceType)

	var payload struct {
		Data []struct {
			Action      string          `json:"action"`
			ActorUserID string          `json:"actorUserId"`
			Metadata    json.RawMessage `json:"metadata"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 1)
	require.Equal(t, "coupon.update", payload.Data[0].Action)
	require.Equal(t, actor.String(), payload.Data[0].ActorUserID)
	require.JSONEq(t, `{"code":"SAVE50"}`, string(payload.Data[0].Metadata))
}

func TestRecorderMiddlewareCapturesStatusAndParam(t *testing.T) {
	store := &stubStore{}
	rec := HTTPRecorder{Service: &Service{Store: store, Enabled: true}, Logger: zerolog.Nop()}
	userID := uuid.NewString()

	r := chi.NewRouter()
	r.With(rec.Middleware(HTTPConfig{
		Action:          "coupon.delete",
		ResourceType:    "coupon",
		ResourceIDParam: "code",
		MetadataFunc: func(_ *http.Request, status int) map[string]any {
			return map[string]any{"status": status}
		},
	})).Delete("/admin/coupons/{code}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodDelete, "/admin/coupons/PAUSED20", nil)
	req = req.WithContext(common.WithUserID(req.Context(), userID))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Len(t, store.inserts, 1)
	got := store.inserts[0]
	require.Equal(t, "coupon.delete", got.Action)
	require.Equal(t, "PAUSED20", *got.ResourceID)
	require.Equal(t, int32(http.StatusNoContent), got.Status)
	require.Equal(t, "/admin/coupons/{code}", got.Route)
	require.JSONEq(t, `{"status":204}`, string(got.Metadata))
}

func TestRecorderMiddlewareDisabledPassesThrough(t *testing.T) {
	store := &stubStore{}
	rec := HTTPRecorder{Service: &Service{Store: store}}
	h := rec.Middleware(HTTPConfig{Action: "x"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Empty(t, store.inserts)
}
