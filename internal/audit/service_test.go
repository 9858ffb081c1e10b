package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

type stubStore struct {
	inserts []db.InsertAuditLogParams
	list    db.ListAuditLogsParams
	rows    []db.AuditLog
}

func (s *stubStore) InsertAuditLog(_ context.Context, arg db.InsertAuditLogParams) (db.AuditLog, error) {
	s.inserts = append(s.inserts, arg)
	return db.AuditLog{}, nil
}

func (s *stubStore) ListAuditLogs(_ context.Context, arg db.ListAuditLogsParams) ([]db.AuditLog, error) {
	s.list = arg
	return s.rows, nil
}

func TestServiceRecordDerivesActionAndResource(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true, SamplingRate: 1}
	userID := uuid.NewString()

	req := httptest.NewRequest(http.MethodPut, "https://api.test/api/v1/admin/coupons/SAVE50?dry=1", nil)
	req.Header.Set("X-Request-ID", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/admin/coupons/{code}"))

	err := svc.Record(req.Context(), req, Entry{ActorUserID: userID, ResourceID: "SAVE50", Status: http.StatusOK})
	require.NoError(t, err)
	require.Len(t, store.inserts, 1)

	got := store.inserts[0]
	require.NotNil(t, got.ActorUserID)
	require.Equal(t, userID, got.ActorUserID.String())
	require.Equal(t, "PUT /api/v1/admin/coupons/{code}", got.Action)
	require.Equal(t, "admin.coupons", got.ResourceType)
	require.Equal(t, "SAVE50", *got.ResourceID)
	require.Equal(t, "10.0.0.2", *got.IP)
	require.Equal(t, "req-123", *got.RequestID)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(got.Metadata, &meta))
	require.Equal(t, "dry=1", meta["query"])
}

func TestServiceRecordKeepsExplicitNames(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true}
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/orders/abc/status", nil)

	err := svc.Record(req.Context(), req, Entry{Action: "order.status.update", ResourceType: "order", ActorUserID: "not-a-uuid"})
	require.NoError(t, err)
	require.Len(t, store.inserts, 1)
	require.Equal(t, "order.status.update", store.inserts[0].Action)
	require.Equal(t, "order", store.inserts[0].ResourceType)
	require.Nil(t, store.inserts[0].ActorUserID)
	require.Equal(t, int32(http.StatusOK), store.inserts[0].Status)
}

func TestServiceRecordDisabled(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, svc.Record(req.Context(), req, Entry{}))
	require.Empty(t, store.inserts)
}

func TestBuildResource(t *testing.T) {
	cases := map[string]string{
		"/api/v1/admin/settings/pricing":   "admin.settings.pricing",
		"/api/v1/admin/orders/{id}/status": "admin.orders.status",
		"/internal/jobs":                   "internal.jobs",
		"":                                 "unknown",
	}
	for route, want := range cases {
		require.Equal(t, want, buildResource("", route), route)
	}
}
