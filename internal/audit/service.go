package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

// Store defines the database operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, arg db.InsertAuditLogParams) (db.AuditLog, error)
	ListAuditLogs(ctx context.Context, arg db.ListAuditLogsParams) ([]db.AuditLog, error)
}

// Service persists the admin audit trail for pricing, coupon and order changes.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
}

// Entry is a single audited admin action.
type Entry struct {
	ActorUserID  string
	Action       string
	ResourceType string
	ResourceID   string
	Status       int
	Metadata     []byte
}

// Record persists e for req when auditing is enabled.
func (s Service) Record(ctx context.Context, req *http.Request, e Entry) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 && rand.Float64() > s.SamplingRate {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	route := routeOf(req)
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}

	_, err := s.Store.InsertAuditLog(ctx, db.InsertAuditLogParams{
		ActorUserID:  parseUUID(e.ActorUserID),
		Action:       buildAction(e.Action, req.Method, route),
		ResourceType: buildResource(e.ResourceType, route),
		ResourceID:   nonEmpty(e.ResourceID),
		Method:       req.Method,
		Route:        route,
		Status:       int32(status),
		IP:           nonEmpty(common.ClientIP(req)),
		RequestID:    requestID(req),
		Metadata:     metadataOrQuery(e.Metadata, req.URL.RawQuery),
	})
	return err
}

func routeOf(req *http.Request) string {
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if route := obs.RoutePatternFromContext(req.Context()); route != "" {
		return route
	}
	return strings.TrimSpace(req.URL.Path)
}

func requestID(req *http.Request) *string {
	if id := middleware.GetReqID(req.Context()); id != "" {
		return &id
	}
	return nonEmpty(req.Header.Get("X-Request-ID"))
}

func buildAction(action, method, route string) string {
	if trimmed := strings.TrimSpace(action); trimmed != "" {
		return trimmed
	}
	if route == "" {
		route = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + route
}

// buildResource derives a dotted resource name from the route when none is given,
// so /api/v1/admin/coupons/{code} becomes admin.coupons.
func buildResource(resourceType, route string) string {
	if trimmed := strings.TrimSpace(resourceType); trimmed != "" {
		return trimmed
	}
	route = strings.Trim(strings.TrimSpace(route), "/")
	if route == "" {
		return "unknown"
	}
	var kept []string
	for _, seg := range strings.Split(route, "/") {
		if strings.HasPrefix(seg, "{") {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) >= 3 && kept[0] == "api" && kept[1] == "v1" {
		kept = kept[2:]
	}
	return strings.Join(kept, ".")
}

func nonEmpty(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func parseUUID(value string) *uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return nil
	}
	return &parsed
}

func metadataOrQuery(metadata []byte, query string) []byte {
	if len(metadata) > 0 {
		return metadata
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil
	}
	return data
}
