package audit

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	Store Store
}

type logResponse struct {
	ID           string          `json:"id"`
	ActorUserID  *string         `json:"actorUserId,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   *string         `json:"resourceId,omitempty"`
	Method       string          `json:"method"`
	Route        string          `json:"route"`
	Status       int32           `json:"status"`
	IP           *string         `json:"ip,omitempty"`
	RequestID    *string         `json:"requestId,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// List returns a page of audit entries, newest first. ?resource= filters by resource type.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	page := common.ParsePagination(r, 50, 200)
	rows, err := h.Store.ListAuditLogs(r.Context(), db.ListAuditLogsParams{
		ResourceType: strings.TrimSpace(r.URL.Query().Get("resource")),
		Limit:        int32(page.PerPage),
		Offset:       int32(page.Offset()),
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}

	out := make([]logResponse, 0, len(rows))
	for _, row := range rows {
		item := logResponse{
			ID:           row.ID.String(),
			Action:       row.Action,
			ResourceType: row.ResourceType,
			ResourceID:   row.ResourceID,
			Method:       row.Method,
			Route:        row.Route,
			Status:       row.Status,
			IP:           row.IP,
			RequestID:    row.RequestID,
			CreatedAt:    row.CreatedAt,
		}
		if row.ActorUserID != nil {
			id := row.ActorUserID.String()
			item.ActorUserID = &id
		}
		if len(row.Metadata) > 0 {
			item.Metadata = json.RawMessage(row.Metadata)
		}
		out = append(out, item)
	}
	common.Paged(w, out, page)
}
