package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Svc *Service
}

type patchStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type shippingNoteRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

func (h *AdminHandler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// Get returns any order.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	d, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.Data(w, http.StatusOK, toDetail(d))
}

// PatchStatus updates the order status with state-machine validation.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req patchStatusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	target, err := ParseStatus(req.Status)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), id, target)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.Data(w, http.StatusOK, toSummary(o))
}

// PatchShippingNote sets or clears the shipping note. The snapshot is untouched.
func (h *AdminHandler) PatchShippingNote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req shippingNoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	by, _ := common.UserID(r.Context())
	o, err := h.Svc.SetShippingNote(r.Context(), id, req.Note, by)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"id":             o.ID.String(),
		"shippingNote":   o.ShippingNote,
		"shippingNoteAt": o.ShippingNoteAt,
		"shippingNoteBy": o.ShippingNoteBy,
	}})
}
