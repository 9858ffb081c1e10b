package payment

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Handler exposes HTTP endpoints for payment intents.
type Handler struct {
	Svc *Service
}

type intentReq struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// Intent builds the provider request for the authenticated user's pending order.
func (h *Handler) Intent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	rawUser, ok := common.UserID(r.Context())
	if !ok || strings.TrimSpace(rawUser) == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required", nil)
		return
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid subject", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid orderId", nil)
		return
	}
	var req intentReq
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	email, _ := common.Email(r.Context())
	if email == "" {
		email = strings.TrimSpace(req.Email)
	}
	if email == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "email is required", nil)
		return
	}
	resp, err := h.Svc.CreateIntent(r.Context(), IntentParams{
		UserID:  userID,
		OrderID: orderID,
		Email:   email,
		UserIP:  common.ClientIP(r),
	})
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.Data(w, http.StatusOK, resp)
}
