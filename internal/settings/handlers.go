package settings

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Handler exposes the pricing settings over HTTP.
type Handler struct {
	Provider *Provider
}

type settingsPayload struct {
	VatRate               string  `json:"vatRate" validate:"required,money"`
	ShippingFee           string  `json:"shippingFee" validate:"required,money"`
	FreeShippingThreshold *string `json:"freeShippingThreshold" validate:"omitempty,money"`
}

type settingsView struct {
	VatRate               string  `json:"vatRate"`
	ShippingFee           string  `json:"shippingFee"`
	FreeShippingThreshold *string `json:"freeShippingThreshold"`
}

func toView(s pricing.Settings) settingsView {
	v := settingsView{VatRate: s.VatRate.String(), ShippingFee: s.ShippingFee.StringFixed(2)}
	if s.FreeShippingThreshold != nil {
		t := s.FreeShippingThreshold.StringFixed(2)
		v.FreeShippingThreshold = &t
	}
	return v
}

// Get returns the current pricing settings.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settings provider not configured", nil)
		return
	}
	s, err := h.Provider.GetPricingSettings(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, toView(s))
}

// Update replaces the pricing settings.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settings provider not configured", nil)
		return
	}
	var payload settingsPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	s := pricing.Settings{
		VatRate:     decimal.RequireFromString(strings.TrimSpace(payload.VatRate)),
		ShippingFee: decimal.RequireFromString(strings.TrimSpace(payload.ShippingFee)),
	}
	if payload.FreeShippingThreshold != nil && strings.TrimSpace(*payload.FreeShippingThreshold) != "" {
		t := decimal.RequireFromString(strings.TrimSpace(*payload.FreeShippingThreshold))
		s.FreeShippingThreshold = &t
	}
	updated, err := h.Provider.Update(r.Context(), s)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, toView(updated))
}
