package voucher

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Handler exposes administrative coupon management endpoints.
type Handler struct {
	Svc *Service
}

type couponPayload struct {
	Code          string    `json:"code" validate:"omitempty,max=64"`
	DiscountType  string    `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue string    `json:"discountValue" validate:"required,money"`
	MinCartAmount *string   `json:"minCartAmount" validate:"omitempty,money"`
	StartDate     time.Time `json:"startDate" validate:"required"`
	EndDate       time.Time `json:"endDate" validate:"required"`
	IsActive      *bool     `json:"isActive"`
}

type couponView struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	DiscountType  Kind      `json:"discountType"`
	DiscountValue string    `json:"discountValue"`
	MinCartAmount *string   `json:"minCartAmount"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	IsActive      bool      `json:"isActive"`
}

func toView(c Coupon) couponView {
	v := couponView{
		ID:            c.ID.String(),
		Code:          c.Code,
		DiscountType:  c.Kind,
		DiscountValue: c.Value.String(),
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
		IsActive:      c.Active,
	}
	if c.MinCartAmount != nil {
		s := c.MinCartAmount.String()
		v.MinCartAmount = &s
	}
	return v
}

func (p couponPayload) toCoupon(code string) (Coupon, error) {
	kind, err := ParseKind(p.DiscountType)
	if err != nil {
		return Coupon{}, common.BadRequest(err.Error(), err)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(p.DiscountValue))
	if err != nil {
		return Coupon{}, common.BadRequest("invalid discountValue", err)
	}
	c := Coupon{
		Code:      code,
		Kind:      kind,
		Value:     value,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		Active:    true,
	}
	if p.IsActive != nil {
		c.Active = *p.IsActive
	}
	if p.MinCartAmount != nil && strings.TrimSpace(*p.MinCartAmount) != "" {
		min, err := decimal.NewFromString(strings.TrimSpace(*p.MinCartAmount))
		if err != nil {
			return Coupon{}, common.BadRequest("invalid minCartAmount", err)
		}
		c.MinCartAmount = &min
	}
	return c, nil
}

// List returns a page of coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	page := common.ParsePagination(r, 50, 200)
	coupons, err := h.Svc.List(r.Context(), page.PerPage, page.Offset())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out := make([]couponView, 0, len(coupons))
	for _, c := range coupons {
		out = append(out, toView(c))
	}
	common.Paged(w, out, page)
}

// Create inserts a new coupon.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	var payload couponPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if strings.TrimSpace(payload.Code) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	c, err := payload.toCoupon(strings.TrimSpace(payload.Code))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	created, err := h.Svc.Create(r.Context(), c)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, toView(created))
}

// Update replaces the coupon identified by the {code} path parameter.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	var payload couponPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := payload.toCoupon(code)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	updated, err := h.Svc.Update(r.Context(), c)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, toView(updated))
}

// Delete removes the coupon identified by the {code} path parameter.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
