package cart

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

// AnonHeader carries the guest cart identifier for unauthenticated clients.
const AnonHeader = "X-Anon-ID"

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

type addItemPayload struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,min=1,max=999"`
}

type updateItemPayload struct {
	Qty *int `json:"qty" validate:"required,min=0,max=999"`
}

type couponPayload struct {
	Code string `json:"code" validate:"required,max=64"`
}

type mergePayload struct {
	AnonID string `json:"anonId" validate:"required,max=128"`
}

type lineView struct {
	ProductID        string `json:"productId"`
	Name             string `json:"name"`
	Qty              int    `json:"qty"`
	UnitPrice        string `json:"unitPrice"`
	VatRate          string `json:"vatRate"`
	UnitVat          string `json:"unitVat"`
	UnitPriceWithVat string `json:"unitPriceWithVat"`
	Subtotal         string `json:"subtotal"`
	Vat              string `json:"vat"`
	Total            string `json:"total"`
}

type cartView struct {
	CartID            *string    `json:"cartId"`
	AnonID            *string    `json:"anonId,omitempty"`
	Items             []lineView `json:"items"`
	ItemCount         int        `json:"itemCount"`
	Subtotal          string     `json:"subtotal"`
	TotalVat          string     `json:"totalVat"`
	TaxInclusiveTotal string     `json:"taxInclusiveTotal"`
	Discount          string     `json:"discount"`
	Shipping          string     `json:"shipping"`
	FreeShipping      bool       `json:"freeShipping"`
	GrandTotal        string     `json:"grandTotal"`
	CouponCode        *string    `json:"couponCode"`
	CouponNotice      *string    `json:"couponNotice,omitempty"`
}

func money(m pricing.Money) string {
	return m.StringFixed(2)
}

func toView(c *db.Cart, t pricing.Totals) cartView {
	t = t.Rounded()
	v := cartView{
		Items:             make([]lineView, 0, len(t.Lines)),
		ItemCount:         t.ItemCount(),
		Subtotal:          money(t.Subtotal),
		TotalVat:          money(t.TotalVat),
		TaxInclusiveTotal: money(t.TaxInclusiveTotal),
		Discount:          money(t.Discount),
		Shipping:          money(t.Shipping),
		FreeShipping:      t.FreeShipping,
		GrandTotal:        money(t.GrandTotal),
	}
	if c != nil {
		id := c.ID.String()
		v.CartID = &id
		v.AnonID = c.AnonID
	}
	for _, l := range t.Lines {
		v.Items = append(v.Items, lineView{
			ProductID:        l.ProductID.String(),
			Name:             l.Name,
			Qty:              l.Quantity,
			UnitPrice:        money(l.UnitPrice),
			VatRate:          l.EffectiveVatRate.String(),
			UnitVat:          money(l.UnitVat),
			UnitPriceWithVat: money(l.UnitPriceWithVat),
			Subtotal:         money(l.Subtotal),
			Vat:              money(l.Vat),
			Total:            money(l.Total),
		})
	}
	if t.CouponCode != "" {
		code := t.CouponCode
		v.CouponCode = &code
	}
	if t.CouponRejection != nil {
		notice := voucher.RejectionMessage(t.CouponRejection)
		v.CouponNotice = &notice
	}
	return v
}

// OwnerFromRequest resolves the cart owner from the authenticated user or the guest header.
func OwnerFromRequest(r *http.Request) (Owner, error) {
	if raw, ok := common.UserID(r.Context()); ok && raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Owner{}, common.NewAppError("UNAUTHORIZED", "invalid subject", http.StatusUnauthorized, err)
		}
		return Owner{UserID: &id}, nil
	}
	if anon, ok := common.AnonID(r.Context()); ok {
		return Owner{AnonID: anon}, nil
	}
	return Owner{AnonID: strings.TrimSpace(r.Header.Get(AnonHeader))}, nil
}

// AnonIDMiddleware copies the guest cart header onto the request context.
func AnonIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if anon := strings.TrimSpace(r.Header.Get(AnonHeader)); anon != "" {
			r = r.WithContext(common.WithAnonID(r.Context(), anon))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, c db.Cart) {
	q, err := h.Svc.Quote(r.Context(), c)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.Data(w, status, toView(&q.Cart, q.Totals))
}

// Get returns the caller's cart with freshly computed totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	owner, err := OwnerFromRequest(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !owner.valid() {
		common.Data(w, http.StatusOK, toView(nil, pricing.Totals{}))
		return
	}
	c, err := h.Svc.FindCart(r.Context(), owner)
	if errors.Is(err, ErrNotFound) {
		common.Data(w, http.StatusOK, toView(nil, pricing.Totals{}))
		return
	}
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// AddItem adds a product to the caller's cart, creating a guest cart when needed.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	owner, err := OwnerFromRequest(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var payload addItemPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	productID, err := uuid.Parse(payload.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid productId", nil)
		return
	}
	if !owner.valid() {
		owner.AnonID = uuid.NewString()
	}
	c, err := h.Svc.AddItem(r.Context(), owner, productID, payload.Qty)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	if c.AnonID != nil {
		w.Header().Set(AnonHeader, *c.AnonID)
	}
	h.respond(w, r, http.StatusCreated, c)
}

// UpdateItem sets a line's quantity. A quantity of zero removes the line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	owner, productID, ok := h.lineTarget(w, r)
	if !ok {
		return
	}
	var payload updateItemPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.UpdateQty(r.Context(), owner, productID, *payload.Qty)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// RemoveItem deletes a line from the caller's cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	owner, productID, ok := h.lineTarget(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.RemoveItem(r.Context(), owner, productID)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

func (h *Handler) lineTarget(w http.ResponseWriter, r *http.Request) (Owner, uuid.UUID, bool) {
	owner, err := OwnerFromRequest(r)
	if err != nil {
		common.WriteError(w, err)
		return Owner{}, uuid.Nil, false
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid productId", nil)
		return Owner{}, uuid.Nil, false
	}
	return owner, productID, true
}

// ApplyCoupon attaches a coupon after checking its eligibility.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	owner, err := OwnerFromRequest(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var payload couponPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	q, err := h.Svc.ApplyCoupon(r.Context(), owner, payload.Code)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.Data(w, http.StatusOK, toView(&q.Cart, q.Totals))
}

// RemoveCoupon detaches the coupon from the caller's cart.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	owner, err := OwnerFromRequest(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.RemoveCoupon(r.Context(), owner)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// Merge folds a guest cart into the authenticated user's cart.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	owner, err := OwnerFromRequest(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if owner.UserID == nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload mergePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.MergeGuest(r.Context(), *owner.UserID, payload.AnonID)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	h.respond(w, r, http.StatusOK, c)
}
