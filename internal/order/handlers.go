package order

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
)

// Handler exposes the customer's own orders.
type Handler struct {
	Svc *Service
}

type summaryView struct {
	ID            string    `json:"id"`
	OrderNumber   string    `json:"orderNumber"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"paymentMethod"`
	GrandTotal    string    `json:"grandTotal"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"createdAt"`
}

type lineView struct {
	ProductID    *string `json:"productId"`
	Name         string  `json:"name"`
	UnitPrice    string  `json:"unitPrice"`
	Quantity     int     `json:"quantity"`
	VatRate      string  `json:"vatRate"`
	VatAmount    string  `json:"vatAmount"`
	LineSubtotal string  `json:"lineSubtotal"`
}

type detailView struct {
	summaryView
	CouponCode        *string         `json:"couponCode"`
	Subtotal          string          `json:"subtotal"`
	VatTotal          string          `json:"vatTotal"`
	TaxInclusiveTotal string          `json:"taxInclusiveTotal"`
	Discount          string          `json:"discount"`
	ShippingFee       string          `json:"shippingFee"`
	Items             []lineView      `json:"items"`
	ShippingAddress   AddressSnapshot `json:"shippingAddress"`
	BillingAddress    AddressSnapshot `json:"billingAddress"`
	ShippingNote      *string         `json:"shippingNote"`
	ShippingNoteAt    *time.Time      `json:"shippingNoteAt,omitempty"`
	PaidAt            *time.Time      `json:"paidAt,omitempty"`
}

func toSummary(o db.Order) summaryView {
	return summaryView{
		ID:            o.ID.String(),
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		GrandTotal:    o.GrandTotal.StringFixed(2),
		Currency:      o.Currency,
		CreatedAt:     o.CreatedAt,
	}
}

func toDetail(d Detail) detailView {
	s := d.Snapshot
	v := detailView{
		summaryView:       toSummary(d.Order),
		CouponCode:        s.CouponCode,
		Subtotal:          s.Subtotal.StringFixed(2),
		VatTotal:          s.VatTotal.StringFixed(2),
		TaxInclusiveTotal: s.TaxInclusiveTotal.StringFixed(2),
		Discount:          s.Discount.StringFixed(2),
		ShippingFee:       s.Shipping.StringFixed(2),
		Items:             make([]lineView, 0, len(s.Lines)),
		ShippingAddress:   s.ShippingAddress,
		BillingAddress:    s.BillingAddress,
		ShippingNote:      d.Order.ShippingNote,
		ShippingNoteAt:    d.Order.ShippingNoteAt,
		PaidAt:            d.Order.PaidAt,
	}
	for _, l := range s.Lines {
		lv := lineView{
			Name:         l.Name,
			UnitPrice:    l.UnitPrice.StringFixed(2),
			Quantity:     l.Quantity,
			VatRate:      l.VatRate.String(),
			VatAmount:    l.VatAmount.StringFixed(2),
			LineSubtotal: l.LineSubtotal.StringFixed(2),
		}
		if l.ProductID != nil {
			id := l.ProductID.String()
			lv.ProductID = &id
		}
		v.Items = append(v.Items, lv)
	}
	return v
}

func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := common.UserID(r.Context())
	if !ok || raw == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid subject", nil)
		return uuid.Nil, false
	}
	return id, true
}

// List returns the caller's orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	page := common.ParsePagination(r, 20, 100)
	orders, err := h.Svc.ListForUser(r.Context(), userID, page.PerPage, page.Offset())
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	out := make([]summaryView, 0, len(orders))
	for _, o := range orders {
		out = append(out, toSummary(o))
	}
	common.Paged(w, out, page)
}

// Get returns one of the caller's orders with its frozen lines and addresses.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	d, err := h.Svc.GetForUser(r.Context(), userID, id)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.Data(w, http.StatusOK, toDetail(d))
}
