package checkout

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

// Handler exposes order submission.
type Handler struct {
	Svc *Service
}

// Checkout handles POST /api/v1/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	raw, ok := common.UserID(r.Context())
	if !ok || raw == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid subject", nil)
		return
	}
	var payload Input
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Submit(r.Context(), userID, payload)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	data := map[string]any{
		"orderId":       res.Order.ID.String(),
		"orderNumber":   res.Order.OrderNumber,
		"status":        res.Order.Status,
		"paymentMethod": res.Order.PaymentMethod,
		"subtotal":      res.Snapshot.Subtotal.StringFixed(2),
		"vatTotal":      res.Snapshot.VatTotal.StringFixed(2),
		"discount":      res.Snapshot.Discount.StringFixed(2),
		"shippingFee":   res.Snapshot.Shipping.StringFixed(2),
		"grandTotal":    res.Snapshot.GrandTotal.StringFixed(2),
		"currency":      res.Snapshot.Currency,
	}
	if res.CouponRejection != nil {
		data["couponNotice"] = voucher.RejectionMessage(res.CouponRejection)
	}
	common.Data(w, http.StatusCreated, data)
}
