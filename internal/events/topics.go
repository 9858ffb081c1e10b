package events

// Topic constants for domain events emitted by the checkout flow.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderPaid          = "order.paid"
	TopicOrderStatusChanged = "order.status_changed"
	TopicPaymentFailed      = "payment.failed"
)

// OrderPayload is the body carried by order events.
type OrderPayload struct {
	OrderID       string `json:"orderId"`
	OrderNumber   string `json:"orderNumber"`
	UserID        string `json:"userId"`
	PaymentMethod string `json:"paymentMethod"`
	Status        string `json:"status"`
	GrandTotal    string `json:"grandTotal"`
	Currency      string `json:"currency"`
	Email         string `json:"email,omitempty"`
}
