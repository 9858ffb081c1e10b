package payment

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/order"
)

// Callback statuses reported by providers after normalisation.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// IntentRequest captures the information required to open a payment with a provider.
type IntentRequest struct {
	OrderID     uuid.UUID
	Snapshot    order.Snapshot
	Email       string
	UserIP      string
	CallbackURL string
}

// IntentResponse is the provider request the client submits to start the payment.
// Form holds the signed fields; Body holds a JSON request where the provider expects one.
type IntentResponse struct {
	Provider string            `json:"provider"`
	Endpoint string            `json:"endpoint"`
	Amount   int64             `json:"amount"`
	Token    string            `json:"token,omitempty"`
	Form     map[string]string `json:"form,omitempty"`
	Body     any               `json:"body,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// CallbackResult contains the normalised data extracted from a provider callback
// after signature verification.
type CallbackResult struct {
	Valid       bool
	OrderNumber string
	Amount      int64 // minor units, -1 when the provider does not report it
	Status      string
	Payload     []byte
}

// Provider abstracts the operations required from an upstream payment provider.
// Implementations build signed requests and verify callbacks without network access.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	VerifyCallback(r *http.Request, body []byte) (CallbackResult, error)
}
