package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
)

var (
	// ErrNotPayable is returned when the order cannot take an online payment.
	ErrNotPayable = errors.New("order is not awaiting online payment")
	// ErrProviderUnavailable is returned when no provider serves the order's payment method.
	ErrProviderUnavailable = errors.New("payment provider not configured")
	// ErrAmountMismatch is returned when a callback reports an amount other than the order total.
	ErrAmountMismatch = errors.New("callback amount does not match order total")
)

// Outcome describes what a callback did to the order.
type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Store captures the database methods required by the payment service.
type Store interface {
	GetOrderForUser(ctx context.Context, id, userID uuid.UUID) (db.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (db.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]db.OrderItem, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// Service opens provider payments for orders and settles them from callbacks.
type Service struct {
	Q Store
	// Providers maps card payment methods to the provider that serves them.
	Providers       map[order.PaymentMethod]Provider
	Events          order.Emitter
	CallbackBaseURL string
	Now             func() time.Time
	Logger          zerolog.Logger
}

// IntentParams are the caller details a provider needs alongside the order.
type IntentParams struct {
	UserID  uuid.UUID
	OrderID uuid.UUID
	Email   string
	UserIP  string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Provider returns the provider registered under name.
func (s *Service) Provider(name string) (Provider, bool) {
	if s == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range s.Providers {
		if p != nil && p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// CreateIntent builds the provider request for one of the user's pending card orders.
func (s *Service) CreateIntent(ctx context.Context, in IntentParams) (IntentResponse, error) {
	if s == nil || s.Q == nil {
		return IntentResponse{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateIntent")
	defer span.End()

	start := time.Now()
	providerName := "unknown"
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", providerName),
			attribute.Float64("payment.intent.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.intent.result", result),
		)
		obs.Inc(obs.PaymentIntentTotal, providerName, result)
	}()
	span.SetAttributes(attribute.String("order.id", in.OrderID.String()))

	o, err := s.Q.GetOrderForUser(ctx, in.OrderID, in.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			result = "not_found"
			return IntentResponse{}, order.ErrNotFound
		}
		return IntentResponse{}, err
	}
	if order.Status(o.Status) != order.StatusPending {
		result = "rejected"
		return IntentResponse{}, fmt.Errorf("order status %s: %w", o.Status, ErrNotPayable)
	}
	provider, ok := s.Providers[order.PaymentMethod(o.PaymentMethod)]
	if !ok || provider == nil {
		result = "rejected"
		if order.PaymentMethod(o.PaymentMethod) == order.PaymentBankTransfer {
			return IntentResponse{}, fmt.Errorf("bank transfer: %w", ErrNotPayable)
		}
		return IntentResponse{}, ErrProviderUnavailable
	}
	providerName = provider.Name()

	items, err := s.Q.ListOrderItems(ctx, o.ID)
	if err != nil {
		return IntentResponse{}, err
	}
	snap, err := order.FromModel(o, items)
	if err != nil {
		return IntentResponse{}, err
	}
	resp, err := provider.CreateIntent(ctx, IntentRequest{
		OrderID:     o.ID,
		Snapshot:    snap,
		Email:       in.Email,
		UserIP:      in.UserIP,
		CallbackURL: strings.TrimRight(s.CallbackBaseURL, "/") + "/api/v1/webhooks/payment/" + providerName,
	})
	if err != nil {
		span.RecordError(err)
		return IntentResponse{}, err
	}
	result = "success"
	return resp, nil
}

// HandleCallback applies a verified provider callback. A successful payment
// whose amount matches the frozen grand total approves the pending order.
func (s *Service) HandleCallback(ctx context.Context, provider string, res CallbackResult) (Outcome, error) {
	outcome, err := s.handleCallback(ctx, provider, res)
	label := string(outcome)
	switch {
	case errors.Is(err, ErrAmountMismatch):
		label = "amount_mismatch"
	case errors.Is(err, order.ErrNotFound):
		label = "not_found"
	case err != nil:
		label = "error"
	}
	obs.Inc(obs.PaymentCallbackTotal, provider, label)
	return outcome, err
}

func (s *Service) handleCallback(ctx context.Context, provider string, res CallbackResult) (Outcome, error) {
	if s == nil || s.Q == nil {
		return "", errors.New("payment service not configured")
	}
	o, err := s.Q.GetOrderByNumber(ctx, res.OrderNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", order.ErrNotFound
		}
		return "", err
	}
	log := s.Logger.With().Str("provider", provider).Str("order_number", o.OrderNumber).Logger()

	if res.Status != StatusSuccess {
		log.Info().Msg("payment failed")
		s.emit(ctx, log, events.TopicPaymentFailed, o)
		return OutcomeFailed, nil
	}
	if res.Amount >= 0 {
		expected, err := MinorUnits(o.GrandTotal)
		if err != nil {
			return "", err
		}
		if res.Amount != expected {
			log.Warn().Int64("amount", res.Amount).Int64("expected", expected).Msg("payment amount mismatch")
			return "", fmt.Errorf("got %d want %d: %w", res.Amount, expected, ErrAmountMismatch)
		}
	}
	changed, err := s.Q.MarkOrderPaid(ctx, o.ID, s.now())
	if err != nil {
		return "", err
	}
	if !changed {
		return OutcomeDuplicate, nil
	}
	o.Status = string(order.StatusApproved)
	log.Info().Msg("order paid")
	s.emit(ctx, log, events.TopicOrderPaid, o)
	return OutcomePaid, nil
}

func (s *Service) emit(ctx context.Context, log zerolog.Logger, topic string, o db.Order) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, o.ID, order.Payload(o)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("emit payment event failed")
	}
}

// HTTPError maps service errors onto API errors.
func HTTPError(err error) error {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, order.ErrNotFound):
		return common.NotFound("order not found", err)
	case errors.Is(err, ErrNotPayable):
		return common.NewAppError("INVALID_STATE", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrProviderUnavailable):
		return common.NewAppError("PAYMENT_NOT_CONFIGURED", err.Error(), http.StatusServiceUnavailable, err)
	case errors.Is(err, ErrAmountMismatch):
		return common.NewAppError("AMOUNT_MISMATCH", "provider amount mismatch", http.StatusBadRequest, err)
	case errors.Is(err, ErrNegativeAmount):
		return common.NewAppError("DATA_INTEGRITY", err.Error(), http.StatusUnprocessableEntity, err)
	default:
		return err
	}
}
