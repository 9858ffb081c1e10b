package order

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

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/events"
)

var (
	// ErrNotFound indicates the order does not exist or is not visible to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned when a status change is not allowed from the current state.
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

// Querier captures the database methods required by the order service.
type Querier interface {
	GetOrder(ctx context.Context, id uuid.UUID) (db.Order, error)
	GetOrderForUser(ctx context.Context, id, userID uuid.UUID) (db.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]db.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]db.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (db.Order, error)
	SetOrderShippingNote(ctx context.Context, arg db.SetShippingNoteParams) (db.Order, error)
}

// Emitter records domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (db.DomainEvent, error)
}

// Service reads orders and applies changes to their mutable side fields.
type Service struct {
	Q      Querier
	Events Emitter
	Now    func() time.Time
	Logger zerolog.Logger
}

// Detail is an order row with its decoded snapshot.
type Detail struct {
	Order    db.Order
	Snapshot Snapshot
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Q == nil {
		return errors.New("order service not configured")
	}
	return nil
}

// ListForUser returns a page of the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]db.Order, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Q.ListOrdersByUser(ctx, userID, int32(limit), int32(offset))
}

// GetForUser loads one of the user's orders with its lines.
func (s *Service) GetForUser(ctx context.Context, userID, id uuid.UUID) (Detail, error) {
	if err := s.ready(); err != nil {
		return Detail{}, err
	}
	o, err := s.Q.GetOrderForUser(ctx, id, userID)
	if err != nil {
		return Detail{}, notFound(err)
	}
	return s.detail(ctx, o)
}

// Get loads any order with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Detail, error) {
	if err := s.ready(); err != nil {
		return Detail{}, err
	}
	o, err := s.Q.GetOrder(ctx, id)
	if err != nil {
		return Detail{}, notFound(err)
	}
	return s.detail(ctx, o)
}

func (s *Service) detail(ctx context.Context, o db.Order) (Detail, error) {
	items, err := s.Q.ListOrderItems(ctx, o.ID)
	if err != nil {
		return Detail{}, err
	}
	snap, err := FromModel(o, items)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Order: o, Snapshot: snap}, nil
}

// UpdateStatus moves the order to a new lifecycle state when the transition is allowed.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (db.Order, error) {
	if err := s.ready(); err != nil {
		return db.Order{}, err
	}
	current, err := s.Q.GetOrder(ctx, id)
	if err != nil {
		return db.Order{}, notFound(err)
	}
	from := Status(current.Status)
	if !CanTransition(from, to) {
		return db.Order{}, fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	updated, err := s.Q.UpdateOrderStatus(ctx, id, string(to))
	if err != nil {
		return db.Order{}, err
	}
	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, events.TopicOrderStatusChanged, updated.ID, Payload(updated)); err != nil {
			s.Logger.Warn().Err(err).Str("order_id", updated.ID.String()).Msg("emit status change failed")
		}
	}
	return updated, nil
}

// SetShippingNote records an admin note. A blank note clears it.
func (s *Service) SetShippingNote(ctx context.Context, id uuid.UUID, note, by string) (db.Order, error) {
	if err := s.ready(); err != nil {
		return db.Order{}, err
	}
	params := db.SetShippingNoteParams{ID: id, By: by, At: s.now()}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		params.Note = &trimmed
	}
	o, err := s.Q.SetOrderShippingNote(ctx, params)
	if err != nil {
		return db.Order{}, notFound(err)
	}
	return o, nil
}

// Payload renders the event body for an order.
func Payload(o db.Order) events.OrderPayload {
	return events.OrderPayload{
		OrderID:       o.ID.String(),
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID.String(),
		PaymentMethod: o.PaymentMethod,
		Status:        o.Status,
		GrandTotal:    o.GrandTotal.StringFixed(2),
		Currency:      o.Currency,
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// HTTPError maps service errors onto API errors.
func HTTPError(err error) error {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrNotFound):
		return common.NotFound("order not found", err)
	case errors.Is(err, ErrInvalidTransition):
		return common.NewAppError("INVALID_STATE", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidSnapshot):
		return common.BadRequest(err.Error(), err)
	default:
		return err
	}
}
