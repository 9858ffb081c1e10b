package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

// ErrEmptyCart is returned when the caller has nothing to order.
var ErrEmptyCart = errors.New("cart is empty")

// Carts loads and prices the caller's cart.
type Carts interface {
	FindCart(ctx context.Context, owner cart.Owner) (db.Cart, error)
	Quote(ctx context.Context, c db.Cart) (cart.Quote, error)
}

// Addresses resolves address book entries owned by a user.
type Addresses interface {
	Resolve(ctx context.Context, userID, addressID uuid.UUID) (db.Address, error)
}

// Store allocates order numbers and commits orders atomically.
type Store interface {
	NextOrderSequence(ctx context.Context, day time.Time) (int32, error)
	CommitOrder(ctx context.Context, arg db.CommitOrderParams) (db.Order, error)
}

// Input is the checkout request body.
type Input struct {
	ShippingAddressID string  `json:"shippingAddressId" validate:"required,uuid"`
	BillingAddressID  *string `json:"billingAddressId" validate:"omitempty,uuid"`
	PaymentMethod     string  `json:"paymentMethod" validate:"required,oneof=credit_card credit_card_iyzico bank_transfer"`
}

// Result is a committed order together with its frozen snapshot.
type Result struct {
	Order    db.Order
	Snapshot order.Snapshot
	// CouponRejection is set when an attached coupon was no longer eligible at submission.
	CouponRejection error
}

// Service turns a priced cart into an order.
type Service struct {
	Carts     Carts
	Addresses Addresses
	Store     Store
	Events    order.Emitter
	Currency  string
	Now       func() time.Time
	Logger    zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) currency() string {
	if s == nil || strings.TrimSpace(s.Currency) == "" {
		return "TRY"
	}
	return s.Currency
}

// Submit prices the user's cart with live data, freezes it into an order and
// clears the cart in one transaction. The cart is untouched on failure.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, in Input) (Result, error) {
	res, err := s.submit(ctx, userID, in)
	switch {
	case err == nil:
		obs.Inc(obs.CheckoutTotal, "created")
	case errors.Is(err, ErrEmptyCart):
		obs.Inc(obs.CheckoutTotal, "empty_cart")
	case errors.Is(err, db.ErrCartChanged):
		obs.Inc(obs.CheckoutTotal, "cart_changed")
	default:
		obs.Inc(obs.CheckoutTotal, "error")
	}
	return res, err
}

func (s *Service) submit(ctx context.Context, userID uuid.UUID, in Input) (Result, error) {
	if s == nil || s.Carts == nil || s.Addresses == nil || s.Store == nil {
		return Result{}, errors.New("checkout service not configured")
	}
	if err := common.Validate(in); err != nil {
		return Result{}, err
	}
	method, err := order.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return Result{}, common.BadRequest(err.Error(), err)
	}

	c, err := s.Carts.FindCart(ctx, cart.Owner{UserID: &userID})
	if errors.Is(err, cart.ErrNotFound) {
		return Result{}, ErrEmptyCart
	}
	if err != nil {
		return Result{}, err
	}
	quote, err := s.Carts.Quote(ctx, c)
	if err != nil {
		return Result{}, err
	}
	if len(quote.Totals.Lines) == 0 {
		return Result{}, ErrEmptyCart
	}

	shipping, billing, err := s.addresses(ctx, userID, in)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	seq, err := s.Store.NextOrderSequence(ctx, now)
	if err != nil {
		return Result{}, fmt.Errorf("allocate order number: %w", err)
	}
	snap, err := order.Build(order.SnapshotInput{
		Number:          order.FormatNumber(now, seq),
		UserID:          userID,
		PaymentMethod:   method,
		Currency:        s.currency(),
		Totals:          quote.Totals,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		CreatedAt:       now,
	})
	if err != nil {
		return Result{}, err
	}
	orderParams, items, err := snap.Params()
	if err != nil {
		return Result{}, err
	}
	created, err := s.Store.CommitOrder(ctx, db.CommitOrderParams{
		Order:      orderParams,
		Items:      items,
		CartID:     c.ID,
		Lines:      quotedLines(quote.Totals),
		CouponCode: quote.Cart.CouponCode,
	})
	if err != nil {
		return Result{}, err
	}

	log := s.Logger.With().Str("order_id", created.ID.String()).Str("order_number", created.OrderNumber).Logger()
	if quote.Totals.CouponRejection != nil {
		log.Info().Str("coupon", quote.Totals.CouponCode).Str("reason", voucher.Reason(quote.Totals.CouponRejection)).
			Msg("coupon dropped at checkout")
	}
	if s.Events != nil {
		payload := order.Payload(created)
		payload.Email, _ = common.Email(ctx)
		if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, created.ID, payload); err != nil {
			log.Warn().Err(err).Msg("emit order created failed")
		}
	}
	log.Info().Str("grand_total", created.GrandTotal.StringFixed(2)).Msg("order created")
	return Result{Order: created, Snapshot: snap, CouponRejection: quote.Totals.CouponRejection}, nil
}

func (s *Service) addresses(ctx context.Context, userID uuid.UUID, in Input) (order.AddressSnapshot, *order.AddressSnapshot, error) {
	shippingID, err := uuid.Parse(in.ShippingAddressID)
	if err != nil {
		return order.AddressSnapshot{}, nil, common.BadRequest("invalid shippingAddressId", err)
	}
	shippingRow, err := s.Addresses.Resolve(ctx, userID, shippingID)
	if err != nil {
		return order.AddressSnapshot{}, nil, err
	}
	if in.BillingAddressID == nil || strings.TrimSpace(*in.BillingAddressID) == "" {
		billing := order.BillingAddress(shippingRow)
		return order.ShippingAddress(shippingRow), &billing, nil
	}
	billingID, err := uuid.Parse(*in.BillingAddressID)
	if err != nil {
		return order.AddressSnapshot{}, nil, common.BadRequest("invalid billingAddressId", err)
	}
	billingRow, err := s.Addresses.Resolve(ctx, userID, billingID)
	if err != nil {
		return order.AddressSnapshot{}, nil, err
	}
	billing := order.BillingAddress(billingRow)
	return order.ShippingAddress(shippingRow), &billing, nil
}

// HTTPError maps checkout failures onto API errors.
func HTTPError(err error) error {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrEmptyCart):
		return common.NewAppError("EMPTY_CART", "cart is empty", http.StatusBadRequest, err)
	case errors.Is(err, db.ErrCartChanged):
		return common.NewAppError("CART_CHANGED", "cart changed during checkout, please review it", http.StatusConflict, err)
	case errors.Is(err, pricing.ErrInvalidLine), errors.Is(err, pricing.ErrInvalidSettings):
		return common.NewAppError("DATA_INTEGRITY", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, cart.ErrUnknownProduct):
		return cart.HTTPError(err)
	default:
		return order.HTTPError(err)
	}
}

func quotedLines(t pricing.Totals) []db.QuotedLine {
	out := make([]db.QuotedLine, 0, len(t.Lines))
	for _, l := range t.Lines {
		out = append(out, db.QuotedLine{ProductID: l.ProductID, Quantity: int32(l.Quantity)})
	}
	return out
}
