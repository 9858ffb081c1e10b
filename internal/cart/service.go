package cart

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
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

// ErrNotFound indicates the requested cart could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrUnknownProduct is returned when a cart line references a product that no
// longer exists or is no longer sold.
var ErrUnknownProduct = errors.New("cart references an unknown product")

// Querier captures the database methods required by the cart service.
type Querier interface {
	GetCartByUser(ctx context.Context, userID uuid.UUID) (db.Cart, error)
	GetCartByAnon(ctx context.Context, anonID string) (db.Cart, error)
	CreateCart(ctx context.Context, arg db.CreateCartParams) (db.Cart, error)
	TouchCart(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	SetCartCoupon(ctx context.Context, id uuid.UUID, code *string) error
	DeleteCart(ctx context.Context, id uuid.UUID) error
	DeleteExpiredGuestCarts(ctx context.Context, before time.Time) (int64, error)
	ListCartItems(ctx context.Context, cartID uuid.UUID) ([]db.CartItem, error)
	ListCartLines(ctx context.Context, cartID uuid.UUID) ([]db.CartLine, error)
	AddCartItem(ctx context.Context, cartID, productID uuid.UUID, qty int32) (db.CartItem, error)
	SetCartItemQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int32) error
	UpdateCartItemQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int32) (bool, error)
	DeleteCartItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error)
	GetProduct(ctx context.Context, id uuid.UUID) (db.Product, error)
}

// TxFunc runs fn inside a database transaction.
type TxFunc func(ctx context.Context, fn func(Querier) error) error

// StoreTx adapts a db.Store into a TxFunc.
func StoreTx(store *db.Store) TxFunc {
	return func(ctx context.Context, fn func(Querier) error) error {
		return store.ExecTx(ctx, func(q *db.Queries) error { return fn(q) })
	}
}

// CouponEvaluator looks up coupons and validates them against a VAT-inclusive subtotal.
type CouponEvaluator interface {
	FindCouponByCode(ctx context.Context, code string) (*voucher.Coupon, error)
	Evaluate(ctx context.Context, code string, taxInclusive decimal.Decimal) (*voucher.Coupon, error)
}

// SettingsProvider supplies the current site pricing settings.
type SettingsProvider interface {
	GetPricingSettings(ctx context.Context) (pricing.Settings, error)
}

// Locker serialises work under a named key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Owner identifies a cart by authenticated user or guest session.
type Owner struct {
	UserID *uuid.UUID
	AnonID string
}

func (o Owner) valid() bool {
	return o.UserID != nil || strings.TrimSpace(o.AnonID) != ""
}

// Service encapsulates cart domain operations.
type Service struct {
	Q        Querier
	Tx       TxFunc
	Coupons  CouponEvaluator
	Settings SettingsProvider
	Locker   Locker
	LockTTL  time.Duration
	TTL      time.Duration
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Quote is a cart together with its freshly computed totals.
type Quote struct {
	Cart   db.Cart
	Totals pricing.Totals
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// FindCart returns the owner's cart without creating one.
func (s *Service) FindCart(ctx context.Context, owner Owner) (db.Cart, error) {
	if err := s.ready(); err != nil {
		return db.Cart{}, err
	}
	return findCart(ctx, s.Q, owner)
}

func findCart(ctx context.Context, q Querier, owner Owner) (db.Cart, error) {
	var (
		c   db.Cart
		err error
	)
	switch {
	case owner.UserID != nil:
		c, err = q.GetCartByUser(ctx, *owner.UserID)
	case strings.TrimSpace(owner.AnonID) != "":
		c, err = q.GetCartByAnon(ctx, strings.TrimSpace(owner.AnonID))
	default:
		return db.Cart{}, fmt.Errorf("cart owner required: %w", ErrInvalidInput)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return db.Cart{}, ErrNotFound
	}
	return c, err
}

// EnsureCart loads or creates the owner's cart and extends its expiry.
func (s *Service) EnsureCart(ctx context.Context, owner Owner) (db.Cart, error) {
	if err := s.ready(); err != nil {
		return db.Cart{}, err
	}
	return s.ensureCart(ctx, s.Q, owner)
}

func (s *Service) ensureCart(ctx context.Context, q Querier, owner Owner) (db.Cart, error) {
	if !owner.valid() {
		return db.Cart{}, fmt.Errorf("cart owner required: %w", ErrInvalidInput)
	}
	expires := s.now().Add(s.ttl())
	c, err := findCart(ctx, q, owner)
	if err == nil {
		if err := q.TouchCart(ctx, c.ID, expires); err != nil {
			return db.Cart{}, err
		}
		c.ExpiresAt = expires
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return db.Cart{}, err
	}
	params := db.CreateCartParams{ExpiresAt: expires}
	if owner.UserID != nil {
		params.UserID = owner.UserID
	} else {
		anon := strings.TrimSpace(owner.AnonID)
		params.AnonID = &anon
	}
	return q.CreateCart(ctx, params)
}

// AddItem inserts a product or increments its quantity. The product must exist and be active.
func (s *Service) AddItem(ctx context.Context, owner Owner, productID uuid.UUID, qty int) (db.Cart, error) {
	if err := s.ready(); err != nil {
		return db.Cart{}, err
	}
	if qty <= 0 || qty > int(db.MaxCartItemQuantity) {
		return db.Cart{}, fmt.Errorf("qty must be between 1 and %d: %w", db.MaxCartItemQuantity, ErrInvalidInput)
	}
	product, err := s.Q.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Cart{}, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		return db.Cart{}, err
	}
	if !product.IsActive {
		return db.Cart{}, fmt.Errorf("product %s is not available: %w", productID, ErrInvalidInput)
	}
	c, err := s.EnsureCart(ctx, owner)
	if err != nil {
		return db.Cart{}, err
	}
	items, err := s.Q.ListCartItems(ctx, c.ID)
	if err != nil {
		return db.Cart{}, err
	}
	total := qty
	for _, it := range items {
		if it.ProductID == productID {
			total += int(it.Quantity)
		}
	}
	if total > int(db.MaxCartItemQuantity) {
		return db.Cart{}, fmt.Errorf("qty for product %s would exceed %d: %w", productID, db.MaxCartItemQuantity, ErrInvalidInput)
	}
	if _, err := s.Q.AddCartItem(ctx, c.ID, productID, int32(qty)); err != nil {
		return db.Cart{}, err
	}
	return c, nil
}

// UpdateQty sets the absolute quantity of a line. Zero removes the line.
func (s *Service) UpdateQty(ctx context.Context, owner Owner, productID uuid.UUID, qty int) (db.Cart, error) {
	if err := s.ready(); err != nil {
		return db.Cart{}, err
	}
	if qty < 0 || qty > int(db.MaxCartItemQuantity) {
		return db.Cart{}, fmt.Errorf("qty must be between 0 and %d: %w", db.MaxCartItemQuantity, ErrInvalidInput)
	}
	if qty == 0 {
		return s.RemoveItem(ctx, owner, productID)
	}
	c, err := s.FindCart(ctx, owner)
	if err != nil {
		return db.Cart{}, err
	}
	ok, err := s.Q.UpdateCartItemQuantity(ctx, c.ID, productID, int32(qty))
	if err != nil {
		return db.Cart{}, err
	}
	if !ok {
		return db.Cart{}, fmt.Errorf("cart item %s: %w", productID, ErrNotFound)
	}
	return c, nil
}

// RemoveItem deletes a line from the owner's cart.
func (s *Service) RemoveItem(ctx context.Context, owner Owner, productID uuid.UUID) (db.Cart, error) {
	if err := s.ready(); err != nil {
		return db.Cart{}, err
	}
	c, err := s.FindCart(ctx, owner)
	if err != nil {
		return db.Cart{}, err
	}
	ok, err := s.Q.DeleteCartItem(ctx, c.ID, productID)
	if err != nil {
		return db.Cart{}, err
	}
	if !ok {
		return db.Cart{}, fmt.Errorf("cart item %s: %w", productID, ErrNotFound)
	}
	return c, nil
}

// ApplyCoupon validates the code against the cart's current VAT-inclusive
// subtotal and attaches it on success. Rejections are returned as
// *common.AppError values describing the reason.
func (s *Service) ApplyCoupon(ctx context.Context, owner Owner, code string) (Quote, error) {
	if err := s.ready(); err != nil {
		return Quote{}, err
	}
	if s.Coupons == nil {
		return Quote{}, errors.New("coupon evaluator not configured")
	}
	c, err := s.FindCart(ctx, owner)
	if err != nil {
		return Quote{}, err
	}
	c.CouponCode = nil
	base, err := s.Quote(ctx, c)
	if err != nil {
		return Quote{}, err
	}
	coupon, err := s.Coupons.Evaluate(ctx, code, base.Totals.TaxInclusiveTotal)
	if err != nil {
		return Quote{}, err
	}
	attached := coupon.Code
	if err := s.Q.SetCartCoupon(ctx, c.ID, &attached); err != nil {
		return Quote{}, err
	}
	c.CouponCode = &attached
	return s.Quote(ctx, c)
}

// RemoveCoupon detaches any coupon from the owner's cart.
func (s *Service) RemoveCoupon(ctx context.Context, owner Owner) (db.Cart, error) {
	if err := s.ready(); err != nil {
		return db.Cart{}, err
	}
	c, err := s.FindCart(ctx, owner)
	if err != nil {
		return db.Cart{}, err
	}
	if err := s.Q.SetCartCoupon(ctx, c.ID, nil); err != nil {
		return db.Cart{}, err
	}
	c.CouponCode = nil
	return c, nil
}

// Quote recomputes the cart's totals from live product prices, current
// settings and the current state of any attached coupon.
func (s *Service) Quote(ctx context.Context, c db.Cart) (Quote, error) {
	if err := s.ready(); err != nil {
		return Quote{}, err
	}
	rows, err := s.Q.ListCartLines(ctx, c.ID)
	if err != nil {
		return Quote{}, err
	}
	items, err := LineItems(rows)
	if err != nil {
		return Quote{}, err
	}
	settings := pricing.DefaultSettings()
	if s.Settings != nil {
		if settings, err = s.Settings.GetPricingSettings(ctx); err != nil {
			return Quote{}, err
		}
	}

	var (
		coupon   *voucher.Coupon
		notFound bool
	)
	if c.CouponCode != nil && *c.CouponCode != "" && s.Coupons != nil {
		coupon, err = s.Coupons.FindCouponByCode(ctx, *c.CouponCode)
		switch {
		case errors.Is(err, voucher.ErrNotEligible):
			notFound = true
		case err != nil:
			return Quote{}, err
		}
	}

	totals, err := pricing.Calculate(items, settings, coupon, s.now())
	if err != nil {
		return Quote{}, err
	}
	if notFound {
		totals.CouponCode = *c.CouponCode
		totals.CouponRejection = voucher.ErrNotEligible
	}
	if totals.CouponCode != "" {
		obs.Inc(obs.CouponEvaluationsTotal, "calculate", voucher.Reason(totals.CouponRejection))
	}
	return Quote{Cart: c, Totals: totals}, nil
}

// LineItems converts joined cart rows into pricing inputs. A row whose product
// is missing or inactive yields ErrUnknownProduct.
func LineItems(rows []db.CartLine) ([]pricing.LineItem, error) {
	items := make([]pricing.LineItem, 0, len(rows))
	for _, r := range rows {
		if !r.ProductFound || !r.ProductActive {
			return nil, fmt.Errorf("product %s: %w", r.ProductID, ErrUnknownProduct)
		}
		items = append(items, pricing.LineItem{
			ProductID: r.ProductID,
			Name:      r.Name,
			UnitPrice: r.Price,
			VatRate:   r.VatRate,
			Quantity:  int(r.Quantity),
		})
	}
	return items, nil
}

// MergeGuest folds the guest cart identified by anonID into the user's cart
// and deletes the guest cart. Concurrent merges for one user are serialised.
// A missing guest cart is a no-op, so replaying a completed merge changes nothing.
func (s *Service) MergeGuest(ctx context.Context, userID uuid.UUID, anonID string) (db.Cart, error) {
	if err := s.ready(); err != nil {
		return db.Cart{}, err
	}
	if s.Tx == nil {
		return db.Cart{}, errors.New("cart transactions not configured")
	}
	anonID = strings.TrimSpace(anonID)
	if anonID == "" {
		return db.Cart{}, fmt.Errorf("anonId is required: %w", ErrInvalidInput)
	}

	var result db.Cart
	run := func(ctx context.Context) error {
		return s.Tx(ctx, func(q Querier) error {
			c, err := s.mergeTx(ctx, q, userID, anonID)
			result = c
			return err
		})
	}
	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, lock.CartMergeKey(userID.String()), s.lockTTL(), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		obs.Inc(obs.CartMergesTotal, "error")
		s.Logger.Error().Err(err).Str("user_id", userID.String()).Msg("cart merge failed")
		return db.Cart{}, err
	}
	return result, nil
}

func (s *Service) mergeTx(ctx context.Context, q Querier, userID uuid.UUID, anonID string) (db.Cart, error) {
	userCart, err := s.ensureCart(ctx, q, Owner{UserID: &userID})
	if err != nil {
		return db.Cart{}, err
	}
	guestCart, err := q.GetCartByAnon(ctx, anonID)
	if errors.Is(err, pgx.ErrNoRows) {
		obs.Inc(obs.CartMergesTotal, "noop")
		return userCart, nil
	}
	if err != nil {
		return db.Cart{}, err
	}

	guestItems, err := q.ListCartItems(ctx, guestCart.ID)
	if err != nil {
		return db.Cart{}, err
	}
	userItems, err := q.ListCartItems(ctx, userCart.ID)
	if err != nil {
		return db.Cart{}, err
	}
	for _, l := range Merge(toLines(guestItems), toLines(userItems)) {
		if err := q.SetCartItemQuantity(ctx, userCart.ID, l.ProductID, int32(l.Quantity)); err != nil {
			return db.Cart{}, err
		}
	}
	if userCart.CouponCode == nil && guestCart.CouponCode != nil {
		if err := q.SetCartCoupon(ctx, userCart.ID, guestCart.CouponCode); err != nil {
			return db.Cart{}, err
		}
		userCart.CouponCode = guestCart.CouponCode
	}
	if err := q.DeleteCart(ctx, guestCart.ID); err != nil {
		return db.Cart{}, err
	}
	obs.Inc(obs.CartMergesTotal, "merged")
	s.Logger.Info().
		Str("user_id", userID.String()).
		Int("guest_lines", len(guestItems)).
		Msg("guest cart merged")
	return userCart, nil
}

func toLines(items []db.CartItem) []Line {
	out := make([]Line, 0, len(items))
	for _, it := range items {
		out = append(out, Line{ProductID: it.ProductID, Quantity: int(it.Quantity)})
	}
	return out
}

// PurgeExpiredGuestCarts deletes guest carts that expired before now.
func (s *Service) PurgeExpiredGuestCarts(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.Q.DeleteExpiredGuestCarts(ctx, s.now())
}

// HTTPError maps service errors onto API errors.
func HTTPError(err error) error {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrUnknownProduct):
		return common.NewAppError("DATA_INTEGRITY", "cart contains a product that is no longer available", http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrNotFound):
		return common.NotFound(err.Error(), err)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, pricing.ErrInvalidLine):
		return common.BadRequest(err.Error(), err)
	case errors.Is(err, lock.ErrNotAcquired):
		return common.NewAppError("CONFLICT", "cart is busy, retry shortly", http.StatusConflict, err)
	default:
		return err
	}
}
