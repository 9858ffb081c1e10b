package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const cartColumns = `id, user_id, anon_id, coupon_code, created_at, updated_at, expires_at`

func scanCart(row pgx.Row) (Cart, error) {
	var c Cart
	err := row.Scan(&c.ID, &c.UserID, &c.AnonID, &c.CouponCode, &c.CreatedAt, &c.UpdatedAt, &c.ExpiresAt)
	return c, err
}

func (q *Queries) GetCartByID(ctx context.Context, id uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id))
}

// GetCartByIDForUpdate locks the cart row for the remainder of the transaction.
func (q *Queries) GetCartByIDForUpdate(ctx context.Context, id uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) GetCartByUser(ctx context.Context, userID uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE user_id = $1`, userID))
}

func (q *Queries) GetCartByAnon(ctx context.Context, anonID string) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE anon_id = $1`, anonID))
}

type CreateCartParams struct {
	UserID    *uuid.UUID
	AnonID    *string
	ExpiresAt time.Time
}

// CreateCart inserts a cart owned by exactly one of UserID or AnonID. A concurrent
// insert for the same owner resolves to the existing row.
func (q *Queries) CreateCart(ctx context.Context, arg CreateCartParams) (Cart, error) {
	const stmt = `INSERT INTO carts (user_id, anon_id, expires_at) VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING
RETURNING ` + cartColumns
	cart, err := scanCart(q.db.QueryRow(ctx, stmt, arg.UserID, arg.AnonID, arg.ExpiresAt))
	if errors.Is(err, pgx.ErrNoRows) {
		if arg.UserID != nil {
			return q.GetCartByUser(ctx, *arg.UserID)
		}
		if arg.AnonID != nil {
			return q.GetCartByAnon(ctx, *arg.AnonID)
		}
	}
	return cart, err
}

func (q *Queries) TouchCart(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE carts SET updated_at = now(), expires_at = $2 WHERE id = $1`, id, expiresAt)
	return err
}

// SetCartCoupon attaches a coupon code; nil detaches it.
func (q *Queries) SetCartCoupon(ctx context.Context, id uuid.UUID, code *string) error {
	_, err := q.db.Exec(ctx, `UPDATE carts SET coupon_code = $2, updated_at = now() WHERE id = $1`, id, code)
	return err
}

func (q *Queries) DeleteCart(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM carts WHERE id = $1`, id)
	return err
}

// DeleteExpiredGuestCarts removes anonymous carts whose expiry lies before the cutoff.
func (q *Queries) DeleteExpiredGuestCarts(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM carts WHERE anon_id IS NOT NULL AND expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListCartItems(ctx context.Context, cartID uuid.UUID) ([]CartItem, error) {
	rows, err := q.db.Query(ctx, `SELECT id, cart_id, product_id, quantity, created_at
FROM cart_items WHERE cart_id = $1 ORDER BY created_at, id`, cartID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CartItem, error) {
		var it CartItem
		err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt)
		return it, err
	})
}

// ListCartLines returns the cart's items joined with current product pricing.
func (q *Queries) ListCartLines(ctx context.Context, cartID uuid.UUID) ([]CartLine, error) {
	rows, err := q.db.Query(ctx, `SELECT ci.product_id, ci.quantity, p.id IS NOT NULL,
       COALESCE(p.name, ''), COALESCE(p.price, 0), COALESCE(p.vat_rate, 0), COALESCE(p.is_active, FALSE)
FROM cart_items ci
LEFT JOIN products p ON p.id = ci.product_id
WHERE ci.cart_id = $1
ORDER BY ci.created_at, ci.id`, cartID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CartLine, error) {
		var l CartLine
		err := row.Scan(&l.ProductID, &l.Quantity, &l.ProductFound, &l.Name, &l.Price, &l.VatRate, &l.ProductActive)
		return l, err
	})
}

// MaxCartItemQuantity bounds the quantity a single add can bring a line to.
const MaxCartItemQuantity int32 = 999

// AddCartItem inserts the product or increments the existing line's quantity.
// The increment never takes the line past MaxCartItemQuantity and never lowers
// a line that is already above it.
func (q *Queries) AddCartItem(ctx context.Context, cartID, productID uuid.UUID, qty int32) (CartItem, error) {
	const stmt = `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, LEAST($3, $4::int))
ON CONFLICT (cart_id, product_id) DO UPDATE
SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, GREATEST(cart_items.quantity, $4::int))
RETURNING id, cart_id, product_id, quantity, created_at`
	var it CartItem
	err := q.db.QueryRow(ctx, stmt, cartID, productID, qty, MaxCartItemQuantity).Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt)
	return it, err
}

// SetCartItemQuantity upserts the line with an absolute quantity.
func (q *Queries) SetCartItemQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int32) error {
	_, err := q.db.Exec(ctx, `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)
ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`, cartID, productID, qty)
	return err
}

// UpdateCartItemQuantity changes an existing line and reports whether it existed.
func (q *Queries) UpdateCartItemQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int32) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`, cartID, productID, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) DeleteCartItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) ClearCartItems(ctx context.Context, cartID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return err
}
