package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCartChanged is returned when the cart was modified, emptied or removed while an order was being committed.
var ErrCartChanged = errors.New("cart changed during checkout")

// Store bundles the queries with the pool needed to open transactions.
type Store struct {
	*Queries
	Pool *pgxpool.Pool
}

// NewStore builds a Store on top of the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: New(pool), Pool: pool}
}

// ExecTx runs fn inside a transaction, committing when fn returns nil.
func (s *Store) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	if s == nil || s.Pool == nil {
		return errors.New("db: store not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// QuotedLine is a cart line as it was priced for the order.
type QuotedLine struct {
	ProductID uuid.UUID
	Quantity  int32
}

type CommitOrderParams struct {
	Order  CreateOrderParams
	Items  []CreateOrderItemParams
	CartID uuid.UUID
	// Lines and CouponCode describe the cart the order was priced from.
	Lines      []QuotedLine
	CouponCode *string
}

// CommitOrder persists the order and its items, empties the cart and detaches
// its coupon in a single transaction. Nothing is written if any step fails.
// ErrCartChanged is returned when the locked cart no longer holds exactly the
// quoted lines and coupon.
func (s *Store) CommitOrder(ctx context.Context, arg CommitOrderParams) (Order, error) {
	var order Order
	err := s.ExecTx(ctx, func(q *Queries) error {
		locked, err := q.GetCartByIDForUpdate(ctx, arg.CartID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCartChanged
			}
			return fmt.Errorf("lock cart: %w", err)
		}
		items, err := q.ListCartItems(ctx, arg.CartID)
		if err != nil {
			return fmt.Errorf("list cart items: %w", err)
		}
		if len(items) == 0 || !CartMatchesQuote(locked, items, arg.Lines, arg.CouponCode) {
			return ErrCartChanged
		}
		order, err = q.CreateOrder(ctx, arg.Order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, it := range arg.Items {
			it.OrderID = order.ID
			if err := q.CreateOrderItem(ctx, it); err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}
		if err := q.ClearCartItems(ctx, arg.CartID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if err := q.SetCartCoupon(ctx, arg.CartID, nil); err != nil {
			return fmt.Errorf("detach coupon: %w", err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// CartMatchesQuote reports whether the cart rows are exactly the quoted lines
// and the cart still carries the quoted coupon.
func CartMatchesQuote(c Cart, items []CartItem, lines []QuotedLine, coupon *string) bool {
	if !strings.EqualFold(deref(c.CouponCode), deref(coupon)) {
		return false
	}
	if len(items) != len(lines) {
		return false
	}
	want := make(map[uuid.UUID]int32, len(lines))
	for _, l := range lines {
		want[l.ProductID] = l.Quantity
	}
	for _, it := range items {
		qty, ok := want[it.ProductID]
		if !ok || qty != it.Quantity {
			return false
		}
		delete(want, it.ProductID)
	}
	return len(want) == 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
