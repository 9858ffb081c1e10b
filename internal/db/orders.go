package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, user_id, status, payment_method, currency, coupon_code,
    subtotal, vat_total, tax_inclusive_total, discount, shipping_fee, grand_total,
    shipping_address, billing_address, shipping_note, shipping_note_at, shipping_note_by,
    paid_at, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.PaymentMethod, &o.Currency, &o.CouponCode,
		&o.Subtotal, &o.VatTotal, &o.TaxInclusiveTotal, &o.Discount, &o.ShippingFee, &o.GrandTotal,
		&o.ShippingAddress, &o.BillingAddress, &o.ShippingNote, &o.ShippingNoteAt, &o.ShippingNoteBy,
		&o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// NextOrderSequence returns the next per-day counter value, starting at 1.
func (q *Queries) NextOrderSequence(ctx context.Context, day time.Time) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, `INSERT INTO order_counters (day, last) VALUES ($1::date, 1)
ON CONFLICT (day) DO UPDATE SET last = order_counters.last + 1
RETURNING last`, day.Format("2006-01-02")).Scan(&n)
	return n, err
}

type CreateOrderParams struct {
	OrderNumber       string
	UserID            uuid.UUID
	Status            string
	PaymentMethod     string
	Currency          string
	CouponCode        *string
	Subtotal          decimal.Decimal
	VatTotal          decimal.Decimal
	TaxInclusiveTotal decimal.Decimal
	Discount          decimal.Decimal
	ShippingFee       decimal.Decimal
	GrandTotal        decimal.Decimal
	ShippingAddress   []byte
	BillingAddress    []byte
	CreatedAt         time.Time
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	const stmt = `INSERT INTO orders (order_number, user_id, status, payment_method, currency, coupon_code,
    subtotal, vat_total, tax_inclusive_total, discount, shipping_fee, grand_total,
    shipping_address, billing_address, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, stmt, arg.OrderNumber, arg.UserID, arg.Status, arg.PaymentMethod, arg.Currency,
		arg.CouponCode, arg.Subtotal, arg.VatTotal, arg.TaxInclusiveTotal, arg.Discount, arg.ShippingFee, arg.GrandTotal,
		arg.ShippingAddress, arg.BillingAddress, arg.CreatedAt))
}

type CreateOrderItemParams struct {
	OrderID      uuid.UUID
	ProductID    *uuid.UUID
	ProductName  string
	UnitPrice    decimal.Decimal
	Quantity     int32
	VatRate      decimal.Decimal
	VatAmount    decimal.Decimal
	LineSubtotal decimal.Decimal
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) error {
	_, err := q.db.Exec(ctx, `INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity,
    vat_rate, vat_amount, line_subtotal)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, arg.OrderID, arg.ProductID, arg.ProductName, arg.UnitPrice, arg.Quantity,
		arg.VatRate, arg.VatAmount, arg.LineSubtotal)
	return err
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (q *Queries) GetOrderByNumber(ctx context.Context, number string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number))
}

func (q *Queries) GetOrderForUser(ctx context.Context, id, userID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID))
}

// ListOrdersByUser hides card orders still awaiting payment; pending bank
// transfers stay visible so the customer can see the transfer instructions.
func (q *Queries) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Order, error) {
	rows, err := q.db.Query(ctx, `SELECT `+orderColumns+` FROM orders
WHERE user_id = $1 AND (status <> 'pending' OR payment_method = 'bank_transfer')
ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) {
		return scanOrder(row)
	})
}

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `SELECT id, order_id, product_id, product_name, unit_price, quantity,
    vat_rate, vat_amount, line_subtotal
FROM order_items WHERE order_id = $1 ORDER BY product_name, id`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OrderItem, error) {
		var it OrderItem
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity,
			&it.VatRate, &it.VatAmount, &it.LineSubtotal)
		return it, err
	})
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
RETURNING `+orderColumns, id, status))
}

type SetShippingNoteParams struct {
	ID   uuid.UUID
	Note *string
	By   string
	At   time.Time
}

func (q *Queries) SetOrderShippingNote(ctx context.Context, arg SetShippingNoteParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `UPDATE orders SET shipping_note = $2, shipping_note_by = $3,
    shipping_note_at = $4, updated_at = now()
WHERE id = $1
RETURNING `+orderColumns, arg.ID, arg.Note, arg.By, arg.At))
}

// MarkOrderPaid moves a pending order to approved. It reports false when the
// order was not pending, which makes repeated callbacks harmless.
func (q *Queries) MarkOrderPaid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE orders SET status = 'approved', paid_at = $2, updated_at = now()
WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
