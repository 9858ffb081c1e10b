package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const couponColumns = `id, code, discount_type, discount_value, min_cart_amount, start_date, end_date, is_active, created_at, updated_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MinCartAmount,
		&c.StartDate, &c.EndDate, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetCouponByCode performs a case-sensitive exact match.
func (q *Queries) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	return scanCoupon(q.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
}

func (q *Queries) ListCoupons(ctx context.Context, limit, offset int32) ([]Coupon, error) {
	rows, err := q.db.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Coupon, error) {
		return scanCoupon(row)
	})
}

type UpsertCouponParams struct {
	Code          string
	DiscountType  string
	DiscountValue decimal.Decimal
	MinCartAmount decimal.NullDecimal
	StartDate     time.Time
	EndDate       time.Time
	IsActive      bool
}

func (q *Queries) CreateCoupon(ctx context.Context, arg UpsertCouponParams) (Coupon, error) {
	const stmt = `INSERT INTO coupons (code, discount_type, discount_value, min_cart_amount, start_date, end_date, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + couponColumns
	return scanCoupon(q.db.QueryRow(ctx, stmt, arg.Code, arg.DiscountType, arg.DiscountValue, arg.MinCartAmount,
		arg.StartDate, arg.EndDate, arg.IsActive))
}

func (q *Queries) UpdateCoupon(ctx context.Context, arg UpsertCouponParams) (Coupon, error) {
	const stmt = `UPDATE coupons SET discount_type = $2, discount_value = $3, min_cart_amount = $4,
    start_date = $5, end_date = $6, is_active = $7, updated_at = now()
WHERE code = $1
RETURNING ` + couponColumns
	return scanCoupon(q.db.QueryRow(ctx, stmt, arg.Code, arg.DiscountType, arg.DiscountValue, arg.MinCartAmount,
		arg.StartDate, arg.EndDate, arg.IsActive))
}

func (q *Queries) DeleteCoupon(ctx context.Context, code string) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM coupons WHERE code = $1`, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
