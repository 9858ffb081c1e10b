package voucher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

// ErrCouponExists is returned when creating a coupon whose code is taken.
var ErrCouponExists = errors.New("coupon code already exists")

// Querier captures the database methods required by the coupon service.
type Querier interface {
	GetCouponByCode(ctx context.Context, code string) (db.Coupon, error)
	ListCoupons(ctx context.Context, limit, offset int32) ([]db.Coupon, error)
	CreateCoupon(ctx context.Context, arg db.UpsertCouponParams) (db.Coupon, error)
	UpdateCoupon(ctx context.Context, arg db.UpsertCouponParams) (db.Coupon, error)
	DeleteCoupon(ctx context.Context, code string) (bool, error)
}

// Service looks up coupons and evaluates them against cart totals.
type Service struct {
	Q   Querier
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// FindCouponByCode performs a case-sensitive exact lookup. Surrounding
// whitespace is ignored. A missing coupon yields ErrNotEligible.
func (s *Service) FindCouponByCode(ctx context.Context, code string) (*Coupon, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("coupon service not configured")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, fmt.Errorf("code is required: %w", ErrNotEligible)
	}
	row, err := s.Q.GetCouponByCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotEligible
		}
		return nil, err
	}
	c := CouponFromModel(row)
	return &c, nil
}

// Evaluate loads the coupon and checks it against a VAT-inclusive subtotal at
// the current instant. The returned error is an *common.AppError suitable for
// clients when the coupon is missing or ineligible.
func (s *Service) Evaluate(ctx context.Context, code string, taxInclusive decimal.Decimal) (*Coupon, error) {
	c, err := s.FindCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotEligible) {
			obs.Inc(obs.CouponEvaluationsTotal, "apply", Reason(err))
			return nil, RejectionError(err)
		}
		return nil, err
	}
	err = c.Validate(s.now(), taxInclusive)
	obs.Inc(obs.CouponEvaluationsTotal, "apply", Reason(err))
	if err != nil {
		return nil, RejectionError(err)
	}
	return c, nil
}

// RejectionMessage renders a customer-facing explanation for an ineligible coupon.
func RejectionMessage(err error) string {
	var minErr *MinimumSpendError
	switch {
	case errors.As(err, &minErr):
		return fmt.Sprintf("This coupon requires a minimum cart amount of %s.", minErr.Minimum.StringFixed(2))
	case errors.Is(err, ErrVoucherExpired):
		return "This coupon has expired."
	case errors.Is(err, ErrVoucherNotStarted):
		return "This coupon is not valid yet."
	case errors.Is(err, ErrVoucherInactive):
		return "This coupon is no longer active."
	case errors.Is(err, ErrNotEligible):
		return "Invalid coupon code."
	default:
		return "This coupon cannot be applied."
	}
}

// RejectionError wraps a validation failure into the API error shape.
func RejectionError(err error) *common.AppError {
	details := map[string]any{"reason": Reason(err)}
	var minErr *MinimumSpendError
	if errors.As(err, &minErr) {
		details["minimum"] = minErr.Minimum.StringFixed(2)
	}
	return common.NewAppError("COUPON_REJECTED", RejectionMessage(err), http.StatusBadRequest, err).WithDetails(details)
}

// List returns coupons ordered by newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Coupon, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("coupon service not configured")
	}
	rows, err := s.Q.ListCoupons(ctx, int32(limit), int32(offset))
	if err != nil {
		return nil, err
	}
	out := make([]Coupon, 0, len(rows))
	for _, r := range rows {
		out = append(out, CouponFromModel(r))
	}
	return out, nil
}

// Create validates and stores a new coupon.
func (s *Service) Create(ctx context.Context, c Coupon) (Coupon, error) {
	if s == nil || s.Q == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	c.Code = strings.TrimSpace(c.Code)
	if err := c.CheckDefinition(); err != nil {
		return Coupon{}, common.BadRequest(err.Error(), err)
	}
	row, err := s.Q.CreateCoupon(ctx, toParams(c))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Coupon{}, common.NewAppError("CONFLICT", ErrCouponExists.Error(), http.StatusConflict, ErrCouponExists)
		}
		return Coupon{}, err
	}
	return CouponFromModel(row), nil
}

// Update replaces the definition of the coupon identified by c.Code.
func (s *Service) Update(ctx context.Context, c Coupon) (Coupon, error) {
	if s == nil || s.Q == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	if err := c.CheckDefinition(); err != nil {
		return Coupon{}, common.BadRequest(err.Error(), err)
	}
	row, err := s.Q.UpdateCoupon(ctx, toParams(c))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, common.NotFound("coupon not found", err)
		}
		return Coupon{}, err
	}
	return CouponFromModel(row), nil
}

// Delete removes a coupon. Carts still referencing the code see it as invalid on next calculation.
func (s *Service) Delete(ctx context.Context, code string) error {
	if s == nil || s.Q == nil {
		return errors.New("coupon service not configured")
	}
	ok, err := s.Q.DeleteCoupon(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return common.NotFound("coupon not found", nil)
	}
	return nil
}

// CouponFromModel converts the stored row into the evaluation type.
func CouponFromModel(v db.Coupon) Coupon {
	kind, err := ParseKind(v.DiscountType)
	if err != nil {
		kind = KindFixed
	}
	c := Coupon{
		ID:        v.ID,
		Code:      v.Code,
		Kind:      kind,
		Value:     v.DiscountValue,
		StartDate: v.StartDate,
		EndDate:   v.EndDate,
		Active:    v.IsActive,
	}
	if v.MinCartAmount.Valid {
		min := v.MinCartAmount.Decimal
		c.MinCartAmount = &min
	}
	return c
}

func toParams(c Coupon) db.UpsertCouponParams {
	p := db.UpsertCouponParams{
		Code:          c.Code,
		DiscountType:  string(c.Kind),
		DiscountValue: c.Value,
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
		IsActive:      c.Active,
	}
	if c.MinCartAmount != nil {
		p.MinCartAmount = decimal.NullDecimal{Decimal: *c.MinCartAmount, Valid: true}
	}
	return p
}
