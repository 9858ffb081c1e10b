package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/user"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

var checkoutNow = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

type fakeCarts struct {
	cart   *db.Cart
	items  []pricing.LineItem
	coupon *voucher.Coupon
}

func (f *fakeCarts) FindCart(ctx context.Context, owner cart.Owner) (db.Cart, error) {
	if f.cart == nil {
		return db.Cart{}, cart.ErrNotFound
	}
	return *f.cart, nil
}

func (f *fakeCarts) Quote(ctx context.Context, c db.Cart) (cart.Quote, error) {
	threshold := pricing.MustMoney("200")
	totals, err := pricing.Calculate(f.items, pricing.Settings{VatRate: pricing.MustMoney("10"),
		ShippingFee: pricing.MustMoney("15"), FreeShippingThreshold: &threshold}, f.coupon, checkoutNow)
	return cart.Quote{Cart: c, Totals: totals}, err
}

type fakeAddresses struct {
	owner uuid.UUID
	rows  map[uuid.UUID]db.Address
}

func (f *fakeAddresses) Resolve(ctx context.Context, userID, addressID uuid.UUID) (db.Address, error) {
	a, ok := f.rows[addressID]
	if !ok || userID != f.owner {
		return db.Address{}, common.NotFound("address not found", user.ErrAddressNotFound)
	}
	return a, nil
}

type fakeStore struct {
	seq       int32
	committed []db.CommitOrderParams
	commitErr error
	// locked holds the cart rows seen under the lock; nil skips the check.
	locked []db.CartItem
}

func (f *fakeStore) NextOrderSequence(ctx context.Context, day time.Time) (int32, error) {
	f.seq++
	return f.seq, nil
}

func (f *fakeStore) CommitOrder(ctx context.Context, arg db.CommitOrderParams) (db.Order, error) {
	if f.commitErr != nil {
		return db.Order{}, f.commitErr
	}
	if f.locked != nil && !db.CartMatchesQuote(db.Cart{ID: arg.CartID}, f.locked, arg.Lines, arg.CouponCode) {
		return db.Order{}, db.ErrCartChanged
	}
	f.committed = append(f.committed, arg)
	return db.Order{
		ID: uuid.New(), OrderNumber: arg.Order.OrderNumber, UserID: arg.Order.UserID, Status: arg.Order.Status,
		PaymentMethod: arg.Order.PaymentMethod, Currency: arg.Order.Currency, GrandTotal: arg.Order.GrandTotal,
		CreatedAt: arg.Order.CreatedAt,
	}, nil
}

type captureEmitter struct {
	topics []string
}

func (c *captureEmitter) Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (db.DomainEvent, error) {
	c.topics = append(c.topics, topic)
	return db.DomainEvent{}, nil
}

type fixture struct {
	svc      *Service
	carts    *fakeCarts
	store    *fakeStore
	events   *captureEmitter
	userID   uuid.UUID
	homeID   uuid.UUID
	officeID uuid.UUID
}

func newFixture() *fixture {
	userID, homeID, officeID := uuid.New(), uuid.New(), uuid.New()
	taxNo := "1234567890"
	company := "Acme Ltd"
	cartID := uuid.New()
	f := &fixture{
		carts: &fakeCarts{
			cart: &db.Cart{ID: cartID, UserID: &userID},
			items: []pricing.LineItem{
				{ProductID: uuid.New(), Name: "Kettle", UnitPrice: pricing.MustMoney("100"), VatRate: pricing.MustMoney("20"), Quantity: 2},
				{ProductID: uuid.New(), Name: "Mug", UnitPrice: pricing.MustMoney("50"), Quantity: 1},
			},
			coupon: &voucher.Coupon{Code: "SAVE10", Kind: voucher.KindPercentage, Value: pricing.MustMoney("10"),
				StartDate: checkoutNow.Add(-time.Hour), EndDate: checkoutNow.Add(time.Hour), Active: true},
		},
		store:    &fakeStore{},
		events:   &captureEmitter{},
		userID:   userID,
		homeID:   homeID,
		officeID: officeID,
	}
	addresses := &fakeAddresses{owner: userID, rows: map[uuid.UUID]db.Address{
		homeID: {ID: homeID, UserID: userID, Title: "Home", FullName: "Ada", Phone: "555", Country: "TR",
			City: "Izmir", District: "Konak", OpenAddress: "Home St. 1"},
		officeID: {ID: officeID, UserID: userID, Title: "Office", FullName: "Ada", Phone: "555", Country: "TR",
			City: "Istanbul", District: "Sisli", OpenAddress: "Office Cd. 5", CompanyName: &company, TaxNumber: &taxNo},
	}}
	f.svc = &Service{
		Carts:     f.carts,
		Addresses: addresses,
		Store:     f.store,
		Events:    f.events,
		Currency:  "TRY",
		Now:       func() time.Time { return checkoutNow },
	}
	return f
}

func TestSubmitFreezesQuotedTotals(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Submit(context.Background(), f.userID, Input{ShippingAddressID: f.homeID.String(), PaymentMethod: "credit_card"})
	require.NoError(t, err)

	require.Equal(t, "ORD-20260301-0001", res.Order.OrderNumber)
	require.Equal(t, "270.00", res.Snapshot.GrandTotal.StringFixed(2))
	require.Equal(t, "25.00", res.Snapshot.Discount.StringFixed(2))
	require.Equal(t, "SAVE10", *res.Snapshot.CouponCode)
	require.Equal(t, res.Snapshot.ShippingAddress.Detail, res.Snapshot.BillingAddress.Detail)

	require.Len(t, f.store.committed, 1)
	committed := f.store.committed[0]
	require.Equal(t, f.carts.cart.ID, committed.CartID)
	require.Len(t, committed.Items, 2)
	require.Equal(t, "pending", committed.Order.Status)
	require.Equal(t, []string{"order.created"}, f.events.topics)
}

func TestSubmitUsesSeparateBillingAddress(t *testing.T) {
	f := newFixture()
	billing := f.officeID.String()
	res, err := f.svc.Submit(context.Background(), f.userID, Input{ShippingAddressID: f.homeID.String(), BillingAddressID: &billing, PaymentMethod: "bank_transfer"})
	require.NoError(t, err)
	require.Equal(t, "Izmir", res.Snapshot.ShippingAddress.City)
	require.Equal(t, "Istanbul", res.Snapshot.BillingAddress.City)
	require.Equal(t, "Acme Ltd", res.Snapshot.BillingAddress.CompanyName)
	require.Empty(t, res.Snapshot.ShippingAddress.CompanyName)
}

func TestSubmitEmptyCart(t *testing.T) {
	f := newFixture()
	f.carts.items = nil
	_, err := f.svc.Submit(context.Background(), f.userID, Input{ShippingAddressID: f.homeID.String(), PaymentMethod: "credit_card"})
	require.ErrorIs(t, err, ErrEmptyCart)

	f.carts.cart = nil
	_, err = f.svc.Submit(context.Background(), f.userID, Input{ShippingAddressID: f.homeID.String(), PaymentMethod: "credit_card"})
	require.ErrorIs(t, err, ErrEmptyCart)

	var appErr *common.AppError
	require.True(t, errors.As(HTTPError(err), &appErr))
	require.Equal(t, "EMPTY_CART", appErr.Code)
	require.Empty(t, f.store.committed)
}

func TestSubmitCommitFailureEmitsNothing(t *testing.T) {
	f := newFixture()
	f.store.commitErr = db.ErrCartChanged
	_, err := f.svc.Submit(context.Background(), f.userID, Input{ShippingAddressID: f.homeID.String(), PaymentMethod: "credit_card"})
	require.ErrorIs(t, err, db.ErrCartChanged)
	require.Empty(t, f.events.topics)

	var appErr *common.AppError
	require.True(t, errors.As(HTTPError(err), &appErr))
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)
}

func TestSubmitRejectsCartEditedAfterQuote(t *testing.T) {
	f := newFixture()
	kettle, mug := f.carts.items[0].ProductID, f.carts.items[1].ProductID
	f.store.locked = []db.CartItem{
		{ProductID: kettle, Quantity: 2},
		{ProductID: mug, Quantity: 1},
		{ProductID: uuid.New(), Quantity: 1},
	}
	in := Input{ShippingAddressID: f.homeID.String(), PaymentMethod: "credit_card"}

	_, err := f.svc.Submit(context.Background(), f.userID, in)
	require.ErrorIs(t, err, db.ErrCartChanged)
	require.Empty(t, f.store.committed)
	require.Empty(t, f.events.topics)

	f.store.locked = []db.CartItem{{ProductID: kettle, Quantity: 3}, {ProductID: mug, Quantity: 1}}
	_, err = f.svc.Submit(context.Background(), f.userID, in)
	require.ErrorIs(t, err, db.ErrCartChanged)

	f.store.locked = []db.CartItem{{ProductID: mug, Quantity: 1}, {ProductID: kettle, Quantity: 2}}
	_, err = f.svc.Submit(context.Background(), f.userID, in)
	require.NoError(t, err)
	require.Len(t, f.store.committed, 1)
	require.ElementsMatch(t, []db.QuotedLine{{ProductID: kettle, Quantity: 2}, {ProductID: mug, Quantity: 1}}, f.store.committed[0].Lines)
}

func TestSubmitRejectsForeignAddressAndBadMethod(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Submit(context.Background(), f.userID, Input{ShippingAddressID: uuid.NewString(), PaymentMethod: "credit_card"})
	require.ErrorIs(t, err, user.ErrAddressNotFound)

	_, err = f.svc.Submit(context.Background(), f.userID, Input{ShippingAddressID: f.homeID.String(), PaymentMethod: "cash"})
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
	require.Empty(t, f.store.committed)
}

func TestSubmitDropsCouponThatExpired(t *testing.T) {
	f := newFixture()
	f.carts.coupon.EndDate = checkoutNow.Add(-time.Minute)
	res, err := f.svc.Submit(context.Background(), f.userID, Input{ShippingAddressID: f.homeID.String(), PaymentMethod: "credit_card"})
	require.NoError(t, err)
	require.Nil(t, res.Snapshot.CouponCode)
	require.ErrorIs(t, res.CouponRejection, voucher.ErrVoucherExpired)
	require.Equal(t, "295.00", res.Snapshot.GrandTotal.StringFixed(2))
}

func TestHandlerCheckoutIsIdempotent(t *testing.T) {
	f := newFixture()
	mr := miniredis.RunT(t)
	idem := common.Idem{R: redis.NewClient(&redis.Options{Addr: mr.Addr()}), TTL: time.Hour}
	handler := idem.Middleware(http.HandlerFunc((&Handler{Svc: f.svc}).Checkout))

	body := `{"shippingAddressId":"` + f.homeID.String() + `","paymentMethod":"credit_card"}`
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "abc")
		req = req.WithContext(common.WithUserID(req.Context(), f.userID.String()))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}
	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	require.Contains(t, first.Body.String(), `"orderNumber":"ORD-20260301-0001"`)

	second := send()
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, second.Body.String(), "IDEMPOTENT_REPLAY")
	require.Len(t, f.store.committed, 1)
}
