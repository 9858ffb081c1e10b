package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

type stubStore struct {
	orders map[uuid.UUID]db.Order
	items  map[uuid.UUID][]db.OrderItem
	paid   int
}

func (s *stubStore) GetOrderForUser(ctx context.Context, id, userID uuid.UUID) (db.Order, error) {
	o, ok := s.orders[id]
	if !ok || o.UserID != userID {
		return db.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (s *stubStore) GetOrderByNumber(ctx context.Context, number string) (db.Order, error) {
	for _, o := range s.orders {
		if o.OrderNumber == number {
			return o, nil
		}
	}
	return db.Order{}, pgx.ErrNoRows
}

func (s *stubStore) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]db.OrderItem, error) {
	return s.items[orderID], nil
}

func (s *stubStore) MarkOrderPaid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	o := s.orders[id]
	if o.Status != "pending" {
		return false, nil
	}
	o.Status = "approved"
	o.PaidAt = &at
	s.orders[id] = o
	s.paid++
	return true, nil
}

type captureEmitter struct {
	topics []string
}

func (c *captureEmitter) Emit(ctx context.Context, topic string, id uuid.UUID, payload any) (db.DomainEvent, error) {
	c.topics = append(c.topics, topic)
	return db.DomainEvent{Topic: topic, AggregateID: id}, nil
}

type fixture struct {
	store  *stubStore
	events *captureEmitter
	svc    *Service
	paytr  PayTR
	order  db.Order
}

func newFixture(t *testing.T, method order.PaymentMethod) *fixture {
	t.Helper()
	addr, err := json.Marshal(order.AddressSnapshot{
		FullName: "Ayse Yilmaz", Phone: "05551112233", Country: "Turkey",
		City: "Istanbul", District: "Kadikoy", Detail: "Moda Cd. 1",
	})
	require.NoError(t, err)
	o := db.Order{
		ID:                uuid.New(),
		OrderNumber:       "ORD-20260301-0001",
		UserID:            uuid.New(),
		Status:            "pending",
		PaymentMethod:     string(method),
		Currency:          "TRY",
		Subtotal:          pricing.MustMoney("250"),
		VatTotal:          pricing.MustMoney("45"),
		TaxInclusiveTotal: pricing.MustMoney("295"),
		Discount:          pricing.MustMoney("25"),
		ShippingFee:       pricing.Zero,
		GrandTotal:        pricing.MustMoney("270"),
		ShippingAddress:   addr,
		BillingAddress:    addr,
	}
	pid := uuid.New()
	items := []db.OrderItem{
		{OrderID: o.ID, ProductID: &pid, ProductName: "Kettle", UnitPrice: pricing.MustMoney("100"), Quantity: 2,
			VatRate: pricing.MustMoney("20"), VatAmount: pricing.MustMoney("40"), LineSubtotal: pricing.MustMoney("200")},
		{OrderID: o.ID, ProductName: "Mug", UnitPrice: pricing.MustMoney("50"), Quantity: 1,
			VatRate: pricing.MustMoney("10"), VatAmount: pricing.MustMoney("5"), LineSubtotal: pricing.MustMoney("50")},
	}
	store := &stubStore{orders: map[uuid.UUID]db.Order{o.ID: o}, items: map[uuid.UUID][]db.OrderItem{o.ID: items}}
	em := &captureEmitter{}
	p := PayTR{MerchantID: "m-1", MerchantKey: "key", MerchantSalt: "salt", TestMode: true}
	iz := Iyzico{APIKey: "api", SecretKey: "secret", BaseURL: "https://sandbox-api.iyzipay.com", RandomKey: func() string { return "rnd" }}
	svc := &Service{
		Q:      store,
		Events: em,
		Providers: map[order.PaymentMethod]Provider{
			order.PaymentCreditCard:       p,
			order.PaymentCreditCardIyzico: iz,
		},
		CallbackBaseURL: "https://shop.example",
		Now:             func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return &fixture{store: store, events: em, svc: svc, paytr: p, order: o}
}

func (f *fixture) paytrCallback(status, total string) string {
	oid := MerchantOID(f.order.OrderNumber)
	form := url.Values{}
	form.Set("merchant_oid", oid)
	form.Set("status", status)
	form.Set("total_amount", total)
	form.Set("hash", f.paytr.CallbackHash(oid, status, total))
	return form.Encode()
}

func TestMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"270":    27000,
		"10.005": 1001,
		"10.004": 1000,
		"0":      0,
		"0.015":  2,
	}
	for in, want := range cases {
		got, err := MinorUnits(pricing.MustMoney(in))
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := MinorUnits(pricing.MustMoney("-0.01"))
	require.ErrorIs(t, err, ErrNegativeAmount)
	require.True(t, FromMinorUnits(27050).Equal(pricing.MustMoney("270.50")))
}

func TestChargedAmountMatchesSnapshotGrandTotal(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct{ price, coupon string }{
		{"1.19", "7.5"},
		{"2.09", "12.5"},
		{"2.99", "17.5"},
		{"100.00", "10"},
	}
	for _, tc := range cases {
		coupon := &voucher.Coupon{Code: "C", Kind: voucher.KindPercentage, Value: pricing.MustMoney(tc.coupon),
			StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour), Active: true}
		totals, err := pricing.Calculate([]pricing.LineItem{
			{ProductID: uuid.New(), Name: "Pen", UnitPrice: pricing.MustMoney(tc.price), Quantity: 1},
		}, pricing.Settings{VatRate: pricing.MustMoney("18"), ShippingFee: pricing.Zero}, coupon, now)
		require.NoError(t, err)

		snap, err := order.Build(order.SnapshotInput{
			Number: order.FormatNumber(now, 1), UserID: uuid.New(), PaymentMethod: order.PaymentCreditCard,
			Currency: "TRY", Totals: totals, CreatedAt: now,
			ShippingAddress: order.AddressSnapshot{FullName: "Ada", Phone: "1", City: "Izmir", District: "Konak", Detail: "St. 1"},
		})
		require.NoError(t, err)
		params, _, err := snap.Params()
		require.NoError(t, err)

		// orders.grand_total is NUMERIC(18,4)
		stored := params.GrandTotal.Round(4)
		minor, err := MinorUnits(stored)
		require.NoError(t, err)
		require.Equal(t, snap.GrandTotal.StringFixed(2), FromMinorUnits(minor).StringFixed(2), tc.price)
		require.Equal(t, totals.GrandTotal.StringFixed(2), snap.GrandTotal.StringFixed(2), tc.price)
	}
}

func TestMerchantOIDRoundTrip(t *testing.T) {
	oid := MerchantOID("ORD-20260301-0042")
	require.Equal(t, "ORD202603010042", oid)
	require.Equal(t, "ORD-20260301-0042", OrderNumberFromOID(oid))
	require.Equal(t, "ORD-20260301-10042", OrderNumberFromOID("ORD2026030110042"))
	require.Equal(t, "ORD-20260301-0042", OrderNumberFromOID("ORD-20260301-0042"))
}

func TestPayTRIntentSignsForm(t *testing.T) {
	f := newFixture(t, order.PaymentCreditCard)
	resp, err := f.svc.CreateIntent(context.Background(), IntentParams{
		UserID: f.order.UserID, OrderID: f.order.ID, Email: "ayse@example.com", UserIP: "10.0.0.1",
	})
	require.NoError(t, err)
	require.Equal(t, "paytr", resp.Provider)
	require.Equal(t, int64(27000), resp.Amount)
	require.Equal(t, "27000", resp.Form["payment_amount"])
	require.Equal(t, "ORD202603010001", resp.Form["merchant_oid"])
	require.Equal(t, `[["Kettle","120.00",2],["Mug","55.00",1]]`, resp.Form["user_basket"])

	want := f.paytr.sign("m-1", "10.0.0.1", "ORD202603010001", "ayse@example.com", "27000",
		resp.Form["user_basket"], "0", "0", "TL", "1")
	require.Equal(t, want, resp.Form["paytr_token"])
}

func TestIntentRejectsNonPendingAndBankTransfer(t *testing.T) {
	f := newFixture(t, order.PaymentBankTransfer)
	_, err := f.svc.CreateIntent(context.Background(), IntentParams{UserID: f.order.UserID, OrderID: f.order.ID, Email: "a@b.co"})
	require.ErrorIs(t, err, ErrNotPayable)

	f = newFixture(t, order.PaymentCreditCard)
	o := f.store.orders[f.order.ID]
	o.Status = "approved"
	f.store.orders[f.order.ID] = o
	_, err = f.svc.CreateIntent(context.Background(), IntentParams{UserID: f.order.UserID, OrderID: f.order.ID, Email: "a@b.co"})
	require.ErrorIs(t, err, ErrNotPayable)

	_, err = f.svc.CreateIntent(context.Background(), IntentParams{UserID: uuid.New(), OrderID: f.order.ID, Email: "a@b.co"})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestIyzicoIntentUsesDecimalStrings(t *testing.T) {
	f := newFixture(t, order.PaymentCreditCardIyzico)
	resp, err := f.svc.CreateIntent(context.Background(), IntentParams{
		UserID: f.order.UserID, OrderID: f.order.ID, Email: "ayse@example.com", UserIP: "10.0.0.1",
	})
	require.NoError(t, err)
	form, ok := resp.Body.(IyzicoCheckoutForm)
	require.True(t, ok)
	require.Equal(t, "295.00", form.Price)
	require.Equal(t, "270.00", form.PaidPrice)
	require.Equal(t, "ORD-20260301-0001", form.ConversationID)
	require.Len(t, form.BasketItems, 2)
	require.Equal(t, "240.00", form.BasketItems[0].Price)
	require.Equal(t, "Ayse", form.Buyer.Name)
	require.Equal(t, "Yilmaz", form.Buyer.Surname)
	require.True(t, strings.HasPrefix(resp.Headers["Authorization"], "IYZWSv2 "))
	require.Equal(t, "rnd", resp.Headers["x-iyzi-rnd"])
}

func TestPayTRCallbackVerification(t *testing.T) {
	f := newFixture(t, order.PaymentCreditCard)
	res, err := f.paytr.VerifyCallback(nil, []byte(f.paytrCallback("success", "27000")))
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, "ORD-20260301-0001", res.OrderNumber)
	require.Equal(t, int64(27000), res.Amount)
	require.Equal(t, StatusSuccess, res.Status)

	tampered := strings.Replace(f.paytrCallback("success", "27000"), "27000", "100", 1)
	res, err = f.paytr.VerifyCallback(nil, []byte(tampered))
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestCallbackMarksOrderPaidOnce(t *testing.T) {
	f := newFixture(t, order.PaymentCreditCard)
	res := CallbackResult{Valid: true, OrderNumber: f.order.OrderNumber, Amount: 27000, Status: StatusSuccess}

	outcome, err := f.svc.HandleCallback(context.Background(), "paytr", res)
	require.NoError(t, err)
	require.Equal(t, OutcomePaid, outcome)
	require.Equal(t, "approved", f.store.orders[f.order.ID].Status)
	require.Equal(t, []string{events.TopicOrderPaid}, f.events.topics)

	outcome, err = f.svc.HandleCallback(context.Background(), "paytr", res)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
	require.Equal(t, 1, f.store.paid)
	require.Len(t, f.events.topics, 1)
}

func TestCallbackAmountMismatch(t *testing.T) {
	f := newFixture(t, order.PaymentCreditCard)
	_, err := f.svc.HandleCallback(context.Background(), "paytr", CallbackResult{
		Valid: true, OrderNumber: f.order.OrderNumber, Amount: 26999, Status: StatusSuccess,
	})
	require.ErrorIs(t, err, ErrAmountMismatch)
	require.Equal(t, "pending", f.store.orders[f.order.ID].Status)
	require.Empty(t, f.events.topics)
}

func TestCallbackFailureLeavesOrderPending(t *testing.T) {
	f := newFixture(t, order.PaymentCreditCard)
	outcome, err := f.svc.HandleCallback(context.Background(), "paytr", CallbackResult{
		Valid: true, OrderNumber: f.order.OrderNumber, Amount: 27000, Status: StatusFailed,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome)
	require.Equal(t, "pending", f.store.orders[f.order.ID].Status)
	require.Equal(t, []string{events.TopicPaymentFailed}, f.events.topics)
}

func TestIyzicoWebhookSkipsAmountCheck(t *testing.T) {
	f := newFixture(t, order.PaymentCreditCardIyzico)
	iz := f.svc.Providers[order.PaymentCreditCardIyzico].(Iyzico)
	hook := IyzicoWebhook{EventType: "CHECKOUT_FORM_AUTH", PaymentID: "1", Token: "tok", ConversationID: f.order.OrderNumber, Status: "SUCCESS"}
	body, err := json.Marshal(hook)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-IYZ-SIGNATURE-V3", iz.WebhookSignature(hook))

	res, err := iz.VerifyCallback(req, body)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, int64(-1), res.Amount)

	outcome, err := f.svc.HandleCallback(context.Background(), "iyzico", res)
	require.NoError(t, err)
	require.Equal(t, OutcomePaid, outcome)

	req.Header.Set("X-IYZ-SIGNATURE-V3", "deadbeef")
	res, err = iz.VerifyCallback(req, body)
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestWebhookHandlerReplayGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f := newFixture(t, order.PaymentCreditCard)
	wh := Webhook{Svc: f.svc, Replay: rdb, ReplayTTL: time.Hour}
	r := chi.NewRouter()
	r.Post("/webhooks/payment/{provider}", wh.Handle)

	body := f.paytrCallback("success", "27000")
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/paytr", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "OK", rr.Body.String())
	}
	require.Equal(t, 1, f.store.paid)

	bad := strings.Replace(body, "hash=", "hash=x", 1)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/paytr", strings.NewReader(bad))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/payment/stripe", strings.NewReader(body))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestIntentHandlerUsesEmailClaim(t *testing.T) {
	f := newFixture(t, order.PaymentCreditCard)
	h := &Handler{Svc: f.svc}
	r := chi.NewRouter()
	r.Post("/payments/{orderId}/intent", h.Intent)

	req := httptest.NewRequest(http.MethodPost, "/payments/"+f.order.ID.String()+"/intent", nil)
	ctx := common.WithUserID(req.Context(), f.order.UserID.String())
	ctx = common.WithEmail(ctx, "ayse@example.com")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req.WithContext(ctx))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data IntentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ayse@example.com", body.Data.Form["email"])

	req = httptest.NewRequest(http.MethodPost, "/payments/"+f.order.ID.String()+"/intent", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
