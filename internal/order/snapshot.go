package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

var (
	// ErrEmptyOrder is returned when a snapshot is requested for a cart without lines.
	ErrEmptyOrder = errors.New("order has no lines")
	// ErrInvalidAddress is returned when a required address field is blank.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidSnapshot is returned for malformed snapshot input other than addresses.
	ErrInvalidSnapshot = errors.New("invalid order snapshot")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:   {StatusDelivered, StatusRefunded},
	StatusDelivered: {StatusRefunded},
}

// ParseStatus validates a status string.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	switch s {
	case StatusPending, StatusApproved, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return s, nil
	}
	return "", fmt.Errorf("unknown order status %q", v)
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PaymentMethod is how the customer settles the order.
type PaymentMethod string

const (
	PaymentCreditCard       PaymentMethod = "credit_card"
	PaymentCreditCardIyzico PaymentMethod = "credit_card_iyzico"
	PaymentBankTransfer     PaymentMethod = "bank_transfer"
)

// ParsePaymentMethod validates a payment method string.
func ParsePaymentMethod(v string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(v)))
	switch m {
	case PaymentCreditCard, PaymentCreditCardIyzico, PaymentBankTransfer:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", v)
}

// AddressSnapshot is a frozen copy of a customer address.
type AddressSnapshot struct {
	Title          string `json:"title"`
	FullName       string `json:"fullName"`
	Phone          string `json:"phone"`
	Country        string `json:"country"`
	City           string `json:"city"`
	District       string `json:"district"`
	Detail         string `json:"detail"`
	ZipCode        string `json:"zipCode,omitempty"`
	IdentityNumber string `json:"identityNumber,omitempty"`
	CompanyName    string `json:"companyName,omitempty"`
	TaxOffice      string `json:"taxOffice,omitempty"`
	TaxNumber      string `json:"taxNumber,omitempty"`
}

func (a AddressSnapshot) validate() error {
	for name, v := range map[string]string{
		"fullName": a.FullName,
		"phone":    a.Phone,
		"city":     a.City,
		"district": a.District,
		"detail":   a.Detail,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required: %w", name, ErrInvalidAddress)
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ShippingAddress copies a stored address for delivery.
func ShippingAddress(a db.Address) AddressSnapshot {
	return AddressSnapshot{
		Title:    a.Title,
		FullName: a.FullName,
		Phone:    a.Phone,
		Country:  a.Country,
		City:     a.City,
		District: a.District,
		Detail:   a.OpenAddress,
		ZipCode:  a.ZipCode,
	}
}

// BillingAddress copies a stored address for invoicing. The dedicated billing
// detail is used when present, otherwise the open address.
func BillingAddress(a db.Address) AddressSnapshot {
	s := ShippingAddress(a)
	if d := strings.TrimSpace(deref(a.BillingDetail)); d != "" {
		s.Detail = d
	}
	s.IdentityNumber = deref(a.IdentityNumber)
	s.CompanyName = deref(a.CompanyName)
	s.TaxOffice = deref(a.TaxOffice)
	s.TaxNumber = deref(a.TaxNumber)
	return s
}

// LineSnapshot is a frozen order line.
type LineSnapshot struct {
	ProductID    *uuid.UUID
	Name         string
	UnitPrice    pricing.Money
	Quantity     int
	VatRate      pricing.Money
	VatAmount    pricing.Money
	LineSubtotal pricing.Money
}

// Snapshot is the immutable record of a submitted cart.
type Snapshot struct {
	Number            string
	UserID            uuid.UUID
	PaymentMethod     PaymentMethod
	Currency          string
	CouponCode        *string
	Lines             []LineSnapshot
	Subtotal          pricing.Money
	VatTotal          pricing.Money
	TaxInclusiveTotal pricing.Money
	Discount          pricing.Money
	Shipping          pricing.Money
	GrandTotal        pricing.Money
	ShippingAddress   AddressSnapshot
	BillingAddress    AddressSnapshot
	CreatedAt         time.Time
}

// SnapshotInput gathers everything a snapshot is built from.
type SnapshotInput struct {
	Number          string
	UserID          uuid.UUID
	PaymentMethod   PaymentMethod
	Currency        string
	Totals          pricing.Totals
	ShippingAddress AddressSnapshot
	// BillingAddress defaults to the shipping address when nil.
	BillingAddress *AddressSnapshot
	CreatedAt      time.Time
}

// FormatNumber renders an order number as ORD-YYYYMMDD-NNNN.
func FormatNumber(day time.Time, seq int32) string {
	return fmt.Sprintf("ORD-%s-%04d", day.Format("20060102"), seq)
}

// Build freezes computed totals and addresses into a snapshot that shares no
// mutable state with its input. Money figures are rounded to cents here, once,
// and every later reader (the checkout response, the orders table and the
// payment providers) uses the snapshot values.
func Build(in SnapshotInput) (Snapshot, error) {
	if len(in.Totals.Lines) == 0 {
		return Snapshot{}, ErrEmptyOrder
	}
	if strings.TrimSpace(in.Number) == "" {
		return Snapshot{}, fmt.Errorf("order number is required: %w", ErrInvalidSnapshot)
	}
	if in.UserID == uuid.Nil {
		return Snapshot{}, fmt.Errorf("user is required: %w", ErrInvalidSnapshot)
	}
	if _, err := ParsePaymentMethod(string(in.PaymentMethod)); err != nil {
		return Snapshot{}, fmt.Errorf("%v: %w", err, ErrInvalidSnapshot)
	}
	if err := in.ShippingAddress.validate(); err != nil {
		return Snapshot{}, fmt.Errorf("shipping address: %w", err)
	}
	billing := in.ShippingAddress
	if in.BillingAddress != nil {
		billing = *in.BillingAddress
		if err := billing.validate(); err != nil {
			return Snapshot{}, fmt.Errorf("billing address: %w", err)
		}
	}

	t := in.Totals.Rounded()
	s := Snapshot{
		Number:            in.Number,
		UserID:            in.UserID,
		PaymentMethod:     in.PaymentMethod,
		Currency:          in.Currency,
		Lines:             make([]LineSnapshot, 0, len(t.Lines)),
		Subtotal:          t.Subtotal,
		VatTotal:          t.TotalVat,
		TaxInclusiveTotal: t.TaxInclusiveTotal,
		Discount:          t.Discount,
		Shipping:          t.Shipping,
		GrandTotal:        t.GrandTotal,
		ShippingAddress:   in.ShippingAddress,
		BillingAddress:    billing,
		CreatedAt:         in.CreatedAt,
	}
	if t.CouponApplied && t.CouponCode != "" {
		code := t.CouponCode
		s.CouponCode = &code
	}
	for _, l := range t.Lines {
		pid := l.ProductID
		s.Lines = append(s.Lines, LineSnapshot{
			ProductID:    &pid,
			Name:         l.Name,
			UnitPrice:    l.UnitPrice,
			Quantity:     l.Quantity,
			VatRate:      l.EffectiveVatRate,
			VatAmount:    l.Vat,
			LineSubtotal: l.Subtotal,
		})
	}
	return s, nil
}

// Params converts the snapshot into insert parameters.
func (s Snapshot) Params() (db.CreateOrderParams, []db.CreateOrderItemParams, error) {
	shipping, err := json.Marshal(s.ShippingAddress)
	if err != nil {
		return db.CreateOrderParams{}, nil, fmt.Errorf("encode shipping address: %w", err)
	}
	billing, err := json.Marshal(s.BillingAddress)
	if err != nil {
		return db.CreateOrderParams{}, nil, fmt.Errorf("encode billing address: %w", err)
	}
	order := db.CreateOrderParams{
		OrderNumber:       s.Number,
		UserID:            s.UserID,
		Status:            string(StatusPending),
		PaymentMethod:     string(s.PaymentMethod),
		Currency:          s.Currency,
		CouponCode:        s.CouponCode,
		Subtotal:          s.Subtotal,
		VatTotal:          s.VatTotal,
		TaxInclusiveTotal: s.TaxInclusiveTotal,
		Discount:          s.Discount,
		ShippingFee:       s.Shipping,
		GrandTotal:        s.GrandTotal,
		ShippingAddress:   shipping,
		BillingAddress:    billing,
		CreatedAt:         s.CreatedAt,
	}
	items := make([]db.CreateOrderItemParams, 0, len(s.Lines))
	for _, l := range s.Lines {
		items = append(items, db.CreateOrderItemParams{
			ProductID:    l.ProductID,
			ProductName:  l.Name,
			UnitPrice:    l.UnitPrice,
			Quantity:     int32(l.Quantity),
			VatRate:      l.VatRate,
			VatAmount:    l.VatAmount,
			LineSubtotal: l.LineSubtotal,
		})
	}
	return order, items, nil
}

// FromModel rebuilds a snapshot from stored rows.
func FromModel(o db.Order, items []db.OrderItem) (Snapshot, error) {
	s := Snapshot{
		Number:            o.OrderNumber,
		UserID:            o.UserID,
		PaymentMethod:     PaymentMethod(o.PaymentMethod),
		Currency:          o.Currency,
		CouponCode:        o.CouponCode,
		Lines:             make([]LineSnapshot, 0, len(items)),
		Subtotal:          o.Subtotal,
		VatTotal:          o.VatTotal,
		TaxInclusiveTotal: o.TaxInclusiveTotal,
		Discount:          o.Discount,
		Shipping:          o.ShippingFee,
		GrandTotal:        o.GrandTotal,
		CreatedAt:         o.CreatedAt,
	}
	if err := json.Unmarshal(o.ShippingAddress, &s.ShippingAddress); err != nil {
		return Snapshot{}, fmt.Errorf("decode shipping address: %w", err)
	}
	if err := json.Unmarshal(o.BillingAddress, &s.BillingAddress); err != nil {
		return Snapshot{}, fmt.Errorf("decode billing address: %w", err)
	}
	for _, it := range items {
		s.Lines = append(s.Lines, LineSnapshot{
			ProductID:    it.ProductID,
			Name:         it.ProductName,
			UnitPrice:    it.UnitPrice,
			Quantity:     int(it.Quantity),
			VatRate:      it.VatRate,
			VatAmount:    it.VatAmount,
			LineSubtotal: it.LineSubtotal,
		})
	}
	return s, nil
}
