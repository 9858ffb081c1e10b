package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Price     decimal.Decimal
	VatRate   decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SiteSettings struct {
	VatRate               decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.NullDecimal
	UpdatedAt             time.Time
}

type Coupon struct {
	ID            uuid.UUID
	Code          string
	DiscountType  string
	DiscountValue decimal.Decimal
	MinCartAmount decimal.NullDecimal
	StartDate     time.Time
	EndDate       time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Cart struct {
	ID         uuid.UUID
	UserID     *uuid.UUID
	AnonID     *string
	CouponCode *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  time.Time
}

type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	CreatedAt time.Time
}

// CartLine is a cart item joined with the live product price and VAT rate.
type CartLine struct {
	ProductID     uuid.UUID
	Quantity      int32
	ProductFound  bool
	Name          string
	Price         decimal.Decimal
	VatRate       decimal.Decimal
	ProductActive bool
}

type Address struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Title          string
	FullName       string
	Phone          string
	Country        string
	City           string
	District       string
	OpenAddress    string
	ZipCode        string
	IsBilling      bool
	BillingDetail  *string
	IdentityNumber *string
	CompanyName    *string
	TaxOffice      *string
	TaxNumber      *string
	CreatedAt      time.Time
}

type Order struct {
	ID                uuid.UUID
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
	ShippingNote      *string
	ShippingNoteAt    *time.Time
	ShippingNoteBy    *string
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OrderItem struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	ProductID    *uuid.UUID
	ProductName  string
	UnitPrice    decimal.Decimal
	Quantity     int32
	VatRate      decimal.Decimal
	VatAmount    decimal.Decimal
	LineSubtotal decimal.Decimal
}

type DomainEvent struct {
	ID          uuid.UUID
	Topic       string
	AggregateID uuid.UUID
	Payload     []byte
	OccurredAt  time.Time
}
