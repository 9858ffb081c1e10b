package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/db"
)

// ErrAddressNotFound is returned when the address does not exist or belongs to someone else.
var ErrAddressNotFound = errors.New("address not found")

// Querier captures the database methods required by the address book.
type Querier interface {
	GetAddressForUser(ctx context.Context, id, userID uuid.UUID) (db.Address, error)
	ListAddressesByUser(ctx context.Context, userID uuid.UUID) ([]db.Address, error)
	CreateAddress(ctx context.Context, arg db.CreateAddressParams) (db.Address, error)
	DeleteAddress(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

// Address represents a user address in API-friendly format.
type Address struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	FullName       string    `json:"fullName"`
	Phone          string    `json:"phone"`
	Country        string    `json:"country"`
	City           string    `json:"city"`
	District       string    `json:"district"`
	OpenAddress    string    `json:"openAddress"`
	ZipCode        string    `json:"zipCode,omitempty"`
	IsBilling      bool      `json:"isBilling"`
	BillingDetail  *string   `json:"billingDetail,omitempty"`
	IdentityNumber *string   `json:"identityNumber,omitempty"`
	CompanyName    *string   `json:"companyName,omitempty"`
	TaxOffice      *string   `json:"taxOffice,omitempty"`
	TaxNumber      *string   `json:"taxNumber,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AddressInput captures the payload for creating an address.
type AddressInput struct {
	Title          string  `json:"title" validate:"required,max=64"`
	FullName       string  `json:"fullName" validate:"required,max=128"`
	Phone          string  `json:"phone" validate:"required,max=32"`
	Country        string  `json:"country" validate:"required,max=64"`
	City           string  `json:"city" validate:"required,max=64"`
	District       string  `json:"district" validate:"required,max=64"`
	OpenAddress    string  `json:"openAddress" validate:"required,max=512"`
	ZipCode        string  `json:"zipCode" validate:"max=16"`
	IsBilling      bool    `json:"isBilling"`
	BillingDetail  *string `json:"billingDetail" validate:"omitempty,max=512"`
	IdentityNumber *string `json:"identityNumber" validate:"omitempty,numeric,len=11"`
	CompanyName    *string `json:"companyName" validate:"omitempty,max=256"`
	TaxOffice      *string `json:"taxOffice" validate:"omitempty,max=128"`
	TaxNumber      *string `json:"taxNumber" validate:"omitempty,numeric,min=10,max=11"`
}

// Service orchestrates address book operations.
type Service struct {
	Q Querier
}

func (s *Service) ready() error {
	if s == nil || s.Q == nil {
		return errors.New("address service not configured")
	}
	return nil
}

// List returns the user's addresses, oldest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Address, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.Q.ListAddressesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Address, 0, len(rows))
	for _, row := range rows {
		out = append(out, convertAddress(row))
	}
	return out, nil
}

// Create validates and stores a new address for the user.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input AddressInput) (Address, error) {
	if err := s.ready(); err != nil {
		return Address{}, err
	}
	if err := common.Validate(input); err != nil {
		return Address{}, err
	}
	row, err := s.Q.CreateAddress(ctx, db.CreateAddressParams{
		UserID:         userID,
		Title:          strings.TrimSpace(input.Title),
		FullName:       strings.TrimSpace(input.FullName),
		Phone:          strings.TrimSpace(input.Phone),
		Country:        strings.TrimSpace(input.Country),
		City:           strings.TrimSpace(input.City),
		District:       strings.TrimSpace(input.District),
		OpenAddress:    strings.TrimSpace(input.OpenAddress),
		ZipCode:        strings.TrimSpace(input.ZipCode),
		IsBilling:      input.IsBilling,
		BillingDetail:  trimmed(input.BillingDetail),
		IdentityNumber: trimmed(input.IdentityNumber),
		CompanyName:    trimmed(input.CompanyName),
		TaxOffice:      trimmed(input.TaxOffice),
		TaxNumber:      trimmed(input.TaxNumber),
	})
	if err != nil {
		return Address{}, err
	}
	return convertAddress(row), nil
}

// Delete removes one of the user's addresses. Orders keep their own copies.
func (s *Service) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	ok, err := s.Q.DeleteAddress(ctx, addressID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return common.NotFound("address not found", ErrAddressNotFound)
	}
	return nil
}

// Resolve loads an address owned by the user for use in an order snapshot.
func (s *Service) Resolve(ctx context.Context, userID, addressID uuid.UUID) (db.Address, error) {
	if err := s.ready(); err != nil {
		return db.Address{}, err
	}
	row, err := s.Q.GetAddressForUser(ctx, addressID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Address{}, common.NotFound("address not found", ErrAddressNotFound)
		}
		return db.Address{}, err
	}
	return row, nil
}

func convertAddress(row db.Address) Address {
	return Address{
		ID:             row.ID.String(),
		Title:          row.Title,
		FullName:       row.FullName,
		Phone:          row.Phone,
		Country:        row.Country,
		City:           row.City,
		District:       row.District,
		OpenAddress:    row.OpenAddress,
		ZipCode:        row.ZipCode,
		IsBilling:      row.IsBilling,
		BillingDetail:  row.BillingDetail,
		IdentityNumber: row.IdentityNumber,
		CompanyName:    row.CompanyName,
		TaxOffice:      row.TaxOffice,
		TaxNumber:      row.TaxNumber,
		CreatedAt:      row.CreatedAt,
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
