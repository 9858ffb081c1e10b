package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const addressColumns = `id, user_id, title, full_name, phone, country, city, district, open_address, zip_code,
    is_billing, billing_detail, identity_number, company_name, tax_office, tax_number, created_at`

func scanAddress(row pgx.Row) (Address, error) {
	var a Address
	err := row.Scan(&a.ID, &a.UserID, &a.Title, &a.FullName, &a.Phone, &a.Country, &a.City, &a.District,
		&a.OpenAddress, &a.ZipCode, &a.IsBilling, &a.BillingDetail, &a.IdentityNumber, &a.CompanyName, &a.TaxOffice, &a.TaxNumber, &a.CreatedAt)
	return a, err
}

// GetAddressForUser only returns the address when it belongs to userID.
func (q *Queries) GetAddressForUser(ctx context.Context, id, userID uuid.UUID) (Address, error) {
	return scanAddress(q.db.QueryRow(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, id, userID))
}

func (q *Queries) ListAddressesByUser(ctx context.Context, userID uuid.UUID) ([]Address, error) {
	rows, err := q.db.Query(ctx, `SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Address, error) {
		return scanAddress(row)
	})
}

type CreateAddressParams struct {
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
}

func (q *Queries) CreateAddress(ctx context.Context, arg CreateAddressParams) (Address, error) {
	const stmt = `INSERT INTO addresses (user_id, title, full_name, phone, country, city, district, open_address,
    zip_code, is_billing, billing_detail, identity_number, company_name, tax_office, tax_number)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING ` + addressColumns
	return scanAddress(q.db.QueryRow(ctx, stmt, arg.UserID, arg.Title, arg.FullName, arg.Phone, arg.Country, arg.City,
		arg.District, arg.OpenAddress, arg.ZipCode, arg.IsBilling, arg.BillingDetail, arg.IdentityNumber, arg.CompanyName, arg.TaxOffice, arg.TaxNumber))
}

func (q *Queries) DeleteAddress(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
