package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const getProduct = `SELECT id, name, slug, price, vat_rate, is_active, created_at, updated_at
FROM products WHERE id = $1`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	var p Product
	err := q.db.QueryRow(ctx, getProduct, id).Scan(
		&p.ID, &p.Name, &p.Slug, &p.Price, &p.VatRate, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

const createProduct = `INSERT INTO products (name, slug, price, vat_rate, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, name, slug, price, vat_rate, is_active, created_at, updated_at`

type CreateProductParams struct {
	Name     string
	Slug     string
	Price    decimal.Decimal
	VatRate  decimal.Decimal
	IsActive bool
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	var p Product
	err := q.db.QueryRow(ctx, createProduct, arg.Name, arg.Slug, arg.Price, arg.VatRate, arg.IsActive).Scan(
		&p.ID, &p.Name, &p.Slug, &p.Price, &p.VatRate, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
