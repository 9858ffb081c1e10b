// Package db holds the Postgres access layer: hand-written queries over pgx,
// a transactional store, and the embedded schema migrations.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// New wraps the provided connection in a Queries value.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries exposes typed statements against the schema.
type Queries struct {
	db DBTX
}

// WithTx returns a copy bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
