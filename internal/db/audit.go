package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AuditLog struct {
	ID           uuid.UUID
	ActorUserID  *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *string
	Method       string
	Route        string
	Status       int32
	IP           *string
	RequestID    *string
	Metadata     []byte
	CreatedAt    time.Time
}

type InsertAuditLogParams struct {
	ActorUserID  *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *string
	Method       string
	Route        string
	Status       int32
	IP           *string
	RequestID    *string
	Metadata     []byte
}

const auditColumns = `id, actor_user_id, action, resource_type, resource_id, method, route, status, ip, request_id, metadata, created_at`

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (AuditLog, error) {
	row := q.db.QueryRow(ctx, `INSERT INTO audit_logs (actor_user_id, action, resource_type, resource_id, method, route, status, ip, request_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+auditColumns,
		arg.ActorUserID, arg.Action, arg.ResourceType, arg.ResourceID, arg.Method, arg.Route, arg.Status, arg.IP, arg.RequestID, arg.Metadata)
	return scanAuditLog(row)
}

type ListAuditLogsParams struct {
	ResourceType string
	Limit        int32
	Offset       int32
}

// ListAuditLogs returns the newest entries first, optionally filtered by resource type.
func (q *Queries) ListAuditLogs(ctx context.Context, arg ListAuditLogsParams) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, `SELECT `+auditColumns+` FROM audit_logs
WHERE ($1::text = '' OR resource_type = $1)
ORDER BY created_at DESC LIMIT $2 OFFSET $3`, arg.ResourceType, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuditLog, error) {
		return scanAuditLog(row)
	})
}

func scanAuditLog(row pgx.Row) (AuditLog, error) {
	var l AuditLog
	err := row.Scan(&l.ID, &l.ActorUserID, &l.Action, &l.ResourceType, &l.ResourceID, &l.Method, &l.Route,
		&l.Status, &l.IP, &l.RequestID, &l.Metadata, &l.CreatedAt)
	return l, err
}
