package db

import (
	"context"

	"github.com/google/uuid"
)

type InsertDomainEventParams struct {
	Topic       string
	AggregateID uuid.UUID
	Payload     []byte
}

func (q *Queries) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	var ev DomainEvent
	err := q.db.QueryRow(ctx, `INSERT INTO domain_events (topic, aggregate_id, payload) VALUES ($1, $2, $3)
RETURNING id, topic, aggregate_id, payload, occurred_at`, arg.Topic, arg.AggregateID, arg.Payload).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}
