// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"log/slog"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository appends business events to the durable event table.
// It implements events.Notifier: COB runs deliver their buffered
// events here in one aggregate batch.
type EventRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewEventRepository(pool *pgxpool.Pool, logger *slog.Logger) *EventRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *EventRepository) Notify(ctx context.Context, events []domain.BusinessEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	for _, ev := range events {
		if _, err := tx.Exec(ctx, `
			INSERT INTO business_events (id, type, aggregate_type, aggregate_id, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			ev.ID, ev.Type, ev.AggregateType, ev.AggregateID, ev.Payload, ev.OccurredAt,
		); err != nil {
			r.logger.Error("insert business event failed",
				"event_id", ev.ID,
				"type", ev.Type,
				"error", err,
			)
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit business events failed", "events", len(events), "error", err)
		return err
	}

	return nil
}

// ListAfter returns events with seq greater than afterSeq, oldest
// first. Backs the admin event-tail endpoint.
func (r *EventRepository) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.BusinessEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, seq, type, aggregate_type, aggregate_id, payload, occurred_at
		FROM business_events
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		r.logger.Error("list business events failed", "after_seq", afterSeq, "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.BusinessEvent, 0, 16)
	for rows.Next() {
		var ev domain.BusinessEvent
		if err := rows.Scan(&ev.ID, &ev.Seq, &ev.Type, &ev.AggregateType, &ev.AggregateID, &ev.Payload, &ev.OccurredAt); err != nil {
			r.logger.Error("scan business event row failed", "error", err)
			return nil, err
		}
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("business event rows iteration failed", "error", err)
		return nil, err
	}

	return out, nil
}
