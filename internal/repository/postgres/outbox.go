package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func insertOutboxEvent(ctx context.Context, db sqlx.ExecerContext, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, aggregate_id, event_type, payload, status, retry_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, 0, $6, $7
		)
	`
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
		event.UpdatedAt = event.CreatedAt
	}

	_, err := db.ExecContext(ctx, query,
		event.ID,
		event.AggregateID,
		event.EventType,
		[]byte(event.Payload),
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", classify(err))
	}
	return nil
}

func (r *outboxRepository) ClaimPending(ctx context.Context, limit, maxRetries int, fn func(events []*model.OutboxEvent) repository.OutboxOutcome) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			SELECT id, aggregate_id, event_type, payload, status, error_message, retry_count,
				created_at, updated_at, processed_at
			FROM outbox_events
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`
		var events []*model.OutboxEvent
		if err := tx.SelectContext(ctx, &events, query, model.OutboxStatusPending, limit); err != nil {
			return fmt.Errorf("failed to claim outbox events: %w", classify(err))
		}
		if len(events) == 0 {
			return nil
		}

		outcome := fn(events)

		if len(outcome.Processed) > 0 {
			ids := make([]string, len(outcome.Processed))
			for i, id := range outcome.Processed {
				ids[i] = id.String()
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE outbox_events
				SET status = $1, processed_at = NOW(), updated_at = NOW()
				WHERE id = ANY($2::uuid[])
			`, model.OutboxStatusProcessed, pq.StringArray(ids)); err != nil {
				return fmt.Errorf("failed to mark events processed: %w", classify(err))
			}
		}

		for id, reason := range outcome.Failed {
			msg := reason
			if _, err := tx.ExecContext(ctx, `
				UPDATE outbox_events
				SET retry_count = retry_count + 1,
					error_message = $1,
					status = CASE WHEN retry_count + 1 >= $2 THEN $3 ELSE status END,
					updated_at = NOW()
				WHERE id = $4
			`, &msg, maxRetries, model.OutboxStatusFailed, id); err != nil {
				return fmt.Errorf("failed to record event failure: %w", classify(err))
			}
		}
		return nil
	})
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = $1
		AND processed_at < $2
	`
	result, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", classify(err))
	}

	return result.RowsAffected()
}
