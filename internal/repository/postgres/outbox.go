package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

// staleProcessing is how long a claimed event may stay unacknowledged before
// another worker may claim it again.
const staleProcessing = 5 * time.Minute

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

const outboxColumns = `id, event_type, payload, status, error_message, retry_count, retry_at, created_at, updated_at, processed_at`

func (r *outboxRepository) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'pending'
			OR (status = 'retry' AND (retry_at IS NULL OR retry_at <= NOW()))
			OR (status = 'processing' AND updated_at < $2)
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	events := make([]*model.OutboxEvent, 0)
	err := r.db.SelectContext(ctx, &events, query, limit, time.Now().UTC().Add(-staleProcessing))
	if err != nil {
		return nil, storageErr("claim outbox events", err)
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_events
		SET status = 'processed', error_message = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, "mark event processed", query, id)
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	query := `
		UPDATE outbox_events
		SET status = 'retry', error_message = $2, retry_at = $3,
			retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, "mark event retry", query, id, errMsg, retryAt)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE outbox_events
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, "mark event failed", query, id, errMsg)
}

func (r *outboxRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr(op, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'processed'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, storageErr("delete processed events", err)
	}
	return rowsAffected(result)
}
