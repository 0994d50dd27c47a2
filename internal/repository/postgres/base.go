package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

const uniqueViolation = "23505"

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin tx", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// insertEvent writes an outbox event inside tx. A nil event is a no-op.
func insertEvent(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	if event == nil {
		return nil
	}
	query := `
		INSERT INTO outbox_events (id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		[]byte(event.Payload),
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return storageErr("insert outbox event", err)
	}
	return nil
}

// storageErr marks err as an I/O failure of the store.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, repository.ErrStorage, err)
}

// notFoundOr maps sql.ErrNoRows to repository.ErrNotFound.
func notFoundOr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return storageErr(op, err)
}

func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("rows affected", err)
	}
	return n, nil
}
