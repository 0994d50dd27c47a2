package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

type OutboxRepository struct {
	s *Store
}

func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	out := make([]*model.OutboxEvent, 0, limit)
	for _, e := range r.s.outbox {
		if len(out) >= limit {
			break
		}
		due := e.Status == model.OutboxStatusPending ||
			(e.Status == model.OutboxStatusRetry && (e.RetryAt == nil || !e.RetryAt.After(now)))
		if !due {
			continue
		}
		e.Status = model.OutboxStatusProcessing
		e.UpdatedAt = now
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (r *OutboxRepository) find(id uuid.UUID) (*model.OutboxEvent, error) {
	for _, e := range r.s.outbox {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, err := r.find(id)
	if err != nil {
		return err
	}
	now := r.s.now()
	e.Status = model.OutboxStatusProcessed
	e.ProcessedAt = &now
	e.UpdatedAt = now
	return nil
}

func (r *OutboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, err := r.find(id)
	if err != nil {
		return err
	}
	e.Status = model.OutboxStatusRetry
	e.ErrorMessage = &errMsg
	e.RetryAt = &retryAt
	e.RetryCount++
	e.UpdatedAt = r.s.now()
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, err := r.find(id)
	if err != nil {
		return err
	}
	e.Status = model.OutboxStatusFailed
	e.ErrorMessage = &errMsg
	e.UpdatedAt = r.s.now()
	return nil
}

func (r *OutboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kept := r.s.outbox[:0]
	var n int64
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.s.outbox = kept
	return n, nil
}

type SessionRepository struct {
	s *Store
}

func (r *SessionRepository) Save(ctx context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := *session
	r.s.sessions[session.ID] = &c
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !sess.ExpiresAt.IsZero() && !r.s.now().Before(sess.ExpiresAt) {
		delete(r.s.sessions, id)
		return nil, repository.ErrNotFound
	}
	c := *sess
	return &c, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.sessions, id)
	return nil
}
