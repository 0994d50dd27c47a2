package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

const sessionPrefix = "dispatch:session:"

type sessionRepository struct {
	client *redis.Client
}

func NewSessionRepository(client *redis.Client) repository.SessionRepository {
	return &sessionRepository{client: client}
}

func sessionKey(id string) string {
	return sessionPrefix + id
}

func (r *sessionRepository) Save(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(session.ID), b, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w: %w", repository.ErrStorage, err)
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	b, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w: %w", repository.ErrStorage, err)
	}

	var session model.Session
	if err := json.Unmarshal(b, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w: %w", repository.ErrStorage, err)
	}
	return nil
}
