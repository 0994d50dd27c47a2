package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

type AccountRepository struct {
	s *Store
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account, hospital *model.Hospital) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, a := range r.s.accounts {
		if strings.EqualFold(a.Email, account.Email) || a.Phone == account.Phone {
			return repository.ErrDuplicate
		}
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = r.s.now()
	}
	a := *account
	r.s.accounts[a.ID] = &a

	if hospital != nil {
		if hospital.ID == uuid.Nil {
			hospital.ID = uuid.New()
		}
		hospital.OperatorID = account.ID
		if hospital.CreatedAt.IsZero() {
			hospital.CreatedAt = account.CreatedAt
		}
		h := *hospital
		r.s.hospitals[h.ID] = &h
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, a := range r.s.accounts {
		if strings.EqualFold(a.Email, email) {
			c := *a
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *AccountRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, a := range r.s.accounts {
		if strings.EqualFold(a.Email, email) || a.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (r *AccountRepository) Block(ctx context.Context, id uuid.UUID, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.IsBlocked = true
	r.s.appendEvent(event)
	return nil
}

type HospitalRepository struct {
	s *Store
}

func (r *HospitalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	h, ok := r.s.hospitals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *h
	return &c, nil
}

func (r *HospitalRepository) GetByOperator(ctx context.Context, operatorID uuid.UUID) (*model.Hospital, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, h := range r.s.hospitals {
		if h.OperatorID == operatorID {
			c := *h
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}
