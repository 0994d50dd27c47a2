package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

type accountRepository struct {
	BaseRepository
}

func NewAccountRepository(base BaseRepository) repository.AccountRepository {
	return &accountRepository{base}
}

const accountColumns = `id, email, phone, ci, role, is_blocked, password_hash, created_at`

func (r *accountRepository) Create(ctx context.Context, account *model.Account, hospital *model.Hospital) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO accounts (` + accountColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err := tx.ExecContext(ctx, query,
			account.ID,
			account.Email,
			account.Phone,
			account.CI,
			account.Role,
			account.IsBlocked,
			account.PasswordHash,
			account.CreatedAt,
		)
		if err != nil {
			if _, dup := uniqueConstraint(err); dup {
				return repository.ErrDuplicate
			}
			return storageErr("insert account", err)
		}

		if hospital == nil {
			return nil
		}
		if hospital.ID == uuid.Nil {
			hospital.ID = uuid.New()
		}
		hospital.OperatorID = account.ID
		hospital.CreatedAt = account.CreatedAt

		query = `
			INSERT INTO hospitals (
				id, name, latitude, longitude, type, admin_phone,
				entity_id, email, operator_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		_, err = tx.ExecContext(ctx, query,
			hospital.ID,
			hospital.Name,
			hospital.Location.Latitude,
			hospital.Location.Longitude,
			hospital.Type,
			hospital.AdminPhone,
			hospital.EntityID,
			hospital.Email,
			hospital.OperatorID,
			hospital.CreatedAt,
		)
		if err != nil {
			return storageErr("insert hospital", err)
		}
		return nil
	})
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	var account model.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		return nil, notFoundOr("get account", err)
	}
	return &account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`

	var account model.Account
	if err := r.db.GetContext(ctx, &account, query, email); err != nil {
		return nil, notFoundOr("get account by email", err)
	}
	return &account, nil
}

func (r *accountRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(email) = lower($1) OR phone = $2)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email, phone); err != nil {
		return false, storageErr("check account exists", err)
	}
	return exists, nil
}

func (r *accountRepository) Block(ctx context.Context, id uuid.UUID, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE accounts SET is_blocked = TRUE WHERE id = $1`, id)
		if err != nil {
			return storageErr("block account", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		return insertEvent(ctx, tx, event)
	})
}

type hospitalRepository struct {
	BaseRepository
}

func NewHospitalRepository(base BaseRepository) repository.HospitalRepository {
	return &hospitalRepository{base}
}

type hospitalRow struct {
	model.Hospital
	Latitude  float64 `db:"latitude"`
	Longitude float64 `db:"longitude"`
}

func (h hospitalRow) toModel() *model.Hospital {
	out := h.Hospital
	out.Location = model.Location{Latitude: h.Latitude, Longitude: h.Longitude}
	return &out
}

const hospitalColumns = `id, name, latitude, longitude, type, admin_phone, entity_id, email, operator_id, created_at`

func (r *hospitalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error) {
	query := `SELECT ` + hospitalColumns + ` FROM hospitals WHERE id = $1`

	var row hospitalRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, notFoundOr("get hospital", err)
	}
	return row.toModel(), nil
}

func (r *hospitalRepository) GetByOperator(ctx context.Context, operatorID uuid.UUID) (*model.Hospital, error) {
	query := `SELECT ` + hospitalColumns + ` FROM hospitals WHERE operator_id = $1`

	var row hospitalRow
	if err := r.db.GetContext(ctx, &row, query, operatorID); err != nil {
		return nil, notFoundOr("get hospital by operator", err)
	}
	return row.toModel(), nil
}
