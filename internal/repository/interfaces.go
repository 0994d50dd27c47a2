package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrStorage wraps every I/O failure of a backing store.
	ErrStorage = errors.New("storage failure")

	ErrReportNotPending     = errors.New("report is not pending")
	ErrAmbulanceUnavailable = errors.New("ambulance is not available")
	ErrAmbulanceAssigned    = errors.New("ambulance is assigned to another driver")
)

// All repository interfaces in one file
type (
	// AccountRepository handles accounts and the hospitals created with them
	AccountRepository interface {
		// Create inserts the account and, for operators, its hospital in one
		// transaction. ErrDuplicate when email or phone is taken.
		Create(ctx context.Context, account *model.Account, hospital *model.Hospital) error
		Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
		GetByEmail(ctx context.Context, email string) (*model.Account, error)
		ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
		// Block sets the permanent ban and records event atomically.
		Block(ctx context.Context, id uuid.UUID, event *model.OutboxEvent) error
	}

	HospitalRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error)
		GetByOperator(ctx context.Context, operatorID uuid.UUID) (*model.Hospital, error)
	}

	AmbulanceRepository interface {
		Create(ctx context.Context, ambulance *model.Ambulance) error
		Get(ctx context.Context, hospitalID, id uuid.UUID) (*model.Ambulance, error)
		Update(ctx context.Context, ambulance *model.Ambulance) error
		// Delete removes the ambulance and clears any driver reference to it
		// in the same transaction.
		Delete(ctx context.Context, hospitalID, id uuid.UUID) error
		List(ctx context.Context, hospitalID uuid.UUID) ([]*model.Ambulance, error)
		CountAvailable(ctx context.Context, hospitalID uuid.UUID) (int, error)
	}

	DriverRepository interface {
		// Create and Update return ErrAmbulanceAssigned when another driver
		// already references the ambulance.
		Create(ctx context.Context, driver *model.Driver) error
		Get(ctx context.Context, hospitalID, id uuid.UUID) (*model.Driver, error)
		Update(ctx context.Context, driver *model.Driver) error
		Delete(ctx context.Context, hospitalID, id uuid.UUID) error
		List(ctx context.Context, hospitalID uuid.UUID) ([]*model.Driver, error)
	}

	ReportRepository interface {
		// Create appends the report and its event. Existing reports are never
		// overwritten.
		Create(ctx context.Context, report *model.EmergencyReport, event *model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.EmergencyReport, error)
		// List returns matching reports, most recent first.
		List(ctx context.Context, filter model.ReportFilter) ([]*model.EmergencyReport, error)
		// Dispatch moves a pending report to dispatched and an available
		// ambulance of hospitalID to in_use, atomically, with event.
		Dispatch(ctx context.Context, p DispatchParams, event *model.OutboxEvent) (*model.EmergencyReport, error)
		MarkFalseAlarm(ctx context.Context, id uuid.UUID, event *model.OutboxEvent) (*model.EmergencyReport, error)
	}

	// OutboxRepository drains events written alongside domain changes.
	OutboxRepository interface {
		// ClaimPending marks up to limit due events as processing and
		// returns them. Concurrent claimers never receive the same event.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	SessionRepository interface {
		Save(ctx context.Context, session *model.Session) error
		Get(ctx context.Context, id string) (*model.Session, error)
		// Delete is idempotent.
		Delete(ctx context.Context, id string) error
	}
)

type DispatchParams struct {
	ReportID    uuid.UUID
	AmbulanceID uuid.UUID
	HospitalID  uuid.UUID
	At          time.Time
}

// Store bundles the repositories of one storage backend.
type Store struct {
	Accounts   AccountRepository
	Hospitals  HospitalRepository
	Ambulances AmbulanceRepository
	Drivers    DriverRepository
	Reports    ReportRepository
	Outbox     OutboxRepository
	Sessions   SessionRepository
}
