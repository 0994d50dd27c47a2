package postgres

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jwalitptl/dispatch-api/internal/config"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

func NewDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

// NewStore wires every PostgreSQL repository. Sessions are not kept in
// PostgreSQL; the caller supplies a session repository.
func NewStore(db *sqlx.DB) repository.Store {
	base := NewBaseRepository(db)
	return repository.Store{
		Accounts:   NewAccountRepository(base),
		Hospitals:  NewHospitalRepository(base),
		Ambulances: NewAmbulanceRepository(base),
		Drivers:    NewDriverRepository(base),
		Reports:    NewReportRepository(base),
		Outbox:     NewOutboxRepository(base),
	}
}
