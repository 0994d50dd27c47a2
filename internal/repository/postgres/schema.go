package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL,
		phone         TEXT NOT NULL,
		ci            TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL CHECK (role IN ('user', 'operator')),
		is_blocked    BOOLEAN NOT NULL DEFAULT FALSE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (lower(email))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_phone_key ON accounts (phone)`,

	`CREATE TABLE IF NOT EXISTS hospitals (
		id          UUID PRIMARY KEY,
		name        TEXT NOT NULL,
		latitude    DOUBLE PRECISION NOT NULL,
		longitude   DOUBLE PRECISION NOT NULL,
		type        TEXT NOT NULL DEFAULT 'private',
		admin_phone TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		email       TEXT NOT NULL,
		operator_id UUID NOT NULL UNIQUE REFERENCES accounts (id),
		created_at  TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS ambulances (
		id           UUID PRIMARY KEY,
		plate_number TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'in_use')),
		hospital_id  UUID NOT NULL REFERENCES hospitals (id),
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ambulances_hospital_idx ON ambulances (hospital_id, status)`,

	`CREATE TABLE IF NOT EXISTS drivers (
		id             UUID PRIMARY KEY,
		first_name     TEXT NOT NULL,
		last_name      TEXT NOT NULL,
		license_number TEXT NOT NULL,
		hospital_id    UUID NOT NULL REFERENCES hospitals (id),
		ambulance_id   UUID REFERENCES ambulances (id) ON DELETE SET NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS drivers_ambulance_key ON drivers (ambulance_id) WHERE ambulance_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS emergency_reports (
		id                    UUID PRIMARY KEY,
		user_id               UUID NOT NULL REFERENCES accounts (id),
		user_phone            TEXT NOT NULL,
		user_name             TEXT NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL,
		latitude              DOUBLE PRECISION NOT NULL,
		longitude             DOUBLE PRECISION NOT NULL,
		description           TEXT NOT NULL DEFAULT '',
		accident_type         TEXT NOT NULL,
		injured_count         INTEGER NOT NULL,
		triage_answers        JSONB NOT NULL,
		image_url             TEXT NOT NULL DEFAULT '',
		ai_analysis           JSONB NOT NULL,
		status                TEXT NOT NULL CHECK (status IN ('pending', 'dispatched', 'false_alarm', 'attended')),
		assigned_ambulance_id UUID,
		dispatched_at         TIMESTAMPTZ,
		hospital_id           UUID
	)`,
	`CREATE INDEX IF NOT EXISTS emergency_reports_status_idx ON emergency_reports (status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS emergency_reports_user_idx ON emergency_reports (user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS outbox_events (
		id            UUID PRIMARY KEY,
		event_type    TEXT NOT NULL,
		payload       JSONB NOT NULL,
		status        TEXT NOT NULL,
		error_message TEXT,
		retry_count   INTEGER NOT NULL DEFAULT 0,
		retry_at      TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		processed_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_events_status_idx ON outbox_events (status, created_at)`,
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
