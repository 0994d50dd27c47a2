package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

type reportRepository struct {
	BaseRepository
}

func NewReportRepository(base BaseRepository) repository.ReportRepository {
	return &reportRepository{base}
}

const reportColumns = `id, user_id, user_phone, user_name, created_at, latitude, longitude,
	description, accident_type, injured_count, triage_answers, image_url, ai_analysis,
	status, assigned_ambulance_id, dispatched_at, hospital_id`

type reportRow struct {
	model.EmergencyReport
	Latitude  float64 `db:"latitude"`
	Longitude float64 `db:"longitude"`
}

func (r reportRow) toModel() *model.EmergencyReport {
	out := r.EmergencyReport
	out.Location = model.Location{Latitude: r.Latitude, Longitude: r.Longitude}
	return &out
}

func (r *reportRepository) Create(ctx context.Context, rep *model.EmergencyReport, event *model.OutboxEvent) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO emergency_reports (` + reportColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`
		_, err := tx.ExecContext(ctx, query,
			rep.ID,
			rep.UserID,
			rep.UserPhone,
			rep.UserName,
			rep.CreatedAt,
			rep.Location.Latitude,
			rep.Location.Longitude,
			rep.Description,
			rep.AccidentType,
			rep.InjuredCount,
			rep.TriageAnswers,
			rep.ImageURL,
			rep.AIAnalysis,
			rep.Status,
			rep.AssignedAmbulanceID,
			rep.DispatchedAt,
			rep.HospitalID,
		)
		if err != nil {
			if _, dup := uniqueConstraint(err); dup {
				return repository.ErrDuplicate
			}
			return storageErr("insert report", err)
		}
		return insertEvent(ctx, tx, event)
	})
}

func (r *reportRepository) Get(ctx context.Context, id uuid.UUID) (*model.EmergencyReport, error) {
	query := `SELECT ` + reportColumns + ` FROM emergency_reports WHERE id = $1`

	var row reportRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, notFoundOr("get report", err)
	}
	return row.toModel(), nil
}

func (r *reportRepository) List(ctx context.Context, f model.ReportFilter) ([]*model.EmergencyReport, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != nil {
		where = append(where, "status = "+arg(*f.Status))
	}
	if f.UserID != nil {
		where = append(where, "user_id = "+arg(*f.UserID))
	}
	if f.HospitalID != nil {
		cond := "hospital_id = " + arg(*f.HospitalID)
		if f.IncludeUntagged {
			cond = "(" + cond + " OR hospital_id IS NULL)"
		}
		where = append(where, cond)
	}

	query := `SELECT ` + reportColumns + ` FROM emergency_reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var rows []reportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr("list reports", err)
	}

	out := make([]*model.EmergencyReport, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// pendingGuardFailed tells a missing report apart from one that left pending.
func (r *reportRepository) pendingGuardFailed(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	var status model.ReportStatus
	if err := tx.GetContext(ctx, &status, `SELECT status FROM emergency_reports WHERE id = $1`, id); err != nil {
		return notFoundOr("get report status", err)
	}
	return repository.ErrReportNotPending
}

func (r *reportRepository) Dispatch(ctx context.Context, p repository.DispatchParams, event *model.OutboxEvent) (*model.EmergencyReport, error) {
	var out *model.EmergencyReport

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE emergency_reports
			SET status = $1, assigned_ambulance_id = $2, dispatched_at = $3, hospital_id = $4
			WHERE id = $5 AND status = $6
			RETURNING ` + reportColumns

		var rows []reportRow
		err := tx.SelectContext(ctx, &rows, query,
			model.ReportDispatched, p.AmbulanceID, p.At, p.HospitalID, p.ReportID, model.ReportPending)
		if err != nil {
			return storageErr("dispatch report", err)
		}
		if len(rows) == 0 {
			return r.pendingGuardFailed(ctx, tx, p.ReportID)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE ambulances SET status = $1, updated_at = $2
			WHERE id = $3 AND hospital_id = $4 AND status = $5`,
			model.AmbulanceInUse, p.At, p.AmbulanceID, p.HospitalID, model.AmbulanceAvailable)
		if err != nil {
			return storageErr("reserve ambulance", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrAmbulanceUnavailable
		}

		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}
		out = rows[0].toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reportRepository) MarkFalseAlarm(ctx context.Context, id uuid.UUID, event *model.OutboxEvent) (*model.EmergencyReport, error) {
	var out *model.EmergencyReport

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE emergency_reports SET status = $1
			WHERE id = $2 AND status = $3
			RETURNING ` + reportColumns

		var rows []reportRow
		if err := tx.SelectContext(ctx, &rows, query, model.ReportFalseAlarm, id, model.ReportPending); err != nil {
			return storageErr("mark false alarm", err)
		}
		if len(rows) == 0 {
			return r.pendingGuardFailed(ctx, tx, id)
		}
		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}
		out = rows[0].toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
