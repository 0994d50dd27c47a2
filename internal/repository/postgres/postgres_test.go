package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

func setupMockDB(t *testing.T) (BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBaseRepository(sqlx.NewDb(db, "postgres")), mock
}

var reportCols = []string{
	"id", "user_id", "user_phone", "user_name", "created_at", "latitude", "longitude",
	"description", "accident_type", "injured_count", "triage_answers", "image_url", "ai_analysis",
	"status", "assigned_ambulance_id", "dispatched_at", "hospital_id",
}

func TestAccountRepository_Create_WithHospital(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAccountRepository(base)

	account := &model.Account{Email: "op@h.com", Phone: "70000001", Role: model.RoleOperator, PasswordHash: "x"}
	hospital := &model.Hospital{Name: "San Juan", Type: model.HospitalTypePrivate, Location: model.Location{Latitude: -17.7, Longitude: -63.1}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(sqlmock.AnyArg(), "op@h.com", "70000001", "", "operator", false, "x", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO hospitals").
		WithArgs(sqlmock.AnyArg(), "San Juan", -17.7, -63.1, "private", "", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), account, hospital))
	assert.NotEqual(t, uuid.Nil, account.ID)
	assert.Equal(t, account.ID, hospital.OperatorID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Create_Duplicate(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAccountRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_email_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Account{Email: "a@x.com", Phone: "11112222"}, nil)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByEmail_NotFound(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAccountRepository(base)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE lower\\(email\\)").
		WithArgs("nobody@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_StorageFailure(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAccountRepository(base)

	mock.ExpectQuery("SELECT EXISTS").WillReturnError(sql.ErrConnDone)

	_, err := repo.ExistsByEmailOrPhone(context.Background(), "a@x.com", "11112222")
	assert.ErrorIs(t, err, repository.ErrStorage)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Block(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAccountRepository(base)
	id := uuid.New()

	evt, err := model.NewOutboxEvent(model.EventAccountBlocked, model.AccountBlockedEvent{AccountID: id})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts SET is_blocked = TRUE").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(evt.ID, model.EventAccountBlocked, sqlmock.AnyArg(), "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Block(context.Background(), id, evt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAmbulanceRepository_DeleteClearsDrivers(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAmbulanceRepository(base)
	hospitalID, id := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE drivers SET ambulance_id = NULL").
		WithArgs(id, hospitalID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM ambulances").
		WithArgs(id, hospitalID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), hospitalID, id))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAmbulanceRepository_DeleteMissingRollsBack(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAmbulanceRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE drivers SET ambulance_id = NULL").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM ambulances").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAmbulanceRepository_CountAvailable(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAmbulanceRepository(base)
	hospitalID := uuid.New()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(hospitalID, "available").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountAvailable(context.Background(), hospitalID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverRepository_Create_AmbulanceTaken(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewDriverRepository(base)
	hospitalID, ambulanceID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(ambulanceID, hospitalID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO drivers").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "drivers_ambulance_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Driver{FirstName: "Ana", HospitalID: hospitalID, AmbulanceID: &ambulanceID})
	assert.ErrorIs(t, err, repository.ErrAmbulanceAssigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func dispatchedRow(p repository.DispatchParams) *sqlmock.Rows {
	return sqlmock.NewRows(reportCols).AddRow(
		p.ReportID.String(), uuid.NewString(), "70012345", "a@x.com", time.Now(), -17.78, -63.18,
		"", "Fall", 1, []byte(`{"conscious":"Yes","breathing":"Yes","movement":"Yes","bleeding":"No"}`), "",
		[]byte(`{"triage_level":"Red"}`), "dispatched", p.AmbulanceID.String(), p.At, p.HospitalID.String(),
	)
}

func TestReportRepository_Dispatch(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewReportRepository(base)
	p := repository.DispatchParams{ReportID: uuid.New(), AmbulanceID: uuid.New(), HospitalID: uuid.New(), At: time.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE emergency_reports").
		WithArgs("dispatched", p.AmbulanceID, p.At, p.HospitalID, p.ReportID, "pending").
		WillReturnRows(dispatchedRow(p))
	mock.ExpectExec("UPDATE ambulances SET status").
		WithArgs("in_use", p.At, p.AmbulanceID, p.HospitalID, "available").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Dispatch(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ReportDispatched, got.Status)
	assert.Equal(t, p.AmbulanceID, *got.AssignedAmbulanceID)
	assert.Equal(t, model.TriageRed, got.AIAnalysis.TriageLevel)
	assert.Equal(t, model.No, got.TriageAnswers.Bleeding)
	assert.InDelta(t, -17.78, got.Location.Latitude, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepository_Dispatch_ReportNotPending(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewReportRepository(base)
	p := repository.DispatchParams{ReportID: uuid.New(), AmbulanceID: uuid.New(), HospitalID: uuid.New(), At: time.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE emergency_reports").WillReturnRows(sqlmock.NewRows(reportCols))
	mock.ExpectQuery("SELECT status FROM emergency_reports").
		WithArgs(p.ReportID).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("dispatched"))
	mock.ExpectRollback()

	_, err := repo.Dispatch(context.Background(), p, nil)
	assert.ErrorIs(t, err, repository.ErrReportNotPending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepository_Dispatch_AmbulanceBusyRollsBack(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewReportRepository(base)
	p := repository.DispatchParams{ReportID: uuid.New(), AmbulanceID: uuid.New(), HospitalID: uuid.New(), At: time.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE emergency_reports").WillReturnRows(dispatchedRow(p))
	mock.ExpectExec("UPDATE ambulances SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Dispatch(context.Background(), p, nil)
	assert.ErrorIs(t, err, repository.ErrAmbulanceUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepository_MarkFalseAlarm_Missing(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewReportRepository(base)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE emergency_reports SET status").WillReturnRows(sqlmock.NewRows(reportCols))
	mock.ExpectQuery("SELECT status FROM emergency_reports").WithArgs(id).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.MarkFalseAlarm(context.Background(), id, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepository_List_VisibleFilter(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewReportRepository(base)
	hospitalID := uuid.New()
	pending := model.ReportPending

	mock.ExpectQuery(`WHERE status = \$1 AND \(hospital_id = \$2 OR hospital_id IS NULL\) ORDER BY created_at DESC`).
		WithArgs("pending", hospitalID).
		WillReturnRows(sqlmock.NewRows(reportCols))

	got, err := repo.List(context.Background(), model.ReportFilter{Status: &pending, HospitalID: &hospitalID, IncludeUntagged: true})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_ClaimPending(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewOutboxRepository(base)
	id := uuid.New()

	rows := sqlmock.NewRows([]string{
		"id", "event_type", "payload", "status", "error_message", "retry_count", "retry_at",
		"created_at", "updated_at", "processed_at",
	}).AddRow(id.String(), model.EventReportSubmitted, []byte(`{}`), "processing", nil, 0, nil, time.Now(), time.Now(), nil)

	mock.ExpectQuery("UPDATE outbox_events(.+)FOR UPDATE SKIP LOCKED").
		WithArgs(10, sqlmock.AnyArg()).
		WillReturnRows(rows)

	events, err := repo.ClaimPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, model.OutboxStatusProcessing, events[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_DeleteProcessedBefore(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewOutboxRepository(base)
	before := time.Now()

	mock.ExpectExec("DELETE FROM outbox_events").
		WithArgs(before).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteProcessedBefore(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
