package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
	"github.com/jwalitptl/dispatch-api/internal/repository/memory"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
	"github.com/jwalitptl/dispatch-api/pkg/metrics"
)

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) Send(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

func envelope(t *testing.T, eventType string, payload interface{}) []byte {
	t.Helper()
	event, err := model.NewOutboxEvent(eventType, payload)
	require.NoError(t, err)
	b, err := json.Marshal(model.Envelope{ID: event.ID, Type: event.EventType, Payload: event.Payload, CreatedAt: event.CreatedAt})
	require.NoError(t, err)
	return b
}

func seedHospital(t *testing.T, repos repository.Store) *model.Hospital {
	t.Helper()
	hospital := &model.Hospital{Name: "Hospital Japonés", Email: "ops@japones.bo", Type: model.HospitalTypePrivate}
	err := repos.Accounts.Create(context.Background(), &model.Account{
		Email: "ops@japones.bo", Phone: "70000001", Role: model.RoleOperator,
	}, hospital)
	require.NoError(t, err)
	return hospital
}

func TestHandle_ReportDispatched(t *testing.T) {
	repos := memory.New().Repositories()
	hospital := seedHospital(t, repos)
	mailer := &mockEmail{}
	svc := NewService(repos.Hospitals, mailer, logger.Nop(), metrics.NewNop())

	ambulance := uuid.New()
	payload := envelope(t, model.EventReportDispatched, model.ReportEvent{
		ReportID:    uuid.New(),
		Status:      model.ReportDispatched,
		TriageLevel: model.TriageRed,
		HospitalID:  &hospital.ID,
		AmbulanceID: &ambulance,
		At:          time.Now(),
	})

	mailer.On("Send", mock.Anything, "ops@japones.bo", "[Red] Ambulance dispatched",
		mock.MatchedBy(func(body string) bool {
			return assert.Contains(t, body, "Hospital Japonés") && assert.Contains(t, body, ambulance.String())
		})).Return(nil).Once()

	require.NoError(t, svc.Handle(context.Background(), payload))
	mailer.AssertExpectations(t)
}

func TestHandle_AccountBlocked(t *testing.T) {
	mailer := &mockEmail{}
	svc := NewService(memory.New().Repositories().Hospitals, mailer, logger.Nop(), metrics.NewNop())

	payload := envelope(t, model.EventAccountBlocked, model.AccountBlockedEvent{
		AccountID: uuid.New(), Email: "ana@example.com", Reason: "submitted a false alarm", At: time.Now(),
	})

	mailer.On("Send", mock.Anything, "ana@example.com", "Your account has been blocked",
		mock.AnythingOfType("string")).Return(errors.New("smtp down")).Once()

	err := svc.Handle(context.Background(), payload)
	assert.ErrorContains(t, err, "smtp down")
	mailer.AssertExpectations(t)
}

func TestHandle_IgnoresAndRejects(t *testing.T) {
	mailer := &mockEmail{}
	svc := NewService(memory.New().Repositories().Hospitals, mailer, logger.Nop(), metrics.NewNop())
	ctx := context.Background()

	assert.NoError(t, svc.Handle(ctx, envelope(t, model.EventReportSubmitted, model.ReportEvent{ReportID: uuid.New()})))
	assert.Error(t, svc.Handle(ctx, []byte("not json")))

	unknown := uuid.New()
	err := svc.Handle(ctx, envelope(t, model.EventReportDispatched, model.ReportEvent{ReportID: uuid.New(), HospitalID: &unknown}))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = svc.Handle(ctx, envelope(t, model.EventReportDispatched, model.ReportEvent{ReportID: uuid.New()}))
	assert.Error(t, err)

	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
