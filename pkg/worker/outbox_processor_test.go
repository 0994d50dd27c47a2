package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository/memory"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
	"github.com/jwalitptl/dispatch-api/pkg/metrics"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func setupProcessor(t *testing.T, attempts int) (*OutboxProcessor, *memory.Store, *mockPublisher) {
	t.Helper()
	store := memory.New()
	pub := &mockPublisher{}
	p, err := NewOutboxProcessor(store.Repositories().Outbox, pub, OutboxProcessorConfig{
		Channel:       "dispatch.events",
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: attempts,
		RetryDelay:    time.Millisecond,
	}, logger.Nop(), metrics.NewNop())
	require.NoError(t, err)
	return p, store, pub
}

func addEvent(t *testing.T, store *memory.Store, eventType string) *model.OutboxEvent {
	t.Helper()
	event, err := model.NewOutboxEvent(eventType, map[string]string{"k": "v"})
	require.NoError(t, err)
	report := &model.EmergencyReport{Status: model.ReportPending}
	require.NoError(t, store.Repositories().Reports.Create(context.Background(), report, event))
	return event
}

func TestOutboxProcessor_Publishes(t *testing.T) {
	p, store, pub := setupProcessor(t, 3)
	event := addEvent(t, store, model.EventReportSubmitted)

	pub.On("Publish", mock.Anything, "dispatch.events", mock.MatchedBy(func(env model.Envelope) bool {
		return env.ID == event.ID && env.Type == model.EventReportSubmitted
	})).Return(nil).Once()

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.OutboxStatusProcessed, store.Events()[0].Status)

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	pub.AssertExpectations(t)
}

func TestOutboxProcessor_RetryThenFail(t *testing.T) {
	p, store, pub := setupProcessor(t, 2)
	addEvent(t, store, model.EventAccountBlocked)

	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	got := store.Events()[0]
	assert.Equal(t, model.OutboxStatusRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	// the retry becomes due after RetryDelay
	time.Sleep(5 * time.Millisecond)

	_, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	got = store.Events()[0]
	assert.Equal(t, model.OutboxStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "broker down", *got.ErrorMessage)
}

func TestOutboxProcessor_Cleanup(t *testing.T) {
	p, store, pub := setupProcessor(t, 1)
	addEvent(t, store, model.EventReportDispatched)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	p.Cleanup(context.Background(), time.Hour)
	assert.Len(t, store.Events(), 1)

	p.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	p.Cleanup(context.Background(), time.Hour)
	assert.Empty(t, store.Events())
}

func TestNewOutboxProcessor_Validates(t *testing.T) {
	_, err := NewOutboxProcessor(memory.New().Repositories().Outbox, &mockPublisher{}, OutboxProcessorConfig{}, logger.Nop(), metrics.NewNop())
	assert.Error(t, err)
}
