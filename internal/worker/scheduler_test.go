package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/dispatch-api/pkg/logger"
)

type countingCleaner struct {
	calls     atomic.Int32
	retention time.Duration
}

func (c *countingCleaner) Cleanup(ctx context.Context, retention time.Duration) {
	c.retention = retention
	c.calls.Add(1)
}

func TestOutboxCleanupWorker_InvalidSchedule(t *testing.T) {
	_, err := NewOutboxCleanupWorker(&countingCleaner{}, "not a schedule", time.Hour, logger.Nop())
	assert.Error(t, err)
}

func TestOutboxCleanupWorker_Runs(t *testing.T) {
	cleaner := &countingCleaner{}
	w, err := NewOutboxCleanupWorker(cleaner, "@every 1s", time.Hour, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cleaner.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, time.Hour, cleaner.retention)
}
