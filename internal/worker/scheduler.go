package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jwalitptl/dispatch-api/pkg/logger"
)

// Cleaner removes processed outbox events older than retention.
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration)
}

// OutboxCleanupWorker runs outbox cleanup on a cron schedule.
type OutboxCleanupWorker struct {
	cron      *cron.Cron
	cleaner   Cleaner
	retention time.Duration
	logger    *logger.Logger
}

func NewOutboxCleanupWorker(cleaner Cleaner, schedule string, retention time.Duration, log *logger.Logger) (*OutboxCleanupWorker, error) {
	w := &OutboxCleanupWorker{
		cron:      cron.New(),
		cleaner:   cleaner,
		retention: retention,
		logger:    log.With("outbox-cleanup"),
	}
	if _, err := w.cron.AddFunc(schedule, w.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return w, nil
}

func (w *OutboxCleanupWorker) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	w.cleaner.Cleanup(ctx, w.retention)
}

// Start runs the schedule until ctx is done and waits for a running job.
func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	w.logger.Info("Starting outbox cleanup", "retention", w.retention.String())
	w.cron.Start()
	<-ctx.Done()
	<-w.cron.Stop().Done()
	w.logger.Info("Outbox cleanup stopped")
}
