package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
	"github.com/jwalitptl/dispatch-api/pkg/messaging"
	"github.com/jwalitptl/dispatch-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	Channel       string
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// OutboxProcessor publishes committed outbox events to the broker.
// Delivery is at-least-once: an event is marked processed only after
// the publish succeeded.
type OutboxProcessor struct {
	repo      repository.OutboxRepository
	publisher messaging.Publisher
	config    OutboxProcessorConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	publisher messaging.Publisher,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.Channel == "" {
		return nil, fmt.Errorf("channel is required")
	}
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, fmt.Errorf("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, fmt.Errorf("RetryDelay must be greater than 0")
	}

	return &OutboxProcessor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With("outbox-processor"),
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims up to BatchSize events and publishes them. It returns
// the number published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "success").Inc()
	p.metrics.OutboxQueueSize.Set(float64(len(events)))

	published := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType,
				"retry_count", event.RetryCount)
			continue
		}
		published++
	}
	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	envelope := model.Envelope{
		ID:        event.ID,
		Type:      event.EventType,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	}

	if err := p.publisher.Publish(ctx, p.config.Channel, envelope); err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		p.recordFailure(ctx, event, err)
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// recordFailure schedules a retry with linear backoff, or gives up once
// RetryAttempts publishes have failed.
func (p *OutboxProcessor) recordFailure(ctx context.Context, event *model.OutboxEvent, cause error) {
	msg := cause.Error()
	attempts := event.RetryCount + 1

	var err error
	if attempts >= p.config.RetryAttempts {
		err = p.repo.MarkFailed(ctx, event.ID, msg)
	} else {
		retryAt := p.now().Add(time.Duration(attempts) * p.config.RetryDelay)
		err = p.repo.MarkRetry(ctx, event.ID, msg, retryAt)
	}
	if err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
	}
}

// Cleanup removes processed events older than retention.
func (p *OutboxProcessor) Cleanup(ctx context.Context, retention time.Duration) {
	n, err := p.repo.DeleteProcessedBefore(ctx, p.now().Add(-retention))
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("delete_processed_events", "error").Inc()
		p.logger.Error(err, "Failed to clean up processed events")
		return
	}
	p.metrics.DatabaseOperations.WithLabelValues("delete_processed_events", "success").Inc()
	if n > 0 {
		p.logger.Info("Cleaned up processed events", "deleted", n)
	}
}
