package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxQueueSize         prometheus.Gauge

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Dispatch metrics
	ReportsSubmitted   prometheus.Counter
	ReportsTransitions *prometheus.CounterVec
	FakeAlarmsBlocked  prometheus.Counter
	DispatchConflicts  *prometheus.CounterVec

	// AI provider metrics
	AICalls   *prometheus.CounterVec
	AILatency *prometheus.HistogramVec

	// Notification metrics
	EmailsSent *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them with reg.
// A nil registerer uses the default prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully published outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of outbox events that failed to publish",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing an outbox batch",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_queue_size",
			Help:      "Number of events fetched in the last outbox poll",
		}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),

		ReportsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Total number of emergency reports created",
		}),
		ReportsTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_transitions_total",
			Help:      "Report status transitions",
		}, []string{"to"}),
		FakeAlarmsBlocked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fake_alarms_blocked_total",
			Help:      "Accounts blocked after a fake-alarm submission",
		}),
		DispatchConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_conflicts_total",
			Help:      "Dispatch attempts rejected by a state guard",
		}, []string{"reason"}),

		AICalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_calls_total",
			Help:      "Calls to the AI provider",
		}, []string{"operation", "outcome"}),
		AILatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_call_duration_seconds",
			Help:      "Duration of AI provider calls",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"operation"}),

		EmailsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Notification emails by outcome",
		}, []string{"template", "outcome"}),
	}
}

// NewNop returns metrics registered to a throwaway registry.
func NewNop() *Metrics {
	return NewMetrics("test", prometheus.NewRegistry())
}
