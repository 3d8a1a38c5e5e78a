package newsletter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bissquit/sendly/internal/pkg/metrics"
)

const subsystem = "newsletter"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "queue_size",
			Help:      "Number of schedule queue items by status",
		},
		[]string{"status"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "runs_total",
			Help:      "Finished newsletter runs by outcome",
		},
		[]string{"outcome"},
	)

	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "steps_total",
			Help:      "Pipeline step executions by result",
		},
		[]string{"step", "result"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "step_duration_seconds",
			Help:      "Time spent executing a pipeline step",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"step"},
	)

	queueFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "queue_fetched_total",
			Help:      "Total schedule items claimed from the queue",
		},
	)

	queueReseeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "queue_reseeded_total",
			Help:      "Regular runs restarted by maintenance for subscribers without one",
		},
	)

	queueRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "queue_retries_total",
			Help:      "Total runs scheduled for another attempt",
		},
	)
)

func recordRun(outcome Outcome) {
	runsTotal.WithLabelValues(string(outcome)).Inc()
}

func recordStep(step Step, result string) {
	stepsTotal.WithLabelValues(string(step), result).Inc()
}

func recordStepDuration(step Step, d time.Duration) {
	stepDuration.WithLabelValues(string(step)).Observe(d.Seconds())
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *QueueStats) {
	queueSize.WithLabelValues(string(QueueStatusPending)).Set(float64(stats.Pending))
	queueSize.WithLabelValues(string(QueueStatusProcessing)).Set(float64(stats.Processing))
	queueSize.WithLabelValues(string(QueueStatusRetrying)).Set(float64(stats.Retrying))
	queueSize.WithLabelValues(string(QueueStatusDone)).Set(float64(stats.Done))
	queueSize.WithLabelValues(string(QueueStatusFailed)).Set(float64(stats.Failed))
}
