package articles

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bissquit/sendly/internal/pkg/metrics"
)

var (
	topicRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "articles",
			Name:      "topic_requests_total",
			Help:      "Topic searches by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "articles",
			Name:      "cache_lookups_total",
			Help:      "Article cache lookups by result",
		},
		[]string{"result"},
	)

	articlesReturned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "articles",
			Name:      "returned_total",
			Help:      "Articles returned after filtering and deduplication",
		},
	)
)

func recordTopicRequest(provider, outcome string) {
	topicRequests.WithLabelValues(provider, outcome).Inc()
}
