package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ThreatsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tw_threats_ingested_total",
			Help: "Threats accepted by the ingest pipeline",
		},
		[]string{"severity"},
	)

	RecurringIndicators = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tw_recurring_indicators_total",
			Help: "Ingested indicator values seen before",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tw_events_published_total",
			Help: "Events fanned out by the broadcast hub",
		},
		[]string{"event_type"},
	)

	ActiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tw_feed_subscribers",
			Help: "Currently connected live-feed subscribers",
		},
	)

	DroppedSubscribers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tw_feed_subscribers_dropped_total",
			Help: "Subscribers disconnected by the hub",
		},
		[]string{"reason"},
	)

	CacheRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tw_prediction_refreshes_total",
			Help: "Prediction cache refresh passes",
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tw_prediction_cache_hits_total",
			Help: "Prediction cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tw_prediction_cache_misses_total",
			Help: "Prediction cache misses",
		},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tw_storage_errors_total",
			Help: "Event store failures by operation",
		},
		[]string{"op"},
	)
)
