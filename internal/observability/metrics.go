package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesPublished counts successful publishes by outcome (insert or update).
	PagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_pages_published_total",
		Help: "Total number of successful page publishes",
	}, []string{"outcome"})

	// PublishFallbacks counts writes that were retried with the minimal column set.
	PublishFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_publish_fallback_total",
		Help: "Total number of publish writes retried with the minimal column set",
	}, []string{"operation", "result"})

	// PageViewsRecorded counts recorded page views.
	PageViewsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "folio_page_views_recorded_total",
		Help: "Total number of page views recorded",
	})

	// AnalyticsEvents counts fire-and-forget analytics emissions by event and result.
	AnalyticsEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_analytics_events_total",
		Help: "Total analytics events emitted",
	}, []string{"event", "result"})

	// AvatarUploads counts avatar uploads by result.
	AvatarUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_avatar_uploads_total",
		Help: "Total avatar uploads by result",
	}, []string{"result"})

	// LiveViewConnections is the number of open live view feeds.
	LiveViewConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "folio_live_view_connections",
		Help: "Number of open live view WebSocket connections",
	})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "folio_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// WebSocketBackpressureDrops counts live feed messages dropped by reason.
var WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "folio_websocket_backpressure_drops_total",
	Help: "Total live feed messages dropped due to backpressure",
}, []string{"hub", "reason"})
