package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Buckets tuned for outbound API calls that range from a few milliseconds
	// (webhook receivers on the same network) to tens of seconds (Airtable under
	// throttling)
	OutboundAPIBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 34, 55}

	// HTTP Metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: OutboundAPIBuckets,
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_server_active_requests",
			Help: "Number of active HTTP requests",
		},
		[]string{"http_request_method"},
	)

	// Outbound Airtable API metrics
	AirtableRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airtable_client_operation_duration_seconds",
			Help:    "Airtable client operation duration in seconds",
			Buckets: OutboundAPIBuckets,
		},
		[]string{"operation", "status"},
	)

	AirtableRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airtable_client_operation_total",
			Help: "Total number of Airtable client operations",
		},
		[]string{"operation", "status"},
	)

	// Outbound webhook metrics
	WebhookSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_send_duration_seconds",
			Help:    "Webhook dispatch duration in seconds",
			Buckets: OutboundAPIBuckets,
		},
		[]string{"status"},
	)

	WebhookSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_send_total",
			Help: "Total number of webhook dispatches",
		},
		[]string{"status"},
	)

	// Config store metrics
	ConfigStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "config_store_operation_duration_seconds",
			Help:    "Config store operation duration in seconds",
			Buckets: OutboundAPIBuckets,
		},
		[]string{"operation", "status"},
	)

	ConfigStoreTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_store_operation_total",
			Help: "Total number of config store operations",
		},
		[]string{"operation", "status"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_name"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_name"},
	)

	// Business metrics
	ClipsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_clips_sent_total",
			Help: "Total number of clips sent, by destination kind and outcome",
		},
		[]string{"kind", "status"},
	)

	AttachmentsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_attachments_rejected_total",
			Help: "Total number of attachments rejected, by reason",
		},
		[]string{"reason"},
	)

	RateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipper_rate_limit_waits_total",
			Help: "Total number of sends that had to wait on the per-base limiter",
		},
	)
)

// MeasureDuration returns the elapsed time since start in seconds
func MeasureDuration(start time.Time) float64 {
	return time.Since(start).Seconds()
}
