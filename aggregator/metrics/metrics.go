package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_chat_requests_total",
			Help: "Chat completions by catalog model and outcome",
		},
		[]string{"model", "mode", "outcome"}, // mode: "sync" or "stream"
	)

	StreamChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aggregator_stream_chunks_total",
			Help: "Chunks relayed over websocket streams",
		},
	)

	MessagesSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_messages_saved_total",
			Help: "Messages persisted through /chat/messages",
		},
		[]string{"role"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"path"},
	)
)
