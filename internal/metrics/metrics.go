package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessageOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_message_ops_total",
			Help: "Message operations that reached the store",
		},
		[]string{"op"}, // "send", "edit", "delete"
	)

	// PushEvents counts targeted and broadcast pushes by outcome so that
	// dropped deliveries are visible rather than silent.
	PushEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_push_events_total",
			Help: "Push events by outcome",
		},
		[]string{"event", "result"}, // result: "delivered", "offline", "dropped"
	)

	OnlineConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_online_connections",
			Help: "Live websocket connections held by this instance",
		},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_store_latency_seconds",
			Help:    "Message store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"op"},
	)
)
