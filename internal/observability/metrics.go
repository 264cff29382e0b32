package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "request_transitions_total", Help: "Committed ride request transitions"},
		[]string{"from", "to"},
	)
	CapacityRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "capacity_rejections_total", Help: "Admissions refused because the ride was full"},
		[]string{"op"},
	)
	LostRaces = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "lost_races_total", Help: "Conditional writes that lost to a concurrent transition"},
		[]string{"op"},
	)
	RidesClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "rides_closed_total", Help: "Rides moved to completed"},
		[]string{"by"},
	)
	SOSEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "sos_events_total", Help: "SOS state changes"},
		[]string{"status"},
	)
	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campuspool", Name: "event_publish_errors_total", Help: "Lifecycle events that failed to publish"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campuspool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "campuspool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
