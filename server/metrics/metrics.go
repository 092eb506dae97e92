// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ServiceName = "probowler"
)

var (
	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prometheus.BuildFQName(ServiceName, "analysis", "duration_seconds"),
		Help:    "Duration of trial analysis in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"source"})
	AnalysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "analysis", "total"),
		Help: "Analyzed trials by source and outcome",
	}, []string{"source", "outcome"})
	AnalysisFrames = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    prometheus.BuildFQName(ServiceName, "analysis", "frames"),
		Help:    "Frames per analyzed trial",
		Buckets: prometheus.ExponentialBuckets(8, 2, 8),
	})
	FallbackEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "analysis", "fallback_events_total"),
		Help: "Trials whose front foot contact fell back to the midpoint frame",
	})
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "cache", "lookups_total"),
		Help: "Report cache lookups by result",
	}, []string{"result"})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName(ServiceName, "queue", "depth"),
		Help: "Jobs waiting in the processing queue",
	})
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "queue", "jobs_total"),
		Help: "Finished queue jobs by status",
	}, []string{"status"})
	PoseRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prometheus.BuildFQName(ServiceName, "pose", "request_duration_seconds"),
		Help:    "Duration of pose extraction requests in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"outcome"})
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName(ServiceName, "websocket", "connections"),
		Help: "Open websocket connections",
	})
)
