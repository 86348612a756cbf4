// Package metrics provides Prometheus instrumentation for the collection pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchTotal counts outbound market requests by source and outcome kind.
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_fetch_total",
		Help: "Outbound market requests by source and result",
	}, []string{"source", "result"})

	// FetchLatency tracks outbound request latency.
	FetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arb_fetch_latency_seconds",
		Help:    "Outbound market request latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"source"})

	// RateLimitWait tracks time spent waiting for local admission.
	RateLimitWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arb_ratelimit_wait_seconds",
		Help:    "Time spent waiting on the local rate limiter",
		Buckets: []float64{0, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"source"})

	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_snapshots_total",
		Help: "Normalized snapshots by source and result (inserted, duplicate, invalid)",
	}, []string{"source", "result"})

	DepthRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_depth_rows_total",
		Help: "Order-book depth rows written",
	}, []string{"source"})

	CandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_candidates_total",
		Help: "Evaluations by recommended action",
	}, []string{"action"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_cycle_duration_seconds",
		Help:    "Duration of a full catalog cycle",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})

	ItemFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_item_failures_total",
		Help: "Per-item failures isolated by the scheduler",
	}, []string{"source"})

	// WebSocketClients tracks connected live feed clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arb_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request metrics keyed by route pattern.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
