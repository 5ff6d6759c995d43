package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pneus"

// Recorder owns the service collectors on a private registry.
type Recorder struct {
	registry        *prometheus.Registry
	numbers         prometheus.Counter
	retries         *prometheus.CounterVec
	exports         *prometheus.CounterVec
	exportedTires   prometheus.Counter
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRecorder registers the service collectors plus the Go and process collectors.
func NewRecorder() *Recorder {
	recorder := &Recorder{
		registry: prometheus.NewRegistry(),
		numbers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tire_numbers_allocated_total",
			Help:      "Tire numbers handed out by the shared counter.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_retries_total",
			Help:      "Transactions re-run after a write conflict.",
		}, []string{"operation"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "CSV exports by layout and outcome.",
		}, []string{"layout", "outcome"}),
		exportedTires: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_tires_total",
			Help:      "Tire records written to CSV exports.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	recorder.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		recorder.numbers,
		recorder.retries,
		recorder.exports,
		recorder.exportedTires,
		recorder.requests,
		recorder.requestDuration,
	)
	return recorder
}

// NumberAllocated counts one tire number.
func (r *Recorder) NumberAllocated() {
	r.numbers.Inc()
}

// TransactionRetried counts one conflict retry of operation.
func (r *Recorder) TransactionRetried(operation string) {
	r.retries.WithLabelValues(operation).Inc()
}

// ExportCompleted counts a successful export.
func (r *Recorder) ExportCompleted(layout string, tireCount int) {
	r.exports.WithLabelValues(layout, "ok").Inc()
	r.exportedTires.Add(float64(tireCount))
}

// ExportFailed counts an export that produced no file.
func (r *Recorder) ExportFailed(layout string) {
	r.exports.WithLabelValues(layout, "error").Inc()
}

// Middleware records request counts and latency keyed by the matched route.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		r.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		r.requestDuration.WithLabelValues(method, route).Observe(time.Since(started).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
