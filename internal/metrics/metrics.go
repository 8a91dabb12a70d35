// Package metrics exposes Prometheus collectors for replay runs.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Entry results.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
)

var (
	registry = prometheus.NewRegistry()

	entriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replaydiff_entries_total",
			Help: "Total number of replayed entries, labeled by result.",
		},
		[]string{"result"},
	)

	diffsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "replaydiff_diffs_total",
			Help: "Total number of entries whose old and new bodies differed.",
		},
	)

	requestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replaydiff_request_duration_seconds",
			Help:    "Histogram of request latencies, labeled by target.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"target"},
	)

	requestErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replaydiff_request_errors_total",
			Help: "Total number of failed requests, labeled by target.",
		},
		[]string{"target"},
	)

	rateLimitDelaySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replaydiff_rate_limit_delay_seconds",
			Help:    "Histogram of rate limit wait durations, labeled by host.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"host"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replaydiff_http_requests_total",
			Help: "Total number of requests served by the metrics server, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replaydiff_http_request_duration_seconds",
			Help:    "Histogram of metrics server latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route"},
	)

	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "replaydiff_active_workers",
			Help: "Number of workers currently running.",
		},
	)

	// queueLen is read on every scrape so the gauge follows the queue as
	// workers drain it.
	queueLen atomic.Pointer[func() int]

	queueDepth = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "replaydiff_queue_depth",
			Help: "Number of entries waiting in the dispatch queue.",
		},
		func() float64 {
			if fn := queueLen.Load(); fn != nil {
				return float64((*fn)())
			}
			return 0
		},
	)

	once sync.Once
)

// Init registers the collectors with the package registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			entriesTotal,
			diffsTotal,
			requestDurationSeconds,
			requestErrorsTotal,
			rateLimitDelaySeconds,
			httpRequestsTotal,
			httpRequestDurationSeconds,
			activeWorkers,
			queueDepth,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveEntry increments the entry counter for the given result.
func ObserveEntry(result string) {
	entriesTotal.WithLabelValues(result).Inc()
}

// ObserveDiff increments the diff counter.
func ObserveDiff() {
	diffsTotal.Inc()
}

// ObserveRequest records the latency of a completed request.
func ObserveRequest(target string, duration time.Duration) {
	requestDurationSeconds.WithLabelValues(target).Observe(duration.Seconds())
}

// ObserveRequestError increments the request error counter for target.
func ObserveRequestError(target string) {
	requestErrorsTotal.WithLabelValues(target).Inc()
}

// ObserveRateLimitDelay records how long a request waited for a token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveHTTPRequest records one request served by the metrics server.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// TrackQueueDepth makes the queue depth gauge report lenFn. Passing nil
// resets the gauge to zero. The most recent call wins.
func TrackQueueDepth(lenFn func() int) {
	if lenFn == nil {
		queueLen.Store(nil)
		return
	}
	queueLen.Store(&lenFn)
}
