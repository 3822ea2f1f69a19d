// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlTasksTotal       *prometheus.CounterVec
	crawlRecordsTotal     *prometheus.CounterVec
	crawlChallengesTotal  *prometheus.CounterVec
	crawlSessionsTotal    *prometheus.CounterVec
	crawlTaskRetriesTotal prometheus.Counter
	crawlTaskDurationSecs prometheus.Histogram
	crawlActiveWorkers    prometheus.Gauge
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times;
// Observe helpers are no-ops until it runs, which keeps unit tests quiet.
func Init() {
	once.Do(func() {
		crawlTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_tasks_total",
				Help: "Total crawl tasks completed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		crawlRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_records_total",
				Help: "Total job records handled, labeled by outcome (kept, dropped, filtered).",
			},
			[]string{"outcome"},
		)

		crawlChallengesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_challenges_total",
				Help: "Total challenge resolutions, labeled by resulting state.",
			},
			[]string{"state"},
		)

		crawlSessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_sessions_total",
				Help: "Total session lifecycle events, labeled by event (created, retired).",
			},
			[]string{"event"},
		)

		crawlTaskRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawl_task_retries_total",
				Help: "Total task retry attempts after challenge timeouts.",
			},
		)

		crawlTaskDurationSecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawl_task_duration_seconds",
				Help:    "Histogram of end-to-end task durations.",
				Buckets: []float64{1, 5, 10, 20, 30, 60, 90, 120},
			},
		)

		crawlActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_active_workers",
				Help: "Number of workers currently driving a task.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests served, labeled by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request durations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTask records a task reaching a terminal status.
func ObserveTask(status string, duration time.Duration) {
	if crawlTasksTotal == nil {
		return
	}
	crawlTasksTotal.WithLabelValues(status).Inc()
	crawlTaskDurationSecs.Observe(duration.Seconds())
}

// ObserveRecords records extraction results for one task.
func ObserveRecords(kept, dropped, filtered int) {
	if crawlRecordsTotal == nil {
		return
	}
	crawlRecordsTotal.WithLabelValues("kept").Add(float64(kept))
	crawlRecordsTotal.WithLabelValues("dropped").Add(float64(dropped))
	crawlRecordsTotal.WithLabelValues("filtered").Add(float64(filtered))
}

// ObserveChallenge records the outcome of one challenge resolution.
func ObserveChallenge(state string) {
	if crawlChallengesTotal == nil {
		return
	}
	crawlChallengesTotal.WithLabelValues(state).Inc()
}

// ObserveSession records a session lifecycle event.
func ObserveSession(event string) {
	if crawlSessionsTotal == nil {
		return
	}
	crawlSessionsTotal.WithLabelValues(event).Inc()
}

// ObserveRetry records one retry attempt.
func ObserveRetry() {
	if crawlTaskRetriesTotal == nil {
		return
	}
	crawlTaskRetriesTotal.Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// WorkerActive adjusts the active-worker gauge by delta.
func WorkerActive(delta int) {
	if crawlActiveWorkers == nil {
		return
	}
	crawlActiveWorkers.Add(float64(delta))
}
