package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated registry both binaries expose on /metrics.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "haulledger_http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "haulledger_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)

	// SweepRuns counts sweep cycles per tenant outcome: ok, error, locked.
	SweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "haulledger_sweep_runs_total", Help: "Invoice sweeps by outcome."},
		[]string{"outcome"},
	)
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "haulledger_sweep_duration_seconds", Help: "Duration of one tenant sweep.", Buckets: prometheus.DefBuckets},
	)
	InvoicesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "haulledger_invoices_created_total", Help: "Invoices created by sweeps and load events."},
	)
	InvoicesOverdue = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "haulledger_invoices_overdue_total", Help: "Invoices moved to overdue."},
	)
	TasksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "haulledger_tasks_created_total", Help: "Tasks materialised by workflow rules."},
		[]string{"rule"},
	)
	EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "haulledger_load_events_total", Help: "Load events handled by outcome."},
		[]string{"type", "outcome"},
	)
)

var regOnce sync.Once

// RegisterDefault registers every collector on Registry. Safe to call twice.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests, HTTPDuration,
			SweepRuns, SweepDuration,
			InvoicesCreated, InvoicesOverdue, TasksCreated, EventsConsumed,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
