// Package metrics exposes Prometheus collectors for the ledger, escrow and
// project services.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "workledger",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "workledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ledgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workledger",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations applied.",
		},
		[]string{"operation", "result"},
	)

	escrowSettlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workledger",
			Subsystem: "escrow",
			Name:      "settlements_total",
			Help:      "Total number of escrow settlements by outcome.",
		},
		[]string{"outcome"},
	)

	escrowHeldAmount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "workledger",
			Subsystem: "escrow",
			Name:      "held_amount",
			Help:      "Sum of amounts currently held in escrow, in minor units.",
		},
	)

	projectTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workledger",
			Subsystem: "projects",
			Name:      "transitions_total",
			Help:      "Total number of project status transitions.",
		},
		[]string{"to"},
	)

	storageConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "workledger",
			Subsystem: "storage",
			Name:      "conflicts_total",
			Help:      "Total number of optimistic-lock conflicts observed.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOperations,
		escrowSettlements,
		escrowHeldAmount,
		projectTransitions,
		storageConflicts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordLedgerOperation counts one applied or rejected ledger operation.
func RecordLedgerOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ledgerOperations.WithLabelValues(operation, result).Inc()
}

// RecordSettlement counts one escrow settlement outcome.
func RecordSettlement(outcome string) {
	escrowSettlements.WithLabelValues(outcome).Inc()
}

// AddHeldAmount tracks funds entering (positive) or leaving (negative)
// escrow.
func AddHeldAmount(delta int64) {
	escrowHeldAmount.Add(float64(delta))
}

// RecordProjectTransition counts one project status change.
func RecordProjectTransition(to string) {
	projectTransitions.WithLabelValues(to).Inc()
}

// RecordStorageConflict counts one optimistic-lock retry.
func RecordStorageConflict() {
	storageConflicts.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "accounts", "transactions", "projects":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) == 2 {
			return "/" + parts[0] + "/:id"
		}
		return "/" + parts[0] + "/:id/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
