package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proposals",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "proposals",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proposals",
			Subsystem: "fsm",
			Name:      "transitions_total",
			Help:      "Status transition attempts by edge and result.",
		},
		[]string{"from", "to", "result"},
	)
	sideEffects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proposals",
			Subsystem: "outbox",
			Name:      "side_effects_total",
			Help:      "Side-effect executions by kind and result.",
		},
		[]string{"kind", "result"},
	)
	externalCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "proposals",
			Subsystem: "external",
			Name:      "call_duration_seconds",
			Help:      "Latency of calls to collaborators.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "operation", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, transitions, sideEffects, externalCalls)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTransition(from, to string, err error) {
	RegisterMetrics()
	transitions.WithLabelValues(from, to, resultLabel(err)).Inc()
}

func RecordSideEffect(kind string, err error) {
	RegisterMetrics()
	sideEffects.WithLabelValues(kind, resultLabel(err)).Inc()
}

func RecordExternalCall(service, operation string, duration time.Duration, err error) {
	RegisterMetrics()
	externalCalls.WithLabelValues(service, operation, strconv.FormatBool(err == nil)).Observe(duration.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
