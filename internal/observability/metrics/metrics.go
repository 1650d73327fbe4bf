// Package metrics provides Prometheus instrumentation for contraship.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Run metrics
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	gasUsedTotal     *prometheus.CounterVec

	// Verification metrics
	verificationTotal    *prometheus.CounterVec
	verificationAttempts *prometheus.HistogramVec

	// History metrics
	historyRecordTotal *prometheus.CounterVec
)

// Init initializes the metrics system. Calling it again starts from an empty registry.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// every domain series carries the service label
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, registry))

	// HTTP request counter
	httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contraship_runs_total",
			Help: "Total number of deployment runs by final outcome",
		},
		[]string{"network", "outcome", "error_kind"},
	)

	// Confirmation waits dominate, so buckets reach well past a minute
	runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contraship_run_duration_seconds",
			Help:    "Deployment run latency in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"network", "outcome"},
	)

	transitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contraship_state_transitions_total",
			Help: "Total number of run state transitions by entered state",
		},
		[]string{"state"},
	)

	gasUsedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contraship_gas_used_total",
			Help: "Gas consumed by confirmed contract creations",
		},
		[]string{"network"},
	)

	verificationTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contraship_verification_total",
			Help: "Total number of source verifications by final status",
		},
		[]string{"network", "status"},
	)

	verificationAttempts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contraship_verification_attempts",
			Help:    "Verification service calls per verification",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		},
		[]string{"network"},
	)

	historyRecordTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contraship_history_record_total",
			Help: "Total number of history writes",
		},
		[]string{"status"},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current metrics for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if !enabled {
		return nil
	}
	return prometheus.WriteToTextfile(path, registry)
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}
