// Package metrics exposes Prometheus collectors for bootstrap runs and the
// status HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stablecoin_bootstrap"

var (
	// Registry holds the bootstrap Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	stepOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "steps",
			Name:      "total",
			Help:      "Bootstrap steps by name and outcome.",
		},
		[]string{"network", "step", "outcome"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "steps",
			Name:      "duration_seconds",
			Help:      "Duration of bootstrap steps including confirmation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"network", "step"},
	)

	componentCreations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "components",
			Name:      "resolved_total",
			Help:      "Component resolutions by kind, split into created and reused.",
		},
		[]string{"network", "kind", "reused"},
	)

	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "total",
			Help:      "Bootstrap runs by final state.",
		},
		[]string{"network", "result"},
	)

	runState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "state",
			Help:      "Current orchestrator state as an ordinal (0 NotStarted ... 5 Complete, 6 Failed).",
		},
		[]string{"network"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		stepOutcomes,
		stepDuration,
		componentCreations,
		runs,
		runState,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler counts and times requests to next. Scrapes of /metrics
// are not recorded.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordStep records the outcome and duration of one step.
func RecordStep(network, step, outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	stepOutcomes.WithLabelValues(network, step, outcome).Inc()
	stepDuration.WithLabelValues(network, step).Observe(duration.Seconds())
}

// RecordComponent records a component resolution.
func RecordComponent(network, kind string, reused bool) {
	componentCreations.WithLabelValues(network, kind, strconv.FormatBool(reused)).Inc()
}

// RecordRun records a finished run.
func RecordRun(network, result string) {
	runs.WithLabelValues(network, result).Inc()
}

// SetState publishes the orchestrator state ordinal.
func SetState(network string, ordinal int) {
	runState.WithLabelValues(network).Set(float64(ordinal))
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

// canonicalPath keeps label cardinality bounded: /status/<network> collapses
// to /status/:network.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] == "status" && len(parts) > 1 {
		return "/status/:network"
	}
	return "/" + parts[0]
}
