// Package metrics provides Prometheus instrumentation for serverkit.
//
// Besides the standard HTTP metrics it records server startup (plugin
// initialisation), the hot-reload build pipeline and session store writes.
//
// The "metrics" plugin wires it up:
//
//	r.Use(metrics.Middleware())
//	r.Get("/metrics", "metrics", metrics.Handler())
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "serverkit"

// ─────────────────────────────────────────────
// Built-in metrics
// ─────────────────────────────────────────────

var (
	// RequestDuration tracks how long each HTTP request takes,
	// broken down by method, path, and status code.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	RequestInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being served.",
	})

	ResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Response body sizes in bytes.",
			Buckets:   []float64{100, 1_000, 10_000, 100_000, 1_000_000},
		},
		[]string{"method", "path"},
	)

	// PluginInitDuration tracks plugin initializers run at startup.
	PluginInitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "startup",
			Name:      "plugin_init_duration_seconds",
			Help:      "Duration of plugin initializers in seconds.",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 30},
		},
		[]string{"plugin", "status"}, // "ok" | "failed"
	)

	// HMRBuilds counts bundler runs by status.
	HMRBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hmr",
			Name:      "builds_total",
			Help:      "Total bundler builds.",
		},
		[]string{"status"}, // "success" | "failed"
	)

	HMRBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "hmr",
		Name:      "build_duration_seconds",
		Help:      "Duration of bundler builds in seconds.",
		Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
	})

	// HMRClients tracks connected hot-reload clients per transport.
	HMRClients = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hmr",
		Name:      "clients",
		Help:      "Connected hot-reload clients.",
	}, []string{"transport"}) // "sse" | "websocket"

	// SessionSaves counts session store writes.
	SessionSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "saves_total",
			Help:      "Total session store writes.",
		},
		[]string{"status"}, // "success" | "failed"
	)
)

// ─────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────

// DefaultRegistry is the Prometheus registry used by serverkit.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(collectors.NewGoCollector())
	DefaultRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	DefaultRegistry.MustRegister(
		RequestDuration,
		RequestTotal,
		RequestInFlight,
		ResponseSize,
		PluginInitDuration,
		HMRBuilds,
		HMRBuildDuration,
		HMRClients,
		SessionSaves,
	)
}

// Register adds a collector to the serverkit registry.
func Register(c prometheus.Collector) error {
	return DefaultRegistry.Register(c)
}

// ─────────────────────────────────────────────
// HTTP middleware
// ─────────────────────────────────────────────

// responseRecorder wraps http.ResponseWriter to capture status code and size.
type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Middleware records duration, count, in-flight and response size for every
// request.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path // raw path; normalize in high-cardinality APIs

			RequestInFlight.Inc()
			defer RequestInFlight.Dec()

			rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rr, r)

			status := strconv.Itoa(rr.status)
			RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
			RequestTotal.WithLabelValues(r.Method, path, status).Inc()
			ResponseSize.WithLabelValues(r.Method, path).Observe(float64(rr.size))
		})
	}
}

// Handler exposes the registry in the Prometheus text and OpenMetrics
// formats.
func Handler() http.HandlerFunc {
	h := promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return h.ServeHTTP
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

// ObservePlugin records one plugin initializer.
func ObservePlugin(name string, start time.Time, err error) {
	PluginInitDuration.WithLabelValues(name, outcome(err, "ok", "failed")).Observe(time.Since(start).Seconds())
}

// ObserveBuild records one bundler run.
func ObserveBuild(d time.Duration, err error) {
	HMRBuilds.WithLabelValues(outcome(err, "success", "failed")).Inc()
	HMRBuildDuration.Observe(d.Seconds())
}

// ObserveSessionSave records one session store write.
func ObserveSessionSave(err error) {
	SessionSaves.WithLabelValues(outcome(err, "success", "failed")).Inc()
}

func outcome(err error, ok, failed string) string {
	if err != nil {
		return failed
	}
	return ok
}
