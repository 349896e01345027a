// Package metrics exposes Prometheus collectors for discovery, dispatch,
// model calls and the agent loop.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/tools"
)

var (
	// Discovery metrics
	DiscoveryRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphost_discovery_total",
			Help: "Total number of per-server discovery attempts",
		},
		[]string{"server", "status"}, // status: success or an error kind
	)

	DiscoveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcphost_discovery_duration_seconds",
			Help:    "Per-server discovery duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"server"},
	)

	CatalogTools = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcphost_catalog_tools",
			Help: "Number of tools in the current catalog snapshot",
		},
	)

	// Dispatch metrics
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphost_tool_calls_total",
			Help: "Total number of dispatched tool calls",
		},
		[]string{"server", "tool", "status"},
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcphost_tool_latency_seconds",
			Help:    "Tool call latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"server", "tool"},
	)

	// Backend metrics, recorded by the built-in servers
	BackendCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphost_backend_calls_total",
			Help: "Total number of tool calls handled by built-in backends",
		},
		[]string{"backend", "tool", "status"}, // status: success|error
	)

	// Model metrics
	ModelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphost_model_calls_total",
			Help: "Total number of language model calls",
		},
		[]string{"provider", "status"},
	)

	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcphost_model_latency_seconds",
			Help:    "Language model call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// Agent loop metrics
	LoopStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphost_loop_stops_total",
			Help: "Agent loop runs by stop reason",
		},
		[]string{"reason"}, // reason: done|loop_exceeded|model_error
	)

	LoopIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcphost_loop_iterations",
			Help:    "Model round trips per agent loop run",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
		},
	)
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(DiscoveryRuns)
		prometheus.MustRegister(DiscoveryDuration)
		prometheus.MustRegister(CatalogTools)

		prometheus.MustRegister(ToolCalls)
		prometheus.MustRegister(ToolLatency)
		prometheus.MustRegister(BackendCalls)

		prometheus.MustRegister(ModelCalls)
		prometheus.MustRegister(ModelLatency)

		prometheus.MustRegister(LoopStops)
		prometheus.MustRegister(LoopIterations)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err == nil {
		return "success"
	}
	return tools.Kind(err)
}

// RecordDiscovery records one server's discovery attempt.
func RecordDiscovery(server string, duration time.Duration, err error) {
	DiscoveryRuns.WithLabelValues(server, status(err)).Inc()
	DiscoveryDuration.WithLabelValues(server).Observe(duration.Seconds())
}

// RecordToolCall records a dispatched tool call
func RecordToolCall(server, tool string, latency time.Duration, err error) {
	ToolCalls.WithLabelValues(server, tool, status(err)).Inc()
	ToolLatency.WithLabelValues(server, tool).Observe(latency.Seconds())
}

// RecordBackendCall records a call served by a built-in backend.
func RecordBackendCall(backend, tool string, failed bool) {
	s := "success"
	if failed {
		s = "error"
	}
	BackendCalls.WithLabelValues(backend, tool, s).Inc()
}

// RecordModelCall records a language model invocation
func RecordModelCall(provider string, latency time.Duration, err error) {
	ModelCalls.WithLabelValues(provider, status(err)).Inc()
	ModelLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordLoopStop records how an agent loop run ended.
func RecordLoopStop(reason string, iterations int) {
	LoopStops.WithLabelValues(reason).Inc()
	LoopIterations.Observe(float64(iterations))
}
