package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeCompleted = "completed"
	OutcomeDiverged  = "diverged"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"

	StatusOK    = "ok"
	StatusError = "error"

	// UnknownTool labels calls to tools that are not registered.
	UnknownTool = "unknown"
)

// Metrics bundles Prometheus collectors for agent turns. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	Turns        *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
	Iterations   prometheus.Histogram
	ModelCalls   *prometheus.CounterVec
	ToolCalls    *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with agent collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	turns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weatherchat_agent_turns_total",
		Help: "Agent turns by outcome",
	}, []string{"outcome"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weatherchat_agent_turn_duration_seconds",
		Help:    "Agent turn duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	iterations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "weatherchat_agent_turn_iterations",
		Help:    "Model calls per agent turn",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})

	modelCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weatherchat_model_calls_total",
		Help: "Language model invocations by status",
	}, []string{"status"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weatherchat_tool_calls_total",
		Help: "Tool executions by tool and status",
	}, []string{"tool", "status"})

	reg.MustRegister(turns, durs, iterations, modelCalls, toolCalls)

	return &Metrics{
		registry:     reg,
		Turns:        turns,
		TurnDuration: durs,
		Iterations:   iterations,
		ModelCalls:   modelCalls,
		ToolCalls:    toolCalls,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTurn records the outcome, duration and model call count of a turn.
func (m *Metrics) RecordTurn(outcome string, iterations int, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if iterations > 0 {
		m.Iterations.Observe(float64(iterations))
	}
}

func (m *Metrics) RecordModelCall(err error) {
	if m == nil {
		return
	}
	m.ModelCalls.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) RecordToolCall(tool string, err error) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
