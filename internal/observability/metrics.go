package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the runtime's Prometheus collectors.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	StepsTotal     prometheus.Counter
	ToolCallsTotal *prometheus.CounterVec
	Deliveries     prometheus.Counter
	DeliveryDelay  prometheus.Histogram
	RunDuration    prometheus.Histogram
}

// NewMetrics creates and registers the runtime collectors. Pass
// prometheus.DefaultRegisterer in production or a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "agent_runs_total",
			Help:      "Agent runs by terminal state.",
		}, []string{"state"}),
		StepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "agent_steps_total",
			Help:      "Model rounds executed across all runs.",
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "tool_calls_total",
			Help:      "Tool executions by result.",
		}, []string{"result"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "deliveries_total",
			Help:      "Outbound messages delivered to platform adapters.",
		}),
		DeliveryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "delivery_pacing_seconds",
			Help:      "Pacing delay applied before each delivery.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "agent_run_duration_seconds",
			Help:      "Wall time per agent run.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RunsTotal,
			m.StepsTotal,
			m.ToolCallsTotal,
			m.Deliveries,
			m.DeliveryDelay,
			m.RunDuration,
		)
	}
	return m
}
