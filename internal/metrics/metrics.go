// Package metrics registers the agent's operational counters against a
// dedicated Prometheus registry (§6), promoted from go-ethereum's indirect
// client_golang dependency to a direct one so the agent can expose its own
// /metrics surface rather than only the node's.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Registry *prometheus.Registry

	CyclesTotal          prometheus.Counter
	BlocksProcessedTotal prometheus.Counter
	LLMCallsTotal        prometheus.Counter
	ThreatsDetectedTotal *prometheus.CounterVec
	ActionsTakenTotal    *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_cycles_total",
			Help: "Total number of poll cycles completed.",
		}),
		BlocksProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_blocks_processed_total",
			Help: "Total number of market snapshots observed (one per successful observation).",
		}),
		LLMCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_llm_calls_total",
			Help: "Total number of Gemini generateContent calls made.",
		}),
		ThreatsDetectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_threats_detected_total",
			Help: "Total number of non-natural threat classifications, by classification.",
		}, []string{"classification"}),
		ActionsTakenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_actions_taken_total",
			Help: "Total number of on-chain protective actions submitted, by action type.",
		}, []string{"action"}),
	}

	registry.MustRegister(m.CyclesTotal, m.BlocksProcessedTotal, m.LLMCallsTotal, m.ThreatsDetectedTotal, m.ActionsTakenTotal)
	return m
}
