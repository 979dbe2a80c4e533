// Package observability wires tracing and metrics. This file declares the
// pipeline-level Prometheus collectors: message throughput per channel and
// the short-circuit counters (quick-response hits, guard drops, assistant
// fallbacks). HTTP transport metrics live in the middleware layer; these
// cover what happens after a message is accepted.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// PipelineInbound counts inbound messages accepted past the guard gate.
	PipelineInbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_in_total",
			Help: "Inbound messages accepted into the dispatch pipeline.",
		},
		[]string{"channel"},
	)

	// PipelineOutbound counts outbound replies by channel.
	PipelineOutbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_out_total",
			Help: "Outbound replies produced by the dispatch pipeline.",
		},
		[]string{"channel"},
	)

	// GuardDrops counts messages rejected before any persistence,
	// by reason ("rate_limited", "geo_blocked").
	GuardDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_guard_drops_total",
			Help: "Messages rejected by the guard gate before persistence.",
		},
		[]string{"reason"},
	)

	// QuickResponseHits counts turns answered by a quick-response rule.
	QuickResponseHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_quick_response_hits_total",
			Help: "Turns short-circuited by a quick-response rule.",
		},
	)

	// AssistantFallbacks counts low-confidence or failed assistant turns.
	AssistantFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_assistant_fallbacks_total",
			Help: "Turns answered with a fallback reply.",
		},
	)

	// HandoffBypass counts inbound messages persisted under human control.
	HandoffBypass = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_handoff_bypass_total",
			Help: "Inbound messages persisted while a human owns the session.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PipelineInbound, PipelineOutbound, GuardDrops,
		QuickResponseHits, AssistantFallbacks, HandoffBypass,
	)
}
