package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics are optional and off by default: the counters below always
// accumulate in-process, but nothing is exported anywhere unless a caller
// registers them with its own prometheus.Registerer via RegisterMetrics
// (spec §1 leaves a full observability stack out of scope; this is the
// minimal hook a caller can opt into).
var (
	replayCommandsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_commands_total",
		Help: "PTB commands executed across all replays in this process.",
	})
	replayEffectsMismatchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_effects_mismatch_total",
		Help: "Effects comparisons (C8) whose StatusMatch was false.",
	})
)

// RegisterMetrics registers the package's counters with reg. Safe to call
// more than once with different registries; never called automatically.
func RegisterMetrics(reg prometheus.Registerer) error {
	if err := reg.Register(replayCommandsTotal); err != nil {
		return err
	}
	return reg.Register(replayEffectsMismatchTotal)
}
