// Package metrics wires the stage controller's observable outcomes into
// Prometheus, the way kernel and ai-infra expose a /metrics endpoint
// alongside their /healthz. Each stage binary registers one Stage against
// prometheus.DefaultRegisterer and mounts promhttp.Handler().
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for Stage.Observe.
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation_error"
	OutcomeError      = "error"
	OutcomePanic      = "panic"
)

// Stage holds the counters and histogram for one stage worker's message
// processing loop, labeled by the stage name ("transcription", "report",
// "export") so all three stage binaries can share one dashboard.
type Stage struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	name      string
}

// NewStage registers a Stage's metrics against reg. Pass nil to register
// against prometheus.DefaultRegisterer, the common case for a binary's
// main package.
func NewStage(reg prometheus.Registerer, stageName string) *Stage {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Stage{
		name: stageName,
		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_pipeline_stage_messages_total",
			Help: "Count of stage messages processed, by stage and outcome.",
		}, []string{"stage", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meeting_pipeline_stage_process_duration_seconds",
			Help:    "Time spent in ProcessMessage, by stage.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms .. ~7m
		}, []string{"stage"})}
}

// Observe records one ProcessMessage call's outcome and wall-clock cost.
func (s *Stage) Observe(outcome string, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.processed.WithLabelValues(s.name, outcome).Inc()
	s.duration.WithLabelValues(s.name).Observe(elapsed.Seconds())
}
