package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the voice core.
type Metrics struct {
	StateTransitions   *prometheus.CounterVec
	IllegalTransitions *prometheus.CounterVec
	TurnOutcomes       *prometheus.CounterVec
	ProviderErrors     *prometheus.CounterVec
	TranscriptionPath  *prometheus.CounterVec
	ActiveAudioSource  *prometheus.GaugeVec
	TurnStageLatency   *prometheus.HistogramVec

	window *turnWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Accepted state machine transitions by source and destination.",
		}, []string{"from", "to"}),
		IllegalTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "illegal_transitions_total",
			Help:      "Rejected transition requests by source and requested destination.",
		}, []string{"from", "to"}),
		TurnOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_outcomes_total",
			Help:      "Completed interaction turns by outcome.",
		}, []string{"outcome"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Remote collaborator errors by provider and code.",
		}, []string{"provider", "code"}),
		TranscriptionPath: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_path_total",
			Help:      "Transcription source chosen per turn (realtime or batch).",
		}, []string{"path"}),
		ActiveAudioSource: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_audio_source",
			Help:      "1 for the audio source currently feeding the analyzer, 0 otherwise.",
		}, []string{"source"}),
		TurnStageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Latency of turn pipeline stages in milliseconds.",
			Buckets:   []float64{50, 100, 200, 350, 500, 800, 1200, 2000, 3500, 6000},
		}, []string{"stage"}),
		window: newTurnWindow(256),
	}
}

// ObserveStage records a pipeline stage latency both in Prometheus and in the
// local rolling window served by the perf endpoint.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if d < 0 {
		return
	}
	ms := float64(d.Milliseconds())
	m.TurnStageLatency.WithLabelValues(stage).Observe(ms)
	m.window.observe(stage, ms)
}

// ObserveIndicator bumps a named low-cardinality event counter in the rolling
// window (e.g. recording stop reasons).
func (m *Metrics) ObserveIndicator(name string) {
	m.window.observeIndicator(name)
}

// SetActiveSource marks exactly one audio source as active.
func (m *Metrics) SetActiveSource(source string) {
	for _, s := range []string{"capture", "playback", "none"} {
		v := 0.0
		if s == source {
			v = 1.0
		}
		m.ActiveAudioSource.WithLabelValues(s).Set(v)
	}
}

// PerfSnapshot returns the rolling latency window.
func (m *Metrics) PerfSnapshot() StageSnapshot {
	return m.window.snapshot()
}

// ResetPerfWindow clears the rolling window without touching Prometheus state.
func (m *Metrics) ResetPerfWindow() {
	m.window.reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
