// Package metrics exposes Prometheus metrics for the voice front end.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/normanking/cortexvoice/internal/bus"
)

// Metrics contains all Prometheus metrics for CortexVoice
type Metrics struct {
	// VAD metrics
	WindowsScored  prometheus.Counter
	SpeechDetected prometheus.Counter

	// Session metrics
	BargeIns     prometheus.Counter
	StateChanges *prometheus.CounterVec

	// Generation metrics
	GenerationsStarted   prometheus.Counter
	GenerationsCancelled prometheus.Counter
	GenerationsFailed    prometheus.Counter
	GenerationsCompleted prometheus.Counter

	// Transport metrics
	Reconnects prometheus.Counter

	// Playback metrics
	PlaybackFallbacks prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		WindowsScored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cortexvoice_vad_windows_scored_total",
			Help: "Total number of audio windows scored by the classifier",
		}),
		SpeechDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cortexvoice_vad_speech_detected_total",
			Help: "Total number of windows that crossed the speech threshold",
		}),
		BargeIns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cortexvoice_barge_ins_total",
			Help: "Total number of barge-in interruptions",
		}),
		StateChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cortexvoice_state_changes_total",
			Help: "Session state transitions by target state",
		}, []string{"state"}),
		GenerationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cortexvoice_generations_started_total",
			Help: "Total number of generation requests sent",
		}),
		GenerationsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cortexvoice_generations_cancelled_total",
			Help: "Total number of generation requests cancelled",
		}),
		GenerationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cortexvoice_generations_failed_total",
			Help: "Total number of generation requests that errored",
		}),
		GenerationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cortexvoice_generations_completed_total",
			Help: "Total number of generation requests completed",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cortexvoice_brain_reconnects_total",
			Help: "Total number of generation channel reconnect attempts",
		}),
		PlaybackFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cortexvoice_playback_fallbacks_total",
			Help: "Total number of times local fallback synthesis was used",
		}),
	}
}

// Bind subscribes the metrics to the event bus so counters track session
// activity without components knowing about Prometheus.
func (m *Metrics) Bind(eventBus *bus.EventBus) {
	eventBus.Subscribe(bus.EventTypeWindowScored, func(bus.Event) { m.WindowsScored.Inc() })
	eventBus.Subscribe(bus.EventTypeSpeechDetected, func(bus.Event) { m.SpeechDetected.Inc() })
	eventBus.Subscribe(bus.EventTypeBargeIn, func(bus.Event) { m.BargeIns.Inc() })
	eventBus.Subscribe(bus.EventTypeStateChanged, func(e bus.Event) {
		if s, ok := e.Data["new_state"].(string); ok {
			m.StateChanges.WithLabelValues(s).Inc()
		}
	})
	eventBus.Subscribe(bus.EventTypeGenerationStarted, func(bus.Event) { m.GenerationsStarted.Inc() })
	eventBus.Subscribe(bus.EventTypeGenerationCancelled, func(bus.Event) { m.GenerationsCancelled.Inc() })
	eventBus.Subscribe(bus.EventTypeGenerationError, func(bus.Event) { m.GenerationsFailed.Inc() })
	eventBus.Subscribe(bus.EventTypeGenerationFinal, func(bus.Event) { m.GenerationsCompleted.Inc() })
	eventBus.Subscribe(bus.EventTypeReconnecting, func(bus.Event) { m.Reconnects.Inc() })
	eventBus.Subscribe(bus.EventTypePlaybackFallback, func(bus.Event) { m.PlaybackFallbacks.Inc() })
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics HTTP server on addr. Blocks until the server exits.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
