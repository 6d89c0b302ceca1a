package audio

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
)

// MonitorConfig holds voice activity monitor configuration
type MonitorConfig struct {
	// ListenThreshold applies while the assistant is not speaking (default 0.65)
	ListenThreshold float64 `mapstructure:"listen_threshold"`
	// SpeakingThreshold applies during playback; stronger evidence is required
	// to avoid false interruption from playback bleed (default 0.80)
	SpeakingThreshold float64 `mapstructure:"speaking_threshold"`
	// WindowSize is the number of samples per classification window
	WindowSize int `mapstructure:"window_size"`
}

// DefaultMonitorConfig returns sensible defaults
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		ListenThreshold:   0.65,
		SpeakingThreshold: 0.80,
		WindowSize:        DefaultWindowSize,
	}
}

// Monitor runs the classifier over each accumulated window and raises a
// speech-detected signal when the probability crosses the active threshold.
// It runs whenever the session is active, independent of speaking state,
// which is what enables barge-in.
type Monitor struct {
	config     *MonitorConfig
	buffer     *WindowBuffer
	classifier Classifier
	eventBus   *bus.EventBus
	logger     zerolog.Logger

	mu       sync.Mutex
	active   bool
	speaking func() bool
	onSpeech func()
}

// NewMonitor creates a voice activity monitor over the given classifier.
func NewMonitor(config *MonitorConfig, classifier Classifier, eventBus *bus.EventBus, logger zerolog.Logger) *Monitor {
	if config == nil {
		config = DefaultMonitorConfig()
	}

	return &Monitor{
		config:     config,
		buffer:     NewWindowBuffer(config.WindowSize),
		classifier: classifier,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "vad").Logger(),
	}
}

// SetSpeakingProbe installs the function consulted to pick the active
// threshold. Nil means the listen threshold always applies.
func (m *Monitor) SetSpeakingProbe(fn func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaking = fn
}

// OnSpeech registers the callback invoked when speech is observed.
func (m *Monitor) OnSpeech(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSpeech = fn
}

// Start activates the monitor.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = true
	m.logger.Info().Msg("Voice activity monitor started")
}

// Stop deactivates the monitor and releases buffered audio.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	m.active = false
	m.buffer.Reset()
	m.logger.Info().Msg("Voice activity monitor stopped")
}

// Active reports whether the monitor is running.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Feed pushes captured samples into the window buffer and classifies any
// completed window. Classifier failures are treated as no speech observed
// for that window; they never interrupt capture.
func (m *Monitor) Feed(ctx context.Context, samples []float64) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	speaking := m.speaking
	onSpeech := m.onSpeech
	m.mu.Unlock()

	m.buffer.Push(samples)

	window, ok := m.buffer.Drain()
	if !ok {
		return
	}

	prob, err := m.classifier.Score(ctx, window)
	if err != nil {
		m.logger.Debug().Err(err).Msg("Classifier failed, treating window as silence")
		return
	}

	threshold := m.config.ListenThreshold
	if speaking != nil && speaking() {
		threshold = m.config.SpeakingThreshold
	}

	if m.eventBus != nil {
		m.eventBus.Publish(bus.Event{
			Type: bus.EventTypeWindowScored,
			Data: map[string]any{"probability": prob, "threshold": threshold},
		})
	}

	if prob <= threshold {
		return
	}

	m.logger.Debug().Float64("probability", prob).Float64("threshold", threshold).Msg("Speech observed")

	if m.eventBus != nil {
		m.eventBus.Publish(bus.Event{
			Type: bus.EventTypeSpeechDetected,
			Data: map[string]any{"probability": prob},
		})
	}

	if onSpeech != nil {
		onSpeech()
	}
}
