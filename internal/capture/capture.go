// Package capture wraps continuous speech recognition for CortexVoice.
package capture

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
)

// Recognizer is a continuous recognition capability. It reports only
// finalized transcripts. onEnd fires once when recognition stops on its own
// (silence timeout, transport loss) or fails.
type Recognizer interface {
	Start(ctx context.Context, onFinal func(text string), onEnd func(err error)) error
	Stop() error
}

// AudioSink is implemented by recognizers that accept raw audio pushes.
type AudioSink interface {
	SendAudio(audio []byte) error
}

// Session makes an underlying recognizer behave as continuous capture: it
// restarts recognition whenever it ends while the assistant should still be
// listening. Each start bumps a generation counter so late events from a
// stopped recognizer run are provably ignored.
type Session struct {
	recognizer Recognizer
	eventBus   *bus.EventBus
	logger     zerolog.Logger

	mu            sync.Mutex
	active        bool
	gen           uint64
	onTranscript  func(text string)
	shouldRestart func() bool
}

// NewSession creates a capture session over the given recognizer.
func NewSession(recognizer Recognizer, eventBus *bus.EventBus, logger zerolog.Logger) *Session {
	return &Session{
		recognizer: recognizer,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "capture").Logger(),
	}
}

// OnTranscript registers the callback invoked once per finalized utterance.
// Transcripts are trimmed; empty ones are discarded before the callback.
func (s *Session) OnTranscript(fn func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTranscript = fn
}

// SetRestartProbe installs the predicate consulted when recognition ends on
// its own. Capture restarts only while the probe reports true.
func (s *Session) SetRestartProbe(fn func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldRestart = fn
}

// Start begins capture. Idempotent; failure to start the underlying
// recognizer is logged, not fatal.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) {
	if s.active {
		return
	}

	s.gen++
	gen := s.gen
	err := s.recognizer.Start(ctx,
		func(text string) { s.handleFinal(gen, text) },
		func(err error) { s.handleEnd(ctx, gen, err) },
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to start recognition")
		return
	}

	s.active = true
	s.logger.Info().Msg("Capture started")
	if s.eventBus != nil {
		s.eventBus.Publish(bus.Event{Type: bus.EventTypeCaptureStarted})
	}
}

// Stop halts capture. The generation bump detaches callbacks before the
// recognizer is torn down, so late events are suppressed.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.gen++
	s.active = false

	if err := s.recognizer.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stop recognition")
	}
	s.logger.Info().Msg("Capture stopped")
	if s.eventBus != nil {
		s.eventBus.Publish(bus.Event{Type: bus.EventTypeCaptureStopped})
	}
}

// Active reports whether capture is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) handleFinal(gen uint64, text string) {
	s.mu.Lock()
	if !s.active || gen != s.gen {
		s.mu.Unlock()
		return
	}
	cb := s.onTranscript
	s.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.logger.Debug().Str("text", text).Msg("Final transcript")
	if s.eventBus != nil {
		s.eventBus.Publish(bus.Event{
			Type: bus.EventTypeTranscript,
			Data: map[string]any{"text": text},
		})
	}

	if cb != nil {
		cb(text)
	}
}

// handleEnd restarts capture after a spontaneous end, iff the session should
// still be listening. This is what makes capture continuous on top of a
// capability that naturally terminates. The probe is consulted without
// holding s.mu; it may take locks of its own.
func (s *Session) handleEnd(ctx context.Context, gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.active = false
	probe := s.shouldRestart
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug().Err(err).Msg("Recognition ended")
	}

	if probe == nil || !probe() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// Someone started or stopped the session while the probe ran.
		return
	}
	s.logger.Debug().Msg("Restarting capture")
	s.startLocked(ctx)
}
