// Package voice provides the session coordinator for CortexVoice: the state
// machine deciding when the assistant listens, speaks, interrupts, and
// cancels generations.
package voice

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
)

// State is the coordinator's top-level state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateSpeaking  State = "speaking"
)

// Default transition timings.
const (
	// DefaultBargeInDeadZone suppresses barge-in detection for the first
	// instants of playback, which are most prone to spurious re-triggering
	// from echo and click transients.
	DefaultBargeInDeadZone = 350 * time.Millisecond
	// DefaultSettleDelay lets audio teardown complete before a
	// transcript-while-speaking is asked as a fresh question.
	DefaultSettleDelay = 40 * time.Millisecond
)

// Config holds coordinator timings
type Config struct {
	BargeInDeadZone time.Duration `mapstructure:"barge_in_dead_zone"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BargeInDeadZone: DefaultBargeInDeadZone,
		SettleDelay:     DefaultSettleDelay,
	}
}

// CaptureSession is the continuous speech capture collaborator.
type CaptureSession interface {
	Start(ctx context.Context)
	Stop()
	OnTranscript(fn func(text string))
	SetRestartProbe(fn func() bool)
}

// ActivityMonitor is the voice activity collaborator.
type ActivityMonitor interface {
	Start()
	Stop()
	OnSpeech(fn func())
	SetSpeakingProbe(fn func() bool)
}

// GenerationChannel is the streaming backend collaborator.
type GenerationChannel interface {
	Connect(ctx context.Context)
	Close()
	Connected() bool
	SendQuery(id, question string) error
	SendCancel(id string) error
	OnPartial(fn func(id, text string))
	OnAnswer(fn func(id, text string))
	OnError(fn func(id, message string))
}

// PlaybackController is the answer playback collaborator.
type PlaybackController interface {
	Speak(ctx context.Context, text string)
	Stop()
	OnSpeakingStart(fn func())
	OnSpeakingEnd(fn func(natural bool))
}

// FallbackQuerier is the synchronous request path used when the streaming
// channel is down.
type FallbackQuerier interface {
	Query(ctx context.Context, question string) (string, error)
}

// Coordinator owns all session state. Every transition runs under one mutex,
// so no two transitions interleave; when a barge-in signal and a transcript
// race, whichever lands first wins and the other is absorbed by the state
// check.
//
// Invariants: bargeInArmed implies StateSpeaking; activeRequestID is set only
// while speaking or awaiting a response; at most one generation request is
// outstanding at a time.
type Coordinator struct {
	config   *Config
	capture  CaptureSession
	monitor  ActivityMonitor
	channel  GenerationChannel
	playback PlaybackController
	fallback FallbackQuerier
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu              sync.Mutex
	state           State
	bargeInArmed    bool
	activeRequestID string
	displayed       string
	armTimer        *time.Timer
	settleTimer     *time.Timer
	ctx             context.Context
	cancel          context.CancelFunc

	onDisplay func(text string)
	onFailure func(message string)
}

// NewCoordinator wires the collaborators into a coordinator. The returned
// coordinator is Idle until Start.
func NewCoordinator(
	config *Config,
	capture CaptureSession,
	monitor ActivityMonitor,
	channel GenerationChannel,
	playback PlaybackController,
	fallback FallbackQuerier,
	eventBus *bus.EventBus,
	logger zerolog.Logger,
) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}

	c := &Coordinator{
		config:   config,
		capture:  capture,
		monitor:  monitor,
		channel:  channel,
		playback: playback,
		fallback: fallback,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "session").Logger(),
		state:    StateIdle,
	}

	capture.OnTranscript(c.handleTranscript)
	capture.SetRestartProbe(func() bool { return c.State() == StateListening })
	monitor.OnSpeech(c.handleSpeechObserved)
	monitor.SetSpeakingProbe(func() bool { return c.State() == StateSpeaking })
	channel.OnPartial(c.handlePartial)
	channel.OnAnswer(c.handleAnswer)
	channel.OnError(c.handleGenerationError)
	playback.OnSpeakingEnd(c.handleSpeakingEnd)

	return c
}

// OnDisplay registers the callback receiving displayed answer text, partial
// running totals included.
func (c *Coordinator) OnDisplay(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisplay = fn
}

// OnFailure registers the callback receiving terminal generation errors.
func (c *Coordinator) OnFailure(fn func(message string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = fn
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BargeInArmed reports whether barge-in detection is live.
func (c *Coordinator) BargeInArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bargeInArmed
}

// ActiveRequestID returns the outstanding generation request id, if any.
func (c *Coordinator) ActiveRequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeRequestID
}

// Displayed returns the currently displayed answer text.
func (c *Coordinator) Displayed() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayed
}

// Start transitions Idle to Listening: activates capture and the activity
// monitor and opens the generation channel. Idempotent.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.ctx = ctx
	c.cancel = cancel
	c.setStateLocked(StateListening)
	c.mu.Unlock()

	c.monitor.Start()
	c.capture.Start(ctx)
	c.channel.Connect(ctx)

	c.logger.Info().Msg("Session started")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeSessionStarted})
	}
}

// Stop transitions to Idle from any state: detaches capture, stops the
// monitor and playback, cancels any active generation, and closes the
// channel. Idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.stopTimersLocked()
	id := c.activeRequestID
	c.activeRequestID = ""
	c.bargeInArmed = false
	c.setStateLocked(StateIdle)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.capture.Stop()
	c.monitor.Stop()
	c.playback.Stop()
	if id != "" {
		if err := c.channel.SendCancel(id); err != nil {
			c.logger.Debug().Err(err).Str("id", id).Msg("Cancel on stop failed")
		}
	}
	c.channel.Close()

	c.logger.Info().Msg("Session stopped")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeSessionStopped})
	}
}

// handleTranscript reacts to a finalized utterance from capture.
func (c *Coordinator) handleTranscript(text string) {
	c.mu.Lock()
	switch c.state {
	case StateListening:
		c.askLocked(text)
		c.mu.Unlock()

	case StateSpeaking:
		// Same stop/cancel sequence as barge-in, but the transcript is kept
		// and asked as a fresh question after a short settle delay.
		id := c.interruptLocked()
		settle := c.config.SettleDelay
		c.settleTimer = time.AfterFunc(settle, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.state != StateListening {
				return
			}
			c.askLocked(text)
		})
		c.mu.Unlock()

		c.playback.Stop()
		if id != "" {
			if err := c.channel.SendCancel(id); err != nil {
				c.logger.Debug().Err(err).Str("id", id).Msg("Cancel failed")
			}
		}

	default:
		c.mu.Unlock()
	}
}

// handleSpeechObserved reacts to the activity monitor's speech signal. It
// only matters while speaking with barge-in armed; the dead-zone keeps it
// inert right after playback starts.
func (c *Coordinator) handleSpeechObserved() {
	c.mu.Lock()
	if c.state != StateSpeaking || !c.bargeInArmed {
		c.mu.Unlock()
		return
	}
	id := c.interruptLocked()
	ctx := c.ctx
	c.mu.Unlock()

	c.logger.Info().Str("id", id).Msg("Barge-in")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeBargeIn, Data: map[string]any{"id": id}})
	}

	c.playback.Stop()
	if id != "" {
		if err := c.channel.SendCancel(id); err != nil {
			c.logger.Debug().Err(err).Str("id", id).Msg("Cancel failed")
		}
	}
	c.capture.Start(ctx)
}

// interruptLocked performs the shared half of barge-in and
// transcript-while-speaking: disarm, clear the active request, return to
// Listening. Returns the superseded request id, if any.
func (c *Coordinator) interruptLocked() string {
	c.stopTimersLocked()
	c.bargeInArmed = false
	id := c.activeRequestID
	c.activeRequestID = ""
	c.setStateLocked(StateListening)
	return id
}

// askLocked starts a generation for text: stops capture so the assistant's
// own audio is not transcribed, supersedes any prior request, and enters
// Speaking with barge-in disarmed until the dead-zone elapses.
func (c *Coordinator) askLocked(text string) {
	c.capture.Stop()

	if prior := c.activeRequestID; prior != "" {
		if err := c.channel.SendCancel(prior); err != nil {
			c.logger.Debug().Err(err).Str("id", prior).Msg("Cancel of superseded request failed")
		}
	}

	id := uuid.NewString()
	c.activeRequestID = id
	c.displayed = ""
	c.bargeInArmed = false
	c.setStateLocked(StateSpeaking)

	c.stopTimersLocked()
	c.armTimer = time.AfterFunc(c.config.BargeInDeadZone, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == StateSpeaking {
			c.bargeInArmed = true
		}
	})

	c.logger.Info().Str("id", id).Str("question", text).Msg("Asking")

	if err := c.channel.SendQuery(id, text); err != nil {
		c.logger.Warn().Err(err).Msg("Streaming channel unavailable, using synchronous fallback")
		go c.askFallback(id, text)
	}
}

// askFallback runs the plain request/response path and feeds the result back
// through the normal answer handling.
func (c *Coordinator) askFallback(id, text string) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil || c.fallback == nil {
		return
	}

	answer, err := c.fallback.Query(ctx, text)
	if err != nil {
		c.handleGenerationError(id, err.Error())
		return
	}
	c.handleAnswer(id, answer)
}

// handlePartial surfaces the running total for the active request.
func (c *Coordinator) handlePartial(id, text string) {
	c.mu.Lock()
	if id != c.activeRequestID {
		c.mu.Unlock()
		return
	}
	c.displayed = text
	cb := c.onDisplay
	c.mu.Unlock()

	if cb != nil {
		cb(text)
	}
}

// handleAnswer converts a final answer into playback. Events for superseded
// ids never reach displayed state.
func (c *Coordinator) handleAnswer(id, text string) {
	c.mu.Lock()
	if c.state != StateSpeaking || id != c.activeRequestID {
		c.mu.Unlock()
		return
	}
	c.activeRequestID = ""
	c.displayed = text
	cb := c.onDisplay
	ctx := c.ctx
	c.mu.Unlock()

	if cb != nil {
		cb(text)
	}
	c.playback.Speak(ctx, text)
}

// handleGenerationError surfaces a terminal backend error and returns to
// listening. No automatic retry.
func (c *Coordinator) handleGenerationError(id, message string) {
	c.mu.Lock()
	if id != c.activeRequestID {
		c.mu.Unlock()
		return
	}
	c.stopTimersLocked()
	c.activeRequestID = ""
	c.bargeInArmed = false
	c.setStateLocked(StateListening)
	cb := c.onFailure
	ctx := c.ctx
	c.mu.Unlock()

	c.logger.Warn().Str("id", id).Str("error", message).Msg("Generation failed")
	if cb != nil {
		cb(message)
	}
	c.capture.Start(ctx)
}

// handleSpeakingEnd restarts capture when playback finished naturally.
// Interrupted ends were already handled by whichever transition stopped the
// playback.
func (c *Coordinator) handleSpeakingEnd(natural bool) {
	if !natural {
		return
	}

	c.mu.Lock()
	if c.state != StateSpeaking {
		c.mu.Unlock()
		return
	}
	c.stopTimersLocked()
	c.bargeInArmed = false
	c.setStateLocked(StateListening)
	ctx := c.ctx
	c.mu.Unlock()

	c.capture.Start(ctx)
}

func (c *Coordinator) setStateLocked(state State) {
	if c.state == state {
		return
	}
	old := c.state
	c.state = state
	c.logger.Debug().Str("old", string(old)).Str("new", string(state)).Msg("State changed")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeStateChanged,
			Data: map[string]any{"old_state": string(old), "new_state": string(state)},
		})
	}
}

func (c *Coordinator) stopTimersLocked() {
	if c.armTimer != nil {
		c.armTimer.Stop()
		c.armTimer = nil
	}
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
}
