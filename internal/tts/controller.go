package tts

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
)

// Controller manages fetching and playing synthesized audio for a finished
// answer. Each Speak signals exactly one speaking-start and, eventually,
// exactly one matching speaking-end, across all three outcome branches:
// endpoint audio, no-content fallback, and transport-failure fallback.
type Controller struct {
	synth    *SynthClient
	player   Player
	fallback Fallback
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu       sync.Mutex
	seq      uint64
	speaking bool
	cancel   context.CancelFunc

	onStart func()
	onEnd   func(natural bool)
}

// NewController creates a playback controller.
func NewController(synth *SynthClient, player Player, fallback Fallback, eventBus *bus.EventBus, logger zerolog.Logger) *Controller {
	return &Controller{
		synth:    synth,
		player:   player,
		fallback: fallback,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "playback").Logger(),
	}
}

// OnSpeakingStart registers the speaking-start transition callback.
func (c *Controller) OnSpeakingStart(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStart = fn
}

// OnSpeakingEnd registers the speaking-end transition callback. natural is
// true for end-of-playback or fallback completion, false when Stop cut the
// playback short.
func (c *Controller) OnSpeakingEnd(fn func(natural bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnd = fn
}

// Speaking reports whether playback or fallback synthesis is in flight.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Speak signals speaking-start, then asynchronously fetches and plays audio
// for text. Starting a new Speak releases any prior playback first.
func (c *Controller) Speak(ctx context.Context, text string) {
	c.mu.Lock()
	priorEnd := c.stopLocked()
	c.mu.Unlock()
	if priorEnd != nil {
		priorEnd(false)
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.speaking = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	onStart := c.onStart
	c.mu.Unlock()

	c.logger.Debug().Int("chars", len(text)).Msg("Speaking")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeSpeakingStarted})
	}
	if onStart != nil {
		onStart()
	}

	go c.run(ctx, seq, text)
}

func (c *Controller) live(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking && seq == c.seq
}

func (c *Controller) run(ctx context.Context, seq uint64, text string) {
	audio, err := c.synth.Synthesize(ctx, text)
	if !c.live(seq) {
		return
	}

	switch {
	case err != nil:
		c.logger.Warn().Err(err).Msg("Synthesis failed, using local fallback")
		c.runFallback(ctx, seq, text)

	case audio == nil:
		c.runFallback(ctx, seq, text)

	default:
		if err := c.player.Play(audio, func() { c.finish(seq) }); err != nil {
			c.logger.Warn().Err(err).Msg("Playback failed, using local fallback")
			c.runFallback(ctx, seq, text)
		}
	}
}

func (c *Controller) runFallback(ctx context.Context, seq uint64, text string) {
	if ctx.Err() != nil {
		return
	}

	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypePlaybackFallback})
	}

	if err := c.fallback.Speak(ctx, text); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn().Err(err).Msg("Fallback synthesis failed")
	}
	c.finish(seq)
}

// finish signals the natural speaking-end for a live speak pass. Stale
// sequence numbers are late callbacks from a superseded pass and are ignored.
func (c *Controller) finish(seq uint64) {
	c.mu.Lock()
	if !c.speaking || seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.speaking = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	onEnd := c.onEnd
	c.mu.Unlock()

	c.logger.Debug().Msg("Speaking finished")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeSpeakingStopped})
	}
	if onEnd != nil {
		onEnd(true)
	}
}

// Stop immediately halts in-flight playback or fallback synthesis and
// signals an interrupted speaking-end. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.speaking {
		c.mu.Unlock()
		return
	}
	onEnd := c.stopLocked()
	c.mu.Unlock()

	c.logger.Debug().Msg("Speaking interrupted")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeSpeakingStopped})
	}
	if onEnd != nil {
		onEnd(false)
	}
}

// stopLocked tears down playback under the lock and returns the end callback
// to invoke, or nil when nothing was speaking.
func (c *Controller) stopLocked() func(natural bool) {
	if !c.speaking {
		return nil
	}
	c.seq++
	c.speaking = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.player.Stop()
	return c.onEnd
}
