package tts

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// SayFallback synthesizes speech with the system voice command: 'say' on
// macOS, 'espeak' elsewhere. Zero network dependencies, always available as
// the last resort.
type SayFallback struct {
	logger zerolog.Logger
	config *SayConfig

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// SayConfig holds fallback synthesis configuration
type SayConfig struct {
	Voice string `json:"voice"` // Samantha, Daniel, etc. (macOS only)
	Rate  int    `json:"rate"`  // Words per minute (default 175)
}

// DefaultSayConfig returns sensible defaults
func DefaultSayConfig() *SayConfig {
	return &SayConfig{
		Voice: "Samantha",
		Rate:  175,
	}
}

// NewSayFallback creates a system-voice fallback synthesizer
func NewSayFallback(logger zerolog.Logger, config *SayConfig) *SayFallback {
	if config == nil {
		config = DefaultSayConfig()
	}

	return &SayFallback{
		logger: logger.With().Str("component", "say").Logger(),
		config: config,
	}
}

// IsAvailable checks whether the system voice command exists
func (f *SayFallback) IsAvailable() bool {
	_, err := exec.LookPath(f.command())
	return err == nil
}

func (f *SayFallback) command() string {
	if runtime.GOOS == "darwin" {
		return "say"
	}
	return "espeak"
}

// Speak synthesizes text through the system voice, blocking until playback
// finishes or ctx is cancelled.
func (f *SayFallback) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithCancel(ctx)
	f.cancelMu.Lock()
	f.cancel = cancel
	f.cancelMu.Unlock()
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		cmd = exec.CommandContext(ctx, "say", "-v", f.config.Voice, "-r", strconv.Itoa(f.config.Rate), text)
	} else {
		cmd = exec.CommandContext(ctx, "espeak", "-s", strconv.Itoa(f.config.Rate), text)
	}

	f.logger.Debug().Int("chars", len(text)).Msg("Fallback synthesis started")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("fallback synthesis: %w", err)
	}

	f.logger.Debug().Msg("Fallback synthesis finished")
	return nil
}

// Stop cancels any in-flight fallback synthesis.
func (f *SayFallback) Stop() {
	f.cancelMu.Lock()
	defer f.cancelMu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
}
