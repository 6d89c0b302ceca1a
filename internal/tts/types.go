// Package tts provides answer playback for CortexVoice: remote synthesis
// with local fallback, and the speaking start/end transitions the session
// coordinator depends on.
package tts

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrSynthUnavailable = errors.New("synthesis endpoint unavailable")
	ErrNoAudio          = errors.New("synthesis returned no audio")
	ErrNotPlaying       = errors.New("no playback in progress")
)

// Player plays a buffer of encoded audio. done fires exactly once, on
// natural end of playback or on playback error; Stop suppresses it.
type Player interface {
	Play(audio []byte, done func()) error
	Stop()
}

// Fallback is a local synthesizer used when the synthesis endpoint returns
// no content or fails. Speak blocks until synthesis finishes or ctx is
// cancelled.
type Fallback interface {
	Speak(ctx context.Context, text string) error
}
