// Package audio provides audio windowing and voice activity detection for CortexVoice.
package audio

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrDeviceNotFound    = errors.New("audio device not found")
	ErrCaptureNotStarted = errors.New("capture not started")
	ErrMonitorStopped    = errors.New("monitor stopped")
)

// Window is one fixed-capacity run of amplitude samples handed to the classifier.
type Window []float64

// Classifier scores a window of audio samples for speech probability.
// Implementations are black boxes; a score is in [0,1].
type Classifier interface {
	Score(ctx context.Context, window Window) (float64, error)
}

// Source delivers raw amplitude samples to a consumer.
type Source interface {
	Start(ctx context.Context, fn func(samples []float64)) error
	Stop() error
}
