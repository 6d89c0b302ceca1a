package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// MicSource captures samples from the default input device via PortAudio.
// The capture device is exclusive; only one source may be open at a time.
type MicSource struct {
	sampleRate int
	frameSize  int
	logger     zerolog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	cancel  context.CancelFunc
	running bool
}

// NewMicSource creates a microphone source.
func NewMicSource(sampleRate, frameSize int, logger zerolog.Logger) *MicSource {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if frameSize <= 0 {
		frameSize = 512
	}
	return &MicSource{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		logger:     logger.With().Str("component", "mic").Logger(),
	}
}

// Start opens the default input stream and pumps frames into fn until the
// context is cancelled or Stop is called. Idempotent.
func (s *MicSource) Start(ctx context.Context, fn func(samples []float64)) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("portaudio initialize: %w", err)
	}

	frames := make([]float32, s.frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.sampleRate), len(frames), frames)
	if err != nil {
		portaudio.Terminate()
		s.mu.Unlock()
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		s.mu.Unlock()
		return fmt.Errorf("failed to start stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.stream = stream
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Int("sample_rate", s.sampleRate).Int("frame_size", s.frameSize).Msg("Microphone capture started")

	go func() {
		defer func() {
			s.mu.Lock()
			if s.stream != nil {
				s.stream.Close()
				s.stream = nil
			}
			s.running = false
			s.mu.Unlock()
			portaudio.Terminate()
			s.logger.Info().Msg("Microphone capture stopped")
		}()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := stream.Read(); err != nil {
				s.logger.Warn().Err(err).Msg("Stream read failed")
				return
			}

			samples := make([]float64, len(frames))
			for i, v := range frames {
				samples[i] = float64(v)
			}
			fn(samples)
		}
	}()

	return nil
}

// Stop halts capture. Idempotent.
func (s *MicSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			return fmt.Errorf("failed to stop stream: %w", err)
		}
	}
	return nil
}
