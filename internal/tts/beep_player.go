package tts

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/rs/zerolog"
)

// BeepPlayer plays encoded audio through the system speaker. The playback
// resource is exclusive; starting new playback first clears any prior one.
type BeepPlayer struct {
	logger zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	playing bool
}

// NewBeepPlayer creates a speaker-backed player.
func NewBeepPlayer(logger zerolog.Logger) *BeepPlayer {
	return &BeepPlayer{
		logger: logger.With().Str("component", "player").Logger(),
	}
}

// Play decodes audio and plays it, invoking done on natural end of playback.
// A Stop (or a subsequent Play) suppresses the pending done callback.
func (p *BeepPlayer) Play(audio []byte, done func()) error {
	streamer, format, err := decode(audio)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}

	p.mu.Lock()
	speaker.Clear()
	p.seq++
	seq := p.seq
	p.playing = true
	p.mu.Unlock()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		return fmt.Errorf("speaker init: %w", err)
	}

	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		p.mu.Lock()
		live := p.playing && seq == p.seq
		if live {
			p.playing = false
		}
		p.mu.Unlock()

		if live && done != nil {
			done()
		}
	})))

	p.logger.Debug().Int("bytes", len(audio)).Msg("Playback started")
	return nil
}

// Stop halts playback immediately and suppresses the pending done callback.
func (p *BeepPlayer) Stop() {
	p.mu.Lock()
	p.seq++
	wasPlaying := p.playing
	p.playing = false
	p.mu.Unlock()

	speaker.Clear()
	if wasPlaying {
		p.logger.Debug().Msg("Playback stopped")
	}
}

// decode tries MP3 first, then WAV, matching what the synthesis endpoint is
// known to emit.
func decode(audio []byte) (beep.StreamSeekCloser, beep.Format, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(audio)))
	if err == nil {
		return streamer, format, nil
	}

	streamer, format, wavErr := wav.Decode(io.NopCloser(bytes.NewReader(audio)))
	if wavErr == nil {
		return streamer, format, nil
	}

	return nil, beep.Format{}, fmt.Errorf("mp3: %v, wav: %v", err, wavErr)
}
