package audio

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// stubClassifier returns a fixed score or error for every window.
type stubClassifier struct {
	score float64
	err   error
	calls int
}

func (s *stubClassifier) Score(_ context.Context, _ Window) (float64, error) {
	s.calls++
	return s.score, s.err
}

func newTestMonitor(classifier Classifier) *Monitor {
	return NewMonitor(&MonitorConfig{
		ListenThreshold:   0.65,
		SpeakingThreshold: 0.80,
		WindowSize:        4,
	}, classifier, nil, zerolog.Nop())
}

func window(n int) []float64 {
	return make([]float64, n)
}

func TestMonitor_SpeechAboveListenThreshold(t *testing.T) {
	classifier := &stubClassifier{score: 0.70}
	m := newTestMonitor(classifier)
	m.Start()

	detected := 0
	m.OnSpeech(func() { detected++ })

	m.Feed(context.Background(), window(4))

	assert.Equal(t, 1, classifier.calls)
	assert.Equal(t, 1, detected)
}

func TestMonitor_SpeakingRequiresStrongerEvidence(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		speaking bool
		want     int
	}{
		{name: "above listen threshold while listening", score: 0.70, speaking: false, want: 1},
		{name: "below listen threshold", score: 0.60, speaking: false, want: 0},
		{name: "listen-level score while speaking", score: 0.70, speaking: true, want: 0},
		{name: "above speaking threshold while speaking", score: 0.85, speaking: true, want: 1},
		{name: "exactly at threshold", score: 0.65, speaking: false, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(&stubClassifier{score: tt.score})
			m.Start()
			m.SetSpeakingProbe(func() bool { return tt.speaking })

			detected := 0
			m.OnSpeech(func() { detected++ })

			m.Feed(context.Background(), window(4))

			assert.Equal(t, tt.want, detected)
		})
	}
}

func TestMonitor_ClassifierErrorIsSilence(t *testing.T) {
	classifier := &stubClassifier{score: 0.99, err: errors.New("scorer down")}
	m := newTestMonitor(classifier)
	m.Start()

	detected := 0
	m.OnSpeech(func() { detected++ })

	m.Feed(context.Background(), window(4))

	assert.Equal(t, 0, detected)

	// The failure is not fatal; later windows are still classified.
	classifier.err = nil
	m.Feed(context.Background(), window(4))
	assert.Equal(t, 1, detected)
}

func TestMonitor_InactiveDropsAudio(t *testing.T) {
	classifier := &stubClassifier{score: 0.99}
	m := newTestMonitor(classifier)

	m.Feed(context.Background(), window(4))
	assert.Equal(t, 0, classifier.calls)

	m.Start()
	m.Stop()
	m.Feed(context.Background(), window(4))
	assert.Equal(t, 0, classifier.calls)
}

func TestMonitor_StopReleasesBufferedAudio(t *testing.T) {
	classifier := &stubClassifier{score: 0.99}
	m := newTestMonitor(classifier)
	m.Start()

	m.Feed(context.Background(), window(2)) // below window size, buffered
	m.Stop()
	m.Start()

	detected := 0
	m.OnSpeech(func() { detected++ })
	m.Feed(context.Background(), window(2)) // would complete the old window

	assert.Equal(t, 0, classifier.calls)
}
