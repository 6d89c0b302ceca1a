package audio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func constantWindow(n int, value float64) Window {
	w := make(Window, n)
	for i := range w {
		w[i] = value
	}
	return w
}

func TestEnergyClassifier_SilenceScoresLow(t *testing.T) {
	c := NewEnergyClassifier(nil)

	prob, err := c.Score(context.Background(), constantWindow(160, 0))
	assert.NoError(t, err)
	assert.Less(t, prob, 0.5)
}

func TestEnergyClassifier_LoudAudioScoresHigh(t *testing.T) {
	c := NewEnergyClassifier(&EnergyConfig{Threshold: 0.01, SmoothingFrames: 1})

	prob, err := c.Score(context.Background(), constantWindow(160, 0.5))
	assert.NoError(t, err)
	assert.Greater(t, prob, 0.9)
}

func TestEnergyClassifier_SmoothingDampensSpike(t *testing.T) {
	c := NewEnergyClassifier(&EnergyConfig{Threshold: 0.01, SmoothingFrames: 5})

	// One loud window after silence is averaged across the history, so the
	// probability climbs rather than jumping straight to 1.
	spike, err := c.Score(context.Background(), constantWindow(160, 0.1))
	assert.NoError(t, err)

	unsmoothed := NewEnergyClassifier(&EnergyConfig{Threshold: 0.01, SmoothingFrames: 1})
	direct, err := unsmoothed.Score(context.Background(), constantWindow(160, 0.1))
	assert.NoError(t, err)

	assert.Less(t, spike, direct)
}

func TestEnergyClassifier_SustainedSpeechConverges(t *testing.T) {
	c := NewEnergyClassifier(&EnergyConfig{Threshold: 0.01, SmoothingFrames: 5})

	var prob float64
	for i := 0; i < 5; i++ {
		var err error
		prob, err = c.Score(context.Background(), constantWindow(160, 0.5))
		assert.NoError(t, err)
	}
	assert.Greater(t, prob, 0.9)
}

func TestEnergyClassifier_Reset(t *testing.T) {
	c := NewEnergyClassifier(&EnergyConfig{Threshold: 0.01, SmoothingFrames: 5})

	for i := 0; i < 5; i++ {
		_, err := c.Score(context.Background(), constantWindow(160, 0.5))
		assert.NoError(t, err)
	}
	c.Reset()

	prob, err := c.Score(context.Background(), constantWindow(160, 0))
	assert.NoError(t, err)
	assert.Less(t, prob, 0.5)
}

func TestEnergyClassifier_ProbabilityClamped(t *testing.T) {
	c := NewEnergyClassifier(&EnergyConfig{Threshold: 0.01, SmoothingFrames: 1})

	high, err := c.Score(context.Background(), constantWindow(160, 1))
	assert.NoError(t, err)
	assert.LessOrEqual(t, high, 1.0)

	c.Reset()
	low, err := c.Score(context.Background(), constantWindow(160, 0))
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, low, 0.0)
}

func TestEnergyClassifier_ZeroSmoothingFramesClamped(t *testing.T) {
	c := NewEnergyClassifier(&EnergyConfig{Threshold: 0.01})

	prob, err := c.Score(context.Background(), constantWindow(160, 0.5))
	assert.NoError(t, err)
	assert.Greater(t, prob, 0.0)
}

func TestCalculateRMS(t *testing.T) {
	assert.Equal(t, 0.0, calculateRMS(nil))
	assert.Equal(t, 0.5, calculateRMS(constantWindow(160, 0.5)))
	assert.InDelta(t, 0.5, calculateRMS(constantWindow(160, -0.5)), 1e-9)
}
