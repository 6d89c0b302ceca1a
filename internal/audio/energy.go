package audio

import (
	"context"
	"math"
	"sync"
)

// EnergyClassifier scores windows with smoothed RMS energy. It is the
// zero-dependency fallback scorer; for model-backed scoring see HTTPClassifier.
type EnergyClassifier struct {
	config *EnergyConfig

	mu            sync.Mutex
	energyHistory []float64
	historyIndex  int
}

// EnergyConfig holds energy classifier configuration
type EnergyConfig struct {
	Threshold       float64 `json:"threshold"`        // RMS level mapped to probability 0.5, default 0.01
	SmoothingFrames int     `json:"smoothing_frames"` // Number of windows to smooth, default 5
}

// DefaultEnergyConfig returns sensible defaults
func DefaultEnergyConfig() *EnergyConfig {
	return &EnergyConfig{
		Threshold:       0.01,
		SmoothingFrames: 5,
	}
}

// NewEnergyClassifier creates a new energy classifier
func NewEnergyClassifier(config *EnergyConfig) *EnergyClassifier {
	if config == nil {
		config = DefaultEnergyConfig()
	}
	if config.SmoothingFrames <= 0 {
		config.SmoothingFrames = DefaultEnergyConfig().SmoothingFrames
	}

	return &EnergyClassifier{
		config:        config,
		energyHistory: make([]float64, config.SmoothingFrames),
	}
}

// Score maps the window's smoothed RMS energy to a speech probability.
func (c *EnergyClassifier) Score(_ context.Context, window Window) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rms := calculateRMS(window)

	c.energyHistory[c.historyIndex] = rms
	c.historyIndex = (c.historyIndex + 1) % len(c.energyHistory)

	var sum float64
	for _, e := range c.energyHistory {
		sum += e
	}
	smoothed := sum / float64(len(c.energyHistory))

	// Distance from the reference level scales linearly into a probability
	// centered at 0.5, clamped to [0,1].
	prob := 0.5 + (smoothed-c.config.Threshold)*10
	return math.Max(0, math.Min(1, prob)), nil
}

// Reset clears the smoothing history.
func (c *EnergyClassifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyIndex = 0
	for i := range c.energyHistory {
		c.energyHistory[i] = 0
	}
}

// calculateRMS computes Root Mean Square energy over normalized samples
func calculateRMS(window Window) float64 {
	if len(window) == 0 {
		return 0
	}

	var sum float64
	for _, s := range window {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(window)))
}
