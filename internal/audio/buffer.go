package audio

import (
	"sync"
)

// DefaultWindowSize is 100ms of samples at 16kHz.
const DefaultWindowSize = 1600

// WindowBuffer accumulates raw samples into fixed-size windows. Push and
// Drain share one lock so a drain-and-classify pass never drops or
// duplicates samples relative to concurrent pushes.
type WindowBuffer struct {
	mu         sync.Mutex
	samples    []float64
	windowSize int
}

// NewWindowBuffer creates a buffer producing windows of windowSize samples.
func NewWindowBuffer(windowSize int) *WindowBuffer {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &WindowBuffer{
		samples:    make([]float64, 0, windowSize*2),
		windowSize: windowSize,
	}
}

// Push appends samples to the buffer.
func (b *WindowBuffer) Push(samples []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, samples...)
}

// Drain returns the accumulated samples as one window and clears the buffer,
// once enough samples have been collected. Windows do not overlap.
func (b *WindowBuffer) Drain() (Window, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.samples) < b.windowSize {
		return nil, false
	}

	window := make(Window, len(b.samples))
	copy(window, b.samples)
	b.samples = b.samples[:0]
	return window, true
}

// Len returns the number of buffered samples.
func (b *WindowBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Reset discards any buffered samples.
func (b *WindowBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
}
