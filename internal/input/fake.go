package input

import (
	"errors"
	"sync"
)

// FakeSource is a test double that returns scripted samples.
type FakeSource struct {
	mu sync.Mutex

	// PinCount is returned by Pins.
	PinCount int

	// Samples are returned in order; the last one repeats once exhausted.
	Samples [][]uint16

	// SampleError, if set, is returned by Sample.
	SampleError error

	index  int
	closed bool
}

// NewFakeSource creates a FakeSource with the given pins and samples.
func NewFakeSource(pins int, samples ...[]uint16) *FakeSource {
	return &FakeSource{PinCount: pins, Samples: samples}
}

// Pins returns PinCount.
func (f *FakeSource) Pins() int {
	return f.PinCount
}

// Sample returns the next scripted sample.
func (f *FakeSource) Sample() ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SampleError != nil {
		return nil, f.SampleError
	}
	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

// Close marks the source closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeSource) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
