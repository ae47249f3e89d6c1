package sensor

import (
	"sync"

	"github.com/sweeney/fancoil-controller/internal/logic"
)

// FakeSource is a test double that returns scripted samples.
type FakeSource struct {
	mu sync.Mutex

	// Samples contains scripted readings. Each call to Read() consumes
	// the next one; the last is repeated once exhausted.
	Samples []logic.Sample

	index int

	// ReadError, if set, will be returned by Read().
	ReadError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSource creates a FakeSource with the given samples.
func NewFakeSource(samples ...logic.Sample) *FakeSource {
	return &FakeSource{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeSource) Read() (logic.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return logic.Sample{}, f.ReadError
	}
	if len(f.Samples) == 0 {
		return logic.Sample{}, ErrNoReading
	}

	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// SetError makes Read fail with err (nil clears it).
func (f *FakeSource) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReadError = err
}
