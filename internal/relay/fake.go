package relay

import (
	"strconv"
	"sync"
)

// Fake is a test double that records relay commands in memory.
type Fake struct {
	mu sync.Mutex

	// Speed is the engaged fan speed, 0 when off.
	Speed int

	// Calls records each command: "speed:N" or "off".
	Calls []string

	// Err, if set, is returned by SetSpeed and AllOff without changing state.
	Err error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFake creates a Fake with every relay off.
func NewFake() *Fake {
	return &Fake{}
}

// SetSpeed engages speed, or releases everything for 0.
func (f *Fake) SetSpeed(speed int) error {
	if err := checkSpeed(speed); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Speed = speed
	if speed == 0 {
		f.Calls = append(f.Calls, "off")
	} else {
		f.Calls = append(f.Calls, "speed:"+strconv.Itoa(speed))
	}
	return nil
}

// AllOff releases every relay.
func (f *Fake) AllOff() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Speed = 0
	f.Calls = append(f.Calls, "off")
	return nil
}

// IsRunning reports whether a speed is engaged.
func (f *Fake) IsRunning() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Speed > 0, nil
}

// Close releases every relay and marks the fake as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Speed = 0
	f.Closed = true
	return nil
}

// History returns a copy of the recorded calls.
func (f *Fake) History() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// Current returns the engaged speed.
func (f *Fake) Current() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Speed
}

// SetErr makes subsequent commands fail with err (nil clears it).
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}
