// Package relay drives the fan coil relay board with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package relay

import (
	"errors"
	"fmt"
)

// MaxSpeed is the highest fan speed.
const MaxSpeed = 3

// ErrInvalidSpeed is returned for speeds outside 0..MaxSpeed.
var ErrInvalidSpeed = errors.New("relay: invalid speed")

// Actuator controls the water valve and the three fan speed relays.
type Actuator interface {
	// SetSpeed switches everything off, then opens the valve and engages
	// the relay for speed. Speed 0 is equivalent to AllOff.
	SetSpeed(speed int) error

	// AllOff releases every relay.
	AllOff() error

	// IsRunning reports whether the valve relay is engaged.
	IsRunning() (bool, error)

	// Close releases GPIO resources, leaving every relay off.
	Close() error
}

// Pin definitions (BCM numbering).
const (
	PinValve = 17
	PinLow   = 22
	PinMid   = 23
	PinHigh  = 27
)

// Pins maps each relay to a GPIO line offset.
type Pins struct {
	Valve int `yaml:"valve"`
	Low   int `yaml:"low"`
	Mid   int `yaml:"mid"`
	High  int `yaml:"high"`
}

// DefaultPins returns the board wiring.
func DefaultPins() Pins {
	return Pins{Valve: PinValve, Low: PinLow, Mid: PinMid, High: PinHigh}
}

// speedIndex returns the index into the fan relay list for speed.
func speedIndex(speed int) (int, error) {
	if speed < 1 || speed > MaxSpeed {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSpeed, speed)
	}
	return speed - 1, nil
}

func checkSpeed(speed int) error {
	if speed < 0 || speed > MaxSpeed {
		return fmt.Errorf("%w: %d", ErrInvalidSpeed, speed)
	}
	return nil
}
