// Package sensor reads the indoor environmental sensor and feeds samples
// to the orchestrator.
package sensor

import (
	"errors"
	"fmt"
	"math"

	"github.com/sweeney/fancoil-controller/internal/logic"
)

// ErrNoReading is returned when the source has nothing to report yet.
var ErrNoReading = errors.New("sensor: no reading available")

// ErrNotNew is returned when the latest reading was already read.
var ErrNotNew = fmt.Errorf("%w: reading already consumed", ErrNoReading)

// Source reads raw samples. Temperature is in Celsius.
type Source interface {
	Read() (logic.Sample, error)

	// Close releases the source.
	Close() error
}

// ToFahrenheit converts Celsius to Fahrenheit.
func ToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// HalfRound snaps t to a 0.5 step: values in [n, n+0.5) map to n and
// values in [n+0.5, n+1) to n+0.5. Used to ignore jitter below the
// display resolution.
func HalfRound(t float64) float64 {
	r := math.Round(t)
	return r - (r-math.Trunc(t))/2
}
