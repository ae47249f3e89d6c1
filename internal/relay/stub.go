//go:build !linux

package relay

import "errors"

var errUnsupported = errors.New("relay: not supported on this platform (requires Linux)")

// Board is not available on non-Linux platforms.
type Board struct{}

// NewBoard returns an error on non-Linux platforms.
func NewBoard(chipName string, pins Pins, activeLow bool) (*Board, error) {
	return nil, errUnsupported
}

// SetSpeed is not implemented on non-Linux platforms.
func (b *Board) SetSpeed(speed int) error {
	return errUnsupported
}

// AllOff is not implemented on non-Linux platforms.
func (b *Board) AllOff() error {
	return errUnsupported
}

// IsRunning is not implemented on non-Linux platforms.
func (b *Board) IsRunning() (bool, error) {
	return false, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (b *Board) Close() error {
	return nil
}
