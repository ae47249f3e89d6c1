//go:build linux

package relay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Board drives the relays through the Linux GPIO character device.
// The relay modules are active-low: a line driven to 0 engages its relay.
type Board struct {
	mu        sync.Mutex
	chip      *gpiocdev.Chip
	valve     *gpiocdev.Line
	fans      [MaxSpeed]*gpiocdev.Line
	activeLow bool
}

// NewBoard requests the four relay lines as outputs, all released.
func NewBoard(chipName string, pins Pins, activeLow bool) (*Board, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &Board{chip: chip, activeLow: activeLow}
	off := b.raw(false)

	b.valve, err = chip.RequestLine(pins.Valve, gpiocdev.AsOutput(off))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request valve pin %d: %w", pins.Valve, err)
	}

	for i, pin := range []int{pins.Low, pins.Mid, pins.High} {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(off))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request speed %d pin %d: %w", i+1, pin, err)
		}
		b.fans[i] = line
	}

	return b, nil
}

// raw converts a logical relay state to the line value.
func (b *Board) raw(on bool) int {
	if on != b.activeLow {
		return 1
	}
	return 0
}

// SetSpeed switches all relays off, then engages the valve and the speed relay.
func (b *Board) SetSpeed(speed int) error {
	if err := checkSpeed(speed); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.allOff(); err != nil {
		return err
	}
	if speed == 0 {
		return nil
	}

	idx, _ := speedIndex(speed)
	if err := b.valve.SetValue(b.raw(true)); err != nil {
		return fmt.Errorf("set valve: %w", err)
	}
	if err := b.fans[idx].SetValue(b.raw(true)); err != nil {
		return fmt.Errorf("set speed %d: %w", speed, err)
	}
	return nil
}

// AllOff releases every relay.
func (b *Board) AllOff() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allOff()
}

func (b *Board) allOff() error {
	off := b.raw(false)
	var errs []error
	for i, line := range b.fans {
		if err := line.SetValue(off); err != nil {
			errs = append(errs, fmt.Errorf("release speed %d: %w", i+1, err))
		}
	}
	if err := b.valve.SetValue(off); err != nil {
		errs = append(errs, fmt.Errorf("release valve: %w", err))
	}
	return errors.Join(errs...)
}

// IsRunning reads back the valve line.
func (b *Board) IsRunning() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, err := b.valve.Value()
	if err != nil {
		return false, fmt.Errorf("read valve pin: %w", err)
	}
	return v == b.raw(true), nil
}

// Close releases every relay before returning the lines to the kernel.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	off := b.raw(false)
	lines := append([]*gpiocdev.Line{b.valve}, b.fans[:]...)
	for _, line := range lines {
		if line == nil {
			continue
		}
		if err := line.SetValue(off); err != nil {
			errs = append(errs, fmt.Errorf("release line: %w", err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}
