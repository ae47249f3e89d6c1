// Package panel is the display collaborator: it owns the user's target
// temperature and fan speed, notifies the orchestrator when the user
// changes them, and holds the values shown on screen.
package panel

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/weather"
)

// MaxSpeed is the highest fan speed.
const MaxSpeed = message.MaxSpeed

// Readout is what the screen shows.
type Readout struct {
	TargetTemp       float64           `json:"target_temp"`
	FanSpeed         int               `json:"fan_speed"`
	LastNonzeroSpeed int               `json:"last_nonzero_speed"`
	Running          bool              `json:"running"`
	Mode             logic.Mode        `json:"mode"`
	Indoor           *logic.Reading    `json:"indoor,omitempty"`
	Outdoor          *weather.Snapshot `json:"outdoor,omitempty"`
}

// Panel is safe for concurrent use. Each field is independently
// consistent; no multi-field transaction is offered.
type Panel struct {
	mu sync.RWMutex

	target       float64
	speed        int
	lastNonzero  int
	speedChanged bool

	running bool
	mode    logic.Mode
	indoor  *logic.Reading
	outdoor *weather.Snapshot

	out chan<- message.Message
}

// New creates a panel with the given initial setting. Notifications are
// sent on out.
func New(target float64, speed int, out chan<- message.Message) *Panel {
	p := &Panel{target: target, lastNonzero: 1, out: out}
	p.speed = clampSpeed(speed)
	if p.speed > 0 {
		p.lastNonzero = p.speed
	}
	return p
}

func clampSpeed(s int) int {
	if s < 0 {
		return 0
	}
	if s > MaxSpeed {
		return MaxSpeed
	}
	return s
}

// TargetTemp returns the user's target temperature.
func (p *Panel) TargetTemp() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target
}

// FanSpeed returns the selected speed, 0 when off.
func (p *Panel) FanSpeed() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.speed
}

// IsOff reports whether the user explicitly turned the unit off.
func (p *Panel) IsOff() bool {
	return p.FanSpeed() == 0
}

// LastNonzeroSpeed returns the speed used before the unit was turned off.
func (p *Panel) LastNonzeroSpeed() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastNonzero
}

// SpeedJustChanged reports whether the speed was set since the last call,
// and clears the flag.
func (p *Panel) SpeedJustChanged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := p.speedChanged
	p.speedChanged = false
	return changed
}

// SetTargetTemp sets the target temperature.
func (p *Panel) SetTargetTemp(t float64) {
	p.mu.Lock()
	p.target = t
	p.mu.Unlock()
}

// SetFanSpeed selects a speed and raises the speed-changed flag.
func (p *Panel) SetFanSpeed(s int) error {
	if s < 0 || s > MaxSpeed {
		return fmt.Errorf("%w: speed %d outside 0..%d", message.ErrBadParam, s, MaxSpeed)
	}
	p.mu.Lock()
	p.speed = s
	p.speedChanged = true
	if s > 0 {
		p.lastNonzero = s
	}
	p.mu.Unlock()
	return nil
}

// Restore loads a persisted setting without raising the speed-changed flag.
func (p *Panel) Restore(target float64, speed int) {
	p.mu.Lock()
	p.target = target
	p.speed = clampSpeed(speed)
	if p.speed > 0 {
		p.lastNonzero = p.speed
	}
	p.mu.Unlock()
}

// Setting returns the user setting for one thermostat evaluation,
// consuming the speed-changed flag. A speed set while Setting runs keeps
// the flag raised for the next evaluation.
func (p *Panel) Setting() logic.UserSetting {
	changed := p.SpeedJustChanged()

	p.mu.RLock()
	defer p.mu.RUnlock()
	return logic.UserSetting{
		TargetTemp:       p.target,
		FanSpeed:         p.speed,
		LastNonzeroSpeed: p.lastNonzero,
		SpeedChanged:     changed,
	}
}

// Notify tells the orchestrator that the user interacted with the panel.
func (p *Panel) Notify(ctx context.Context) error {
	p.mu.RLock()
	params := message.Params{"target": p.target, "speed": p.speed}
	p.mu.RUnlock()

	select {
	case p.out <- message.New(message.KindDisplayUpdate, "", params):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interact applies a user change from the screen and notifies the
// orchestrator. Nil arguments are left unchanged.
func (p *Panel) Interact(ctx context.Context, target *float64, speed *int) error {
	if speed != nil {
		if err := p.SetFanSpeed(*speed); err != nil {
			return err
		}
	}
	if target != nil {
		p.SetTargetTemp(*target)
	}
	return p.Notify(ctx)
}

// ShowIndoor updates the indoor readout.
func (p *Panel) ShowIndoor(r logic.Reading) {
	p.mu.Lock()
	p.indoor = &r
	p.mu.Unlock()
}

// ShowOutdoor updates the outdoor readout.
func (p *Panel) ShowOutdoor(s weather.Snapshot) {
	p.mu.Lock()
	p.outdoor = &s
	p.mu.Unlock()
}

// ShowRunning updates the coil indicator.
func (p *Panel) ShowRunning(running bool, mode logic.Mode) {
	p.mu.Lock()
	p.running = running
	p.mode = mode
	p.mu.Unlock()
}

// Readout returns a copy of everything on screen.
func (p *Panel) Readout() Readout {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r := Readout{
		TargetTemp:       p.target,
		FanSpeed:         p.speed,
		LastNonzeroSpeed: p.lastNonzero,
		Running:          p.running,
		Mode:             p.mode,
	}
	if p.indoor != nil {
		in := *p.indoor
		r.Indoor = &in
	}
	if p.outdoor != nil {
		out := *p.outdoor
		r.Outdoor = &out
	}
	return r
}
