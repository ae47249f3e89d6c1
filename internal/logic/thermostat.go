package logic

import "math"

// Thermostat is the hysteresis state machine that turns indoor temperature
// and the user's setting into actuator commands.
//
// While the target has not been reached the coil keeps running until the
// room passes the target by Offset degrees. Once reached, it stays idle
// until the room drifts ReachedMargin degrees past the target in the
// opposite direction.
type Thermostat struct {
	offset        float64
	reachedMargin float64
}

// NewThermostat creates a thermostat. offset is treated as unsigned.
func NewThermostat(offset, reachedMargin float64) *Thermostat {
	return &Thermostat{
		offset:        math.Abs(offset),
		reachedMargin: math.Abs(reachedMargin),
	}
}

// Offset returns the overshoot applied while the target has not been reached.
func (t *Thermostat) Offset() float64 {
	return t.offset
}

// ReachedMargin returns the drift tolerated once the target has been reached.
func (t *Thermostat) ReachedMargin() float64 {
	return t.reachedMargin
}

// Evaluate returns the next control state and the command to apply.
// A CommandNone result means the actuator must not be touched.
func (t *Thermostat) Evaluate(current float64, user UserSetting, state ControlState) (ControlState, Command) {
	dynamicOffset := -t.offset
	if state.TargetReached {
		dynamicOffset = t.reachedMargin
	}

	trigger := state.Mode.sign()*(current-user.TargetTemp) > dynamicOffset

	next := state
	if !user.Off() && trigger {
		if !state.ActuatorRunning || user.SpeedChanged {
			next.TargetReached = false
			next.ActuatorRunning = true
			return next, Command{Type: CommandStart, Speed: user.FanSpeed}
		}
		return next, Command{}
	}

	if state.ActuatorRunning {
		next.TargetReached = true
		next.ActuatorRunning = false
		return next, Command{Type: CommandAllOff}
	}

	return next, Command{}
}
