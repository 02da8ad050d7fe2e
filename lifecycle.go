package mmal

import "go.uber.org/zap"

// State is the enable state shared by ports, connections and components.
type State uint8

const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// lifecycle drives the Disabled/Enabled machine of one resource through the
// primitives the resource supplies. The state is read back from the engine
// so every view over the same resource agrees. Transitions into the current
// state are forwarded to the engine, which decides whether they succeed.
type lifecycle struct {
	what    string
	enable  func() Status
	disable func() Status
	enabled func() bool
}

func (l lifecycle) State() State {
	if l.enabled() {
		return Enabled
	}
	return Disabled
}

func (l lifecycle) Enable() error {
	st := l.enable()
	Logger().Debug("enable", zap.String("resource", l.what), zap.Stringer("status", st))
	return check(st, "enable %s", l.what)
}

func (l lifecycle) Disable() error {
	st := l.disable()
	Logger().Debug("disable", zap.String("resource", l.what), zap.Stringer("status", st))
	return check(st, "disable %s", l.what)
}
