package mmal

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Default component names registered by the VideoCore engine.
const (
	ComponentCamera        = "vc.ril.camera"
	ComponentVideoEncoder  = "vc.ril.video_encode"
	ComponentVideoDecoder  = "vc.ril.video_decode"
	ComponentVideoRenderer = "vc.ril.video_render"
	ComponentVideoSplitter = "vc.ril.video_splitter"
	ComponentImageEncoder  = "vc.ril.image_encode"
	ComponentImageDecoder  = "vc.ril.image_decode"
	ComponentResizer       = "vc.ril.resize"
	ComponentISP           = "vc.ril.isp"
	ComponentNullSink      = "vc.null_sink"
)

// Camera output port indices.
const (
	CameraPreviewPort = 0
	CameraVideoPort   = 1
	CameraCapturePort = 2
)

// Component owns one engine pipeline stage. It also owns every Pool and
// Connection created through its ports: Close releases those first, newest
// first, and then destroys the stage. Port views obtained from a closed
// Component report ErrClosed.
//
// Component is not safe for concurrent use.
type Component struct {
	handle Handle[ComponentPtr]
	engine Engine
	name   string
	owned  arena
	closed bool
}

// NewComponent creates the stage registered under name. It fails with a
// *ComponentCreationError when the engine cannot resolve or instantiate it.
// The component starts Disabled.
func NewComponent(engine Engine, name string) (*Component, error) {
	raw, st := engine.ComponentCreate(name)
	if st != Success {
		return nil, &ComponentCreationError{Name: name, Err: st}
	}
	h, err := NewHandle(raw, Owned)
	if err != nil {
		return nil, &ComponentCreationError{Name: name, Err: err}
	}
	Logger().Debug("component created", zap.String("name", name))
	return &Component{handle: h, engine: engine, name: name}, nil
}

// Name returns the name the component was created with.
func (c *Component) Name() string { return c.name }

// Raw returns the native component pointer.
func (c *Component) Raw() ComponentPtr { return c.handle.Raw() }

// Handle returns the owning handle of the component.
func (c *Component) Handle() Handle[ComponentPtr] { return c.handle }

// Engine returns the engine the component was created on.
func (c *Component) Engine() Engine { return c.engine }

// Closed returns true once Close has been called.
func (c *Component) Closed() bool { return c.closed }

func (c *Component) String() string {
	return fmt.Sprintf("component %s", c.name)
}

func (c *Component) lifecycle() lifecycle {
	raw := c.handle.Raw()
	return lifecycle{
		what:    c.String(),
		enable:  func() Status { return c.engine.ComponentEnable(raw) },
		disable: func() Status { return c.engine.ComponentDisable(raw) },
		enabled: func() bool { return c.engine.ComponentIsEnabled(raw) },
	}
}

// Enable enables the stage.
func (c *Component) Enable() error {
	if c.closed {
		return ErrClosed
	}
	return c.lifecycle().Enable()
}

// Disable disables the stage.
func (c *Component) Disable() error {
	if c.closed {
		return ErrClosed
	}
	return c.lifecycle().Disable()
}

// State returns the stage state. A closed component is Disabled.
func (c *Component) State() State {
	if c.closed {
		return Disabled
	}
	return c.lifecycle().State()
}

func (c *Component) ports() ComponentPorts {
	if c.closed {
		return ComponentPorts{}
	}
	return c.engine.ComponentPorts(c.handle.Raw())
}

// Inputs returns the number of input ports.
func (c *Component) Inputs() int { return len(c.ports().Inputs) }

// Outputs returns the number of output ports.
func (c *Component) Outputs() int { return len(c.ports().Outputs) }

// Clocks returns the number of clock ports.
func (c *Component) Clocks() int { return len(c.ports().Clocks) }

// InputPort returns a view over the i-th input port. It reports false when
// i is out of range, so callers can probe port counts.
//
// Every call returns a new *Port. Views over the same endpoint are
// interchangeable but not identical; compare them with SameEndpoint.
func (c *Component) InputPort(i int) (*Port, bool) {
	return c.portAt(c.ports().Inputs, i)
}

// OutputPort returns a view over the i-th output port. It reports false
// when i is out of range. See InputPort for identity rules.
func (c *Component) OutputPort(i int) (*Port, bool) {
	return c.portAt(c.ports().Outputs, i)
}

// ClockPort returns a view over the i-th clock port. It reports false when
// i is out of range.
func (c *Component) ClockPort(i int) (*Port, bool) {
	return c.portAt(c.ports().Clocks, i)
}

// ControlPort returns a view over the control port, or nil once the
// component is closed.
func (c *Component) ControlPort() *Port {
	p, _ := c.newPort(c.ports().Control)
	return p
}

func (c *Component) portAt(ports []PortPtr, i int) (*Port, bool) {
	if i < 0 || i >= len(ports) {
		return nil, false
	}
	return c.newPort(ports[i])
}

func (c *Component) newPort(raw PortPtr) (*Port, bool) {
	h, err := NewHandle(raw, Borrowed)
	if err != nil {
		return nil, false
	}
	return &Port{handle: h, owner: c}, true
}

// Owned returns the number of live pools and connections the component
// owns.
func (c *Component) Owned() int { return c.owned.len() }

// Close releases every pool and connection still owned by the component,
// newest first, and then destroys the stage. Calling Close again is a no-op.
// Teardown continues past failures; all of them are returned.
func (c *Component) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	for _, r := range c.owned.drain() {
		if rerr := r.release(); rerr != nil {
			Logger().Warn("release failed", zap.Stringer("resource", r), zap.Error(rerr))
			err = multierr.Append(err, rerr)
		}
	}

	st := c.engine.ComponentDestroy(c.handle.Raw())
	Logger().Debug("component destroyed", zap.String("name", c.name), zap.Stringer("status", st))
	return multierr.Append(err, check(st, "destroy %s", c))
}
