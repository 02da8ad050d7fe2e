package mmal

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ConnectionFlags select how a connection moves buffers.
type ConnectionFlags uint32

const (
	// Tunnelling requests a zero-copy tunnel handled inside the engine.
	Tunnelling ConnectionFlags = 1 << iota
	// AllocationOnInput allocates the buffers on the input port.
	AllocationOnInput
	// AllocationOnOutput allocates the buffers on the output port.
	AllocationOnOutput
	// KeepBufferRequirements leaves the ports' buffer settings untouched.
	KeepBufferRequirements
	// Direct connects without tunnelling through the engine's own thread.
	Direct
	// KeepPortFormats leaves the ports' formats untouched.
	KeepPortFormats
)

// DefaultConnectionFlags are the flags Connect uses.
const DefaultConnectionFlags = Tunnelling | AllocationOnInput

var connectionFlagNames = []string{
	"tunnelling",
	"allocation-on-input",
	"allocation-on-output",
	"keep-buffer-requirements",
	"direct",
	"keep-port-formats",
}

func (f ConnectionFlags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for i, name := range connectionFlagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if rest := f &^ (1<<len(connectionFlagNames) - 1); rest != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(names, "|")
}

// Has returns true if all flags in g are set.
func (f ConnectionFlags) Has(g ConnectionFlags) bool { return f&g == g }

type connectionOwner struct {
	component *Component
	slot      slot
}

// Connection owns a tunnel between an output port and an input port. Both
// components own it as well: whichever closes first destroys it.
type Connection struct {
	handle    Handle[ConnectionPtr]
	engine    Engine
	flags     ConnectionFlags
	name      string
	owners    []connectionOwner
	destroyed bool
}

// Connect links out to in with DefaultConnectionFlags.
func Connect(out, in *Port) (*Connection, error) {
	return ConnectWithFlags(out, in, DefaultConnectionFlags)
}

// ConnectWithFlags links out to in, passing flags to the engine unmodified.
// The connection starts Disabled. Enabling it is only meaningful once both
// ports are configured; that is not checked here.
func ConnectWithFlags(out, in *Port, flags ConnectionFlags) (*Connection, error) {
	if out == nil || in == nil {
		return nil, errors.Wrap(ErrInvalidHandle, "connect nil port")
	}
	if out.closed() || in.closed() {
		return nil, ErrClosed
	}
	name := out.String() + " -> " + in.String()
	e := out.engine()
	raw, st := e.ConnectionCreate(out.Raw(), in.Raw(), flags)
	if err := check(st, "connect %s", name); err != nil {
		return nil, err
	}
	h, err := NewHandle(raw, Owned)
	if err != nil {
		return nil, errors.Wrapf(ErrConnectionCreation, "connect %s", name)
	}
	c := &Connection{handle: h, engine: e, flags: flags, name: name}
	c.own(out.owner)
	if in.owner != out.owner {
		c.own(in.owner)
	}
	Logger().Debug("connection created", zap.String("connection", name), zap.Stringer("flags", flags))
	return c, nil
}

func (c *Connection) own(comp *Component) {
	c.owners = append(c.owners, connectionOwner{component: comp, slot: comp.owned.add(c)})
}

// Raw returns the native connection pointer.
func (c *Connection) Raw() ConnectionPtr { return c.handle.Raw() }

// Handle returns the owning handle of the connection.
func (c *Connection) Handle() Handle[ConnectionPtr] { return c.handle }

// Flags returns the flags the connection was created with.
func (c *Connection) Flags() ConnectionFlags { return c.flags }

// Closed returns true once the connection has been destroyed.
func (c *Connection) Closed() bool { return c.destroyed }

func (c *Connection) String() string { return "connection " + c.name }

func (c *Connection) lifecycle() lifecycle {
	raw := c.handle.Raw()
	return lifecycle{
		what:    c.String(),
		enable:  func() Status { return c.engine.ConnectionEnable(raw) },
		disable: func() Status { return c.engine.ConnectionDisable(raw) },
		enabled: func() bool { return c.engine.ConnectionIsEnabled(raw) },
	}
}

// Enable starts buffer flow between the two ports.
func (c *Connection) Enable() error {
	if c.destroyed {
		return ErrClosed
	}
	return c.lifecycle().Enable()
}

// Disable stops buffer flow between the two ports.
func (c *Connection) Disable() error {
	if c.destroyed {
		return ErrClosed
	}
	return c.lifecycle().Disable()
}

// State returns the connection state. A destroyed connection is Disabled.
func (c *Connection) State() State {
	if c.destroyed {
		return Disabled
	}
	return c.lifecycle().State()
}

// Close tears down the tunnel. Calling Close again, or after either
// component destroyed the connection, is a no-op.
func (c *Connection) Close() error {
	return c.release()
}

func (c *Connection) release() error {
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	for _, o := range c.owners {
		o.component.owned.remove(o.slot)
	}
	st := c.engine.ConnectionDestroy(c.handle.Raw())
	Logger().Debug("connection destroyed", zap.String("connection", c.name), zap.Stringer("status", st))
	return check(st, "destroy %s", c)
}
