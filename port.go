package mmal

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// BufferHandler receives buffers from an enabled port: emptied buffers
// coming back from an input port, filled buffers from an output port.
// It runs on the engine's dispatch context, concurrently with the caller,
// and must not block. It must not call control operations on the same
// port without external serialization.
type BufferHandler func(port *Port, buf *Buffer)

// Port is a borrowed view onto one endpoint of a Component. It releases
// nothing. Several views may exist over one endpoint; they all observe the
// same engine state.
type Port struct {
	handle Handle[PortPtr]
	owner  *Component
}

// Raw returns the native port pointer.
func (p *Port) Raw() PortPtr { return p.handle.Raw() }

// Handle returns the borrowed handle of the port.
func (p *Port) Handle() Handle[PortPtr] { return p.handle }

// Component returns the component owning the endpoint.
func (p *Port) Component() *Component { return p.owner }

// SameEndpoint returns true if p and o view the same native endpoint.
func (p *Port) SameEndpoint(o *Port) bool {
	return o != nil && p.handle.Raw() == o.handle.Raw()
}

func (p *Port) engine() Engine { return p.owner.engine }

func (p *Port) closed() bool { return p.owner.closed }

func (p *Port) String() string {
	if p.closed() {
		return fmt.Sprintf("port %#x (closed)", uintptr(p.handle.Raw()))
	}
	return fmt.Sprintf("port %s", p.Info().Name)
}

// Info returns the port name, type and index.
func (p *Port) Info() PortInfo {
	if p.closed() {
		return PortInfo{}
	}
	return p.engine().PortInfo(p.handle.Raw())
}

// BufferCount returns the negotiated number of buffers.
func (p *Port) BufferCount() uint32 {
	if p.closed() {
		return 0
	}
	return p.engine().PortBufferNum(p.handle.Raw())
}

// SetBufferCount writes the negotiated number of buffers. Writing after
// the port is enabled has engine-defined effect. Ignored once closed.
func (p *Port) SetBufferCount(n uint32) {
	if p.closed() {
		return
	}
	p.engine().PortSetBufferNum(p.handle.Raw(), n)
}

// BufferSize returns the negotiated buffer payload size.
func (p *Port) BufferSize() uint32 {
	if p.closed() {
		return 0
	}
	return p.engine().PortBufferSize(p.handle.Raw())
}

// SetBufferSize writes the negotiated buffer payload size. Ignored once
// closed.
func (p *Port) SetBufferSize(n uint32) {
	if p.closed() {
		return
	}
	p.engine().PortSetBufferSize(p.handle.Raw(), n)
}

// BufferRequirements returns the engine's minimum and recommended buffer
// settings.
func (p *Port) BufferRequirements() BufferRequirements {
	if p.closed() {
		return BufferRequirements{}
	}
	return p.engine().PortBufferRequirements(p.handle.Raw())
}

// UseRecommendedBuffers sets count and size to the engine's recommendation,
// falling back to the minimums when no recommendation is made.
func (p *Port) UseRecommendedBuffers() {
	req := p.BufferRequirements()
	n, size := req.NumRecommended, req.SizeRecommended
	if n < req.NumMin {
		n = req.NumMin
	}
	if size < req.SizeMin {
		size = req.SizeMin
	}
	p.SetBufferCount(n)
	p.SetBufferSize(size)
}

// Format returns the port's live format descriptor for in-place editing,
// or nil once closed. Edits reach the engine on CommitFormat.
func (p *Port) Format() *Format {
	if p.closed() {
		return nil
	}
	return p.engine().PortFormat(p.handle.Raw())
}

// CopyFormat overwrites the port's descriptor with a deep copy of src,
// typically the format negotiated on a connected peer.
func (p *Port) CopyFormat(src *Format) error {
	if p.closed() {
		return ErrClosed
	}
	if src == nil {
		return errors.Wrapf(EINVAL, "copy nil format to %s", p)
	}
	dst := p.engine().PortFormat(p.handle.Raw())
	return check(p.engine().FormatFullCopy(dst, src), "copy format to %s", p)
}

// CommitFormat submits the edited format. On failure the descriptor and
// the negotiated state may disagree; re-read Format or retry.
func (p *Port) CommitFormat() error {
	if p.closed() {
		return ErrClosed
	}
	st := p.engine().PortFormatCommit(p.handle.Raw())
	Logger().Debug("format commit", zap.Stringer("port", p), zap.Stringer("status", st))
	return check(st, "commit format on %s", p)
}

// SetParameter sets one parameter. Each kind of Parameter is marshalled by
// its own engine call.
func (p *Port) SetParameter(param Parameter) error {
	if p.closed() {
		return ErrClosed
	}
	raw := p.handle.Raw()
	var st Status
	switch v := param.(type) {
	case Record:
		if err := v.validate(); err != nil {
			return err
		}
		st = p.engine().PortParameterSet(raw, v)
	case Scalar:
		st = p.engine().PortParameterSetUint32(raw, v.ID, v.Value)
	case Flag:
		st = p.engine().PortParameterSetBoolean(raw, v.ID, v.Value)
	default:
		return errors.Wrapf(EINVAL, "parameter of type %T", param)
	}
	return check(st, "set parameter %#x on %s", uint32(param.parameterID()), p)
}

// GetParameter reads a structured parameter into rec, whose header names
// the parameter and the space available.
func (p *Port) GetParameter(rec Record) error {
	if p.closed() {
		return ErrClosed
	}
	if err := rec.validate(); err != nil {
		return err
	}
	return check(p.engine().PortParameterGet(p.handle.Raw(), rec), "get parameter %#x on %s", uint32(rec.ID()), p)
}

func (p *Port) lifecycle(enable func() Status) lifecycle {
	raw := p.handle.Raw()
	return lifecycle{
		what:    p.String(),
		enable:  enable,
		disable: func() Status { return p.engine().PortDisable(raw) },
		enabled: func() bool { return p.engine().PortIsEnabled(raw) },
	}
}

// Enable enables the port and registers handler for buffers coming back
// from it. A nil handler is passed to the engine as no callback, which it
// only accepts for ports fed by a Connection.
func (p *Port) Enable(handler BufferHandler) error {
	if p.closed() {
		return ErrClosed
	}
	var cb EngineCallback
	if handler != nil {
		e := p.engine()
		cb = func(_ PortPtr, b BufferPtr) {
			h, err := NewHandle(b, Borrowed)
			if err != nil {
				return
			}
			handler(p, &Buffer{handle: h, engine: e})
		}
	}
	raw := p.handle.Raw()
	return p.lifecycle(func() Status { return p.engine().PortEnable(raw, cb) }).Enable()
}

// Disable disables the port. Buffers still held by the engine are returned
// through the handler before it completes.
func (p *Port) Disable() error {
	if p.closed() {
		return ErrClosed
	}
	return p.lifecycle(nil).Disable()
}

// State returns the port state as recorded by the engine.
func (p *Port) State() State {
	if p.closed() {
		return Disabled
	}
	return p.lifecycle(nil).State()
}

// Enabled returns true if the port is enabled.
func (p *Port) Enabled() bool { return p.State() == Enabled }

// Flush returns every buffer queued on the port through its handler.
func (p *Port) Flush() error {
	if p.closed() {
		return ErrClosed
	}
	return check(p.engine().PortFlush(p.handle.Raw()), "flush %s", p)
}

// SendBuffer queues buf on the port: data to consume on an input port, an
// empty buffer to fill on an output port.
func (p *Port) SendBuffer(buf *Buffer) error {
	if p.closed() {
		return ErrClosed
	}
	if buf == nil {
		return errors.Wrapf(ErrInvalidHandle, "send buffer to %s", p)
	}
	return check(p.engine().PortSendBuffer(p.handle.Raw(), buf.Raw()), "send buffer to %s", p)
}

// CreatePool allocates a pool sized from the port's current buffer count
// and size.
func (p *Port) CreatePool() (*Pool, error) {
	if p.closed() {
		return nil, ErrClosed
	}
	return p.CreatePoolWith(p.BufferCount(), p.BufferSize())
}

// CreatePoolWith allocates a pool of count buffers of size bytes,
// independent of the port's negotiation state. The pool is owned by the
// port's component until closed.
func (p *Port) CreatePoolWith(count, size uint32) (*Pool, error) {
	if p.closed() {
		return nil, ErrClosed
	}
	e := p.engine()
	portRaw := p.handle.Raw()
	h, err := NewHandle(e.PoolCreate(portRaw, count, size), Owned)
	if err != nil {
		return nil, errors.Wrapf(ErrPoolCreation, "%d x %d bytes on %s", count, size, p)
	}
	pool := &Pool{
		handle: h,
		engine: e,
		port:   portRaw,
		owner:  p.owner,
		name:   p.String(),
	}
	pool.slot = p.owner.owned.add(pool)
	Logger().Debug("pool created", zap.Stringer("port", p), zap.Uint32("count", count), zap.Uint32("size", size))
	return pool, nil
}
