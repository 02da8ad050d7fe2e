package mmal

import (
	"go.uber.org/zap"
)

// Pool owns a set of buffers allocated for one port. It keeps only what
// its own teardown needs (engine, port pointer, pool pointer), never a
// Port view. The component owning the port releases the pool at its own
// Close if the pool is still open.
type Pool struct {
	handle   Handle[PoolPtr]
	engine   Engine
	port     PortPtr
	owner    *Component
	slot     slot
	name     string
	released bool
}

// Raw returns the native pool pointer.
func (p *Pool) Raw() PoolPtr { return p.handle.Raw() }

// Handle returns the owning handle of the pool.
func (p *Pool) Handle() Handle[PoolPtr] { return p.handle }

// Owner returns the endpoint the pool was created for and is released
// through.
func (p *Pool) Owner() PortPtr { return p.port }

// Closed returns true once the pool has been released, either by Close or
// by its component.
func (p *Pool) Closed() bool { return p.released }

func (p *Pool) String() string { return "pool of " + p.name }

// Headers returns the number of buffer headers in the pool.
func (p *Pool) Headers() int {
	if p.released {
		return 0
	}
	return p.engine.PoolHeaders(p.handle.Raw())
}

// Len returns the number of buffers currently free in the pool.
func (p *Pool) Len() int {
	if p.released {
		return 0
	}
	return p.engine.PoolLength(p.handle.Raw())
}

// Get takes a free buffer from the pool. It reports false when the pool is
// empty or closed. Release the buffer, or send it to a port, to give it
// back.
func (p *Pool) Get() (*Buffer, bool) {
	if p.released {
		return nil, false
	}
	h, err := NewHandle(p.engine.PoolGet(p.handle.Raw()), Borrowed)
	if err != nil {
		return nil, false
	}
	return &Buffer{handle: h, engine: p.engine}, true
}

// Close releases the pool, disabling its port first if it is still
// enabled; the engine refuses to destroy a pool under an enabled port.
// Calling Close again, or after the owning component released it, is a
// no-op. If the port cannot be disabled the pool stays open.
func (p *Pool) Close() error {
	return p.release()
}

func (p *Pool) release() error {
	if p.released {
		return nil
	}
	if p.engine.PortIsEnabled(p.port) {
		if err := check(p.engine.PortDisable(p.port), "disable port before destroying %s", p); err != nil {
			return err
		}
	}
	p.released = true
	p.owner.owned.remove(p.slot)
	p.engine.PoolDestroy(p.port, p.handle.Raw())
	Logger().Debug("pool destroyed", zap.Stringer("pool", p))
	return nil
}
