// Package mmaltest provides an in-memory mmal.Engine for tests and for
// exercising pipelines away from VideoCore hardware.
//
// The simulator models the engine's resource table and its ownership
// rules, not media processing: buffers sent to an input port come back
// through the port's handler, and Emit fills buffers on output ports.
// Handlers run on one dispatch goroutine per Engine, never on the caller's
// goroutine. Close stops it.
//
// Teardown mistakes a real engine would punish with a crash or a leak
// (destroying a pool through a destroyed or still enabled port, destroying
// a component that still has pools or connections, double destruction) are
// recorded and reported by Violations.
package mmaltest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/thesyncim/mmal"
)

// Op names an engine entry point.
type Op string

const (
	OpComponentCreate     Op = "component_create"
	OpComponentDestroy    Op = "component_destroy"
	OpComponentEnable     Op = "component_enable"
	OpComponentDisable    Op = "component_disable"
	OpFormatCommit        Op = "format_commit"
	OpFormatCopy          Op = "format_copy"
	OpParameterSet        Op = "parameter_set"
	OpParameterGet        Op = "parameter_get"
	OpParameterSetUint32  Op = "parameter_set_uint32"
	OpParameterSetBoolean Op = "parameter_set_boolean"
	OpPortEnable          Op = "port_enable"
	OpPortDisable         Op = "port_disable"
	OpPortFlush           Op = "port_flush"
	OpPortSendBuffer      Op = "port_send_buffer"
	OpPoolCreate          Op = "pool_create"
	OpPoolDestroy         Op = "pool_destroy"
	OpConnectionCreate    Op = "connection_create"
	OpConnectionDestroy   Op = "connection_destroy"
	OpConnectionEnable    Op = "connection_enable"
	OpConnectionDisable   Op = "connection_disable"
)

// Call records one control-plane call made on the Engine.
type Call struct {
	Op     Op
	Target uintptr
	Peer   uintptr
	Name   string
	Count  uint32
	Size   uint32
	Flags  mmal.ConnectionFlags
	Param  mmal.ParameterID
	Value  uint32
	Bool   bool
	Status mmal.Status
}

// ComponentSpec describes a component the Engine can create.
type ComponentSpec struct {
	Inputs  int
	Outputs int
	Clocks  int
	// Buffer settings every data port starts with.
	Requirements mmal.BufferRequirements
	// Accept decides format commits; nil accepts every format.
	Accept func(port mmal.PortInfo, f *mmal.Format) mmal.Status
}

// DefaultRequirements are the buffer settings of ports whose spec leaves
// them zero.
var DefaultRequirements = mmal.BufferRequirements{
	NumMin:          1,
	SizeMin:         2048,
	AlignmentMin:    16,
	NumRecommended:  3,
	SizeRecommended: 81920,
}

// Stats counts live engine resources.
type Stats struct {
	Components  int
	Pools       int
	Connections int
	Buffers     int
	Handlers    int
}

type component struct {
	ptr     mmal.ComponentPtr
	name    string
	spec    ComponentSpec
	enabled bool
	control *port
	inputs  []*port
	outputs []*port
	clocks  []*port
}

type port struct {
	ptr       mmal.PortPtr
	info      mmal.PortInfo
	comp      *component
	enabled   bool
	bufferNum uint32
	bufSize   uint32
	req       mmal.BufferRequirements
	format    *mmal.Format
	cb        mmal.EngineCallback
	queue     []*buffer
	params    map[mmal.ParameterID]mmal.Record
	conn      *connection
	consumed  [][]byte
}

type pool struct {
	ptr  mmal.PoolPtr
	port mmal.PortPtr
	all  []*buffer
	free []*buffer
}

type buffer struct {
	ptr  mmal.BufferPtr
	hdr  mmal.BufferHeader
	pool *pool
}

type connection struct {
	ptr     mmal.ConnectionPtr
	out, in *port
	flags   mmal.ConnectionFlags
	enabled bool
}

// Engine is an in-memory mmal.Engine.
type Engine struct {
	mu         sync.Mutex
	next       uintptr
	specs      map[string]ComponentSpec
	components map[mmal.ComponentPtr]*component
	ports      map[mmal.PortPtr]*port
	pools      map[mmal.PoolPtr]*pool
	conns      map[mmal.ConnectionPtr]*connection
	buffers    map[mmal.BufferPtr]*buffer
	failures   map[Op]mmal.Status
	calls      []Call
	violations []string

	work      chan func()
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ mmal.Engine = (*Engine)(nil)

// New returns an Engine with the default VideoCore components registered
// and starts its dispatch goroutine.
func New() *Engine {
	e := &Engine{
		next:       0x1000,
		specs:      make(map[string]ComponentSpec),
		components: make(map[mmal.ComponentPtr]*component),
		ports:      make(map[mmal.PortPtr]*port),
		pools:      make(map[mmal.PoolPtr]*pool),
		conns:      make(map[mmal.ConnectionPtr]*connection),
		buffers:    make(map[mmal.BufferPtr]*buffer),
		failures:   make(map[Op]mmal.Status),
		work:       make(chan func(), 64),
		done:       make(chan struct{}),
	}
	for name, spec := range defaultComponents {
		e.specs[name] = spec
	}
	e.wg.Add(1)
	go e.dispatch()
	return e
}

var defaultComponents = map[string]ComponentSpec{
	mmal.ComponentCamera:        {Outputs: 3},
	mmal.ComponentVideoEncoder:  {Inputs: 1, Outputs: 1},
	mmal.ComponentVideoDecoder:  {Inputs: 1, Outputs: 1},
	mmal.ComponentVideoRenderer: {Inputs: 1},
	mmal.ComponentVideoSplitter: {Inputs: 1, Outputs: 4},
	mmal.ComponentImageEncoder:  {Inputs: 1, Outputs: 1},
	mmal.ComponentImageDecoder:  {Inputs: 1, Outputs: 1},
	mmal.ComponentResizer:       {Inputs: 1, Outputs: 1},
	mmal.ComponentISP:           {Inputs: 1, Outputs: 2},
	mmal.ComponentNullSink:      {Inputs: 1},
}

// Register makes name creatable with the given spec, replacing any
// previous registration.
func (e *Engine) Register(name string, spec ComponentSpec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.specs[name] = spec
}

// Fail makes every later call to op return st. Success clears it.
func (e *Engine) Fail(op Op, st mmal.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st == mmal.Success {
		delete(e.failures, op)
		return
	}
	e.failures[op] = st
}

// Calls returns the recorded control-plane calls in order.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallsTo returns the recorded calls to op in order.
func (e *Engine) CallsTo(op Op) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Violations returns the teardown-order violations observed so far.
func (e *Engine) Violations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.violations...)
}

// Stats counts live resources.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{
		Components:  len(e.components),
		Pools:       len(e.pools),
		Connections: len(e.conns),
		Buffers:     len(e.buffers),
	}
	for _, p := range e.ports {
		if p.cb != nil {
			s.Handlers++
		}
	}
	return s
}

// Consumed returns copies of the payloads an input port has consumed,
// through SendBuffer or an enabled tunnel.
func (e *Engine) Consumed(p mmal.PortPtr) [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pt, ok := e.ports[p]; ok {
		return append([][]byte(nil), pt.consumed...)
	}
	return nil
}

// Parameter returns the last record stored for id on p.
func (e *Engine) Parameter(p mmal.PortPtr, id mmal.ParameterID) (mmal.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pt, ok := e.ports[p]
	if !ok {
		return nil, false
	}
	r, ok := pt.params[id]
	return append(mmal.Record(nil), r...), ok
}

// Close stops the dispatch goroutine. Queued handler invocations still
// run first.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
	})
}

func (e *Engine) dispatch() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.work:
			fn()
		case <-e.done:
			for {
				select {
				case fn := <-e.work:
					fn()
				default:
					return
				}
			}
		}
	}
}

// post queues fn on the dispatch goroutine. It reports false once the
// Engine is closed.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.work <- fn:
		return true
	case <-e.done:
		return false
	}
}

// Sync waits until every handler invocation queued so far has run.
func (e *Engine) Sync() {
	ch := make(chan struct{})
	if !e.post(func() { close(ch) }) {
		return
	}
	<-ch
}

// Emit fills a buffer on the output port p with payload and hands it to
// the port's handler on the dispatch goroutine. Buffers sent to the port
// are used first. When p feeds an enabled connection the payload goes to
// the connected input port instead.
func (e *Engine) Emit(p mmal.PortPtr, payload []byte, flags mmal.BufferFlags, pts int64) error {
	e.mu.Lock()
	pt, ok := e.ports[p]
	if !ok {
		e.mu.Unlock()
		return errors.Errorf("emit on unknown port %#x", uintptr(p))
	}
	if pt.conn != nil && pt.conn.enabled && pt.conn.out == pt {
		pt.conn.in.consumed = append(pt.conn.in.consumed, append([]byte(nil), payload...))
		e.mu.Unlock()
		return nil
	}
	if !pt.enabled || pt.cb == nil {
		e.mu.Unlock()
		return errors.Errorf("emit on %s: port not enabled", pt.info.Name)
	}

	var b *buffer
	if len(pt.queue) > 0 {
		b = pt.queue[0]
		pt.queue = pt.queue[1:]
	} else {
		b = e.newBuffer(uint32(len(payload)), nil)
	}
	n := copy(b.hdr.Data, payload)
	b.hdr.Offset = 0
	b.hdr.Length = uint32(n)
	b.hdr.Flags = flags
	b.hdr.PTS = pts
	b.hdr.DTS = mmal.TimeUnknown
	cb, bp := pt.cb, b.ptr
	e.mu.Unlock()

	if !e.post(func() { cb(p, bp) }) {
		return errors.New("emit: engine closed")
	}
	return nil
}

func (e *Engine) alloc() uintptr {
	e.next += 0x10
	return e.next
}

func (e *Engine) newBuffer(size uint32, pl *pool) *buffer {
	b := &buffer{
		ptr:  mmal.BufferPtr(e.alloc()),
		hdr:  mmal.BufferHeader{Data: make([]byte, size), PTS: mmal.TimeUnknown, DTS: mmal.TimeUnknown},
		pool: pl,
	}
	e.buffers[b.ptr] = b
	return b
}

func (e *Engine) violate(format string, args ...any) {
	e.violations = append(e.violations, fmt.Sprintf(format, args...))
}

// record appends a call and returns the injected status for op, if any.
// Callers hold e.mu.
func (e *Engine) record(c Call) mmal.Status {
	c.Status = e.failures[c.Op]
	e.calls = append(e.calls, c)
	return c.Status
}

func (e *Engine) newPort(c *component, typ mmal.PortType, tag string, index int) *port {
	req := c.spec.Requirements
	if req == (mmal.BufferRequirements{}) {
		req = DefaultRequirements
	}
	es := &mmal.ESSpecificFormat{}
	p := &port{
		ptr:  mmal.PortPtr(e.alloc()),
		comp: c,
		info: mmal.PortInfo{
			Name:  fmt.Sprintf("%s:%s:%d", c.name, tag, index),
			Type:  typ,
			Index: uint16(index),
		},
		req:       req,
		bufferNum: req.NumRecommended,
		bufSize:   req.SizeRecommended,
		format:    &mmal.Format{ES: es},
		params:    make(map[mmal.ParameterID]mmal.Record),
	}
	if typ == mmal.PortTypeControl {
		p.req = mmal.BufferRequirements{}
		p.bufferNum, p.bufSize = 0, 0
		p.format.Type = mmal.ESTypeControl
	}
	e.ports[p.ptr] = p
	return p
}

// ComponentCreate implements mmal.Engine.
func (e *Engine) ComponentCreate(name string) (mmal.ComponentPtr, mmal.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpComponentCreate, Name: name}); st != mmal.Success {
		return 0, st
	}
	spec, ok := e.specs[name]
	if !ok {
		return 0, mmal.ENOSYS
	}
	c := &component{ptr: mmal.ComponentPtr(e.alloc()), name: name, spec: spec}
	c.control = e.newPort(c, mmal.PortTypeControl, "ctr", 0)
	for i := 0; i < spec.Inputs; i++ {
		c.inputs = append(c.inputs, e.newPort(c, mmal.PortTypeInput, "in", i))
	}
	for i := 0; i < spec.Outputs; i++ {
		c.outputs = append(c.outputs, e.newPort(c, mmal.PortTypeOutput, "out", i))
	}
	for i := 0; i < spec.Clocks; i++ {
		c.clocks = append(c.clocks, e.newPort(c, mmal.PortTypeClock, "clk", i))
	}
	e.components[c.ptr] = c
	return c.ptr, mmal.Success
}

func (c *component) allPorts() []*port {
	ports := []*port{c.control}
	ports = append(ports, c.inputs...)
	ports = append(ports, c.outputs...)
	return append(ports, c.clocks...)
}

// ComponentDestroy implements mmal.Engine.
func (e *Engine) ComponentDestroy(cp mmal.ComponentPtr) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpComponentDestroy, Target: uintptr(cp)}); st != mmal.Success {
		return st
	}
	c, ok := e.components[cp]
	if !ok {
		e.violate("component %#x destroyed twice", uintptr(cp))
		return mmal.EINVAL
	}
	for _, p := range c.allPorts() {
		if p.conn != nil {
			e.violate("component %s destroyed with live connection on %s", c.name, p.info.Name)
		}
		for _, pl := range e.pools {
			if pl.port == p.ptr {
				e.violate("component %s destroyed with live pool on %s", c.name, p.info.Name)
			}
		}
		for _, b := range p.queue {
			delete(e.buffers, b.ptr)
		}
		delete(e.ports, p.ptr)
	}
	delete(e.components, cp)
	return mmal.Success
}

// ComponentEnable implements mmal.Engine.
func (e *Engine) ComponentEnable(cp mmal.ComponentPtr) mmal.Status {
	return e.setComponent(OpComponentEnable, cp, true)
}

// ComponentDisable implements mmal.Engine.
func (e *Engine) ComponentDisable(cp mmal.ComponentPtr) mmal.Status {
	return e.setComponent(OpComponentDisable, cp, false)
}

func (e *Engine) setComponent(op Op, cp mmal.ComponentPtr, enabled bool) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: op, Target: uintptr(cp)}); st != mmal.Success {
		return st
	}
	c, ok := e.components[cp]
	if !ok {
		return mmal.EINVAL
	}
	c.enabled = enabled
	return mmal.Success
}

// ComponentIsEnabled implements mmal.Engine.
func (e *Engine) ComponentIsEnabled(cp mmal.ComponentPtr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.components[cp]
	return ok && c.enabled
}

func ptrs(ports []*port) []mmal.PortPtr {
	if len(ports) == 0 {
		return nil
	}
	out := make([]mmal.PortPtr, len(ports))
	for i, p := range ports {
		out[i] = p.ptr
	}
	return out
}

// ComponentPorts implements mmal.Engine.
func (e *Engine) ComponentPorts(cp mmal.ComponentPtr) mmal.ComponentPorts {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.components[cp]
	if !ok {
		return mmal.ComponentPorts{}
	}
	return mmal.ComponentPorts{
		Control: c.control.ptr,
		Inputs:  ptrs(c.inputs),
		Outputs: ptrs(c.outputs),
		Clocks:  ptrs(c.clocks),
	}
}

// port looks up p. Callers hold e.mu.
func (e *Engine) port(p mmal.PortPtr) *port {
	if pt, ok := e.ports[p]; ok {
		return pt
	}
	return &port{params: map[mmal.ParameterID]mmal.Record{}}
}

// PortInfo implements mmal.Engine.
func (e *Engine) PortInfo(p mmal.PortPtr) mmal.PortInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port(p).info
}

// PortIsEnabled implements mmal.Engine.
func (e *Engine) PortIsEnabled(p mmal.PortPtr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port(p).enabled
}

// PortBufferNum implements mmal.Engine.
func (e *Engine) PortBufferNum(p mmal.PortPtr) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port(p).bufferNum
}

// PortSetBufferNum implements mmal.Engine.
func (e *Engine) PortSetBufferNum(p mmal.PortPtr, n uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.port(p).bufferNum = n
}

// PortBufferSize implements mmal.Engine.
func (e *Engine) PortBufferSize(p mmal.PortPtr) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port(p).bufSize
}

// PortSetBufferSize implements mmal.Engine.
func (e *Engine) PortSetBufferSize(p mmal.PortPtr, n uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.port(p).bufSize = n
}

// PortBufferRequirements implements mmal.Engine.
func (e *Engine) PortBufferRequirements(p mmal.PortPtr) mmal.BufferRequirements {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port(p).req
}

// PortFormat implements mmal.Engine.
func (e *Engine) PortFormat(p mmal.PortPtr) *mmal.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	pt, ok := e.ports[p]
	if !ok {
		return nil
	}
	return pt.format
}

// PortFormatCommit implements mmal.Engine. Commits are rejected on enabled
// ports and by the component spec's Accept hook. A committed video format
// raises the minimum buffer size to one I420 frame.
func (e *Engine) PortFormatCommit(p mmal.PortPtr) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpFormatCommit, Target: uintptr(p)}); st != mmal.Success {
		return st
	}
	pt, ok := e.ports[p]
	if !ok || pt.enabled {
		return mmal.EINVAL
	}
	if accept := pt.comp.spec.Accept; accept != nil {
		if st := accept(pt.info, pt.format); st != mmal.Success {
			return st
		}
	}
	if v := pt.format.Video(); pt.format.Type == mmal.ESTypeVideo && v != nil && !pt.format.Encoding.Compressed() {
		if frame := v.Width * v.Height * 3 / 2; frame > pt.req.SizeMin {
			pt.req.SizeMin = frame
			pt.req.SizeRecommended = frame
		}
	}
	return mmal.Success
}

// FormatFullCopy implements mmal.Engine.
func (e *Engine) FormatFullCopy(dst, src *mmal.Format) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpFormatCopy}); st != mmal.Success {
		return st
	}
	if dst == nil || src == nil {
		return mmal.EINVAL
	}
	es := dst.ES
	*dst = *src
	dst.ES = es
	if es != nil && src.ES != nil {
		*es = *src.ES
	}
	dst.Extradata, dst.ExtradataSize = nil, 0
	if extra := src.ExtraData(); len(extra) > 0 {
		buf := append([]byte(nil), extra...)
		dst.Extradata = &buf[0]
		dst.ExtradataSize = uint32(len(buf))
	}
	return mmal.Success
}

// PortParameterSet implements mmal.Engine.
func (e *Engine) PortParameterSet(p mmal.PortPtr, rec mmal.Record) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpParameterSet, Target: uintptr(p), Param: rec.ID(), Size: rec.Size()}); st != mmal.Success {
		return st
	}
	pt, ok := e.ports[p]
	if !ok {
		return mmal.EINVAL
	}
	pt.params[rec.ID()] = append(mmal.Record(nil), rec[:rec.Size()]...)
	return mmal.Success
}

// PortParameterGet implements mmal.Engine. It returns ENOSYS for a
// parameter never set on the port.
func (e *Engine) PortParameterGet(p mmal.PortPtr, rec mmal.Record) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpParameterGet, Target: uintptr(p), Param: rec.ID(), Size: rec.Size()}); st != mmal.Success {
		return st
	}
	pt, ok := e.ports[p]
	if !ok {
		return mmal.EINVAL
	}
	stored, ok := pt.params[rec.ID()]
	if !ok {
		return mmal.ENOSYS
	}
	if len(stored) > int(rec.Size()) {
		return mmal.ENOSPC
	}
	copy(rec[mmal.RecordHeaderSize:rec.Size()], stored.Body())
	return mmal.Success
}

// PortParameterSetUint32 implements mmal.Engine.
func (e *Engine) PortParameterSetUint32(p mmal.PortPtr, id mmal.ParameterID, v uint32) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpParameterSetUint32, Target: uintptr(p), Param: id, Value: v}); st != mmal.Success {
		return st
	}
	pt, ok := e.ports[p]
	if !ok {
		return mmal.EINVAL
	}
	pt.params[id] = mmal.NewRecordUint32(id, v)
	return mmal.Success
}

// PortParameterSetBoolean implements mmal.Engine.
func (e *Engine) PortParameterSetBoolean(p mmal.PortPtr, id mmal.ParameterID, v bool) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpParameterSetBoolean, Target: uintptr(p), Param: id, Bool: v}); st != mmal.Success {
		return st
	}
	pt, ok := e.ports[p]
	if !ok {
		return mmal.EINVAL
	}
	var word uint32
	if v {
		word = 1
	}
	pt.params[id] = mmal.NewRecordUint32(id, word)
	return mmal.Success
}

// PortEnable implements mmal.Engine. Enabling an enabled port fails with
// EINVAL, as does a nil callback on a port not fed by a connection.
func (e *Engine) PortEnable(p mmal.PortPtr, cb mmal.EngineCallback) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpPortEnable, Target: uintptr(p)}); st != mmal.Success {
		return st
	}
	pt, ok := e.ports[p]
	if !ok || pt.enabled {
		return mmal.EINVAL
	}
	if cb == nil && pt.conn == nil {
		return mmal.EINVAL
	}
	pt.enabled = true
	pt.cb = cb
	return mmal.Success
}

// PortDisable implements mmal.Engine. Buffers queued on the port come back
// through its handler before PortDisable returns.
func (e *Engine) PortDisable(p mmal.PortPtr) mmal.Status {
	e.mu.Lock()
	if st := e.record(Call{Op: OpPortDisable, Target: uintptr(p)}); st != mmal.Success {
		e.mu.Unlock()
		return st
	}
	pt, ok := e.ports[p]
	if !ok || !pt.enabled {
		e.mu.Unlock()
		return mmal.EINVAL
	}
	queued, cb := e.takeQueue(pt)
	pt.enabled = false
	pt.cb = nil
	e.mu.Unlock()

	e.returnBuffers(p, cb, queued)
	return mmal.Success
}

// PortFlush implements mmal.Engine.
func (e *Engine) PortFlush(p mmal.PortPtr) mmal.Status {
	e.mu.Lock()
	if st := e.record(Call{Op: OpPortFlush, Target: uintptr(p)}); st != mmal.Success {
		e.mu.Unlock()
		return st
	}
	pt, ok := e.ports[p]
	if !ok {
		e.mu.Unlock()
		return mmal.EINVAL
	}
	queued, cb := e.takeQueue(pt)
	e.mu.Unlock()

	e.returnBuffers(p, cb, queued)
	return mmal.Success
}

func (e *Engine) takeQueue(pt *port) ([]mmal.BufferPtr, mmal.EngineCallback) {
	queued := make([]mmal.BufferPtr, len(pt.queue))
	for i, b := range pt.queue {
		b.hdr.Length = 0
		queued[i] = b.ptr
	}
	pt.queue = nil
	return queued, pt.cb
}

// returnBuffers hands bufs to cb on the dispatch goroutine and waits.
func (e *Engine) returnBuffers(p mmal.PortPtr, cb mmal.EngineCallback, bufs []mmal.BufferPtr) {
	if cb == nil || len(bufs) == 0 {
		return
	}
	for _, b := range bufs {
		b := b
		e.post(func() { cb(p, b) })
	}
	e.Sync()
}

// PortSendBuffer implements mmal.Engine. Buffers sent to an input port are
// consumed and come back through the handler; buffers sent to an output
// port wait for Emit.
//
// The handler is posted after e.mu is released: a full dispatch queue
// blocks the sender, and the handler it waits for may itself need e.mu.
func (e *Engine) PortSendBuffer(p mmal.PortPtr, bp mmal.BufferPtr) mmal.Status {
	cb, st := e.consume(p, bp)
	if st == mmal.Success && cb != nil {
		e.post(func() { cb(p, bp) })
	}
	return st
}

// consume queues or consumes bp and returns the callback to hand it back
// through, if any.
func (e *Engine) consume(p mmal.PortPtr, bp mmal.BufferPtr) (mmal.EngineCallback, mmal.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpPortSendBuffer, Target: uintptr(p), Peer: uintptr(bp)}); st != mmal.Success {
		return nil, st
	}
	pt, ok := e.ports[p]
	if !ok || !pt.enabled {
		return nil, mmal.EINVAL
	}
	b, ok := e.buffers[bp]
	if !ok {
		return nil, mmal.EINVAL
	}
	if pt.info.Type != mmal.PortTypeInput {
		pt.queue = append(pt.queue, b)
		return nil, mmal.Success
	}

	end := b.hdr.Offset + b.hdr.Length
	if end > uint32(len(b.hdr.Data)) {
		end = uint32(len(b.hdr.Data))
	}
	pt.consumed = append(pt.consumed, append([]byte(nil), b.hdr.Data[b.hdr.Offset:end]...))
	b.hdr.Length = 0
	return pt.cb, mmal.Success
}

// PoolCreate implements mmal.Engine.
func (e *Engine) PoolCreate(p mmal.PortPtr, headers, payloadSize uint32) mmal.PoolPtr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpPoolCreate, Target: uintptr(p), Count: headers, Size: payloadSize}); st != mmal.Success {
		return 0
	}
	if _, ok := e.ports[p]; !ok || headers == 0 {
		return 0
	}
	pl := &pool{ptr: mmal.PoolPtr(e.alloc()), port: p}
	for i := uint32(0); i < headers; i++ {
		b := e.newBuffer(payloadSize, pl)
		pl.all = append(pl.all, b)
		pl.free = append(pl.free, b)
	}
	e.pools[pl.ptr] = pl
	return pl.ptr
}

// PoolDestroy implements mmal.Engine.
func (e *Engine) PoolDestroy(p mmal.PortPtr, pp mmal.PoolPtr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record(Call{Op: OpPoolDestroy, Target: uintptr(pp), Peer: uintptr(p)})
	pl, ok := e.pools[pp]
	if !ok {
		e.violate("pool %#x destroyed twice", uintptr(pp))
		return
	}
	if pt, ok := e.ports[p]; !ok {
		e.violate("pool %#x destroyed through dead port %#x", uintptr(pp), uintptr(p))
	} else if pt.enabled {
		e.violate("pool %#x destroyed while port %s is enabled", uintptr(pp), pt.info.Name)
	}
	if pl.port != p {
		e.violate("pool %#x destroyed through port %#x, created on %#x", uintptr(pp), uintptr(p), uintptr(pl.port))
	}
	for _, b := range pl.all {
		delete(e.buffers, b.ptr)
	}
	delete(e.pools, pp)
}

// PoolGet implements mmal.Engine.
func (e *Engine) PoolGet(pp mmal.PoolPtr) mmal.BufferPtr {
	e.mu.Lock()
	defer e.mu.Unlock()
	pl, ok := e.pools[pp]
	if !ok || len(pl.free) == 0 {
		return 0
	}
	b := pl.free[0]
	pl.free = pl.free[1:]
	return b.ptr
}

// PoolLength implements mmal.Engine.
func (e *Engine) PoolLength(pp mmal.PoolPtr) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pl, ok := e.pools[pp]; ok {
		return len(pl.free)
	}
	return 0
}

// PoolHeaders implements mmal.Engine.
func (e *Engine) PoolHeaders(pp mmal.PoolPtr) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pl, ok := e.pools[pp]; ok {
		return len(pl.all)
	}
	return 0
}

// ConnectionCreate implements mmal.Engine. out must be an output or clock
// port, in an input or clock port, and neither may be connected already.
func (e *Engine) ConnectionCreate(out, in mmal.PortPtr, flags mmal.ConnectionFlags) (mmal.ConnectionPtr, mmal.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpConnectionCreate, Target: uintptr(out), Peer: uintptr(in), Flags: flags}); st != mmal.Success {
		return 0, st
	}
	po, ok1 := e.ports[out]
	pi, ok2 := e.ports[in]
	if !ok1 || !ok2 {
		return 0, mmal.EINVAL
	}
	if po.info.Type == mmal.PortTypeInput || pi.info.Type == mmal.PortTypeOutput {
		return 0, mmal.EINVAL
	}
	if po.conn != nil || pi.conn != nil {
		return 0, mmal.EISCONN
	}
	c := &connection{ptr: mmal.ConnectionPtr(e.alloc()), out: po, in: pi, flags: flags}
	po.conn, pi.conn = c, c
	e.conns[c.ptr] = c
	return c.ptr, mmal.Success
}

// ConnectionDestroy implements mmal.Engine.
func (e *Engine) ConnectionDestroy(cp mmal.ConnectionPtr) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpConnectionDestroy, Target: uintptr(cp)}); st != mmal.Success {
		return st
	}
	c, ok := e.conns[cp]
	if !ok {
		e.violate("connection %#x destroyed twice", uintptr(cp))
		return mmal.EINVAL
	}
	for _, p := range []*port{c.out, c.in} {
		if _, live := e.ports[p.ptr]; !live {
			e.violate("connection %#x destroyed after its port %s", uintptr(cp), p.info.Name)
		}
		p.conn = nil
		if c.enabled {
			p.enabled = false
		}
	}
	delete(e.conns, cp)
	return mmal.Success
}

// ConnectionEnable implements mmal.Engine. Both ports are enabled with it.
func (e *Engine) ConnectionEnable(cp mmal.ConnectionPtr) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpConnectionEnable, Target: uintptr(cp)}); st != mmal.Success {
		return st
	}
	c, ok := e.conns[cp]
	if !ok {
		return mmal.EINVAL
	}
	c.enabled = true
	c.out.enabled, c.in.enabled = true, true
	return mmal.Success
}

// ConnectionDisable implements mmal.Engine.
func (e *Engine) ConnectionDisable(cp mmal.ConnectionPtr) mmal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.record(Call{Op: OpConnectionDisable, Target: uintptr(cp)}); st != mmal.Success {
		return st
	}
	c, ok := e.conns[cp]
	if !ok {
		return mmal.EINVAL
	}
	c.enabled = false
	c.out.enabled, c.in.enabled = false, false
	return mmal.Success
}

// ConnectionIsEnabled implements mmal.Engine.
func (e *Engine) ConnectionIsEnabled(cp mmal.ConnectionPtr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[cp]
	return ok && c.enabled
}

// BufferHeader implements mmal.Engine.
func (e *Engine) BufferHeader(bp mmal.BufferPtr) mmal.BufferHeader {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.buffers[bp]; ok {
		return b.hdr
	}
	return mmal.BufferHeader{}
}

// BufferUpdate implements mmal.Engine.
func (e *Engine) BufferUpdate(bp mmal.BufferPtr, h mmal.BufferHeader) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.buffers[bp]
	if !ok {
		return
	}
	b.hdr.Offset = h.Offset
	b.hdr.Length = h.Length
	b.hdr.Flags = h.Flags
	b.hdr.PTS = h.PTS
	b.hdr.DTS = h.DTS
}

// BufferRelease implements mmal.Engine. Pool buffers go back to their
// pool; other buffers are freed.
func (e *Engine) BufferRelease(bp mmal.BufferPtr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.buffers[bp]
	if !ok {
		e.violate("buffer %#x released twice", uintptr(bp))
		return
	}
	if b.pool == nil {
		delete(e.buffers, bp)
		return
	}
	b.hdr.Offset, b.hdr.Length, b.hdr.Flags = 0, 0, 0
	for _, free := range b.pool.free {
		if free == b {
			e.violate("buffer %#x released twice", uintptr(bp))
			return
		}
	}
	b.pool.free = append(b.pool.free, b)
}

// Names returns the registered component names in order.
func (e *Engine) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.specs))
	for name := range e.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
