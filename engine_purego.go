//go:build linux

// Engine backed by the VideoCore libmmal libraries, loaded with purego.

package mmal

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	mmalLoadMu  sync.Mutex
	mmalLoaded  bool
	mmalHandles []uintptr
)

// libmmal function pointers
var (
	mmalComponentCreate  func(name string, component *uintptr) int32
	mmalComponentDestroy func(component uintptr) int32
	mmalComponentEnable  func(component uintptr) int32
	mmalComponentDisable func(component uintptr) int32

	mmalPortFormatCommit        func(port uintptr) int32
	mmalFormatFullCopy          func(dst, src uintptr) int32
	mmalPortParameterSet        func(port, param uintptr) int32
	mmalPortParameterGet        func(port, param uintptr) int32
	mmalPortParameterSetUint32  func(port uintptr, id, value uint32) int32
	mmalPortParameterSetBoolean func(port uintptr, id uint32, value int32) int32
	mmalPortEnable              func(port, cb uintptr) int32
	mmalPortDisable             func(port uintptr) int32
	mmalPortFlush               func(port uintptr) int32
	mmalPortSendBuffer          func(port, buffer uintptr) int32

	mmalPortPoolCreate  func(port uintptr, headers, payloadSize uint32) uintptr
	mmalPortPoolDestroy func(port, pool uintptr)
	mmalQueueGet        func(queue uintptr) uintptr
	mmalQueueLength     func(queue uintptr) uint32

	mmalConnectionCreate  func(connection *uintptr, out, in uintptr, flags uint32) int32
	mmalConnectionDestroy func(connection uintptr) int32
	mmalConnectionEnable  func(connection uintptr) int32
	mmalConnectionDisable func(connection uintptr) int32

	mmalBufferHeaderRelease func(header uintptr)
)

// cComponent mirrors MMAL_COMPONENT_T.
type cComponent struct {
	priv      uintptr
	userdata  uintptr
	name      uintptr
	isEnabled uint32
	control   uintptr
	inputNum  uint32
	input     uintptr
	outputNum uint32
	output    uintptr
	clockNum  uint32
	clock     uintptr
	portNum   uint32
	port      uintptr
	id        uint32
}

// cPort mirrors MMAL_PORT_T.
type cPort struct {
	priv                  uintptr
	name                  uintptr
	typ                   uint32
	index                 uint16
	indexAll              uint16
	isEnabled             uint32
	format                *Format
	bufferNumMin          uint32
	bufferSizeMin         uint32
	bufferAlignmentMin    uint32
	bufferNumRecommended  uint32
	bufferSizeRecommended uint32
	bufferNum             uint32
	bufferSize            uint32
	component             uintptr
	userdata              uintptr
	capabilities          uint32
}

// cPool mirrors MMAL_POOL_T.
type cPool struct {
	queue      uintptr
	headersNum uint32
	header     uintptr
}

// cConnection mirrors the leading fields of MMAL_CONNECTION_T.
type cConnection struct {
	userData  uintptr
	callback  uintptr
	isEnabled uint32
	flags     uint32
}

// cBuffer mirrors MMAL_BUFFER_HEADER_T.
type cBuffer struct {
	next      uintptr
	priv      uintptr
	cmd       uint32
	data      uintptr
	allocSize uint32
	length    uint32
	offset    uint32
	flags     uint32
	pts       int64
	dts       int64
	typ       uintptr
	userData  uintptr
}

func loadMMAL(cfg LibraryConfig) error {
	mmalLoadMu.Lock()
	defer mmalLoadMu.Unlock()

	if mmalLoaded {
		return nil
	}

	var handles []uintptr
	for _, lib := range cfg.libraries() {
		h, err := dlopenFirst(cfg.candidatePaths(lib))
		if err != nil {
			for _, opened := range handles {
				purego.Dlclose(opened)
			}
			return errors.Wrapf(err, "failed to load %s", lib)
		}
		handles = append(handles, h)
	}

	if err := loadMMALSymbols(handles); err != nil {
		for _, opened := range handles {
			purego.Dlclose(opened)
		}
		return err
	}

	mmalHandles = handles
	mmalLoaded = true
	return nil
}

func dlopenFirst(paths []string) (uintptr, error) {
	var lastErr error
	for _, path := range paths {
		h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return h, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate paths")
	}
	return 0, lastErr
}

func loadMMALSymbols(handles []uintptr) error {
	symbols := []struct {
		fn   any
		name string
	}{
		{&mmalComponentCreate, "mmal_component_create"},
		{&mmalComponentDestroy, "mmal_component_destroy"},
		{&mmalComponentEnable, "mmal_component_enable"},
		{&mmalComponentDisable, "mmal_component_disable"},
		{&mmalPortFormatCommit, "mmal_port_format_commit"},
		{&mmalFormatFullCopy, "mmal_format_full_copy"},
		{&mmalPortParameterSet, "mmal_port_parameter_set"},
		{&mmalPortParameterGet, "mmal_port_parameter_get"},
		{&mmalPortParameterSetUint32, "mmal_port_parameter_set_uint32"},
		{&mmalPortParameterSetBoolean, "mmal_port_parameter_set_boolean"},
		{&mmalPortEnable, "mmal_port_enable"},
		{&mmalPortDisable, "mmal_port_disable"},
		{&mmalPortFlush, "mmal_port_flush"},
		{&mmalPortSendBuffer, "mmal_port_send_buffer"},
		{&mmalPortPoolCreate, "mmal_port_pool_create"},
		{&mmalPortPoolDestroy, "mmal_port_pool_destroy"},
		{&mmalQueueGet, "mmal_queue_get"},
		{&mmalQueueLength, "mmal_queue_length"},
		{&mmalConnectionCreate, "mmal_connection_create"},
		{&mmalConnectionDestroy, "mmal_connection_destroy"},
		{&mmalConnectionEnable, "mmal_connection_enable"},
		{&mmalConnectionDisable, "mmal_connection_disable"},
		{&mmalBufferHeaderRelease, "mmal_buffer_header_release"},
	}

	var missing []string
	for _, s := range symbols {
		addr := dlsymAny(handles, s.name)
		if addr == 0 {
			missing = append(missing, s.name)
			continue
		}
		purego.RegisterFunc(s.fn, addr)
	}
	if len(missing) > 0 {
		return fmt.Errorf("libmmal symbols not found: %s", strings.Join(missing, ", "))
	}
	return nil
}

func dlsymAny(handles []uintptr, name string) uintptr {
	for _, h := range handles {
		if addr, err := purego.Dlsym(h, name); err == nil && addr != 0 {
			return addr
		}
	}
	return 0
}

// IsAvailable checks if libmmal can be loaded with the environment's
// LibraryConfig.
func IsAvailable() bool {
	return loadMMAL(LoadLibraryConfig()) == nil
}

// Global callback state for purego
var (
	portCallbacksMu sync.RWMutex
	portCallbacks   = make(map[PortPtr]EngineCallback)
	portCallback    uintptr
	callbackOnce    sync.Once
)

// initPortCallback initializes the purego callback once
func initPortCallback() {
	callbackOnce.Do(func() {
		portCallback = purego.NewCallback(portCallbackHandler)
	})
}

// portCallbackHandler is the MMAL_PORT_BH_CB_T every enabled port points
// at. Buffers for ports without a Go handler are released.
func portCallbackHandler(port, buffer uintptr) {
	portCallbacksMu.RLock()
	cb, ok := portCallbacks[PortPtr(port)]
	portCallbacksMu.RUnlock()

	if !ok || cb == nil {
		mmalBufferHeaderRelease(buffer)
		return
	}
	cb(PortPtr(port), BufferPtr(buffer))
}

// nativeEngine implements Engine on top of libmmal.
type nativeEngine struct{}

// OpenEngine loads libmmal and returns an Engine backed by it. Libraries
// are loaded once per process; later calls reuse them and ignore cfg.
// The VideoCore host interface must already be initialized.
func OpenEngine(cfg LibraryConfig) (Engine, error) {
	if err := loadMMAL(cfg); err != nil {
		return nil, errors.Wrap(err, "mmal engine not available")
	}
	initPortCallback()
	Logger().Debug("engine opened", zap.Int("libraries", len(mmalHandles)))
	return nativeEngine{}, nil
}

func ccomponent(c ComponentPtr) *cComponent { return (*cComponent)(unsafe.Pointer(c)) }
func cport(p PortPtr) *cPort { return (*cPort)(unsafe.Pointer(p)) }
func cpool(p PoolPtr) *cPool { return (*cPool)(unsafe.Pointer(p)) }
func cconn(c ConnectionPtr) *cConnection { return (*cConnection)(unsafe.Pointer(c)) }
func cbuf(b BufferPtr) *cBuffer { return (*cBuffer)(unsafe.Pointer(b)) }

func portList(array uintptr, n uint32) []PortPtr {
	if array == 0 || n == 0 {
		return nil
	}
	raw := unsafe.Slice((*uintptr)(unsafe.Pointer(array)), n)
	ports := make([]PortPtr, n)
	for i, p := range raw {
		ports[i] = PortPtr(p)
	}
	return ports
}

func (nativeEngine) ComponentCreate(name string) (ComponentPtr, Status) {
	out := new(uintptr)
	st := Status(mmalComponentCreate(name, out))
	return ComponentPtr(*out), st
}

func (e nativeEngine) ComponentDestroy(c ComponentPtr) Status {
	// Port pointers die with the component; collect them first.
	ports := e.ComponentPorts(c)
	st := Status(mmalComponentDestroy(uintptr(c)))
	if st == Success {
		forgetPortCallbacks(ports)
	}
	return st
}

// forgetPortCallbacks drops the handlers of ports still enabled when
// their component was destroyed.
func forgetPortCallbacks(ports ComponentPorts) {
	portCallbacksMu.Lock()
	defer portCallbacksMu.Unlock()
	delete(portCallbacks, ports.Control)
	for _, list := range [][]PortPtr{ports.Inputs, ports.Outputs, ports.Clocks} {
		for _, p := range list {
			delete(portCallbacks, p)
		}
	}
}

func (nativeEngine) ComponentEnable(c ComponentPtr) Status {
	return Status(mmalComponentEnable(uintptr(c)))
}

func (nativeEngine) ComponentDisable(c ComponentPtr) Status {
	return Status(mmalComponentDisable(uintptr(c)))
}

func (nativeEngine) ComponentIsEnabled(c ComponentPtr) bool {
	return ccomponent(c).isEnabled != 0
}

func (nativeEngine) ComponentPorts(c ComponentPtr) ComponentPorts {
	cc := ccomponent(c)
	return ComponentPorts{
		Control: PortPtr(cc.control),
		Inputs:  portList(cc.input, cc.inputNum),
		Outputs: portList(cc.output, cc.outputNum),
		Clocks:  portList(cc.clock, cc.clockNum),
	}
}

func (nativeEngine) PortInfo(p PortPtr) PortInfo {
	cp := cport(p)
	return PortInfo{
		Name:  goStringFromPtr(cp.name),
		Type:  PortType(cp.typ),
		Index: cp.index,
	}
}

func (nativeEngine) PortIsEnabled(p PortPtr) bool { return cport(p).isEnabled != 0 }
func (nativeEngine) PortBufferNum(p PortPtr) uint32 { return cport(p).bufferNum }
func (nativeEngine) PortSetBufferNum(p PortPtr, n uint32) { cport(p).bufferNum = n }
func (nativeEngine) PortBufferSize(p PortPtr) uint32 { return cport(p).bufferSize }
func (nativeEngine) PortSetBufferSize(p PortPtr, n uint32) {
	cport(p).bufferSize = n
}

func (nativeEngine) PortBufferRequirements(p PortPtr) BufferRequirements {
	cp := cport(p)
	return BufferRequirements{
		NumMin:          cp.bufferNumMin,
		SizeMin:         cp.bufferSizeMin,
		AlignmentMin:    cp.bufferAlignmentMin,
		NumRecommended:  cp.bufferNumRecommended,
		SizeRecommended: cp.bufferSizeRecommended,
	}
}

func (nativeEngine) PortFormat(p PortPtr) *Format { return cport(p).format }

func (nativeEngine) PortFormatCommit(p PortPtr) Status {
	return Status(mmalPortFormatCommit(uintptr(p)))
}

func (nativeEngine) FormatFullCopy(dst, src *Format) Status {
	return Status(mmalFormatFullCopy(uintptr(unsafe.Pointer(dst)), uintptr(unsafe.Pointer(src))))
}

func (nativeEngine) PortParameterSet(p PortPtr, rec Record) Status {
	st := Status(mmalPortParameterSet(uintptr(p), uintptr(unsafe.Pointer(&rec[0]))))
	runtime.KeepAlive(rec)
	return st
}

func (nativeEngine) PortParameterGet(p PortPtr, rec Record) Status {
	st := Status(mmalPortParameterGet(uintptr(p), uintptr(unsafe.Pointer(&rec[0]))))
	runtime.KeepAlive(rec)
	return st
}

func (nativeEngine) PortParameterSetUint32(p PortPtr, id ParameterID, v uint32) Status {
	return Status(mmalPortParameterSetUint32(uintptr(p), uint32(id), v))
}

func (nativeEngine) PortParameterSetBoolean(p PortPtr, id ParameterID, v bool) Status {
	var b int32
	if v {
		b = 1
	}
	return Status(mmalPortParameterSetBoolean(uintptr(p), uint32(id), b))
}

func (nativeEngine) PortEnable(p PortPtr, cb EngineCallback) Status {
	if cb == nil {
		return Status(mmalPortEnable(uintptr(p), 0))
	}

	portCallbacksMu.Lock()
	portCallbacks[p] = cb
	portCallbacksMu.Unlock()

	st := Status(mmalPortEnable(uintptr(p), portCallback))
	if st != Success {
		portCallbacksMu.Lock()
		delete(portCallbacks, p)
		portCallbacksMu.Unlock()
	}
	return st
}

func (nativeEngine) PortDisable(p PortPtr) Status {
	// Disabling returns outstanding buffers through the callback, so the
	// handler is dropped only afterwards.
	st := Status(mmalPortDisable(uintptr(p)))
	if st == Success {
		portCallbacksMu.Lock()
		delete(portCallbacks, p)
		portCallbacksMu.Unlock()
	}
	return st
}

func (nativeEngine) PortFlush(p PortPtr) Status {
	return Status(mmalPortFlush(uintptr(p)))
}

func (nativeEngine) PortSendBuffer(p PortPtr, b BufferPtr) Status {
	return Status(mmalPortSendBuffer(uintptr(p), uintptr(b)))
}

func (nativeEngine) PoolCreate(p PortPtr, headers, payloadSize uint32) PoolPtr {
	return PoolPtr(mmalPortPoolCreate(uintptr(p), headers, payloadSize))
}

func (nativeEngine) PoolDestroy(p PortPtr, pool PoolPtr) {
	mmalPortPoolDestroy(uintptr(p), uintptr(pool))
}

func (nativeEngine) PoolGet(pool PoolPtr) BufferPtr {
	return BufferPtr(mmalQueueGet(cpool(pool).queue))
}

func (nativeEngine) PoolLength(pool PoolPtr) int {
	return int(mmalQueueLength(cpool(pool).queue))
}

func (nativeEngine) PoolHeaders(pool PoolPtr) int {
	return int(cpool(pool).headersNum)
}

func (nativeEngine) ConnectionCreate(out, in PortPtr, flags ConnectionFlags) (ConnectionPtr, Status) {
	conn := new(uintptr)
	st := Status(mmalConnectionCreate(conn, uintptr(out), uintptr(in), uint32(flags)))
	return ConnectionPtr(*conn), st
}

func (nativeEngine) ConnectionDestroy(c ConnectionPtr) Status {
	return Status(mmalConnectionDestroy(uintptr(c)))
}

func (nativeEngine) ConnectionEnable(c ConnectionPtr) Status {
	return Status(mmalConnectionEnable(uintptr(c)))
}

func (nativeEngine) ConnectionDisable(c ConnectionPtr) Status {
	return Status(mmalConnectionDisable(uintptr(c)))
}

func (nativeEngine) ConnectionIsEnabled(c ConnectionPtr) bool {
	return cconn(c).isEnabled != 0
}

func (nativeEngine) BufferHeader(b BufferPtr) BufferHeader {
	cb := cbuf(b)
	h := BufferHeader{
		Cmd:    cb.cmd,
		Offset: cb.offset,
		Length: cb.length,
		Flags:  BufferFlags(cb.flags),
		PTS:    cb.pts,
		DTS:    cb.dts,
	}
	if cb.data != 0 && cb.allocSize > 0 {
		h.Data = unsafe.Slice((*byte)(unsafe.Pointer(cb.data)), cb.allocSize)
	}
	return h
}

func (nativeEngine) BufferUpdate(b BufferPtr, h BufferHeader) {
	cb := cbuf(b)
	cb.offset = h.Offset
	cb.length = h.Length
	cb.flags = uint32(h.Flags)
	cb.pts = h.PTS
	cb.dts = h.DTS
}

func (nativeEngine) BufferRelease(b BufferPtr) {
	mmalBufferHeaderRelease(uintptr(b))
}

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	// Find string length
	p := unsafe.Pointer(ptr)
	var length int
	for {
		if *(*byte)(unsafe.Pointer(uintptr(p) + uintptr(length))) == 0 {
			break
		}
		length++
		if length > 1024 { // Safety limit
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}
