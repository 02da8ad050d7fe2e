package mmal

// PortType is the role of a port within its component.
type PortType uint32

const (
	PortTypeUnknown PortType = iota
	PortTypeControl
	PortTypeInput
	PortTypeOutput
	PortTypeClock
)

func (t PortType) String() string {
	switch t {
	case PortTypeControl:
		return "control"
	case PortTypeInput:
		return "input"
	case PortTypeOutput:
		return "output"
	case PortTypeClock:
		return "clock"
	default:
		return "unknown"
	}
}

// ComponentPorts lists the endpoints of a component.
type ComponentPorts struct {
	Control PortPtr
	Inputs  []PortPtr
	Outputs []PortPtr
	Clocks  []PortPtr
}

// PortInfo is the read-only identity of a port.
type PortInfo struct {
	Name  string
	Type  PortType
	Index uint16
}

// BufferRequirements are the engine's minimum and recommended buffer
// settings for a port.
type BufferRequirements struct {
	NumMin          uint32
	SizeMin         uint32
	AlignmentMin    uint32
	NumRecommended  uint32
	SizeRecommended uint32
}

// BufferHeader is a snapshot of a buffer header. Data spans the whole
// allocation; the payload is Data[Offset:Offset+Length].
type BufferHeader struct {
	Cmd    uint32
	Data   []byte
	Offset uint32
	Length uint32
	Flags  BufferFlags
	PTS    int64
	DTS    int64
}

// EngineCallback is invoked by the engine's dispatch context when a buffer
// comes back from an enabled port.
type EngineCallback func(port PortPtr, buf BufferPtr)

// Engine is the native multimedia engine. Implementations translate each
// call to one engine entry point and never retain Go state beyond the
// callbacks registered through PortEnable. Pointers passed in must have
// been handed out by the same Engine.
type Engine interface {
	ComponentCreate(name string) (ComponentPtr, Status)
	ComponentDestroy(c ComponentPtr) Status
	ComponentEnable(c ComponentPtr) Status
	ComponentDisable(c ComponentPtr) Status
	ComponentIsEnabled(c ComponentPtr) bool
	ComponentPorts(c ComponentPtr) ComponentPorts

	PortInfo(p PortPtr) PortInfo
	PortIsEnabled(p PortPtr) bool
	PortBufferNum(p PortPtr) uint32
	PortSetBufferNum(p PortPtr, n uint32)
	PortBufferSize(p PortPtr) uint32
	PortSetBufferSize(p PortPtr, n uint32)
	PortBufferRequirements(p PortPtr) BufferRequirements
	PortFormat(p PortPtr) *Format
	PortFormatCommit(p PortPtr) Status
	FormatFullCopy(dst, src *Format) Status
	PortParameterSet(p PortPtr, rec Record) Status
	PortParameterGet(p PortPtr, rec Record) Status
	PortParameterSetUint32(p PortPtr, id ParameterID, v uint32) Status
	PortParameterSetBoolean(p PortPtr, id ParameterID, v bool) Status
	PortEnable(p PortPtr, cb EngineCallback) Status
	PortDisable(p PortPtr) Status
	PortFlush(p PortPtr) Status
	PortSendBuffer(p PortPtr, b BufferPtr) Status

	PoolCreate(p PortPtr, headers, payloadSize uint32) PoolPtr
	PoolDestroy(p PortPtr, pool PoolPtr)
	PoolGet(pool PoolPtr) BufferPtr
	PoolLength(pool PoolPtr) int
	PoolHeaders(pool PoolPtr) int

	ConnectionCreate(out, in PortPtr, flags ConnectionFlags) (ConnectionPtr, Status)
	ConnectionDestroy(c ConnectionPtr) Status
	ConnectionEnable(c ConnectionPtr) Status
	ConnectionDisable(c ConnectionPtr) Status
	ConnectionIsEnabled(c ConnectionPtr) bool

	BufferHeader(b BufferPtr) BufferHeader
	BufferUpdate(b BufferPtr, h BufferHeader)
	BufferRelease(b BufferPtr)
}
