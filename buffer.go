package mmal

// BufferFlags describe the contents of a buffer.
type BufferFlags uint32

const (
	BufferFlagEOS BufferFlags = 1 << iota
	BufferFlagFrameStart
	BufferFlagFrameEnd
	BufferFlagKeyframe
	BufferFlagDiscontinuity
	BufferFlagConfig
	BufferFlagEncrypted
	BufferFlagCodecSideInfo
	BufferFlagSnapshot
	BufferFlagCorrupted
	BufferFlagTransmissionFailed
	BufferFlagDecodeOnly
	BufferFlagNALEnd

	// BufferFlagFrame marks a buffer holding a complete frame.
	BufferFlagFrame = BufferFlagFrameStart | BufferFlagFrameEnd
)

// Has returns true if all flags in g are set.
func (f BufferFlags) Has(g BufferFlags) bool { return f&g == g }

// TimeUnknown is the timestamp of a buffer without one.
const TimeUnknown int64 = -1 << 63

// Buffer is a borrowed view over one buffer header, handed to a
// BufferHandler or taken from a Pool. The holder gives it back with Release
// or by sending it to a port; the view must not be used afterwards.
type Buffer struct {
	handle Handle[BufferPtr]
	engine Engine
}

// Raw returns the native buffer header pointer.
func (b *Buffer) Raw() BufferPtr { return b.handle.Raw() }

// Header returns a snapshot of the buffer header.
func (b *Buffer) Header() BufferHeader { return b.engine.BufferHeader(b.handle.Raw()) }

// Cmd returns the event code of an event buffer, or 0 for data.
func (b *Buffer) Cmd() uint32 { return b.Header().Cmd }

// Flags returns the buffer flags.
func (b *Buffer) Flags() BufferFlags { return b.Header().Flags }

// PTS returns the presentation timestamp in microseconds, or TimeUnknown.
func (b *Buffer) PTS() int64 { return b.Header().PTS }

// Payload returns the valid bytes of the buffer without copying. The slice
// aliases engine memory and is only valid until the buffer is given back.
func (b *Buffer) Payload() []byte {
	h := b.Header()
	end := int(h.Offset) + int(h.Length)
	if end > len(h.Data) {
		end = len(h.Data)
	}
	if int(h.Offset) >= end {
		return nil
	}
	return h.Data[h.Offset:end]
}

// Capacity returns the size of the buffer allocation.
func (b *Buffer) Capacity() int { return len(b.Header().Data) }

// Fill copies data into the buffer from offset 0 and sets its length,
// flags and timestamps. It returns the number of bytes copied, which is
// short when data exceeds the allocation.
func (b *Buffer) Fill(data []byte, flags BufferFlags, pts int64) int {
	raw := b.handle.Raw()
	h := b.engine.BufferHeader(raw)
	n := copy(h.Data, data)
	h.Offset = 0
	h.Length = uint32(n)
	h.Flags = flags
	h.PTS = pts
	h.DTS = TimeUnknown
	b.engine.BufferUpdate(raw, h)
	return n
}

// Reset clears the length and flags so the buffer can be refilled.
func (b *Buffer) Reset() {
	raw := b.handle.Raw()
	h := b.engine.BufferHeader(raw)
	h.Offset = 0
	h.Length = 0
	h.Flags = 0
	b.engine.BufferUpdate(raw, h)
}

// Release gives the buffer back to the engine, returning pool buffers to
// their pool.
func (b *Buffer) Release() {
	b.engine.BufferRelease(b.handle.Raw())
}
