package mmal

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ParameterID identifies an engine parameter.
type ParameterID uint32

// Parameter groups.
const (
	ParameterGroupCommon ParameterID = iota << 16
	ParameterGroupCamera
	ParameterGroupVideo
	ParameterGroupAudio
	ParameterGroupClock
)

// Common parameters.
const (
	ParameterSupportedEncodings ParameterID = ParameterGroupCommon + 1
	ParameterURI                ParameterID = ParameterGroupCommon + 2
	ParameterChangeEventRequest ParameterID = ParameterGroupCommon + 3
	ParameterZeroCopy           ParameterID = ParameterGroupCommon + 4
	ParameterBufferRequirements ParameterID = ParameterGroupCommon + 5
	ParameterStatistics         ParameterID = ParameterGroupCommon + 6
	ParameterNoImagePadding     ParameterID = ParameterGroupCommon + 14
)

// Camera parameters.
const (
	ParameterRotation           ParameterID = ParameterGroupCamera + 2
	ParameterAWBMode            ParameterID = ParameterGroupCamera + 5
	ParameterMirror             ParameterID = ParameterGroupCamera + 15
	ParameterCameraNum          ParameterID = ParameterGroupCamera + 16
	ParameterCapture            ParameterID = ParameterGroupCamera + 17
	ParameterExposureMode       ParameterID = ParameterGroupCamera + 18
	ParameterCameraFrameRate    ParameterID = ParameterGroupCamera + 26
	ParameterVideoStabilisation ParameterID = ParameterGroupCamera + 29
	ParameterSharpness          ParameterID = ParameterGroupCamera + 44
	ParameterContrast           ParameterID = ParameterGroupCamera + 45
	ParameterBrightness         ParameterID = ParameterGroupCamera + 46
	ParameterSaturation         ParameterID = ParameterGroupCamera + 47
	ParameterISO                ParameterID = ParameterGroupCamera + 48
)

// Video parameters.
const (
	ParameterDisplayRegion       ParameterID = ParameterGroupVideo + 0
	ParameterProfile             ParameterID = ParameterGroupVideo + 2
	ParameterIntraPeriod         ParameterID = ParameterGroupVideo + 3
	ParameterRequestIFrame       ParameterID = ParameterGroupVideo + 11
	ParameterImmutableInput      ParameterID = ParameterGroupVideo + 13
	ParameterVideoBitRate        ParameterID = ParameterGroupVideo + 14
	ParameterEncodeInlineHeaders ParameterID = ParameterGroupVideo + 42
)

// Parameter is a value for Port.SetParameter. It is one of Record, Scalar
// or Flag.
type Parameter interface {
	parameterID() ParameterID
}

// Record is a structured parameter: an 8-byte header (id, total size)
// followed by the parameter body, in host byte order.
type Record []byte

// RecordHeaderSize is the size of the header leading every Record.
const RecordHeaderSize = 8

// NewRecord builds a Record with a header for id followed by body.
func NewRecord(id ParameterID, body []byte) Record {
	r := make(Record, RecordHeaderSize+len(body))
	binary.NativeEndian.PutUint32(r[0:], uint32(id))
	binary.NativeEndian.PutUint32(r[4:], uint32(len(r)))
	copy(r[RecordHeaderSize:], body)
	return r
}

// NewRecordUint32 builds a Record whose body is a list of 32-bit words.
func NewRecordUint32(id ParameterID, words ...uint32) Record {
	body := make([]byte, 4*len(words))
	for i, w := range words {
		binary.NativeEndian.PutUint32(body[4*i:], w)
	}
	return NewRecord(id, body)
}

// ID returns the parameter id from the header, or 0 for a short record.
func (r Record) ID() ParameterID {
	if len(r) < RecordHeaderSize {
		return 0
	}
	return ParameterID(binary.NativeEndian.Uint32(r[0:]))
}

// Size returns the size recorded in the header.
func (r Record) Size() uint32 {
	if len(r) < RecordHeaderSize {
		return 0
	}
	return binary.NativeEndian.Uint32(r[4:])
}

// Body returns the bytes following the header.
func (r Record) Body() []byte {
	if len(r) < RecordHeaderSize {
		return nil
	}
	return r[RecordHeaderSize:]
}

// Word returns the i-th 32-bit word of the body.
func (r Record) Word(i int) uint32 {
	b := r.Body()
	if 4*i+4 > len(b) {
		return 0
	}
	return binary.NativeEndian.Uint32(b[4*i:])
}

func (r Record) validate() error {
	if len(r) < RecordHeaderSize {
		return errors.Wrapf(EINVAL, "parameter record of %d bytes", len(r))
	}
	if r.Size() < RecordHeaderSize {
		return errors.Wrapf(EINVAL, "parameter record header claims %d bytes, below the header", r.Size())
	}
	if int(r.Size()) > len(r) {
		return errors.Wrapf(EINVAL, "parameter record header claims %d bytes, have %d", r.Size(), len(r))
	}
	return nil
}

func (r Record) parameterID() ParameterID { return r.ID() }

// Scalar is an unsigned 32-bit parameter.
type Scalar struct {
	ID    ParameterID
	Value uint32
}

func (s Scalar) parameterID() ParameterID { return s.ID }

// Flag is a boolean parameter.
type Flag struct {
	ID    ParameterID
	Value bool
}

func (f Flag) parameterID() ParameterID { return f.ID }

// DisplayRegion fields that are applied when set in Set.
const (
	DisplaySetNum        uint32 = 1 << 0
	DisplaySetFullscreen uint32 = 1 << 1
	DisplaySetTransform  uint32 = 1 << 2
	DisplaySetDestRect   uint32 = 1 << 3
	DisplaySetSrcRect    uint32 = 1 << 4
	DisplaySetNoAspect   uint32 = 1 << 5
	DisplaySetMode       uint32 = 1 << 6
	DisplaySetPixel      uint32 = 1 << 7
	DisplaySetNoCrop     uint32 = 1 << 8
	DisplaySetLayer      uint32 = 1 << 9
	DisplaySetCopyProt   uint32 = 1 << 10
	DisplaySetAlpha      uint32 = 1 << 11
)

// DisplayRegion builds the renderer's display region record.
func DisplayRegion(set uint32, num uint32, fullscreen bool, dest Rect, layer int32, alpha uint32) Record {
	var fs uint32
	if fullscreen {
		fs = 1
	}
	return NewRecordUint32(ParameterDisplayRegion,
		set, num, fs,
		0, // transform
		uint32(dest.X), uint32(dest.Y), uint32(dest.Width), uint32(dest.Height),
		0, 0, 0, 0, // src_rect
		0,    // noaspect
		0,    // mode
		0, 0, // pixel_x, pixel_y
		uint32(layer),
		0, // copyprotect_required
		alpha,
	)
}
