package mmal

import "unsafe"

// ESType is the kind of elementary stream a Format describes.
type ESType uint32

const (
	ESTypeUnknown ESType = iota
	ESTypeControl
	ESTypeAudio
	ESTypeVideo
	ESTypeSubpicture
)

func (t ESType) String() string {
	switch t {
	case ESTypeControl:
		return "control"
	case ESTypeAudio:
		return "audio"
	case ESTypeVideo:
		return "video"
	case ESTypeSubpicture:
		return "subpicture"
	default:
		return "unknown"
	}
}

// Format flags.
const (
	FormatFlagFraming uint32 = 0x1
)

// Rect is a rectangle in pixels.
type Rect struct {
	X, Y          int32
	Width, Height int32
}

// Rational is a num/den fraction.
type Rational struct {
	Num, Den int32
}

// VideoFormat is the video member of the ES-specific union.
type VideoFormat struct {
	Width, Height uint32
	Crop          Rect
	FrameRate     Rational
	PAR           Rational
	ColorSpace    FourCC
}

// AudioFormat is the audio member of the ES-specific union.
type AudioFormat struct {
	Channels      uint32
	SampleRate    uint32
	BitsPerSample uint32
	BlockAlign    uint32
}

// SubpictureFormat is the subpicture member of the ES-specific union.
type SubpictureFormat struct {
	XOffset, YOffset uint32
}

// ESSpecificFormat is the union of type-specific format information. Its
// size is that of the largest member (VideoFormat).
type ESSpecificFormat struct {
	video VideoFormat
}

// Video returns the union viewed as video information.
func (es *ESSpecificFormat) Video() *VideoFormat { return &es.video }

// Audio returns the union viewed as audio information.
func (es *ESSpecificFormat) Audio() *AudioFormat {
	return (*AudioFormat)(unsafe.Pointer(es))
}

// Subpicture returns the union viewed as subpicture information.
func (es *ESSpecificFormat) Subpicture() *SubpictureFormat {
	return (*SubpictureFormat)(unsafe.Pointer(es))
}

// Format mirrors the engine's elementary stream format descriptor
// (MMAL_ES_FORMAT_T). A *Format returned by Port.Format points at the live
// descriptor; edits take effect on CommitFormat.
type Format struct {
	Type            ESType
	Encoding        FourCC
	EncodingVariant FourCC
	ES              *ESSpecificFormat
	Bitrate         uint32
	Flags           uint32
	ExtradataSize   uint32
	Extradata       *byte
}

// Video returns the video view of the ES-specific union, or nil.
func (f *Format) Video() *VideoFormat {
	if f == nil || f.ES == nil {
		return nil
	}
	return f.ES.Video()
}

// Audio returns the audio view of the ES-specific union, or nil.
func (f *Format) Audio() *AudioFormat {
	if f == nil || f.ES == nil {
		return nil
	}
	return f.ES.Audio()
}

// ExtraData returns the codec extradata without copying.
func (f *Format) ExtraData() []byte {
	if f == nil || f.Extradata == nil || f.ExtradataSize == 0 {
		return nil
	}
	return unsafe.Slice(f.Extradata, f.ExtradataSize)
}

// SetVideo sets the common video fields: encoding, dimensions, full-frame
// crop and frame rate.
func (f *Format) SetVideo(encoding FourCC, width, height uint32, fps int32) {
	f.Type = ESTypeVideo
	f.Encoding = encoding
	v := f.Video()
	if v == nil {
		return
	}
	v.Width = alignUp(width, 32)
	v.Height = alignUp(height, 16)
	v.Crop = Rect{Width: int32(width), Height: int32(height)}
	if fps > 0 {
		v.FrameRate = Rational{Num: fps, Den: 1}
	}
}

func alignUp(v, n uint32) uint32 {
	return (v + n - 1) &^ (n - 1)
}
