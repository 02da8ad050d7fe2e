package mmal

// FourCC identifies an encoding or color space.
type FourCC uint32

// NewFourCC packs four characters the way MMAL_FOURCC does.
func NewFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

func (f FourCC) String() string {
	if f == 0 {
		return "none"
	}
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	return string(b[:])
}

// Encodings understood by the VideoCore components.
var (
	EncodingH264   = NewFourCC('H', '2', '6', '4')
	EncodingMVC    = NewFourCC('M', 'V', 'C', ' ')
	EncodingMJPEG  = NewFourCC('M', 'J', 'P', 'G')
	EncodingJPEG   = NewFourCC('J', 'P', 'E', 'G')
	EncodingGIF    = NewFourCC('G', 'I', 'F', ' ')
	EncodingPNG    = NewFourCC('P', 'N', 'G', ' ')
	EncodingMP4V   = NewFourCC('M', 'P', '4', 'V')
	EncodingMP2V   = NewFourCC('M', 'P', '2', 'V')
	EncodingVP8    = NewFourCC('V', 'P', '8', ' ')
	EncodingI420   = NewFourCC('I', '4', '2', '0')
	EncodingYV12   = NewFourCC('Y', 'V', '1', '2')
	EncodingNV12   = NewFourCC('N', 'V', '1', '2')
	EncodingYUYV   = NewFourCC('Y', 'U', 'Y', 'V')
	EncodingRGB24  = NewFourCC('R', 'G', 'B', '3')
	EncodingBGR24  = NewFourCC('B', 'G', 'R', '3')
	EncodingRGBA   = NewFourCC('R', 'G', 'B', 'A')
	EncodingBGRA   = NewFourCC('B', 'G', 'R', 'A')
	EncodingOpaque = NewFourCC('O', 'P', 'Q', 'V')
	EncodingPCMS16 = NewFourCC('s', '1', '6', 'l')
)

// Encoding variants for H.264 elementary streams.
var (
	EncodingVariantH264Default = FourCC(0)
	EncodingVariantH264AVC1    = NewFourCC('A', 'V', 'C', '1')
	EncodingVariantH264Raw     = NewFourCC('R', 'A', 'W', ' ')
)

// Compressed returns true for encodings carrying a compressed bitstream.
func (f FourCC) Compressed() bool {
	switch f {
	case EncodingH264, EncodingMVC, EncodingMJPEG, EncodingJPEG, EncodingGIF,
		EncodingPNG, EncodingMP4V, EncodingMP2V, EncodingVP8:
		return true
	default:
		return false
	}
}

// MimeType returns the MIME type of a compressed encoding, or "".
func (f FourCC) MimeType() string {
	switch f {
	case EncodingH264:
		return "video/H264"
	case EncodingVP8:
		return "video/VP8"
	case EncodingMJPEG:
		return "video/x-motion-jpeg"
	case EncodingJPEG:
		return "image/jpeg"
	case EncodingPNG:
		return "image/png"
	case EncodingGIF:
		return "image/gif"
	case EncodingMP4V:
		return "video/mp4v-es"
	case EncodingMP2V:
		return "video/mpeg2"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this encoding.
func (f FourCC) ClockRate() uint32 {
	// All video encodings use a 90kHz clock
	return 90000
}
