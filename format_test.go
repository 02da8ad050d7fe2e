package mmal

import (
	"testing"
	"unsafe"
)

func TestESSpecificFormat_Layout(t *testing.T) {
	if got := unsafe.Sizeof(ESSpecificFormat{}); got != 44 {
		t.Errorf("sizeof(ESSpecificFormat) = %d, want 44", got)
	}
	if unsafe.Sizeof(AudioFormat{}) > unsafe.Sizeof(ESSpecificFormat{}) {
		t.Error("AudioFormat does not fit the union")
	}
}

func TestESSpecificFormat_Views(t *testing.T) {
	var es ESSpecificFormat
	es.Audio().Channels = 2
	if es.Video().Width != 2 {
		t.Errorf("views do not share storage: Width = %d", es.Video().Width)
	}
	es.Subpicture().YOffset = 9
	if es.Video().Height != 9 {
		t.Errorf("subpicture view: Height = %d, want 9", es.Video().Height)
	}
}

func TestFormat_SetVideo(t *testing.T) {
	f := &Format{ES: &ESSpecificFormat{}}
	f.SetVideo(EncodingI420, 1280, 721, 30)

	if f.Type != ESTypeVideo || f.Encoding != EncodingI420 {
		t.Errorf("Type, Encoding = %v, %v", f.Type, f.Encoding)
	}
	v := f.Video()
	if v.Width != 1280 || v.Height != 736 {
		t.Errorf("aligned size = %dx%d, want 1280x736", v.Width, v.Height)
	}
	if v.Crop != (Rect{Width: 1280, Height: 721}) {
		t.Errorf("Crop = %+v", v.Crop)
	}
	if v.FrameRate != (Rational{Num: 30, Den: 1}) {
		t.Errorf("FrameRate = %+v", v.FrameRate)
	}
}

func TestFormat_NilSafe(t *testing.T) {
	var f *Format
	if f.Video() != nil || f.Audio() != nil || f.ExtraData() != nil {
		t.Error("nil Format returned views")
	}
	g := &Format{}
	g.SetVideo(EncodingH264, 640, 480, 0)
	if g.Encoding != EncodingH264 {
		t.Errorf("Encoding = %v", g.Encoding)
	}
}

func TestFormat_ExtraData(t *testing.T) {
	data := []byte{0, 0, 0, 1, 0x67}
	f := &Format{Extradata: &data[0], ExtradataSize: uint32(len(data))}
	got := f.ExtraData()
	if len(got) != len(data) || got[4] != 0x67 {
		t.Errorf("ExtraData() = %v", got)
	}
}

func TestESType_String(t *testing.T) {
	tests := []struct {
		t    ESType
		want string
	}{
		{ESTypeVideo, "video"},
		{ESTypeAudio, "audio"},
		{ESTypeControl, "control"},
		{ESTypeSubpicture, "subpicture"},
		{ESType(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("ESType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}
