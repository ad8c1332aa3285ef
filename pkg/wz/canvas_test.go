package wz

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/user/wzgo/pkg/wz/wztest"
)

var zlibPayload = []byte{0x78, 0x9C, 0x01, 0x02, 0x03}

func TestCanvasHeader(t *testing.T) {
	tests := []struct {
		name      string
		canvas    wztest.Canvas
		size      int
		known     bool
		encrypted bool
	}{
		{"bgra4444", wztest.Canvas{Width: 2, Height: 3, Format: 1, Payload: zlibPayload}, 12, true, false},
		{"bgra8888", wztest.Canvas{Width: 2, Height: 3, Format: 2, Payload: zlibPayload}, 24, true, false},
		{"rgb565", wztest.Canvas{Width: 4, Height: 4, Format: 513, Payload: zlibPayload}, 32, true, false},
		{"block", wztest.Canvas{Width: 256, Height: 16, Format: 517, Payload: zlibPayload}, 32, true, false},
		{"best compression", wztest.Canvas{Width: 1, Height: 1, Format: 2, Payload: []byte{0x78, 0xDA}}, 4, true, false},
		{"encrypted", wztest.Canvas{Width: 1, Height: 1, Format: 2, Payload: []byte{0x10, 0x00, 0x00, 0x00}}, 4, true, true},
		{"unknown", wztest.Canvas{Width: 2, Height: 3, Format: 1, Format2: 4, Payload: zlibPayload}, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, warnings, err := decodeEntries(t, []wztest.Entry{
				{Name: "icon", Value: tt.canvas},
				{Name: "after", Value: int32(9)},
			})
			if err != nil {
				t.Fatal(err)
			}
			c, err := root.Child("icon").Canvas()
			if err != nil {
				t.Fatal(err)
			}
			if c.Width != tt.canvas.Width || c.Height != tt.canvas.Height {
				t.Errorf("geometry = %dx%d", c.Width, c.Height)
			}
			if int(c.ByteSize) != len(tt.canvas.Payload) {
				t.Errorf("ByteSize = %d, want %d", c.ByteSize, len(tt.canvas.Payload))
			}
			if c.Encrypted != tt.encrypted {
				t.Errorf("Encrypted = %v, want %v", c.Encrypted, tt.encrypted)
			}
			size, err := c.DecodedSize()
			if tt.known {
				if err != nil || size != tt.size {
					t.Errorf("DecodedSize = %d, %v, want %d", size, err, tt.size)
				}
			} else {
				if !errors.Is(err, ErrUnknownFormat) {
					t.Errorf("DecodedSize err = %v, want ErrUnknownFormat", err)
				}
				if len(warnings) != 1 || warnings[0].Kind != WarnCanvasFormat {
					t.Errorf("warnings = %v", warnings)
				}
			}
			if v, err := root.Child("after").Int(); err != nil || v != 9 {
				t.Errorf("entry after canvas = %d, %v", v, err)
			}
		})
	}
}

func TestCanvasPayloadSpan(t *testing.T) {
	blob := wztest.EncodeImage(zeroKeys, []wztest.Entry{
		{Name: "icon", Value: wztest.Canvas{Width: 1, Height: 1, Format: 2, Payload: zlibPayload}},
	})
	root, _, err := DecodeImage(BytesSource(blob), 0, "x.img", WithKeyStream(zeroKeys))
	if err != nil {
		t.Fatal(err)
	}
	c, _ := root.Child("icon").Canvas()
	got := blob[c.PayloadOffset : c.PayloadOffset+int(c.ByteSize)]
	if diff := cmp.Diff(zlibPayload, got); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
}

func TestCanvasWithProperties(t *testing.T) {
	root := mustDecode(t, []wztest.Entry{
		{Name: "0", Value: wztest.Canvas{
			Width: 10, Height: 20, Format: 2,
			Props: []wztest.Entry{
				{Name: "origin", Value: wztest.Vector{X: 5, Y: 19}},
				{Name: "delay", Value: int32(150)},
			},
			Payload: zlibPayload,
		}},
	})
	canvas := root.Child("0")
	if canvas.Kind() != KindCanvas {
		t.Fatalf("kind = %v", canvas.Kind())
	}
	origin, err := root.Get("0/origin")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := origin.Vector(); v != (Vector2D{5, 19}) {
		t.Errorf("origin = %v", v)
	}
	if origin.Path() != "test.img/0/origin" {
		t.Errorf("origin path = %q", origin.Path())
	}
	if c, _ := canvas.Canvas(); c.Width != 10 || c.FormatName() != "BGRA8888" {
		t.Errorf("canvas = %v", c)
	}
}

func TestCanvasPayloadOutOfRange(t *testing.T) {
	body := wztest.NewBuffer(zeroKeys)
	body.Byte(0)
	body.Byte(0)
	body.CompressedInt(1)
	body.CompressedInt(1)
	body.CompressedInt(2)
	body.Byte(0)
	body.Zeros(4)
	body.Int32(1000)
	body.Byte(0)
	body.Write([]byte{0x78, 0x9C})

	_, _, err := decodeEntries(t, []wztest.Entry{{Name: "c", Value: wztest.Class{Name: "Canvas", Body: body.Bytes()}}})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}

func TestCanvasShortPayloadAtEnd(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"one byte", []byte{0x78}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// the canvas is the last entry, so its payload ends the blob
			root := mustDecode(t, []wztest.Entry{
				{Name: "c", Value: wztest.Canvas{Width: 1, Height: 1, Format: 1, Payload: tt.payload}},
			})
			c, err := root.Child("c").Canvas()
			if err != nil {
				t.Fatal(err)
			}
			if int(c.ByteSize) != len(tt.payload) || !c.Encrypted {
				t.Errorf("canvas = %+v", c)
			}
		})
	}
}

func TestSoundHeader(t *testing.T) {
	payload := []byte("RIFF....WAVE")
	root := mustDecode(t, []wztest.Entry{
		{Name: "bgm", Value: wztest.Sound{DurationMS: 1500, Frequency: 44100, Payload: payload}},
		{Name: "after", Value: "ok"},
	})
	s, err := root.Child("bgm").Sound()
	if err != nil {
		t.Fatal(err)
	}
	want := Sound{ByteSize: int32(len(payload)), Duration: 1500 * time.Millisecond, Frequency: 44100, PayloadOffset: s.PayloadOffset}
	if diff := cmp.Diff(want, *s); diff != "" {
		t.Errorf("sound (-want +got):\n%s", diff)
	}
	if root.Child("after") == nil {
		t.Error("entry after sound missing")
	}
	if _, err := root.Child("bgm").Canvas(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Canvas on sound: %v", err)
	}
}
