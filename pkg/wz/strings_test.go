package wz

import (
	"errors"
	"strings"
	"testing"

	"github.com/user/wzgo/pkg/keystream"
	"github.com/user/wzgo/pkg/wz/wztest"
)

func TestReadCipherStringKnownBytes(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
		wide bool
	}{
		{"empty", []byte{0x00}, "", false},
		{"narrow", []byte{0xFD, 'a' ^ 0xAA, 'b' ^ 0xAB, 'c' ^ 0xAC}, "abc", false},
		{"wide", []byte{0x01, 0xAA, 0x06}, "가", true},
		{"wide non-positive escape", []byte{0x7F, 0x00, 0x00, 0x00, 0x00}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReader(tt.data)
			got, err := r.ReadCipherString()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if r.Position() != len(tt.data) {
				t.Errorf("consumed %d of %d bytes", r.Position(), len(tt.data))
			}

			r.SetPosition(0)
			_, wide, err := r.ReadCipherUnits()
			if err != nil {
				t.Fatal(err)
			}
			if wide != tt.wide {
				t.Errorf("wide = %v, want %v", wide, tt.wide)
			}
		})
	}
}

func TestCipherStringRoundTrip(t *testing.T) {
	ivs := map[string]keystream.IV{"gms": keystream.GMS, "ems": keystream.EMS, "zero": keystream.Zero}
	inputs := []string{
		"",
		"Property",
		"Shape2D#Convex2D",
		"héllo wörld",
		"몬스터",
		strings.Repeat("x", 127),
		strings.Repeat("y", 300),
		strings.Repeat("가", 200),
	}
	for name, iv := range ivs {
		ks := keystream.New(iv)
		t.Run(name, func(t *testing.T) {
			for _, in := range inputs {
				b := wztest.NewBuffer(ks)
				b.CipherString(in)
				b.Byte(0xEE)
				r := NewReader(BytesSource(b.Bytes()), ks)
				got, err := r.ReadCipherString()
				if err != nil {
					t.Fatalf("%q: %v", in, err)
				}
				if got != in {
					t.Errorf("got %q, want %q", got, in)
				}
				if r.Position() != b.Len()-1 {
					t.Errorf("%q: stopped at %d, want %d", in, r.Position(), b.Len()-1)
				}
			}
		})
	}
}

func TestReadCipherUnitsKeepsSurrogates(t *testing.T) {
	units := []uint16{'A', 0xD800, 'B'}
	b := wztest.NewBuffer(zeroKeys)
	b.WideUnits(units)
	data := b.Bytes()

	got, wide, err := newTestReader(data).ReadCipherUnits()
	if err != nil {
		t.Fatal(err)
	}
	if !wide || len(got) != 3 || got[0] != 'A' || got[1] != 0xD800 || got[2] != 'B' {
		t.Errorf("units = %#x, wide %v", got, wide)
	}

	s, err := newTestReader(data).ReadCipherString()
	if err != nil {
		t.Fatal(err)
	}
	if s != "A\uFFFDB" {
		t.Errorf("string = %q, want the surrogate replaced", s)
	}
}

func TestReadCipherStringTruncated(t *testing.T) {
	r := newTestReader([]byte{0xF0, 1, 2})
	if _, err := r.ReadCipherString(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v", err)
	}
	if r.Position() != 0 {
		t.Errorf("cursor moved to %d", r.Position())
	}
}

func TestReadStringBlock(t *testing.T) {
	b := wztest.NewBuffer(zeroKeys)
	b.Zeros(3)
	nameAt := b.Pos()
	b.CipherString("origin")
	inlineAt := b.Pos()
	b.InlineString(wztest.TagInline, "z")
	refAt := b.Pos()
	b.StringRef(wztest.TagOffset, uint32(nameAt-3))
	canvasRefAt := b.Pos()
	b.StringRef(wztest.TagOffsetImage, uint32(nameAt-3))
	badAt := b.Pos()
	b.Byte(0x42)

	r := newTestReader(b.Bytes())
	tests := []struct {
		name string
		at   int
		want string
		next int
	}{
		{"inline", inlineAt, "z", refAt},
		{"offset", refAt, "origin", refAt + 5},
		{"offset canvas", canvasRefAt, "origin", canvasRefAt + 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.SetPosition(tt.at)
			got, err := r.ReadStringBlock(3)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want || r.Position() != tt.next {
				t.Errorf("got %q at %d, want %q at %d", got, r.Position(), tt.want, tt.next)
			}
		})
	}

	t.Run("bad tag", func(t *testing.T) {
		r.SetPosition(badAt)
		if _, err := r.ReadStringBlock(3); !errors.Is(err, ErrMalformedData) {
			t.Fatalf("err = %v, want ErrMalformedData", err)
		}
		if r.Position() != badAt {
			t.Errorf("cursor moved to %d", r.Position())
		}
	})

	t.Run("dangling offset", func(t *testing.T) {
		b := wztest.NewBuffer(zeroKeys)
		b.StringRef(wztest.TagOffset, 1000)
		r := newTestReader(b.Bytes())
		if _, err := r.ReadStringBlock(0); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("err = %v, want ErrOutOfRange", err)
		}
	})
}

func TestIsImageProbe(t *testing.T) {
	probe := func(tag byte, class string, reserved uint16) []byte {
		b := wztest.NewBuffer(zeroKeys)
		b.InlineString(tag, class)
		b.Uint16(reserved)
		return b.Bytes()
	}
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"image", probe(0x73, "Property", 0), true},
		{"wrong tag", probe(0x00, "Property", 0), false},
		{"wrong class", probe(0x73, "Canvas", 0), false},
		{"wrong reserved", probe(0x73, "Property", 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newTestReader(tt.data).IsImageProbe()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("IsImageProbe = %v, want %v", got, tt.want)
			}
		})
	}
}
