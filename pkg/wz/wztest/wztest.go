// Package wztest encodes property lists, images and whole archives so tests
// can build their inputs in code.
package wztest

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf16"
)

// KeyStream is the keystream strings are encrypted with.
type KeyStream interface {
	At(i int) byte
}

// Buffer accumulates little-endian fields.
type Buffer struct {
	bytes.Buffer
	Keys KeyStream
}

// NewBuffer returns an empty Buffer that encrypts strings with ks.
func NewBuffer(ks KeyStream) *Buffer {
	return &Buffer{Keys: ks}
}

// Pos returns the offset the next write lands at.
func (b *Buffer) Pos() int { return b.Len() }

func (b *Buffer) put(v any) {
	// bytes.Buffer writes never fail
	_ = binary.Write(&b.Buffer, binary.LittleEndian, v)
}

func (b *Buffer) Byte(v byte)       { b.WriteByte(v) }
func (b *Buffer) Uint16(v uint16)   { b.put(v) }
func (b *Buffer) Int16(v int16)     { b.put(v) }
func (b *Buffer) Uint32(v uint32)   { b.put(v) }
func (b *Buffer) Int32(v int32)     { b.put(v) }
func (b *Buffer) Uint64(v uint64)   { b.put(v) }
func (b *Buffer) Float32(v float32) { b.put(v) }
func (b *Buffer) Float64(v float64) { b.put(v) }
func (b *Buffer) Zeros(n int)       { b.Write(make([]byte, n)) }

// ASCIIZ writes s followed by a zero terminator.
func (b *Buffer) ASCIIZ(s string) {
	b.WriteString(s)
	b.WriteByte(0)
}

// CompressedInt writes v in one byte when it fits, else as the -128 escape
// and an int32.
func (b *Buffer) CompressedInt(v int32) {
	if v > math.MinInt8 && v <= math.MaxInt8 {
		b.WriteByte(byte(int8(v)))
		return
	}
	b.WriteByte(0x80)
	b.Int32(v)
}

// CipherString writes s encrypted. Strings whose runes all fit in one byte
// take the narrow branch, the rest the wide one.
func (b *Buffer) CipherString(s string) {
	narrow := true
	for _, r := range s {
		if r > 0xFF {
			narrow = false
			break
		}
	}
	if narrow {
		b.NarrowString(s)
	} else {
		b.WideString(s)
	}
}

// NarrowString writes s with the 8-bit cipher. Runes above 0xFF are
// truncated.
func (b *Buffer) NarrowString(s string) {
	units := []rune(s)
	n := len(units)
	switch {
	case n == 0:
		b.WriteByte(0)
		return
	case n >= 128:
		b.WriteByte(0x80)
		b.Int32(int32(n))
	default:
		b.WriteByte(byte(int8(-n)))
	}
	mask := byte(0xAA)
	for i, r := range units {
		b.WriteByte(byte(r) ^ mask ^ b.Keys.At(i))
		mask++
	}
}

// WideString writes s with the 16-bit cipher.
func (b *Buffer) WideString(s string) {
	b.WideUnits(utf16.Encode([]rune(s)))
}

// WideUnits writes raw code units in the wide encoding, including ones a Go
// string cannot carry such as unpaired surrogates.
func (b *Buffer) WideUnits(units []uint16) {
	n := len(units)
	switch {
	case n == 0:
		b.WriteByte(0)
		return
	case n >= 127:
		b.WriteByte(127)
		b.Int32(int32(n))
	default:
		b.WriteByte(byte(n))
	}
	mask := uint16(0xAAAA)
	for i, u := range units {
		key := uint16(b.Keys.At(2*i)) | uint16(b.Keys.At(2*i+1))<<8
		b.Uint16(u ^ mask ^ key)
		mask++
	}
}

// String-block tags.
const (
	TagInline      = 0x00
	TagInlineImage = 0x73
	TagOffset      = 0x01
	TagOffsetImage = 0x1B
)

// InlineString writes a string block holding s.
func (b *Buffer) InlineString(tag byte, s string) {
	b.WriteByte(tag)
	b.CipherString(s)
}

// StringRef writes a string block pointing delta bytes past its base.
func (b *Buffer) StringRef(tag byte, delta uint32) {
	b.WriteByte(tag)
	b.Uint32(delta)
}

// PatchUint32 overwrites four bytes at off.
func (b *Buffer) PatchUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(b.Bytes()[off:], v)
}

// Entry is one named element of a property list.
type Entry struct {
	Name  string
	Value any
}

// Property values. Plain Go values are accepted too: nil is Null, uint16 is
// an UnsignedShort, int32 and int are Int, float32 is Float, float64 is
// Double and string is String.
type (
	// Sub is a nested property list.
	Sub []Entry
	// Vector is a Shape2D#Vector2D point.
	Vector struct{ X, Y int32 }
	// Convex is a Shape2D#Convex2D shape.
	Convex []Vector
	// UOL is a link to Target.
	UOL string
	// Canvas is an image header followed by Payload. Props, when not nil,
	// are written as the canvas' own property list.
	Canvas struct {
		Width, Height int32
		Format        int32
		Format2       byte
		Props         []Entry
		Payload       []byte
	}
	// Sound is an audio header followed by Payload.
	Sound struct {
		DurationMS int32
		Frequency  int32
		Payload    []byte
	}
	// FloatSubtag is a float entry carrying an arbitrary sub-tag and no
	// value bytes.
	FloatSubtag byte
	// Raw is a property with an arbitrary type tag followed by Data.
	Raw struct {
		Tag  byte
		Data []byte
	}
	// Padded is an extended value whose declared length is Pad bytes longer
	// than its body. A negative Pad declares it shorter than the body.
	Padded struct {
		Value any
		Pad   int
	}
	// Class is an extended entry with an arbitrary class name and body.
	Class struct {
		Name string
		Body []byte
	}
)

// PropertyList writes a count followed by entries. Names are written
// inline.
func (b *Buffer) PropertyList(entries []Entry) {
	b.CompressedInt(int32(len(entries)))
	for _, e := range entries {
		b.InlineString(TagInline, e.Name)
		b.property(e.Value)
	}
}

func (b *Buffer) property(v any) {
	switch v := v.(type) {
	case nil:
		b.WriteByte(0x00)
	case uint16:
		b.WriteByte(0x02)
		b.Uint16(v)
	case int:
		b.WriteByte(0x03)
		b.CompressedInt(int32(v))
	case int32:
		b.WriteByte(0x03)
		b.CompressedInt(v)
	case float32:
		b.WriteByte(0x04)
		if v == 0 {
			b.WriteByte(0x00)
			return
		}
		b.WriteByte(0x80)
		b.Float32(v)
	case FloatSubtag:
		b.WriteByte(0x04)
		b.WriteByte(byte(v))
	case float64:
		b.WriteByte(0x05)
		b.Float64(v)
	case string:
		b.WriteByte(0x08)
		b.InlineString(TagInline, v)
	case Raw:
		b.WriteByte(v.Tag)
		b.Write(v.Data)
	case Padded:
		b.extended(v.Value, v.Pad)
	default:
		b.extended(v, 0)
	}
}

// extended writes a 0x09 entry and patches its length once the body is
// known.
func (b *Buffer) extended(v any, pad int) {
	b.WriteByte(0x09)
	lenAt := b.Pos()
	b.Uint32(0)
	start := b.Pos()
	b.ExtendedBody(v)
	if pad > 0 {
		b.Zeros(pad)
	}
	b.PatchUint32(lenAt, uint32(b.Pos()-start+min(pad, 0)))
}

// ExtendedBody writes the class name and body of an extended value.
func (b *Buffer) ExtendedBody(v any) {
	switch v := v.(type) {
	case Sub:
		b.InlineString(TagInlineImage, "Property")
		b.Uint16(0)
		b.PropertyList(v)
	case Vector:
		b.InlineString(TagInlineImage, "Shape2D#Vector2D")
		b.CompressedInt(v.X)
		b.CompressedInt(v.Y)
	case Convex:
		b.InlineString(TagInlineImage, "Shape2D#Convex2D")
		b.CompressedInt(int32(len(v)))
		for _, p := range v {
			b.ExtendedBody(p)
		}
	case UOL:
		b.InlineString(TagInlineImage, "UOL")
		b.WriteByte(0)
		b.InlineString(TagInline, string(v))
	case Canvas:
		b.InlineString(TagInlineImage, "Canvas")
		b.WriteByte(0)
		if v.Props != nil {
			b.WriteByte(1)
			b.Uint16(0)
			b.PropertyList(v.Props)
		} else {
			b.WriteByte(0)
		}
		b.CompressedInt(v.Width)
		b.CompressedInt(v.Height)
		b.CompressedInt(v.Format)
		b.WriteByte(v.Format2)
		b.Zeros(4)
		b.Int32(int32(len(v.Payload)) + 1)
		b.WriteByte(0)
		b.Write(v.Payload)
	case Sound:
		b.InlineString(TagInlineImage, "Sound_DX8")
		b.WriteByte(0)
		b.CompressedInt(int32(len(v.Payload)))
		b.CompressedInt(v.DurationMS)
		b.Zeros(56)
		b.Int32(v.Frequency)
		b.Zeros(22)
		b.Write(v.Payload)
	case Class:
		b.InlineString(TagInlineImage, v.Name)
		b.Write(v.Body)
	default:
		panic("wztest: unsupported property value")
	}
}

// Image writes an image blob: the Property probe followed by entries.
func (b *Buffer) Image(entries []Entry) {
	b.InlineString(TagInlineImage, "Property")
	b.Uint16(0)
	b.PropertyList(entries)
}

// EncodeImage returns a standalone image blob. String blocks in it are
// written inline, so the blob may be placed at any offset.
func EncodeImage(ks KeyStream, entries []Entry) []byte {
	b := NewBuffer(ks)
	b.Image(entries)
	return b.Bytes()
}
