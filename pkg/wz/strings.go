package wz

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	wideMask   uint16 = 0xAAAA
	narrowMask byte   = 0xAA
)

// String-block tags.
const (
	blockInline       = 0x00
	blockInlineImage  = 0x73
	blockOffset       = 0x01
	blockOffsetCanvas = 0x1B
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func decodeLatin1(raw []byte) (string, error) {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode latin-1 string: %w", err)
	}
	return string(s), nil
}

func decodeUTF16(units []uint16) (string, error) {
	raw := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(raw[2*i:], u)
	}
	s, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode utf-16 string: %w", err)
	}
	return string(s), nil
}

func keystream16(ks KeyStream, o int) uint16 {
	return uint16(ks.At(o)) | uint16(ks.At(o+1))<<8
}

// ReadCipherUnits reads one encrypted string and returns its decrypted code
// units. wide reports whether the string used the 16-bit branch. On error the
// cursor is left where it was.
func (r *Reader) ReadCipherUnits() (units []uint16, wide bool, err error) {
	start := r.pos
	defer func() {
		if err != nil {
			r.pos = start
		}
	}()

	len8, err := r.ReadInt8()
	if err != nil {
		return nil, false, err
	}
	if len8 == 0 {
		return nil, false, nil
	}

	if len8 > 0 {
		n := int32(len8)
		if len8 == math.MaxInt8 {
			if n, err = r.ReadInt32(); err != nil {
				return nil, true, err
			}
		}
		if n <= 0 {
			return nil, true, nil
		}
		raw, err := r.ReadBytes(2 * int(n))
		if err != nil {
			return nil, true, err
		}
		units = make([]uint16, n)
		mask := wideMask
		for i := range units {
			u := binary.LittleEndian.Uint16(raw[2*i:])
			units[i] = u ^ mask ^ keystream16(r.keys, 2*i)
			mask++
		}
		return units, true, nil
	}

	var n int32
	if len8 == math.MinInt8 {
		if n, err = r.ReadInt32(); err != nil {
			return nil, false, err
		}
	} else {
		n = -int32(len8)
	}
	if n <= 0 {
		return nil, false, nil
	}
	raw, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, false, err
	}
	units = make([]uint16, n)
	mask := narrowMask
	for i, b := range raw {
		units[i] = uint16(b ^ mask ^ r.keys.At(i))
		mask++
	}
	return units, false, nil
}

// ReadCipherString reads one encrypted string. Wide strings are decoded as
// UTF-16, so an unpaired surrogate comes back as U+FFFD; use
// ReadCipherUnits when the exact code units matter.
func (r *Reader) ReadCipherString() (string, error) {
	units, wide, err := r.ReadCipherUnits()
	if err != nil {
		return "", err
	}
	if wide {
		return decodeUTF16(units)
	}
	raw := make([]byte, len(units))
	for i, u := range units {
		raw[i] = byte(u)
	}
	return decodeLatin1(raw)
}

// ReadCipherStringAt decodes the string at off and restores the cursor.
func (r *Reader) ReadCipherStringAt(off int) (string, error) {
	prev := r.pos
	if err := r.SetPosition(off); err != nil {
		return "", err
	}
	s, err := r.ReadCipherString()
	r.pos = prev
	return s, err
}

// ReadStringBlock reads a string that is either stored inline or referenced
// by a delta from base, which lets repeated names be stored once.
func (r *Reader) ReadStringBlock(base int) (string, error) {
	start := r.pos
	tag, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	switch tag {
	case blockInline, blockInlineImage:
		s, err := r.ReadCipherString()
		if err != nil {
			r.pos = start
		}
		return s, err
	case blockOffset, blockOffsetCanvas:
		delta, err := r.ReadUint32()
		if err != nil {
			r.pos = start
			return "", err
		}
		s, err := r.ReadCipherStringAt(base + int(delta))
		if err != nil {
			r.pos = start
			return "", fmt.Errorf("string block at %d (base %d, delta %d): %w", start, base, delta, err)
		}
		return s, nil
	default:
		r.pos = start
		return "", fmt.Errorf("%w: string block tag %#02x at %d", ErrMalformedData, tag, start)
	}
}

// IsImageProbe consumes a tag byte, a string and a uint16 and reports whether
// they mark the start of an image's property list. Bytes are consumed
// whatever the outcome.
func (r *Reader) IsImageProbe() (bool, error) {
	tag, err := r.ReadByte()
	if err != nil || tag != blockInlineImage {
		return false, err
	}
	name, err := r.ReadCipherString()
	if err != nil || name != classProperty {
		return false, err
	}
	v, err := r.ReadUint16()
	if err != nil {
		return false, err
	}
	return v == 0, nil
}
