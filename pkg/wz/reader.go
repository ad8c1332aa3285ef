package wz

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
)

// Source is the immutable backing buffer of an archive. *mmap.ReaderAt from
// golang.org/x/exp/mmap satisfies it, as does BytesSource.
type Source interface {
	io.ReaderAt
	Len() int
}

// BytesSource adapts an in-memory buffer to Source.
type BytesSource []byte

func (b BytesSource) Len() int { return len(b) }

func (b BytesSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// KeyStream is the byte-indexable decryption keystream strings are xored
// with. *keystream.Stream satisfies it.
type KeyStream interface {
	At(i int) byte
}

// Reader is a cursor over a Source. It is not safe for concurrent use: every
// parse call moves the shared cursor.
type Reader struct {
	src  Source
	keys KeyStream
	size int
	pos  int
	buf  [8]byte
}

// NewReader returns a Reader positioned at offset 0.
func NewReader(src Source, keys KeyStream) *Reader {
	return &Reader{src: src, keys: keys, size: src.Len()}
}

// Size returns the length of the backing buffer.
func (r *Reader) Size() int { return r.size }

// Position returns the cursor offset.
func (r *Reader) Position() int { return r.pos }

// SetPosition moves the cursor to p, which may equal Size.
func (r *Reader) SetPosition(p int) error {
	if p < 0 || p > r.size {
		return fmt.Errorf("%w: seek to %d in buffer of %d bytes", ErrOutOfRange, p, r.size)
	}
	r.pos = p
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || n > r.size-r.pos {
		return fmt.Errorf("%w: skip %d bytes at %d (size %d)", ErrOutOfRange, n, r.pos, r.size)
	}
	r.pos += n
	return nil
}

// KeyStream returns the keystream strings are decrypted with.
func (r *Reader) KeyStream() KeyStream { return r.keys }

// fill reads n bytes at the cursor into dst without advancing.
func (r *Reader) fill(dst []byte) error {
	n := len(dst)
	if n > r.size-r.pos {
		return fmt.Errorf("%w: read %d bytes at %d (size %d)", ErrOutOfRange, n, r.pos, r.size)
	}
	if _, err := r.src.ReadAt(dst, int64(r.pos)); err != nil && err != io.EOF {
		return fmt.Errorf("read %d bytes at %d: %w", n, r.pos, err)
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	b := r.buf[:n]
	if err := r.fill(b); err != nil {
		return nil, err
	}
	r.pos += n
	return b, nil
}

// ReadFixed reads a fixed-size little-endian value of type T, e.g.
// ReadFixed[int32](r) or ReadFixed[[4]byte](r).
func ReadFixed[T any](r *Reader) (T, error) {
	var v T
	n := binary.Size(v)
	if n < 0 {
		return v, fmt.Errorf("ReadFixed: %T has no fixed size", v)
	}
	b := make([]byte, n)
	if err := r.fill(b); err != nil {
		return v, err
	}
	if _, err := binary.Decode(b, binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("decode %T at %d: %w", v, r.pos, err)
	}
	r.pos += n
	return v, nil
}

// ReadByte reads one unsigned byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadBytes returns exactly n bytes starting at the cursor and advances the
// cursor by n.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrOutOfRange, n)
	}
	out := make([]byte, n)
	if err := r.fill(out); err != nil {
		return nil, err
	}
	r.pos += n
	return out, nil
}

// ReadASCIIString reads bytes up to and including a zero terminator. Each
// byte is widened to one code unit.
func (r *Reader) ReadASCIIString() (string, error) {
	start := r.pos
	var raw []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			r.pos = start
			return "", fmt.Errorf("unterminated string at %d: %w", start, err)
		}
		if b == 0 {
			break
		}
		raw = append(raw, b)
	}
	return decodeLatin1(raw)
}

// ReadASCIIStringN reads exactly n bytes as a string with no terminator.
func (r *Reader) ReadASCIIStringN(n int) (string, error) {
	raw, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return decodeLatin1(raw)
}

// ReadCompressedInt reads a signed byte; the value -128 escapes to a
// following int32.
func (r *Reader) ReadCompressedInt() (int32, error) {
	start := r.pos
	v, err := r.ReadInt8()
	if err != nil {
		return 0, err
	}
	if v != math.MinInt8 {
		return int32(v), nil
	}
	w, err := r.ReadInt32()
	if err != nil {
		r.pos = start
		return 0, err
	}
	return w, nil
}

// ReadOffset decodes an encrypted directory entry offset. dataStart is the
// archive's data start and hash its version hash.
func (r *Reader) ReadOffset(dataStart uint32, hash uint32) (uint32, error) {
	off := uint32(r.pos) - dataStart
	off ^= 0xFFFFFFFF
	off *= hash
	off -= offsetKey
	off = bits.RotateLeft32(off, int(off&0x1F))
	enc, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	off ^= enc
	off += dataStart * 2
	return off, nil
}

const offsetKey = 0x581C3F6D
