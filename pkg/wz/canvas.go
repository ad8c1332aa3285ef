package wz

import (
	"fmt"
	"time"
)

// Canvas is the header of an embedded image. The pixel payload stays
// compressed in the archive at PayloadOffset.
type Canvas struct {
	Width   int32
	Height  int32
	Format  int32
	Format2 uint8

	ByteSize      int32
	PayloadOffset int
	Encrypted     bool

	UncompressedSize int
	SizeKnown        bool
}

// Pixel format sums (Format + Format2).
const (
	FormatBGRA4444    = 1
	FormatBGRA8888    = 2
	FormatRGB565      = 513
	FormatRGB565Block = 517
)

var formatNames = map[int]string{
	FormatBGRA4444:    "BGRA4444",
	FormatBGRA8888:    "BGRA8888",
	FormatRGB565:      "RGB565",
	FormatRGB565Block: "RGB565-block",
}

// PixelFormat returns the combined format code.
func (c *Canvas) PixelFormat() int { return int(c.Format) + int(c.Format2) }

// FormatName names the pixel format, or reports it as unknown.
func (c *Canvas) FormatName() string {
	if name, ok := formatNames[c.PixelFormat()]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", c.PixelFormat())
}

// DecodedSize returns the size of the pixel data once decompressed.
func (c *Canvas) DecodedSize() (int, error) {
	if !c.SizeKnown {
		return 0, fmt.Errorf("%w: format %d+%d", ErrUnknownFormat, c.Format, c.Format2)
	}
	return c.UncompressedSize, nil
}

func (c *Canvas) String() string {
	return fmt.Sprintf("%dx%d %s (%d bytes at %#x)", c.Width, c.Height, c.FormatName(), c.ByteSize, c.PayloadOffset)
}

// uncompressedSize derives the decoded pixel size from the format sum.
func uncompressedSize(format int, w, h int) (int, bool) {
	switch format {
	case FormatBGRA4444, FormatRGB565:
		return w * h * 2, true
	case FormatBGRA8888:
		return w * h * 4, true
	case FormatRGB565Block:
		return w * h / 128, true
	}
	return 0, false
}

// zlib stream headers, in either byte order.
const (
	zlibDefault = 0x9C78
	zlibBest    = 0xDA78
)

// Sound is the header of an embedded audio clip.
type Sound struct {
	ByteSize      int32
	Duration      time.Duration
	Frequency     int32
	PayloadOffset int
}

func (s *Sound) String() string {
	return fmt.Sprintf("%s @%dHz (%d bytes at %#x)", s.Duration, s.Frequency, s.ByteSize, s.PayloadOffset)
}

const (
	soundFormatHeader = 56
	soundTrailer      = 22
)

// parseCanvas decodes a canvas header at the cursor and leaves the cursor
// after the raw payload.
func (p *parser) parseCanvas(path string) (*Canvas, error) {
	r := p.r
	var c Canvas
	var err error
	if c.Width, err = r.ReadCompressedInt(); err != nil {
		return nil, err
	}
	if c.Height, err = r.ReadCompressedInt(); err != nil {
		return nil, err
	}
	if c.Format, err = r.ReadCompressedInt(); err != nil {
		return nil, err
	}
	if c.Format2, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if err = r.Skip(4); err != nil {
		return nil, err
	}
	blobLength, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	c.ByteSize = blobLength - 1
	if err = r.Skip(1); err != nil {
		return nil, err
	}
	c.PayloadOffset = r.Position()
	if c.ByteSize < 0 || int(c.ByteSize) > r.Size()-c.PayloadOffset {
		return nil, fmt.Errorf("%w: canvas %s payload of %d bytes at %d (size %d)",
			ErrOutOfRange, path, c.ByteSize, c.PayloadOffset, r.Size())
	}
	// a payload too short for a zlib header cannot be a plain stream
	c.Encrypted = true
	if c.ByteSize >= 2 {
		header, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		c.Encrypted = header != zlibDefault && header != zlibBest
	}

	c.UncompressedSize, c.SizeKnown = uncompressedSize(c.PixelFormat(), int(c.Width), int(c.Height))
	if !c.SizeKnown {
		p.warn(path, WarnCanvasFormat, fmt.Sprintf("format %d+%d", c.Format, c.Format2))
	}

	if err := r.SetPosition(c.PayloadOffset + int(c.ByteSize)); err != nil {
		return nil, err
	}
	return &c, nil
}

// parseSound decodes a Sound_DX8 header at the cursor and leaves the cursor
// after the raw payload.
func (p *parser) parseSound(path string) (*Sound, error) {
	r := p.r
	var s Sound
	if err := r.Skip(1); err != nil {
		return nil, err
	}
	var err error
	if s.ByteSize, err = r.ReadCompressedInt(); err != nil {
		return nil, err
	}
	ms, err := r.ReadCompressedInt()
	if err != nil {
		return nil, err
	}
	s.Duration = time.Duration(ms) * time.Millisecond
	if err = r.Skip(soundFormatHeader); err != nil {
		return nil, err
	}
	if s.Frequency, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if err = r.Skip(soundTrailer); err != nil {
		return nil, err
	}
	s.PayloadOffset = r.Position()
	if s.ByteSize < 0 || int(s.ByteSize) > r.Size()-s.PayloadOffset {
		return nil, fmt.Errorf("%w: sound %s payload of %d bytes at %d (size %d)",
			ErrOutOfRange, path, s.ByteSize, s.PayloadOffset, r.Size())
	}
	if err := r.SetPosition(s.PayloadOffset + int(s.ByteSize)); err != nil {
		return nil, err
	}
	return &s, nil
}
