// Package imgfile reads standalone image blobs: an image cut out of an
// archive and saved on its own, usually with an .img extension.
package imgfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/wzgo/pkg/wz"
)

// Image is a standalone image parsed into a property tree.
type Image struct {
	Root     *wz.Node
	Warnings []wz.Warning
	data     []byte
}

// Extract finds the image at path inside f and copies its raw blob out of
// the archive. The image is not expanded.
func Extract(f *wz.File, path string) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("archive is nil")
	}
	if path == "" {
		return nil, fmt.Errorf("image path cannot be empty")
	}
	img, err := f.Lookup(path)
	if err != nil {
		return nil, fmt.Errorf("failed to find image %q: %w", path, err)
	}
	off, size, err := f.ImageSpan(img)
	if err != nil {
		return nil, fmt.Errorf("%q is not an image: %w", path, err)
	}
	data, err := f.ReadSpan(off, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %q: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("extracted image %q has no content", path)
	}
	return data, nil
}

// Open parses data as one image blob starting at offset 0. name becomes the
// root's name. Options are those of wz.Open; the keystream must match the
// archive the blob came from.
func Open(data []byte, name string, opts ...wz.Option) (*Image, error) {
	root, warnings, err := wz.DecodeImage(wz.BytesSource(data), 0, name, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse image %q: %w", name, err)
	}
	return &Image{Root: root, Warnings: warnings, data: data}, nil
}

// OpenFile reads and parses the image blob stored at path.
func OpenFile(path string, opts ...wz.Option) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return Open(data, filepath.Base(path), opts...)
}

// Get resolves path relative to the image root.
func (img *Image) Get(path string) (*wz.Node, error) {
	return img.Root.Get(strings.TrimPrefix(path, "/"))
}

// Payload returns the raw bytes behind a Canvas or Sound node of the image.
func (img *Image) Payload(n *wz.Node) ([]byte, error) {
	var off, size int
	switch n.Kind() {
	case wz.KindCanvas:
		c, err := n.Canvas()
		if err != nil {
			return nil, err
		}
		off, size = c.PayloadOffset, int(c.ByteSize)
	case wz.KindSound:
		s, err := n.Sound()
		if err != nil {
			return nil, err
		}
		off, size = s.PayloadOffset, int(s.ByteSize)
	default:
		return nil, fmt.Errorf("%w: %s has no payload", wz.ErrKindMismatch, n.Path())
	}
	if off < 0 || size < 0 || off+size > len(img.data) {
		return nil, fmt.Errorf("%w: %s payload %d+%d outside image of %d bytes", wz.ErrOutOfRange, n.Path(), off, size, len(img.data))
	}
	return img.data[off : off+size], nil
}

// Bytes returns the blob the image was parsed from.
func (img *Image) Bytes() []byte { return img.data }
