package wz

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/mmap"
)

// Magic identifies an archive.
const Magic = "PKG1"

// Header is the fixed prologue of an archive.
type Header struct {
	Magic     [4]byte
	FileSize  uint64
	DataStart uint32
	Copyright string
}

// Directory entry types.
const (
	entrySkip      = 1
	entryIndirect  = 2
	entryDirectory = 3
	entryImage     = 4
)

// File is an opened archive. Its directory tree is parsed eagerly; images
// are expanded the first time a path crosses them.
//
// Get and ParseImage serialise on the File. Nodes returned to the caller may
// still be navigated with Node.Get, which expands images through the same
// File; callers doing that from several goroutines must synchronise
// themselves.
type File struct {
	mu     sync.Mutex
	src    Source
	closer io.Closer
	r      *Reader
	p      *parser
	opts   options
	log    *zap.Logger

	header     Header
	encVersion uint16
	version    int
	hash       uint32

	root   *Node
	res    *Resolver
	closed bool
}

// Open maps the archive at path and parses its directory tree.
func Open(path string, opts ...Option) (*File, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to map archive %s: %w", path, err)
	}
	base := filepath.Base(path)
	opts = append([]Option{WithName(strings.TrimSuffix(base, filepath.Ext(base)))}, opts...)
	f, err := NewFile(m, opts...)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	f.closer = m
	return f, nil
}

// OpenBytes parses an archive held in memory.
func OpenBytes(data []byte, opts ...Option) (*File, error) {
	return NewFile(BytesSource(data), opts...)
}

// NewFile parses the archive in src.
func NewFile(src Source, opts ...Option) (*File, error) {
	o := buildOptions(opts)
	r := NewReader(src, o.keys)
	f := &File{
		src:  src,
		r:    r,
		p:    newParser(r, o.log, o.maxDepth),
		opts: o,
		log:  o.log,
	}
	if err := f.readHeader(); err != nil {
		return nil, err
	}
	if err := f.detectVersion(); err != nil {
		return nil, err
	}
	f.res = &Resolver{Images: f, Cache: o.cache, MaxHops: o.maxHops}
	f.root.AttachResolver(f.res)
	return f, nil
}

func (f *File) readHeader() error {
	r := f.r
	magic, err := ReadFixed[[4]byte](r)
	if err != nil {
		return fmt.Errorf("failed to read magic: %w", err)
	}
	if string(magic[:]) != Magic {
		return fmt.Errorf("%w: magic %q", ErrBadMagic, magic[:])
	}
	f.header.Magic = magic
	if f.header.FileSize, err = r.ReadUint64(); err != nil {
		return fmt.Errorf("failed to read file size: %w", err)
	}
	if f.header.DataStart, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("failed to read data start: %w", err)
	}
	if f.header.Copyright, err = r.ReadASCIIString(); err != nil {
		return fmt.Errorf("failed to read copyright: %w", err)
	}
	if err := r.SetPosition(int(f.header.DataStart)); err != nil {
		return fmt.Errorf("data start: %w", err)
	}
	if f.encVersion, err = r.ReadUint16(); err != nil {
		return fmt.Errorf("failed to read version tag: %w", err)
	}
	return nil
}

// detectVersion finds the version whose hash decodes a consistent directory
// tree. A configured version is only checked.
func (f *File) detectVersion() error {
	if f.opts.version > 0 {
		hash, ok := VerifyVersion(f.encVersion, f.opts.version)
		if !ok {
			return fmt.Errorf("%w: version %d, header tag %d", ErrVersionMismatch, f.opts.version, f.encVersion)
		}
		root, err := f.parseTree(hash)
		if err != nil {
			return err
		}
		f.version, f.hash, f.root = f.opts.version, hash, root
		return nil
	}

	var lastErr error
	for v := 0; v <= f.opts.maxVersion; v++ {
		hash, ok := VerifyVersion(f.encVersion, v)
		if !ok {
			continue
		}
		root, err := f.parseTree(hash)
		if err != nil {
			f.log.Debug("version candidate rejected", zap.Int("version", v), zap.Error(err))
			lastErr = err
			continue
		}
		f.version, f.hash, f.root = v, hash, root
		f.log.Debug("detected version", zap.Int("version", v), zap.Uint32("hash", hash))
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("%w: no version up to %d decodes the directory: %w",
			ErrVersionMismatch, f.opts.maxVersion, lastErr)
	}
	return fmt.Errorf("%w: no version up to %d matches header tag %d",
		ErrVersionMismatch, f.opts.maxVersion, f.encVersion)
}

func (f *File) parseTree(hash uint32) (*Node, error) {
	root := NewNode(KindDirectory, f.opts.name, nil)
	root.loc = entry{offset: f.header.DataStart + 2}
	if err := f.parseDirectory(root, hash, 0); err != nil {
		return nil, err
	}
	return root, nil
}

type dirEntry struct {
	kind Kind
	name string
	loc  entry
}

// parseDirectory reads the entry table of dir and recurses into
// sub-directories.
func (f *File) parseDirectory(dir *Node, hash uint32, depth int) error {
	if depth > f.opts.maxDepth {
		return fmt.Errorf("%w: directory %s deeper than %d", ErrDepthExceeded, dir.Path(), f.opts.maxDepth)
	}
	r := f.r
	if err := r.SetPosition(int(dir.loc.offset)); err != nil {
		return fmt.Errorf("directory %s: %w", dir.Path(), err)
	}
	count, err := r.ReadCompressedInt()
	if err != nil {
		return fmt.Errorf("directory %s entry count: %w", dir.Path(), err)
	}
	if count < 0 || int(count) > r.Size()-r.Position() {
		return fmt.Errorf("%w: directory %s has %d entries", ErrMalformedData, dir.Path(), count)
	}

	entries := make([]dirEntry, 0, count)
	for i := int32(0); i < count; i++ {
		e, skip, err := f.readDirEntry(hash)
		if err != nil {
			return fmt.Errorf("directory %s entry %d: %w", dir.Path(), i, err)
		}
		if !skip {
			entries = append(entries, e)
		}
	}

	for _, e := range entries {
		child := NewNode(e.kind, e.name, nil)
		child.loc = e.loc
		dir.AppendChild(e.name, child)
		if e.kind == KindDirectory {
			if err := f.parseDirectory(child, hash, depth+1); err != nil {
				return err
			}
		}
	}
	f.log.Debug("parsed directory", zap.String("path", dir.Path()), zap.Int("entries", len(entries)))
	return nil
}

func (f *File) readDirEntry(hash uint32) (e dirEntry, skip bool, err error) {
	r := f.r
	at := r.Position()
	typ, err := r.ReadByte()
	if err != nil {
		return e, false, err
	}
	switch typ {
	case entrySkip:
		if err := r.Skip(4 + 2); err != nil {
			return e, false, err
		}
		if _, err := r.ReadOffset(f.header.DataStart, hash); err != nil {
			return e, false, err
		}
		return e, true, nil
	case entryIndirect:
		strOff, err := r.ReadInt32()
		if err != nil {
			return e, false, err
		}
		prev := r.Position()
		if err := r.SetPosition(int(f.header.DataStart) + int(strOff)); err != nil {
			return e, false, err
		}
		if typ, err = r.ReadByte(); err != nil {
			return e, false, err
		}
		if e.name, err = r.ReadCipherString(); err != nil {
			return e, false, err
		}
		r.pos = prev
	case entryDirectory, entryImage:
		if e.name, err = r.ReadCipherString(); err != nil {
			return e, false, err
		}
	default:
		return e, false, fmt.Errorf("%w: entry type %d at %d", ErrMalformedData, typ, at)
	}

	switch typ {
	case entryDirectory:
		e.kind = KindDirectory
	case entryImage:
		e.kind = KindImage
	default:
		return e, false, fmt.Errorf("%w: indirect entry type %d at %d", ErrMalformedData, typ, at)
	}
	if e.loc.size, err = r.ReadCompressedInt(); err != nil {
		return e, false, err
	}
	if e.loc.checksum, err = r.ReadCompressedInt(); err != nil {
		return e, false, err
	}
	if e.loc.offset, err = r.ReadOffset(f.header.DataStart, hash); err != nil {
		return e, false, err
	}
	if e.loc.size < 0 || int(e.loc.offset) >= r.Size() || int(e.loc.offset)+int(e.loc.size) > r.Size() {
		return e, false, fmt.Errorf("%w: entry %q spans %d+%d (size %d)",
			ErrOutOfRange, e.name, e.loc.offset, e.loc.size, r.Size())
	}
	return e, false, nil
}

// ParseImage expands an Image node into a fresh property subtree.
func (f *File) ParseImage(img *Node) (*Node, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if img.kind != KindImage {
		return nil, img.mismatch(KindImage)
	}
	prev := f.r.Position()
	defer func() { f.r.pos = prev }()

	root, err := f.p.decodeImage(int(img.loc.offset), img.name, img.parent)
	if err != nil {
		return nil, err
	}
	f.log.Debug("expanded image", zap.String("path", img.Path()), zap.Int("entries", root.Len()))
	return root, nil
}

// decodeImage parses the image blob at offset into a new root. The root
// reports parent as its parent without being one of its children.
func (p *parser) decodeImage(offset int, name string, parent *Node) (*Node, error) {
	if err := p.r.SetPosition(offset); err != nil {
		return nil, err
	}
	ok, err := p.r.IsImageProbe()
	if err != nil {
		return nil, fmt.Errorf("image %s header: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s at %d is not an image", ErrMalformedData, name, offset)
	}
	root := NewNode(KindProperty, name, nil)
	root.parent = parent
	if err := p.parsePropertyList(root, offset, 0); err != nil {
		return nil, err
	}
	return root, nil
}

// DecodeImage parses a single image blob that starts at offset in src.
// String-block references are relative to offset.
func DecodeImage(src Source, offset int, name string, opts ...Option) (*Node, []Warning, error) {
	o := buildOptions(opts)
	p := newParser(NewReader(src, o.keys), o.log, o.maxDepth)
	root, err := p.decodeImage(offset, name, nil)
	if err != nil {
		return nil, p.warnings, err
	}
	root.AttachResolver(&Resolver{Cache: o.cache, MaxHops: o.maxHops})
	return root, p.warnings, nil
}

// Get resolves path from the archive root, expanding images on the way.
func (f *File) Get(path string) (*Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	return f.res.Resolve(f.root, path)
}

// Lookup resolves path from the root without expanding a trailing image.
// Links and images crossed before the last component are still followed.
func (f *File) Lookup(path string) (*Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	dir, last := "", path
	if i := strings.LastIndex(strings.TrimRight(path, "/"), "/"); i >= 0 {
		dir, last = path[:i], strings.TrimRight(path[i+1:], "/")
	}
	parent, err := f.res.Resolve(f.root, dir)
	if err != nil {
		return nil, err
	}
	n := parent.Child(last)
	if n == nil {
		return nil, fmt.Errorf("%w: %q under %q", ErrNodeNotFound, last, parent.Path())
	}
	return n, nil
}

// Root returns the root directory.
func (f *File) Root() *Node { return f.root }

// Header returns the archive prologue.
func (f *File) Header() Header { return f.header }

// Version returns the detected or configured archive version.
func (f *File) Version() int { return f.version }

// Hash returns the version hash used to decrypt entry offsets.
func (f *File) Hash() uint32 { return f.hash }

// Size returns the length of the backing buffer.
func (f *File) Size() int { return f.r.Size() }

// Warnings returns the anomalies recovered from so far.
func (f *File) Warnings() []Warning {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Warning(nil), f.p.warnings...)
}

// CachedImages returns how many expanded images the cache holds.
func (f *File) CachedImages() int { return f.res.Cache.Len() }

// ImageSpan returns where an Image node's blob lies in the archive.
func (f *File) ImageSpan(img *Node) (offset, size int, err error) {
	if img.kind != KindImage {
		return 0, 0, img.mismatch(KindImage)
	}
	return int(img.loc.offset), int(img.loc.size), nil
}

// ReadSpan copies size bytes at offset out of the archive.
func (f *File) ReadSpan(offset, size int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	if offset < 0 || size < 0 || offset+size > f.src.Len() {
		return nil, fmt.Errorf("%w: span %d+%d (size %d)", ErrOutOfRange, offset, size, f.src.Len())
	}
	buf := make([]byte, size)
	if _, err := f.src.ReadAt(buf, int64(offset)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read span %d+%d: %w", offset, size, err)
	}
	return buf, nil
}

// CanvasData returns the raw, still compressed, pixel payload of a Canvas
// node.
func (f *File) CanvasData(n *Node) ([]byte, error) {
	c, err := n.Canvas()
	if err != nil {
		return nil, err
	}
	return f.ReadSpan(c.PayloadOffset, int(c.ByteSize))
}

// SoundData returns the raw audio payload of a Sound node.
func (f *File) SoundData(n *Node) ([]byte, error) {
	s, err := n.Sound()
	if err != nil {
		return nil, err
	}
	return f.ReadSpan(s.PayloadOffset, int(s.ByteSize))
}

// Close releases the mapping. Nodes stay readable but images can no longer
// be expanded.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

var _ ImageParser = (*File)(nil)
