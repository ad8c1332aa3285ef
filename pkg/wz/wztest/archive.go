package wztest

import (
	"encoding/binary"
	"math/bits"
)

// Dir is a directory of an Archive.
type Dir struct {
	Name   string
	Dirs   []Dir
	Images []Image
	// Skips is how many type 1 filler entries precede the real ones.
	Skips int
	// Indirect stores this directory's name out of line (entry type 2).
	Indirect bool
}

// Image is an image entry of an Archive.
type Image struct {
	Name    string
	Entries []Entry
	// Blob, when set, replaces the encoding of Entries.
	Blob     []byte
	Indirect bool
}

// Archive describes a whole PKG1 file.
type Archive struct {
	Copyright string
	// Tag is the encrypted version stored after the header and Hash the
	// matching version hash entry offsets are encrypted with.
	Tag  uint16
	Hash uint32
	Root Dir
}

type offsetFixup struct {
	at     int
	target func() int
}

type nameFixup struct {
	at   int
	kind byte
	name string
}

type archiveWriter struct {
	*Buffer
	a         *Archive
	dataStart uint32
	offsets   []offsetFixup
	names     []nameFixup
}

// Encode lays the archive out: header, version tag, root table, then each
// directory's children depth first. Out of line names go last.
func (a *Archive) Encode(ks KeyStream) []byte {
	w := &archiveWriter{Buffer: NewBuffer(ks), a: a}
	w.WriteString("PKG1")
	w.Uint64(0)
	w.Uint32(0)
	w.ASCIIZ(a.Copyright)
	w.dataStart = uint32(w.Pos())
	binary.LittleEndian.PutUint32(w.Bytes()[12:], w.dataStart)
	w.Uint16(a.Tag)
	w.dir(&a.Root)

	for _, n := range w.names {
		binary.LittleEndian.PutUint32(w.Bytes()[n.at:], uint32(w.Pos())-w.dataStart)
		w.WriteByte(n.kind)
		w.CipherString(n.name)
	}
	for _, f := range w.offsets {
		binary.LittleEndian.PutUint32(w.Bytes()[f.at:], EncryptOffset(f.at, f.target(), w.dataStart, a.Hash))
	}
	out := w.Bytes()
	binary.LittleEndian.PutUint64(out[4:], uint64(len(out)))
	return out
}

func (w *archiveWriter) entryName(kind byte, name string, indirect bool) {
	if indirect {
		w.WriteByte(2)
		w.names = append(w.names, nameFixup{at: w.Pos(), kind: kind, name: name})
		w.Int32(0)
		return
	}
	w.WriteByte(kind)
	w.CipherString(name)
}

func (w *archiveWriter) dir(d *Dir) {
	blobs := make([][]byte, len(d.Images))
	for i, img := range d.Images {
		blobs[i] = img.Blob
		if blobs[i] == nil {
			blobs[i] = EncodeImage(w.Keys, img.Entries)
		}
	}

	w.CompressedInt(int32(d.Skips + len(d.Dirs) + len(d.Images)))
	for range d.Skips {
		w.WriteByte(1)
		w.Int32(0)
		w.Int16(0)
		w.Uint32(0)
	}
	dirAt := make([]int, len(d.Dirs))
	for i := range d.Dirs {
		sub := &d.Dirs[i]
		w.entryName(3, sub.Name, sub.Indirect)
		w.CompressedInt(0)
		w.CompressedInt(0)
		i := i
		w.offsets = append(w.offsets, offsetFixup{at: w.Pos(), target: func() int { return dirAt[i] }})
		w.Uint32(0)
	}
	imgAt := make([]int, len(d.Images))
	for i, img := range d.Images {
		w.entryName(4, img.Name, img.Indirect)
		w.CompressedInt(int32(len(blobs[i])))
		w.CompressedInt(0)
		i := i
		w.offsets = append(w.offsets, offsetFixup{at: w.Pos(), target: func() int { return imgAt[i] }})
		w.Uint32(0)
	}

	for i := range d.Dirs {
		dirAt[i] = w.Pos()
		w.dir(&d.Dirs[i])
	}
	for i, blob := range blobs {
		imgAt[i] = w.Pos()
		w.Write(blob)
	}
}

// EncryptOffset returns the value that decrypts to target when stored at
// position at.
func EncryptOffset(at, target int, dataStart, hash uint32) uint32 {
	off := uint32(at) - dataStart
	off ^= 0xFFFFFFFF
	off *= hash
	off -= 0x581C3F6D
	off = bits.RotateLeft32(off, int(off&0x1F))
	return off ^ (uint32(target) - dataStart*2)
}
