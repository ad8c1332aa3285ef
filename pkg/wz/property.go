package wz

import (
	"fmt"

	"go.uber.org/zap"
)

// Property type tags.
const (
	tagNull     = 0x00
	tagUShort   = 0x02
	tagInt      = 0x03
	tagFloat    = 0x04
	tagDouble   = 0x05
	tagString   = 0x08
	tagExtended = 0x09
	tagUShortB  = 0x0B

	floatInline = 0x80
	floatZero   = 0x00
)

// Extended class names.
const (
	classProperty = "Property"
	classCanvas   = "Canvas"
	classVector   = "Shape2D#Vector2D"
	classConvex   = "Shape2D#Convex2D"
	classSound    = "Sound_DX8"
	classUOL      = "UOL"
)

// DefaultMaxDepth bounds nesting of sub-properties, canvases and convex
// shapes.
const DefaultMaxDepth = 64

// WarningKind classifies a recoverable anomaly met while decoding.
type WarningKind int

const (
	// WarnFloatSubtag: a float entry had an unknown sub-tag and was dropped.
	WarnFloatSubtag WarningKind = iota + 1
	// WarnCanvasFormat: a canvas has an unknown format sum; its decoded
	// size is unknown.
	WarnCanvasFormat
	// WarnSpanResync: an extended entry did not consume its declared span
	// and the cursor was moved to the declared end.
	WarnSpanResync
)

func (k WarningKind) String() string {
	switch k {
	case WarnFloatSubtag:
		return "float-subtag"
	case WarnCanvasFormat:
		return "canvas-format"
	case WarnSpanResync:
		return "span-resync"
	}
	return fmt.Sprintf("WarningKind(%d)", int(k))
}

// Warning records data that was decoded with a fallback instead of failing.
type Warning struct {
	Path   string
	Kind   WarningKind
	Detail string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Path, w.Kind, w.Detail)
}

// parser decodes property lists from a shared Reader.
type parser struct {
	r        *Reader
	log      *zap.Logger
	maxDepth int
	warnings []Warning
}

func newParser(r *Reader, log *zap.Logger, maxDepth int) *parser {
	if log == nil {
		log = zap.NewNop()
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &parser{r: r, log: log, maxDepth: maxDepth}
}

func (p *parser) warn(path string, kind WarningKind, detail string) {
	p.warnings = append(p.warnings, Warning{Path: path, Kind: kind, Detail: detail})
	if kind == WarnSpanResync {
		p.log.Debug("resynced extended property", zap.String("path", path), zap.String("detail", detail))
		return
	}
	p.log.Warn("recovered from unexpected data",
		zap.String("path", path), zap.Stringer("kind", kind), zap.String("detail", detail))
}

func childPath(target *Node, name string) string {
	return target.Path() + "/" + name
}

// parsePropertyList reads a property list at the cursor into target. base is
// the offset string-block references are relative to.
func (p *parser) parsePropertyList(target *Node, base, depth int) error {
	if depth > p.maxDepth {
		return fmt.Errorf("%w: %s deeper than %d", ErrDepthExceeded, target.Path(), p.maxDepth)
	}
	r := p.r
	at := r.Position()
	count, err := r.ReadCompressedInt()
	if err != nil {
		return fmt.Errorf("property count at %d: %w", at, err)
	}
	// every entry takes at least a name tag and a type tag
	if count < 0 || int(count) > (r.Size()-r.Position())/2 {
		return fmt.Errorf("%w: property count %d at %d", ErrMalformedData, count, at)
	}

	for i := int32(0); i < count; i++ {
		name, err := r.ReadStringBlock(base)
		if err != nil {
			return fmt.Errorf("name of entry %d in %s: %w", i, target.Path(), err)
		}
		tagAt := r.Position()
		tag, err := r.ReadByte()
		if err != nil {
			return err
		}

		var child *Node
		switch tag {
		case tagNull:
			child = NewValueNode(name, Null{})
		case tagUShort, tagUShortB:
			v, err := r.ReadUint16()
			if err != nil {
				return err
			}
			child = NewValueNode(name, UShort(v))
		case tagInt:
			v, err := r.ReadCompressedInt()
			if err != nil {
				return err
			}
			child = NewValueNode(name, Int(v))
		case tagFloat:
			sub, err := r.ReadByte()
			if err != nil {
				return err
			}
			switch sub {
			case floatInline:
				v, err := r.ReadFloat32()
				if err != nil {
					return err
				}
				child = NewValueNode(name, Float(v))
			case floatZero:
				child = NewValueNode(name, Float(0))
			default:
				p.warn(childPath(target, name), WarnFloatSubtag, fmt.Sprintf("sub-tag %#02x at %d", sub, tagAt+1))
			}
		case tagDouble:
			v, err := r.ReadFloat64()
			if err != nil {
				return err
			}
			child = NewValueNode(name, Double(v))
		case tagString:
			s, err := r.ReadStringBlock(base)
			if err != nil {
				return fmt.Errorf("string %s: %w", childPath(target, name), err)
			}
			child = NewValueNode(name, String(s))
		case tagExtended:
			length, err := r.ReadUint32()
			if err != nil {
				return err
			}
			end := r.Position() + int(length)
			if end > r.Size() {
				return fmt.Errorf("%w: extended entry %s ends at %d (size %d)",
					ErrOutOfRange, childPath(target, name), end, r.Size())
			}
			if err := p.parseExtended(name, target, base, depth, false); err != nil {
				return err
			}
			if pos := r.Position(); pos != end {
				p.warn(childPath(target, name), WarnSpanResync, fmt.Sprintf("declared end %d, parsed to %d", end, pos))
				if err := r.SetPosition(end); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: property type %#02x for %s at %d",
				ErrMalformedData, tag, childPath(target, name), tagAt)
		}
		if child != nil {
			target.AppendChild(name, child)
		}
	}
	return nil
}

// parseExtended reads one extended-class entry and attaches it to target.
// Inside a convex shape only points are allowed.
func (p *parser) parseExtended(name string, target *Node, base, depth int, inConvex bool) error {
	r := p.r
	at := r.Position()
	class, err := r.ReadStringBlock(base)
	if err != nil {
		return fmt.Errorf("class of %s: %w", childPath(target, name), err)
	}
	if inConvex && class != classVector {
		return fmt.Errorf("%w: %q inside convex %s at %d", ErrMalformedData, class, target.Path(), at)
	}

	switch class {
	case classProperty:
		if err := r.Skip(2); err != nil {
			return err
		}
		prop := NewNode(KindSubProperty, name, nil)
		target.AppendChild(name, prop)
		return p.parsePropertyList(prop, base, depth+1)

	case classCanvas:
		if err := r.Skip(1); err != nil {
			return err
		}
		hasProps, err := r.ReadByte()
		if err != nil {
			return err
		}
		canvas := NewNode(KindCanvas, name, nil)
		target.AppendChild(name, canvas)
		if hasProps == 1 {
			if err := r.Skip(2); err != nil {
				return err
			}
			if err := p.parsePropertyList(canvas, base, depth+1); err != nil {
				return err
			}
		}
		c, err := p.parseCanvas(canvas.Path())
		if err != nil {
			return err
		}
		canvas.value = c

	case classVector:
		x, err := r.ReadCompressedInt()
		if err != nil {
			return err
		}
		y, err := r.ReadCompressedInt()
		if err != nil {
			return err
		}
		target.AppendChild(name, NewValueNode(name, Vector2D{X: x, Y: y}))

	case classConvex:
		if depth+1 > p.maxDepth {
			return fmt.Errorf("%w: convex %s deeper than %d", ErrDepthExceeded, childPath(target, name), p.maxDepth)
		}
		count, err := r.ReadCompressedInt()
		if err != nil {
			return err
		}
		if count < 0 || int(count) > r.Size()-r.Position() {
			return fmt.Errorf("%w: convex point count %d at %d", ErrMalformedData, count, at)
		}
		convex := NewNode(KindConvex2D, name, nil)
		target.AppendChild(name, convex)
		for i := int32(0); i < count; i++ {
			if err := p.parseExtended(name, convex, base, depth+1, true); err != nil {
				return err
			}
		}

	case classSound:
		s, err := p.parseSound(childPath(target, name))
		if err != nil {
			return err
		}
		target.AppendChild(name, NewValueNode(name, s))

	case classUOL:
		if err := r.Skip(1); err != nil {
			return err
		}
		link, err := r.ReadStringBlock(base)
		if err != nil {
			return fmt.Errorf("link %s: %w", childPath(target, name), err)
		}
		target.AppendChild(name, NewValueNode(name, UOL{Target: link}))

	default:
		return fmt.Errorf("%w: unsupported extended class %q for %s at %d",
			ErrMalformedData, class, childPath(target, name), at)
	}
	return nil
}
