package wz

import (
	"fmt"
	"iter"
	"strconv"
)

// Kind identifies what a Node holds. It never changes after creation.
type Kind uint8

const (
	KindNotSet Kind = iota
	KindNull
	KindInt
	KindUShort
	KindFloat
	KindDouble
	KindString
	KindSubProperty
	KindCanvas
	KindVector2D
	KindConvex2D
	KindSound
	KindUOL
	KindProperty
	KindDirectory
	KindImage
)

var kindNames = [...]string{
	KindNotSet:      "NotSet",
	KindNull:        "Null",
	KindInt:         "Int",
	KindUShort:      "UnsignedShort",
	KindFloat:       "Float",
	KindDouble:      "Double",
	KindString:      "String",
	KindSubProperty: "SubProperty",
	KindCanvas:      "Canvas",
	KindVector2D:    "Vector2D",
	KindConvex2D:    "Convex2D",
	KindSound:       "Sound",
	KindUOL:         "UOL",
	KindProperty:    "Property",
	KindDirectory:   "Directory",
	KindImage:       "Image",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is the payload of a leaf or compound node. The set of
// implementations is closed.
type Value interface {
	kind() Kind
}

type (
	Null   struct{}
	UShort uint16
	Int    int32
	Float  float32
	Double float64
	String string
	// UOL is an unresolved link to another path, relative to the link's
	// parent.
	UOL struct{ Target string }
	// Vector2D is a point.
	Vector2D struct{ X, Y int32 }
)

func (Null) kind() Kind { return KindNull }
func (UShort) kind() Kind { return KindUShort }
func (Int) kind() Kind { return KindInt }
func (Float) kind() Kind { return KindFloat }
func (Double) kind() Kind { return KindDouble }
func (String) kind() Kind { return KindString }
func (UOL) kind() Kind { return KindUOL }
func (Vector2D) kind() Kind { return KindVector2D }
func (*Canvas) kind() Kind { return KindCanvas }
func (*Sound) kind() Kind { return KindSound }

// entry locates a directory or image blob inside the archive.
type entry struct {
	offset   uint32
	size     int32
	checksum int32
}

// Node is one element of the property tree. A parent owns its children;
// parent is a back reference only.
type Node struct {
	kind     Kind
	name     string
	parent   *Node
	value    Value
	children map[string][]*Node
	order    []string
	res      *Resolver
	loc      entry
}

// NewNode returns a detached node. value must match kind for leaf kinds and
// may be nil for container kinds.
func NewNode(kind Kind, name string, value Value) *Node {
	if value != nil && value.kind() != kind {
		panic(fmt.Sprintf("wz: %s value for %s node", value.kind(), kind))
	}
	return &Node{kind: kind, name: name, value: value}
}

// NewValueNode returns a detached leaf whose kind follows its value.
func NewValueNode(name string, v Value) *Node {
	return NewNode(v.kind(), name, v)
}

func (n *Node) Kind() Kind { return n.kind }
func (n *Node) Name() string { return n.name }
func (n *Node) Parent() *Node { return n.parent }
func (n *Node) Value() Value { return n.value }
func (n *Node) IsRoot() bool { return n.parent == nil }
func (n *Node) Len() int { return len(n.order) }
func (n *Node) IsProperty() bool {
	switch n.kind {
	case KindDirectory, KindImage, KindNotSet:
		return false
	}
	return true
}

// Path returns the slash separated path from the tree root.
func (n *Node) Path() string {
	if n.parent == nil {
		return n.name
	}
	return n.parent.Path() + "/" + n.name
}

// AppendChild attaches child under name. Same-named siblings are kept in
// insertion order.
func (n *Node) AppendChild(name string, child *Node) {
	if child.parent != nil {
		panic(fmt.Sprintf("wz: %q already has a parent", child.Path()))
	}
	if n.children == nil {
		n.children = make(map[string][]*Node)
	}
	if _, ok := n.children[name]; !ok {
		n.order = append(n.order, name)
	}
	n.children[name] = append(n.children[name], child)
	child.parent = n
	child.name = name
}

// Child returns the first child called name, or nil.
func (n *Node) Child(name string) *Node {
	if c := n.children[name]; len(c) > 0 {
		return c[0]
	}
	return nil
}

// ChildrenNamed returns every child called name in insertion order.
func (n *Node) ChildrenNamed(name string) []*Node {
	return n.children[name]
}

// Children iterates over child names in first-insertion order.
func (n *Node) Children() iter.Seq2[string, []*Node] {
	return func(yield func(string, []*Node) bool) {
		for _, name := range n.order {
			if !yield(name, n.children[name]) {
				return
			}
		}
	}
}

// Names returns child names in first-insertion order.
func (n *Node) Names() []string {
	return append([]string(nil), n.order...)
}

// Walk visits n and its subtree depth first. Returning false from fn skips
// the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, name := range n.order {
		for _, c := range n.children[name] {
			c.Walk(fn)
		}
	}
}

// Root returns the root of n's tree.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

func (n *Node) String() string {
	if n.value == nil {
		return fmt.Sprintf("%s(%s)", n.kind, n.Path())
	}
	return fmt.Sprintf("%s(%s)=%v", n.kind, n.Path(), n.value)
}

func (n *Node) mismatch(want Kind) error {
	return fmt.Errorf("%w: %s is %s, not %s", ErrKindMismatch, n.Path(), n.kind, want)
}

// UShort returns the value of an UnsignedShort node.
func (n *Node) UShort() (uint16, error) {
	if v, ok := n.value.(UShort); ok {
		return uint16(v), nil
	}
	return 0, n.mismatch(KindUShort)
}

// Int returns the value of an Int node.
func (n *Node) Int() (int32, error) {
	if v, ok := n.value.(Int); ok {
		return int32(v), nil
	}
	return 0, n.mismatch(KindInt)
}

// Float returns the value of a Float node.
func (n *Node) Float() (float32, error) {
	if v, ok := n.value.(Float); ok {
		return float32(v), nil
	}
	return 0, n.mismatch(KindFloat)
}

// Double returns the value of a Double node.
func (n *Node) Double() (float64, error) {
	if v, ok := n.value.(Double); ok {
		return float64(v), nil
	}
	return 0, n.mismatch(KindDouble)
}

// Str returns the value of a String node.
func (n *Node) Str() (string, error) {
	if v, ok := n.value.(String); ok {
		return string(v), nil
	}
	return "", n.mismatch(KindString)
}

// Canvas returns the header of a Canvas node.
func (n *Node) Canvas() (*Canvas, error) {
	if v, ok := n.value.(*Canvas); ok {
		return v, nil
	}
	return nil, n.mismatch(KindCanvas)
}

// Sound returns the header of a Sound node.
func (n *Node) Sound() (*Sound, error) {
	if v, ok := n.value.(*Sound); ok {
		return v, nil
	}
	return nil, n.mismatch(KindSound)
}

// Vector returns the point of a Vector2D node.
func (n *Node) Vector() (Vector2D, error) {
	if v, ok := n.value.(Vector2D); ok {
		return v, nil
	}
	return Vector2D{}, n.mismatch(KindVector2D)
}

// Points returns the vertices of a Convex2D node.
func (n *Node) Points() ([]Vector2D, error) {
	if n.kind != KindConvex2D {
		return nil, n.mismatch(KindConvex2D)
	}
	var pts []Vector2D
	for _, name := range n.order {
		for _, c := range n.children[name] {
			v, err := c.Vector()
			if err != nil {
				return nil, err
			}
			pts = append(pts, v)
		}
	}
	return pts, nil
}

// Link returns the unresolved target of a UOL node.
func (n *Node) Link() (string, error) {
	if v, ok := n.value.(UOL); ok {
		return v.Target, nil
	}
	return "", n.mismatch(KindUOL)
}

// AsInt coerces numeric nodes, and strings holding a decimal integer, to an
// int.
func (n *Node) AsInt() (int, error) {
	switch v := n.value.(type) {
	case Int:
		return int(v), nil
	case UShort:
		return int(v), nil
	case Float:
		return int(v), nil
	case Double:
		return int(v), nil
	case String:
		i, err := strconv.Atoi(string(v))
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not numeric: %v", ErrKindMismatch, n.Path(), err)
		}
		return i, nil
	}
	return 0, n.mismatch(KindInt)
}
