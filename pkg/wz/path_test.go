package wz

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildTree returns
//
//	Map
//	└── A
//	    ├── B
//	    │   └── leaf = 42
//	    ├── alias -> B/leaf
//	    ├── hop1 -> hop2
//	    ├── hop2 -> ../A/B/leaf
//	    ├── dirLink -> B
//	    ├── loopX -> loopY
//	    ├── loopY -> loopX
//	    └── broken -> nowhere
func buildTree() *Node {
	root := NewNode(KindDirectory, "Map", nil)
	a := NewNode(KindSubProperty, "", nil)
	root.AppendChild("A", a)
	b := NewNode(KindSubProperty, "", nil)
	a.AppendChild("B", b)
	b.AppendChild("leaf", NewValueNode("", Int(42)))
	a.AppendChild("alias", NewValueNode("", UOL{Target: "B/leaf"}))
	a.AppendChild("hop1", NewValueNode("", UOL{Target: "hop2"}))
	a.AppendChild("hop2", NewValueNode("", UOL{Target: "../A/B/leaf"}))
	a.AppendChild("dirLink", NewValueNode("", UOL{Target: "B"}))
	a.AppendChild("loopX", NewValueNode("", UOL{Target: "loopY"}))
	a.AppendChild("loopY", NewValueNode("", UOL{Target: "loopX"}))
	a.AppendChild("broken", NewValueNode("", UOL{Target: "nowhere"}))
	return root
}

func TestResolvePaths(t *testing.T) {
	root := buildTree()
	tests := []struct {
		name string
		path string
		want string
	}{
		{"child", "A", "Map/A"},
		{"nested", "A/B/leaf", "Map/A/B/leaf"},
		{"parent", "A/B/..", "Map/A"},
		{"parent then child", "A/B/../B/leaf", "Map/A/B/leaf"},
		{"empty components", "A//B/", "Map/A/B"},
		{"empty path", "", "Map"},
		{"link", "A/alias", "Map/A/B/leaf"},
		{"link chain", "A/hop1", "Map/A/B/leaf"},
		{"through link", "A/dirLink/leaf", "Map/A/B/leaf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := root.Get(tt.path)
			if err != nil {
				t.Fatal(err)
			}
			if n.Path() != tt.want {
				t.Errorf("Get(%q) = %s, want %s", tt.path, n.Path(), tt.want)
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	root := buildTree()
	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing", "X", ErrNodeNotFound},
		{"missing nested", "A/B/nope", ErrNodeNotFound},
		{"above root", "..", ErrInvalidPath},
		{"above root later", "A/../..", ErrInvalidPath},
		{"loop", "A/loopX", ErrLinkLoop},
		{"broken link", "A/broken", ErrNodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := root.Get(tt.path); !errors.Is(err, tt.want) {
				t.Fatalf("Get(%q) err = %v, want %v", tt.path, err, tt.want)
			}
		})
	}
}

func TestResolveFromInnerNode(t *testing.T) {
	root := buildTree()
	b, err := root.Get("A/B")
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := b.Get("../alias")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := leaf.Int(); v != 42 {
		t.Errorf("leaf = %d", v)
	}
}

func TestResolveMaxHops(t *testing.T) {
	root := buildTree()
	root.AttachResolver(&Resolver{MaxHops: 1})
	if _, err := root.Get("A/alias"); err != nil {
		t.Fatalf("one hop: %v", err)
	}
	if _, err := root.Get("A/hop1"); !errors.Is(err, ErrLinkLoop) {
		t.Fatalf("two hops with limit 1: err = %v", err)
	}
}

func TestNodeChildrenOrder(t *testing.T) {
	n := NewNode(KindSubProperty, "list", nil)
	for _, name := range []string{"b", "a", "b", "c"} {
		n.AppendChild(name, NewValueNode("", String(name)))
	}
	var got []string
	for name, nodes := range n.Children() {
		got = append(got, name)
		if name == "b" && len(nodes) != 2 {
			t.Errorf("b has %d nodes", len(nodes))
		}
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, got); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if n.Len() != 3 {
		t.Errorf("Len = %d", n.Len())
	}
	if n.Child("b") != n.ChildrenNamed("b")[0] {
		t.Error("Child does not return the first same-named sibling")
	}
}

func TestNodeAccessorsMismatch(t *testing.T) {
	n := NewValueNode("speed", Int(5))
	if _, err := n.Str(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Str on Int: %v", err)
	}
	if _, err := n.Points(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Points on Int: %v", err)
	}
	if v, err := n.AsInt(); err != nil || v != 5 {
		t.Errorf("AsInt = %d, %v", v, err)
	}
	if v, err := NewValueNode("s", String("12")).AsInt(); err != nil || v != 12 {
		t.Errorf("AsInt on numeric string = %d, %v", v, err)
	}
	if _, err := NewValueNode("s", String("x")).AsInt(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("AsInt on text: %v", err)
	}
}

func TestNewNodeKindMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewNode accepted an Int value for a String node")
		}
	}()
	NewNode(KindString, "x", Int(1))
}

type countingParser struct {
	calls int
}

func (p *countingParser) ParseImage(img *Node) (*Node, error) {
	p.calls++
	root := NewNode(KindProperty, img.Name(), nil)
	root.AppendChild("val", NewValueNode("", Int(int32(p.calls))))
	root.parent = img.parent
	return root, nil
}

func imageTree() *Node {
	root := NewNode(KindDirectory, "Mob", nil)
	root.AppendChild("a.img", NewNode(KindImage, "", nil))
	root.AppendChild("b.img", NewNode(KindImage, "", nil))
	root.AppendChild("link", NewValueNode("", UOL{Target: "a.img/val"}))
	return root
}

func TestResolveExpandsImagesOnce(t *testing.T) {
	root := imageTree()
	parser := &countingParser{}
	cache := NewMapImageCache()
	root.AttachResolver(&Resolver{Images: parser, Cache: cache})

	for range 3 {
		n, err := root.Get("a.img/val")
		if err != nil {
			t.Fatal(err)
		}
		if n.Path() != "Mob/a.img/val" {
			t.Errorf("path = %q", n.Path())
		}
	}
	if _, err := root.Get("link"); err != nil {
		t.Fatal(err)
	}
	if parser.calls != 1 || cache.Len() != 1 {
		t.Errorf("parsed %d times, cache holds %d", parser.calls, cache.Len())
	}

	img, _ := root.Get("b.img")
	if img.Kind() != KindProperty || img.Path() != "Mob/b.img" {
		t.Errorf("expanded image = %v", img)
	}
	if root.Child("b.img").Kind() != KindImage {
		t.Error("directory entry was replaced by its expansion")
	}
}

func TestResolveARCEvicts(t *testing.T) {
	root := imageTree()
	parser := &countingParser{}
	cache, err := NewARCImageCache(1)
	if err != nil {
		t.Fatal(err)
	}
	root.AttachResolver(&Resolver{Images: parser, Cache: cache})
	for _, p := range []string{"a.img", "b.img", "a.img"} {
		if _, err := root.Get(p); err != nil {
			t.Fatal(err)
		}
	}
	if parser.calls != 3 {
		t.Errorf("parsed %d times, want 3", parser.calls)
	}
	if cache.Len() != 1 {
		t.Errorf("cache holds %d", cache.Len())
	}
}

func TestResolveWithoutImageParser(t *testing.T) {
	root := imageTree()
	if _, err := root.Get("a.img/val"); !errors.Is(err, ErrNoImageParser) {
		t.Fatalf("err = %v, want ErrNoImageParser", err)
	}
}
