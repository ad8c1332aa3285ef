package wz

import (
	"fmt"
	"strings"
)

// DefaultMaxLinkHops bounds how many UOL links one lookup may follow.
const DefaultMaxLinkHops = 16

// ImageParser expands an Image node into its property subtree. The returned
// root reports the image's parent and path but is not one of the parent's
// children.
type ImageParser interface {
	ParseImage(img *Node) (*Node, error)
}

// Resolver walks slash separated paths. It follows UOL links and expands
// Image nodes on first traversal, caching the expanded subtree by path.
//
// A Resolver does no locking of its own; trees shared between goroutines
// need external synchronisation (File.Get provides it for archives).
type Resolver struct {
	Images  ImageParser
	Cache   ImageCache
	MaxHops int
}

var detached = &Resolver{}

// AttachResolver makes res the resolver used by Get on n and its subtree.
func (n *Node) AttachResolver(res *Resolver) { n.res = res }

func (n *Node) resolver() *Resolver {
	for m := n; m != nil; m = m.parent {
		if m.res != nil {
			return m.res
		}
	}
	return detached
}

// Get resolves path relative to n.
func (n *Node) Get(path string) (*Node, error) {
	return n.resolver().Resolve(n, path)
}

// Resolve walks path from start. ".." moves to the parent; any other
// component selects the first child of that name. Empty components are
// ignored.
func (res *Resolver) Resolve(start *Node, path string) (*Node, error) {
	return res.resolve(start, path, 0)
}

func (res *Resolver) maxHops() int {
	if res.MaxHops > 0 {
		return res.MaxHops
	}
	return DefaultMaxLinkHops
}

func (res *Resolver) resolve(start *Node, path string, hops int) (*Node, error) {
	node := start
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "":
			continue
		case "..":
			if node.parent == nil {
				return nil, fmt.Errorf("%w: %q climbs above %q", ErrInvalidPath, path, node.Path())
			}
			node = node.parent
			continue
		}
		child := node.Child(part)
		if child == nil {
			return nil, fmt.Errorf("%w: %q under %q", ErrNodeNotFound, part, node.Path())
		}
		var err error
		if node, err = res.settle(child, hops); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// settle follows a link and expands an image so the walk continues from
// real content.
func (res *Resolver) settle(node *Node, hops int) (*Node, error) {
	if node.kind == KindUOL {
		if hops >= res.maxHops() {
			return nil, fmt.Errorf("%w: %s after %d links", ErrLinkLoop, node.Path(), hops)
		}
		target, _ := node.Link()
		next, err := res.resolve(node.parent, target, hops+1)
		if err != nil {
			return nil, fmt.Errorf("link %s -> %q: %w", node.Path(), target, err)
		}
		node = next
	}
	if node.kind == KindImage {
		return res.expand(node)
	}
	return node, nil
}

func (res *Resolver) expand(img *Node) (*Node, error) {
	path := img.Path()
	if res.Cache != nil {
		if root, ok := res.Cache.Get(path); ok {
			return root, nil
		}
	}
	if res.Images == nil {
		return nil, fmt.Errorf("%w: cannot expand %s", ErrNoImageParser, path)
	}
	root, err := res.Images.ParseImage(img)
	if err != nil {
		return nil, fmt.Errorf("expand image %s: %w", path, err)
	}
	if res.Cache != nil {
		res.Cache.Add(path, root)
	}
	return root, nil
}
