package wz

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/rryqszq4/go-murmurhash"
)

// ImageCache maps image paths to their expanded subtrees. Implementations
// must be safe for concurrent use.
type ImageCache interface {
	Get(path string) (*Node, bool)
	Add(path string, root *Node)
	Len() int
}

const pathHashSeed = 0x1337B33F

func pathHash(path string) uint64 {
	return murmurhash.MurmurHash64A([]byte(path), pathHashSeed)
}

type cachedImage struct {
	path string
	root *Node
}

// MapImageCache keeps every expanded image until it is dropped with its
// archive. It never evicts.
type MapImageCache struct {
	mu      sync.RWMutex
	entries map[uint64][]cachedImage
	n       int
}

// NewMapImageCache returns an empty unbounded cache.
func NewMapImageCache() *MapImageCache {
	return &MapImageCache{entries: make(map[uint64][]cachedImage)}
}

func (c *MapImageCache) Get(path string) (*Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries[pathHash(path)] {
		if e.path == path {
			return e.root, true
		}
	}
	return nil, false
}

func (c *MapImageCache) Add(path string, root *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := pathHash(path)
	bucket := c.entries[h]
	for i, e := range bucket {
		if e.path == path {
			bucket[i].root = root
			return
		}
	}
	c.entries[h] = append(bucket, cachedImage{path: path, root: root})
	c.n++
}

func (c *MapImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.n
}

// ARCImageCache holds at most size expanded images and evicts with the
// adaptive replacement policy. An evicted image is parsed again the next time
// a path crosses it. Hash collisions count as misses.
type ARCImageCache struct {
	mu   sync.Mutex
	size int
	arc  *arc.ARCCache[uint64, cachedImage]
}

// NewARCImageCache returns a cache bounded to size images.
func NewARCImageCache(size int) (*ARCImageCache, error) {
	c, err := arc.NewARC[uint64, cachedImage](size)
	if err != nil {
		return nil, fmt.Errorf("image cache of size %d: %w", size, err)
	}
	return &ARCImageCache{size: size, arc: c}, nil
}

func (c *ARCImageCache) Get(path string) (*Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.arc.Get(pathHash(path))
	if !ok || e.path != path {
		return nil, false
	}
	return e.root, true
}

func (c *ARCImageCache) Add(path string, root *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := pathHash(path)
	c.arc.Add(h, cachedImage{path: path, root: root})
	// a hit on a ghost entry can leave one image over the bound; drop the
	// oldest other image until it fits
	for c.arc.Len() > c.size {
		evicted := false
		for _, k := range c.arc.Keys() {
			if k != h {
				c.arc.Remove(k)
				evicted = true
				break
			}
		}
		if !evicted {
			break
		}
	}
}

func (c *ARCImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arc.Len()
}

var (
	_ ImageCache = (*MapImageCache)(nil)
	_ ImageCache = (*ARCImageCache)(nil)
)
