package wz

import (
	"fmt"
	"sync"
	"testing"
)

func TestMapImageCache(t *testing.T) {
	c := NewMapImageCache()
	a := NewNode(KindProperty, "a.img", nil)
	b := NewNode(KindProperty, "b.img", nil)

	if _, ok := c.Get("Mob/a.img"); ok {
		t.Fatal("hit on empty cache")
	}
	c.Add("Mob/a.img", a)
	c.Add("Mob/b.img", b)
	if got, ok := c.Get("Mob/a.img"); !ok || got != a {
		t.Errorf("Get(a) = %v, %v", got, ok)
	}
	c.Add("Mob/a.img", b)
	if got, _ := c.Get("Mob/a.img"); got != b {
		t.Error("Add did not replace the entry")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestMapImageCacheConcurrent(t *testing.T) {
	c := NewMapImageCache()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				path := fmt.Sprintf("Map/%d/%d.img", i, j)
				c.Add(path, NewNode(KindProperty, path, nil))
				if _, ok := c.Get(path); !ok {
					t.Errorf("%s missing after Add", path)
				}
			}
		}()
	}
	wg.Wait()
	if c.Len() != 400 {
		t.Errorf("Len = %d, want 400", c.Len())
	}
}

func TestARCImageCacheSize(t *testing.T) {
	if _, err := NewARCImageCache(0); err == nil {
		t.Error("accepted a zero sized cache")
	}
	c, err := NewARCImageCache(2)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 5 {
		c.Add(fmt.Sprintf("%d.img", i), NewNode(KindProperty, "", nil))
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("4.img"); !ok {
		t.Error("most recent image evicted")
	}
}

func TestARCImageCacheStaysBounded(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		paths []string
	}{
		{"readd evicted", 1, []string{"a.img", "b.img", "a.img"}},
		{"cycle", 2, []string{"a.img", "b.img", "c.img", "a.img", "b.img", "c.img", "a.img"}},
		{"ghost hits", 2, []string{"a.img", "a.img", "b.img", "c.img", "b.img", "a.img", "c.img"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewARCImageCache(tt.size)
			if err != nil {
				t.Fatal(err)
			}
			for i, p := range tt.paths {
				root := NewNode(KindProperty, p, nil)
				c.Add(p, root)
				if c.Len() > tt.size {
					t.Fatalf("after add %d (%s): Len = %d, bound %d", i, p, c.Len(), tt.size)
				}
				if got, ok := c.Get(p); !ok || got != root {
					t.Fatalf("after add %d: %s not cached", i, p)
				}
			}
		})
	}
}

func TestPathHashStable(t *testing.T) {
	if pathHash("Mob/100100.img") != pathHash("Mob/100100.img") {
		t.Fatal("hash is not deterministic")
	}
	if pathHash("Mob/100100.img") == pathHash("Mob/100101.img") {
		t.Error("neighbouring paths collide")
	}
}
