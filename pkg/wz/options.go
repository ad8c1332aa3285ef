package wz

import (
	"go.uber.org/zap"

	"github.com/user/wzgo/pkg/keystream"
)

// DefaultMaxVersion is the highest version tried when detecting an archive's
// version.
const DefaultMaxVersion = 1000

type options struct {
	keys       KeyStream
	name       string
	version    int
	maxVersion int
	log        *zap.Logger
	cache      ImageCache
	maxDepth   int
	maxHops    int
}

func defaultOptions() options {
	return options{
		maxVersion: DefaultMaxVersion,
		maxDepth:   DefaultMaxDepth,
		maxHops:    DefaultMaxLinkHops,
		log:        zap.NewNop(),
	}
}

// Option configures how an archive or image is opened.
type Option func(*options)

// WithIV decrypts strings with the keystream derived from iv.
func WithIV(iv keystream.IV) Option {
	return func(o *options) { o.keys = keystream.New(iv) }
}

// WithKeyStream decrypts strings with ks. Of WithIV and WithKeyStream the
// last one given wins.
func WithKeyStream(ks KeyStream) Option {
	return func(o *options) { o.keys = ks }
}

// WithName names the root node. Open defaults it to the file's base name
// without extension.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithVersion fixes the archive version instead of detecting it.
func WithVersion(v int) Option {
	return func(o *options) { o.version = v }
}

// WithMaxVersion bounds version detection.
func WithMaxVersion(v int) Option {
	return func(o *options) { o.maxVersion = v }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithImageCache replaces the default unbounded image cache.
func WithImageCache(c ImageCache) Option {
	return func(o *options) { o.cache = c }
}

// WithMaxDepth bounds property and directory nesting. Values below 1 keep
// DefaultMaxDepth.
func WithMaxDepth(d int) Option {
	return func(o *options) { o.maxDepth = d }
}

// WithMaxLinkHops bounds UOL chains. Values below 1 keep
// DefaultMaxLinkHops.
func WithMaxLinkHops(n int) Option {
	return func(o *options) { o.maxHops = n }
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.keys == nil {
		o.keys = keystream.New(keystream.GMS)
	}
	if o.cache == nil {
		o.cache = NewMapImageCache()
	}
	if o.maxDepth <= 0 {
		o.maxDepth = DefaultMaxDepth
	}
	if o.maxHops <= 0 {
		o.maxHops = DefaultMaxLinkHops
	}
	return o
}
