package keystream

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// IV is the 4-byte initialisation vector an archive's keystream is seeded with.
type IV [4]byte

// Well-known IVs.
var (
	GMS = IV{0x4D, 0x23, 0xC7, 0x2B}
	// EMS is the Europe and SEA (MSEA) vector.
	EMS = IV{0xB9, 0x7D, 0x63, 0xE9}
	// Zero leaves strings unencrypted.
	Zero = IV{}
)

// formatKey is the AES-256 key every archive keystream is generated with:
// eight key bytes, each followed by three zero bytes.
var formatKey = [32]byte{
	0x13, 0, 0, 0, 0x08, 0, 0, 0,
	0x06, 0, 0, 0, 0xB4, 0, 0, 0,
	0x1B, 0, 0, 0, 0x0F, 0, 0, 0,
	0x33, 0, 0, 0, 0x52, 0, 0, 0,
}

const blockSize = aes.BlockSize

// DefaultSize is how many keystream bytes New generates up front.
const DefaultSize = 0x10000

// Stream is a deterministic, lazily extended keystream. Byte i of the stream
// depends only on the IV and i. Stream is safe for concurrent use.
type Stream struct {
	mu    sync.Mutex
	iv    IV
	block cipher.Block
	keys  []byte
}

// New returns a Stream for iv with DefaultSize bytes already generated.
func New(iv IV) *Stream {
	block, err := aes.NewCipher(formatKey[:])
	if err != nil {
		// a 32-byte key is always valid
		panic(err)
	}
	s := &Stream{iv: iv, block: block}
	s.Ensure(DefaultSize)
	return s
}

// IV returns the vector the stream was seeded with.
func (s *Stream) IV() IV { return s.iv }

// Len returns the number of bytes generated so far.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// At returns keystream byte i, extending the stream if needed.
func (s *Stream) At(i int) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.keys) {
		s.grow(i + 1)
	}
	return s.keys[i]
}

// Ensure makes sure at least n bytes are generated.
func (s *Stream) Ensure(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grow(n)
}

func (s *Stream) grow(n int) {
	if n <= len(s.keys) {
		return
	}
	n = (n + blockSize - 1) / blockSize * blockSize
	// grow geometrically
	if n < 2*len(s.keys) {
		n = 2 * len(s.keys)
	}
	start := len(s.keys)
	keys := make([]byte, n)
	copy(keys, s.keys)
	if s.iv == Zero {
		s.keys = keys
		return
	}
	for i := start; i < n; i += blockSize {
		var in [blockSize]byte
		if i == 0 {
			for j := range in {
				in[j] = s.iv[j%len(s.iv)]
			}
		} else {
			copy(in[:], keys[i-blockSize:i])
		}
		s.block.Encrypt(keys[i:i+blockSize], in[:])
	}
	s.keys = keys
}

// ParseIV accepts a region name (gms, ems/msea, zero/none) or an 8 digit hex
// string such as "4d23c72b".
func ParseIV(s string) (IV, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gms":
		return GMS, nil
	case "ems", "msea":
		return EMS, nil
	case "zero", "none", "":
		return Zero, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return IV{}, fmt.Errorf("invalid iv %q: %w", s, err)
	}
	if len(raw) != len(IV{}) {
		return IV{}, fmt.Errorf("invalid iv %q: want 4 bytes, got %d", s, len(raw))
	}
	var iv IV
	copy(iv[:], raw)
	return iv, nil
}
