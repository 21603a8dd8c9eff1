// Package encode implements the Encoder: hashing and compression of values
// before they enter the Store, and the reverse on read.
package encode

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// HashSize is the width in bytes of a content hash.
const HashSize = 16

// Hash is the 128-bit content identifier of a value, stored in little-endian
// byte order per the wire format.
type Hash [HashSize]byte

// Sum computes the XXH3-128 digest of v and packs it little-endian, as
// spec.md §4.A requires.
func Sum(v []byte) Hash {
	h := xxh3.Hash128(v)
	var out Hash
	binary.LittleEndian.PutUint64(out[0:8], h.Lo)
	binary.LittleEndian.PutUint64(out[8:16], h.Hi)
	return out
}

// String returns the lowercase hex form used in the X-Hash header and in
// keys[key].hash comparisons for logging.
func (h Hash) String() string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, HashSize*2)
	for i, b := range h {
		buf[i*2] = hexdigits[b>>4]
		buf[i*2+1] = hexdigits[b&0x0f]
	}
	return string(buf)
}

// IsZero reports whether h is the all-zero hash. The engine's PUT path does
// not use it; it tracks "no previous hash" with a separate flag.
func (h Hash) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}
