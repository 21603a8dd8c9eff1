package encode

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Tag is the one-byte leading tag on every object blob, letting readers
// dispatch decompression without external metadata (spec.md §4.A, §6).
type Tag byte

const (
	EncodingRaw  Tag = 0x00
	EncodingZstd Tag = 0x01
)

// InlineThreshold and AsyncThreshold are the size boundaries from spec.md
// §3/§4.A: values below InlineThreshold are never compressed, values above
// AsyncThreshold may be compressed outside the request's critical section.
const (
	InlineThreshold = 512
	AsyncThreshold  = 65536
)

// Codec hashes and compresses values, and reverses the process on read. It
// is the concrete Encoder of spec.md §4.A: a pure function of its input
// plus the process-wide compression level, safe for concurrent use because
// the underlying zstd encoder/decoder pair are themselves safe for
// concurrent use.
type Codec struct {
	level   int // 0..9, 0 disables compression
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec builds a Codec for the given COMPRESSION_LEVEL (clamped to
// [0, 9] by the caller; see internal/config).
func NewCodec(level int) (*Codec, error) {
	c := &Codec{level: level}
	if level > 0 {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(levelToSpeed(level)))
		if err != nil {
			return nil, fmt.Errorf("encode: build zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			enc.Close()
			return nil, fmt.Errorf("encode: build zstd decoder: %w", err)
		}
		c.encoder = enc
		c.decoder = dec
	}
	return c, nil
}

// Close releases the decoder's background goroutines. The encoder has no
// resources beyond what GC reclaims.
func (c *Codec) Close() {
	if c.decoder != nil {
		c.decoder.Close()
	}
}

// levelToSpeed maps the spec's 1-9 integer level onto zstd's speed tiers.
func levelToSpeed(level int) zstd.EncoderLevel {
	switch {
	case level <= 2:
		return zstd.SpeedFastest
	case level <= 5:
		return zstd.SpeedDefault
	case level <= 7:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// Encode produces (hash, blob) for v as spec.md §4.A specifies: hash is
// always computed over the original bytes; blob carries a one-byte tag
// followed by either v verbatim (RAW) or its zstd frame (COMPRESSED).
func (c *Codec) Encode(v []byte) (Hash, []byte) {
	h := Sum(v)
	if c.level == 0 || len(v) < InlineThreshold {
		blob := make([]byte, 1+len(v))
		blob[0] = byte(EncodingRaw)
		copy(blob[1:], v)
		return h, blob
	}

	compressed := c.encoder.EncodeAll(v, make([]byte, 0, len(v)/2+16))
	blob := make([]byte, 1+len(compressed))
	blob[0] = byte(EncodingZstd)
	copy(blob[1:], compressed)
	return h, blob
}

// Decode reverses Encode, dispatching on the leading tag. A malformed zstd
// frame is fatal for the caller's request (InternalError), never silently
// returned, per spec.md §4.A.
func (c *Codec) Decode(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("encode: empty blob has no tag")
	}
	tag := Tag(blob[0])
	payload := blob[1:]
	switch tag {
	case EncodingRaw:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case EncodingZstd:
		if c.decoder == nil {
			return nil, fmt.Errorf("encode: zstd blob but compression disabled")
		}
		out, err := c.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("encode: malformed zstd frame: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("encode: unknown blob tag %#x", tag)
	}
}
