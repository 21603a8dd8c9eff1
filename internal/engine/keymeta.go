package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/fenilsonani/kvstore/internal/encode"
)

// keyMetaSize is the fixed on-disk layout of spec.md §6: 16-byte hash,
// three 8-byte little-endian fields (size, refs, created_at).
const keyMetaSize = encode.HashSize + 8 + 8 + 8

// KeyMeta is the record stored per user key in the keys tree.
type KeyMeta struct {
	Hash      encode.Hash
	Size      uint64
	Refs      uint64 // informational hint only, see spec.md §9 Open Question
	CreatedAt int64
}

// Marshal serializes m into the stable fixed-layout record spec.md §6
// defines.
func (m KeyMeta) Marshal() []byte {
	buf := make([]byte, keyMetaSize)
	copy(buf[0:encode.HashSize], m.Hash[:])
	off := encode.HashSize
	binary.LittleEndian.PutUint64(buf[off:off+8], m.Size)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], m.Refs)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(m.CreatedAt))
	return buf
}

// UnmarshalKeyMeta parses the fixed-layout record back into a KeyMeta.
func UnmarshalKeyMeta(buf []byte) (KeyMeta, error) {
	var m KeyMeta
	if len(buf) != keyMetaSize {
		return m, fmt.Errorf("engine: corrupt KeyMeta: expected %d bytes, got %d", keyMetaSize, len(buf))
	}
	copy(m.Hash[:], buf[0:encode.HashSize])
	off := encode.HashSize
	m.Size = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	m.Refs = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	m.CreatedAt = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	return m, nil
}
