// Package engine implements the Dedup / Reference-Count Engine of
// spec.md §4.C: the PUT/GET/HEAD/DELETE/LIST operations that keep the
// keys/objects/refs trees in the invariant described by spec.md §3.
package engine

import (
	"time"

	"github.com/fenilsonani/kvstore/internal/encode"
	"github.com/fenilsonani/kvstore/internal/store"
)

const (
	// MinKeyLen and MaxKeyLen bound a valid user key, spec.md §4.C step 1.
	MinKeyLen = 1
	MaxKeyLen = 262_144
)

// Clock lets tests substitute a deterministic now(); production wiring
// uses realClock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Engine ties a Store and a Codec together and exposes the five operations
// of spec.md §4.C. It holds no state of its own beyond its dependencies —
// all mutable state lives in the Store, mutated only inside transactions,
// matching spec.md §5's "holds no long-lived locks" requirement.
type Engine struct {
	store *store.Store
	codec *encode.Codec
	clock Clock
}

// New builds an Engine over s using codec for value encoding.
func New(s *store.Store, codec *encode.Codec) *Engine {
	return &Engine{store: s, codec: codec, clock: realClock{}}
}

// WithClock overrides the Engine's time source, for deterministic tests of
// KeyMeta.CreatedAt.
func (e *Engine) WithClock(c Clock) *Engine {
	e.clock = c
	return e
}

// refKey builds the composite refs-tree key "hash‖key" of spec.md §3/§9.
func refKey(h encode.Hash, key string) string {
	return string(h[:]) + key
}

// refPrefix is the prefix every refs entry for h shares.
func refPrefix(h encode.Hash) []byte {
	return h[:]
}

// validateKey enforces spec.md §4.C step 1 and §8's key-validation property.
func validateKey(key string) error {
	if len(key) < MinKeyLen || len(key) > MaxKeyLen {
		return badRequest("validateKey", "key length %d out of range [%d, %d]", len(key), MinKeyLen, MaxKeyLen)
	}
	for i := 0; i < len(key); i++ {
		b := key[i]
		if b <= 0x1f && b != 0x09 {
			return badRequest("validateKey", "key contains disallowed control byte %#x at offset %d", b, i)
		}
	}
	return nil
}

// PutResult reports the outcome of a PUT, letting the Request Adapter
// choose 200 vs 201 and the X-Deduplicated header without re-deriving it.
type PutResult struct {
	Hash         encode.Hash
	Deduplicated bool // true if the object already existed (step 3b no-op)
	GCObjects    int  // objects removed by step 3d's orphan check (0 or 1)
}

// Put implements spec.md §4.C PUT.
func (e *Engine) Put(key string, value []byte) (PutResult, error) {
	if err := validateKey(key); err != nil {
		return PutResult{}, err
	}

	h, blob := e.codec.Encode(value)
	var result PutResult
	now := e.clock.Now().Unix()

	err := e.store.Update(func(tx *store.Tx) error {
		var prev KeyMeta
		var hasPrev bool
		if raw, err := tx.Get(store.TreeKeys, key); err == nil {
			m, err := UnmarshalKeyMeta(raw)
			if err != nil {
				return internalErr("Put", err)
			}
			prev = m
			hasPrev = true
		} else if err != store.ErrNotFound {
			return internalErr("Put", err)
		}

		// Step 3b: write the object if new. Idempotent under concurrent
		// writers racing to create the same hash (spec.md §5) — Update
		// transactions are serialized, so a later writer finds the object
		// already present and leaves its bytes untouched (I5).
		if tx.Has(store.TreeObjects, string(h[:])) {
			result.Deduplicated = true
		} else {
			if err := tx.Put(store.TreeObjects, string(h[:]), blob); err != nil {
				return internalErr("Put", err)
			}
		}

		// Step 3c: mark this key as a referrer of H (idempotent).
		if err := tx.Put(store.TreeRefs, refKey(h, key), []byte("1")); err != nil {
			return internalErr("Put", err)
		}

		// Step 3d: if the key previously pointed at a different hash,
		// drop that reference and GC the old object if orphaned.
		if hasPrev && prev.Hash != h {
			if err := tx.Delete(store.TreeRefs, refKey(prev.Hash, key)); err != nil {
				return internalErr("Put", err)
			}
			if !tx.HasPrefix(store.TreeRefs, refPrefix(prev.Hash)) {
				if err := tx.Delete(store.TreeObjects, string(prev.Hash[:])); err != nil {
					return internalErr("Put", err)
				}
				result.GCObjects = 1
			}
		}

		// Step 3e: recompute H's refcount inside this transaction's
		// consistent view (snapshot plus this txn's own writes).
		refCount := tx.CountPrefix(store.TreeRefs, refPrefix(h))

		createdAt := now
		if hasPrev {
			createdAt = prev.CreatedAt // I4: created_at is monotonic across overwrites
		}

		meta := KeyMeta{Hash: h, Size: uint64(len(value)), Refs: uint64(refCount), CreatedAt: createdAt}
		if err := tx.Put(store.TreeKeys, key, meta.Marshal()); err != nil {
			return internalErr("Put", err)
		}
		return nil
	})
	if err != nil {
		return PutResult{}, err
	}

	result.Hash = h
	return result, nil
}

// GetResult carries a decoded value plus the metadata the Request Adapter
// needs for response headers.
type GetResult struct {
	Value []byte
	Meta  KeyMeta
}

// Get implements spec.md §4.C GET.
func (e *Engine) Get(key string) (GetResult, error) {
	var out GetResult
	err := e.store.View(func(tx *store.Tx) error {
		raw, err := tx.Get(store.TreeKeys, key)
		if err == store.ErrNotFound {
			return notFound("Get")
		}
		if err != nil {
			return internalErr("Get", err)
		}
		meta, err := UnmarshalKeyMeta(raw)
		if err != nil {
			return internalErr("Get", err)
		}

		blob, err := tx.Get(store.TreeObjects, string(meta.Hash[:]))
		if err == store.ErrNotFound {
			// I1 violated: keys[k] exists but objects[hash] doesn't.
			return internalErr("Get", errNotFoundObjects(meta.Hash))
		}
		if err != nil {
			return internalErr("Get", err)
		}

		value, err := e.codec.Decode(blob)
		if err != nil {
			return internalErr("Get", err)
		}

		out = GetResult{Value: value, Meta: meta}
		return nil
	})
	return out, err
}

// Head implements spec.md §4.C HEAD: metadata only, no object read.
func (e *Engine) Head(key string) (KeyMeta, error) {
	var meta KeyMeta
	err := e.store.View(func(tx *store.Tx) error {
		raw, err := tx.Get(store.TreeKeys, key)
		if err == store.ErrNotFound {
			return notFound("Head")
		}
		if err != nil {
			return internalErr("Head", err)
		}
		m, err := UnmarshalKeyMeta(raw)
		if err != nil {
			return internalErr("Head", err)
		}
		meta = m
		return nil
	})
	return meta, err
}

// DeleteResult reports the outcome of a DELETE, letting the Request Adapter
// report how many objects the deletion's inline GC step reclaimed.
type DeleteResult struct {
	GCObjects int // 1 if the key's hash had no other referrers, else 0
}

// Delete implements spec.md §4.C DELETE.
func (e *Engine) Delete(key string) (DeleteResult, error) {
	var result DeleteResult
	err := e.store.Update(func(tx *store.Tx) error {
		raw, err := tx.Get(store.TreeKeys, key)
		if err == store.ErrNotFound {
			return notFound("Delete")
		}
		if err != nil {
			return internalErr("Delete", err)
		}
		meta, err := UnmarshalKeyMeta(raw)
		if err != nil {
			return internalErr("Delete", err)
		}

		if err := tx.Delete(store.TreeKeys, key); err != nil {
			return internalErr("Delete", err)
		}
		if err := tx.Delete(store.TreeRefs, refKey(meta.Hash, key)); err != nil {
			return internalErr("Delete", err)
		}
		if !tx.HasPrefix(store.TreeRefs, refPrefix(meta.Hash)) {
			if err := tx.Delete(store.TreeObjects, string(meta.Hash[:])); err != nil {
				return internalErr("Delete", err)
			}
			result.GCObjects = 1
		}
		return nil
	})
	return result, err
}

// ListEntry is one row of a LIST page.
type ListEntry struct {
	Key  string
	Meta KeyMeta
}

// DefaultListLimit and MaxListLimit bound LIST's limit parameter per
// spec.md §4.C LIST.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// List implements spec.md §4.C LIST. offset/limit are assumed already
// clamped by the caller (the Request Adapter parses and clamps query
// params before calling in).
func (e *Engine) List(offset, limit int) ([]ListEntry, int, error) {
	var entries []ListEntry
	var total int
	err := e.store.View(func(tx *store.Tx) error {
		total = tx.Count(store.TreeKeys)
		return tx.Range(store.TreeKeys, offset, limit, func(k, v []byte) error {
			meta, err := UnmarshalKeyMeta(v)
			if err != nil {
				return internalErr("List", err)
			}
			entries = append(entries, ListEntry{Key: string(k), Meta: meta})
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
