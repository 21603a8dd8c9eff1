// Package batch implements the Batch Executor of spec.md §4.D: applying an
// ordered list of Put/Get/Delete operations under one transaction, with
// per-op failures recorded rather than aborting the whole batch.
package batch

import (
	"fmt"
	"time"

	"github.com/fenilsonani/kvstore/internal/encode"
	"github.com/fenilsonani/kvstore/internal/engine"
	"github.com/fenilsonani/kvstore/internal/store"
)

func unixNow() int64 { return time.Now().Unix() }

// OpKind identifies which of Put/Get/Delete a single Op requests.
type OpKind string

const (
	OpPut    OpKind = "put"
	OpGet    OpKind = "get"
	OpDelete OpKind = "delete"
)

// Op is one entry of an input batch.
type Op struct {
	Kind  OpKind `json:"kind"`
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// Result is the same-length, same-order outcome for one Op, tagged with
// exactly one of the result shapes spec.md §4.D names.
type Result struct {
	Key       string `json:"key"`
	Kind      OpKind `json:"kind,omitempty"`
	Hash      string `json:"hash,omitempty"`
	Created   *bool  `json:"created,omitempty"`
	Found     *bool  `json:"found,omitempty"`
	Value     []byte `json:"value,omitempty"`
	Deleted   *bool  `json:"deleted,omitempty"`
	Error     string `json:"error,omitempty"`
	GCObjects int    `json:"-"` // objects this op's inline GC removed; not part of the wire format
}

func boolPtr(b bool) *bool { return &b }

// Executor runs batches against an Engine's store, giving every op in a
// batch a consistent, single-transaction view of each other's effects.
type Executor struct {
	store *store.Store
	codec *encode.Codec
	maxOps int
}

// NewExecutor builds an Executor. maxOps bounds batch length per spec.md
// §4.D (recommended default 1000, floor 100); a batch longer than maxOps
// is rejected by the Request Adapter before reaching the Executor.
func NewExecutor(s *store.Store, codec *encode.Codec, maxOps int) *Executor {
	if maxOps < 100 {
		maxOps = 100
	}
	return &Executor{store: s, codec: codec, maxOps: maxOps}
}

// MaxOps returns the configured ceiling, exposed so the adapter can reject
// oversized batches before calling Run.
func (ex *Executor) MaxOps() int { return ex.maxOps }

// maxBatchRetries bounds the bounded retry spec.md §4.D describes for
// overall commit failures (e.g. a lock-contention conflict bbolt surfaces
// as a transaction error); persistent failure surfaces as a single error
// with no partial effects visible, since bbolt transactions are all-or-
// nothing.
const maxBatchRetries = 3

// Run executes ops as a single transaction and returns one Result per op,
// same length and order as the input.
func (ex *Executor) Run(ops []Op) ([]Result, error) {
	if len(ops) > ex.maxOps {
		return nil, fmt.Errorf("batch: %d ops exceeds limit %d", len(ops), ex.maxOps)
	}

	results := make([]Result, len(ops))
	var lastErr error
	for attempt := 0; attempt < maxBatchRetries; attempt++ {
		lastErr = ex.store.Update(func(tx *store.Tx) error {
			for i, op := range ops {
				results[i] = ex.apply(tx, op)
			}
			return nil
		})
		if lastErr == nil {
			return results, nil
		}
	}
	return nil, fmt.Errorf("batch: commit failed after %d attempts: %w", maxBatchRetries, lastErr)
}

// apply executes a single op against tx, translating engine-level
// semantics inline (rather than calling engine.Engine's own methods) so
// every op in the batch shares the caller's single transaction — the
// engine's own Put/Get/Delete each open their own transaction, which
// would violate the "one transaction" requirement of spec.md §4.D.
func (ex *Executor) apply(tx *store.Tx, op Op) Result {
	switch op.Kind {
	case OpPut:
		return ex.applyPut(tx, op)
	case OpGet:
		return ex.applyGet(tx, op)
	case OpDelete:
		return ex.applyDelete(tx, op)
	default:
		return Result{Key: op.Key, Kind: op.Kind, Error: fmt.Sprintf("unknown op kind %q", op.Kind)}
	}
}

func (ex *Executor) applyPut(tx *store.Tx, op Op) Result {
	if err := validateKey(op.Key); err != nil {
		return Result{Key: op.Key, Kind: OpPut, Error: err.Error()}
	}

	h, blob := ex.codec.Encode(op.Value)

	var prev engine.KeyMeta
	var hasPrev bool
	if raw, err := tx.Get(store.TreeKeys, op.Key); err == nil {
		m, err := engine.UnmarshalKeyMeta(raw)
		if err != nil {
			return Result{Key: op.Key, Kind: OpPut, Error: err.Error()}
		}
		prev, hasPrev = m, true
	} else if err != store.ErrNotFound {
		return Result{Key: op.Key, Kind: OpPut, Error: err.Error()}
	}

	created := !tx.Has(store.TreeObjects, string(h[:]))
	if created {
		if err := tx.Put(store.TreeObjects, string(h[:]), blob); err != nil {
			return Result{Key: op.Key, Kind: OpPut, Error: err.Error()}
		}
	}
	if err := tx.Put(store.TreeRefs, string(h[:])+op.Key, []byte("1")); err != nil {
		return Result{Key: op.Key, Kind: OpPut, Error: err.Error()}
	}
	gcObjects := 0
	if hasPrev && prev.Hash != h {
		_ = tx.Delete(store.TreeRefs, string(prev.Hash[:])+op.Key)
		if !tx.HasPrefix(store.TreeRefs, prev.Hash[:]) {
			_ = tx.Delete(store.TreeObjects, string(prev.Hash[:]))
			gcObjects = 1
		}
	}

	refCount := tx.CountPrefix(store.TreeRefs, h[:])
	createdAt := prev.CreatedAt
	if !hasPrev {
		createdAt = unixNow()
	}
	meta := engine.KeyMeta{Hash: h, Size: uint64(len(op.Value)), Refs: uint64(refCount), CreatedAt: createdAt}
	if err := tx.Put(store.TreeKeys, op.Key, meta.Marshal()); err != nil {
		return Result{Key: op.Key, Kind: OpPut, Error: err.Error()}
	}

	return Result{Key: op.Key, Kind: OpPut, Hash: h.String(), Created: boolPtr(created), GCObjects: gcObjects}
}

func (ex *Executor) applyGet(tx *store.Tx, op Op) Result {
	raw, err := tx.Get(store.TreeKeys, op.Key)
	if err == store.ErrNotFound {
		return Result{Key: op.Key, Kind: OpGet, Found: boolPtr(false)}
	}
	if err != nil {
		return Result{Key: op.Key, Kind: OpGet, Error: err.Error()}
	}
	meta, err := engine.UnmarshalKeyMeta(raw)
	if err != nil {
		return Result{Key: op.Key, Kind: OpGet, Error: err.Error()}
	}
	blob, err := tx.Get(store.TreeObjects, string(meta.Hash[:]))
	if err != nil {
		return Result{Key: op.Key, Kind: OpGet, Error: fmt.Sprintf("invariant violation: %v", err)}
	}
	value, err := ex.codec.Decode(blob)
	if err != nil {
		return Result{Key: op.Key, Kind: OpGet, Error: err.Error()}
	}
	return Result{Key: op.Key, Kind: OpGet, Found: boolPtr(true), Value: value}
}

func (ex *Executor) applyDelete(tx *store.Tx, op Op) Result {
	raw, err := tx.Get(store.TreeKeys, op.Key)
	if err == store.ErrNotFound {
		return Result{Key: op.Key, Kind: OpDelete, Deleted: boolPtr(false)}
	}
	if err != nil {
		return Result{Key: op.Key, Kind: OpDelete, Error: err.Error()}
	}
	meta, err := engine.UnmarshalKeyMeta(raw)
	if err != nil {
		return Result{Key: op.Key, Kind: OpDelete, Error: err.Error()}
	}
	if err := tx.Delete(store.TreeKeys, op.Key); err != nil {
		return Result{Key: op.Key, Kind: OpDelete, Error: err.Error()}
	}
	_ = tx.Delete(store.TreeRefs, string(meta.Hash[:])+op.Key)
	gcObjects := 0
	if !tx.HasPrefix(store.TreeRefs, meta.Hash[:]) {
		_ = tx.Delete(store.TreeObjects, string(meta.Hash[:]))
		gcObjects = 1
	}
	return Result{Key: op.Key, Kind: OpDelete, Deleted: boolPtr(true), GCObjects: gcObjects}
}

func validateKey(key string) error {
	if len(key) < engine.MinKeyLen || len(key) > engine.MaxKeyLen {
		return fmt.Errorf("key length %d out of range [%d, %d]", len(key), engine.MinKeyLen, engine.MaxKeyLen)
	}
	for i := 0; i < len(key); i++ {
		b := key[i]
		if b <= 0x1f && b != 0x09 {
			return fmt.Errorf("key contains disallowed control byte %#x at offset %d", b, i)
		}
	}
	return nil
}
