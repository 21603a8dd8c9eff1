package batch

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilsonani/kvstore/internal/encode"
	"github.com/fenilsonani/kvstore/internal/store"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	s, err := store.Open(store.Options{Path: filepath.Join(t.TempDir(), "kv.db"), FlushInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	codec, err := encode.NewCodec(1)
	require.NoError(t, err)
	t.Cleanup(codec.Close)
	return NewExecutor(s, codec, 1000)
}

// TestBatchScenario encodes spec.md §8 scenario 5.
func TestBatchScenario(t *testing.T) {
	ex := newTestExecutor(t)

	results, err := ex.Run([]Op{
		{Kind: OpPut, Key: "k1", Value: []byte("v1")},
		{Kind: OpPut, Key: "k2", Value: []byte("v2")},
		{Kind: OpGet, Key: "k1"},
		{Kind: OpDelete, Key: "missing"},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, *results[2].Found)
	assert.Equal(t, []byte("v1"), results[2].Value)
	assert.False(t, *results[3].Deleted)
}

func TestBatchOpsObserveEachOther(t *testing.T) {
	ex := newTestExecutor(t)

	results, err := ex.Run([]Op{
		{Kind: OpPut, Key: "k", Value: []byte("v")},
		{Kind: OpGet, Key: "k"},
		{Kind: OpDelete, Key: "k"},
		{Kind: OpGet, Key: "k"},
	})
	require.NoError(t, err)
	assert.True(t, *results[1].Found)
	assert.True(t, *results[2].Deleted)
	assert.False(t, *results[3].Found)
}

func TestBatchFailureDoesNotAbortOtherOps(t *testing.T) {
	ex := newTestExecutor(t)

	results, err := ex.Run([]Op{
		{Kind: OpPut, Key: "", Value: []byte("v")}, // invalid key, recorded as error
		{Kind: OpPut, Key: "ok", Value: []byte("v")},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, results[0].Error)
	assert.Empty(t, results[1].Error)
	assert.True(t, *results[1].Created)
}

func TestBatchRejectsOversizedInput(t *testing.T) {
	ex := newTestExecutor(t)
	ops := make([]Op, ex.MaxOps()+1)
	for i := range ops {
		ops[i] = Op{Kind: OpGet, Key: "x"}
	}
	_, err := ex.Run(ops)
	assert.Error(t, err)
}

func TestBatchDedupWithinSingleBatch(t *testing.T) {
	ex := newTestExecutor(t)
	results, err := ex.Run([]Op{
		{Kind: OpPut, Key: "a", Value: []byte("same")},
		{Kind: OpPut, Key: "b", Value: []byte("same")},
	})
	require.NoError(t, err)
	assert.True(t, *results[0].Created)
	assert.False(t, *results[1].Created)
	assert.Equal(t, results[0].Hash, results[1].Hash)
}
