package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := Open(Options{Path: path, FlushInterval: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorePutGet(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		return tx.Put(TreeKeys, "alpha", []byte("v1"))
	})
	require.NoError(t, err)

	var got []byte
	err = s.View(func(tx *Tx) error {
		v, err := tx.Get(TreeKeys, "alpha")
		got = v
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestStoreGetMissing(t *testing.T) {
	s := openTestStore(t)
	err := s.View(func(tx *Tx) error {
		_, err := tx.Get(TreeKeys, "missing")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreTransactionAbortsOnError(t *testing.T) {
	s := openTestStore(t)

	sentinel := assert.AnError
	err := s.Update(func(tx *Tx) error {
		if err := tx.Put(TreeKeys, "k", []byte("v")); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	err = s.View(func(tx *Tx) error {
		_, err := tx.Get(TreeKeys, "k")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound, "aborted transaction must not persist writes")
}

func TestStoreCountAndHasPrefix(t *testing.T) {
	s := openTestStore(t)
	err := s.Update(func(tx *Tx) error {
		for _, k := range []string{"h1\x00key-a", "h1\x00key-b", "h2\x00key-c"} {
			if err := tx.Put(TreeRefs, k, []byte("1")); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.View(func(tx *Tx) error {
		assert.Equal(t, 2, tx.CountPrefix(TreeRefs, []byte("h1\x00")))
		assert.Equal(t, 1, tx.CountPrefix(TreeRefs, []byte("h2\x00")))
		assert.True(t, tx.HasPrefix(TreeRefs, []byte("h1\x00")))
		assert.False(t, tx.HasPrefix(TreeRefs, []byte("h3\x00")))
		return nil
	})
	require.NoError(t, err)
}

func TestStoreRangePagination(t *testing.T) {
	s := openTestStore(t)
	err := s.Update(func(tx *Tx) error {
		for _, k := range []string{"a", "b", "c", "d"} {
			if err := tx.Put(TreeKeys, k, []byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var page []string
	err = s.View(func(tx *Tx) error {
		return tx.Range(TreeKeys, 1, 2, func(k, v []byte) error {
			page = append(page, string(k))
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, page)
}
