package btree

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nainya/bsdb/common"
	"github.com/nainya/bsdb/pkg/pagecache"
	"github.com/nainya/bsdb/pkg/recordstore"
	"github.com/stretchr/testify/require"
)

func openTestTree(t *testing.T, order int) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bsdb")
	cache, err := pagecache.Open(path, pagecache.Options{CacheBytes: pagecache.DefaultCacheBytes})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	store, err := recordstore.Open(cache, recordstore.Options{})
	require.NoError(t, err)

	tree, err := Open(store, Options{Order: order})
	require.NoError(t, err)
	return tree
}

func assertOrderedKeys(t *testing.T, tree *Tree, want []uint64) {
	t.Helper()
	got := make([]uint64, 0, len(want))
	key, _, found, err := tree.First()
	require.NoError(t, err)
	for found {
		got = append(got, key)
		key, _, found, err = tree.Next()
		require.NoError(t, err)
	}
	require.Equal(t, want, got)
}

// S1 -- leaf-only tree.
func TestS1LeafOnlyTree(t *testing.T) {
	tree := openTestTree(t, 5)

	require.NoError(t, tree.Insert(10, "ten"))
	require.NoError(t, tree.Insert(73, "seventy-three"))
	require.NoError(t, tree.Insert(14, "fourteen"))
	require.NoError(t, tree.Insert(32, "thirty-two"))

	require.EqualValues(t, 4, tree.Size())

	key, value, found, err := tree.First()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(10), key)
	require.Equal(t, "ten", value)

	key, value, found, err = tree.Last()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(73), key)
	require.Equal(t, "seventy-three", value)

	value, found, err = tree.Search(14)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "fourteen", value)

	require.Equal(t, 0, tree.height())
}

// S2 -- first split.
func TestS2FirstSplit(t *testing.T) {
	tree := openTestTree(t, 5)

	for _, k := range []uint64{10, 20, 30, 40, 50} {
		require.NoError(t, tree.Insert(k, fmt.Sprintf("v%d", k)))
	}

	require.Equal(t, 1, tree.height())
	assertOrderedKeys(t, tree, []uint64{10, 20, 30, 40, 50})
}

// S3 -- deep underflow with merges.
func TestS3DeepUnderflowWithMerge(t *testing.T) {
	tree := openTestTree(t, 5)

	for _, k := range []uint64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110, 120, 130} {
		require.NoError(t, tree.Insert(k, fmt.Sprintf("v%d", k)))
	}

	for _, k := range []uint64{10, 20, 30, 40, 50, 60, 70} {
		require.NoError(t, tree.Erase(k))
	}

	want := []uint64{80, 90, 100, 110, 120, 130}
	assertOrderedKeys(t, tree, want)

	got := make([]uint64, 0, len(want))
	key, _, found, err := tree.Last()
	require.NoError(t, err)
	for found {
		got = append(got, key)
		key, _, found, err = tree.Previous()
		require.NoError(t, err)
	}
	reversed := make([]uint64, len(want))
	for i, k := range want {
		reversed[len(want)-1-i] = k
	}
	require.Equal(t, reversed, got)
}

// S4 -- duplicate rejection.
func TestS4DuplicateRejection(t *testing.T) {
	tree := openTestTree(t, 5)

	require.NoError(t, tree.Insert(5, "a"))
	err := tree.Insert(5, "b")
	require.ErrorIs(t, err, common.ErrDuplicateKey)

	value, found, err := tree.Search(5)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "a", value)
	require.EqualValues(t, 1, tree.Size())
}

// S5 -- cursor invalidation on mutation, and re-anchoring.
func TestS5CursorInvalidation(t *testing.T) {
	tree := openTestTree(t, 5)
	require.NoError(t, tree.Insert(1, "a"))
	require.NoError(t, tree.Insert(2, "b"))

	k0, v0, found, err := tree.First()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1), k0)
	require.Equal(t, "a", v0)

	require.NoError(t, tree.Insert(3, "c"))

	_, _, found, err = tree.Next()
	require.NoError(t, err)
	require.False(t, found)

	_, _, found, err = tree.First()
	require.NoError(t, err)
	require.True(t, found)
}

func TestS5InPlaceUpdateDoesNotInvalidateCursor(t *testing.T) {
	tree := openTestTree(t, 5)
	require.NoError(t, tree.Insert(1, "aaaa"))
	require.NoError(t, tree.Insert(2, "bbbb"))

	_, _, found, err := tree.First()
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, tree.Update(1, "bb")) // shorter value: fits in place

	key, _, found, err := tree.Next()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), key)
}

func TestS5RelocatingUpdateInvalidatesCursor(t *testing.T) {
	tree := openTestTree(t, 5)
	require.NoError(t, tree.Insert(1, "a"))
	require.NoError(t, tree.Insert(2, "b"))

	_, _, found, err := tree.First()
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, tree.Update(1, "a value long enough to force relocation"))

	_, _, found, err = tree.Next()
	require.NoError(t, err)
	require.False(t, found)
}

// S6 -- persistence across reopen.
func TestS6Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.bsdb")

	cache, err := pagecache.Open(path, pagecache.Options{CacheBytes: pagecache.DefaultCacheBytes})
	require.NoError(t, err)
	store, err := recordstore.Open(cache, recordstore.Options{})
	require.NoError(t, err)
	tree, err := Open(store, Options{Order: 5})
	require.NoError(t, err)

	const n = 1000
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Insert(uint64(i), fmt.Sprintf("value-%d", i)))
	}
	require.NoError(t, tree.Flush())
	require.NoError(t, cache.Close())

	cache2, err := pagecache.Open(path, pagecache.Options{CacheBytes: pagecache.DefaultCacheBytes})
	require.NoError(t, err)
	defer cache2.Close()
	store2, err := recordstore.Open(cache2, recordstore.Options{})
	require.NoError(t, err)
	tree2, err := Open(store2, Options{Order: 5})
	require.NoError(t, err)

	require.EqualValues(t, n, tree2.Size())
	for i := 0; i < n; i++ {
		value, found, err := tree2.Search(uint64(i))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, fmt.Sprintf("value-%d", i), value)
	}

	prev := uint64(0)
	count := 0
	key, _, found, err := tree2.First()
	require.NoError(t, err)
	for found {
		if count > 0 {
			require.Greater(t, key, prev)
		}
		prev = key
		count++
		key, _, found, err = tree2.Next()
		require.NoError(t, err)
	}
	require.Equal(t, n, count)
}

func TestReopenWithMismatchedOrderFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mismatch.bsdb")

	cache, err := pagecache.Open(path, pagecache.Options{CacheBytes: pagecache.DefaultCacheBytes})
	require.NoError(t, err)
	store, err := recordstore.Open(cache, recordstore.Options{})
	require.NoError(t, err)
	_, err = Open(store, Options{Order: 5})
	require.NoError(t, err)
	require.NoError(t, cache.Close())

	cache2, err := pagecache.Open(path, pagecache.Options{CacheBytes: pagecache.DefaultCacheBytes})
	require.NoError(t, err)
	defer cache2.Close()
	store2, err := recordstore.Open(cache2, recordstore.Options{})
	require.NoError(t, err)
	_, err = Open(store2, Options{Order: 7})
	require.ErrorIs(t, err, common.ErrInvalidTreeOrder)
}

func TestEraseAbsentKeyFails(t *testing.T) {
	tree := openTestTree(t, 5)
	require.NoError(t, tree.Insert(1, "a"))
	err := tree.Erase(99)
	require.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestUpdateAbsentKeyFails(t *testing.T) {
	tree := openTestTree(t, 5)
	require.NoError(t, tree.Insert(1, "a"))
	err := tree.Update(99, "b")
	require.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestInsertAutoAssignsIncrementingKeys(t *testing.T) {
	tree := openTestTree(t, 5)

	k1, err := tree.InsertAuto("a")
	require.NoError(t, err)
	k2, err := tree.InsertAuto("b")
	require.NoError(t, err)

	require.Equal(t, uint64(0), k1)
	require.Equal(t, uint64(1), k2)
}

func TestLargeRandomizedWorkloadPreservesInvariants(t *testing.T) {
	tree := openTestTree(t, 5)

	present := make(map[uint64]string)
	for i := uint64(0); i < 300; i++ {
		key := (i * 37) % 500
		value := fmt.Sprintf("v%d", i)
		if _, ok := present[key]; ok {
			continue
		}
		require.NoError(t, tree.Insert(key, value))
		present[key] = value
	}

	for key, value := range present {
		got, found, err := tree.Search(key)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, value, got)
	}

	removed := 0
	for key := range present {
		if removed >= len(present)/2 {
			break
		}
		require.NoError(t, tree.Erase(key))
		delete(present, key)
		removed++
	}

	require.EqualValues(t, len(present), tree.Size())

	prev := uint64(0)
	count := 0
	key, _, found, err := tree.First()
	require.NoError(t, err)
	for found {
		if count > 0 {
			require.Greater(t, key, prev)
		}
		_, wantOK := present[key]
		require.True(t, wantOK)
		prev = key
		count++
		key, _, found, err = tree.Next()
		require.NoError(t, err)
	}
	require.Equal(t, len(present), count)
}
