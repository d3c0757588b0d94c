package pagecache

import (
	"path/filepath"
	"testing"

	"github.com/nainya/bsdb/common"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T, cacheBytes int) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bsdb")
	c, err := Open(path, Options{CacheBytes: cacheBytes})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	c := openTestCache(t, DefaultCacheBytes)

	want := []byte("hello page cache")
	n, err := c.Write(100, want)
	require.NoError(t, err)
	require.Equal(t, len(want), n)

	got := make([]byte, len(want))
	n, err = c.Read(100, got)
	require.NoError(t, err)
	require.Equal(t, len(want), n)
	require.Equal(t, want, got)
}

func TestReadPastEOFReturnsShortCountNotError(t *testing.T) {
	c := openTestCache(t, DefaultCacheBytes)

	_, err := c.Write(0, []byte("abc"))
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := c.Read(0, buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestWriteSpanningMultiplePages(t *testing.T) {
	c := openTestCache(t, DefaultCacheBytes)

	data := make([]byte, PageSize*3)
	for i := range data {
		data[i] = byte(i)
	}

	n, err := c.Write(PageSize/2, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	got := make([]byte, len(data))
	n, err = c.Read(PageSize/2, got)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, got)
}

func TestPartialPageWritePreservesRestOfPage(t *testing.T) {
	c := openTestCache(t, DefaultCacheBytes)

	full := make([]byte, PageSize)
	for i := range full {
		full[i] = 0xAB
	}
	_, err := c.Write(0, full)
	require.NoError(t, err)

	_, err = c.Write(10, []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	got := make([]byte, PageSize)
	_, err = c.Read(0, got)
	require.NoError(t, err)

	require.Equal(t, byte(0xAB), got[9])
	require.Equal(t, []byte{0x01, 0x02, 0x03}, got[10:13])
	require.Equal(t, byte(0xAB), got[13])
}

func TestLRUEvictionRespectsCapacity(t *testing.T) {
	c := openTestCache(t, MinCacheBytes)
	capacity := c.capacityPages
	require.Greater(t, capacity, 0)

	for i := 0; i < capacity+5; i++ {
		err := c.WritePage(uint64(i), makeFullPage(byte(i)))
		require.NoError(t, err)
	}

	require.LessOrEqual(t, len(c.pages), capacity)
}

func TestEvictedDirtyPageSurvivesViaDiskReload(t *testing.T) {
	c := openTestCache(t, MinCacheBytes)
	capacity := c.capacityPages

	err := c.WritePage(0, makeFullPage(0x11))
	require.NoError(t, err)

	for i := 1; i < capacity+2; i++ {
		err := c.WritePage(uint64(i), makeFullPage(byte(i)))
		require.NoError(t, err)
	}

	buf := make([]byte, PageSize)
	err = c.ReadPage(0, buf)
	require.NoError(t, err)
	require.Equal(t, byte(0x11), buf[0])
}

func TestFlushClearsDirtyState(t *testing.T) {
	c := openTestCache(t, DefaultCacheBytes)

	err := c.WritePage(0, makeFullPage(0x42))
	require.NoError(t, err)

	err = c.Flush()
	require.NoError(t, err)

	for _, p := range c.pages {
		require.Equal(t, Clean, p.state)
	}
}

func TestHitRateIsOneBeforeAnyRequests(t *testing.T) {
	c := openTestCache(t, DefaultCacheBytes)
	require.Equal(t, 1.0, c.HitRate())
}

func TestHitRateReflectsRepeatedAccess(t *testing.T) {
	c := openTestCache(t, DefaultCacheBytes)

	err := c.WritePage(0, makeFullPage(1))
	require.NoError(t, err)

	buf := make([]byte, PageSize)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.ReadPage(0, buf))
	}

	require.Greater(t, c.HitRate(), 0.5)
}

func TestFileSizeIsMonotonicallyNonDecreasing(t *testing.T) {
	c := openTestCache(t, DefaultCacheBytes)

	sizes := make([]int64, 0, 4)
	_, _ = c.Write(0, []byte("first"))
	sizes = append(sizes, c.FileSize())
	_, _ = c.Write(1000, []byte("second"))
	sizes = append(sizes, c.FileSize())
	_, _ = c.Write(50, []byte("third"))
	sizes = append(sizes, c.FileSize())

	for i := 1; i < len(sizes); i++ {
		require.GreaterOrEqual(t, sizes[i], sizes[i-1])
	}
}

func TestReadOnlyCacheRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.bsdb")
	c, err := Open(path, Options{CacheBytes: DefaultCacheBytes})
	require.NoError(t, err)
	_, err = c.Write(0, []byte("seed"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	ro, err := Open(path, Options{CacheBytes: DefaultCacheBytes, ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.Write(0, []byte("nope"))
	require.ErrorIs(t, err, common.ErrReadOnly)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := openTestCache(t, DefaultCacheBytes)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func makeFullPage(fill byte) []byte {
	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = fill
	}
	return buf
}
