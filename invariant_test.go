package pagecache_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldstore/pagecache"
	"github.com/coldstore/pagecache/policy"
	"github.com/coldstore/pagecache/testsource"
)

// Policy isolation law: alternating heavy access on an LRU descriptor
// must never evict a page from a Permanent descriptor's own pool while
// that pool sits at or below half the keep threshold.
func TestLawPolicyIsolation(t *testing.T) {
	e := pagecache.New(pagecache.Options{CacheSize: 4})
	defer e.Shutdown()

	kept := testsource.New(repeat(0x11, 2*pagecache.PageSize))
	hk, err := e.Open("kept", kept, pagecache.ModeRead, policy.Permanent)
	require.NoError(t, err)

	buf := make([]byte, 2*pagecache.PageSize)
	_, err = e.Read(hk, buf)
	require.NoError(t, err)

	keptPages, err := e.CachedPageCount(hk)
	require.NoError(t, err)
	require.Equal(t, 2, keptPages)

	churn := testsource.New(repeat(0x22, 10*pagecache.PageSize))
	hc, err := e.Open("churn", churn, pagecache.ModeRead, policy.LRU)
	require.NoError(t, err)

	for pass := 0; pass < 3; pass++ {
		_, err = e.Seek(hc, 0, io.SeekStart)
		require.NoError(t, err)
		big := make([]byte, 10*pagecache.PageSize)
		_, err = e.Read(hc, big)
		require.NoError(t, err)

		keptPages, err = e.CachedPageCount(hk)
		require.NoError(t, err)
		require.Equal(t, 2, keptPages, "permanent pages must survive unrelated LRU churn")
	}
}

// Invariant: step is non-decreasing across every structural miss.
func TestInvariantStepNonDecreasing(t *testing.T) {
	e := pagecache.New(pagecache.Options{CacheSize: 2})
	defer e.Shutdown()

	src := testsource.New(repeat(0x33, 8*pagecache.PageSize))
	h, err := e.Open("steps", src, pagecache.ModeRead, policy.FIFO)
	require.NoError(t, err)

	_, prev := e.Stats()
	buf := make([]byte, pagecache.PageSize)
	for i := 0; i < 8; i++ {
		_, err = e.Seek(h, int64(i)*pagecache.PageSize, io.SeekStart)
		require.NoError(t, err)
		_, err = e.Read(h, buf)
		require.NoError(t, err)

		_, cur := e.Stats()
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

// Invariant: pool occupancy never exceeds the configured frame count,
// even when many descriptors contend for a small pool.
func TestInvariantOccupancyNeverExceedsPool(t *testing.T) {
	const cacheSize = 3
	e := pagecache.New(pagecache.Options{CacheSize: cacheSize})
	defer e.Shutdown()

	for i := 0; i < 5; i++ {
		src := testsource.New(repeat(byte(i), 4*pagecache.PageSize))
		h, err := e.Open(string(rune('a'+i)), src, pagecache.ModeRead, policy.LRU)
		require.NoError(t, err)

		buf := make([]byte, 4*pagecache.PageSize)
		_, err = e.Read(h, buf)
		require.NoError(t, err)

		pages, _ := e.Stats()
		require.LessOrEqual(t, pages, cacheSize)
	}
}

// Invariant: two descriptors never resolve to the same underlying
// page-GUID space -- observable as perfect isolation of their cached
// bytes even when both are driven through the same small pool.
func TestInvariantDescriptorsDoNotAlias(t *testing.T) {
	e := pagecache.New(pagecache.Options{CacheSize: 1})
	defer e.Shutdown()

	srcA := testsource.New(repeat(0xAA, pagecache.PageSize))
	srcB := testsource.New(repeat(0xBB, pagecache.PageSize))

	ha, err := e.Open("alias-a", srcA, pagecache.ModeRead, policy.LRU)
	require.NoError(t, err)
	hb, err := e.Open("alias-b", srcB, pagecache.ModeRead, policy.LRU)
	require.NoError(t, err)

	bufA := make([]byte, pagecache.PageSize)
	_, err = e.Read(ha, bufA)
	require.NoError(t, err)
	require.Equal(t, repeat(0xAA, pagecache.PageSize), bufA)

	bufB := make([]byte, pagecache.PageSize)
	_, err = e.Read(hb, bufB)
	require.NoError(t, err)
	require.Equal(t, repeat(0xBB, pagecache.PageSize), bufB)
}
