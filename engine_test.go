package pagecache_test

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coldstore/pagecache"
	"github.com/coldstore/pagecache/policy"
	"github.com/coldstore/pagecache/testsource"
)

func repeat(b byte, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

// Scenario 1: simple read.
func TestScenarioSimpleRead(t *testing.T) {
	e := pagecache.New(pagecache.Options{})
	defer e.Shutdown()

	src := testsource.New([]byte("hello\nworld"))
	h, err := e.Open("greeting", src, pagecache.ModeRead, policy.LRU)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := e.Read(h, buf)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, []byte("hello\nworl"), buf)

	eof, err := e.EofReached(h)
	require.NoError(t, err)
	require.False(t, eof)

	off, err := e.Seek(h, 0, io.SeekCurrent)
	require.NoError(t, err)
	require.EqualValues(t, 10, off)
}

// Scenario 2: two-page read.
func TestScenarioTwoPageRead(t *testing.T) {
	e := pagecache.New(pagecache.Options{})
	defer e.Shutdown()

	src := testsource.New(repeat(0x41, 6000))
	h, err := e.Open("aaa", src, pagecache.ModeRead, policy.LRU)
	require.NoError(t, err)

	_, beforeStep := e.Stats()

	buf := make([]byte, 6000)
	n, err := e.Read(h, buf)
	require.NoError(t, err)
	require.Equal(t, 6000, n)
	require.Equal(t, repeat(0x41, 6000), buf)

	count, err := e.CachedPageCount(h)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, afterStep := e.Stats()
	require.GreaterOrEqual(t, afterStep-beforeStep, uint64(2))
}

// Scenario 3 (adapted): with cache_size == 2 frames, a 3-page source
// cannot keep all three pages resident at once -- that clause of the
// literal scenario is unsatisfiable by construction, so this asserts
// the property that actually matters: total occupancy never exceeds
// the pool, and an evicted page reloads correctly on re-access.
func TestScenarioEvictAndReload(t *testing.T) {
	e := pagecache.New(pagecache.Options{CacheSize: 2})
	defer e.Shutdown()

	pageA := repeat(0xAA, 3*pagecache.PageSize)
	pageB := repeat(0xBB, 3*pagecache.PageSize)

	srcA := testsource.New(pageA)
	srcB := testsource.New(pageB)

	ha, err := e.Open("a", srcA, pagecache.ModeRead, policy.FIFO)
	require.NoError(t, err)
	hb, err := e.Open("b", srcB, pagecache.ModeRead, policy.FIFO)
	require.NoError(t, err)

	bufA := make([]byte, len(pageA))
	_, err = e.Read(ha, bufA)
	require.NoError(t, err)
	require.Equal(t, pageA, bufA)

	bufB := make([]byte, len(pageB))
	_, err = e.Read(hb, bufB)
	require.NoError(t, err)
	require.Equal(t, pageB, bufB)

	occupied, _ := e.Stats()
	require.LessOrEqual(t, occupied, 2)

	_, err = e.Seek(ha, 0, io.SeekStart)
	require.NoError(t, err)
	again := make([]byte, pagecache.PageSize)
	_, err = e.Read(ha, again)
	require.NoError(t, err)
	require.Equal(t, pageA[:pagecache.PageSize], again)
}

// Scenario 4: dirty writeback on eviction.
func TestScenarioDirtyWritebackOnEviction(t *testing.T) {
	e := pagecache.New(pagecache.Options{CacheSize: 1})
	defer e.Shutdown()

	src := testsource.New(make([]byte, 2*pagecache.PageSize))
	h, err := e.Open("dirty", src, pagecache.ModeReadWrite, policy.LRU)
	require.NoError(t, err)

	_, err = e.Write(h, []byte{0xFF})
	require.NoError(t, err)

	_, err = e.Seek(h, pagecache.PageSize, io.SeekStart)
	require.NoError(t, err)

	one := make([]byte, 1)
	_, err = e.Read(h, one)
	require.NoError(t, err)

	require.NoError(t, e.Flush(h))

	require.Equal(t, byte(0xFF), src.Bytes()[0])
}

// Scenario 5: seek cancellation.
func TestScenarioSeekCancellation(t *testing.T) {
	data := make([]byte, 100*pagecache.PageSize)
	src := testsource.New(data)

	started := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	src.BeforeReadAt = func(off int64) {
		if off == 0 {
			once.Do(func() { close(started) })
			<-proceed
		}
	}

	e := pagecache.New(pagecache.Options{})
	defer e.Shutdown()

	h, err := e.Open("big", src, pagecache.ModeRead, policy.LRU)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("prefetch never reached page 0")
	}

	_, err = e.Seek(h, 90*pagecache.PageSize, io.SeekStart)
	require.NoError(t, err)

	close(proceed)
	time.Sleep(50 * time.Millisecond)

	for _, off := range src.Reads() {
		page := off / pagecache.PageSize
		require.NotEqual(t, int64(4), page, "page 4 must not have been loaded before cancellation")
		require.NotEqual(t, int64(5), page, "page 5 must not have been loaded before cancellation")
		require.NotEqual(t, int64(6), page, "page 6 must not have been loaded before cancellation")
		require.NotEqual(t, int64(7), page, "page 7 must not have been loaded before cancellation")
	}
}

// Scenario 6: reopen preserves offset and pages.
func TestScenarioReopenPreservesOffsetAndPages(t *testing.T) {
	e := pagecache.New(pagecache.Options{})
	defer e.Shutdown()

	src := testsource.New(repeat(0x01, 10000))
	h1, err := e.Open("resume", src, pagecache.ModeRead, policy.LRU)
	require.NoError(t, err)

	buf := make([]byte, 5000)
	_, err = e.Read(h1, buf)
	require.NoError(t, err)

	require.NoError(t, e.Close(h1))

	readsBefore := len(src.Reads())

	h2, err := e.Open("resume", src, pagecache.ModeRead, policy.LRU)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	off, err := e.Seek(h2, 0, io.SeekCurrent)
	require.NoError(t, err)
	require.EqualValues(t, 5000, off)

	small := make([]byte, 100)
	_, err = e.Read(h2, small)
	require.NoError(t, err)
	require.Equal(t, len(src.Reads()), readsBefore)
}

// Round-trip law.
func TestLawRoundTrip(t *testing.T) {
	e := pagecache.New(pagecache.Options{})
	defer e.Shutdown()

	src := testsource.New(make([]byte, pagecache.PageSize*4))
	h, err := e.Open("rt", src, pagecache.ModeReadWrite, policy.LRU)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0x7E}, 513)
	_, err = e.Write(h, payload)
	require.NoError(t, err)

	_, err = e.Seek(h, -int64(len(payload)), io.SeekCurrent)
	require.NoError(t, err)

	out := make([]byte, len(payload))
	_, err = e.Read(h, out)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

// Boundary: zero-length read/write.
func TestBoundaryZeroLength(t *testing.T) {
	e := pagecache.New(pagecache.Options{})
	defer e.Shutdown()

	src := testsource.New([]byte("abc"))
	h, err := e.Open("z", src, pagecache.ModeReadWrite, policy.LRU)
	require.NoError(t, err)

	n, err := e.Read(h, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	n, err = e.Write(h, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

// Boundary: cache_size == 1 frame still satisfies the round-trip law.
func TestBoundarySingleFrameRoundTrip(t *testing.T) {
	e := pagecache.New(pagecache.Options{CacheSize: 1})
	defer e.Shutdown()

	src := testsource.New(make([]byte, pagecache.PageSize))
	h, err := e.Open("single", src, pagecache.ModeReadWrite, policy.LRU)
	require.NoError(t, err)

	payload := []byte("round-trip-me")
	_, err = e.Write(h, payload)
	require.NoError(t, err)

	_, err = e.Seek(h, 0, io.SeekStart)
	require.NoError(t, err)

	out := make([]byte, len(payload))
	_, err = e.Read(h, out)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}
