package policy

import (
	"testing"

	"github.com/coldstore/pagecache/pageid"
	"github.com/stretchr/testify/require"
)

func guid(n uint64) pageid.GUID {
	return pageid.Make(1, int64(n)*pageid.PageSize)
}

func TestFIFOEvictsInInsertionOrder(t *testing.T) {
	s := New(Thresholds{Keep: 8, LRU: 8, FIFO: 2}, 1)

	lastUse := map[pageid.GUID]uint64{}
	lu := func(g pageid.GUID) uint64 { return lastUse[g] }

	for i := uint64(0); i < 5; i++ {
		g := guid(i)
		s.OnInsert(FIFO, g)
		lastUse[g] = i
	}

	require.Equal(t, 5, s.Len())

	// FIFO evicts the oldest inserted page first (guid(0)), regardless
	// of the FIFO threshold: it's only a "borrow from LRU" hint.
	g, kind, ok := s.Evict(FIFO, 5, lu)
	require.True(t, ok)
	require.Equal(t, FIFO, kind)
	require.Equal(t, guid(0), g)
	require.Equal(t, 4, s.Len())
}

func TestLRUOnUpdateProtectsRecentlyTouched(t *testing.T) {
	s := New(Thresholds{Keep: 8, LRU: 1, FIFO: 8}, 1)

	lastUse := map[pageid.GUID]uint64{}
	lu := func(g pageid.GUID) uint64 { return lastUse[g] }

	g0, g1, g2 := guid(0), guid(1), guid(2)
	for i, g := range []pageid.GUID{g0, g1, g2} {
		s.OnInsert(LRU, g)
		lastUse[g] = uint64(i)
	}

	// touch g0 so it becomes the most recently used; it must now sit
	// behind g1 and g2 and be excluded from the two-oldest pick.
	s.OnUpdate(LRU, g0)
	lastUse[g0] = 10

	victim, kind, ok := s.Evict(LRU, 20, lu)
	require.True(t, ok)
	require.Equal(t, LRU, kind)
	require.Contains(t, []pageid.GUID{g1, g2}, victim, "recently touched g0 must not be picked")
}

func TestPermanentPrefersBorrowingBeforeOwnPool(t *testing.T) {
	s := New(Thresholds{Keep: 8, LRU: 1, FIFO: 1}, 1)

	lastUse := map[pageid.GUID]uint64{}
	lu := func(g pageid.GUID) uint64 { return lastUse[g] }

	// two permanent pages, well under KeepThresh/2 == 4
	p0, p1 := guid(100), guid(101)
	s.OnInsert(Permanent, p0)
	lastUse[p0] = 0
	s.OnInsert(Permanent, p1)
	lastUse[p1] = 0

	// one FIFO page above its threshold of 1
	f0, f1 := guid(200), guid(201)
	s.OnInsert(FIFO, f0)
	lastUse[f0] = 0
	s.OnInsert(FIFO, f1)
	lastUse[f1] = 1

	victim, kind, ok := s.Evict(Permanent, 5, lu)
	require.True(t, ok)
	require.Equal(t, FIFO, kind, "permanent must borrow from FIFO before touching its own pool")
	require.Equal(t, f0, victim)

	// permanent pages are still both present
	require.True(t, s.permanent.Contains(p0))
	require.True(t, s.permanent.Contains(p1))
}

func TestPermanentIsolationBelowKeepThresh(t *testing.T) {
	// No FIFO or LRU pages to borrow from, and permanent size is
	// exactly at KeepThresh/2: the isolation law requires no eviction
	// of a Permanent page while size <= KeepThresh/2.
	s := New(Thresholds{Keep: 8, LRU: 8, FIFO: 8}, 1)

	lastUse := map[pageid.GUID]uint64{}
	lu := func(g pageid.GUID) uint64 { return lastUse[g] }

	for i := uint64(0); i < 4; i++ {
		g := guid(i)
		s.OnInsert(Permanent, g)
		lastUse[g] = i
	}

	_, _, ok := s.Evict(Permanent, 100, lu)
	require.False(t, ok, "must not evict from a permanent pool at or below KeepThresh/2")
}

func TestEvictExhaustedReturnsFalse(t *testing.T) {
	s := New(DefaultThresholds(), 1)
	lu := func(pageid.GUID) uint64 { return 0 }

	_, _, ok := s.Evict(LRU, 0, lu)
	require.False(t, ok)
}
