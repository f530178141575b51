// Package policy implements the three replacement policies (Permanent,
// LRU, FIFO) and the PolicySet that partitions every cached page-GUID
// among them.
//
// The "function-pointer tables keyed by
// policy enum" of the original C++ FileCacheServer (`cache_policies[...]`
// dispatched by `desc_info->cache_policy`) are replaced here with a
// small sum type (Kind) and a switch inside Set's methods -- no
// per-policy struct or interface is needed since all three share the
// same three backing collections and only differ in insertion order,
// update behavior and eviction preference.
package policy

import (
	"math/rand"

	"github.com/coldstore/pagecache/pageid"
)

// Kind identifies which of the three replacement policies a descriptor
// uses.
type Kind int

const (
	Permanent Kind = iota
	LRU
	FIFO
)

func (k Kind) String() string {
	switch k {
	case Permanent:
		return "permanent"
	case LRU:
		return "lru"
	case FIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// Thresholds holds the three soft per-collection pressure thresholds.
// All default to 8 pages.
type Thresholds struct {
	Keep int
	LRU  int
	FIFO int
}

// DefaultThresholds returns the default of 8 pages per collection.
func DefaultThresholds() Thresholds {
	return Thresholds{Keep: 8, LRU: 8, FIFO: 8}
}

// LastUse resolves the last-use step of a cached page, so eviction can
// compare it against the current step without the policy package
// needing to know about frames directly.
type LastUse func(guid pageid.GUID) uint64

// Set is a PolicySet: three collections partitioning the
// keys of the engine's PageMap, plus the thresholds that govern
// eviction pressure between them.
type Set struct {
	permanent *orderedList
	lru       *orderedList
	fifo      *orderedList

	Thresholds Thresholds
	rng        *rand.Rand
}

// New returns an empty Set with the given thresholds. rngSeed makes
// the two-oldest coin flip reproducible in tests; production callers
// can pass any varying seed (e.g. time-derived).
func New(t Thresholds, rngSeed int64) *Set {
	return &Set{
		permanent:  newOrderedList(),
		lru:        newOrderedList(),
		fifo:       newOrderedList(),
		Thresholds: t,
		rng:        rand.New(rand.NewSource(rngSeed)),
	}
}

func (s *Set) collection(k Kind) *orderedList {
	switch k {
	case Permanent:
		return s.permanent
	case LRU:
		return s.lru
	default:
		return s.fifo
	}
}

// Len returns the total number of cached pages across all three
// collections; per invariant 5 this must always equal PageMap.Len().
func (s *Set) Len() int {
	return s.permanent.Len() + s.lru.Len() + s.fifo.Len()
}

// OnInsert records a newly mapped page under the descriptor's policy.
func (s *Set) OnInsert(k Kind, guid pageid.GUID) {
	if k == FIFO {
		s.fifo.PushFront(guid)
		return
	}
	s.collection(k).PushBack(guid)
}

// OnUpdate stamps a cache hit. FIFO is insertion-order only and does
// not reorder on hit.
func (s *Set) OnUpdate(k Kind, guid pageid.GUID) {
	if k == FIFO {
		return
	}
	s.collection(k).MoveToBack(guid)
}

// OnRemove drops guid from whichever collection currently holds it.
// The kind is known by the caller (the owning descriptor's policy),
// but Remove is a no-op on collections that don't contain guid, so
// passing the wrong kind here would silently do nothing; callers must
// pass the owning descriptor's policy kind.
func (s *Set) OnRemove(k Kind, guid pageid.GUID) {
	s.collection(k).Remove(guid)
}

func (s *Set) older(guid pageid.GUID, step uint64, thresh int, lu LastUse) bool {
	return step-lu(guid) > uint64(thresh)
}

func (s *Set) pickTwoOldest(k Kind) (pageid.GUID, bool) {
	c := s.collection(k)
	cand := c.TwoOldestFromFront()
	switch len(cand) {
	case 0:
		return 0, false
	case 1:
		return cand[0], true
	default:
		return cand[s.rng.Intn(2)], true
	}
}

// Evict chooses a victim page-GUID for a descriptor whose policy is
// requesting, in a fixed per-policy preference order, and
// removes it from whichever collection held it. step is the engine's
// current monotonic step counter; lu resolves a page's last-use step.
//
// It returns (guid, kind, true) on success; (0, 0, false) means the
// requesting policy's preference order allows no victim. That can
// happen with pages still cached: a Permanent request never takes
// from a permanent pool at or below Keep/2, nor from FIFO or LRU pools
// at or below their thresholds. The engine reports it as
// ErrCacheExhausted.
func (s *Set) Evict(requesting Kind, step uint64, lu LastUse) (pageid.GUID, Kind, bool) {
	switch requesting {
	case Permanent:
		return s.evictPermanent(step, lu)
	case LRU:
		return s.evictLRU(step, lu)
	default:
		return s.evictFIFO(step, lu)
	}
}

func (s *Set) evictPermanent(step uint64, lu LastUse) (pageid.GUID, Kind, bool) {
	if s.fifo.Len() > s.Thresholds.FIFO {
		if g, ok := s.fifo.Back(); ok {
			s.fifo.Remove(g)
			return g, FIFO, true
		}
	}

	if s.lru.Len() > s.Thresholds.LRU {
		if g, ok := s.lru.Front(); ok && s.older(g, step, s.Thresholds.LRU, lu) {
			s.lru.Remove(g)
			return g, LRU, true
		}
	}

	if s.permanent.Len() > s.Thresholds.Keep/2 {
		if g, ok := s.pickTwoOldest(Permanent); ok {
			s.permanent.Remove(g)
			return g, Permanent, true
		}
	}

	return 0, 0, false
}

func (s *Set) evictLRU(step uint64, lu LastUse) (pageid.GUID, Kind, bool) {
	if s.lru.Len() > s.Thresholds.LRU {
		if front, ok := s.lru.Front(); ok && s.older(front, step, s.Thresholds.LRU, lu) {
			g, _ := s.pickTwoOldest(LRU)
			s.lru.Remove(g)
			return g, LRU, true
		}
	}

	if s.fifo.Len() > s.Thresholds.FIFO {
		if g, ok := s.fifo.Back(); ok {
			s.fifo.Remove(g)
			return g, FIFO, true
		}
	}

	if g, ok := s.pickTwoOldest(LRU); ok {
		s.lru.Remove(g)
		return g, LRU, true
	}

	return 0, 0, false
}

func (s *Set) evictFIFO(step uint64, lu LastUse) (pageid.GUID, Kind, bool) {
	if s.fifo.Len() > 0 && s.fifo.Len() >= s.Thresholds.FIFO/4 {
		if g, ok := s.fifo.Back(); ok {
			s.fifo.Remove(g)
			return g, FIFO, true
		}
	}

	if s.lru.Len() > s.Thresholds.LRU {
		if g, ok := s.lru.Front(); ok && s.older(g, step, s.Thresholds.LRU, lu) {
			s.lru.Remove(g)
			return g, LRU, true
		}
	}

	if g, ok := s.fifo.Back(); ok {
		s.fifo.Remove(g)
		return g, FIFO, true
	}

	return 0, 0, false
}
