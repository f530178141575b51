package pagecache

import (
	"container/list"

	"github.com/coldstore/pagecache/pageid"
)

// pageSet is a descriptor's ordered set of cached page-GUIDs, grounded
// on the same container/list+map combination as policy.orderedList --
// the descriptor needs the same
// O(1) insert/erase/iterate shape, just without the eviction-age
// ordering semantics that belong to the PolicySet.
type pageSet struct {
	l *list.List
	m map[pageid.GUID]*list.Element
}

func newPageSet() *pageSet {
	return &pageSet{l: list.New(), m: make(map[pageid.GUID]*list.Element)}
}

func (s *pageSet) Insert(guid pageid.GUID) {
	if _, ok := s.m[guid]; ok {
		return
	}
	s.m[guid] = s.l.PushBack(guid)
}

func (s *pageSet) Erase(guid pageid.GUID) {
	if e, ok := s.m[guid]; ok {
		s.l.Remove(e)
		delete(s.m, guid)
	}
}

func (s *pageSet) Contains(guid pageid.GUID) bool {
	_, ok := s.m[guid]
	return ok
}

func (s *pageSet) Len() int { return s.l.Len() }

// Snapshot returns every cached page-GUID in insertion order. Callers
// mutating the set (e.g. PermanentClose erasing pages mid-scan) should use
// this rather than iterate live.
func (s *pageSet) Snapshot() []pageid.GUID {
	out := make([]pageid.GUID, 0, s.l.Len())
	for e := s.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(pageid.GUID))
	}
	return out
}
