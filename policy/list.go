package policy

import (
	"container/list"

	"github.com/coldstore/pagecache/pageid"
)

// orderedList is a doubly-linked, O(1)-move ordered collection of
// page-GUIDs, grounded on the map+container/list combination the
// teacher uses for its L1 page index (catfs/mio/pagecache/mdcache/l1.go),
// which needs exactly the same two properties: eviction must notice
// the oldest entry in O(1), and touching an entry must reorder it in
// O(1) without a full scan.
type orderedList struct {
	l *list.List
	m map[pageid.GUID]*list.Element
}

func newOrderedList() *orderedList {
	return &orderedList{
		l: list.New(),
		m: make(map[pageid.GUID]*list.Element),
	}
}

func (o *orderedList) PushBack(guid pageid.GUID) {
	if _, ok := o.m[guid]; ok {
		return
	}
	o.m[guid] = o.l.PushBack(guid)
}

func (o *orderedList) PushFront(guid pageid.GUID) {
	if _, ok := o.m[guid]; ok {
		return
	}
	o.m[guid] = o.l.PushFront(guid)
}

func (o *orderedList) MoveToBack(guid pageid.GUID) {
	if e, ok := o.m[guid]; ok {
		o.l.MoveToBack(e)
	}
}

func (o *orderedList) Remove(guid pageid.GUID) {
	if e, ok := o.m[guid]; ok {
		o.l.Remove(e)
		delete(o.m, guid)
	}
}

func (o *orderedList) Contains(guid pageid.GUID) bool {
	_, ok := o.m[guid]
	return ok
}

func (o *orderedList) Len() int { return o.l.Len() }

// Front returns the oldest entry under the "new entries pushed to
// back" convention (Permanent, LRU).
func (o *orderedList) Front() (pageid.GUID, bool) {
	e := o.l.Front()
	if e == nil {
		return 0, false
	}
	return e.Value.(pageid.GUID), true
}

// Back returns the oldest entry under the "new entries pushed to
// front" convention (FIFO).
func (o *orderedList) Back() (pageid.GUID, bool) {
	e := o.l.Back()
	if e == nil {
		return 0, false
	}
	return e.Value.(pageid.GUID), true
}

// TwoOldestFromFront returns the front-most one or two entries, oldest
// first, for two-oldest eviction randomization.
func (o *orderedList) TwoOldestFromFront() []pageid.GUID {
	var out []pageid.GUID
	e := o.l.Front()
	for i := 0; i < 2 && e != nil; i++ {
		out = append(out, e.Value.(pageid.GUID))
		e = e.Next()
	}
	return out
}
