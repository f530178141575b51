// Package pagemap implements the flat page-GUID to frame-index table
// shared by every descriptor of a single engine.
//
// Grounded on the map-backed index used by the teacher's L1 page cache
// (catfs/mio/pagecache/mdcache/l1.go): a plain Go map protected by the
// caller (the engine mutex) rather than a third-party
// concurrent map, since the whole table is already touched under a
// single coarse lock during structural changes.
package pagemap

import "github.com/coldstore/pagecache/pageid"

// ErrAlreadyMapped is returned by Insert when guid is already present.
type ErrAlreadyMapped pageid.GUID

func (e ErrAlreadyMapped) Error() string {
	return "pagemap: guid already mapped to a frame"
}

// Map is the page-GUID -> frame-index table. It is not safe for
// concurrent use; callers serialize access under the engine mutex.
type Map struct {
	m map[pageid.GUID]int
}

// New returns an empty Map.
func New() *Map {
	return &Map{m: make(map[pageid.GUID]int)}
}

// Lookup returns the frame index holding guid, and whether it was found.
func (m *Map) Lookup(guid pageid.GUID) (int, bool) {
	idx, ok := m.m[guid]
	return idx, ok
}

// Insert records that guid is now held by frameIdx. It refuses to
// silently overwrite an existing mapping.
func (m *Map) Insert(guid pageid.GUID, frameIdx int) error {
	if _, ok := m.m[guid]; ok {
		return ErrAlreadyMapped(guid)
	}

	m.m[guid] = frameIdx
	return nil
}

// Erase removes guid from the table, if present.
func (m *Map) Erase(guid pageid.GUID) {
	delete(m.m, guid)
}

// Len returns the number of cached pages across every descriptor.
func (m *Map) Len() int {
	return len(m.m)
}
