// Package testsource provides an in-memory pagecache.Source used by
// this module's own tests, grounded on the plain mutex-guarded,
// byte-slice-backed fakes the retrieved pack uses for its own store
// tests (hupe1980-vecgo/blobstore.MemoryStore's memoryBlob).
//
// Unlike that fake, Source also records every offset passed to
// ReadAt so tests can assert which pages the engine actually fetched
// from the source -- the instrumentation a seek-cancellation
// scenario needs.
package testsource

import (
	"io"
	"sync"

	"github.com/coldstore/pagecache"
)

// Source is an in-memory, instrumented pagecache.Source.
type Source struct {
	mu sync.Mutex

	data   []byte
	closed bool
	mode   int

	reads []int64

	// FailReadAt, if set, is returned by every subsequent ReadAt call
	// instead of touching data.
	FailReadAt error
	// FailWriteAt, if set, is returned by every subsequent WriteAt
	// call instead of touching data.
	FailWriteAt error

	// BeforeReadAt, if set, is invoked with each ReadAt's offset
	// before anything else happens, and outside of Source's own lock
	// so it may safely block the caller (e.g. to let a test
	// deterministically sequence a seek against an in-flight Load).
	BeforeReadAt func(off int64)
}

// New returns a Source whose contents are a copy of data.
func New(data []byte) *Source {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Source{data: cp, mode: pagecache.ModeReadWrite}
}

// Reads returns every offset passed to ReadAt, in call order.
func (s *Source) Reads() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.reads))
	copy(out, s.reads)
	return out
}

// Bytes returns a copy of the source's current contents.
func (s *Source) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if s.BeforeReadAt != nil {
		s.BeforeReadAt(off)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads = append(s.reads, off)

	if s.FailReadAt != nil {
		return 0, s.FailReadAt
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}

	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Source) WriteAt(p []byte, off int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWriteAt != nil {
		return s.FailWriteAt
	}

	need := off + int64(len(p))
	if need > int64(len(s.data)) {
		grown := make([]byte, need)
		copy(grown, s.data)
		s.data = grown
	}
	copy(s.data[off:], p)
	return nil
}

func (s *Source) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.data)), nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Source) Reopen(mode int) (pagecache.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
	s.mode = mode
	return s, nil
}

// Closed reports whether the source is currently closed.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
