package pagecache

import (
	"sync"

	"github.com/coldstore/pagecache/policy"
)

// descriptor is the per-open-source state tracked alongside a handle. Unlike Frame,
// its mutable fields are not split into independent lock domains:
// pages and policy are always touched under the engine mutex; offset
// and totalSize are read and written by the client calls on this
// descriptor's handle without it; and only the valid/lastErr
// pair -- read and written by the background worker -- gets its own
// lock plus a condition variable standing in for a
// ready_signal, so a Load or Store blocked on a closed descriptor is
// woken by a later reopen. (Close waits for its FlushClose through the
// op's Done channel, not through this condition variable.)
type descriptor struct {
	prefix uint64
	path   string

	source Source
	mode   int

	offset    int64
	totalSize int64
	policy    policy.Kind
	pages     *pageSet

	mu    sync.Mutex
	cond  *sync.Cond
	valid bool

	// lastErr records the most recent Store failure; writes that land
	// asynchronously through the background worker surface their error
	// here rather than through a direct return value.
	lastErr error
}

func newDescriptor(path string, src Source, mode int, prefix uint64, pol policy.Kind) *descriptor {
	d := &descriptor{
		prefix: prefix,
		path:   path,
		source: src,
		mode:   mode,
		policy: pol,
		pages:  newPageSet(),
		valid:  true,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// waitValid blocks until the descriptor is valid, for the IoWorker's
// Load path reopening across a close/reopen cycle.
func (d *descriptor) waitValid() {
	d.mu.Lock()
	for !d.valid {
		d.cond.Wait()
	}
	d.mu.Unlock()
}

func (d *descriptor) setValid(v bool) {
	d.mu.Lock()
	d.valid = v
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *descriptor) isValid() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.valid
}

func (d *descriptor) setLastErr(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}

func (d *descriptor) getLastErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// descSlot is one entry of the engine's generational descriptor table.
type descSlot struct {
	desc *descriptor
	gen  uint32
	free bool
}
