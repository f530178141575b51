// Package frame implements the fixed-size buffers held by the cache's
// pool and the four guard types (MetaRead, MetaWrite, DataRead,
// DataWrite) that mediate access to them.
//
// Modeled after the RWLock-guarded PartHolder of the original C++
// FileCacheServer: metadata and data are protected by independent
// locks so that inspecting a page's flags never blocks behind an
// in-flight I/O, and a condition variable (not a bare semaphore, per
// the "condition-variable-on-boolean" design note) signals readiness
// so a wakeup is never lost to a spurious post.
package frame

import (
	"sync"

	"github.com/coldstore/pagecache/pageid"
)

// Frame is a single slot in the engine's fixed pool. Use New to
// construct one; the zero value has no backing buffer.
type Frame struct {
	Data []byte

	// metaMu/metaCond guard used/ready/dirty/usedSize/lastUse/guid.
	// A plain Mutex is used, not an RWMutex, so it can back the
	// condition variable directly per sync.Cond's contract; critical
	// sections here are a handful of field reads, so contention is
	// not a concern in practice.
	metaMu   sync.Mutex
	metaCond *sync.Cond

	used     bool
	ready    bool
	dirty    bool
	usedSize int32
	lastUse  uint64
	guid     pageid.GUID

	dataMu sync.RWMutex
}

// New allocates a Frame backed by a pageid.PageSize buffer.
func New() *Frame {
	f := &Frame{Data: make([]byte, pageid.PageSize)}
	f.metaCond = sync.NewCond(&f.metaMu)
	return f
}

// MetaRead acquires the frame's metadata lock and returns a guard
// exposing getters. Release the guard by calling Unlock.
func (f *Frame) MetaRead() MetaReadGuard {
	f.metaMu.Lock()
	return MetaReadGuard{f: f}
}

// MetaWrite acquires the frame's metadata lock for mutation.
func (f *Frame) MetaWrite() MetaWriteGuard {
	f.metaMu.Lock()
	return MetaWriteGuard{f: f}
}

// MetaReadGuard is a released-on-Unlock view over a frame's metadata.
type MetaReadGuard struct {
	f *Frame
}

func (g MetaReadGuard) Unlock() { g.f.metaMu.Unlock() }

func (g MetaReadGuard) Used() bool        { return g.f.used }
func (g MetaReadGuard) Ready() bool       { return g.f.ready }
func (g MetaReadGuard) Dirty() bool       { return g.f.dirty }
func (g MetaReadGuard) UsedSize() int32   { return g.f.usedSize }
func (g MetaReadGuard) LastUse() uint64   { return g.f.lastUse }
func (g MetaReadGuard) GUID() pageid.GUID { return g.f.guid }

// MetaWriteGuard is a released-on-Unlock exclusive view over a frame's
// metadata. Setters return the guard so calls may be chained, though
// nothing requires that style.
type MetaWriteGuard struct {
	f *Frame
}

func (g MetaWriteGuard) Unlock() { g.f.metaMu.Unlock() }

func (g MetaWriteGuard) Used() bool        { return g.f.used }
func (g MetaWriteGuard) Ready() bool       { return g.f.ready }
func (g MetaWriteGuard) Dirty() bool       { return g.f.dirty }
func (g MetaWriteGuard) UsedSize() int32   { return g.f.usedSize }
func (g MetaWriteGuard) LastUse() uint64   { return g.f.lastUse }
func (g MetaWriteGuard) GUID() pageid.GUID { return g.f.guid }

func (g MetaWriteGuard) SetUsed(v bool) MetaWriteGuard {
	g.f.used = v
	return g
}

// SetReady sets the ready flag. A false->true transition wakes up any
// reader blocked in DataRead waiting on it.
func (g MetaWriteGuard) SetReady(v bool) MetaWriteGuard {
	g.f.ready = v
	if v {
		g.f.metaCond.Broadcast()
	}
	return g
}

// SetDirty sets the dirty flag. A true->false transition (write-back
// completed) wakes up any writer blocked in DataWrite waiting for the
// frame to become clean.
func (g MetaWriteGuard) SetDirty(v bool) MetaWriteGuard {
	g.f.dirty = v
	if !v {
		g.f.metaCond.Broadcast()
	}
	return g
}

func (g MetaWriteGuard) SetUsedSize(n int32) MetaWriteGuard {
	g.f.usedSize = n
	return g
}

func (g MetaWriteGuard) SetLastUse(step uint64) MetaWriteGuard {
	g.f.lastUse = step
	return g
}

func (g MetaWriteGuard) SetGUID(guid pageid.GUID) MetaWriteGuard {
	g.f.guid = guid
	return g
}

// DataReadGuard is a released-on-Unlock shared view over a frame's
// buffer.
type DataReadGuard struct {
	f *Frame
}

// DataRead waits for the frame to become ready and then acquires the
// data lock for reading.
func (f *Frame) DataRead() DataReadGuard {
	f.metaMu.Lock()
	for !f.ready {
		f.metaCond.Wait()
	}
	f.metaMu.Unlock()

	f.dataMu.RLock()
	return DataReadGuard{f: f}
}

func (g DataReadGuard) Bytes() []byte { return g.f.Data }
func (g DataReadGuard) Unlock()       { g.f.dataMu.RUnlock() }

// DataReadStale acquires the data lock for reading without waiting for
// the ready flag. Write-back needs this: a dirty victim's Store is
// queued ahead of the Load for the page that is about to replace it in
// the same frame, so by the time the Store reaches the front of the
// queue the frame's ready flag already describes the *new* page even
// though Data still holds the victim's bytes untouched -- waiting on
// ready here would wait on the very Load that is stuck behind this
// Store.
func (f *Frame) DataReadStale() DataReadGuard {
	f.dataMu.RLock()
	return DataReadGuard{f: f}
}

// DataWriteGuard is a released-on-Unlock exclusive view over a frame's
// buffer.
type DataWriteGuard struct {
	f *Frame
}

// DataWrite acquires the data lock for writing. If waitForClean is
// set, it first waits for the dirty flag to clear -- the discipline
// that stops a Load from clobbering a page whose old contents are
// still being written back by a Store.
func (f *Frame) DataWrite(waitForClean bool) DataWriteGuard {
	if waitForClean {
		f.metaMu.Lock()
		for f.dirty {
			f.metaCond.Wait()
		}
		f.metaMu.Unlock()
	}

	f.dataMu.Lock()
	return DataWriteGuard{f: f}
}

func (g DataWriteGuard) Bytes() []byte { return g.f.Data }
func (g DataWriteGuard) Unlock()       { g.f.dataMu.Unlock() }
