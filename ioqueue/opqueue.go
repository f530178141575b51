// Package ioqueue implements the bounded FIFO of control operations
// that links CacheEngine's miss/eviction/flush paths to the single
// background IoWorker.
//
// The teacher repo has no equivalent -- brig's page overlay does all
// I/O synchronously on the calling goroutine -- so the queue itself is
// grounded on the original C++ FileCacheServer's ControlQueue
// (original_source/modules/cacheserv/control_queue.h), reworked with
// Go-idiomatic counting semaphores in place of a raw condition
// variable: golang.org/x/sync/semaphore.Weighted, the same primitive
// hupe1980-vecgo uses to gate its background write workers
// (internal/resource/controller.go). A bounded producer/consumer
// buffer needs two such semaphores (free slots and filled slots); this
// is the standard textbook pairing, just built from Weighted instead
// of a raw counting semaphore.
package ioqueue

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Kind is the control operation kind.
type Kind int

const (
	Load Kind = iota
	Store
	Flush
	FlushClose
	Quit
)

func (k Kind) String() string {
	switch k {
	case Load:
		return "load"
	case Store:
		return "store"
	case Flush:
		return "flush"
	case FlushClose:
		return "flush-close"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Op is a single queued control operation. Done, if set, is closed by
// the worker once it finishes processing this op -- used by Flush and
// FlushClose, whose callers must block until the write-back they
// triggered has actually landed.
type Op struct {
	Kind     Kind
	DescID   uint32
	FrameIdx int
	Offset   int64
	Done     chan struct{}
}

// Queue is a mutex-guarded FIFO of Ops. free tracks how many more Ops
// may be pushed before a producer blocks (bounded backpressure);
// filled tracks how many Ops are available for Pop to drain. Both
// start fully "reserved" the other way: free starts at capacity
// (queue empty, all slots free) and filled starts consumed to zero
// (nothing to pop yet).
type Queue struct {
	mu     sync.Mutex
	l      *list.List
	free   *semaphore.Weighted
	filled *semaphore.Weighted
}

// New returns an empty Queue bounded to capacity outstanding ops.
func New(capacity int64) *Queue {
	q := &Queue{
		l:      list.New(),
		free:   semaphore.NewWeighted(capacity),
		filled: semaphore.NewWeighted(capacity),
	}
	// Consume the whole filled-semaphore up front so Pop blocks until
	// something is actually pushed.
	_ = q.filled.Acquire(context.Background(), capacity)
	return q
}

// PushBack enqueues op at the tail (normal FIFO order), blocking if the
// queue is at capacity. There are no timeouts in this design, so
// callers that need to bound the wait should pass a cancellable
// context via PushBackContext.
func (q *Queue) PushBack(op Op) {
	_ = q.PushBackContext(context.Background(), op)
}

// PushBackContext is PushBack with a cancellable admission wait.
func (q *Queue) PushBackContext(ctx context.Context, op Op) error {
	return q.push(ctx, op, false)
}

// PushFront enqueues op at the head, for the priority Flush/FlushClose
// push.
func (q *Queue) PushFront(op Op) {
	_ = q.push(context.Background(), op, true)
}

func (q *Queue) push(ctx context.Context, op Op, front bool) error {
	if err := q.free.Acquire(ctx, 1); err != nil {
		return err
	}

	q.mu.Lock()
	if front {
		q.l.PushFront(op)
	} else {
		q.l.PushBack(op)
	}
	q.mu.Unlock()

	q.filled.Release(1)
	return nil
}

// Pop blocks until an op is available (or ctx is done) and returns it.
func (q *Queue) Pop(ctx context.Context) (Op, error) {
	for {
		if err := q.filled.Acquire(ctx, 1); err != nil {
			return Op{}, err
		}

		q.mu.Lock()
		e := q.l.Front()
		if e == nil {
			// A concurrent RemoveMatching already erased the op this
			// credit was reserved for, racing ahead of this Acquire.
			// The credit is spent either way -- it was one of the
			// removed op's own Release credits, reclaimed by this Pop
			// instead of by RemoveMatching's own TryAcquire -- so just
			// go around and acquire the next one instead of
			// dereferencing a front that isn't there.
			q.mu.Unlock()
			continue
		}
		op := e.Value.(Op)
		q.l.Remove(e)
		q.mu.Unlock()

		q.free.Release(1)
		return op, nil
	}
}

// RemoveMatching scans the queue under its lock and erases every op
// for which match returns true, returning the erased ops in FIFO
// order. Used both for seek cancellation and for the subsumption of
// redundant Store/Load ops ahead of a Flush/FlushClose.
func (q *Queue) RemoveMatching(match func(Op) bool) []Op {
	q.mu.Lock()
	var removed []Op
	for e := q.l.Front(); e != nil; {
		next := e.Next()
		op := e.Value.(Op)
		if match(op) {
			removed = append(removed, op)
			q.l.Remove(e)
		}
		e = next
	}
	q.mu.Unlock()

	for range removed {
		// Each erased op previously consumed one "filled" credit via
		// Release and one "free" credit via Acquire. The free slot is
		// unconditionally reclaimable: removing the op from the list is
		// itself what frees it, regardless of who does the reclaiming.
		// The filled credit is only reclaimable here if no concurrent
		// Pop has already raced ahead and acquired it first --
		// TryAcquire never blocks, so a lost race just leaves the
		// credit for that Pop to spend on its now-vanished op instead.
		// Either way the credit is retired exactly once; Pop is written
		// to cope with finding its claimed op already gone from the
		// front by looping around for the next one.
		_ = q.filled.TryAcquire(1)
		q.free.Release(1)
	}

	return removed
}

// Len reports the current queue length. Intended for tests and
// diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.l.Len()
}
