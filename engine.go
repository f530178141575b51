// Package pagecache implements a user-space page cache for
// random-access byte streams: clients open a Source behind an opaque
// Handle and then read, write, seek and flush through a fixed-size
// pool of in-memory frames, with an asynchronous worker servicing
// misses and write-backs so callers block only when strictly
// necessary.
//
// The design is grounded throughout on the teacher's own leveled page
// cache (catfs/mio/pagecache/mdcache), generalized from its two fixed
// L1/L2 layers to a frame pool + three-policy PolicySet +
// background IoWorker pipeline.
package pagecache

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/coldstore/pagecache/frame"
	"github.com/coldstore/pagecache/ioqueue"
	"github.com/coldstore/pagecache/pageid"
	"github.com/coldstore/pagecache/pagemap"
	"github.com/coldstore/pagecache/pclog"
	"github.com/coldstore/pagecache/policy"
)

// Engine is a single page cache instance: one fixed pool of frames
// shared by every descriptor opened against it.
type Engine struct {
	// mu is the Engine mutex: it guards the frame pool's
	// used/free bookkeeping, PageMap, PolicySet, the step counter and
	// the descriptor table. It is released before any memcpy or I/O
	// enqueue.
	mu sync.Mutex

	opts Options

	frames   []*frame.Frame
	pageMap  *pagemap.Map
	policies *policy.Set
	step     uint64

	slots      []descSlot
	freeSlots  []int
	pathToSlot map[string]int
	nextPrefix uint64

	queue     *ioqueue.Queue
	readAhead *rate.Limiter

	log *logrus.Logger

	workerWG sync.WaitGroup
	closed   bool
}

// New constructs an Engine with a pool of opts.CacheSize frames and
// starts its background IoWorker. Call Shutdown to stop the worker
// and release its goroutine.
func New(opts Options) *Engine {
	opts = opts.withDefaults()

	e := &Engine{
		opts:       opts,
		frames:     make([]*frame.Frame, opts.CacheSize),
		pageMap:    pagemap.New(),
		policies:   policy.New(opts.Thresholds, 0),
		slots:      nil,
		pathToSlot: make(map[string]int),
		queue:      ioqueue.New(int64(opts.OpQueueCapacity)),
		readAhead:  rate.NewLimiter(rate.Limit(opts.ReadAheadBurst), opts.ReadAheadBurst),
		log:        opts.Logger,
	}
	if e.log == nil {
		e.log = logrus.New()
		e.log.SetFormatter(pclog.New())
	}

	for i := range e.frames {
		e.frames[i] = frame.New()
	}

	e.workerWG.Add(1)
	go e.runWorker()

	return e
}

// Shutdown stops the background worker and waits for it to exit, per
// the shutdown sequence ("set exit=true, push Quit, join the
// worker"). It does not flush outstanding dirty pages; callers that
// need a durable shutdown should Close every open handle first.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.queue.PushBack(ioqueue.Op{Kind: ioqueue.Quit})
	e.workerWG.Wait()
}

// resolve looks up the descriptor behind h, validating its generation
// against the slot's current occupant.
func (e *Engine) resolve(h Handle) (*descriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h.idx < 0 || h.idx >= len(e.slots) {
		return nil, ErrNoSuchHandle
	}
	slot := e.slots[h.idx]
	if slot.free || slot.gen != h.gen || slot.desc == nil {
		return nil, ErrNoSuchHandle
	}
	return slot.desc, nil
}

// Open opens src under path/mode with the given replacement policy,
// If path names a descriptor that was Close'd (but not
// PermanentClose'd) earlier, the same Handle is returned, its offset
// and cached pages intact, and the descriptor's stored source is
// resumed through its own Reopen (src is ignored in that case).
func (e *Engine) Open(path string, src Source, mode int, pol policy.Kind) (Handle, error) {
	if path == "" {
		return Handle{}, ErrEmptyPath
	}

	e.mu.Lock()
	if slotIdx, ok := e.pathToSlot[path]; ok {
		slot := &e.slots[slotIdx]
		d := slot.desc
		if d.isValid() {
			e.mu.Unlock()
			return Handle{}, ErrAlreadyOpen
		}

		reopened, err := d.source.Reopen(mode)
		if err != nil {
			e.mu.Unlock()
			return Handle{}, wrapSourceErr(OpReopen, path, err)
		}
		d.source = reopened
		d.mode = mode

		if pol != d.policy {
			for _, guid := range d.pages.Snapshot() {
				e.policies.OnRemove(d.policy, guid)
				e.policies.OnInsert(pol, guid)
			}
			d.policy = pol
		}
		d.setValid(true)

		h := Handle{idx: slotIdx, gen: slot.gen}
		e.mu.Unlock()
		return h, nil
	}

	prefix := e.nextPrefix
	e.nextPrefix++
	if prefix > pageid.MaxPrefix {
		e.mu.Unlock()
		return Handle{}, ErrCacheExhausted
	}

	d := newDescriptor(path, src, mode, prefix, pol)

	size, err := src.Size()
	if err != nil {
		e.mu.Unlock()
		return Handle{}, wrapSourceErr(OpSize, path, err)
	}
	d.totalSize = size

	var slotIdx int
	if n := len(e.freeSlots); n > 0 {
		slotIdx = e.freeSlots[n-1]
		e.freeSlots = e.freeSlots[:n-1]
		e.slots[slotIdx].desc = d
		e.slots[slotIdx].free = false
		e.slots[slotIdx].gen++
	} else {
		slotIdx = len(e.slots)
		e.slots = append(e.slots, descSlot{desc: d, gen: 1})
	}
	e.pathToSlot[path] = slotIdx
	h := Handle{idx: slotIdx, gen: e.slots[slotIdx].gen}
	e.mu.Unlock()

	e.checkCache(d, e.opts.Thresholds.LRU*PageSize)
	return h, nil
}

// Close flushes h's dirty pages, closes its source and marks it
// invalid; the descriptor and its cached frames are preserved so a
// later Open of the same path resumes them.
func (e *Engine) Close(h Handle) error {
	d, err := e.resolve(h)
	if err != nil {
		return err
	}
	if !d.isValid() {
		return nil
	}
	return e.flushClose(d)
}

// PermanentClose closes h like Close, then evicts all of its cached
// pages and destroys the descriptor, invalidating h.
func (e *Engine) PermanentClose(h Handle) error {
	d, err := e.resolve(h)
	if err != nil {
		return err
	}
	if d.isValid() {
		if err := e.flushClose(d); err != nil {
			return err
		}
	}

	e.mu.Lock()
	for _, guid := range d.pages.Snapshot() {
		if idx, ok := e.pageMap.Lookup(guid); ok {
			e.frames[idx].MetaWrite().SetUsed(false).SetReady(false).Unlock()
			e.policies.OnRemove(d.policy, guid)
			e.pageMap.Erase(guid)
		}
		d.pages.Erase(guid)
	}

	delete(e.pathToSlot, d.path)
	e.slots[h.idx].desc = nil
	e.slots[h.idx].free = true
	e.slots[h.idx].gen++
	e.freeSlots = append(e.freeSlots, h.idx)
	e.mu.Unlock()

	return nil
}

// flushClose cancels d's outstanding Loads/Stores, front-pushes a
// FlushClose and blocks until the worker finishes it.
func (e *Engine) flushClose(d *descriptor) error {
	e.queue.RemoveMatching(func(op ioqueue.Op) bool {
		return op.DescID == uint32(d.prefix) && (op.Kind == ioqueue.Load || op.Kind == ioqueue.Store)
	})

	done := make(chan struct{})
	e.queue.PushFront(ioqueue.Op{Kind: ioqueue.FlushClose, DescID: uint32(d.prefix), Done: done})
	<-done
	return d.getLastErr()
}

// Flush synchronously writes back every dirty page of h.
func (e *Engine) Flush(h Handle) error {
	d, err := e.resolve(h)
	if err != nil {
		return err
	}

	e.queue.RemoveMatching(func(op ioqueue.Op) bool {
		return op.DescID == uint32(d.prefix) && op.Kind == ioqueue.Store
	})

	done := make(chan struct{})
	e.queue.PushFront(ioqueue.Op{Kind: ioqueue.Flush, DescID: uint32(d.prefix), Done: done})
	<-done
	return d.getLastErr()
}

// GetLen refreshes and returns h's source size.
func (e *Engine) GetLen(h Handle) (int64, error) {
	d, err := e.resolve(h)
	if err != nil {
		return 0, err
	}
	if !d.isValid() {
		return d.totalSize, nil
	}

	size, err := d.source.Size()
	if err != nil {
		return 0, wrapSourceErr(OpSize, d.path, err)
	}
	d.totalSize = size
	return size, nil
}

// Stats reports the engine's current cache occupancy and monotonic
// step counter, for diagnostics and tests.
func (e *Engine) Stats() (pages int, step uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pageMap.Len(), e.step
}

// CachedPageCount reports how many pages h currently has resident.
func (e *Engine) CachedPageCount(h Handle) (int, error) {
	d, err := e.resolve(h)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return d.pages.Len(), nil
}

// EofReached reports whether h's cursor is at or past its source's
// last known size.
func (e *Engine) EofReached(h Handle) (bool, error) {
	d, err := e.resolve(h)
	if err != nil {
		return false, err
	}
	return d.offset >= d.totalSize, nil
}

// Seek repositions h's cursor per whence (io.SeekStart/Current/End)
// and cancels any outstanding prefetch Loads that are now too far
// away to be useful.
func (e *Engine) Seek(h Handle, off int64, whence int) (int64, error) {
	d, err := e.resolve(h)
	if err != nil {
		return 0, err
	}

	var eff int64
	switch whence {
	case io.SeekStart:
		eff = off
	case io.SeekCurrent:
		eff = d.offset + off
	case io.SeekEnd:
		eff = d.totalSize + off
	default:
		return 0, ErrInvalidMode
	}
	if eff < 0 {
		return 0, ErrInvalidOffset
	}

	e.cancelDistantLoads(d, eff)
	d.offset = eff
	return eff, nil
}

func (e *Engine) cancelDistantLoads(d *descriptor, eff int64) {
	targetPage := pageid.PageIndex(eff)
	thresh := int64(e.opts.Thresholds.FIFO)

	removed := e.queue.RemoveMatching(func(op ioqueue.Op) bool {
		if op.Kind != ioqueue.Load || op.DescID != uint32(d.prefix) {
			return false
		}
		diff := pageid.PageIndex(op.Offset) - targetPage
		if diff < 0 {
			diff = -diff
		}
		return diff > thresh
	})
	if len(removed) == 0 {
		return
	}

	e.mu.Lock()
	for _, op := range removed {
		guid := pageid.Make(d.prefix, op.Offset)
		e.frames[op.FrameIdx].MetaWrite().SetUsed(false).SetReady(false).Unlock()
		e.policies.OnRemove(d.policy, guid)
		e.pageMap.Erase(guid)
		d.pages.Erase(guid)
	}
	e.mu.Unlock()
}

// Read copies up to len(buf) bytes starting at h's cursor into buf,
// advancing the cursor by the number of bytes actually copied. A read
// that crosses EOF returns short with the remainder of buf zeroed.
func (e *Engine) Read(h Handle, buf []byte) (int, error) {
	d, err := e.resolve(h)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	n := 0
	for n < len(buf) {
		cur := d.offset + int64(n)
		_, frameIdx, _, err := e.fetchPage(d, cur)
		if err != nil {
			return n, err
		}

		f := e.frames[frameIdx]

		// DataRead blocks until the page's Load has landed; only once
		// it returns is used_size guaranteed to describe *this* page
		// rather than a frame the pool hasn't finished reassigning.
		drg := f.DataRead()

		mrg := f.MetaRead()
		usedSize := int64(mrg.UsedSize())
		mrg.Unlock()

		pageOff := cur - pageid.Align(cur)
		avail := usedSize - pageOff
		if avail < 0 {
			avail = 0
		}
		want := int64(len(buf) - n)
		toCopy := avail
		if toCopy > want {
			toCopy = want
		}

		if toCopy > 0 {
			copy(buf[n:n+int(toCopy)], drg.Bytes()[pageOff:pageOff+toCopy])
		}
		drg.Unlock()

		n += int(toCopy)
		if toCopy < want {
			break
		}
	}

	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}

	d.offset += int64(n)
	return n, nil
}

// Write copies data into the cache starting at h's cursor, marking
// every touched frame dirty, and advances the cursor.
func (e *Engine) Write(h Handle, data []byte) (int, error) {
	d, err := e.resolve(h)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	n := 0
	for n < len(data) {
		cur := d.offset + int64(n)
		_, frameIdx, _, err := e.fetchPage(d, cur)
		if err != nil {
			return n, err
		}

		pageOff := cur - pageid.Align(cur)
		room := int64(PageSize) - pageOff
		want := int64(len(data) - n)
		toCopy := room
		if toCopy > want {
			toCopy = want
		}

		f := e.frames[frameIdx]
		// A write that lands on a frame this same call just claimed on
		// miss races the IoWorker's own Load into that frame: block
		// until the Load (if any) has landed, the same way a reader
		// would, before taking the exclusive data lock. wait_for_clean
		// only guards against an in-flight Store; it says nothing about
		// an in-flight Load targeting a frame this write hasn't touched
		// yet.
		f.DataRead().Unlock()
		dwg := f.DataWrite(false)
		copy(dwg.Bytes()[pageOff:pageOff+toCopy], data[n:n+int(toCopy)])
		dwg.Unlock()

		newUsed := int32(pageOff + toCopy)
		mwg := f.MetaWrite()
		if newUsed > mwg.UsedSize() {
			mwg.SetUsedSize(newUsed)
		}
		mwg.SetDirty(true)
		mwg.Unlock()

		n += int(toCopy)
	}

	d.offset += int64(n)
	return n, nil
}

// fetchPage resolves the frame backing the page at offset for d,
// arranging a Load (or a synchronous zero-fill, past EOF) on miss.
func (e *Engine) fetchPage(d *descriptor, offset int64) (pageid.GUID, int, bool, error) {
	guid, frameIdx, hit, err := e.pageOp(d, offset)
	if err != nil {
		return guid, frameIdx, hit, err
	}
	if hit {
		return guid, frameIdx, hit, nil
	}

	f := e.frames[frameIdx]
	aligned := pageid.Align(offset)
	if aligned >= d.totalSize {
		// Wait for clean like a Load would: a reassigned dirty victim's
		// Store must read its bytes before they are zeroed.
		dwg := f.DataWrite(true)
		buf := dwg.Bytes()
		for i := range buf {
			buf[i] = 0
		}
		dwg.Unlock()
		f.MetaWrite().SetUsedSize(0).SetReady(true).Unlock()
		return guid, frameIdx, hit, nil
	}

	e.queue.PushBack(ioqueue.Op{Kind: ioqueue.Load, DescID: uint32(d.prefix), FrameIdx: frameIdx, Offset: aligned})
	return guid, frameIdx, hit, nil
}

// pageOp is the miss path: resolve guid via PageMap,
// stamping a hit, or claim a free frame / evict a victim on miss.
func (e *Engine) pageOp(d *descriptor, offset int64) (pageid.GUID, int, bool, error) {
	guid := pageid.Make(d.prefix, offset)

	// An eviction write-back Store is pushed only after e.mu is
	// released: this deferred call runs after the Unlock deferred below.
	var store *ioqueue.Op
	defer func() {
		if store != nil {
			e.queue.PushBack(*store)
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.step++ }()

	if idx, ok := e.pageMap.Lookup(guid); ok {
		e.frames[idx].MetaWrite().SetLastUse(e.step).Unlock()
		e.policies.OnUpdate(d.policy, guid)
		return guid, idx, true, nil
	}

	if idx, ok := e.findFreeFrame(); ok {
		e.frames[idx].MetaWrite().SetUsed(true).SetReady(false).SetLastUse(e.step).SetGUID(guid).Unlock()
		if err := e.pageMap.Insert(guid, idx); err != nil {
			return guid, 0, false, err
		}
		e.policies.OnInsert(d.policy, guid)
		d.pages.Insert(guid)
		return guid, idx, false, nil
	}

	victim, victimKind, ok := e.policies.Evict(d.policy, e.step, e.lastUseOf)
	if !ok {
		return guid, 0, false, ErrCacheExhausted
	}

	victimIdx, ok := e.pageMap.Lookup(victim)
	if !ok {
		return guid, 0, false, ErrCacheExhausted
	}

	f := e.frames[victimIdx]
	mwg := f.MetaWrite()
	if !mwg.Ready() {
		// The policy's chosen victim is still the target of an
		// outstanding Load or Store. Evicting it now would hand its
		// frame to a second, unrelated page while the first I/O is
		// still in flight against the same bytes. Evict has already
		// removed it from its collection as a side effect of choosing
		// it; put it back (its page-GUID is still live in PageMap) and
		// surface exhaustion instead. The caller, or the next
		// checkCache pass, retries once it settles.
		mwg.Unlock()
		e.policies.OnInsert(victimKind, victim)
		return guid, 0, false, ErrCacheExhausted
	}
	if mwg.Dirty() {
		// Queued (on return, once e.mu is released) ahead of the Load
		// fetchPage pushes for the new page, so the worker always
		// writes back the victim's old bytes before the Load
		// overwrites them. The
		// Store's own data read does not wait on the frame's ready
		// flag (see frame.DataReadStale): by the time the worker gets
		// to it, ready already describes the new page, not the old one
		// whose contents are what it needs to write out.
		store = &ioqueue.Op{
			Kind:     ioqueue.Store,
			DescID:   uint32(victim.Prefix()),
			FrameIdx: victimIdx,
			Offset:   victim.FileOffset(),
		}
	}
	mwg.SetUsed(true).SetReady(false).SetLastUse(e.step).SetGUID(guid)
	mwg.Unlock()

	// victim is already out of its collection: Evict's own selection
	// removed it as part of choosing it.
	e.pageMap.Erase(victim)
	if owner, ok := e.descriptorByPrefix(victim.Prefix()); ok {
		owner.pages.Erase(victim)
	}

	if err := e.pageMap.Insert(guid, victimIdx); err != nil {
		return guid, 0, false, err
	}
	e.policies.OnInsert(d.policy, guid)
	d.pages.Insert(guid)

	return guid, victimIdx, false, nil
}

// findFreeFrame scans for an unused frame. A
// linear scan is adequate: the pool is small (default 16 frames) and
// this runs only on a miss, never on the hit path.
func (e *Engine) findFreeFrame() (int, bool) {
	for i, f := range e.frames {
		if !f.MetaRead().Used() {
			return i, true
		}
	}
	return 0, false
}

// lastUseOf resolves a page-GUID's last-use step for the PolicySet's
// age comparisons. Callers must already hold e.mu.
func (e *Engine) lastUseOf(guid pageid.GUID) uint64 {
	idx, ok := e.pageMap.Lookup(guid)
	if !ok {
		return 0
	}
	mrg := e.frames[idx].MetaRead()
	defer mrg.Unlock()
	return mrg.LastUse()
}

// descriptorByPrefix finds the descriptor owning prefix. Callers must
// already hold e.mu.
func (e *Engine) descriptorByPrefix(prefix uint64) (*descriptor, bool) {
	for i := range e.slots {
		if e.slots[i].free || e.slots[i].desc == nil {
			continue
		}
		if e.slots[i].desc.prefix == prefix {
			return e.slots[i].desc, true
		}
	}
	return nil, false
}

// checkCache pre-warms the pages spanning [d.offset, d.offset+length],
// stopping at the source's last known size (pages past EOF are not
// prefetched), subject to the read-ahead rate limiter so a large
// prefetch window cannot flood the OpQueue in one burst. It also never
// fetches more distinct pages than the pool has frames: prefetching
// is speculative, so it must never be the thing that forces a
// not-yet-ready frame to be evicted out from under its own
// outstanding Load.
func (e *Engine) checkCache(d *descriptor, length int) {
	start := pageid.Align(d.offset)
	end := pageid.Align(d.offset+int64(length)) + PageSize
	if end > d.totalSize {
		end = d.totalSize
	}

	fetched := 0
	for off := start; off < end && fetched < e.opts.CacheSize; off += PageSize {
		guid := pageid.Make(d.prefix, off)
		e.mu.Lock()
		_, hit := e.pageMap.Lookup(guid)
		e.mu.Unlock()
		if hit {
			continue
		}
		if !e.readAhead.Allow() {
			break
		}
		fetched++
		if _, _, _, err := e.fetchPage(d, off); err != nil {
			e.log.WithError(err).WithField("path", d.path).Debug("read-ahead fetch failed")
			break
		}
	}
}
