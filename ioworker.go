package pagecache

import (
	"context"

	"github.com/coldstore/pagecache/ioqueue"
)

// runWorker is the engine's single background IoWorker: it
// drains the OpQueue and performs the blocking source I/O each op
// implies, entirely outside the engine mutex -- Load and Store only
// ever touch a frame's own locks and the owning descriptor.
func (e *Engine) runWorker() {
	defer e.workerWG.Done()

	ctx := context.Background()
	for {
		op, err := e.queue.Pop(ctx)
		if err != nil {
			return
		}

		switch op.Kind {
		case ioqueue.Load:
			e.workerLoad(op)
		case ioqueue.Store:
			e.workerStore(op)
		case ioqueue.Flush:
			e.workerFlush(op.DescID)
			close(op.Done)
		case ioqueue.FlushClose:
			e.workerFlush(op.DescID)
			e.workerCloseSource(op.DescID)
			close(op.Done)
		case ioqueue.Quit:
			return
		}
	}
}

func (e *Engine) descriptorForOp(descID uint32) (*descriptor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.descriptorByPrefix(uint64(descID))
}

// workerLoad implements Load(desc, frame, offset): read one page from
// the source into the frame and flip it ready.
func (e *Engine) workerLoad(op ioqueue.Op) {
	d, ok := e.descriptorForOp(op.DescID)
	if !ok {
		return
	}
	d.waitValid()

	f := e.frames[op.FrameIdx]
	dwg := f.DataWrite(true)
	n, err := d.source.ReadAt(dwg.Bytes(), op.Offset)
	dwg.Unlock()

	if err != nil && n == 0 {
		// A Load failure is fatal to this request: readers
		// see used_size = 0 and observe a short read rather than
		// blocking forever.
		f.MetaWrite().SetUsedSize(0).SetReady(true).Unlock()
		e.log.WithError(wrapSourceErr(OpRead, d.path, err)).Warn("page load failed")
		return
	}

	f.MetaWrite().SetUsedSize(int32(n)).SetReady(true).Unlock()
}

// workerStore implements Store(desc, frame, offset): write a dirty
// frame back to the source and clear its dirty bit on success.
func (e *Engine) workerStore(op ioqueue.Op) {
	d, ok := e.descriptorForOp(op.DescID)
	if !ok {
		return
	}
	d.waitValid()

	f := e.frames[op.FrameIdx]
	drg := f.DataReadStale()
	mrg := f.MetaRead()
	usedSize := mrg.UsedSize()
	mrg.Unlock()

	err := d.source.WriteAt(drg.Bytes()[:usedSize], op.Offset)
	drg.Unlock()

	if err != nil {
		d.setLastErr(wrapSourceErr(OpWrite, d.path, err))
		e.log.WithError(err).WithField("path", d.path).Warn("page store failed")
		return
	}

	f.MetaWrite().SetDirty(false).Unlock()
}

// workerFlush implements Flush(desc): Store every dirty page
// currently in desc's page set.
func (e *Engine) workerFlush(descID uint32) {
	d, ok := e.descriptorForOp(descID)
	if !ok {
		return
	}

	e.mu.Lock()
	pages := d.pages.Snapshot()
	e.mu.Unlock()

	for _, guid := range pages {
		e.mu.Lock()
		idx, ok := e.pageMap.Lookup(guid)
		e.mu.Unlock()
		if !ok {
			continue
		}

		f := e.frames[idx]
		mrg := f.MetaRead()
		dirty := mrg.Dirty()
		mrg.Unlock()
		if !dirty {
			continue
		}

		e.workerStore(ioqueue.Op{DescID: descID, FrameIdx: idx, Offset: guid.FileOffset()})
	}
}

// workerCloseSource implements the close half of FlushClose: close
// the source and mark the descriptor invalid.
func (e *Engine) workerCloseSource(descID uint32) {
	d, ok := e.descriptorForOp(descID)
	if !ok {
		return
	}

	if err := d.source.Close(); err != nil {
		d.setLastErr(wrapSourceErr(OpClose, d.path, err))
		e.log.WithError(err).WithField("path", d.path).Warn("source close failed")
	}
	d.setValid(false)
}
