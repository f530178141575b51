package frame

import (
	"testing"
	"time"

	"github.com/coldstore/pagecache/pageid"
	"github.com/stretchr/testify/require"
)

func TestMetaGettersSetters(t *testing.T) {
	f := New()

	w := f.MetaWrite()
	w.SetUsed(true).SetUsedSize(42).SetLastUse(7).SetGUID(pageid.Make(3, 4096))
	w.Unlock()

	r := f.MetaRead()
	require.True(t, r.Used())
	require.False(t, r.Ready())
	require.False(t, r.Dirty())
	require.EqualValues(t, 42, r.UsedSize())
	require.EqualValues(t, 7, r.LastUse())
	require.Equal(t, pageid.Make(3, 4096), r.GUID())
	r.Unlock()
}

func TestDataReadWaitsForReady(t *testing.T) {
	f := New()

	done := make(chan struct{})
	go func() {
		g := f.DataRead()
		defer g.Unlock()
		require.Len(t, g.Bytes(), pageid.PageSize)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("DataRead returned before frame became ready")
	case <-time.After(20 * time.Millisecond):
	}

	w := f.MetaWrite()
	w.SetReady(true)
	w.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DataRead never woke up after SetReady(true)")
	}
}

func TestDataWriteWaitsForClean(t *testing.T) {
	f := New()

	w := f.MetaWrite()
	w.SetDirty(true)
	w.Unlock()

	done := make(chan struct{})
	go func() {
		g := f.DataWrite(true)
		defer g.Unlock()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("DataWrite(wait=true) returned before frame became clean")
	case <-time.After(20 * time.Millisecond):
	}

	w = f.MetaWrite()
	w.SetDirty(false)
	w.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DataWrite never woke up after SetDirty(false)")
	}
}

func TestDataWriteNoWaitIgnoresDirty(t *testing.T) {
	f := New()

	w := f.MetaWrite()
	w.SetDirty(true)
	w.Unlock()

	done := make(chan struct{})
	go func() {
		g := f.DataWrite(false)
		g.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DataWrite(wait=false) should not block on dirty")
	}
}
