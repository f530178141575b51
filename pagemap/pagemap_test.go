package pagemap

import (
	"testing"

	"github.com/coldstore/pagecache/pageid"
	"github.com/stretchr/testify/require"
)

func TestInsertLookupErase(t *testing.T) {
	m := New()
	g := pageid.Make(1, 0)

	_, ok := m.Lookup(g)
	require.False(t, ok)

	require.NoError(t, m.Insert(g, 3))
	idx, ok := m.Lookup(g)
	require.True(t, ok)
	require.Equal(t, 3, idx)
	require.Equal(t, 1, m.Len())

	err := m.Insert(g, 4)
	require.Error(t, err)
	require.IsType(t, ErrAlreadyMapped(0), err)

	m.Erase(g)
	_, ok = m.Lookup(g)
	require.False(t, ok)
	require.Equal(t, 0, m.Len())
}
