package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"overflowgraph/internal/testutil"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	m := NewMemoryStore()

	got, err := m.Get(1)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, m.Put(1, []byte("hello")))
	got, err = m.Get(1)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
	require.Equal(t, 1, m.Len())

	require.NoError(t, m.Delete(1))
	got, err = m.Get(1)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryStoreGetReturnsACopy(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.Put(1, []byte("hello")))

	got, err := m.Get(1)
	require.NoError(t, err)
	got[0] = 'H'

	got2, err := m.Get(1)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got2)
}

func TestFileStorePutGetDelete(t *testing.T) {
	sb, err := testutil.NewSandbox()
	require.NoError(t, err)
	defer sb.Cleanup()

	fs, err := NewFileStore(sb.Root)
	require.NoError(t, err)

	got, err := fs.Get(42)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, fs.Put(42, []byte("payload")))
	got, err = fs.Get(42)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)

	require.NoError(t, fs.Delete(42))
	got, err = fs.Get(42)
	require.NoError(t, err)
	require.Nil(t, got)
}
