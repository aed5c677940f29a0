package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario 4 of spec.md §8: reload.
func TestHandleGetOrLoadReloadsFromPort(t *testing.T) {
	codec := NewCodec(0)
	port := NewMemoryStore()
	table := NewHandleTable()

	body := NewNodeBody(7, "X")
	body.Properties["k"] = Value{Tag: TagInt, Payload: int32(1)}
	data, err := codec.Encode(body)
	require.NoError(t, err)
	require.NoError(t, port.Put(7, data))

	h := newEvictedHandle(7, "X", codec, port, table, nil)
	require.False(t, h.IsSet())
	require.True(t, table.IsEmpty())

	loaded, err := h.GetOrLoad()
	require.NoError(t, err)
	require.Equal(t, NodeId(7), loaded.Id)
	require.True(t, h.IsSet())
	require.Equal(t, 1, table.Size())
}

func TestHandleGetOrLoadFailsOnMissingKey(t *testing.T) {
	codec := NewCodec(0)
	port := NewMemoryStore()
	table := NewHandleTable()

	h := newEvictedHandle(99, "X", codec, port, table, nil)
	_, err := h.GetOrLoad()
	require.ErrorIs(t, err, ErrLoadFailed)
}

func TestHandleGetOrLoadFailsOnCorruptBytes(t *testing.T) {
	codec := NewCodec(0)
	port := NewMemoryStore()
	table := NewHandleTable()
	require.NoError(t, port.Put(1, []byte{0xff, 0xff, 0xff}))

	h := newEvictedHandle(1, "X", codec, port, table, nil)
	_, err := h.GetOrLoad()
	require.ErrorIs(t, err, ErrLoadFailed)
}

func TestHandleMarkDirtyIsIdempotentAndNoopWhenEvicted(t *testing.T) {
	h := &Handle{Id: 1, body: NewNodeBody(1, "X")}
	h.MarkDirty()
	h.MarkDirty()
	require.True(t, h.isDirty())

	h.clear()
	h.MarkDirty() // no body: no-op
	require.False(t, h.isDirty())
}

func TestHandleClearDetachesBody(t *testing.T) {
	h := &Handle{Id: 1, body: NewNodeBody(1, "X"), dirty: true}
	h.clear()
	require.False(t, h.IsSet())
	require.False(t, h.isDirty())
}
