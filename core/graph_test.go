package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraphNewNodeRegistersAndResolves(t *testing.T) {
	g := NewGraph(NewMemoryStore(), 0, SchedulerConfig{BatchSize: 10, WorkerCount: 2}, nil)

	a := g.NewNode(NewNodeBody(1, "A"))
	b := g.NewNode(NewNodeBody(2, "B"))
	a.body.Adjacency = append(a.body.Adjacency, Value{Tag: TagNodeRef, Payload: NodeId(2)})

	require.Equal(t, 2, g.TableSize())

	got, ok := g.Lookup(2)
	require.True(t, ok)
	require.Same(t, b, got)

	require.Same(t, b, g.resolve(2))
	require.Nil(t, g.resolve(999))
}

func TestGraphRebuildHandleDoesNotMaterializeBody(t *testing.T) {
	g := NewGraph(NewMemoryStore(), 0, SchedulerConfig{}, nil)
	body := NewNodeBody(5, "X")
	h := g.NewNode(body)
	h.MarkDirty()

	data, err := g.codec.Encode(body)
	require.NoError(t, err)

	g2 := NewGraph(NewMemoryStore(), 0, SchedulerConfig{}, nil)
	rebuilt, err := g2.RebuildHandle(data)
	require.NoError(t, err)
	require.False(t, rebuilt.IsSet())
	require.Equal(t, 0, g2.TableSize())

	got, ok := g2.Lookup(5)
	require.True(t, ok)
	require.Same(t, rebuilt, got)
}

func TestGraphClearAllAndApplyBackpressure(t *testing.T) {
	g := NewGraph(NewMemoryStore(), 0, SchedulerConfig{BatchSize: 4, WorkerCount: 2}, nil)
	for i := 1; i <= 9; i++ {
		h := g.NewNode(NewNodeBody(NodeId(i), "X"))
		h.MarkDirty()
	}
	require.Equal(t, 9, g.TableSize())

	require.NoError(t, g.ClearAll(context.Background()))
	require.Equal(t, 0, g.TableSize())

	require.NoError(t, g.ApplyBackpressure(context.Background()))
	g.Close()
}

func TestGraphEndToEndPersistAndReload(t *testing.T) {
	port := NewMemoryStore()
	g := NewGraph(port, 0, SchedulerConfig{BatchSize: 10, WorkerCount: 2}, nil)

	body := NewNodeBody(1, "Person")
	body.Properties["name"] = Value{Tag: TagString, Payload: "ada"}
	h := g.NewNode(body)
	h.MarkDirty()

	require.NoError(t, g.ClearAll(context.Background()))
	require.False(t, h.IsSet())

	loaded, err := h.GetOrLoad()
	require.NoError(t, err)
	require.Equal(t, "ada", loaded.Properties["name"].Payload)
	require.True(t, h.IsSet())
	require.Equal(t, 1, g.TableSize())
}
