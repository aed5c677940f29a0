package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleBody() *NodeBody {
	b := NewNodeBody(42, "X")
	b.Properties["a"] = Value{Tag: TagInt, Payload: int32(7)}
	b.Properties["b"] = Value{Tag: TagList, Payload: []Value{
		{Tag: TagString, Payload: "u"},
		{Tag: TagString, Payload: "v"},
	}}
	b.EdgeOffsets = []int32{0, 2}
	b.Adjacency = []Value{
		{Tag: TagNodeRef, Payload: NodeId(43)},
		{Tag: TagNodeRef, Payload: NodeId(44)},
	}
	return b
}

// Scenario 1 of spec.md §8: round-trip.
func TestCodecRoundTrip(t *testing.T) {
	c := NewCodec(0)
	body := sampleBody()

	data, err := c.Encode(body)
	require.NoError(t, err)

	decoded, err := c.Decode(data, nil)
	require.NoError(t, err)

	require.Equal(t, body.Id, decoded.Id)
	require.Equal(t, body.Label, decoded.Label)
	require.Equal(t, body.EdgeOffsets, decoded.EdgeOffsets)
	require.Equal(t, body.Adjacency, decoded.Adjacency)
	require.Equal(t, body.Properties, decoded.Properties)
}

// Invariant 5: decode_ref yields exactly (id, label).
func TestCodecDecodeRef(t *testing.T) {
	c := NewCodec(0)
	body := sampleBody()

	data, err := c.Encode(body)
	require.NoError(t, err)

	id, label, err := c.DecodeRef(data)
	require.NoError(t, err)
	require.Equal(t, body.Id, id)
	require.Equal(t, body.Label, label)
}

func TestCodecFlattenedProperties(t *testing.T) {
	body := sampleBody()
	flat := body.FlattenedProperties()
	require.Equal(t, []any{int32(7)}, flat["a"])
	require.Equal(t, []any{"u", "v"}, flat["b"])
}

func TestCodecDecodeRejectsShortRead(t *testing.T) {
	c := NewCodec(0)
	_, err := c.Decode([]byte{0x01}, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCorruptFormat))
}

func TestCodecDecodeRejectsCollectionSizeOverLimit(t *testing.T) {
	c := NewCodec(1) // only one property/edge/adjacency entry allowed
	body := sampleBody()
	data, err := c.Encode(body)
	require.NoError(t, err)

	_, err = c.Decode(data, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCorruptFormat))
}

func TestCodecEncodeRejectsNestedList(t *testing.T) {
	c := NewCodec(0)
	body := NewNodeBody(1, "X")
	body.Properties["nested"] = Value{Tag: TagList, Payload: []Value{
		{Tag: TagList, Payload: []Value{{Tag: TagInt, Payload: int32(1)}}},
	}}
	_, err := c.Encode(body)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnencodableValue))
}

func TestCodecDecodeResolvesNodeRef(t *testing.T) {
	c := NewCodec(0)
	body := sampleBody()
	data, err := c.Encode(body)
	require.NoError(t, err)

	target := &Handle{Id: 43, Label: "Y"}
	resolve := func(id NodeId) *Handle {
		if id == 43 {
			return target
		}
		return nil
	}

	decoded, err := c.Decode(data, resolve)
	require.NoError(t, err)
	require.Same(t, target, decoded.Adjacency[0].RefHandle())
	require.Equal(t, NodeId(44), decoded.Adjacency[1].NodeRef())
}

func TestCodecStatsAdvance(t *testing.T) {
	c := NewCodec(0)
	body := sampleBody()
	data, err := c.Encode(body)
	require.NoError(t, err)

	before, _ := c.Stats()
	_, err = c.Decode(data, nil)
	require.NoError(t, err)
	after, decodeTime := c.Stats()

	require.Equal(t, before+1, after)
	require.GreaterOrEqual(t, decodeTime.Nanoseconds(), int64(0))
}
