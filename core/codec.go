package core

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// defaultMaxCollectionSize bounds the properties map and the two
// adjacency arrays during decode; a size beyond this is treated as
// corruption rather than an attempt to allocate an unbounded slice.
const defaultMaxCollectionSize = 1 << 20

// Codec encodes and decodes NodeBody values to/from the wire layout of
// spec.md §4.1. It is safe for concurrent use: the only mutable state is
// a pair of atomic counters used for the advisory observability surface.
type Codec struct {
	maxCollectionSize int

	nodesDecoded uint64 // atomic
	decodeNanos  uint64 // atomic
}

// NewCodec returns a Codec whose decode rejects a properties map or
// adjacency array larger than maxCollectionSize. A limit of 0 (or less)
// selects defaultMaxCollectionSize.
func NewCodec(maxCollectionSize int) *Codec {
	if maxCollectionSize <= 0 {
		maxCollectionSize = defaultMaxCollectionSize
	}
	return &Codec{maxCollectionSize: maxCollectionSize}
}

// Stats returns the advisory counters from §4.1's performance note:
// total nodes decoded and cumulative decode wall-time.
func (c *Codec) Stats() (nodesDecoded uint64, decodeTime time.Duration) {
	return atomic.LoadUint64(&c.nodesDecoded), time.Duration(atomic.LoadUint64(&c.decodeNanos))
}

// Encode serialises a body deterministically modulo map iteration order.
func (c *Codec) Encode(body *NodeBody) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.EncodeUint64(uint64(body.Id)); err != nil {
		return nil, fmt.Errorf("encode id: %w", err)
	}
	if err := enc.EncodeString(body.Label); err != nil {
		return nil, fmt.Errorf("encode label: %w", err)
	}

	if err := enc.EncodeMapLen(len(body.Properties)); err != nil {
		return nil, fmt.Errorf("encode properties header: %w", err)
	}
	for k, v := range body.Properties {
		if err := enc.EncodeString(k); err != nil {
			return nil, fmt.Errorf("encode property key %q: %w", k, err)
		}
		if err := encodeTaggedValue(enc, v); err != nil {
			return nil, fmt.Errorf("encode property %q: %w", k, err)
		}
	}

	if err := enc.EncodeArrayLen(len(body.EdgeOffsets)); err != nil {
		return nil, fmt.Errorf("encode edgeOffsets header: %w", err)
	}
	for _, off := range body.EdgeOffsets {
		if err := enc.EncodeInt32(off); err != nil {
			return nil, fmt.Errorf("encode edgeOffset: %w", err)
		}
	}

	if err := enc.EncodeArrayLen(len(body.Adjacency)); err != nil {
		return nil, fmt.Errorf("encode adjacency header: %w", err)
	}
	for i, v := range body.Adjacency {
		if err := encodeTaggedValue(enc, v); err != nil {
			return nil, fmt.Errorf("encode adjacency[%d]: %w", i, err)
		}
	}

	zap.L().Sugar().Debugw("codec encode", "id", body.Id, "label", body.Label, "bytes", buf.Len())
	return buf.Bytes(), nil
}

// Decode reads a full body from bytes. resolve, if non-nil, is consulted
// to turn NODE_REF payloads into live handles; when nil, NODE_REF values
// decode back to their wire NodeId, which is what makes Encode∘Decode an
// identity (spec.md §8 invariant 4) without requiring a graph.
func (c *Codec) Decode(data []byte, resolve func(NodeId) *Handle) (body *NodeBody, err error) {
	start := time.Now()
	defer func() {
		atomic.AddUint64(&c.decodeNanos, uint64(time.Since(start)))
		if err == nil {
			atomic.AddUint64(&c.nodesDecoded, 1)
		}
	}()

	dec := msgpack.NewDecoder(bytes.NewReader(data))

	id, label, derr := c.decodeRefFrame(dec)
	if derr != nil {
		return nil, derr
	}
	body = NewNodeBody(id, label)

	n, derr := dec.DecodeMapLen()
	if derr != nil {
		return nil, c.corrupt("properties header", derr)
	}
	if n < 0 || n > c.maxCollectionSize {
		return nil, c.corrupt("properties header", fmt.Errorf("size %d exceeds limit", n))
	}
	for i := 0; i < n; i++ {
		key, kerr := dec.DecodeString()
		if kerr != nil {
			return nil, c.corrupt("property key", kerr)
		}
		v, verr := decodeTaggedValue(dec, resolve)
		if verr != nil {
			return nil, c.corrupt(fmt.Sprintf("property %q", key), verr)
		}
		body.Properties[key] = v
	}

	e, derr := dec.DecodeArrayLen()
	if derr != nil {
		return nil, c.corrupt("edgeOffsets header", derr)
	}
	if e < 0 || e > c.maxCollectionSize {
		return nil, c.corrupt("edgeOffsets header", fmt.Errorf("size %d exceeds limit", e))
	}
	body.EdgeOffsets = make([]int32, e)
	for i := 0; i < e; i++ {
		off, oerr := dec.DecodeInt32()
		if oerr != nil {
			return nil, c.corrupt("edgeOffset", oerr)
		}
		body.EdgeOffsets[i] = off
	}

	a, derr := dec.DecodeArrayLen()
	if derr != nil {
		return nil, c.corrupt("adjacency header", derr)
	}
	if a < 0 || a > c.maxCollectionSize {
		return nil, c.corrupt("adjacency header", fmt.Errorf("size %d exceeds limit", a))
	}
	body.Adjacency = make([]Value, a)
	for i := 0; i < a; i++ {
		v, verr := decodeTaggedValue(dec, resolve)
		if verr != nil {
			return nil, c.corrupt(fmt.Sprintf("adjacency[%d]", i), verr)
		}
		body.Adjacency[i] = v
	}

	return body, nil
}

// DecodeRef reads only the id/label prefix, used during startup to
// rebuild handles without materializing bodies.
func (c *Codec) DecodeRef(data []byte) (id NodeId, label string, err error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	return c.decodeRefFrame(dec)
}

func (c *Codec) decodeRefFrame(dec *msgpack.Decoder) (NodeId, string, error) {
	id, err := dec.DecodeUint64()
	if err != nil {
		return 0, "", c.corrupt("id", err)
	}
	label, err := dec.DecodeString()
	if err != nil {
		return 0, "", c.corrupt("label", err)
	}
	return NodeId(id), label, nil
}

func (c *Codec) corrupt(where string, cause error) error {
	return fmt.Errorf("%s: %w: %v", where, ErrCorruptFormat, cause)
}

// encodeTaggedValue writes a [tag int8, payload] pair.
func encodeTaggedValue(enc *msgpack.Encoder, v Value) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeInt8(int8(v.Tag)); err != nil {
		return err
	}
	switch v.Tag {
	case TagNull:
		return enc.EncodeNil()
	case TagBool:
		return enc.EncodeBool(v.Payload.(bool))
	case TagString:
		return enc.EncodeString(v.Payload.(string))
	case TagByte:
		return enc.EncodeInt8(v.Payload.(int8))
	case TagShort:
		return enc.EncodeInt16(v.Payload.(int16))
	case TagInt:
		return enc.EncodeInt32(v.Payload.(int32))
	case TagLong:
		return enc.EncodeInt64(v.Payload.(int64))
	case TagFloat:
		return enc.EncodeFloat32(v.Payload.(float32))
	case TagDouble:
		return enc.EncodeFloat64(v.Payload.(float64))
	case TagCharacter:
		return enc.EncodeInt32(v.Payload.(int32))
	case TagNodeRef:
		return enc.EncodeUint64(uint64(v.Payload.(NodeId)))
	case TagList:
		inner := v.List()
		if err := enc.EncodeArrayLen(len(inner)); err != nil {
			return err
		}
		for i, iv := range inner {
			if iv.Tag == TagList {
				return fmt.Errorf("%w: nested list at index %d", ErrUnencodableValue, i)
			}
			if err := encodeTaggedValue(enc, iv); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: tag %s", ErrUnencodableValue, v.Tag)
	}
}

// decodeTaggedValue reads a [tag int8, payload] pair back into a Value.
func decodeTaggedValue(dec *msgpack.Decoder, resolve func(NodeId) *Handle) (Value, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return Value{}, err
	}
	if n != 2 {
		return Value{}, fmt.Errorf("tagged-value frame length %d, want 2", n)
	}
	rawTag, err := dec.DecodeInt8()
	if err != nil {
		return Value{}, err
	}
	tag := Tag(rawTag)

	switch tag {
	case TagNull:
		if err := dec.DecodeNil(); err != nil {
			return Value{}, err
		}
		return Value{Tag: tag, Payload: nil}, nil
	case TagBool:
		b, err := dec.DecodeBool()
		return Value{Tag: tag, Payload: b}, err
	case TagString:
		s, err := dec.DecodeString()
		return Value{Tag: tag, Payload: s}, err
	case TagByte:
		b, err := dec.DecodeInt8()
		return Value{Tag: tag, Payload: b}, err
	case TagShort:
		s, err := dec.DecodeInt16()
		return Value{Tag: tag, Payload: s}, err
	case TagInt:
		i, err := dec.DecodeInt32()
		return Value{Tag: tag, Payload: i}, err
	case TagLong:
		l, err := dec.DecodeInt64()
		return Value{Tag: tag, Payload: l}, err
	case TagFloat:
		f, err := dec.DecodeFloat32()
		return Value{Tag: tag, Payload: f}, err
	case TagDouble:
		d, err := dec.DecodeFloat64()
		return Value{Tag: tag, Payload: d}, err
	case TagCharacter:
		r, err := dec.DecodeInt32()
		return Value{Tag: tag, Payload: r}, err
	case TagNodeRef:
		raw, err := dec.DecodeUint64()
		if err != nil {
			return Value{}, err
		}
		id := NodeId(raw)
		if resolve != nil {
			if h := resolve(id); h != nil {
				return Value{Tag: tag, Payload: h}, nil
			}
		}
		return Value{Tag: tag, Payload: id}, nil
	case TagList:
		ln, err := dec.DecodeArrayLen()
		if err != nil {
			return Value{}, err
		}
		if ln < 0 {
			return Value{}, fmt.Errorf("nil LIST payload")
		}
		inner := make([]Value, ln)
		for i := 0; i < ln; i++ {
			iv, err := decodeTaggedValue(dec, resolve)
			if err != nil {
				return Value{}, err
			}
			inner[i] = iv
		}
		return Value{Tag: tag, Payload: inner}, nil
	default:
		return Value{}, fmt.Errorf("unknown tag %d", rawTag)
	}
}
