package core

import "fmt"

// Tag identifies the primitive type of a property value on the wire.
// The set is closed: codec.encode rejects anything outside it.
type Tag int8

const (
	TagNull Tag = iota
	TagBool
	TagString
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagCharacter
	TagNodeRef
	TagList
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "NULL"
	case TagBool:
		return "BOOL"
	case TagString:
		return "STRING"
	case TagByte:
		return "BYTE"
	case TagShort:
		return "SHORT"
	case TagInt:
		return "INT"
	case TagLong:
		return "LONG"
	case TagFloat:
		return "FLOAT"
	case TagDouble:
		return "DOUBLE"
	case TagCharacter:
		return "CHARACTER"
	case TagNodeRef:
		return "NODE_REF"
	case TagList:
		return "LIST"
	default:
		return fmt.Sprintf("Tag(%d)", int8(t))
	}
}

// NodeId is a 64-bit identifier, unique within a graph instance and
// immutable for the life of the node.
type NodeId uint64

// Value is a tagged property value as carried on the wire. Payload holds
// the Go-native representation for the tag:
//
//	TagNull      nil
//	TagBool      bool
//	TagString    string
//	TagByte      int8
//	TagShort     int16
//	TagInt       int32
//	TagLong      int64
//	TagFloat     float32
//	TagDouble    float64
//	TagCharacter rune (int32)
//	TagNodeRef   NodeId, or *Handle when decoded with a resolver that
//	             found a registered handle for the id
//	TagList      []Value
type Value struct {
	Tag     Tag
	Payload any
}

// NodeRef returns the NodeId carried by a TagNodeRef value, whether or
// not the codec resolved it to a live Handle on decode. It panics if v is
// not a NODE_REF — callers are expected to have checked v.Tag first,
// matching how the codec itself dispatches on tag before touching
// Payload.
func (v Value) NodeRef() NodeId {
	switch p := v.Payload.(type) {
	case NodeId:
		return p
	case *Handle:
		return p.Id
	default:
		panic(fmt.Sprintf("core: NodeRef on payload of type %T", v.Payload))
	}
}

// RefHandle returns the Handle carried by a resolved TagNodeRef value, or
// nil if the value was decoded without a resolver (or is not a NODE_REF).
func (v Value) RefHandle() *Handle {
	h, _ := v.Payload.(*Handle)
	return h
}

// List returns the inner values of a TagList value.
func (v Value) List() []Value {
	return v.Payload.([]Value)
}

// flattenProperty expands a single decoded (key, Value) pair into the
// node's user-facing property map per spec.md §4.1: a LIST value becomes
// repeated entries under the same key rather than a nested slice of
// Values. Scalars become single-entry. Nested lists never occur in the
// canonical encoding (Encode rejects a list inside a list with
// ErrUnencodableValue), so this performs exactly one level of expansion.
func flattenProperty(props map[string][]any, key string, v Value) {
	if v.Tag == TagList {
		for _, inner := range v.List() {
			props[key] = append(props[key], inner.Payload)
		}
		return
	}
	props[key] = append(props[key], v.Payload)
}
