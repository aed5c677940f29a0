package core

import (
	"fmt"
	"sync"

	"overflowgraph/pkg/utils"
)

// PersistenceReader is the read side of the Persistence Port that a
// Handle needs to rehydrate itself. It is satisfied by PersistencePort.
type PersistenceReader interface {
	Get(id NodeId) ([]byte, error)
}

// Handle is the stable, lightweight identity of a node: its id and
// label survive eviction even when the body does not. Handle mediates
// lazy load, dirty tracking, and the clear operation the eviction
// scheduler performs on it.
//
// Invariants (spec.md §3): body == nil iff the persisted bytes at
// StorageKey are authoritative; body != nil iff the in-memory body is
// authoritative. A Handle is registered with exactly one HandleTable at a
// time, added on materialization and removed on clear.
type Handle struct {
	Id         NodeId
	Label      string
	StorageKey NodeId

	mu    sync.RWMutex
	body  *NodeBody
	dirty bool

	codec   *Codec
	port    PersistenceReader
	table   *HandleTable
	resolve func(NodeId) *Handle
}

// NewHandle constructs a resident handle around an already-materialized
// body and registers it with table. Used by the allocator (out of scope)
// when a node is first created.
func NewHandle(body *NodeBody, codec *Codec, port PersistenceReader, table *HandleTable, resolve func(NodeId) *Handle) *Handle {
	h := &Handle{
		Id:         body.Id,
		Label:      body.Label,
		StorageKey: body.Id,
		body:       body,
		codec:      codec,
		port:       port,
		table:      table,
		resolve:    resolve,
	}
	table.Register(h)
	return h
}

// newEvictedHandle constructs a Handle whose body is absent, for startup
// rebuild via Codec.DecodeRef. It is not registered with any table until
// first accessed.
func newEvictedHandle(id NodeId, label string, codec *Codec, port PersistenceReader, table *HandleTable, resolve func(NodeId) *Handle) *Handle {
	return &Handle{
		Id:         id,
		Label:      label,
		StorageKey: id,
		codec:      codec,
		port:       port,
		table:      table,
		resolve:    resolve,
	}
}

// GetOrLoad returns the resident body, rehydrating it from the
// Persistence Port if necessary. A rehydrated handle is re-registered
// with its HandleTable, restoring eviction eligibility.
func (h *Handle) GetOrLoad() (*NodeBody, error) {
	h.mu.RLock()
	if h.body != nil {
		b := h.body
		h.mu.RUnlock()
		return b, nil
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.body != nil {
		return h.body, nil
	}

	raw, err := h.port.Get(h.StorageKey)
	if err != nil {
		return nil, utils.Wrap(fmt.Errorf("%w: %w", ErrLoadFailed, err), "handle get-or-load")
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: no persisted bytes for node %d", ErrLoadFailed, h.StorageKey)
	}
	body, err := h.codec.Decode(raw, h.resolve)
	if err != nil {
		return nil, utils.Wrap(fmt.Errorf("%w: %w", ErrLoadFailed, err), "handle get-or-load")
	}

	h.body = body
	h.dirty = false
	h.table.Register(h)
	return body, nil
}

// MarkDirty sets the dirty bit. Idempotent; a no-op if the body is
// already absent (there is nothing to mark dirty).
func (h *Handle) MarkDirty() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.body != nil {
		h.dirty = true
	}
}

// IsSet reports whether the body is currently resident. It is racy by
// design — spec.md §4.5 uses it only for worker skip-logic, where a
// stale read just means the worker redoes (or skips) a tiny amount of
// work.
func (h *Handle) IsSet() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.body != nil
}

// isDirty reports the dirty bit under lock. Unexported: only the
// scheduler's worker body needs it, and only while it already holds the
// handle exclusively for clearing (see evictOne).
func (h *Handle) isDirty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dirty
}

// bodySnapshot returns the body pointer for encoding without detaching
// it. Safe to call only from the worker that currently owns the handle
// for clearing (see evictOne) — no other writer touches body concurrently
// with that window per the single-writer invariant.
func (h *Handle) bodySnapshot() *NodeBody {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.body
}

// clear detaches the body. Called by the scheduler only, after the body
// has been durably written (or the write was skipped under dirty-only
// mode because it was already clean).
func (h *Handle) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.body = nil
	h.dirty = false
}
