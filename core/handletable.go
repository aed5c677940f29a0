package core

import (
	"container/list"
	"sync"
)

// HandleTable is a thread-safe FIFO registry of handles eligible for
// eviction. Concurrent Register and DrainUpTo both succeed; each
// registered handle is drained exactly once, in roughly insertion order
// (ties among concurrent Register calls are unspecified, per spec.md
// §4.2). A container/list ring is used rather than a third-party cache —
// see DESIGN.md for why hashicorp/golang-lru/v2 does not fit here: it
// implements LRU replacement, not an insertion-ordered batch-drain queue,
// and would silently change which handles a round picks.
type HandleTable struct {
	mu   sync.Mutex
	l    *list.List
	byID map[NodeId]*list.Element
}

// NewHandleTable returns an empty table.
func NewHandleTable() *HandleTable {
	return &HandleTable{
		l:    list.New(),
		byID: make(map[NodeId]*list.Element),
	}
}

// Register appends h to the tail of the table. Registering a handle that
// is already present is a no-op against the existing slot rather than a
// duplicate entry, matching spec.md §3's "registered exactly once per
// materialization" invariant.
func (t *HandleTable) Register(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[h.Id]; ok {
		return
	}
	t.byID[h.Id] = t.l.PushBack(h)
}

// DrainUpTo removes up to n handles from the head of the table in
// insertion order and returns them. Draining more than Size() returns
// everything and empties the table.
func (t *HandleTable) DrainUpTo(n int) []*Handle {
	if n <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Handle, 0, n)
	for i := 0; i < n; i++ {
		front := t.l.Front()
		if front == nil {
			break
		}
		t.l.Remove(front)
		h := front.Value.(*Handle)
		delete(t.byID, h.Id)
		out = append(out, h)
	}
	return out
}

// Size returns the current number of registered handles.
func (t *HandleTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.l.Len()
}

// IsEmpty reports whether the table currently holds no handles.
func (t *HandleTable) IsEmpty() bool {
	return t.Size() == 0
}
