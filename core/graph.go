package core

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Graph is the allocator-facing surface of spec.md §6: register(handle),
// apply_backpressure(), clear_all(), close(), plus decode_ref-driven
// startup rebuild. It owns the id→handle map used to resolve NODE_REF
// values: bodies built by callers carry NodeIds, and when a body is
// decoded the codec's resolver looks each NODE_REF up in this map and
// stores the registered *Handle in its place (keeping the NodeId when no
// handle is registered for it). A Handle owns its Body outright; a
// resolved NODE_REF only points at another Handle, never at its Body.
type Graph struct {
	mu      sync.RWMutex
	handles map[NodeId]*Handle

	table     *HandleTable
	port      PersistencePort
	codec     *Codec
	obs       *Observability
	scheduler *Scheduler
}

// NewGraph wires a Graph over a PersistencePort with the given codec
// collection-size limit (0 selects the default) and scheduler
// configuration. log may be nil for a default JSON logger.
func NewGraph(port PersistencePort, codecMaxCollectionSize int, cfg SchedulerConfig, log *logrus.Logger) *Graph {
	obs := NewObservability(log)
	codec := NewCodec(codecMaxCollectionSize)
	obs.BindCodec(codec)
	table := NewHandleTable()

	g := &Graph{
		handles: make(map[NodeId]*Handle),
		table:   table,
		port:    port,
		codec:   codec,
		obs:     obs,
	}
	g.scheduler = NewScheduler(cfg, table, port, codec, obs)
	return g
}

// Scheduler returns the underlying eviction scheduler, e.g. so an
// external heap monitor can be wired directly to
// Scheduler().OnHeapAboveThreshold.
func (g *Graph) Scheduler() *Scheduler {
	return g.scheduler
}

// resolve implements the codec's NodeId→Handle resolver, looked up
// through the graph's id map.
func (g *Graph) resolve(id NodeId) *Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.handles[id]
}

// NewNode materializes a fresh, resident handle around body and
// registers it — the allocator's entry point before calling Register
// separately is folded into one call here since, in this package, the
// allocator and the graph are the same caller.
func (g *Graph) NewNode(body *NodeBody) *Handle {
	h := &Handle{
		Id:         body.Id,
		Label:      body.Label,
		StorageKey: body.Id,
		body:       body,
		codec:      g.codec,
		port:       g.port,
		table:      g.table,
		resolve:    g.resolve,
	}
	g.Register(h)
	return h
}

// Register adds an already-constructed handle to the graph's id map and
// to the HandleTable, making it eligible for eviction. Registering a
// handle whose body is absent (e.g. one produced by RebuildHandle) is
// valid but inert until GetOrLoad re-registers it with a body attached.
func (g *Graph) Register(h *Handle) {
	g.mu.Lock()
	g.handles[h.Id] = h
	g.mu.Unlock()
	if h.IsSet() {
		g.table.Register(h)
	}
}

// RebuildHandle reads only the id/label prefix from data via
// Codec.DecodeRef and registers an evicted handle for it, without
// materializing the body. This is the startup path of spec.md §6: walk
// every persisted record, rebuild its handle, and defer loading bodies
// until something actually dereferences them.
func (g *Graph) RebuildHandle(data []byte) (*Handle, error) {
	id, label, err := g.codec.DecodeRef(data)
	if err != nil {
		return nil, err
	}
	h := newEvictedHandle(id, label, g.codec, g.port, g.table, g.resolve)
	g.mu.Lock()
	g.handles[id] = h
	g.mu.Unlock()
	return h, nil
}

// Lookup returns the handle registered for id, if any.
func (g *Graph) Lookup(id NodeId) (*Handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.handles[id]
	return h, ok
}

// ApplyBackpressure blocks the calling allocator until no eviction round
// is in flight, per spec.md §4.4.
func (g *Graph) ApplyBackpressure(ctx context.Context) error {
	return g.scheduler.ApplyBackpressure(ctx)
}

// ClearAll drains and evicts every resident handle, blocking until the
// HandleTable is empty. This is the exposed name for the scheduler's
// DrainAll, matching spec.md §6's allocator-facing clear_all().
func (g *Graph) ClearAll(ctx context.Context) error {
	return g.scheduler.DrainAll(ctx)
}

// Close shuts the scheduler down cooperatively: in-flight rounds finish,
// no new ones are accepted.
func (g *Graph) Close() {
	g.scheduler.Close()
}

// Observability exposes the counters/logger for a host process to
// surface or scrape.
func (g *Graph) Observability() *Observability {
	return g.obs
}

// CodecStats passes through Codec.Stats: total nodes decoded and
// cumulative decode wall-time, the advisory counters of spec.md §4.1.
func (g *Graph) CodecStats() (nodesDecoded uint64, decodeTime time.Duration) {
	return g.codec.Stats()
}

// TableSize returns the number of handles currently resident and
// eviction-eligible.
func (g *Graph) TableSize() int {
	return g.table.Size()
}
