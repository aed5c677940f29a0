package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"
)

// defaultBatchSize and the rest of SchedulerConfig's zero values mirror
// the defaults table in spec.md §4.4.
const defaultBatchSize = 100000

// SchedulerConfig tunes the eviction pipeline. The zero value is not
// usable directly — call NewScheduler, which fills in the documented
// defaults for any field left at its zero value.
type SchedulerConfig struct {
	// BatchSize caps how many handles a single pressure notification
	// drains. Default 100000.
	BatchSize int
	// WorkerCount sizes the bounded pool that consumes a round's
	// chunks. Default runtime.NumCPU().
	WorkerCount int
	// MaxBackpressureWait caps how long ApplyBackpressure blocks before
	// returning ErrTimedOut. Zero means unbounded (bounded only by the
	// caller's own context).
	MaxBackpressureWait time.Duration
	// DirtyOnly selects the dirty-only write mode (skip the write when
	// a handle's dirty bit is false) instead of the conservative default
	// of always writing before clearing. See spec.md §9's closing
	// paragraph: conservative is the safe default because upstream
	// callers cannot always be trusted to mark dirty correctly.
	DirtyOnly bool
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = runtime.NumCPU()
	}
	return c
}

// Scheduler implements the eviction pipeline of spec.md §4.4: it
// consumes heap-pressure notifications, batches handles out of a
// HandleTable, dispatches clearing work across a bounded worker pool
// (github.com/sourcegraph/conc/pool), and arbitrates backpressure for
// allocators via a golang.org/x/sync/semaphore.Weighted(1) gate standing
// in for the spec's "P" round counter.
//
// Only one round is ever DISPATCHED at a time: OnHeapAboveThreshold's
// TryAcquire either wins the gate and starts a round, or loses it and
// drops the notification (logged), exactly matching the "P > 0 ⇒ drop"
// branch of the protocol. ApplyBackpressure acquires-then-immediately-
// releases the same gate purely to observe it becoming free, which is
// the idiomatic way to turn a weighted semaphore into a wait-for-signal
// primitive without holding a real permit.
type Scheduler struct {
	cfg   SchedulerConfig
	table *HandleTable
	port  PersistencePort
	codec *Codec
	obs   *Observability

	gate      *semaphore.Weighted
	pInFlight atomic.Int32
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// NewScheduler wires a Scheduler over table/port/codec, applying
// SchedulerConfig defaults for any zero-valued field.
func NewScheduler(cfg SchedulerConfig, table *HandleTable, port PersistencePort, codec *Codec, obs *Observability) *Scheduler {
	if obs == nil {
		obs = NewObservability(nil)
	}
	return &Scheduler{
		cfg:   cfg.withDefaults(),
		table: table,
		port:  port,
		codec: codec,
		obs:   obs,
		gate:  semaphore.NewWeighted(1),
	}
}

// PendingRounds returns the current value of the spec's P counter: 0 or
// 1 in this implementation, since only one round is ever dispatched at a
// time.
func (s *Scheduler) PendingRounds() int32 {
	return s.pInFlight.Load()
}

// OnHeapAboveThreshold is the single entry point an external heap
// monitor calls. Per spec.md §4.4: if a round is already dispatched, the
// notification is dropped (logged); if the table is empty, it is a
// no-op; otherwise a new round is dispatched asynchronously.
func (s *Scheduler) OnHeapAboveThreshold() error {
	if s.closed.Load() {
		return ErrShutdown
	}
	if !s.gate.TryAcquire(1) {
		s.obs.Log.Debug("pressure notification dropped: a round is already dispatched")
		return nil
	}
	if s.table.IsEmpty() {
		s.gate.Release(1)
		return nil
	}

	s.pInFlight.Store(1)
	s.wg.Add(1)
	go func() {
		defer func() {
			s.pInFlight.Store(0)
			s.gate.Release(1)
			s.wg.Done()
		}()
		s.runRound(s.cfg.BatchSize)
	}()
	return nil
}

// DrainAll blocks until the handle table is empty, repeatedly running
// full-table rounds. Idempotent: an already-empty table returns
// immediately. Safe against concurrent OnHeapAboveThreshold calls, which
// simply find the gate held and drop their notification.
func (s *Scheduler) DrainAll(ctx context.Context) error {
	if s.closed.Load() {
		return ErrShutdown
	}
	for !s.table.IsEmpty() {
		if err := s.gate.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		s.pInFlight.Store(1)
		s.runRound(s.table.Size())
		s.pInFlight.Store(0)
		s.gate.Release(1)
	}
	return nil
}

// Close stops the scheduler from accepting new rounds. In-flight rounds
// started by OnHeapAboveThreshold are allowed to finish; Close waits for
// them. Calling Close concurrently with DrainAll is undefined per
// spec.md §5 — callers must sequence the two.
func (s *Scheduler) Close() {
	s.closed.Store(true)
	s.wg.Wait()
}

// ApplyBackpressure blocks while a round is dispatched (P > 0) and
// returns as soon as P reaches zero. ctx cancellation surfaces as
// ErrCancelled; if MaxBackpressureWait is configured and elapses first,
// it surfaces as ErrTimedOut.
func (s *Scheduler) ApplyBackpressure(ctx context.Context) error {
	if s.closed.Load() {
		return ErrShutdown
	}

	waitCtx := ctx
	if s.cfg.MaxBackpressureWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.MaxBackpressureWait)
		defer cancel()
	}

	if err := s.gate.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return ErrTimedOut
		}
		return ErrCancelled
	}
	s.gate.Release(1)
	return nil
}

// runRound performs one end-to-end eviction round: drain, partition,
// dispatch to a bounded worker pool, await completion. The caller is
// responsible for gate ownership and P bookkeeping around this call.
func (s *Scheduler) runRound(batchSize int) {
	s.obs.recordRoundStart()
	s.obs.Log.WithField("batch_size", batchSize).Info("eviction round start")

	handles := s.table.DrainUpTo(batchSize)
	if len(handles) == 0 {
		s.obs.Log.Debug("eviction round complete: nothing to drain")
		return
	}

	chunks := partitionHandles(handles, s.cfg.WorkerCount)
	p := pool.New().WithMaxGoroutines(s.cfg.WorkerCount)
	for _, chunk := range chunks {
		chunk := chunk
		p.Go(func() {
			s.evictChunk(chunk)
		})
	}
	p.Wait()

	s.obs.Log.WithField("drained", len(handles)).Info("eviction round complete")
}

// evictChunk runs the worker body of spec.md §4.4 over one chunk.
func (s *Scheduler) evictChunk(chunk []*Handle) {
	for _, h := range chunk {
		s.evictOne(h)
	}
	s.obs.Log.WithField("chunk_size", len(chunk)).Debug("chunk complete")
}

// evictOne evicts a single handle: encode-and-write if required by the
// configured mode, then clear. Any failure is caught, logged, and leaves
// the handle resident (dirty, if it was dirty) for a future round to
// retry — per spec.md §7, a per-handle failure never aborts the chunk or
// the round.
func (s *Scheduler) evictOne(h *Handle) {
	defer func() {
		if r := recover(); r != nil {
			s.obs.recordError()
			s.obs.Log.WithField("node_id", h.Id).Errorf("recovered from panic evicting handle: %v", r)
			if h.IsSet() {
				s.table.Register(h)
			}
		}
	}()

	body := h.bodySnapshot()
	if body == nil {
		return // already evicted, nothing to do
	}

	// Draining removed h from the table; any early return below leaves
	// the body resident, so h must go back in per spec.md §3 invariant 1
	// (body present ⇒ registered) — otherwise a failed write would make
	// the handle unreachable for retry on the next pressure notification.
	if !s.cfg.DirtyOnly || h.isDirty() {
		data, err := s.codec.Encode(body)
		if err != nil {
			s.obs.recordError()
			if errors.Is(err, ErrUnencodableValue) {
				s.obs.Log.WithField("node_id", h.Id).WithError(err).Warn("unencodable value, handle left resident")
			} else {
				s.obs.Log.WithField("node_id", h.Id).WithError(err).Error("encode failed, handle left resident")
			}
			s.table.Register(h)
			return
		}
		if err := s.port.Put(h.StorageKey, data); err != nil {
			s.obs.recordError()
			s.obs.Log.WithField("node_id", h.Id).WithError(fmt.Errorf("%w: %v", ErrPersistenceFailed, err)).Error("persistence write failed, handle left resident and dirty")
			s.table.Register(h)
			return
		}
	}

	h.clear()
	s.obs.recordCleared(1)
}

// partitionHandles splits handles into at most workerCount contiguous
// chunks of size ceil(len(handles)/workerCount), dropping empty chunks.
func partitionHandles(handles []*Handle, workerCount int) [][]*Handle {
	if workerCount <= 0 {
		workerCount = 1
	}
	chunkSize := (len(handles) + workerCount - 1) / workerCount
	if chunkSize <= 0 {
		chunkSize = len(handles)
	}
	var chunks [][]*Handle
	for i := 0; i < len(handles); i += chunkSize {
		end := i + chunkSize
		if end > len(handles) {
			end = len(handles)
		}
		chunks = append(chunks, handles[i:end])
	}
	return chunks
}
