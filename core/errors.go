package core

import "errors"

// Sentinel errors forming the taxonomy of spec.md §7. Use errors.Is to
// test for these; concrete errors returned by the package wrap them with
// pkg/utils.Wrap-style context.
var (
	// ErrCorruptFormat is returned by Decode/DecodeRef when the byte
	// stream does not match the expected structural frame: unknown tag,
	// short read, type mismatch, or a map/array size over the configured
	// limit.
	ErrCorruptFormat = errors.New("overflowgraph: corrupt format")

	// ErrUnencodableValue is returned by Encode when a property value's
	// tag falls outside the closed set in §3.
	ErrUnencodableValue = errors.New("overflowgraph: unencodable value")

	// ErrLoadFailed wraps ErrCorruptFormat or a persistence failure
	// surfaced to the caller of Handle.GetOrLoad.
	ErrLoadFailed = errors.New("overflowgraph: load failed")

	// ErrPersistenceFailed wraps a Persistence Port Put/Get failure
	// observed by the eviction scheduler.
	ErrPersistenceFailed = errors.New("overflowgraph: persistence failed")

	// ErrCancelled is returned by ApplyBackpressure when the caller's
	// context is cancelled before P reaches zero.
	ErrCancelled = errors.New("overflowgraph: backpressure wait cancelled")

	// ErrTimedOut is returned by ApplyBackpressure when
	// max_backpressure_wait elapses before P reaches zero.
	ErrTimedOut = errors.New("overflowgraph: backpressure wait timed out")

	// ErrShutdown is returned by operations invoked after Close.
	ErrShutdown = errors.New("overflowgraph: scheduler closed")

	// ErrNotFound names an absent key. MemoryStore and FileStore do not
	// return it: their Get reports an absent key as a nil slice with a
	// nil error, which Handle.GetOrLoad turns into ErrLoadFailed.
	ErrNotFound = errors.New("overflowgraph: key not found")
)
