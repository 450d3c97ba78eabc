package coros

import (
	"errors"
	"fmt"
)

// Misuse-by-host errors.
var (
	// ErrAlreadyJoined is returned by a second call to JoinHandle.Join.
	ErrAlreadyJoined = errors.New("coros: join handle already joined")

	// ErrSpawnOnShutdownThread is returned when SpawnOn targets a worker
	// whose shutdown signal has already been sent by Pool.Stop.
	ErrSpawnOnShutdownThread = errors.New("coros: spawn targeted a thread that is shutting down")

	// ErrCannotStartPoolWithoutSchedulers names the condition of a Pool
	// whose scheduler handles have not been (re)built. No function in this
	// package returns it: NewPool fails instead of returning such a Pool,
	// and Start and Stop do not check for it.
	ErrCannotStartPoolWithoutSchedulers = errors.New("coros: pool has no scheduler handles")
)

// InvalidThreadForSpawnError is returned by SpawnOn when thread_index is
// out of range (spec.md boundary behaviour B2).
type InvalidThreadForSpawnError struct {
	ThreadIndex int
	ThreadCount int
}

func (e *InvalidThreadForSpawnError) Error() string {
	return fmt.Sprintf("coros: invalid thread index %d for pool with %d threads", e.ThreadIndex, e.ThreadCount)
}

// SlabFullError is returned when a coroutine attempts to park but the
// scheduler's parked-table has reached capacity (spec.md boundary B1).
type SlabFullError struct {
	Capacity int
}

func (e *SlabFullError) Error() string {
	return fmt.Sprintf("coros: parked table full (capacity %d)", e.Capacity)
}

// CoroutinePanicError wraps a value recovered from a panicking coroutine
// body. It is delivered as the error half of that coroutine's JoinHandle
// result; no other coroutine is affected.
type CoroutinePanicError struct {
	Value any
}

func (e *CoroutinePanicError) Error() string {
	return fmt.Sprintf("coros: coroutine panicked: %v", e.Value)
}

// Unwrap supports errors.Is/errors.As against the recovered value when it
// is itself an error.
func (e *CoroutinePanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Internal protocol violations. These terminate the scheduler that
// observed them but are isolated from the rest of the pool (spec.md §7).
var (
	// ErrMissingRegistrationIntent is the fatal condition where a
	// coroutine returns Blocked without having set a registration intent.
	ErrMissingRegistrationIntent = errors.New("coros: coroutine blocked without a registration intent")

	// ErrCoroutineBlockedOnIoAwokenForNotIo is the fatal condition where a
	// coroutine parked with an I/O reply channel is woken by a non-I/O
	// callback (spec.md §4.1.2).
	ErrCoroutineBlockedOnIoAwokenForNotIo = errors.New("coros: coroutine blocked on I/O woken for a non-I/O event")

	// ErrMissingParkedEntry is the fatal condition where the reactor
	// reports an event for a token with no corresponding parked entry.
	ErrMissingParkedEntry = errors.New("coros: no parked entry for token")

	// ErrProtocolViolation covers any other state the event loop observes
	// that the life-cycle protocol forbids (e.g. resuming a coroutine that
	// reports itself Running or New after a swap).
	ErrProtocolViolation = errors.New("coros: coroutine life-cycle protocol violation")
)

// UncleanShutdownError aggregates the per-worker errors observed during
// Pool.Stop. A nil-error worker contributes nothing; an empty Errors slice
// here would mean Stop should have returned nil instead.
type UncleanShutdownError struct {
	Errors []error
}

func (e *UncleanShutdownError) Error() string {
	return fmt.Sprintf("coros: unclean shutdown across %d worker(s): %v", len(e.Errors), e.Errors)
}

// Unwrap exposes the per-worker causes for errors.Is/errors.As, mirroring
// the teacher's eventloop.AggregateError.
func (e *UncleanShutdownError) Unwrap() []error { return e.Errors }
