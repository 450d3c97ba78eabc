// Package coros implements an M:N coroutine runtime: a fixed-size pool of
// worker threads multiplexes many user-supplied coroutines onto those
// threads, suspending and resuming each one across blocking I/O, timers,
// and inter-coroutine message passing without consuming a thread while
// suspended.
//
// # Architecture
//
// Each worker thread runs exactly one scheduler, which owns a local run
// queue, a reactor instance, and a table of parked coroutines keyed by a
// small integer token. Coroutines are cooperative: they run until they
// return or call one of the suspension points exposed by [BlockingHandle]
// ([BlockingHandle.Sleep], [Recv], [BlockingHandle.Register],
// [BlockingHandle.Reregister], [BlockingHandle.Deregister]).
//
// A coroutine's "stack" is a dedicated goroutine; "context switch" is a
// synchronous channel handoff between that goroutine and its owning
// worker. This is the idiomatic Go rendering of the stackful-coroutine
// model: Go already gives every goroutine its own growable stack, so no
// assembly-level context switch is needed to get suspension from arbitrary
// call depth.
//
// # Usage
//
//	pool, err := coros.NewPool("workers", 4)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Stop()
//
//	if err := pool.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	handle, err := coros.Spawn(pool, func(h *coros.BlockingHandle) int {
//	    if err := h.Sleep(100 * time.Millisecond); err != nil {
//	        return -1
//	    }
//	    return 42
//	}, 64*1024)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := handle.Join()
//
// # Non-goals
//
// Preemptive scheduling, migrating a suspended coroutine between workers,
// fairness guarantees (a worker runs its own queue newest-first), priority
// levels, and distributed scheduling are all out of scope.
package coros
