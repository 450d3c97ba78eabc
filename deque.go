package coros

import "sync"

// runQueue is a scheduler's local run queue of runnable coroutines: pushed
// and popped by its own worker from one end, stolen from the other end by
// idle peers (spec.md §4.1.3). No pack example implements a lock-free
// Chase-Lev deque, so this is a plain mutex-guarded slice rather than one;
// see DESIGN.md for why that gap is filled with the standard library
// instead of an invented dependency.
type runQueue struct {
	mu    sync.Mutex
	items []*coroutine
}

func newRunQueue() *runQueue {
	return &runQueue{}
}

// pushOwn adds rec to the end the owning worker pops from.
func (q *runQueue) pushOwn(rec *coroutine) {
	q.mu.Lock()
	q.items = append(q.items, rec)
	q.mu.Unlock()
}

// popOwn removes the next coroutine the owning worker should run, most
// recently pushed first (LIFO), favoring cache-warm resumption.
func (q *runQueue) popOwn() (*coroutine, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return nil, false
	}
	rec := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	return rec, true
}

// stealOne removes one coroutine from the opposite end from a peer worker
// (spec.md §4.1.3's fixed-order steal loop), FIFO relative to pushOwn so a
// thief takes the owner's oldest runnable work rather than racing it for the
// newest.
func (q *runQueue) stealOne() (*coroutine, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	rec := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return rec, true
}

// len reports the current queue length, used by the shutdown-drain
// predicate in scheduler.run.
func (q *runQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// empty reports whether the queue currently holds no runnable coroutines.
func (q *runQueue) empty() bool {
	return q.len() == 0
}
