package coros

import "github.com/mnussbaum/coros/internal/reactor"

// entryFunc is the single-use closure consumed on a coroutine's first run;
// it wraps the user body plus whatever bookkeeping the caller (JoinHandle
// machinery, panic recovery boundary) attached.
type entryFunc func(h *BlockingHandle)

// parkedEntry is what the parked table stores for a blocked coroutine:
// the record itself, and -- for I/O parks only -- the channel its
// BlockingHandle call is waiting to receive its readiness Interest on (spec.md §3
// ParkedTable).
type parkedEntry struct {
	rec     *coroutine
	ioReply chan reactor.Interest // nil for non-I/O parks (sleep, recv, deregister)
}

// registrationIntent is the callback a BlockingHandle method leaves on a
// coroutine immediately before yielding; the scheduler consumes it exactly
// once, after the swap returns control, to perform the actual parking
// (allocate a token, insert into the parked table, register with the
// reactor). spec.md §3's "Dynamic dispatch of registration intent".
type registrationIntent func(rec *coroutine, react reactor.Reactor, parked *parkedTable) error

// coroutine is the per-coroutine control block (spec.md §3 CoroutineRecord).
// Its "stack" is a dedicated goroutine; "context switch" is the synchronous
// resumeCh/yieldCh handoff below -- the idiomatic-Go rendering of the
// assembly-level context swap spec.md treats as an external primitive (see
// SPEC_FULL.md).
type coroutine struct {
	id        uint64
	state     CoroutineState
	stackSize int

	entry   entryFunc
	started bool

	resumeCh chan struct{}
	yieldCh  chan struct{}

	// intent is Some only during the window described by spec.md §3's
	// invariant: set by a BlockingHandle method just before yielding,
	// consumed by the scheduler immediately after the swap returns.
	intent registrationIntent

	// parkErr carries a parking failure (e.g. SlabFullError) back to the
	// BlockingHandle call that's about to resume, in lieu of an actual
	// park+unpark round trip.
	parkErr error
}

func newCoroutine(id uint64, stackSize int, entry entryFunc) *coroutine {
	return &coroutine{
		id:        id,
		state:     StateNew,
		stackSize: stackSize,
		entry:     entry,
		resumeCh:  make(chan struct{}),
		yieldCh:   make(chan struct{}),
	}
}

// run performs one context swap into the coroutine (spec.md §4.1.1): on the
// first call it starts the coroutine's dedicated goroutine; on every
// subsequent call it resumes a previously parked one. It returns once the
// coroutine has yielded control back, at which point c.state reports
// whether it is Blocked (with c.intent set) or Terminated.
func (c *coroutine) run(h *BlockingHandle) {
	if !c.started {
		c.started = true
		c.state = StateRunning
		entry := c.entry
		c.entry = nil
		go func() {
			defer func() {
				c.state = StateTerminated
				c.yieldCh <- struct{}{}
			}()
			entry(h)
		}()
	} else {
		c.state = StateRunning
		c.resumeCh <- struct{}{}
	}
	<-c.yieldCh
}
