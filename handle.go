package coros

import (
	"time"

	"github.com/mnussbaum/coros/internal/reactor"
)

// BlockingHandle is the only API by which a running coroutine suspends
// itself. One is constructed per coroutine on entry and handed to its
// body; it is not safe to retain and call from any goroutine other than
// the coroutine's own (spec.md §4.2).
type BlockingHandle struct {
	c *coroutine
}

// yield is the common four-step suspension protocol shared by every
// BlockingHandle method: record the intent, mark Blocked, swap to the
// scheduler, and on resumption surface any parking failure.
func (h *BlockingHandle) yield(intent registrationIntent) error {
	c := h.c
	c.intent = intent
	c.state = StateBlocked
	c.yieldCh <- struct{}{}
	<-c.resumeCh
	if err := c.parkErr; err != nil {
		c.parkErr = nil
		return err
	}
	return nil
}

// Sleep suspends the calling coroutine for at least d without blocking its
// worker thread.
func (h *BlockingHandle) Sleep(d time.Duration) error {
	return h.yield(func(rec *coroutine, react reactor.Reactor, parked *parkedTable) error {
		tok, err := parked.insert(rec, nil)
		if err != nil {
			return err
		}
		return react.SetTimer(tok, d)
	})
}

// Recv suspends the calling coroutine until a message is available on r,
// without blocking its worker thread. It is the coroutine-safe counterpart
// to Receiver.Recv, which blocks the OS thread and must only be called
// from outside the pool.
func Recv[M any](h *BlockingHandle, r *Receiver[M]) (M, error) {
	var zero M
	err := h.yield(func(rec *coroutine, react reactor.Reactor, parked *parkedTable) error {
		tok, err := parked.insert(rec, nil)
		if err != nil {
			return err
		}
		r.ch.pendingReceivers.push(ticket{wake: react.WakeSender(), tok: tok})
		return nil
	})
	if err != nil {
		return zero, err
	}
	// The scheduler only unparked this coroutine because a ticket of ours
	// was claimed by a sender (spec.md §4.2 recv): a message is guaranteed.
	return <-r.ch.messages, nil
}

// Register begins monitoring fd for interest and suspends the calling
// coroutine until a matching readiness event (or a reactor error) is
// delivered.
func (h *BlockingHandle) Register(fd int, interest reactor.Interest, mode reactor.Mode) (reactor.Interest, error) {
	reply := make(chan reactor.Interest, 1)
	err := h.yield(func(rec *coroutine, react reactor.Reactor, parked *parkedTable) error {
		tok, err := parked.insert(rec, reply)
		if err != nil {
			return err
		}
		return react.Register(tok, fd, interest, mode)
	})
	if err != nil {
		return 0, err
	}
	return <-reply, nil
}

// Reregister changes the interest set for an already-registered fd and
// suspends the calling coroutine until a matching readiness event is
// delivered for the new interest.
func (h *BlockingHandle) Reregister(fd int, interest reactor.Interest, mode reactor.Mode) (reactor.Interest, error) {
	reply := make(chan reactor.Interest, 1)
	err := h.yield(func(rec *coroutine, react reactor.Reactor, parked *parkedTable) error {
		tok, err := parked.insert(rec, reply)
		if err != nil {
			return err
		}
		return react.Reregister(tok, fd, interest, mode)
	})
	if err != nil {
		return 0, err
	}
	return <-reply, nil
}

// Deregister stops monitoring fd and suspends the calling coroutine just
// long enough to step it back through the scheduler (spec.md §4.2: this is
// the idiom used both to stop listening and to yield a turn without
// waiting).
func (h *BlockingHandle) Deregister(fd int) error {
	return h.yield(func(rec *coroutine, react reactor.Reactor, parked *parkedTable) error {
		tok, err := parked.insert(rec, nil)
		if err != nil {
			return err
		}
		if err := react.Deregister(fd); err != nil {
			return err
		}
		return react.SetTimer(tok, 0)
	})
}
