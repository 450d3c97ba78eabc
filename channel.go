package coros

import (
	"sync"

	"github.com/mnussbaum/coros/internal/reactor"
)

// ticket is a pending-receiver ticket (spec.md §3): the handle to wake a
// parked receiver on its worker, claimed by exactly one Send.
type ticket struct {
	wake reactor.Sender
	tok  reactor.Token
}

// ticketQueue is the pending-receiver FIFO (spec.md §3's "pending-receiver
// tickets" queue). push must never block: a BlockingHandle.Recv's
// registration intent runs on the scheduler's own event-loop goroutine, and
// blocking there would stall every other coroutine on that worker rather
// than just the parking one. popBlocking, by contrast, intentionally blocks
// its caller's OS thread, mirroring spec.md §5 ("[a
// worker thread blocks]... when a send on a RendezvousChannel waits for a
// ticket") -- safe because Send is only ever called from the host thread or
// from a coroutine that accepts blocking its own worker by calling Send
// directly rather than through a handle (spec.md §4.4).
type ticketQueue struct {
	mu    sync.Mutex
	cond  sync.Cond
	items []ticket
}

func newTicketQueue() *ticketQueue {
	q := &ticketQueue{}
	q.cond.L = &q.mu
	return q
}

func (q *ticketQueue) push(t ticket) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *ticketQueue) popBlocking() ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t
}

// rendezvous holds the two FIFO queues backing a RendezvousChannel: one for
// user messages, one for pending-receiver tickets (spec.md §3).
type rendezvous[M any] struct {
	messages         chan M
	pendingReceivers *ticketQueue
}

// Sender is the send half of a coroutine-rendezvous channel.
type Sender[M any] struct{ ch *rendezvous[M] }

// Receiver is the receive half of a coroutine-rendezvous channel. Recv
// (the free function, for coroutine use via a BlockingHandle) and Recv
// (the method below, for host-thread use) differ only in whether the
// calling goroutine's own stack blocks or a coroutine parks.
type Receiver[M any] struct{ ch *rendezvous[M] }

// NewChannel constructs a rendezvous channel pair. Unlike a plain Go
// channel, a receive on an empty RendezvousChannel does not block the OS
// thread when called through BlockingHandle.Recv -- it parks the calling
// coroutine instead (spec.md §4.4).
func NewChannel[M any]() (Sender[M], Receiver[M]) {
	ch := &rendezvous[M]{
		messages:         make(chan M),
		pendingReceivers: newTicketQueue(),
	}
	return Sender[M]{ch}, Receiver[M]{ch}
}

// hostWake is the no-op reactor.Sender used for tickets registered by the
// host-thread Receiver.Recv below: there is no worker or token to wake, the
// ticket exists purely so Send can pair with a waiting host receiver the
// same way it pairs with a parked coroutine.
type hostWake struct{}

func (hostWake) Send(reactor.Token) error { return nil }

// Send is the mirror of Recv's parking: it waits for a pending-receiver
// ticket to appear and only after claiming one does it deliver message.
// There is no parking variant of Send: it blocks the calling goroutine, so
// when a coroutine calls it, its whole worker waits until a receiver has
// registered a ticket (spec.md §4.4).
func (s Sender[M]) Send(message M) error {
	t := s.ch.pendingReceivers.popBlocking()
	if err := t.wake.Send(t.tok); err != nil {
		return err
	}
	s.ch.messages <- message
	return nil
}

// Recv blocks the calling OS thread until a message is available. Use
// this from the host thread; use the package-level Recv function with a
// BlockingHandle from inside a coroutine. Unlike the coroutine path, this
// registers a ticket with a no-op wake (there's no reactor token to address
// a plain OS thread by) and then blocks directly on the message queue.
func (r Receiver[M]) Recv() (M, error) {
	r.ch.pendingReceivers.push(ticket{wake: hostWake{}})
	return <-r.ch.messages, nil
}
