//go:build darwin

package reactor

import (
	"container/heap"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const maxFDs = 65536

type fdState struct {
	active bool
	tok    Token
}

// kqueueReactor implements Reactor using kqueue and a self-pipe wake
// channel, grounded on eventloop/poller_darwin.go and eventloop/wakeup_darwin.go.
type kqueueReactor struct {
	kq int

	fdMu sync.RWMutex
	fds  [maxFDs]fdState

	wakeRead, wakeWrite int

	wakeMu    sync.Mutex
	wakeQueue []Token

	timers   timerHeap
	eventBuf [256]unix.Kevent_t

	closed bool
}

// New constructs the Darwin reactor implementation.
func New() (Reactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	var pipeFds [2]int
	if err := unix.Pipe(pipeFds[:]); err != nil {
		unix.Close(kq)
		return nil, err
	}
	unix.SetNonblock(pipeFds[0], true)
	unix.SetNonblock(pipeFds[1], true)

	r := &kqueueReactor{kq: kq, wakeRead: pipeFds[0], wakeWrite: pipeFds[1]}
	ev := unix.Kevent_t{
		Ident:  uint64(r.wakeRead),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}
	if _, err := unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		unix.Close(kq)
		unix.Close(pipeFds[0])
		unix.Close(pipeFds[1])
		return nil, err
	}
	return r, nil
}

func (r *kqueueReactor) Register(tok Token, fd int, interest Interest, _ Mode) error {
	if r.closed {
		return ErrClosed
	}
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	r.fdMu.Lock()
	if r.fds[fd].active {
		r.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	r.fds[fd] = fdState{active: true, tok: tok}
	r.fdMu.Unlock()

	changes := interestToKevents(fd, interest, unix.EV_ADD)
	_, err := unix.Kevent(r.kq, changes, nil, nil)
	if err != nil {
		r.fdMu.Lock()
		r.fds[fd] = fdState{}
		r.fdMu.Unlock()
	}
	return err
}

func (r *kqueueReactor) Reregister(tok Token, fd int, interest Interest, mode Mode) error {
	if err := r.Deregister(fd); err != nil && err != ErrFDNotRegistered {
		return err
	}
	return r.Register(tok, fd, interest, mode)
}

func (r *kqueueReactor) Deregister(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	r.fdMu.Lock()
	if !r.fds[fd].active {
		r.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	r.fds[fd] = fdState{}
	r.fdMu.Unlock()

	changes := interestToKevents(fd, Readable|Writable, unix.EV_DELETE)
	_, err := unix.Kevent(r.kq, changes, nil, nil)
	return err
}

func (r *kqueueReactor) SetTimer(tok Token, d time.Duration) error {
	heap.Push(&r.timers, &timerEntry{deadline: time.Now().Add(d), tok: tok})
	return nil
}

type darwinSender struct{ r *kqueueReactor }

func (s darwinSender) Send(tok Token) error {
	s.r.wakeMu.Lock()
	s.r.wakeQueue = append(s.r.wakeQueue, tok)
	s.r.wakeMu.Unlock()
	_, err := unix.Write(s.r.wakeWrite, []byte{1})
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func (r *kqueueReactor) WakeSender() Sender { return darwinSender{r} }

func (r *kqueueReactor) Tick(handler Handler, sliceDeadline time.Duration) error {
	if r.closed {
		return ErrClosed
	}
	timeout := sliceDeadline
	if next, ok := r.timers.nextDeadline(); ok {
		if until := time.Until(next); until < timeout {
			timeout = until
		}
	}
	if timeout < 0 {
		timeout = 0
	}
	ts := unix.NsecToTimespec(timeout.Nanoseconds())

	n, err := unix.Kevent(r.kq, nil, r.eventBuf[:], &ts)
	if err != nil && err != unix.EINTR {
		return err
	}

	for i := 0; i < n; i++ {
		fd := int(r.eventBuf[i].Ident)
		if fd == r.wakeRead {
			r.drainWake(handler)
			continue
		}
		r.fdMu.RLock()
		st := r.fds[fd]
		r.fdMu.RUnlock()
		if !st.active {
			continue
		}
		handler.OnReadiness(st.tok, keventToInterest(r.eventBuf[i].Filter))
	}

	for _, tok := range popExpired(&r.timers, time.Now()) {
		handler.OnTimeout(tok)
	}

	return nil
}

func (r *kqueueReactor) drainWake(handler Handler) {
	var buf [64]byte
	for {
		_, err := unix.Read(r.wakeRead, buf[:])
		if err != nil {
			break
		}
	}
	r.wakeMu.Lock()
	tokens := r.wakeQueue
	r.wakeQueue = nil
	r.wakeMu.Unlock()
	for _, tok := range tokens {
		handler.OnWake(tok)
	}
}

func (r *kqueueReactor) Close() error {
	r.closed = true
	unix.Close(r.wakeRead)
	unix.Close(r.wakeWrite)
	return unix.Close(r.kq)
}

func interestToKevents(fd int, interest Interest, flags uint16) []unix.Kevent_t {
	var changes []unix.Kevent_t
	if interest&Readable != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if interest&Writable != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return changes
}

func keventToInterest(filter int16) Interest {
	switch filter {
	case unix.EVFILT_READ:
		return Readable
	case unix.EVFILT_WRITE:
		return Writable
	default:
		return 0
	}
}
