//go:build linux

package reactor

import (
	"container/heap"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// maxFDs bounds direct-indexed fd bookkeeping, matching the teacher's
// poller_linux.go maxFDs constant.
const maxFDs = 65536

type fdState struct {
	active bool
	tok    Token
}

// epollReactor implements Reactor using epoll and an eventfd-based wake
// channel, grounded on eventloop/poller_linux.go and eventloop/wakeup_linux.go.
type epollReactor struct {
	epfd int

	fdMu sync.RWMutex
	fds  [maxFDs]fdState

	wakeFd int // eventfd, read+write end

	wakeMu    sync.Mutex
	wakeQueue []Token

	timers   timerHeap
	eventBuf [256]unix.EpollEvent

	closed bool
}

// New constructs the Linux reactor implementation.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	r := &epollReactor{epfd: epfd, wakeFd: wakeFd}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFd)
		return nil, err
	}
	return r, nil
}

func (r *epollReactor) Register(tok Token, fd int, interest Interest, _ Mode) error {
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

	ev := &unix.EpollEvent{Events: interestToEpoll(interest), Fd: int32(tok)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		r.fdMu.Lock()
		r.fds[fd] = fdState{}
		r.fdMu.Unlock()
		return err
	}
	return nil
}

func (r *epollReactor) Reregister(tok Token, fd int, interest Interest, _ Mode) error {
	if r.closed {
		return ErrClosed
	}
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	r.fdMu.Lock()
	if !r.fds[fd].active {
		r.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	r.fds[fd] = fdState{active: true, tok: tok}
	r.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: interestToEpoll(interest), Fd: int32(tok)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (r *epollReactor) Deregister(fd int) error {
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
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (r *epollReactor) SetTimer(tok Token, d time.Duration) error {
	heap.Push(&r.timers, &timerEntry{deadline: time.Now().Add(d), tok: tok})
	return nil
}

type tokenSender struct{ r *epollReactor }

func (s tokenSender) Send(tok Token) error {
	s.r.wakeMu.Lock()
	s.r.wakeQueue = append(s.r.wakeQueue, tok)
	s.r.wakeMu.Unlock()
	// One 8-byte counter write to the eventfd wakes a concurrent epoll_wait
	// immediately; the value doesn't matter, eventfd just needs a non-zero
	// write.
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(s.r.wakeFd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func (r *epollReactor) WakeSender() Sender { return tokenSender{r} }

func (r *epollReactor) Tick(handler Handler, sliceDeadline time.Duration) error {
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

	n, err := unix.EpollWait(r.epfd, r.eventBuf[:], int(timeout/time.Millisecond))
	if err != nil && err != unix.EINTR {
		return err
	}

	for i := 0; i < n; i++ {
		tok := int(r.eventBuf[i].Fd)
		if tok == r.wakeFd {
			r.drainWake(handler)
			continue
		}
		handler.OnReadiness(tok, epollToInterest(r.eventBuf[i].Events))
	}

	for _, tok := range popExpired(&r.timers, time.Now()) {
		handler.OnTimeout(tok)
	}

	return nil
}

// drainWake reads the eventfd counter and delivers every queued wake token.
// Grounded on eventloop/wakeup_linux.go's drainWakeUpPipe.
func (r *epollReactor) drainWake(handler Handler) {
	var buf [8]byte
	for {
		_, err := unix.Read(r.wakeFd, buf[:])
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

func (r *epollReactor) Close() error {
	r.closed = true
	unix.Close(r.wakeFd)
	return unix.Close(r.epfd)
}

func interestToEpoll(i Interest) uint32 {
	var e uint32
	if i&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if i&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToInterest(e uint32) Interest {
	var i Interest
	if e&unix.EPOLLIN != 0 {
		i |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		i |= Writable
	}
	if e&unix.EPOLLERR != 0 {
		i |= ErrorReady
	}
	if e&unix.EPOLLHUP != 0 {
		i |= HangUp
	}
	return i
}
