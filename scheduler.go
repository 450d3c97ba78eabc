package coros

import (
	"time"

	"github.com/mnussbaum/coros/internal/reactor"
)

// mailboxDrainBatch bounds how many coroutines a single event-loop
// iteration lifts out of the inbound mailbox (spec.md §4.1 step 1, K=1024).
const mailboxDrainBatch = 1024

// defaultReactorSlice is the bounded time budget handed to the reactor on
// each event-loop iteration (spec.md §4.1 step 2, "≈10ms").
const defaultReactorSlice = 10 * time.Millisecond

// scheduler drives exactly one worker thread (spec.md §4.1). It owns the
// local run queue, the reactor, the parked table, and the inbound mailbox;
// everything here runs on a single goroutine (its worker) except mailbox
// sends, which any goroutine calling SpawnOn may perform, and steals from
// runq by peer workers.
type scheduler struct {
	index int

	react  reactor.Reactor
	parked *parkedTable
	runq   *runQueue

	mailbox  chan *coroutine
	shutdown chan struct{}

	// stealers are every other scheduler's run queue, in ascending worker
	// index order with this scheduler's own queue left out; steal always
	// tries them from the first (fixed order rather than randomised, per
	// spec.md §4.1.3's "fixed iteration order is acceptable").
	stealers []*runQueue

	logger *Logger

	reactorSlice time.Duration

	// fatalErr is set by a reactor.Handler callback (OnReadiness,
	// onNonReadinessWake) when it observes an internal protocol violation
	// (spec.md §7). Handler callbacks are void-returning, so this is the
	// only way such a violation can reach run(), which checks it
	// immediately after the Tick call that may have set it.
	fatalErr error
}

func newScheduler(index int, react reactor.Reactor, parkedCapacity int, logger *Logger) *scheduler {
	return &scheduler{
		index:        index,
		react:        react,
		parked:       newParkedTable(parkedCapacity),
		runq:         newRunQueue(),
		mailbox:      make(chan *coroutine, mailboxDrainBatch),
		shutdown:     make(chan struct{}),
		logger:       defaultLogger(logger),
		reactorSlice: defaultReactorSlice,
	}
}

// run is the scheduler's event loop (spec.md §4.1). It returns when the
// shutdown signal has been observed and the parked table has drained, or
// when a protocol violation or reactor failure makes continuing unsafe.
func (s *scheduler) run() error {
	defer func() {
		_ = s.react.Close()
	}()

	shuttingDown := false
	for {
		if !shuttingDown {
			select {
			case <-s.shutdown:
				shuttingDown = true
			default:
			}
		}

		s.drainMailbox(shuttingDown)

		if err := s.react.Tick(s, s.reactorSlice); err != nil {
			return err
		}
		if s.fatalErr != nil {
			return s.fatalErr
		}

		rec, ok := s.runq.popOwn()
		if !ok {
			rec, ok = s.steal()
		}
		if ok {
			if err := s.runOne(rec); err != nil {
				return err
			}
		}

		if shuttingDown && s.parked.len() == 0 && s.runq.empty() {
			return nil
		}
	}
}

// drainMailbox lifts up to mailboxDrainBatch pending spawns into the local
// run queue. Once shuttingDown, arrivals are still drained (so a blocked
// Spawn/SpawnOn sender is never left hanging) but discarded rather than
// queued, per spec.md §4.1.4.
func (s *scheduler) drainMailbox(shuttingDown bool) {
	for i := 0; i < mailboxDrainBatch; i++ {
		select {
		case rec := <-s.mailbox:
			if !shuttingDown {
				s.runq.pushOwn(rec)
			}
		default:
			return
		}
	}
}

// steal attempts one steal from each remote queue in fixed order, returning
// on the first success (spec.md §4.1.3).
func (s *scheduler) steal() (*coroutine, bool) {
	for _, remote := range s.stealers {
		if rec, ok := remote.stealOne(); ok {
			return rec, true
		}
	}
	return nil, false
}

// runOne performs the context swap into rec and processes the resulting
// state transition (spec.md §4.1 step 4).
func (s *scheduler) runOne(rec *coroutine) error {
	for {
		h := &BlockingHandle{c: rec}
		rec.run(h)

		switch rec.state {
		case StateTerminated:
			return nil

		case StateBlocked:
			intent := rec.intent
			rec.intent = nil
			if intent == nil {
				return ErrMissingRegistrationIntent
			}
			if err := intent(rec, s.react, s.parked); err != nil {
				// Surface the parking failure to the coroutine immediately,
				// in lieu of an actual park+unpark round trip (spec.md
				// §4.2's SlabFull handling).
				rec.parkErr = err
				continue
			}
			return nil

		default:
			return ErrProtocolViolation
		}
	}
}

// OnReadiness implements reactor.Handler (spec.md §4.1.2).
func (s *scheduler) OnReadiness(tok reactor.Token, events reactor.Interest) {
	entry, ok := s.parked.take(tok)
	if !ok {
		s.logger.Err().Err(ErrMissingParkedEntry).Int("token", tok).Log("readiness for unknown token")
		s.fatalErr = ErrMissingParkedEntry
		return
	}
	if entry.ioReply == nil {
		// Stray readiness on a non-I/O park: no-op, coroutine stays parked
		// (spec.md §9's resolved open question). Re-insert so the token
		// keeps addressing it.
		s.logger.Debug().Int("token", tok).Log("stray readiness on non-io park")
		s.reparkStray(tok, entry)
		return
	}
	entry.ioReply <- events
	s.runq.pushOwn(entry.rec)
}

// OnTimeout implements reactor.Handler (spec.md §4.1.2, timer fire).
func (s *scheduler) OnTimeout(tok reactor.Token) {
	s.onNonReadinessWake(tok)
}

// OnWake implements reactor.Handler (spec.md §4.1.2, wake-by-message).
func (s *scheduler) OnWake(tok reactor.Token) {
	s.onNonReadinessWake(tok)
}

// onNonReadinessWake handles the timeout and wake-by-message cases, which
// share a classification (spec.md §4.1.2's "non-readiness" column).
func (s *scheduler) onNonReadinessWake(tok reactor.Token) {
	entry, ok := s.parked.take(tok)
	if !ok {
		s.logger.Err().Err(ErrMissingParkedEntry).Int("token", tok).Log("non-readiness wake for unknown token")
		s.fatalErr = ErrMissingParkedEntry
		return
	}
	if entry.ioReply != nil {
		// An I/O-parked coroutine woken for a non-readiness reason is a
		// protocol violation (spec.md §4.1.2); it stays parked and the
		// worker terminates.
		s.logger.Err().Err(ErrCoroutineBlockedOnIoAwokenForNotIo).Int("token", tok).Log("io-parked coroutine woken for non-io event")
		s.reparkStray(tok, entry)
		s.fatalErr = ErrCoroutineBlockedOnIoAwokenForNotIo
		return
	}
	s.runq.pushOwn(entry.rec)
}

// reparkStray reinserts entry under the same token after a wake that must
// not actually unpark it. take(tok) just freed tok onto the head of the
// slab's LIFO free-list with no intervening insert, so this Insert is
// guaranteed to hand the same token back.
func (s *scheduler) reparkStray(tok reactor.Token, entry parkedEntry) {
	if _, err := s.parked.slab.Insert(entry); err != nil {
		s.logger.Err().Err(err).Int("token", tok).Log("failed to repark stray wake")
	}
}
