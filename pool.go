package coros

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/mnussbaum/coros/internal/reactor"
)

// Pool is the fixed-size collection of worker threads and the user-facing
// façade (spec.md §4.3). A Pool is constructed once with its worker count;
// Start and Stop may be called repeatedly (spec.md R1: start; stop; start;
// stop all succeed), rebuilding scheduler state on every Stop so the next
// Start begins from a clean slate.
type Pool struct {
	name        string
	cfg         *config
	logger      *Logger
	threadCount int

	mu         sync.Mutex
	schedulers []*scheduler
	running    bool
	resultCh   chan error

	nextID atomic.Uint64
}

// NewPool constructs a Pool of threadCount workers, each with its own
// reactor, parked table, and run queue, wired with every other worker's run
// queue as a steal target (spec.md §4.3 new, excluding a scheduler's own
// queue from its own stealer list).
func NewPool(name string, threadCount int, opts ...Option) (*Pool, error) {
	if threadCount <= 0 {
		return nil, fmt.Errorf("coros: thread count must be positive, got %d", threadCount)
	}
	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	p := &Pool{
		name:        name,
		cfg:         cfg,
		logger:      defaultLogger(cfg.logger),
		threadCount: threadCount,
		resultCh:    make(chan error, threadCount),
	}
	if err := p.buildSchedulers(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) buildSchedulers() error {
	scheds := make([]*scheduler, p.threadCount)
	for i := range scheds {
		react, err := reactor.New()
		if err != nil {
			return fmt.Errorf("coros: constructing reactor for worker %d: %w", i, err)
		}
		s := newScheduler(i, react, p.cfg.parkedTableCapacity, p.cfg.logger)
		s.reactorSlice = p.cfg.reactorSlice
		scheds[i] = s
	}
	for i, s := range scheds {
		stealers := make([]*runQueue, 0, len(scheds)-1)
		for j, other := range scheds {
			if i == j {
				continue
			}
			stealers = append(stealers, other.runq)
		}
		s.stealers = stealers
	}
	p.schedulers = scheds
	return nil
}

// Start dispatches every scheduler onto its own goroutine-backed worker. It
// is idempotent: calling Start on an already-running Pool is a no-op
// (spec.md R2).
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.logger.Info().Str("pool", p.name).Int("workers", len(p.schedulers)).Log("pool starting")
	for _, s := range p.schedulers {
		s := s
		go func() {
			p.resultCh <- s.run()
		}()
	}
	return nil
}

// Stop signals every worker to shut down, waits for all of them to drain
// and exit, and rebuilds scheduler state so the Pool may be Started again
// (spec.md §4.3 stop, R1). It is idempotent: calling Stop on a Pool that is
// not running is a no-op (spec.md R2).
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	schedulers := p.schedulers
	p.running = false
	p.mu.Unlock()

	for _, s := range schedulers {
		close(s.shutdown)
	}

	var errs []error
	for range schedulers {
		if err := <-p.resultCh; err != nil {
			errs = append(errs, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.buildSchedulers(); err != nil {
		return err
	}
	if len(errs) > 0 {
		p.logger.Err().Int("failed_workers", len(errs)).Log("pool stopped uncleanly")
		return &UncleanShutdownError{Errors: errs}
	}
	p.logger.Info().Str("pool", p.name).Log("pool stopped")
	return nil
}

// wrapBody adapts a user coroutine body into the single-use entry closure a
// coroutine record runs: a panic in body is caught at this boundary and
// converted to a CoroutinePanicError delivered through resultCh rather than
// crashing the worker (spec.md §4.3 spawn_on, §9 "Panics").
func wrapBody[T any](body func(h *BlockingHandle) T, resultCh chan<- joinResult[T], logger *Logger) entryFunc {
	return func(h *BlockingHandle) {
		result := func() (r joinResult[T]) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Err().Log(fmt.Sprintf("coroutine panicked: %v", rec))
					r = joinResult[T]{err: &CoroutinePanicError{Value: rec}}
				}
			}()
			return joinResult[T]{value: body(h)}
		}()
		resultCh <- result
	}
}

// SpawnOn spawns body onto the worker at threadIndex, returning a
// JoinHandle for its eventual result (spec.md §4.3 spawn_on). It returns
// *InvalidThreadForSpawnError for an out-of-range index and
// ErrSpawnOnShutdownThread if that worker's shutdown signal has already
// been sent.
func SpawnOn[T any](p *Pool, body func(h *BlockingHandle) T, stackSize int, threadIndex int) (*JoinHandle[T], error) {
	p.mu.Lock()
	scheds := p.schedulers
	p.mu.Unlock()

	if threadIndex < 0 || threadIndex >= len(scheds) {
		return nil, &InvalidThreadForSpawnError{ThreadIndex: threadIndex, ThreadCount: len(scheds)}
	}
	s := scheds[threadIndex]

	select {
	case <-s.shutdown:
		return nil, ErrSpawnOnShutdownThread
	default:
	}

	jh, resultCh := newJoinHandle[T]()
	rec := newCoroutine(p.nextID.Add(1), stackSize, wrapBody(body, resultCh, p.logger))

	select {
	case s.mailbox <- rec:
	case <-s.shutdown:
		return nil, ErrSpawnOnShutdownThread
	}
	return jh, nil
}

// Spawn spawns body onto a uniformly-random worker (spec.md §4.3 spawn).
func Spawn[T any](p *Pool, body func(h *BlockingHandle) T, stackSize int) (*JoinHandle[T], error) {
	p.mu.Lock()
	n := len(p.schedulers)
	p.mu.Unlock()
	return SpawnOn(p, body, stackSize, rand.Intn(n))
}
