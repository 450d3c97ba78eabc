package coros

import "time"

// defaultParkedTableCapacity bounds each scheduler's parked table (spec.md
// §3 ParkedTable, "e.g., 65,536").
const defaultParkedTableCapacity = 65536

// config collects the knobs a Pool can be constructed with. There is no
// env var or config file surface (spec.md §6 Non-goals); every setting is a
// functional option passed to NewPool, mirroring the teacher's
// eventloop.New(opts ...Option) construction pattern.
type config struct {
	logger              *Logger
	parkedTableCapacity int
	reactorSlice        time.Duration
}

func newConfig() *config {
	return &config{
		parkedTableCapacity: defaultParkedTableCapacity,
		reactorSlice:        defaultReactorSlice,
	}
}

// Option configures a Pool at construction time.
type Option func(*config)

// WithLogger sets the structured logger every worker in the pool uses for
// diagnostics (protocol-violation reports, stray readiness, shutdown
// errors). The zero value (not supplying this option) is a no-op logger.
func WithLogger(logger *Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithParkedTableCapacity overrides the per-worker parked-table capacity
// (spec.md boundary behaviour B1). Panics at construction time if capacity
// is not positive.
func WithParkedTableCapacity(capacity int) Option {
	return func(c *config) {
		if capacity <= 0 {
			panic("coros: parked table capacity must be positive")
		}
		c.parkedTableCapacity = capacity
	}
}

// WithReactorSlice overrides the bounded time budget each worker hands its
// reactor per event-loop iteration (spec.md §4.1 step 2, "≈10ms" default).
func WithReactorSlice(d time.Duration) Option {
	return func(c *config) {
		if d <= 0 {
			panic("coros: reactor slice must be positive")
		}
		c.reactorSlice = d
	}
}
