package coros

import (
	"errors"

	"github.com/mnussbaum/coros/internal/reactor"
	"github.com/mnussbaum/coros/internal/slab"
)

// parkedTable is the per-scheduler table of blocked coroutines, keyed by the
// token the reactor and RendezvousChannel tickets use to address them
// (spec.md §3 ParkedTable). It is a thin wrapper over internal/slab.Slab that
// translates the slab's generic ErrFull into this package's SlabFullError and
// bounds capacity per-scheduler rather than process-wide.
type parkedTable struct {
	slab     *slab.Slab[parkedEntry]
	capacity int
}

func newParkedTable(capacity int) *parkedTable {
	return &parkedTable{
		slab:     slab.New[parkedEntry](capacity),
		capacity: capacity,
	}
}

// insert parks rec, returning the token that the reactor (for Sleep,
// Register, Reregister, Deregister) or a RendezvousChannel ticket (for Recv)
// will later use to address it. ioReply is non-nil only for Register and
// Reregister parks, per spec.md's distinction between I/O and non-I/O waits.
func (p *parkedTable) insert(rec *coroutine, ioReply chan reactor.Interest) (reactor.Token, error) {
	tok, err := p.slab.Insert(parkedEntry{rec: rec, ioReply: ioReply})
	if err != nil {
		if errors.Is(err, slab.ErrFull) {
			return 0, &SlabFullError{Capacity: p.capacity}
		}
		return 0, err
	}
	return reactor.Token(tok), nil
}

// take removes and returns the parked entry for tok, if any.
func (p *parkedTable) take(tok reactor.Token) (parkedEntry, bool) {
	entry, err := p.slab.Remove(slab.Token(tok))
	if err != nil {
		return parkedEntry{}, false
	}
	return entry, true
}

// len reports how many coroutines are currently parked.
func (p *parkedTable) len() int { return p.slab.Len() }
