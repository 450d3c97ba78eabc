//go:build linux || darwin

package coros

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mnussbaum/coros/internal/reactor"
)

// TestSleepThenIOExclusion is scenario S5: a parked sleep must not be cut
// short by a readiness event. After Register returns, r stays registered
// under the token it was given, and the following Sleep parks under that
// same recycled token, so the unread "ping" keeps reporting readiness for
// the sleeping coroutine; the stray-readiness rule leaves it parked until
// its timer fires.
func TestSleepThenIOExclusion(t *testing.T) {
	pool, err := NewPool("s5", 1)
	require.NoError(t, err)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	r, w := fds[0], fds[1]
	defer unix.Close(w)

	elapsed := make(chan time.Duration, 1)
	handle, err := Spawn(pool, func(h *BlockingHandle) int {
		_, err := h.Register(r, reactor.Readable, reactor.LevelTriggered)
		if err != nil {
			return -1
		}
		start := time.Now()
		if err := h.Sleep(500 * time.Millisecond); err != nil {
			return -1
		}
		elapsed <- time.Since(start)
		if err := h.Deregister(r); err != nil {
			return -1
		}
		return 0
	}, 64*1024)
	require.NoError(t, err)

	require.NoError(t, pool.Start())
	time.Sleep(50 * time.Millisecond)
	_, err = unix.Write(w, []byte("ping"))
	require.NoError(t, err)

	val, err := handle.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, val)

	select {
	case d := <-elapsed:
		assert.GreaterOrEqual(t, d, 400*time.Millisecond)
	default:
		t.Fatal("coroutine never reported its sleep duration")
	}

	require.NoError(t, pool.Stop())
	unix.Close(r)
}

// TestRegisterDeregisterReregister covers the register, deregister,
// register-again sequence of property R3: after deregistering r, a coroutine
// registers it again for Readable and observes Readable readiness (spec.md
// §4.2's deregister idiom re-steps the coroutine rather than leaving its fd
// half-registered, so the follow-up call is Register, not Reregister, which
// on Linux -- like the teacher's ModifyFD -- requires an already-active
// registration).
func TestRegisterDeregisterReregister(t *testing.T) {
	pool, err := NewPool("r3", 1)
	require.NoError(t, err)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	r, w := fds[0], fds[1]
	defer unix.Close(w)
	defer unix.Close(r)

	gotEvents := make(chan reactor.Interest, 1)
	handle, err := Spawn(pool, func(h *BlockingHandle) int {
		if _, err := h.Register(r, reactor.Readable, reactor.LevelTriggered); err != nil {
			return -1
		}
		if err := h.Deregister(r); err != nil {
			return -1
		}
		events, err := h.Register(r, reactor.Readable, reactor.LevelTriggered)
		if err != nil {
			return -1
		}
		gotEvents <- events
		return 0
	}, 64*1024)
	require.NoError(t, err)

	require.NoError(t, pool.Start())
	time.Sleep(20 * time.Millisecond)
	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	val, err := handle.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, val)

	select {
	case events := <-gotEvents:
		assert.NotZero(t, events&reactor.Readable)
	default:
		t.Fatal("coroutine never observed readiness after reregister")
	}

	require.NoError(t, pool.Stop())
}
