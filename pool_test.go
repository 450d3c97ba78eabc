package coros

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTrivialValue is scenario S1: a single-worker pool running one
// coroutine that returns a constant.
func TestTrivialValue(t *testing.T) {
	pool, err := NewPool("s1", 1)
	require.NoError(t, err)

	handle, err := Spawn(pool, func(h *BlockingHandle) int { return 1 }, 2*1024*1024)
	require.NoError(t, err)

	require.NoError(t, pool.Start())

	val, err := handle.Join()
	require.NoError(t, err)
	assert.Equal(t, 1, val)

	require.NoError(t, pool.Stop())
}

// TestSpawnAfterStart is scenario S2.
func TestSpawnAfterStart(t *testing.T) {
	pool, err := NewPool("s2", 1)
	require.NoError(t, err)
	require.NoError(t, pool.Start())

	handle, err := Spawn(pool, func(h *BlockingHandle) int { return 1 }, 2*1024*1024)
	require.NoError(t, err)

	val, err := handle.Join()
	require.NoError(t, err)
	assert.Equal(t, 1, val)

	require.NoError(t, pool.Stop())
}

// TestPanicIsolation is scenario S3: two panicking coroutines and two
// well-behaved ones share a single worker; the panics are isolated to
// their own JoinHandles.
func TestPanicIsolation(t *testing.T) {
	pool, err := NewPool("s3", 1)
	require.NoError(t, err)

	panicA, err := Spawn(pool, func(h *BlockingHandle) int { panic("boom-a") }, 2*1024*1024)
	require.NoError(t, err)
	panicB, err := Spawn(pool, func(h *BlockingHandle) int { panic("boom-b") }, 2*1024*1024)
	require.NoError(t, err)
	okFour, err := Spawn(pool, func(h *BlockingHandle) int { return 4 }, 2*1024*1024)
	require.NoError(t, err)
	okFive, err := Spawn(pool, func(h *BlockingHandle) int { return 5 }, 2*1024*1024)
	require.NoError(t, err)

	require.NoError(t, pool.Start())

	_, err = panicA.Join()
	var panicErr *CoroutinePanicError
	assert.ErrorAs(t, err, &panicErr)

	_, err = panicB.Join()
	assert.ErrorAs(t, err, &panicErr)

	val, err := okFour.Join()
	require.NoError(t, err)
	assert.Equal(t, 4, val)

	val, err = okFive.Join()
	require.NoError(t, err)
	assert.Equal(t, 5, val)

	require.NoError(t, pool.Stop())
}

// TestWorkStealingAcrossWorkers is scenario S4: a coroutine spawned onto a
// busy worker finishes quickly only if another worker steals it.
func TestWorkStealingAcrossWorkers(t *testing.T) {
	pool, err := NewPool("s4", 2)
	require.NoError(t, err)

	fastHandle, err := SpawnOn(pool, func(h *BlockingHandle) int { return 2 }, 2*1024*1024, 0)
	require.NoError(t, err)
	slowHandle, err := SpawnOn(pool, func(h *BlockingHandle) int {
		// An OS-level sleep keeps worker 0 busy, so the fast coroutine can
		// only finish early on worker 1.
		time.Sleep(500 * time.Millisecond)
		return 1
	}, 2*1024*1024, 0)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, pool.Start())

	fastVal, err := fastHandle.Join()
	require.NoError(t, err)
	assert.Equal(t, 2, fastVal)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	slowVal, err := slowHandle.Join()
	require.NoError(t, err)
	assert.Equal(t, 1, slowVal)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)

	require.NoError(t, pool.Stop())
}

// TestChannelRendezvous is scenario S6: a coroutine parks on an empty
// channel until the host sends a value.
func TestChannelRendezvous(t *testing.T) {
	pool, err := NewPool("s6", 1)
	require.NoError(t, err)

	tx, rx := NewChannel[uint8]()
	handle, err := Spawn(pool, func(h *BlockingHandle) uint8 {
		val, err := Recv(h, &rx)
		require.NoError(t, err)
		return val
	}, 2*1024*1024)
	require.NoError(t, err)

	require.NoError(t, pool.Start())
	require.NoError(t, tx.Send(1))

	val, err := handle.Join()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), val)

	require.NoError(t, pool.Stop())
}

// TestStartStopRoundTrip is property R1: start/stop/start/stop all
// succeed, with every coroutine submitted before a start completing before
// the matching stop returns.
func TestStartStopRoundTrip(t *testing.T) {
	pool, err := NewPool("round-trip", 2)
	require.NoError(t, err)

	h1, err := Spawn(pool, func(h *BlockingHandle) int { return 10 }, 64*1024)
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	v1, err := h1.Join()
	require.NoError(t, err)
	assert.Equal(t, 10, v1)
	require.NoError(t, pool.Stop())

	h2, err := Spawn(pool, func(h *BlockingHandle) int { return 20 }, 64*1024)
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	v2, err := h2.Join()
	require.NoError(t, err)
	assert.Equal(t, 20, v2)
	require.NoError(t, pool.Stop())
}

// TestStopWhenNotRunningIsNoOp and TestStartWhenRunningIsNoOp cover R2.
func TestStopWhenNotRunningIsNoOp(t *testing.T) {
	pool, err := NewPool("r2-stop", 1)
	require.NoError(t, err)
	assert.NoError(t, pool.Stop())
}

func TestStartWhenRunningIsNoOp(t *testing.T) {
	pool, err := NewPool("r2-start", 1)
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	require.NoError(t, pool.Start())
	require.NoError(t, pool.Stop())
}

// TestSpawnOnInvalidThreadIndex is boundary behaviour B2.
func TestSpawnOnInvalidThreadIndex(t *testing.T) {
	pool, err := NewPool("b2", 2)
	require.NoError(t, err)

	_, err = SpawnOn(pool, func(h *BlockingHandle) int { return 0 }, 64*1024, 2)
	var invalidErr *InvalidThreadForSpawnError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, 2, invalidErr.ThreadIndex)
	assert.Equal(t, 2, invalidErr.ThreadCount)
}

// TestSpawnAfterStopTargetsRebuiltScheduler checks that a spawn after Stop
// is not rejected as targeting a shut-down worker, because Stop has already
// replaced the shut-down schedulers with fresh ones.
func TestSpawnAfterStopTargetsRebuiltScheduler(t *testing.T) {
	pool, err := NewPool("shutdown-thread", 1)
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	require.NoError(t, pool.Stop())

	// Stop() rebuilds scheduler handles (spec.md R1), so a spawn after
	// Stop without a following Start targets a freshly built, non-shutdown
	// scheduler and must succeed rather than report shutdown.
	handle, err := Spawn(pool, func(h *BlockingHandle) int { return 7 }, 64*1024)
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	val, err := handle.Join()
	require.NoError(t, err)
	assert.Equal(t, 7, val)
	require.NoError(t, pool.Stop())
}

// TestParkedTableFullReturnsSlabFull is boundary behaviour B1: the (C+1)th
// concurrent park on a worker returns SlabFullError to that coroutine; no
// coroutine is lost (the other C stay parked and still resolve via Sleep).
func TestParkedTableFullReturnsSlabFull(t *testing.T) {
	const capacity = 4
	pool, err := NewPool("b1", 1, WithParkedTableCapacity(capacity))
	require.NoError(t, err)

	type result struct {
		ok  bool
		err error
	}
	results := make(chan result, capacity+1)

	handles := make([]*JoinHandle[int], 0, capacity+1)
	for i := 0; i < capacity+1; i++ {
		h, err := Spawn(pool, func(h *BlockingHandle) int {
			err := h.Sleep(200 * time.Millisecond)
			results <- result{ok: err == nil, err: err}
			return 0
		}, 64*1024)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	require.NoError(t, pool.Start())

	var slabFullCount, okCount int
	for i := 0; i < capacity+1; i++ {
		r := <-results
		if r.ok {
			okCount++
			continue
		}
		var slabErr *SlabFullError
		require.ErrorAs(t, r.err, &slabErr)
		slabFullCount++
	}
	assert.Equal(t, 1, slabFullCount, "exactly one park attempt should overflow the table")
	assert.Equal(t, capacity, okCount)

	for _, h := range handles {
		_, err := h.Join()
		require.NoError(t, err)
	}

	require.NoError(t, pool.Stop())
}

// TestJoinAfterJoinReturnsError covers JoinHandle's single-consume
// contract.
func TestJoinAfterJoinReturnsError(t *testing.T) {
	pool, err := NewPool("double-join", 1)
	require.NoError(t, err)
	handle, err := Spawn(pool, func(h *BlockingHandle) int { return 9 }, 64*1024)
	require.NoError(t, err)
	require.NoError(t, pool.Start())

	val, err := handle.Join()
	require.NoError(t, err)
	assert.Equal(t, 9, val)

	_, err = handle.Join()
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	require.NoError(t, pool.Stop())
}
