package ratelimit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 333333333*time.Nanosecond, Interval(3))
	assert.Equal(t, 100*time.Millisecond, Interval(10))
	assert.Zero(t, Interval(0))
	assert.Zero(t, Interval(-1))
}

func TestNew(t *testing.T) {
	t.Parallel()

	g, err := New(KindSlot, 3)
	require.NoError(t, err)
	assert.IsType(t, &SlotGate{}, g)

	g, err = New("", 3)
	require.NoError(t, err)
	assert.IsType(t, &SlotGate{}, g)

	g, err = New(KindBucket, 3)
	require.NoError(t, err)
	assert.IsType(t, &BucketGate{}, g)

	_, err = New("leaky", 3)
	require.Error(t, err)
}

func TestSlotGateSpacesConcurrentCallers(t *testing.T) {
	t.Parallel()

	const (
		callers  = 8
		interval = 20 * time.Millisecond
	)
	g := NewSlotGate(interval)

	var (
		mu    sync.Mutex
		slots []time.Time
		wg    sync.WaitGroup
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := g.claim(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			slots = append(slots, slot)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, slots, callers)
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	for i := 1; i < len(slots); i++ {
		assert.GreaterOrEqual(t, slots[i].Sub(slots[i-1]), interval, "slots %d and %d", i-1, i)
	}
	assert.True(t, g.LastIssued().Equal(slots[len(slots)-1]))
}

func TestSlotGateFirstCallDoesNotBlock(t *testing.T) {
	t.Parallel()

	g := NewSlotGate(time.Hour)
	assert.True(t, g.LastIssued().IsZero())

	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.False(t, g.LastIssued().IsZero())
}

func TestSlotGateKeepsMonotonicReading(t *testing.T) {
	t.Parallel()

	g := NewSlotGate(time.Millisecond)
	slot, err := g.claim(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.Contains(slot.String(), "m=+"), slot.String())
	assert.True(t, strings.Contains(g.LastIssued().String(), "m=+"))
}

func TestSlotGateSurvivesClockStepBack(t *testing.T) {
	t.Parallel()

	const interval = 30 * time.Millisecond
	var shift atomic.Int64
	g := NewSlotGate(interval)
	g.now = func() time.Time {
		// Round(0) strips the monotonic reading, as a wall clock would have.
		return time.Now().Round(0).Add(time.Duration(shift.Load()))
	}

	_, err := g.claim(context.Background())
	require.NoError(t, err)
	shift.Store(int64(-time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	_, err = g.claim(ctx)
	require.NoError(t, err)
	waited := time.Since(start)
	assert.GreaterOrEqual(t, waited, interval)
	assert.Less(t, waited, time.Second)
}

func TestSlotGateHonorsContext(t *testing.T) {
	t.Parallel()

	g := NewSlotGate(time.Hour)
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlotGateZeroIntervalNeverBlocks(t *testing.T) {
	t.Parallel()

	g := NewSlotGate(0)
	start := time.Now()
	for range 50 {
		require.NoError(t, g.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestBucketGateSpacing(t *testing.T) {
	t.Parallel()

	g := NewBucketGate(50 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, g.Wait(ctx))

	start := time.Now()
	require.NoError(t, g.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestBucketGateHonorsContext(t *testing.T) {
	t.Parallel()

	g := NewBucketGate(time.Hour)
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, g.Wait(ctx))
}
