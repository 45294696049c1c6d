package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

const (
	contentionBackoff = time.Millisecond
	// noSlot marks a gate that has not issued anything yet.
	noSlot = math.MinInt64
)

// SlotGate hands out request slots from a single shared "last issued"
// timestamp. A caller claims the next slot with compare-and-swap, so
// concurrent callers never share a slot and nobody holds a lock while sleeping.
// Slots are stored as offsets from the gate's creation time so spacing follows
// the monotonic clock rather than wall time.
type SlotGate struct {
	interval time.Duration
	epoch    time.Time
	last     atomic.Int64
	now      func() time.Time
}

// NewSlotGate creates a SlotGate. A zero interval never blocks.
func NewSlotGate(interval time.Duration) *SlotGate {
	g := &SlotGate{interval: interval, epoch: time.Now(), now: time.Now}
	g.last.Store(noSlot)
	return g
}

// Wait blocks until at least one interval has passed since the previously
// issued slot, then records the current time as the new last-issued slot.
func (g *SlotGate) Wait(ctx context.Context) error {
	start := g.now()
	defer observeDelay(start)
	_, err := g.claim(ctx)
	return err
}

// claim returns the slot the caller won.
func (g *SlotGate) claim(ctx context.Context) (time.Time, error) {
	for {
		if err := ctx.Err(); err != nil {
			return time.Time{}, fmt.Errorf("rate limit wait: %w", err)
		}
		now := int64(g.now().Sub(g.epoch))
		last := g.last.Load()
		if last != noSlot {
			elapsed := now - last
			if elapsed < 0 {
				// The clock went behind the last slot; count spacing from now.
				g.last.CompareAndSwap(last, now)
				continue
			}
			if elapsed < int64(g.interval) {
				if err := sleep(ctx, time.Duration(int64(g.interval)-elapsed)); err != nil {
					return time.Time{}, err
				}
				continue
			}
		}
		if g.last.CompareAndSwap(last, now) {
			return g.epoch.Add(time.Duration(now)), nil
		}
		if err := sleep(ctx, contentionBackoff); err != nil {
			return time.Time{}, err
		}
	}
}

// LastIssued reports when the most recent slot was handed out.
func (g *SlotGate) LastIssued() time.Time {
	n := g.last.Load()
	if n == noSlot {
		return time.Time{}
	}
	return g.epoch.Add(time.Duration(n))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
