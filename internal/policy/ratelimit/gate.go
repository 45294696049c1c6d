// Package ratelimit paces outbound requests so that no two are issued closer
// together than a configured interval.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/realtime-news-ingest/internal/metrics"
)

// Gate blocks a caller until it may issue its next request.
type Gate interface {
	Wait(ctx context.Context) error
}

// Kind selects a Gate implementation.
type Kind string

const (
	// KindSlot selects SlotGate.
	KindSlot Kind = "slot"
	// KindBucket selects BucketGate.
	KindBucket Kind = "bucket"
)

// Interval converts a requests-per-second ceiling to the minimum spacing
// between requests. Non-positive rates disable pacing.
func Interval(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rps)
}

// New builds the gate named by kind for the given rate.
func New(kind Kind, rps float64) (Gate, error) {
	interval := Interval(rps)
	switch kind {
	case KindSlot, "":
		return NewSlotGate(interval), nil
	case KindBucket:
		return NewBucketGate(interval), nil
	default:
		return nil, fmt.Errorf("unknown limiter kind %q", kind)
	}
}

func observeDelay(start time.Time) {
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObservePacingDelay(d)
	}
}
