package engine

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting permit that bounds in-flight fetch tasks. Waiters are
// served in arrival order, so no task starves.
type Limiter struct {
	sem      *semaphore.Weighted
	max      int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewLimiter creates a limiter with maxConcurrent permits (at least one).
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem: semaphore.NewWeighted(int64(maxConcurrent)),
		max: maxConcurrent,
	}
}

// Acquire blocks until a permit is free or ctx ends.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := l.inFlight.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	limiterInFlight.Inc()
	return nil
}

// Release returns a permit taken by Acquire.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	limiterInFlight.Dec()
	l.sem.Release(1)
}

// Max returns the permit count.
func (l *Limiter) Max() int { return l.max }

// InFlight returns the number of current holders.
func (l *Limiter) InFlight() int { return int(l.inFlight.Load()) }

// Peak returns the highest number of simultaneous holders seen.
func (l *Limiter) Peak() int { return int(l.peak.Load()) }
