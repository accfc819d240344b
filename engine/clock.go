package engine

import "time"

// Clock abstracts time so polling and pauses can be driven by tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Backoff returns base * 2^attempt. With jitter the result is drawn
// uniformly from [d/2, d].
func Backoff(attempt int, base time.Duration, jitter func() float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	d := base * time.Duration(1<<attempt)
	if jitter != nil {
		d = d/2 + time.Duration(float64(d/2)*jitter())
	}
	return d
}
