package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiterNeverExceedsBound(t *testing.T) {
	const bound = 4
	l := NewLimiter(bound)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Error(err)
				return
			}
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
			l.Release()
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > bound {
		t.Errorf("observed %d concurrent holders, bound is %d", got, bound)
	}
	if l.Peak() > bound {
		t.Errorf("Peak() = %d, bound is %d", l.Peak(), bound)
	}
	if l.InFlight() != 0 {
		t.Errorf("InFlight() = %d after all releases", l.InFlight())
	}
}

func TestLimiterAcquireHonoursContext(t *testing.T) {
	l := NewLimiter(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire = %v, want deadline exceeded", err)
	}
	if l.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", l.InFlight())
	}
}

func TestNewLimiterMinimumOne(t *testing.T) {
	if got := NewLimiter(0).Max(); got != 1 {
		t.Errorf("Max() = %d, want 1", got)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{-2, time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt, time.Second, nil); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	half := func() float64 { return 0.5 }
	if got := Backoff(2, time.Second, half); got != 3*time.Second {
		t.Errorf("Backoff with jitter = %v, want 3s", got)
	}
}
