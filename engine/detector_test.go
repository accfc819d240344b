package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/use-agent/bizscout/models"
)

func TestEvaluate(t *testing.T) {
	d := NewDetector(DetectorOptions{}, nil)
	probeErr := errors.New("execution context was destroyed")

	tests := []struct {
		name      string
		obs       Observation
		err       error
		elapsed   time.Duration
		wantDone  bool
		wantState models.DetectionState
		wantWhy   string
	}{
		{"results win", Observation{Results: true, NoResults: true, Loading: true}, nil, 0, true, models.StateResultsPresent, ReasonResults},
		{"no results", Observation{NoResults: true, Loading: true}, nil, time.Second, true, models.StateNoResultsPresent, ReasonNoResults},
		{"loading keeps polling", Observation{Loading: true}, nil, 5 * time.Second, false, models.StatePending, ""},
		{"quiet inside grace", Observation{}, nil, 3 * time.Second, false, models.StatePending, ""},
		{"quiet after grace", Observation{}, nil, 3*time.Second + time.Millisecond, true, models.StatePending, ReasonSettled},
		{"probe error inside grace", Observation{Results: true}, probeErr, time.Second, false, models.StatePending, ""},
		{"probe error after grace", Observation{Loading: true}, probeErr, 4 * time.Second, true, models.StatePending, ReasonSettled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Evaluate(tt.obs, tt.err, tt.elapsed)
			if got.Done != tt.wantDone || got.State != tt.wantState || got.Reason != tt.wantWhy {
				t.Errorf("Evaluate = %+v, want done=%v state=%s reason=%q", got, tt.wantDone, tt.wantState, tt.wantWhy)
			}
		})
	}
}

func TestWaitDetectsWithinOnePollInterval(t *testing.T) {
	for _, appear := range []time.Duration{0, 300 * time.Millisecond, 1200 * time.Millisecond, 6 * time.Second} {
		clock := newFakeClock()
		d := NewDetector(DetectorOptions{PollInterval: 500 * time.Millisecond}, clock)
		start := clock.Now()

		probe := func(ctx context.Context) (Observation, error) {
			elapsed := clock.Now().Sub(start)
			return Observation{Results: elapsed >= appear, Loading: true}, nil
		}
		det := d.Wait(context.Background(), probe)
		took := clock.Now().Sub(start)

		if det.State != models.StateResultsPresent {
			t.Errorf("appear=%v: state = %s, want results", appear, det.State)
		}
		if took > appear+500*time.Millisecond {
			t.Errorf("appear=%v: detected after %v, want within one poll interval", appear, took)
		}
	}
}

func TestWaitStopsAtHardBudget(t *testing.T) {
	clock := newFakeClock()
	d := NewDetector(DetectorOptions{}, clock)
	start := clock.Now()

	probe := func(ctx context.Context) (Observation, error) {
		return Observation{Loading: true}, nil
	}
	det := d.Wait(context.Background(), probe)

	if det.State != models.StatePending || det.Reason != ReasonBudget {
		t.Fatalf("Wait = %+v, want pending/budget", det)
	}
	if took := clock.Now().Sub(start); took != 8*time.Second {
		t.Errorf("terminated after %v, want 8s", took)
	}
	if det.Polls != 16 {
		t.Errorf("Polls = %d, want 16", det.Polls)
	}
}

func TestWaitSettlesAfterGrace(t *testing.T) {
	clock := newFakeClock()
	d := NewDetector(DetectorOptions{}, clock)
	start := clock.Now()

	det := d.Wait(context.Background(), func(ctx context.Context) (Observation, error) {
		return Observation{}, nil
	})

	if det.Reason != ReasonSettled || det.State != models.StatePending {
		t.Fatalf("Wait = %+v, want pending/settled", det)
	}
	if took := clock.Now().Sub(start); took != 3500*time.Millisecond {
		t.Errorf("settled after %v, want 3.5s", took)
	}
}

func TestWaitProbeErrorsBehaveLikeNothingDetected(t *testing.T) {
	clock := newFakeClock()
	d := NewDetector(DetectorOptions{}, clock)

	det := d.Wait(context.Background(), func(ctx context.Context) (Observation, error) {
		return Observation{}, errors.New("node detached")
	})
	if det.Reason != ReasonSettled {
		t.Fatalf("Reason = %q, want settled", det.Reason)
	}
}

func TestWaitNoResults(t *testing.T) {
	d := NewDetector(DetectorOptions{}, newFakeClock())
	det := d.Wait(context.Background(), func(ctx context.Context) (Observation, error) {
		return Observation{NoResults: true}, nil
	})
	if det.State != models.StateNoResultsPresent || det.Polls != 1 {
		t.Fatalf("Wait = %+v, want no_results after one poll", det)
	}
}
