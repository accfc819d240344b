package engine

import (
	"context"
	"time"

	"github.com/use-agent/bizscout/models"
)

// Exit reasons reported in models.Detection.Reason.
const (
	ReasonResults   = "results"
	ReasonNoResults = "no_results"
	ReasonSettled   = "settled"
	ReasonBudget    = "budget"
	ReasonCanceled  = "canceled"
)

// Observation is one poll of the results page.
type Observation struct {
	Results   bool // results container present
	NoResults bool // "no results" text present
	Loading   bool // loading indicator text present
}

// Probe inspects the page once.
type Probe func(ctx context.Context) (Observation, error)

// Decision is the outcome of evaluating one observation.
type Decision struct {
	Done   bool
	State  models.DetectionState
	Reason string
}

// DetectorOptions are the polling constants.
type DetectorOptions struct {
	PollInterval time.Duration
	GracePeriod  time.Duration
	HardBudget   time.Duration
}

// Detector decides when a submitted search has finished rendering.
type Detector struct {
	opts  DetectorOptions
	clock Clock
}

// NewDetector creates a detector. Zero options fall back to 500ms / 3s / 8s.
func NewDetector(opts DetectorOptions, clock Clock) *Detector {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 3 * time.Second
	}
	if opts.HardBudget <= 0 {
		opts.HardBudget = 8 * time.Second
	}
	if clock == nil {
		clock = RealClock
	}
	return &Detector{opts: opts, clock: clock}
}

// Evaluate applies the transition rule to one observation. A probe error
// counts as "nothing detected": it can only end polling after the grace period.
func (d *Detector) Evaluate(obs Observation, probeErr error, elapsed time.Duration) Decision {
	if probeErr != nil {
		obs = Observation{}
	}
	switch {
	case obs.Results:
		return Decision{Done: true, State: models.StateResultsPresent, Reason: ReasonResults}
	case obs.NoResults:
		return Decision{Done: true, State: models.StateNoResultsPresent, Reason: ReasonNoResults}
	case !obs.Loading && elapsed > d.opts.GracePeriod:
		return Decision{Done: true, State: models.StatePending, Reason: ReasonSettled}
	}
	return Decision{State: models.StatePending}
}

// Wait polls probe every PollInterval until a terminal decision or until the
// hard budget runs out, in which case it exits in Pending.
func (d *Detector) Wait(ctx context.Context, probe Probe) models.Detection {
	start := d.clock.Now()
	polls := 0
	result := func(state models.DetectionState, reason string) models.Detection {
		detectorExitsTotal.WithLabelValues(reason).Inc()
		return models.Detection{State: state, Reason: reason, Polls: polls}
	}

	for {
		elapsed := d.clock.Now().Sub(start)
		if elapsed >= d.opts.HardBudget {
			return result(models.StatePending, ReasonBudget)
		}

		probeCtx, cancel := context.WithTimeout(ctx, d.opts.HardBudget-elapsed)
		obs, err := probe(probeCtx)
		cancel()
		polls++

		dec := d.Evaluate(obs, err, d.clock.Now().Sub(start))
		if dec.Done {
			return result(dec.State, dec.Reason)
		}

		select {
		case <-ctx.Done():
			return result(models.StatePending, ReasonCanceled)
		case <-d.clock.After(d.opts.PollInterval):
		}
	}
}
