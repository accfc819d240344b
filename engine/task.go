package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/use-agent/bizscout/config"
	"github.com/use-agent/bizscout/models"
)

// TaskOptions are the per-task timeouts and retry policy.
type TaskOptions struct {
	NavigationTimeout  time.Duration
	InteractionTimeout time.Duration
	ConsentTimeout     time.Duration
	ClickTimeout       time.Duration
	TaskTimeout        time.Duration
	Retries            int
	RetryBase          time.Duration
}

// Task drives one search on the target page.
type Task struct {
	pool      *Pool
	limiter   *Limiter
	detector  *Detector
	target    config.Target
	noResults *regexp.Regexp
	loading   *regexp.Regexp
	opts      TaskOptions
	clock     Clock
}

// NewTask wires a task runner. It fails only if the target is invalid.
func NewTask(pool *Pool, limiter *Limiter, detector *Detector, target config.Target, opts TaskOptions, clock Clock) (*Task, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	noResults, loading, err := target.Patterns()
	if err != nil {
		return nil, err
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.InteractionTimeout <= 0 {
		opts.InteractionTimeout = 15 * time.Second
	}
	if opts.ConsentTimeout <= 0 || opts.ConsentTimeout > opts.InteractionTimeout {
		opts.ConsentTimeout = min(2*time.Second, opts.InteractionTimeout)
	}
	if opts.ClickTimeout <= 0 || opts.ClickTimeout > opts.InteractionTimeout {
		opts.ClickTimeout = min(5*time.Second, opts.InteractionTimeout)
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if clock == nil {
		clock = RealClock
	}
	return &Task{
		pool:      pool,
		limiter:   limiter,
		detector:  detector,
		target:    target,
		noResults: noResults,
		loading:   loading,
		opts:      opts,
		clock:     clock,
	}, nil
}

// Run executes the task for item on the context selected by hint. It never
// returns an error: every failure, panics included, becomes a failed outcome.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Permit          – wait for a limiter slot
//  2. Context         – pool.Context(hint) and take its checkout lock
//  3. Page            – open a tab; closed on every exit path
//  4. Navigate        – NavigationTimeout; consent banner best-effort
//  5. Fill + submit   – first submit control that exists and clicks wins
//  6. Submit failure  – SUBMISSION_FAILED when no control could be clicked
//  7. Detect          – completion detector
//  8. Extract         – page HTML
func (t *Task) Run(ctx context.Context, item models.WorkItem, hint int) (out models.FetchOutcome) {
	started := time.Now()
	attempts := 0
	contextID := ""

	defer func() {
		if r := recover(); r != nil {
			slog.Error("fetch task panicked", "query", item.Query, "panic", r)
			out = models.Failed(item, models.NewFetchError(models.ErrCodeUnknown, fmt.Sprint(r), nil), started)
		}
		out.Attempts = attempts
		out.ContextID = contextID
		label := "success"
		if !out.Success {
			label = out.ErrorKind
		}
		tasksTotal.WithLabelValues(label).Inc()
		taskDuration.WithLabelValues(label).Observe(out.Elapsed)
	}()

	if t.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.TaskTimeout)
		defer cancel()
	}

	// ── 1. Permit ─────────────────────────────────────────────────────
	if err := t.limiter.Acquire(ctx); err != nil {
		return models.Failed(item, models.Classify(err, models.ErrCodeInteractionTimeout, "timed out waiting for a concurrency permit"), started)
	}
	defer t.limiter.Release()

	// ── 2. Context ────────────────────────────────────────────────────
	ec, err := t.pool.Context(hint)
	if err != nil {
		return models.Failed(item, models.Classify(err, models.ErrCodeUnknown, "no execution context"), started)
	}
	if err := ec.Checkout(ctx); err != nil {
		return models.Failed(item, models.Classify(err, models.ErrCodeInteractionTimeout, "timed out waiting for execution context"), started)
	}
	contextID = ec.ID
	success := false
	defer func() { ec.Checkin(success) }()

	var lastErr *models.FetchError
	for attempts < t.opts.Retries+1 {
		if attempts > 0 {
			wait := Backoff(attempts-1, t.opts.RetryBase, nil)
			slog.Info("retrying fetch task",
				"query", item.Query,
				"attempt", attempts+1,
				"wait", wait,
				"error", lastErr,
			)
			taskRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return models.Failed(item, models.Classify(ctx.Err(), models.ErrCodeNavigationTimeout, "task deadline reached before retry"), started)
			case <-t.clock.After(wait):
			}
		}
		attempts++

		html, det, ferr := t.attempt(ctx, ec, item)
		if ferr == nil {
			success = true
			return models.FetchOutcome{
				Index:     item.Index,
				Query:     item.Query,
				HTML:      html,
				Success:   true,
				Elapsed:   time.Since(started).Seconds(),
				Detection: &det,
			}
		}
		lastErr = ferr
		slog.Warn("fetch attempt failed",
			"query", item.Query,
			"context", ec.ID,
			"attempt", attempts,
			"code", ferr.Code,
			"error", ferr,
		)
		if !models.Retryable(ferr) {
			break
		}
	}
	return models.Failed(item, lastErr, started)
}

// attempt runs steps 3–8 once.
func (t *Task) attempt(ctx context.Context, ec *ExecutionContext, item models.WorkItem) (string, models.Detection, *models.FetchError) {
	var none models.Detection

	// ── 3. Page ───────────────────────────────────────────────────────
	page, err := ec.NewPage(ctx)
	if err != nil {
		return "", none, models.Classify(err, models.ErrCodeNavigationTimeout, "failed to open page")
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			slog.Debug("cleanup: failed to close page", "context", ec.ID, "error", cerr)
		}
	}()

	// ── 4. Navigate ───────────────────────────────────────────────────
	navCtx, navCancel := context.WithTimeout(ctx, t.opts.NavigationTimeout)
	err = page.Navigate(navCtx, t.target.SearchURL)
	navCancel()
	if err != nil {
		return "", none, models.Classify(err, models.ErrCodeNavigationTimeout, "navigation to search page failed")
	}

	// ── 4b. Consent banner (best-effort) ─────────────────────────────
	t.dismissConsent(ctx, page)

	// ── 5. Fill + submit ──────────────────────────────────────────────
	// Each interaction below gets its own InteractionTimeout.
	fillCtx, fillCancel := t.step(ctx)
	if t.target.InputWaitMs > 0 {
		fillCtx, fillCancel = withInnerTimeout(fillCtx, fillCancel, time.Duration(t.target.InputWaitMs)*time.Millisecond)
	}
	err = page.Fill(fillCtx, t.target.InputSelector, item.Query)
	fillCancel()
	if err != nil {
		return "", none, models.Classify(err, models.ErrCodeInteractionTimeout, "search input not available")
	}

	// ── 6. Submit failure ─────────────────────────────────────────────
	submitCtx, submitCancel := t.step(ctx)
	control, ok := t.submit(submitCtx, page)
	submitCancel()
	if !ok {
		if ctx.Err() != nil {
			return "", none, models.Classify(ctx.Err(), models.ErrCodeInteractionTimeout, "task ended before submit")
		}
		return "", none, models.NewFetchError(models.ErrCodeSubmissionFailed, models.MsgSubmissionFailed, nil)
	}
	slog.Debug("search submitted", "query", item.Query, "control", control.String())

	loadCtx, loadCancel := t.step(ctx)
	if err := page.WaitLoad(loadCtx); err != nil {
		slog.Debug("DOMContentLoaded wait did not finish, continuing", "query", item.Query, "error", err)
	}
	loadCancel()

	// ── 7. Detect ─────────────────────────────────────────────────────
	det := t.detector.Wait(ctx, t.probe(page))
	slog.Debug("completion detector finished",
		"query", item.Query,
		"state", det.State,
		"reason", det.Reason,
		"polls", det.Polls,
	)

	// ── 8. Extract ────────────────────────────────────────────────────
	htmlCtx, htmlCancel := t.step(ctx)
	defer htmlCancel()
	html, err := page.HTML(htmlCtx)
	if err != nil {
		return "", det, models.Classify(err, models.ErrCodeInteractionTimeout, "failed to extract page HTML")
	}
	return html, det, nil
}

// step bounds a single page interaction.
func (t *Task) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.opts.InteractionTimeout)
}

// withInnerTimeout narrows ctx to d and returns a cancel that releases both.
func withInnerTimeout(ctx context.Context, outer context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	inner, cancel := context.WithTimeout(ctx, d)
	return inner, func() {
		cancel()
		outer()
	}
}

// dismissConsent clicks the cookie banner if one shows up in time. Every
// failure here is ignored.
func (t *Task) dismissConsent(ctx context.Context, page Page) {
	if t.target.Consent.Selector == "" {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, t.opts.ConsentTimeout)
	defer cancel()

	if ok, err := page.Exists(cctx, t.target.Consent); err != nil || !ok {
		return
	}
	if err := page.Click(cctx, t.target.Consent); err != nil {
		slog.Debug("consent banner click failed", "error", err)
		return
	}
	if settle := time.Duration(t.target.ConsentSettleMs) * time.Millisecond; settle > 0 {
		select {
		case <-ctx.Done():
		case <-t.clock.After(settle):
		}
	}
}

// submit tries each control in order and stops at the first successful click.
func (t *Task) submit(ctx context.Context, page Page) (config.Control, bool) {
	for _, c := range t.target.SubmitControls {
		if ctx.Err() != nil {
			break
		}
		cctx, cancel := context.WithTimeout(ctx, t.opts.ClickTimeout)
		ok, err := page.Exists(cctx, c)
		if err != nil || !ok {
			cancel()
			continue
		}
		err = page.Click(cctx, c)
		cancel()
		if err != nil {
			slog.Debug("submit candidate rejected click", "control", c.String(), "error", err)
			continue
		}
		return c, true
	}
	return config.Control{}, false
}

// probe builds the detector probe for page.
func (t *Task) probe(page Page) Probe {
	return func(ctx context.Context) (Observation, error) {
		var obs Observation
		has, err := page.Has(ctx, t.target.ResultsSelector)
		if err != nil {
			return obs, err
		}
		obs.Results = has
		if has || (t.noResults == nil && t.loading == nil) {
			return obs, nil
		}

		text, err := page.Text(ctx)
		if err != nil {
			return obs, err
		}
		if t.noResults != nil {
			obs.NoResults = t.noResults.MatchString(text)
		}
		if t.loading != nil {
			obs.Loading = t.loading.MatchString(text)
		}
		return obs, nil
	}
}
