package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/bizscout/models"
)

// PoolOptions sizes the resource pool.
type PoolOptions struct {
	SessionCount       int
	ContextsPerSession int

	// RetireScore, MaxUses and MaxAge feed each context's Health.
	RetireScore float64
	MaxUses     int
	MaxAge      time.Duration
}

// ExecutionContext is one isolated browser context. At most one fetch task
// holds it at a time; the checkout lock makes concurrent misuse wait instead
// of sharing session state.
type ExecutionContext struct {
	ID      string
	Session int

	mu     sync.Mutex // guards bc during recycling
	bc     BrowserContext
	lock   chan struct{}
	health *Health
	busy   atomic.Bool
}

// Checkout takes the context's lock, waiting until it is free or ctx ends.
func (c *ExecutionContext) Checkout(ctx context.Context) error {
	select {
	case c.lock <- struct{}{}:
		c.busy.Store(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryCheckout takes the lock only if it is free.
func (c *ExecutionContext) TryCheckout() bool {
	select {
	case c.lock <- struct{}{}:
		c.busy.Store(true)
		return true
	default:
		return false
	}
}

// Checkin releases the lock and records the task result.
func (c *ExecutionContext) Checkin(success bool) {
	if success {
		c.health.RecordSuccess()
	} else {
		c.health.RecordFailure()
	}
	c.release()
}

func (c *ExecutionContext) release() {
	c.busy.Store(false)
	<-c.lock
}

// Busy reports whether a task currently holds the context.
func (c *ExecutionContext) Busy() bool { return c.busy.Load() }

// NewPage opens a tab in the context.
func (c *ExecutionContext) NewPage(ctx context.Context) (Page, error) {
	c.mu.Lock()
	bc := c.bc
	c.mu.Unlock()
	return bc.NewPage(ctx)
}

// Health returns the context's health tracker.
func (c *ExecutionContext) Health() *Health { return c.health }

type session struct {
	id       int
	browser  Browser
	contexts []*ExecutionContext
}

// Pool owns the browser sessions and their execution contexts for the
// lifetime of a run. Contexts are never destroyed mid-batch; Recycle is
// only called between batches.
type Pool struct {
	launcher Launcher
	opts     PoolOptions

	mu       sync.Mutex
	sessions []*session
	contexts []*ExecutionContext
	closed   bool

	recycled atomic.Int32
}

// NewPool creates an empty pool. Call Initialize before use.
func NewPool(launcher Launcher, opts PoolOptions) *Pool {
	return &Pool{launcher: launcher, opts: opts}
}

// Initialize launches SessionCount browsers with ContextsPerSession contexts
// each. Any failure closes everything created so far and returns a
// POOL_INITIALIZATION_FAILED error.
func (p *Pool) Initialize(ctx context.Context) error {
	if p.opts.SessionCount < 1 || p.opts.ContextsPerSession < 1 {
		return models.NewFetchError(models.ErrCodePoolInit,
			fmt.Sprintf("invalid pool size: %d sessions x %d contexts", p.opts.SessionCount, p.opts.ContextsPerSession),
			nil,
		)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) > 0 {
		return nil
	}
	p.closed = false

	for s := 0; s < p.opts.SessionCount; s++ {
		browser, err := p.launcher.Launch(ctx)
		if err != nil {
			p.shutdownLocked()
			return models.NewFetchError(models.ErrCodePoolInit,
				fmt.Sprintf("failed to launch browser session %d", s), err)
		}
		sess := &session{id: s, browser: browser}
		p.sessions = append(p.sessions, sess)

		for k := 0; k < p.opts.ContextsPerSession; k++ {
			bc, err := browser.NewContext(ctx)
			if err != nil {
				p.shutdownLocked()
				return models.NewFetchError(models.ErrCodePoolInit,
					fmt.Sprintf("failed to create context %d in session %d", k, s), err)
			}
			ec := &ExecutionContext{
				ID:      fmt.Sprintf("s%d-c%d", s, k),
				Session: s,
				bc:      bc,
				lock:    make(chan struct{}, 1),
				health:  NewHealth(p.opts.RetireScore, p.opts.MaxUses, p.opts.MaxAge),
			}
			sess.contexts = append(sess.contexts, ec)
			p.contexts = append(p.contexts, ec)
		}
	}

	poolContexts.Set(float64(len(p.contexts)))
	slog.Info("resource pool initialised",
		"driver", p.launcher.Name(),
		"sessions", len(p.sessions),
		"contexts", len(p.contexts),
	)
	return nil
}

// Context returns the context at hint modulo the pool size. It never blocks.
func (p *Pool) Context(hint int) (*ExecutionContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.contexts)
	if n == 0 {
		return nil, models.ErrEmptyPool
	}
	return p.contexts[((hint%n)+n)%n], nil
}

// Size returns the number of execution contexts.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.contexts)
}

// Recycle replaces idle contexts whose health crossed the retirement
// threshold. Contexts held by a task are skipped. It returns how many were
// replaced.
func (p *Pool) Recycle(ctx context.Context) int {
	p.mu.Lock()
	sessions := append([]*session(nil), p.sessions...)
	p.mu.Unlock()

	replaced := 0
	for _, sess := range sessions {
		for _, ec := range sess.contexts {
			if !ec.health.ShouldRetire() || !ec.TryCheckout() {
				continue
			}
			fresh, err := sess.browser.NewContext(ctx)
			if err != nil {
				slog.Warn("pool: failed to recycle context, keeping the old one",
					"context", ec.ID, "error", err)
				ec.release()
				continue
			}
			ec.mu.Lock()
			old := ec.bc
			ec.bc = fresh
			ec.mu.Unlock()
			if err := old.Close(); err != nil {
				slog.Warn("pool: failed to close retired context", "context", ec.ID, "error", err)
			}
			slog.Debug("pool: context recycled", "context", ec.ID, "score", ec.health.Score())
			ec.health.Reset()
			ec.release()
			replaced++
		}
	}
	if replaced > 0 {
		p.recycled.Add(int32(replaced))
		poolRecyclesTotal.Add(float64(replaced))
	}
	return replaced
}

// Stats returns a snapshot of the pool's current state.
func (p *Pool) Stats() models.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := 0
	for _, ec := range p.contexts {
		if ec.Busy() {
			active++
		}
	}
	return models.PoolStats{
		Sessions:       len(p.sessions),
		Contexts:       len(p.contexts),
		ActiveContexts: active,
		Recycled:       int(p.recycled.Load()),
	}
}

// Shutdown closes every context, then every session. Failures are logged and
// collected; they never stop the remaining closes. Safe to call twice.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdownLocked()
}

func (p *Pool) shutdownLocked() error {
	if p.closed {
		return nil
	}
	var errs []error
	for _, sess := range p.sessions {
		for _, ec := range sess.contexts {
			ec.mu.Lock()
			err := ec.bc.Close()
			ec.mu.Unlock()
			if err != nil {
				slog.Warn("pool shutdown: failed to close context", "context", ec.ID, "error", err)
				errs = append(errs, fmt.Errorf("context %s: %w", ec.ID, err))
			}
		}
	}
	for _, sess := range p.sessions {
		if err := sess.browser.Close(); err != nil {
			slog.Warn("pool shutdown: failed to close session", "session", sess.id, "error", err)
			errs = append(errs, fmt.Errorf("session %d: %w", sess.id, err))
		}
	}
	p.sessions = nil
	p.contexts = nil
	p.closed = true
	poolContexts.Set(0)
	slog.Info("resource pool shut down", "errors", len(errs))
	return errors.Join(errs...)
}
