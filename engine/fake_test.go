package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/bizscout/config"
)

// fakeDriver is an in-memory browser. Query prefixes steer page behaviour:
//
//	fail-submit  no submit control exists
//	reject-first the first submit control refuses the click
//	panic        Fill panics
//	none         the page shows the "no results" text
//	loading      the page keeps showing a loading indicator
type fakeDriver struct {
	mu sync.Mutex

	launchErrAt  int // 1-based launch that fails; 0 never
	contextErrAt int // 1-based context creation that fails; 0 never
	closeErr     error
	navFailures  int // navigations that fail with a deadline error
	hold         time.Duration
	fillDelay    time.Duration
	consent      string // "", "block-exists" or "block-click"

	launches int
	created  int
	browsers []*fakeBrowser
	contexts []*fakeContext
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Launch(ctx context.Context) (Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launches++
	if d.launchErrAt == d.launches {
		return nil, errors.New("chrome exited")
	}
	b := &fakeBrowser{d: d, id: d.launches}
	d.browsers = append(d.browsers, b)
	return b, nil
}

func (d *fakeDriver) openContexts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.contexts {
		if !c.isClosed() {
			n++
		}
	}
	return n
}

func (d *fakeDriver) openBrowsers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, b := range d.browsers {
		if !b.isClosed() {
			n++
		}
	}
	return n
}

type fakeBrowser struct {
	d      *fakeDriver
	id     int
	mu     sync.Mutex
	closed bool
}

func (b *fakeBrowser) NewContext(ctx context.Context) (BrowserContext, error) {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	b.d.created++
	if b.d.contextErrAt == b.d.created {
		return nil, errors.New("target crashed")
	}
	c := &fakeContext{d: b.d, name: fmt.Sprintf("b%d-%d", b.id, b.d.created)}
	b.d.contexts = append(b.d.contexts, c)
	return c, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBrowser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type fakeContext struct {
	d    *fakeDriver
	name string

	mu        sync.Mutex
	closed    bool
	active    int
	maxActive int
	clicks    []string
}

func (c *fakeContext) NewPage(ctx context.Context) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("context closed")
	}
	c.active++
	c.maxActive = max(c.maxActive, c.active)
	return &fakePage{c: c}, nil
}

func (c *fakeContext) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.d.closeErr
}

func (c *fakeContext) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeContext) peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxActive
}

type fakePage struct {
	c     *fakeContext
	query string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	d := p.c.d
	d.mu.Lock()
	fail := d.navFailures > 0
	if fail {
		d.navFailures--
	}
	hold := d.hold
	d.mu.Unlock()
	if fail {
		return fmt.Errorf("navigate %s: %w", url, context.DeadlineExceeded)
	}
	if hold > 0 {
		select {
		case <-time.After(hold):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	if strings.HasPrefix(value, "panic") {
		panic("renderer crashed")
	}
	p.query = value
	p.c.d.mu.Lock()
	delay := p.c.d.fillDelay
	p.c.d.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}

func (p *fakePage) consentMode() string {
	p.c.d.mu.Lock()
	defer p.c.d.mu.Unlock()
	return p.c.d.consent
}

func (p *fakePage) Exists(ctx context.Context, c config.Control) (bool, error) {
	if c.Text == "Accept all" {
		switch p.consentMode() {
		case "block-exists":
			<-ctx.Done()
			return false, ctx.Err()
		case "block-click":
			return true, nil
		}
		return false, nil
	}
	return !strings.HasPrefix(p.query, "fail-submit"), nil
}

func (p *fakePage) Click(ctx context.Context, c config.Control) error {
	if c.Text == "Accept all" && p.consentMode() == "block-click" {
		<-ctx.Done()
		return ctx.Err()
	}
	if strings.HasPrefix(p.query, "reject-first") && c.Selector == "button[type='submit']" {
		return errors.New("element is covered")
	}
	p.c.mu.Lock()
	p.c.clicks = append(p.c.clicks, c.String())
	p.c.mu.Unlock()
	return nil
}

func (p *fakePage) WaitLoad(ctx context.Context) error { return nil }

func (p *fakePage) Has(ctx context.Context, selector string) (bool, error) {
	return !strings.HasPrefix(p.query, "none") && !strings.HasPrefix(p.query, "loading"), nil
}

func (p *fakePage) Text(ctx context.Context) (string, error) {
	switch {
	case strings.HasPrefix(p.query, "none"):
		return "No results found for " + p.query, nil
	case strings.HasPrefix(p.query, "loading"):
		return "Loading...", nil
	}
	return p.query, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "<html><body>" + p.query + "</body></html>", nil
}

func (p *fakePage) Close() error {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.active--
	return nil
}

// fakeClock advances instantly on After and records every wait.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 11, 9, 14, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

func testConfig(maxConcurrent, sessions, contexts int) *config.Config {
	cfg := config.Load()
	cfg.Limiter.MaxConcurrent = maxConcurrent
	cfg.Batch.Size = maxConcurrent
	cfg.Batch.Pause = 2 * time.Second
	cfg.Pool.SessionCount = sessions
	cfg.Pool.ContextsPerSession = contexts
	cfg.Task.Retries = 1
	cfg.Task.RetryBase = 0
	cfg.Task.TaskTimeout = 10 * time.Second
	cfg.Target = config.DefaultTarget()
	return cfg
}
