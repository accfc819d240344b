package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/stealth"
	"github.com/playwright-community/playwright-go"
	"github.com/use-agent/bizscout/config"
	"github.com/use-agent/bizscout/engine"
)

// defaultOpTimeout bounds a playwright call whose ctx has no deadline.
const defaultOpTimeout = 30 * time.Second

// PlaywrightLauncher drives Chromium through the playwright driver process.
// The driver starts on the first Launch and stops on Close.
type PlaywrightLauncher struct {
	cfg    config.PoolConfig
	target config.Target

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightLauncher returns a launcher configured from the pool settings.
func NewPlaywrightLauncher(cfg config.PoolConfig, target config.Target) *PlaywrightLauncher {
	return &PlaywrightLauncher{cfg: cfg, target: target}
}

func (l *PlaywrightLauncher) Name() string { return "playwright" }

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pw != nil {
		return l.pw, nil
	}

	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	l.pw = pw
	return pw, nil
}

// Launch starts one Chromium process.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (engine.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.cfg.Headless),
		Args:     []string{"--disable-blink-features=AutomationControlled"},
		Timeout:  timeoutMs(ctx),
	}
	if l.cfg.NoSandbox {
		opts.ChromiumSandbox = playwright.Bool(false)
	}
	if l.cfg.BrowserBin != "" {
		opts.ExecutablePath = playwright.String(l.cfg.BrowserBin)
	}
	if l.cfg.Proxy != "" {
		opts.Proxy = &playwright.Proxy{Server: l.cfg.Proxy}
	}

	browser, err := pw.Chromium.Launch(opts)
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	slog.Info("browser launched", "driver", "playwright", "version", browser.Version())
	return &pwBrowser{browser: browser, cfg: l.cfg, target: l.target}, nil
}

// Close stops the driver process.
func (l *PlaywrightLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	return err
}

type pwBrowser struct {
	browser playwright.Browser
	cfg     config.PoolConfig
	target  config.Target
}

func (b *pwBrowser) NewContext(ctx context.Context) (engine.BrowserContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := playwright.BrowserNewContextOptions{
		ExtraHttpHeaders: extraHeaders(),
	}
	if vp := b.target.Viewport; vp.Width > 0 && vp.Height > 0 {
		opts.Viewport = &playwright.Size{Width: vp.Width, Height: vp.Height}
	}
	if b.target.UserAgent != "" {
		opts.UserAgent = playwright.String(b.target.UserAgent)
	}

	bc, err := b.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}

	if b.cfg.Stealth {
		if err := bc.AddInitScript(playwright.Script{Content: playwright.String(stealth.JS)}); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	blk := newBlocker(b.cfg.BlockedResourceTypes)
	if err := bc.Route("**/*", func(route playwright.Route) {
		req := route.Request()
		if blk.blocksName(req.ResourceType(), req.URL()) {
			_ = route.Abort("blockedbyclient")
			return
		}
		_ = route.Continue()
	}); err != nil {
		_ = bc.Close()
		return nil, fmt.Errorf("install request filter: %w", err)
	}

	return &pwContext{bc: bc}, nil
}

func (b *pwBrowser) Close() error {
	return b.browser.Close()
}

type pwContext struct {
	bc playwright.BrowserContext
}

func (c *pwContext) NewPage(ctx context.Context) (engine.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := c.bc.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return &pwPage{page: page}, nil
}

func (c *pwContext) Close() error {
	return c.bc.Close()
}

// pwPage maps ctx deadlines onto playwright's millisecond timeouts.
type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMs(ctx),
	})
	return asCtxErr(ctx, err)
}

func (p *pwPage) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: timeoutMs(ctx),
	})
	return asCtxErr(ctx, err)
}

func (p *pwPage) Exists(ctx context.Context, c config.Control) (bool, error) {
	return p.Has(ctx, c.String())
}

func (p *pwPage) Click(ctx context.Context, c config.Control) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.Locator(c.String()).First().Click(playwright.LocatorClickOptions{
		Timeout: timeoutMs(ctx),
	})
	return asCtxErr(ctx, err)
}

func (p *pwPage) WaitLoad(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: timeoutMs(ctx),
	})
	return asCtxErr(ctx, err)
}

func (p *pwPage) Has(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n, err := p.page.Locator(selector).Count()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *pwPage) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := p.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{
		Timeout: timeoutMs(ctx),
	})
	return text, asCtxErr(ctx, err)
}

func (p *pwPage) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

// timeoutMs converts the remaining time on ctx to a playwright timeout.
func timeoutMs(ctx context.Context) *float64 {
	d := defaultOpTimeout
	if deadline, ok := ctx.Deadline(); ok {
		d = time.Until(deadline)
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	ms := float64(d.Milliseconds())
	return &ms
}

// asCtxErr reports a playwright timeout as the ctx error when ctx expired,
// so the task classifies it like the other driver does.
func asCtxErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

// blocksName is blocks for drivers that report lowercase resource type names.
func (b *blocker) blocksName(resourceType, rawURL string) bool {
	return b.blocks(resourceTypes[strings.ToLower(resourceType)], rawURL)
}
