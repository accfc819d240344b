package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/bizscout/config"
	"github.com/use-agent/bizscout/engine"
	"github.com/ysmood/gson"
)

// RodLauncher starts one Chrome process per session over CDP.
type RodLauncher struct {
	cfg    config.PoolConfig
	target config.Target

	mu       sync.Mutex
	launched int
}

// NewRodLauncher returns a launcher configured from the pool settings.
func NewRodLauncher(cfg config.PoolConfig, target config.Target) *RodLauncher {
	return &RodLauncher{cfg: cfg, target: target}
}

func (r *RodLauncher) Name() string { return "rod" }

// Launch starts a Chrome process and connects to it.
func (r *RodLauncher) Launch(ctx context.Context) (engine.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := launcher.New().
		Headless(r.cfg.Headless).
		NoSandbox(r.cfg.NoSandbox)

	if r.cfg.BrowserBin != "" {
		l = l.Bin(r.cfg.BrowserBin)
	}
	if r.cfg.Proxy != "" {
		l = l.Proxy(r.cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	if vp := r.target.Viewport; vp.Width > 0 && vp.Height > 0 {
		l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", vp.Width, vp.Height))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	r.mu.Lock()
	r.launched++
	n := r.launched
	r.mu.Unlock()
	slog.Info("browser launched", "driver", "rod", "session", n, "controlURL", controlURL)

	return &rodBrowser{browser: browser, launcher: l, cfg: r.cfg, target: r.target}, nil
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.PoolConfig
	target   config.Target
}

// NewContext creates an incognito browser context.
func (b *rodBrowser) NewContext(ctx context.Context) (engine.BrowserContext, error) {
	incognito, err := b.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	// Drop the init ctx so later pages are not bound to it.
	return &rodContext{incognito: incognito.Context(context.Background()), cfg: b.cfg, target: b.target}, nil
}

// Close closes the browser and removes its user data dir.
func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	if err != nil {
		b.launcher.Kill()
	}
	b.launcher.Cleanup()
	return err
}

type rodContext struct {
	incognito *rod.Browser
	cfg       config.PoolConfig
	target    config.Target
}

// NewPage opens a tab and prepares it before any navigation:
//
//  1. Viewport and user agent
//  2. Extra headers
//  3. Stealth script
//  4. Resource blocking
func (c *rodContext) NewPage(ctx context.Context) (engine.Page, error) {
	page, err := c.incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	p := page.Context(ctx)

	// ── 1. Viewport and user agent ───────────────────────────────────
	if vp := c.target.Viewport; vp.Width > 0 && vp.Height > 0 {
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             vp.Width,
			Height:            vp.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	if c.target.UserAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      c.target.UserAgent,
			AcceptLanguage: acceptLanguage,
		}); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	// ── 2. Extra headers ─────────────────────────────────────────────
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(extraHeaders())}.Call(p)

	// ── 3. Stealth ───────────────────────────────────────────────────
	if c.cfg.Stealth {
		if _, err := p.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	// ── 4. Resource blocking ─────────────────────────────────────────
	router := newBlocker(c.cfg.BlockedResourceTypes).mount(page)

	return &rodPage{page: page, router: router}, nil
}

// Close disposes the incognito context and every page in it.
func (c *rodContext) Close() error {
	return c.incognito.Close()
}

type rodPage struct {
	page   *rod.Page
	router *rod.HijackRouter
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	return p.page.Context(ctx).Navigate(url)
}

func (p *rodPage) Fill(ctx context.Context, selector, value string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

func (p *rodPage) Exists(ctx context.Context, c config.Control) (bool, error) {
	pc := p.page.Context(ctx)
	if c.Text == "" {
		has, _, err := pc.Has(c.Selector)
		return has, err
	}
	has, _, err := pc.HasR(c.Selector, textPattern(c.Text))
	return has, err
}

func (p *rodPage) Click(ctx context.Context, c config.Control) error {
	pc := p.page.Context(ctx)
	var (
		el  *rod.Element
		err error
	)
	if c.Text == "" {
		el, err = pc.Element(c.Selector)
	} else {
		el, err = pc.ElementR(c.Selector, textPattern(c.Text))
	}
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) WaitLoad(ctx context.Context) error {
	return p.page.Context(ctx).Wait(rod.Eval(`() => document.readyState !== "loading"`))
}

func (p *rodPage) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	return has, err
}

func (p *rodPage) Text(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
	}
	return p.page.Close()
}

// textPattern turns visible text into a case-insensitive JS regex literal,
// matching the substring semantics of a has-text selector.
func textPattern(text string) string {
	return "/" + strings.ReplaceAll(regexp.QuoteMeta(text), "/", `\/`) + "/i"
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
