package engine

import (
	"context"

	"github.com/use-agent/bizscout/config"
)

// Launcher starts browser sessions. Implementations live in the scraper
// package (rod, playwright); engine never imports them.
type Launcher interface {
	// Name returns the driver identifier (e.g. "rod", "playwright").
	Name() string

	// Launch starts one browser process.
	Launch(ctx context.Context) (Browser, error)
}

// Browser is one launched browser process.
type Browser interface {
	// NewContext creates an isolated context with its own cookies and storage.
	NewContext(ctx context.Context) (BrowserContext, error)
	Close() error
}

// BrowserContext is an isolated browsing context owned by one Browser.
type BrowserContext interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab. Every blocking method honours ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error

	// Fill waits for the element to appear, then replaces its value.
	Fill(ctx context.Context, selector, value string) error

	// Exists reports whether the control is present right now, without waiting.
	Exists(ctx context.Context, c config.Control) (bool, error)

	// Click clicks the first element matching the control.
	Click(ctx context.Context, c config.Control) error

	// WaitLoad waits for the DOMContentLoaded event of the current document.
	WaitLoad(ctx context.Context) error

	// Has reports whether selector matches at least one element, without waiting.
	Has(ctx context.Context, selector string) (bool, error)

	// Text returns the visible text of the document body.
	Text(ctx context.Context) (string, error)

	HTML(ctx context.Context) (string, error)
	Close() error
}
