// Package scraper provides the browser drivers behind engine.Launcher.
package scraper

import (
	"fmt"
	"strings"

	"github.com/use-agent/bizscout/config"
	"github.com/use-agent/bizscout/engine"
)

// acceptLanguage is sent with every page request. The search form renders
// English labels for it, which the submit controls rely on.
const acceptLanguage = "en-CA,en;q=0.9"

// NewLauncher returns the driver named by cfg.Driver.
func NewLauncher(cfg config.PoolConfig, target config.Target) (engine.Launcher, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "rod":
		return NewRodLauncher(cfg, target), nil
	case "playwright":
		return NewPlaywrightLauncher(cfg, target), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}

// extraHeaders returns the headers every new page is configured with.
func extraHeaders() map[string]string {
	return map[string]string{
		"Accept-Language": acceptLanguage,
	}
}
