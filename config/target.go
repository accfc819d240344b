package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// Control identifies a clickable element either by CSS selector alone or by
// selector plus visible text.
type Control struct {
	Selector string `json:"selector"`
	Text     string `json:"text,omitempty"`
}

func (c Control) String() string {
	if c.Text != "" {
		return fmt.Sprintf("%s:has-text(%q)", c.Selector, c.Text)
	}
	return c.Selector
}

// Viewport is the browser window size of each execution context.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Target describes the search page a fetch task drives.
type Target struct {
	Name      string `json:"name"`
	SearchURL string `json:"search_url"`

	// Consent is the cookie banner button; clicking it is best-effort.
	Consent Control `json:"consent"`

	// ConsentSettle is how long to wait after dismissing the banner.
	ConsentSettleMs int `json:"consent_settle_ms"`

	InputSelector string `json:"input_selector"`

	// InputWaitMs bounds the wait for the query input to appear.
	InputWaitMs int `json:"input_wait_ms"`

	// SubmitControls are tried in order; the first that exists and accepts
	// a click wins.
	SubmitControls []Control `json:"submit_controls"`

	ResultsSelector  string `json:"results_selector"`
	NoResultsPattern string `json:"no_results_pattern"`
	LoadingPattern   string `json:"loading_pattern"`

	UserAgent string   `json:"user_agent"`
	Viewport  Viewport `json:"viewport"`
}

// DefaultTarget is the Ontario business registry search profile.
func DefaultTarget() Target {
	return Target{
		Name:            "onbis",
		SearchURL:       "https://www.appmybizaccount.gov.on.ca/onbis/master/entry.pub?applicationCode=onbis-master&businessService=registerItemSearch",
		Consent:         Control{Selector: "button", Text: "Accept all"},
		ConsentSettleMs: 500,
		InputSelector:   "#QueryString",
		InputWaitMs:     10000,
		SubmitControls: []Control{
			{Selector: "button[type='submit']"},
			{Selector: "input[type='submit']"},
			{Selector: "button", Text: "Search"},
			{Selector: "button", Text: "SEARCH"},
			{Selector: "input[value='Search']"},
			{Selector: "input[value='SEARCH']"},
			{Selector: "#nodeW20"},
		},
		ResultsSelector:  "div.registerItemSearch-results-page-line-ItemBox",
		NoResultsPattern: "No results found|No matches found",
		LoadingPattern:   "Loading|Searching|Please wait",
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Viewport:         Viewport{Width: 1920, Height: 1080},
	}
}

// Patterns compiles the case-insensitive text patterns of the target.
func (t Target) Patterns() (noResults, loading *regexp.Regexp, err error) {
	if noResults, err = compileFold(t.NoResultsPattern); err != nil {
		return nil, nil, fmt.Errorf("config: no_results_pattern: %w", err)
	}
	if loading, err = compileFold(t.LoadingPattern); err != nil {
		return nil, nil, fmt.Errorf("config: loading_pattern: %w", err)
	}
	return noResults, loading, nil
}

func compileFold(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile("(?i)" + pattern)
}

// Validate checks the fields a fetch task cannot run without.
func (t Target) Validate() error {
	switch {
	case t.SearchURL == "":
		return fmt.Errorf("config: target %q has no search_url", t.Name)
	case t.InputSelector == "":
		return fmt.Errorf("config: target %q has no input_selector", t.Name)
	case len(t.SubmitControls) == 0:
		return fmt.Errorf("config: target %q has no submit_controls", t.Name)
	case t.ResultsSelector == "":
		return fmt.Errorf("config: target %q has no results_selector", t.Name)
	}
	_, _, err := t.Patterns()
	return err
}

// LoadTarget reads a JSON5 target profile and merges it over DefaultTarget.
// A sibling "<name>.local.<ext>" file, when present, takes priority over
// the main file.
func LoadTarget(path string) (Target, error) {
	out := DefaultTarget()

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	local := filepath.Join(dir, base+".local"+ext)

	found := false
	for _, name := range []string{path, local} {
		raw, err := os.ReadFile(name)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return out, fmt.Errorf("config: read %s: %w", name, err)
		}
		var override Target
		if err := json5.Unmarshal(raw, &override); err != nil {
			return out, fmt.Errorf("config: parse %s: %w", name, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("config: merge %s: %w", name, err)
		}
		found = true
	}
	if !found {
		slog.Warn("target profile not found, using defaults", "path", path)
	}
	return out, out.Validate()
}
