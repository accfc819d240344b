package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to CDP resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"image":      proto.NetworkResourceTypeImage,
	"stylesheet": proto.NetworkResourceTypeStylesheet,
	"font":       proto.NetworkResourceTypeFont,
	"media":      proto.NetworkResourceTypeMedia,
	"script":     proto.NetworkResourceTypeScript,
}

// trackerDomains are analytics hosts the registry pages load. They never
// affect the search form, so they are always blocked.
var trackerDomains = map[string]struct{}{
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"doubleclick.net":       {},
	"googleadservices.com":  {},
	"googlesyndication.com": {},
	"facebook.net":          {},
	"hotjar.com":            {},
	"clarity.ms":            {},
	"adobedtm.com":          {},
	"demdex.net":            {},
	"omtrdc.net":            {},
	"scorecardresearch.com": {},
	"newrelic.com":          {},
	"nr-data.net":           {},
}

// isTrackerHost reports whether host or any parent domain is a tracker.
func isTrackerHost(host string) bool {
	host = strings.ToLower(host)
	for host != "" {
		if _, ok := trackerDomains[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return false
}

// blocker decides which requests a page may make.
type blocker struct {
	types map[proto.NetworkResourceType]struct{}
}

func newBlocker(names []string) *blocker {
	b := &blocker{types: make(map[proto.NetworkResourceType]struct{}, len(names))}
	for _, name := range names {
		if rt, ok := resourceTypes[strings.ToLower(strings.TrimSpace(name))]; ok {
			b.types[rt] = struct{}{}
		}
	}
	return b
}

// blocks reports whether a request of type rt to rawURL should fail.
func (b *blocker) blocks(rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := b.types[rt]; ok {
		return true
	}
	u, err := url.Parse(rawURL)
	return err == nil && isTrackerHost(u.Hostname())
}

// mount installs the interceptor on page. The returned router must be
// stopped when the page closes.
func (b *blocker) mount(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if b.blocks(h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	// Run blocks until Stop.
	go router.Run()
	return router
}
