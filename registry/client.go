// Package registry pages through the federal corporation search.
package registry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http/cookiejar"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/use-agent/bizscout/config"
)

// Acts and statuses understood by the search form.
const (
	ActNotForProfit = "14"
	ActCooperatives = "12"
	StatusActive    = "1"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Firefox/109.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/109.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.2 Safari/605.1.15",
}

// Query holds the search form fields. Empty fields are sent empty.
type Query struct {
	Name              string
	CorporationNumber string
	BusinessNumber    string
	Province          string
	Status            string // default: StatusActive
	Act               string // default: ActNotForProfit
}

func (q Query) params(page int) map[string]string {
	status, act := q.Status, q.Act
	if status == "" {
		status = StatusActive
	}
	if act == "" {
		act = ActNotForProfit
	}
	return map[string]string{
		"crpNm":   q.Name,
		"crpNmbr": q.CorporationNumber,
		"bsNmbr":  q.BusinessNumber,
		"cProv":   q.Province,
		"cStatus": status,
		"cAct":    act,
		"p":       strconv.Itoa(page),
	}
}

// Client fetches single result pages. It keeps cookies across requests.
type Client struct {
	http    *resty.Client
	baseURL string
}

// NewClient builds a resty client over the configured TLS transport.
func NewClient(cfg config.RegistryConfig) (*Client, error) {
	transport, err := NewTransport(cfg.Fingerprint, cfg.Proxy)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTransport(transport)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("Accept-Language", "en-CA,en;q=0.9")

	return &Client{http: client, baseURL: cfg.BaseURL}, nil
}

// FetchPage GETs one page of results and returns the body.
// Any non-2xx status is an error.
func (c *Client) FetchPage(ctx context.Context, q Query, page int) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("User-Agent", userAgents[rand.IntN(len(userAgents))]).
		SetQueryParams(q.params(page)).
		Get(c.baseURL)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("registry: HTTP %d for page %d", res.StatusCode(), page)
	}
	return res.Body(), nil
}
