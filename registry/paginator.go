package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/use-agent/bizscout/config"
	"github.com/use-agent/bizscout/engine"
	"github.com/use-agent/bizscout/models"
)

// PageFetcher returns the raw body of one result page.
type PageFetcher interface {
	FetchPage(ctx context.Context, q Query, page int) ([]byte, error)
}

// Paginator walks result pages from 0 until one parses to zero records.
type Paginator struct {
	fetcher    PageFetcher
	maxRetries int
	delayMin   time.Duration
	delayMax   time.Duration
	jitter     bool

	// OnPage is called after each non-empty page. May be nil.
	OnPage func(page, records int)

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// NewPaginator returns a paginator with the configured retry and delay policy.
func NewPaginator(fetcher PageFetcher, cfg config.RegistryConfig) *Paginator {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	delayMax := cfg.DelayMax
	if delayMax < cfg.DelayMin {
		delayMax = cfg.DelayMin
	}
	return &Paginator{
		fetcher:    fetcher,
		maxRetries: maxRetries,
		delayMin:   cfg.DelayMin,
		delayMax:   delayMax,
		jitter:     cfg.Jitter,
		sleep:      sleepCtx,
		rand:       rand.Float64,
	}
}

// FetchAll returns every corporation matching q. When a page exhausts its
// retries, the records gathered so far are returned with a TRANSPORT_ERROR.
func (p *Paginator) FetchAll(ctx context.Context, q Query) ([]models.Corporation, error) {
	var all []models.Corporation
	for page := 0; ; page++ {
		body, err := p.fetchWithRetry(ctx, q, page)
		if err != nil {
			pagesTotal.WithLabelValues("failed").Inc()
			return all, err
		}

		records, err := Parse(body)
		if err != nil {
			pagesTotal.WithLabelValues("failed").Inc()
			return all, models.NewFetchError(models.ErrCodeTransport, fmt.Sprintf("parse page %d", page), err)
		}
		if len(records) == 0 {
			slog.Info("registry exhausted", "page", page, "total", len(all))
			return all, nil
		}
		pagesTotal.WithLabelValues("ok").Inc()
		all = append(all, records...)
		if p.OnPage != nil {
			p.OnPage(page, len(records))
		}
		slog.Debug("registry page fetched", "page", page, "records", len(records))

		if err := p.sleep(ctx, p.politeDelay()); err != nil {
			return all, models.Classify(err, models.ErrCodeTransport, "registry walk canceled")
		}
	}
}

func (p *Paginator) fetchWithRetry(ctx context.Context, q Query, page int) ([]byte, error) {
	var jitter func() float64
	if p.jitter {
		jitter = p.rand
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		body, err := p.fetcher.FetchPage(ctx, q, page)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, models.Classify(ctx.Err(), models.ErrCodeTransport, "registry walk canceled")
		}
		slog.Warn("registry page failed", "page", page, "attempt", attempt, "max", p.maxRetries, "error", err)
		if attempt == p.maxRetries {
			break
		}

		retriesTotal.Inc()
		// 2s, 4s, 8s, ...
		if err := p.sleep(ctx, engine.Backoff(attempt, time.Second, jitter)); err != nil {
			return nil, models.Classify(err, models.ErrCodeTransport, "registry walk canceled")
		}
	}
	return nil, models.NewFetchError(
		models.ErrCodeTransport,
		fmt.Sprintf("page %d failed after %d attempts", page, p.maxRetries),
		lastErr,
	)
}

// politeDelay is drawn uniformly from [delayMin, delayMax].
func (p *Paginator) politeDelay() time.Duration {
	span := p.delayMax - p.delayMin
	return p.delayMin + time.Duration(float64(span)*p.rand())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
