package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/bizscout/models"
)

// OutcomeCache stores successful outcomes by query.
type OutcomeCache interface {
	Get(query string) (models.FetchOutcome, bool)
	Set(query string, outcome models.FetchOutcome)
}

// OrchestratorOptions controls batching.
type OrchestratorOptions struct {
	// BatchSize defaults to the limiter's permit count.
	BatchSize int

	// Pause is slept between consecutive batches, never after the last.
	Pause time.Duration

	// Cache, when set, answers repeated queries without a browser.
	Cache OutcomeCache

	// OnBatch is called after each batch with the number of finished items.
	OnBatch func(done, total int)
}

// Orchestrator runs a list of queries as sequential batches of concurrent
// fetch tasks.
type Orchestrator struct {
	pool    *Pool
	limiter *Limiter
	task    *Task
	opts    OrchestratorOptions
	clock   Clock
}

// NewOrchestrator wires an orchestrator over an initialised pool.
func NewOrchestrator(pool *Pool, limiter *Limiter, task *Task, opts OrchestratorOptions, clock Clock) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = limiter.Max()
	}
	if clock == nil {
		clock = RealClock
	}
	return &Orchestrator{pool: pool, limiter: limiter, task: task, opts: opts, clock: clock}
}

// Partition splits items into contiguous batches of size n. The last batch
// holds the remainder.
func Partition(items []models.WorkItem, n int) [][]models.WorkItem {
	if n <= 0 {
		n = 1
	}
	batches := make([][]models.WorkItem, 0, (len(items)+n-1)/n)
	for start := 0; start < len(items); start += n {
		end := min(start+n, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

// Run looks up every query and returns one outcome per query, in input
// order. Only an empty pool is reported as an error; per-item failures are
// outcomes. A cancelled ctx makes the remaining items fail fast instead of
// being dropped.
func (o *Orchestrator) Run(ctx context.Context, queries []string) (models.BatchResult, error) {
	if o.pool.Size() == 0 {
		return nil, models.ErrEmptyPool
	}

	items := models.NewWorkItems(queries)
	batches := Partition(items, o.opts.BatchSize)
	results := make(models.BatchResult, 0, len(items))

	slog.Info("lookup run starting",
		"items", len(items),
		"batches", len(batches),
		"batchSize", o.opts.BatchSize,
		"maxConcurrent", o.limiter.Max(),
	)
	runStart := time.Now()

	for b, batch := range batches {
		if b > 0 {
			if n := o.pool.Recycle(ctx); n > 0 {
				slog.Info("recycled unhealthy contexts", "count", n)
			}
			if o.opts.Pause > 0 {
				select {
				case <-ctx.Done():
				case <-o.clock.After(o.opts.Pause):
				}
			}
		}

		batchStart := time.Now()
		outcomes := o.runBatch(ctx, batch)
		results = append(results, outcomes...)
		batchesTotal.Inc()

		ok, failed := models.BatchResult(outcomes).Counts()
		slog.Info("batch finished",
			"batch", b+1,
			"of", len(batches),
			"succeeded", ok,
			"failed", failed,
			"duration", time.Since(batchStart).Round(time.Millisecond),
		)
		if o.opts.OnBatch != nil {
			o.opts.OnBatch(len(results), len(items))
		}
	}

	ok, failed := results.Counts()
	slog.Info("lookup run finished",
		"items", len(results),
		"succeeded", ok,
		"failed", failed,
		"duration", time.Since(runStart).Round(time.Millisecond),
	)
	return results, nil
}

// runBatch fans out one task per item and waits for all of them. The task
// hint is the item's position within the batch.
func (o *Orchestrator) runBatch(ctx context.Context, batch []models.WorkItem) []models.FetchOutcome {
	outcomes := make([]models.FetchOutcome, len(batch))
	var wg sync.WaitGroup

	for pos, item := range batch {
		if o.opts.Cache != nil {
			if cached, ok := o.opts.Cache.Get(item.Query); ok {
				cached.Index = item.Index
				cached.Query = item.Query
				cached.Elapsed = 0
				cached.Attempts = 0
				cached.Cached = true
				outcomes[pos] = cached
				continue
			}
		}

		wg.Add(1)
		go func(pos int, item models.WorkItem) {
			defer wg.Done()
			outcomes[pos] = o.task.Run(ctx, item, pos)
		}(pos, item)
	}
	wg.Wait()

	if o.opts.Cache != nil {
		for _, out := range outcomes {
			if out.Success && !out.Cached {
				o.opts.Cache.Set(out.Query, out)
			}
		}
	}
	return outcomes
}
