package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/use-agent/bizscout/config"
	"github.com/use-agent/bizscout/models"
)

// Service bundles a pool, limiter and task runner built from configuration.
// One Service can serve many runs; runs share the limiter and the pool.
type Service struct {
	pool     *Pool
	limiter  *Limiter
	task     *Task
	batch    config.BatchConfig
	cache    OutcomeCache
	clock    Clock
	launcher Launcher
}

// NewService builds every component without launching browsers.
func NewService(launcher Launcher, cfg *config.Config, cache OutcomeCache) (*Service, error) {
	return newService(launcher, cfg, cache, RealClock)
}

func newService(launcher Launcher, cfg *config.Config, cache OutcomeCache, clock Clock) (*Service, error) {
	pool := NewPool(launcher, PoolOptions{
		SessionCount:       cfg.Pool.SessionCount,
		ContextsPerSession: cfg.Pool.ContextsPerSession,
		RetireScore:        cfg.Pool.RetireScore,
	})
	limiter := NewLimiter(cfg.Limiter.MaxConcurrent)
	detector := NewDetector(DetectorOptions{
		PollInterval: cfg.Detector.PollInterval,
		GracePeriod:  cfg.Detector.GracePeriod,
		HardBudget:   cfg.Detector.HardBudget,
	}, clock)
	task, err := NewTask(pool, limiter, detector, cfg.Target, TaskOptions{
		NavigationTimeout:  cfg.Task.NavigationTimeout,
		InteractionTimeout: cfg.Task.InteractionTimeout,
		ConsentTimeout:     cfg.Task.ConsentTimeout,
		ClickTimeout:       cfg.Task.ClickTimeout,
		TaskTimeout:        cfg.Task.TaskTimeout,
		Retries:            cfg.Task.Retries,
		RetryBase:          cfg.Task.RetryBase,
	}, clock)
	if err != nil {
		return nil, err
	}
	return &Service{
		pool:     pool,
		limiter:  limiter,
		task:     task,
		batch:    cfg.Batch,
		cache:    cache,
		clock:    clock,
		launcher: launcher,
	}, nil
}

// Start launches the browser sessions.
func (s *Service) Start(ctx context.Context) error {
	return s.pool.Initialize(ctx)
}

// Lookup runs queries through a fresh orchestrator. onBatch may be nil.
func (s *Service) Lookup(ctx context.Context, queries []string, onBatch func(done, total int)) (models.BatchResult, error) {
	orch := NewOrchestrator(s.pool, s.limiter, s.task, OrchestratorOptions{
		BatchSize: s.batch.Size,
		Pause:     s.batch.Pause,
		Cache:     s.cache,
		OnBatch:   onBatch,
	}, s.clock)
	return orch.Run(ctx, queries)
}

// Stats returns pool and limiter utilisation.
func (s *Service) Stats() models.PoolStats {
	stats := s.pool.Stats()
	stats.MaxConcurrent = s.limiter.Max()
	stats.InFlight = s.limiter.InFlight()
	return stats
}

// Close shuts the pool down, then the launcher if it holds a driver process.
func (s *Service) Close() error {
	err := s.pool.Shutdown()
	if c, ok := s.launcher.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

// Search is the synchronous entry point: it launches the pool, runs every
// query, and shuts the pool down on return. SIGINT or SIGTERM cancels the run;
// unfinished items come back as failed outcomes and the pool is still closed.
func Search(ctx context.Context, launcher Launcher, cfg *config.Config, queries []string, cache OutcomeCache) (models.BatchResult, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := NewService(launcher, cfg, cache)
	if err != nil {
		return nil, err
	}
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("pool shutdown reported errors", "error", err)
		}
	}()

	return svc.Lookup(ctx, queries, nil)
}
