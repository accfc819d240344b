package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/bizscout/api"
	"github.com/use-agent/bizscout/api/handler"
	"github.com/use-agent/bizscout/cache"
	"github.com/use-agent/bizscout/engine"
	"github.com/use-agent/bizscout/extract"
	"github.com/use-agent/bizscout/scraper"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the HTTP API with a long-lived browser pool.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		slog.Info("bizscout starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"mode", cfg.Server.Mode,
			"sessions", cfg.Pool.SessionCount,
			"max_concurrent", cfg.Limiter.MaxConcurrent,
		)

		// ── 1. Launch the browser pool ──
		launcher, err := scraper.NewLauncher(cfg.Pool, cfg.Target)
		if err != nil {
			return err
		}
		var oc engine.OutcomeCache
		if cfg.Cache.MaxEntries > 0 {
			oc = cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		}
		svc, err := engine.NewService(launcher, cfg, oc)
		if err != nil {
			return err
		}
		if err := svc.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				slog.Warn("pool shutdown reported errors", "error", err)
			}
		}()

		// ── 2. Collaborators ──
		ext, err := extract.New(cfg.Target.ResultsSelector)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}

		// ── 3. Setup router ──
		router := api.NewRouter(handler.LookupDeps{
			Service:   svc,
			Extractor: ext,
			Store:     st,
			Webhook:   cfg.Webhook,
		}, cfg, time.Now())

		// ── 4. Start HTTP server ──
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		serveErr := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()

		// ── 5. Graceful shutdown ──
		select {
		case err := <-serveErr:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
			slog.Info("shutdown signal received")
		}

		// Give in-flight requests 5 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}
		slog.Info("bizscout stopped")
		return nil
	},
}
