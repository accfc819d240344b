// Package commands implements the bizscout command line.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/bizscout/config"
	"github.com/use-agent/bizscout/store"
)

var (
	targetPath *string
	logLevel   *string
	dbPath     *string

	// cfg is loaded once before any subcommand runs.
	cfg *config.Config
)

func init() {
	targetPath = rootCmd.PersistentFlags().String("target", "", "JSON5 target site profile merged over the built-in defaults.")
	logLevel = rootCmd.PersistentFlags().String("log-level", "", "Overrides BIZSCOUT_LOG_LEVEL.")
	dbPath = rootCmd.PersistentFlags().String("db", "", "SQLite database for runs (overrides BIZSCOUT_DB_PATH, \"-\" disables).")
}

var rootCmd = &cobra.Command{
	Use:           "bizscout",
	Short:         "bizscout looks up business names in public registries.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if *logLevel != "" {
			cfg.Log.Level = *logLevel
		}
		if *dbPath != "" {
			cfg.Store.Path = *dbPath
		}
		if cfg.Store.Path == "-" {
			cfg.Store.Path = ""
		}
		initLogger(cfg.Log)

		if *targetPath != "" {
			target, err := config.LoadTarget(*targetPath)
			if err != nil {
				return err
			}
			cfg.Target = target
		}
		return nil
	},
}

// ExecuteContext runs the command line and exits non-zero on error.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger configures slog based on the LogConfig. Logs go to stderr;
// stdout carries tables and reports.
func initLogger(lc config.LogConfig) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if lc.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// openStore opens the configured database, or returns nil when persistence
// is disabled.
func openStore() (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	return store.Open(cfg.Store.Path)
}
