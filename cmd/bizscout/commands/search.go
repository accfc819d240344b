package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/use-agent/bizscout/cache"
	"github.com/use-agent/bizscout/engine"
	"github.com/use-agent/bizscout/extract"
	"github.com/use-agent/bizscout/models"
	"github.com/use-agent/bizscout/report"
	"github.com/use-agent/bizscout/scraper"
	"github.com/use-agent/bizscout/source"
	"github.com/use-agent/bizscout/store"
)

var (
	searchInput       *string
	searchOut         *string
	searchJSON        *string
	searchDump        *string
	searchIncludeHTML *bool
)

func init() {
	searchInput = searchCmd.Flags().StringP("input", "i", "", "File of names: .txt (one per line), .json, .csv or .geojson.")
	searchOut = searchCmd.Flags().StringP("out", "o", "search_results.csv", "CSV file for the outcomes (\"\" to skip).")
	searchJSON = searchCmd.Flags().String("json", "", "Also write the outcomes as JSON.")
	searchDump = searchCmd.Flags().String("dump", "", "Directory for per-query HTML and Markdown snapshots.")
	searchIncludeHTML = searchCmd.Flags().Bool("include-html", true, "Include the results HTML column in the CSV.")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search [names...] [--input <file>]",
	Short: "Searches the business registry for each name with a pool of browsers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// ── 1. Collect queries ──
		queries := args
		if *searchInput != "" {
			loaded, err := source.LoadQueries(*searchInput)
			if err != nil {
				return err
			}
			queries = append(queries, loaded...)
		}
		queries = source.Dedupe(queries)
		if len(queries) == 0 {
			return fmt.Errorf("no names to search: pass names as arguments or --input")
		}

		// ── 2. Build the launcher and cache ──
		launcher, err := scraper.NewLauncher(cfg.Pool, cfg.Target)
		if err != nil {
			return err
		}
		var oc engine.OutcomeCache
		if cfg.Cache.MaxEntries > 0 {
			oc = cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		}

		slog.Info("search starting",
			"queries", len(queries),
			"driver", launcher.Name(),
			"sessions", cfg.Pool.SessionCount,
			"max_concurrent", cfg.Limiter.MaxConcurrent,
		)

		// ── 3. Run ──
		started := time.Now()
		result, err := engine.Search(cmd.Context(), launcher, cfg, queries, oc)
		if err != nil {
			return err
		}
		succeeded, failed := result.Counts()
		slog.Info("search finished",
			"succeeded", succeeded,
			"failed", failed,
			"elapsed", time.Since(started).Round(time.Millisecond),
		)

		// ── 4. Report ──
		report.OutcomeTable(os.Stdout, result)
		return writeSearchOutputs(cmd, result, started)
	},
}

func writeSearchOutputs(cmd *cobra.Command, result models.BatchResult, started time.Time) error {
	if *searchOut != "" {
		err := report.WriteFile(*searchOut, func(w io.Writer) error {
			return report.WriteOutcomesCSV(w, result, *searchIncludeHTML)
		})
		if err != nil {
			return err
		}
		slog.Info("outcomes written", "path", *searchOut)
	}
	if *searchJSON != "" {
		err := report.WriteFile(*searchJSON, func(w io.Writer) error {
			return report.WriteJSON(w, result)
		})
		if err != nil {
			return err
		}
	}
	if *searchDump != "" {
		ext, err := extract.New(cfg.Target.ResultsSelector)
		if err != nil {
			return err
		}
		if err := report.DumpPages(*searchDump, result, ext); err != nil {
			return err
		}
	}

	id, err := storeLookup(cmd.Context(), result, started)
	if err != nil {
		return err
	}
	if id != "" {
		slog.Info("run stored", "id", id, "db", cfg.Store.Path)
	}
	return nil
}

// storeLookup saves the run when a database is configured and returns its id.
// An interrupted run is still saved with its canceled outcomes.
func storeLookup(ctx context.Context, result models.BatchResult, started time.Time) (string, error) {
	st, err := openStore()
	if err != nil {
		return "", err
	}
	if st == nil {
		return "", nil
	}
	defer st.Close()
	run := store.Run{ID: uuid.NewString(), StartedAt: started, FinishedAt: time.Now()}
	if err := st.SaveLookup(context.WithoutCancel(ctx), run, result, *searchIncludeHTML); err != nil {
		return "", err
	}
	return run.ID, nil
}
