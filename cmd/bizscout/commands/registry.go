package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/use-agent/bizscout/models"
	"github.com/use-agent/bizscout/registry"
	"github.com/use-agent/bizscout/report"
	"github.com/use-agent/bizscout/store"
)

var (
	registryActs     *[]string
	registryName     *string
	registryProvince *string
	registryStatus   *string
	registryOutDir   *string
)

// actFiles names the CSV written for each act.
var actFiles = map[string]string{
	registry.ActNotForProfit: "federal_nonprofits.csv",
	registry.ActCooperatives: "federal_cooperatives.csv",
}

func init() {
	registryActs = registryCmd.Flags().StringSlice("act", []string{registry.ActNotForProfit, registry.ActCooperatives}, "Acts to walk: 14 (not-for-profit), 12 (co-operatives).")
	registryName = registryCmd.Flags().String("name", "", "Corporate name filter.")
	registryProvince = registryCmd.Flags().String("province", "", "Province filter, e.g. ON.")
	registryStatus = registryCmd.Flags().String("status", registry.StatusActive, "Corporation status filter.")
	registryOutDir = registryCmd.Flags().StringP("out-dir", "o", ".", "Directory for the per-act CSV files.")
	rootCmd.AddCommand(registryCmd)
}

var registryCmd = &cobra.Command{
	Use:   "registry [--act 14,12] [--province ON]",
	Short: "Walks the federal corporations registry and writes every record per act.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := registry.NewClient(cfg.Registry)
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

		var errs []error
		for _, act := range *registryActs {
			file, ok := actFiles[act]
			if !ok {
				return fmt.Errorf("unknown act %q", act)
			}

			p := registry.NewPaginator(client, cfg.Registry)
			p.OnPage = func(page, records int) {
				slog.Info("registry page fetched", "act", act, "page", page, "records", records)
			}
			started := time.Now()
			corps, walkErr := p.FetchAll(cmd.Context(), registry.Query{
				Name:     *registryName,
				Province: *registryProvince,
				Status:   *registryStatus,
				Act:      act,
			})
			report.CorporationSummary(os.Stdout, act, corps, walkErr)
			if walkErr != nil {
				errs = append(errs, fmt.Errorf("act %s: %w", act, walkErr))
			}

			// Partial walks are still written; the error is reported at the end.
			path := filepath.Join(*registryOutDir, file)
			if err := report.WriteFile(path, func(w io.Writer) error {
				return report.WriteCorporationsCSV(w, corps)
			}); err != nil {
				return err
			}
			slog.Info("corporations written", "act", act, "path", path, "records", len(corps))

			if st != nil {
				if err := storeCorporations(cmd.Context(), st, act, corps, walkErr, started); err != nil {
					return err
				}
			}
			if cmd.Context().Err() != nil {
				break
			}
		}
		return errors.Join(errs...)
	},
}

// storeCorporations saves one walk. A walk cut short by an interrupt is
// still saved as partial.
func storeCorporations(ctx context.Context, st *store.Store, act string, corps []models.Corporation, walkErr error, started time.Time) error {
	run := store.Run{ID: uuid.NewString(), StartedAt: started, FinishedAt: time.Now()}
	return st.SaveCorporations(context.WithoutCancel(ctx), run, act, corps, walkErr)
}
