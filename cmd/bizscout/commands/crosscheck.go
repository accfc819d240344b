package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/bizscout/crosscheck"
	"github.com/use-agent/bizscout/models"
	"github.com/use-agent/bizscout/registry"
	"github.com/use-agent/bizscout/report"
)

var (
	ccCharities    *string
	ccNonProfits   *string
	ccCooperatives *string
	ccFromDB       *bool
	ccOut          *string
	ccJSON         *string
	ccSample       *int
)

func init() {
	ccCharities = crosscheckCmd.Flags().String("charities", "Charities_results.txt", "Tab-separated charities listing (Latin-1).")
	ccNonProfits = crosscheckCmd.Flags().String("nonprofits", "federal_nonprofits.csv", "Federal not-for-profit corporations CSV.")
	ccCooperatives = crosscheckCmd.Flags().String("coops", "federal_cooperatives.csv", "Federal co-operatives CSV.")
	ccFromDB = crosscheckCmd.Flags().Bool("from-db", false, "Use the latest registry walks stored in the database instead of the CSVs.")
	ccOut = crosscheckCmd.Flags().StringP("out", "o", "charity_business_overlaps.csv", "CSV file for the overlaps.")
	ccJSON = crosscheckCmd.Flags().String("json", "", "Also write the overlaps as JSON.")
	ccSample = crosscheckCmd.Flags().Int("sample", 10, "Number of overlaps to print.")
	rootCmd.AddCommand(crosscheckCmd)
}

var crosscheckCmd = &cobra.Command{
	Use:   "crosscheck [--charities <file>] [--nonprofits <csv>] [--coops <csv>]",
	Short: "Finds charities that are also federal non-profits or co-operatives by business number.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			overlaps []models.Overlap
			err      error
		)
		if *ccFromDB {
			overlaps, err = crosscheckFromStore(cmd)
		} else {
			overlaps, err = crosscheck.Run(cmd.Context(), crosscheck.Inputs{
				Charities:    *ccCharities,
				NonProfits:   *ccNonProfits,
				Cooperatives: *ccCooperatives,
			})
		}
		if err != nil {
			return err
		}

		report.OverlapSummary(os.Stdout, overlaps, *ccSample)

		if err := report.WriteFile(*ccOut, func(w io.Writer) error {
			return report.WriteOverlapsCSV(w, overlaps)
		}); err != nil {
			return err
		}
		slog.Info("overlaps written", "path", *ccOut, "count", len(overlaps))

		if *ccJSON != "" {
			return report.WriteFile(*ccJSON, func(w io.Writer) error {
				return report.WriteJSON(w, overlaps)
			})
		}
		return nil
	},
}

func crosscheckFromStore(cmd *cobra.Command) ([]models.Overlap, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("--from-db needs a database: set --db or BIZSCOUT_DB_PATH")
	}
	defer st.Close()

	charities, err := crosscheck.LoadCharities(*ccCharities)
	if err != nil {
		return nil, err
	}
	nonProfits, err := st.Corporations(cmd.Context(), registry.ActNotForProfit)
	if err != nil {
		return nil, fmt.Errorf("load stored non-profits: %w", err)
	}
	coops, err := st.Corporations(cmd.Context(), registry.ActCooperatives)
	if err != nil {
		return nil, fmt.Errorf("load stored co-operatives: %w", err)
	}
	slog.Info("using stored registry walks", "nonprofits", len(nonProfits), "cooperatives", len(coops))

	return crosscheck.FindOverlaps(charities,
		crosscheck.FromCorporations(nonProfits, crosscheck.TypeNonProfit),
		crosscheck.FromCorporations(coops, crosscheck.TypeCooperative),
	), nil
}
