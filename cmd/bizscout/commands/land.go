package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/bizscout/crosscheck"
	"github.com/use-agent/bizscout/report"
)

var (
	landOwnership *string
	landCharities *string
	landOut       *string
	landJSON      *string
	landSample    *int
)

func init() {
	landOwnership = landCmd.Flags().String("ownership", "Property_Ownership_Public.csv", "Property ownership CSV with Civic No and Street columns.")
	landCharities = landCmd.Flags().String("charities", "Charities_results.txt", "Tab-separated charities export with an Address column (code page 863).")
	landOut = landCmd.Flags().StringP("out", "o", "charities_land.csv", "CSV file for the land holdings.")
	landJSON = landCmd.Flags().String("json", "", "Also write the land holdings as JSON.")
	landSample = landCmd.Flags().Int("sample", 10, "Number of land holdings to print.")
	crosscheckCmd.AddCommand(landCmd)
}

var landCmd = &cobra.Command{
	Use:   "land [--ownership <csv>] [--charities <file>]",
	Short: "Finds property parcels whose street address is a registered charity's address.",
	RunE: func(cmd *cobra.Command, args []string) error {
		holdings, err := crosscheck.RunLand(cmd.Context(), crosscheck.LandInputs{
			Ownership: *landOwnership,
			Charities: *landCharities,
		})
		if err != nil {
			return err
		}

		report.LandSummary(os.Stdout, holdings, *landSample)

		if err := report.WriteFile(*landOut, func(w io.Writer) error {
			return report.WriteLandCSV(w, holdings)
		}); err != nil {
			return err
		}
		slog.Info("land holdings written", "path", *landOut, "count", len(holdings))

		if *landJSON != "" {
			return report.WriteFile(*landJSON, func(w io.Writer) error {
				return report.WriteJSON(w, holdings)
			})
		}
		return nil
	},
}
