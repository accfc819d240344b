package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/bizscout/match"
	"github.com/use-agent/bizscout/models"
	"github.com/use-agent/bizscout/report"
	"github.com/use-agent/bizscout/source"
)

var (
	matchGeoJSON      *string
	matchCSVs         *[]string
	matchJSON         *string
	matchThreshold    *float64
	matchScorer       *string
	matchOut          *string
	matchUnmatchedOut *string
	matchFeaturesOut  *string
	matchSummaryOut   *string
)

func init() {
	matchGeoJSON = matchCmd.Flags().String("geojson", "", "GeoJSON with OWNER_NAME properties. Required.")
	matchCSVs = matchCmd.Flags().StringSlice("businesses", nil, "Business CSV files (repeatable or comma separated).")
	matchJSON = matchCmd.Flags().String("business-json", "", "Business JSON file; CSV records take priority on duplicate names.")
	matchThreshold = matchCmd.Flags().Float64("threshold", match.DefaultThreshold, "Minimum similarity score (0-100).")
	matchScorer = matchCmd.Flags().String("scorer", "token_sort", "Similarity scorer: token_sort or jaro_winkler.")
	matchOut = matchCmd.Flags().StringP("out", "o", "geojson_business_matches.csv", "CSV file for matches.")
	matchUnmatchedOut = matchCmd.Flags().String("unmatched", "geojson_no_matches.csv", "CSV file for names without a match.")
	matchFeaturesOut = matchCmd.Flags().String("features", "", "Write the matched features as GeoJSON.")
	matchSummaryOut = matchCmd.Flags().String("summary", "", "Write the match summary as JSON.")
	_ = matchCmd.MarkFlagRequired("geojson")
	rootCmd.AddCommand(matchCmd)
}

var matchCmd = &cobra.Command{
	Use:   "match --geojson <file> --businesses <csv>[,<csv>...]",
	Short: "Fuzzy-matches property owner names against business records.",
	RunE: func(cmd *cobra.Command, args []string) error {
		scorer, err := match.ScorerByName(*matchScorer)
		if err != nil {
			return err
		}

		// ── 1. Load owners ──
		fc, err := source.LoadFeatures(*matchGeoJSON)
		if err != nil {
			return err
		}
		owners := source.OwnerNames(fc)
		slog.Info("owner names loaded", "features", len(fc.Features), "unique_names", len(owners))

		// ── 2. Load the catalog ──
		var fromJSON []models.Business
		if *matchJSON != "" {
			if fromJSON, err = source.LoadBusinessJSON(*matchJSON); err != nil {
				return err
			}
		}
		fromCSV, err := source.LoadBusinessCSVs(cmd.Context(), *matchCSVs)
		if err != nil {
			return err
		}
		catalog := source.Merge(fromJSON, fromCSV)
		if len(catalog) == 0 {
			return fmt.Errorf("no business records loaded: pass --businesses or --business-json")
		}
		slog.Info("business catalog loaded", "records", len(catalog))

		// ── 3. Match ──
		matches, unmatched, err := match.NewMatcher(*matchThreshold, scorer).Run(cmd.Context(), owners, catalog)
		if err != nil {
			return err
		}
		summary := match.Summarize(len(owners), matches, len(unmatched))
		report.MatchSummary(os.Stdout, summary)

		// ── 4. Write ──
		if err := report.WriteFile(*matchOut, func(w io.Writer) error {
			return report.WriteMatchesCSV(w, matches)
		}); err != nil {
			return err
		}
		if *matchUnmatchedOut != "" {
			if err := report.WriteFile(*matchUnmatchedOut, func(w io.Writer) error {
				return report.WriteNoMatchesCSV(w, unmatched)
			}); err != nil {
				return err
			}
		}
		if *matchFeaturesOut != "" {
			filtered := match.FilterFeatures(fc, matches)
			if err := report.WriteFile(*matchFeaturesOut, func(w io.Writer) error {
				return report.WriteJSON(w, filtered)
			}); err != nil {
				return err
			}
			slog.Info("matched features written", "path", *matchFeaturesOut, "features", len(filtered.Features))
		}
		if *matchSummaryOut != "" {
			return report.WriteFile(*matchSummaryOut, func(w io.Writer) error {
				return report.WriteJSON(w, summary)
			})
		}
		return nil
	},
}
