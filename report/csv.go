// Package report writes run results as CSV, JSON, GeoJSON and terminal tables.
package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/use-agent/bizscout/models"
)

// Column headers, in output order.
var (
	OutcomeHeader     = []string{"business_name", "html", "success", "error_kind", "error_message", "elapsed_seconds"}
	CorporationHeader = []string{"Corporate Name", "Corporation Number", "Business Number"}
	OverlapHeader     = []string{
		"business_number", "business_type", "charity_name", "corporate_name",
		"charity_bn_full", "business_bn_full", "charity_status", "charity_type",
		"charity_city", "charity_province", "corporation_number",
	}
	MatchHeader = []string{
		"geojson_name", "matched_name", "similarity_score", "business_type",
		"corporation_number", "location", "status", "source_file",
	}
	NoMatchHeader = []string{"geojson_name", "best_partial_match", "partial_score"}
	LandHeader    = []string{
		"object_id", "property_unit_id", "business_registration_number", "owner_name",
		"organization_name", "address", "agency", "effective_date_of_status",
	}
)

func writeCSV(w io.Writer, header []string, n int, row func(i int) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOutcomesCSV writes one row per outcome. HTML is omitted unless
// includeHTML is set.
func WriteOutcomesCSV(w io.Writer, outcomes []models.FetchOutcome, includeHTML bool) error {
	return writeCSV(w, OutcomeHeader, len(outcomes), func(i int) []string {
		o := outcomes[i]
		html := ""
		if includeHTML {
			html = o.HTML
		}
		return []string{
			o.Query,
			html,
			strconv.FormatBool(o.Success),
			o.ErrorKind,
			o.ErrorMessage,
			strconv.FormatFloat(o.Elapsed, 'f', 2, 64),
		}
	})
}

// WriteCorporationsCSV writes paginator records.
func WriteCorporationsCSV(w io.Writer, corps []models.Corporation) error {
	return writeCSV(w, CorporationHeader, len(corps), func(i int) []string {
		c := corps[i]
		return []string{c.CorporateName, c.CorporationNumber, c.BusinessNumber}
	})
}

// WriteOverlapsCSV writes cross-check overlaps.
func WriteOverlapsCSV(w io.Writer, overlaps []models.Overlap) error {
	return writeCSV(w, OverlapHeader, len(overlaps), func(i int) []string {
		o := overlaps[i]
		return []string{
			o.BusinessNumber, o.BusinessType, o.CharityName, o.CorporateName,
			o.CharityBNFull, o.BusinessBNFull, o.CharityStatus, o.CharityType,
			o.CharityCity, o.CharityProvince, o.CorporationNumber,
		}
	})
}

// WriteMatchesCSV writes accepted fuzzy matches.
func WriteMatchesCSV(w io.Writer, matches []models.Match) error {
	return writeCSV(w, MatchHeader, len(matches), func(i int) []string {
		m := matches[i]
		return []string{
			m.OwnerName, m.MatchedName, strconv.Itoa(m.Score), m.BusinessType,
			m.CorporationNumber, m.Location, m.Status, m.Source,
		}
	})
}

// WriteNoMatchesCSV writes owners without an accepted match.
func WriteNoMatchesCSV(w io.Writer, noMatches []models.NoMatch) error {
	return writeCSV(w, NoMatchHeader, len(noMatches), func(i int) []string {
		n := noMatches[i]
		return []string{n.OwnerName, n.BestPartial, strconv.Itoa(n.Score)}
	})
}

// WriteLandCSV writes charity land holdings.
func WriteLandCSV(w io.Writer, holdings []models.LandHolding) error {
	return writeCSV(w, LandHeader, len(holdings), func(i int) []string {
		h := holdings[i]
		return []string{
			h.ObjectID, h.PropertyUnitID, h.BusinessNumber, h.OwnerName,
			h.OrganizationName, h.Address, h.Agency, h.EffectiveDateOfStatus,
		}
	})
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteFile creates path (and its directory) and hands it to write.
func WriteFile(path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}
