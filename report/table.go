package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/use-agent/bizscout/match"
	"github.com/use-agent/bizscout/models"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func pct(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}

// OutcomeTable prints one row per outcome and a status footer.
func OutcomeTable(w io.Writer, outcomes []models.FetchOutcome) {
	t := newTable(w, "Lookups")
	t.AppendHeader(table.Row{"#", "Business name", "Result", "Detection", "Attempts", "Elapsed"})
	for _, o := range outcomes {
		result := "ok"
		if !o.Success {
			result = o.ErrorKind
		}
		detection := ""
		if o.Detection != nil {
			detection = fmt.Sprintf("%s (%s)", o.Detection.State, o.Detection.Reason)
		}
		t.AppendRow(table.Row{o.Index, o.Query, result, detection, o.Attempts, fmt.Sprintf("%.1fs", o.Elapsed)})
	}
	succeeded, failed := models.BatchResult(outcomes).Counts()
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d ok / %d failed", succeeded, failed), models.BatchResult(outcomes).Status()})
	t.Render()
}

// OverlapSummary prints overlap counts by business type and the first rows.
func OverlapSummary(w io.Writer, overlaps []models.Overlap, sample int) {
	counts := map[string]int{}
	for _, o := range overlaps {
		counts[o.BusinessType]++
	}
	types := make([]string, 0, len(counts))
	for k := range counts {
		types = append(types, k)
	}
	sort.Strings(types)

	t := newTable(w, "Overlaps by business type")
	t.AppendHeader(table.Row{"Business type", "Overlaps"})
	for _, k := range types {
		t.AppendRow(table.Row{k, counts[k]})
	}
	t.AppendFooter(table.Row{"Total", len(overlaps)})
	t.Render()

	if sample > len(overlaps) {
		sample = len(overlaps)
	}
	if sample == 0 {
		return
	}
	s := newTable(w, fmt.Sprintf("Sample overlaps (first %d)", sample))
	s.AppendHeader(table.Row{"BN", "Type", "Charity name", "Corporate name", "Location"})
	for _, o := range overlaps[:sample] {
		s.AppendRow(table.Row{o.BusinessNumber, o.BusinessType, o.CharityName, o.CorporateName, o.CharityCity + ", " + o.CharityProvince})
	}
	s.Render()
}

// LandSummary prints the first land holdings and a total.
func LandSummary(w io.Writer, holdings []models.LandHolding, sample int) {
	sample = min(sample, len(holdings))
	t := newTable(w, fmt.Sprintf("Charity land holdings (first %d)", sample))
	t.AppendHeader(table.Row{"Object", "BN", "Owner name", "Organization name", "Address"})
	for _, h := range holdings[:sample] {
		t.AppendRow(table.Row{h.ObjectID, h.BusinessNumber, h.OwnerName, h.OrganizationName, h.Address})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(holdings)})
	t.Render()
}

// MatchSummary prints the score bands, distributions and best matches.
func MatchSummary(w io.Writer, s match.Summary) {
	t := newTable(w, "Owner name matching")
	t.AppendRow(table.Row{"Unique owner names", s.Owners, ""})
	t.AppendRow(table.Row{"Matches", s.Matched, pct(s.Matched, s.Owners)})
	t.AppendRow(table.Row{"No matches", s.Unmatched, pct(s.Unmatched, s.Owners)})
	t.Render()

	bands := newTable(w, "Match quality")
	bands.AppendHeader(table.Row{"Score", "Matches", "Share"})
	for _, b := range s.Bands {
		bands.AppendRow(table.Row{b.Label, b.Count, pct(b.Count, s.Matched)})
	}
	bands.Render()

	for _, dist := range []struct {
		title  string
		counts []match.Count
	}{
		{"Matches by source file", s.BySource},
		{"Matches by business type", s.ByType},
	} {
		d := newTable(w, dist.title)
		for _, c := range dist.counts {
			d.AppendRow(table.Row{c.Label, c.Count, pct(c.Count, s.Matched)})
		}
		d.Render()
	}

	top := newTable(w, fmt.Sprintf("Top %d matches", len(s.Top)))
	top.AppendHeader(table.Row{"#", "Owner name", "Matched name", "Score", "Type", "Source"})
	for i, m := range s.Top {
		top.AppendRow(table.Row{i + 1, m.OwnerName, m.MatchedName, m.Score, m.BusinessType, m.Source})
	}
	top.Render()
}

// CorporationSummary prints the number of records fetched per act.
func CorporationSummary(w io.Writer, act string, corps []models.Corporation, err error) {
	t := newTable(w, "Federal registry")
	t.AppendHeader(table.Row{"Act", "Records", "Status"})
	status := "complete"
	if err != nil {
		status = models.CodeOf(err)
	}
	t.AppendRow(table.Row{act, len(corps), status})
	t.Render()
}
