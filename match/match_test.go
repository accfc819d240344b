package match

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/bizscout/models"
	"github.com/use-agent/bizscout/source"
)

func TestTokenSortRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Acme Housing Co-op", "Co-op Acme Housing", 100},
		{"abc", "abd", 200.0 / 3},
		{"ACME HOUSING", "ACME HOUSNG", 2200.0 / 23},
		{"abc", "xyz", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		if got := TokenSortRatio(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("TokenSortRatio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestScorerByName(t *testing.T) {
	for _, name := range []string{"", "token_sort", "jaro_winkler"} {
		if _, err := ScorerByName(name); err != nil {
			t.Errorf("ScorerByName(%q): %v", name, err)
		}
	}
	if _, err := ScorerByName("soundex"); err == nil {
		t.Error("expected error for unknown scorer")
	}
	if got := JaroWinklerScore("same", "same"); got != 100 {
		t.Errorf("JaroWinklerScore(identical) = %v, want 100", got)
	}
}

var catalog = []models.Business{
	{Name: "ACME HOUSING CO-OP INC", Type: "Federal Cooperative", CorporationNumber: "2001", Location: "Kitchener", Status: "Active", Source: "coops.csv"},
	{Name: "HARVEST FOODS", Type: "Federal Non-Profit", CorporationNumber: "1001", Source: "nfp.csv"},
}

func TestRun(t *testing.T) {
	m := NewMatcher(DefaultThreshold, nil)
	matches, noMatches, err := m.Run(context.Background(), []string{"ACME HOUSING CO-OP INC.", "ZZZ", "HARVEST FOOD"}, catalog)
	if err != nil {
		t.Fatal(err)
	}

	wantMatches := []models.Match{
		{
			OwnerName:         "ACME HOUSING CO-OP INC.",
			MatchedName:       "ACME HOUSING CO-OP INC",
			Score:             98,
			BusinessType:      "Federal Cooperative",
			CorporationNumber: "2001",
			Location:          "Kitchener",
			Status:            "Active",
			Source:            "coops.csv",
		},
		{
			OwnerName:         "HARVEST FOOD",
			MatchedName:       "HARVEST FOODS",
			Score:             96,
			BusinessType:      "Federal Non-Profit",
			CorporationNumber: "1001",
			Source:            "nfp.csv",
		},
	}
	if diff := cmp.Diff(wantMatches, matches); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
	wantNo := []models.NoMatch{{OwnerName: "ZZZ", BestPartial: "ACME HOUSING CO-OP INC", Score: 0}}
	if diff := cmp.Diff(wantNo, noMatches); diff != "" {
		t.Errorf("no-matches mismatch (-want +got):\n%s", diff)
	}
}

func TestRunEmptyCatalog(t *testing.T) {
	_, noMatches, err := NewMatcher(DefaultThreshold, nil).Run(context.Background(), []string{"Acme"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.NoMatch{{OwnerName: "Acme", BestPartial: "None"}}
	if diff := cmp.Diff(want, noMatches); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize(t *testing.T) {
	matches := []models.Match{
		{OwnerName: "a", Score: 98, Source: "x.csv", BusinessType: "Federal Cooperative"},
		{OwnerName: "b", Score: 92, Source: "y.json"},
		{OwnerName: "c", Score: 85, Source: "x.csv", BusinessType: "Federal Cooperative"},
		{OwnerName: "d", Score: 95, Source: "x.csv"},
	}
	s := Summarize(10, matches, 6)

	gotBands := make([]int, len(s.Bands))
	for i, b := range s.Bands {
		gotBands[i] = b.Count
	}
	if diff := cmp.Diff([]int{2, 1, 1}, gotBands); diff != "" {
		t.Errorf("band counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Count{{"x.csv", 3}, {"y.json", 1}}, s.BySource); diff != "" {
		t.Errorf("by source mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Count{{"Federal Cooperative", 2}, {"Unknown", 2}}, s.ByType); diff != "" {
		t.Errorf("by type mismatch (-want +got):\n%s", diff)
	}
	var order []string
	for _, m := range s.Top {
		order = append(order, m.OwnerName)
	}
	if diff := cmp.Diff([]string{"a", "d", "b", "c"}, order); diff != "" {
		t.Errorf("top order mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterFeatures(t *testing.T) {
	fc := &source.FeatureCollection{
		Type: "FeatureCollection",
		Features: []source.Feature{
			{Type: "Feature", Properties: map[string]any{"OWNERNAME": " ACME HOUSING CO-OP INC. ", "PARCEL": "1"}},
			{Type: "Feature", Properties: map[string]any{"OWNERNAME": "PRIVATE"}},
		},
	}
	matches := []models.Match{{OwnerName: "ACME HOUSING CO-OP INC.", MatchedName: "ACME HOUSING CO-OP INC", Score: 98, BusinessType: "Federal Cooperative", CorporationNumber: "2001", Source: "coops.csv"}}

	out := FilterFeatures(fc, matches)
	if len(out.Features) != 1 {
		t.Fatalf("kept %d features, want 1", len(out.Features))
	}
	want := map[string]any{
		"OWNERNAME":             " ACME HOUSING CO-OP INC. ",
		"PARCEL":                "1",
		"MATCHED_BUSINESS_NAME": "ACME HOUSING CO-OP INC",
		"BUSINESS_TYPE":         "Federal Cooperative",
		"CORPORATION_NUMBER":    "2001",
		"MATCH_SCORE":           98,
		"DATA_SOURCE":           "coops.csv",
	}
	if diff := cmp.Diff(want, out.Features[0].Properties); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
	if _, ok := fc.Features[0].Properties["MATCH_SCORE"]; ok {
		t.Error("input feature was modified")
	}
}
