package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/bizscout/models"
)

const ownersGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"OWNERNAME": "  Union Co-operative Inc "}, "geometry": null},
    {"type": "Feature", "properties": {"OWNERNAME": "PRIVATE"}},
    {"type": "Feature", "properties": {"OWNERNAME": "private"}},
    {"type": "Feature", "properties": {"OWNERNAME": ""}},
    {"type": "Feature", "properties": {"OWNERNAME": "Acme Housing"}},
    {"type": "Feature", "properties": {"OWNERNAME": "Union Co-operative Inc"}},
    {"type": "Feature", "properties": {"OTHER": "x"}}
  ]
}`

func TestOwnerNames(t *testing.T) {
	fc, err := ReadFeatures(strings.NewReader(ownersGeoJSON))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Acme Housing", "Union Co-operative Inc"}
	if diff := cmp.Diff(want, OwnerNames(fc)); diff != "" {
		t.Errorf("OwnerNames mismatch (-want +got):\n%s", diff)
	}
}

func TestReadBusinessJSON(t *testing.T) {
	in := `[
	  {"Business Name": "Acme Housing Co-op", "Business Type": "Co-operative", "Corporation Number": 1234567, "Location": "Kitchener", "Status": "Active"},
	  {"Business Name": "", "Business Type": "ignored"}
	]`
	got, err := ReadBusinessJSON(strings.NewReader(in), "all_businesses.json")
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Business{{
		Name:              "Acme Housing Co-op",
		Type:              "Co-operative",
		CorporationNumber: "1234567",
		Location:          "Kitchener",
		Status:            "Active",
		Source:            "all_businesses.json",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadBusinessJSON mismatch (-want +got):\n%s", diff)
	}
}

func TestReadBusinessCSVNameFallback(t *testing.T) {
	in := "charity_name,corporate_name,business_name,business_type,corporation_number,charity_city,location,charity_status,status\n" +
		"Food Bank,Food Bank Corp,,Federal Non-Profit,111,Waterloo,,Registered,\n" +
		",Harvest Co-op,,Federal Cooperative,222,,Guelph,,Active\n" +
		",,Corner Store,,,,,,\n" +
		",,,,,,,,\n"
	got, err := ReadBusinessCSV(strings.NewReader(in), "overlap.csv")
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Business{
		{Name: "Food Bank", Type: "Federal Non-Profit", CorporationNumber: "111", Location: "Waterloo", Status: "Registered", Source: "overlap.csv"},
		{Name: "Harvest Co-op", Type: "Federal Cooperative", CorporationNumber: "222", Location: "Guelph", Status: "Active", Source: "overlap.csv"},
		{Name: "Corner Store", Source: "overlap.csv"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadBusinessCSV mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadBusinessCSVsSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	if err := os.WriteFile(a, []byte("name\nAlpha\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("Business Name\nBeta\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadBusinessCSVs(context.Background(), []string{a, filepath.Join(dir, "missing.csv"), b})
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Business{{Name: "Alpha", Source: "a.csv"}, {Name: "Beta", Source: "b.csv"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadBusinessCSVs mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeLaterGroupWins(t *testing.T) {
	fromJSON := []models.Business{{Name: "Alpha", Source: "json"}, {Name: "Beta", Source: "json"}}
	fromCSV := []models.Business{{Name: "Beta", Source: "csv"}, {Name: "Beta", Source: "csv-dup"}, {Name: "Gamma", Source: "csv"}}

	want := []models.Business{{Name: "Alpha", Source: "json"}, {Name: "Beta", Source: "csv"}, {Name: "Gamma", Source: "csv"}}
	if diff := cmp.Diff(want, Merge(fromJSON, fromCSV)); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"Acme Co-op", " acme  co-op ", "", "Beta", "  ", "ACME CO-OP", "beta"})
	want := []string{"Acme Co-op", "Beta"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Dedupe mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadQueriesByExtension(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "names.txt")
	if err := os.WriteFile(txt, []byte("# owners\nAcme\n\nacme\nBeta\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	geo := filepath.Join(dir, "owners.geojson")
	if err := os.WriteFile(geo, []byte(ownersGeoJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want []string
	}{
		{txt, []string{"Acme", "Beta"}},
		{geo, []string{"Acme Housing", "Union Co-operative Inc"}},
	}
	for _, tt := range tests {
		got, err := LoadQueries(tt.path)
		if err != nil {
			t.Fatalf("LoadQueries(%s): %v", tt.path, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("LoadQueries(%s) mismatch (-want +got):\n%s", filepath.Base(tt.path), diff)
		}
	}
}
