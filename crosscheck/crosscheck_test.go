package crosscheck

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/bizscout/models"
	"golang.org/x/text/encoding/charmap"
)

func TestBusinessNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"733132559RR0001", "733132559", true},
		{"749949871RC0001", "749949871", true},
		{"766717813", "766717813", true},
		{"Not Available", "", false},
		{"", "", false},
		{"12345", "", false},
		{"RR733132559", "", false},
	}
	for _, tt := range tests {
		got, ok := BusinessNumber(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("BusinessNumber(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

// charityRow builds a 12 column tab separated row.
func charityRow(bn, name, status, typ, city, prov string) string {
	cols := []string{bn, name, status, typ, "", "", "", "", "", "", city, prov}
	return strings.Join(cols, "\t")
}

func latin1(t *testing.T, s string) []byte {
	t.Helper()
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func charitiesFile(t *testing.T) []byte {
	return latin1(t, strings.Join([]string{
		"BN/Registration number\tCharity name\tStatus\tType",
		charityRow("733132559RR0001", "Société d'entraide", "Registered", "Charitable organization", "Montréal", "QC"),
		charityRow("749949871RR0001", "Food Bank of Waterloo", "Registered", "Charitable organization", "Waterloo", "ON"),
		charityRow("Not Available", "No Number", "Registered", "", "", ""),
		"555000111RR0001\tShort Row",
	}, "\n")+"\n")
}

func TestReadCharities(t *testing.T) {
	got, err := ReadCharities(bytes.NewReader(charitiesFile(t)))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d charities, want 3", len(got))
	}
	want := models.Charity{
		BusinessNumber: "733132559",
		BNFull:         "733132559RR0001",
		Name:           "Société d'entraide",
		Status:         "Registered",
		Type:           "Charitable organization",
		City:           "Montréal",
		Province:       "QC",
	}
	if diff := cmp.Diff(want, got["733132559"]); diff != "" {
		t.Errorf("charity mismatch (-want +got):\n%s", diff)
	}
	if c := got["555000111"]; c.Name != "Short Row" || c.City != "" {
		t.Errorf("short row = %+v", c)
	}
}

const nonProfitsCSV = `Corporate Name,Corporation Number,Business Number
Food Bank of Waterloo Corp,1001,749949871RC0001
Unmatched Society,1002,111222333RC0001
No BN Society,1003,Not Available
`

const coopsCSV = `Corporate Name,Corporation Number,Business Number
Entraide Coop,2001,733132559RC0001
Entraide Coop (renamed),2001,733132559RC0001
`

func TestReadFederalLastValueFirstOrder(t *testing.T) {
	got, err := ReadFederal(strings.NewReader(coopsCSV), TypeCooperative)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Business{{
		Name:              "Entraide Coop (renamed)",
		Type:              TypeCooperative,
		CorporationNumber: "2001",
		BusinessNumber:    "733132559",
		BNFull:            "733132559RC0001",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadFederal mismatch (-want +got):\n%s", diff)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	in := Inputs{
		Charities:    filepath.Join(dir, "charities.txt"),
		NonProfits:   filepath.Join(dir, "nfp.csv"),
		Cooperatives: filepath.Join(dir, "coop.csv"),
	}
	for path, data := range map[string][]byte{
		in.Charities:    charitiesFile(t),
		in.NonProfits:   []byte(nonProfitsCSV),
		in.Cooperatives: []byte(coopsCSV),
	} {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Run(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Overlap{
		{
			BusinessNumber:    "749949871",
			BusinessType:      TypeNonProfit,
			CharityName:       "Food Bank of Waterloo",
			CorporateName:     "Food Bank of Waterloo Corp",
			CharityBNFull:     "749949871RR0001",
			BusinessBNFull:    "749949871RC0001",
			CharityStatus:     "Registered",
			CharityType:       "Charitable organization",
			CharityCity:       "Waterloo",
			CharityProvince:   "ON",
			CorporationNumber: "1001",
		},
		{
			BusinessNumber:    "733132559",
			BusinessType:      TypeCooperative,
			CharityName:       "Société d'entraide",
			CorporateName:     "Entraide Coop (renamed)",
			CharityBNFull:     "733132559RR0001",
			BusinessBNFull:    "733132559RC0001",
			CharityStatus:     "Registered",
			CharityType:       "Charitable organization",
			CharityCity:       "Montréal",
			CharityProvince:   "QC",
			CorporationNumber: "2001",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Run mismatch (-want +got):\n%s", diff)
	}
}

func TestRunMissingFile(t *testing.T) {
	_, err := Run(context.Background(), Inputs{Charities: "/nonexistent/charities.txt"})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}
