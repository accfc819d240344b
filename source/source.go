// Package source loads business identifiers from upstream data files.
package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/use-agent/bizscout/models"
	"golang.org/x/sync/errgroup"
)

// ownerNameKey is the GeoJSON property holding the property owner.
const ownerNameKey = "OWNERNAME"

// csvNameColumns is the order in which CSV name columns are tried.
var csvNameColumns = []string{"charity_name", "corporate_name", "business_name", "Business Name", "name"}

// FeatureCollection is the subset of GeoJSON bizscout reads and writes.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature keeps geometry opaque; only properties are inspected.
type Feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
}

// OwnerName returns the trimmed OWNERNAME property, or "".
func (f Feature) OwnerName() string {
	s, _ := f.Properties[ownerNameKey].(string)
	return strings.TrimSpace(s)
}

// ReadFeatures decodes a GeoJSON FeatureCollection.
func ReadFeatures(r io.Reader) (*FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("source: decode geojson: %w", err)
	}
	return &fc, nil
}

// LoadFeatures reads a GeoJSON file.
func LoadFeatures(path string) (*FeatureCollection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFeatures(f)
}

// OwnerNames returns the distinct owner names of fc, sorted. Blank names and
// "PRIVATE" (any case) are skipped.
func OwnerNames(fc *FeatureCollection) []string {
	seen := make(map[string]struct{})
	for _, f := range fc.Features {
		name := f.OwnerName()
		if name == "" || strings.EqualFold(name, "PRIVATE") {
			continue
		}
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LoadOwnerNames reads a GeoJSON file and returns its owner names.
func LoadOwnerNames(path string) ([]string, error) {
	fc, err := LoadFeatures(path)
	if err != nil {
		return nil, err
	}
	names := OwnerNames(fc)
	slog.Info("loaded geojson", "path", path, "features", len(fc.Features), "owners", len(names))
	return names, nil
}

// ReadBusinessJSON decodes an array of business records keyed by
// "Business Name", "Business Type", "Corporation Number", "Location" and
// "Status". Records without a name are dropped.
func ReadBusinessJSON(r io.Reader, source string) ([]models.Business, error) {
	var rows []map[string]any
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("source: decode business json: %w", err)
	}
	out := make([]models.Business, 0, len(rows))
	for _, row := range rows {
		name := str(row["Business Name"])
		if name == "" {
			continue
		}
		out = append(out, models.Business{
			Name:              name,
			Type:              str(row["Business Type"]),
			CorporationNumber: str(row["Corporation Number"]),
			Location:          str(row["Location"]),
			Status:            str(row["Status"]),
			Source:            source,
		})
	}
	return out, nil
}

// LoadBusinessJSON reads a business JSON file. Source is the file's base name.
func LoadBusinessJSON(path string) ([]models.Business, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBusinessJSON(f, filepath.Base(path))
}

// ReadBusinessCSV decodes a CSV with a header row. The name comes from the
// first non-empty column of charity_name, corporate_name, business_name,
// "Business Name", name.
func ReadBusinessCSV(r io.Reader, source string) ([]models.Business, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source: read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	get := func(rec []string, names ...string) string {
		for _, n := range names {
			if i, ok := col[n]; ok && i < len(rec) {
				if v := strings.TrimSpace(rec[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var out []models.Business
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("source: read csv: %w", err)
		}
		name := get(rec, csvNameColumns...)
		if name == "" {
			continue
		}
		out = append(out, models.Business{
			Name:              name,
			Type:              get(rec, "business_type"),
			CorporationNumber: get(rec, "corporation_number"),
			BusinessNumber:    get(rec, "business_number"),
			Location:          get(rec, "charity_city", "location"),
			Status:            get(rec, "charity_status", "status"),
			Source:            source,
		})
	}
	return out, nil
}

// LoadBusinessCSV reads one business CSV file.
func LoadBusinessCSV(path string) ([]models.Business, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBusinessCSV(f, filepath.Base(path))
}

// LoadBusinessCSVs reads the files concurrently and returns their records in
// argument order. An unreadable file is logged and skipped.
func LoadBusinessCSVs(ctx context.Context, paths []string) ([]models.Business, error) {
	results := make([][]models.Business, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			recs, err := LoadBusinessCSV(path)
			if err != nil {
				slog.Warn("skipping unreadable csv", "path", path, "error", err)
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []models.Business
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, nil
}

// Merge combines business groups by exact name. A later group replaces an
// earlier one's record; within a group the first record wins. Order is by
// first appearance.
func Merge(groups ...[]models.Business) []models.Business {
	index := make(map[string]int)
	var out []models.Business
	for _, group := range groups {
		inGroup := make(map[string]struct{})
		for _, b := range group {
			if _, dup := inGroup[b.Name]; dup {
				continue
			}
			inGroup[b.Name] = struct{}{}
			if i, ok := index[b.Name]; ok {
				out[i] = b
				continue
			}
			index[b.Name] = len(out)
			out = append(out, b)
		}
	}
	return out
}

// ReadLines returns the non-blank lines of r. Lines starting with # are comments.
func ReadLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// LoadQueries reads search queries from a file, chosen by extension:
// .geojson owner names, .json business names, .csv the name column chain,
// anything else one name per line. The result is de-duplicated.
func LoadQueries(path string) ([]string, error) {
	var names []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson":
		owners, err := LoadOwnerNames(path)
		if err != nil {
			return nil, err
		}
		names = owners
	case ".json":
		recs, err := LoadBusinessJSON(path)
		if err != nil {
			return nil, err
		}
		names = businessNames(recs)
	case ".csv":
		recs, err := LoadBusinessCSV(path)
		if err != nil {
			return nil, err
		}
		names = businessNames(recs)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		lines, err := ReadLines(f)
		if err != nil {
			return nil, err
		}
		names = lines
	}
	return Dedupe(names), nil
}

// Dedupe trims names, drops blanks and keeps the first occurrence of names
// that differ only in case or spacing.
func Dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.Join(strings.Fields(strings.ToLower(n)), " ")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

func businessNames(recs []models.Business) []string {
	out := make([]string, len(recs))
	for i, b := range recs {
		out[i] = b.Name
	}
	return out
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", t))
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
