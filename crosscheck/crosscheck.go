// Package crosscheck finds registered charities that are also federal
// not-for-profit or cooperative corporations, joined on business number.
package crosscheck

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/use-agent/bizscout/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"
)

// Business types attached to federal records.
const (
	TypeNonProfit   = "Federal Non-Profit"
	TypeCooperative = "Federal Cooperative"
)

const notAvailable = "Not Available"

var reBN = regexp.MustCompile(`^(\d{9})`)

// BusinessNumber returns the 9 digit root of a business or charity number,
// e.g. "733132559RR0001" -> "733132559".
func BusinessNumber(s string) (string, bool) {
	if s == "" || s == notAvailable {
		return "", false
	}
	m := reBN.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Charity file columns (tab separated).
const (
	colBN       = 0
	colName     = 1
	colStatus   = 2
	colType     = 3
	colCity     = 10
	colProvince = 11
)

// ReadCharities decodes the Latin-1, tab separated charities listing. The
// header line is skipped, as are rows without a valid business number. A
// later row replaces an earlier one with the same number.
func ReadCharities(r io.Reader) (map[string]models.Charity, error) {
	sc := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	out := make(map[string]models.Charity)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		parts := strings.Split(strings.TrimSpace(sc.Text()), "\t")
		bn, ok := BusinessNumber(parts[colBN])
		if !ok {
			continue
		}
		out[bn] = models.Charity{
			BusinessNumber: bn,
			BNFull:         parts[colBN],
			Name:           field(parts, colName),
			Status:         field(parts, colStatus),
			Type:           field(parts, colType),
			City:           field(parts, colCity),
			Province:       field(parts, colProvince),
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("crosscheck: read charities: %w", err)
	}
	return out, nil
}

// LoadCharities reads a charities file.
func LoadCharities(path string) (map[string]models.Charity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCharities(f)
}

// ReadFederal decodes a federal registry CSV with the columns "Corporate
// Name", "Corporation Number" and "Business Number". Records are unique by
// business number: the first occurrence fixes the order, the last one the
// values.
func ReadFederal(r io.Reader, businessType string) ([]models.Business, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crosscheck: read federal header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var corps []models.Corporation
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("crosscheck: read federal csv: %w", err)
		}
		corps = append(corps, models.Corporation{
			CorporateName:     get(rec, "Corporate Name"),
			CorporationNumber: get(rec, "Corporation Number"),
			BusinessNumber:    get(rec, "Business Number"),
		})
	}
	return FromCorporations(corps, businessType), nil
}

// LoadFederal reads a federal registry CSV file.
func LoadFederal(path, businessType string) ([]models.Business, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFederal(f, businessType)
}

// FromCorporations converts paginator records, keeping those with a valid
// business number, unique by that number.
func FromCorporations(corps []models.Corporation, businessType string) []models.Business {
	index := make(map[string]int)
	var out []models.Business
	for _, c := range corps {
		bn, ok := BusinessNumber(c.BusinessNumber)
		if !ok {
			continue
		}
		b := models.Business{
			Name:              c.CorporateName,
			Type:              businessType,
			CorporationNumber: c.CorporationNumber,
			BusinessNumber:    bn,
			BNFull:            c.BusinessNumber,
		}
		if i, seen := index[bn]; seen {
			out[i] = b
			continue
		}
		index[bn] = len(out)
		out = append(out, b)
	}
	return out
}

// FindOverlaps joins each business group against the charities, in group
// order.
func FindOverlaps(charities map[string]models.Charity, groups ...[]models.Business) []models.Overlap {
	var out []models.Overlap
	for _, group := range groups {
		for _, b := range group {
			c, ok := charities[b.BusinessNumber]
			if !ok {
				continue
			}
			out = append(out, models.Overlap{
				BusinessNumber:    b.BusinessNumber,
				BusinessType:      b.Type,
				CharityName:       c.Name,
				CorporateName:     b.Name,
				CharityBNFull:     c.BNFull,
				BusinessBNFull:    b.BNFull,
				CharityStatus:     c.Status,
				CharityType:       c.Type,
				CharityCity:       c.City,
				CharityProvince:   c.Province,
				CorporationNumber: b.CorporationNumber,
			})
		}
	}
	return out
}

// Inputs names the three files a cross-check reads.
type Inputs struct {
	Charities    string
	NonProfits   string
	Cooperatives string
}

// Run loads the inputs concurrently and returns the overlaps, non-profits
// first.
func Run(ctx context.Context, in Inputs) ([]models.Overlap, error) {
	var (
		charities    map[string]models.Charity
		nonProfits   []models.Business
		cooperatives []models.Business
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var g errgroup.Group
	g.Go(func() (err error) {
		charities, err = LoadCharities(in.Charities)
		return wrapLoad("charities", in.Charities, err)
	})
	g.Go(func() (err error) {
		nonProfits, err = LoadFederal(in.NonProfits, TypeNonProfit)
		return wrapLoad("non-profits", in.NonProfits, err)
	})
	g.Go(func() (err error) {
		cooperatives, err = LoadFederal(in.Cooperatives, TypeCooperative)
		return wrapLoad("cooperatives", in.Cooperatives, err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return FindOverlaps(charities, nonProfits, cooperatives), nil
}

func wrapLoad(what, path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("crosscheck: load %s from %s: %w", what, path, err)
}

func field(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}
