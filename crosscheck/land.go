package crosscheck

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/use-agent/bizscout/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"
)

// Parcel is one row of a municipal property ownership extract.
type Parcel struct {
	ObjectID       string
	PropertyUnitID string
	OwnerName      string
	Agency         string
	X, Y           string
	Address        string // civic number and street
}

// CharityAddress is one row of a charities search export that carries the
// registered street address.
type CharityAddress struct {
	BNFull                string
	Name                  string
	Address               string
	EffectiveDateOfStatus string
	Type                  string
	Category              string
	PostalCode            string
}

// AddressKey normalises a street address for joining: upper case, single
// spaces, no surrounding blanks.
func AddressKey(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// headerKey maps "Organization name: " and "organization name" to the same key.
func headerKey(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.TrimSpace(h)
	h = strings.TrimSuffix(h, ":")
	return strings.ToLower(strings.TrimSpace(h))
}

type columns map[string]int

func readHeader(cr *csv.Reader) (columns, error) {
	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	col := make(columns, len(header))
	for i, h := range header {
		col[headerKey(h)] = i
	}
	return col, nil
}

func (c columns) get(rec []string, name string) string {
	if i, ok := c[name]; ok && i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}

// civicNumber renders a civic number column as an integer string. Spreadsheet
// exports write "12.0"; blanks and junk yield false.
func civicNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatInt(int64(f), 10), true
}

// ReadParcels decodes a property ownership CSV with the columns "Objectid",
// "Property Unit Id", "Ownername", "AGENCY", "x", "y", "Civic No" and
// "Street". Rows without a civic number cannot be addressed and are skipped.
func ReadParcels(r io.Reader) ([]Parcel, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	col, err := readHeader(cr)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crosscheck: read ownership header: %w", err)
	}

	var out []Parcel
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("crosscheck: read ownership csv: %w", err)
		}
		civic, ok := civicNumber(col.get(rec, "civic no"))
		if !ok {
			continue
		}
		out = append(out, Parcel{
			ObjectID:       col.get(rec, "objectid"),
			PropertyUnitID: col.get(rec, "property unit id"),
			OwnerName:      col.get(rec, "ownername"),
			Agency:         col.get(rec, "agency"),
			X:              col.get(rec, "x"),
			Y:              col.get(rec, "y"),
			Address:        civic + " " + col.get(rec, "street"),
		})
	}
	return out, nil
}

// ReadCharityAddresses decodes a tab separated charities export in code page
// 863, with named columns such as "BN/Registration number:" and "Address:".
// Malformed lines are logged and skipped.
func ReadCharityAddresses(r io.Reader) ([]CharityAddress, error) {
	cr := csv.NewReader(charmap.CodePage863.NewDecoder().Reader(r))
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	col, err := readHeader(cr)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crosscheck: read charities header: %w", err)
	}
	if _, ok := col["address"]; !ok {
		return nil, fmt.Errorf("crosscheck: charities file has no Address column")
	}

	var out []CharityAddress
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			slog.Warn("skipping malformed charities line", "line", perr.Line, "error", perr.Err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("crosscheck: read charities: %w", err)
		}
		addr := col.get(rec, "address")
		if addr == "" {
			continue
		}
		out = append(out, CharityAddress{
			BNFull:                col.get(rec, "bn/registration number"),
			Name:                  col.get(rec, "organization name"),
			Address:               addr,
			EffectiveDateOfStatus: col.get(rec, "effective date of status"),
			Type:                  col.get(rec, "charity type"),
			Category:              col.get(rec, "category"),
			PostalCode:            col.get(rec, "postal code/zip code"),
		})
	}
	return out, nil
}

// JoinLand pairs every parcel with every charity registered at the same
// address. Output follows parcel order, then charity order.
func JoinLand(parcels []Parcel, charities []CharityAddress) []models.LandHolding {
	byAddr := make(map[string][]CharityAddress)
	for _, c := range charities {
		k := AddressKey(c.Address)
		byAddr[k] = append(byAddr[k], c)
	}

	var out []models.LandHolding
	for _, p := range parcels {
		for _, c := range byAddr[AddressKey(p.Address)] {
			out = append(out, models.LandHolding{
				ObjectID:              p.ObjectID,
				PropertyUnitID:        p.PropertyUnitID,
				BusinessNumber:        c.BNFull,
				OwnerName:             p.OwnerName,
				OrganizationName:      c.Name,
				Address:               p.Address,
				Agency:                p.Agency,
				EffectiveDateOfStatus: c.EffectiveDateOfStatus,
				CharityType:           c.Type,
				Category:              c.Category,
				PostalCode:            c.PostalCode,
				X:                     p.X,
				Y:                     p.Y,
			})
		}
	}
	return out
}

// LandInputs names the two files a land cross-check reads.
type LandInputs struct {
	Ownership string
	Charities string
}

// RunLand loads both files concurrently and joins them by address.
func RunLand(ctx context.Context, in LandInputs) ([]models.LandHolding, error) {
	var (
		parcels   []Parcel
		charities []CharityAddress
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var g errgroup.Group
	g.Go(func() error {
		f, err := os.Open(in.Ownership)
		if err != nil {
			return wrapLoad("ownership", in.Ownership, err)
		}
		defer f.Close()
		parcels, err = ReadParcels(f)
		return wrapLoad("ownership", in.Ownership, err)
	})
	g.Go(func() error {
		f, err := os.Open(in.Charities)
		if err != nil {
			return wrapLoad("charities", in.Charities, err)
		}
		defer f.Close()
		charities, err = ReadCharityAddresses(f)
		return wrapLoad("charities", in.Charities, err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.Debug("land inputs loaded", "parcels", len(parcels), "charities", len(charities))
	return JoinLand(parcels, charities), nil
}
