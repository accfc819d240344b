// Package match pairs property owner names with registry businesses by
// fuzzy name similarity.
package match

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"github.com/use-agent/bizscout/models"
	"github.com/use-agent/bizscout/source"
	"golang.org/x/sync/errgroup"
)

// DefaultThreshold is the minimum score of an accepted match.
const DefaultThreshold = 85

// Matcher finds the best candidate for each owner name.
type Matcher struct {
	threshold float64
	scorer    Scorer
}

// NewMatcher returns a matcher. A nil scorer means TokenSortRatio.
func NewMatcher(threshold float64, scorer Scorer) *Matcher {
	if scorer == nil {
		scorer = TokenSortRatio
	}
	return &Matcher{threshold: threshold, scorer: scorer}
}

// Best returns the highest scoring candidate; ties go to the earlier one.
// ok is false when there are no candidates.
func (m *Matcher) Best(name string, candidates []models.Business) (best models.Business, score float64, ok bool) {
	score = -1
	for _, c := range candidates {
		if s := m.scorer(name, c.Name); s > score {
			best, score = c, s
		}
	}
	if score < 0 {
		return models.Business{}, 0, false
	}
	return best, score, true
}

// Run scores every owner against the catalog. Both results keep the order
// of owners.
func (m *Matcher) Run(ctx context.Context, owners []string, catalog []models.Business) ([]models.Match, []models.NoMatch, error) {
	type verdict struct {
		match   *models.Match
		noMatch models.NoMatch
	}
	verdicts := make([]verdict, len(owners))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, owner := range owners {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			best, score, ok := m.Best(owner, catalog)
			switch {
			case ok && score >= m.threshold:
				verdicts[i].match = &models.Match{
					OwnerName:         owner,
					MatchedName:       best.Name,
					Score:             round(score),
					BusinessType:      best.Type,
					CorporationNumber: best.CorporationNumber,
					Location:          best.Location,
					Status:            best.Status,
					Source:            best.Source,
				}
			case ok:
				verdicts[i].noMatch = models.NoMatch{OwnerName: owner, BestPartial: best.Name, Score: round(score)}
			default:
				verdicts[i].noMatch = models.NoMatch{OwnerName: owner, BestPartial: "None"}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var matches []models.Match
	var noMatches []models.NoMatch
	for _, v := range verdicts {
		if v.match != nil {
			matches = append(matches, *v.match)
		} else {
			noMatches = append(noMatches, v.noMatch)
		}
	}
	slog.Info("matching complete", "owners", len(owners), "matches", len(matches), "no_matches", len(noMatches))
	return matches, noMatches, nil
}

// FilterFeatures keeps the features whose owner matched, annotated with
// the match. The input collection is not modified.
func FilterFeatures(fc *source.FeatureCollection, matches []models.Match) *source.FeatureCollection {
	byOwner := make(map[string]models.Match, len(matches))
	for _, m := range matches {
		if _, ok := byOwner[m.OwnerName]; !ok {
			byOwner[m.OwnerName] = m
		}
	}

	out := &source.FeatureCollection{Type: "FeatureCollection", Features: []source.Feature{}}
	for _, f := range fc.Features {
		m, ok := byOwner[f.OwnerName()]
		if !ok {
			continue
		}
		props := make(map[string]any, len(f.Properties)+5)
		for k, v := range f.Properties {
			props[k] = v
		}
		props["MATCHED_BUSINESS_NAME"] = m.MatchedName
		props["BUSINESS_TYPE"] = m.BusinessType
		props["CORPORATION_NUMBER"] = m.CorporationNumber
		props["MATCH_SCORE"] = m.Score
		props["DATA_SOURCE"] = m.Source
		f.Properties = props
		out.Features = append(out.Features, f)
	}
	return out
}

// Band counts matches within a score range.
type Band struct {
	Label string
	Min   int
	Count int
}

// Count is a labelled tally.
type Count struct {
	Label string
	Count int
}

// Summary describes one matching run.
type Summary struct {
	Owners    int
	Matched   int
	Unmatched int
	Bands     []Band
	BySource  []Count
	ByType    []Count
	Top       []models.Match
}

// topN is the number of best matches listed in a summary.
const topN = 20

// Summarize tallies matches by score band, source file and business type.
func Summarize(owners int, matches []models.Match, unmatched int) Summary {
	s := Summary{
		Owners:    owners,
		Matched:   len(matches),
		Unmatched: unmatched,
		Bands: []Band{
			{Label: "95-100% (Excellent)", Min: 95},
			{Label: "90-94% (Very Good)", Min: 90},
			{Label: "85-89% (Good)", Min: 0},
		},
	}
	sources := map[string]int{}
	types := map[string]int{}
	for _, m := range matches {
		for i := range s.Bands {
			if m.Score >= s.Bands[i].Min {
				s.Bands[i].Count++
				break
			}
		}
		sources[m.Source]++
		t := m.BusinessType
		if t == "" {
			t = "Unknown"
		}
		types[t]++
	}
	s.BySource = sortedCounts(sources)
	s.ByType = sortedCounts(types)

	top := make([]models.Match, len(matches))
	copy(top, matches)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if len(top) > topN {
		top = top[:topN]
	}
	s.Top = top
	return s
}

// sortedCounts orders by count descending, then label.
func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Label: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func round(f float64) int { return int(math.Round(f)) }
