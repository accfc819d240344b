package match

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Scorer rates the similarity of two names on a 0..100 scale.
type Scorer func(a, b string) float64

// TokenSortRatio sorts the whitespace separated tokens of each name, then
// compares the joined strings by insertion/deletion distance:
// 100 * 2*LCS / (len(a)+len(b)). Case is significant.
func TokenSortRatio(a, b string) float64 {
	a, b = sortTokens(a), sortTokens(b)
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 0
	}
	lcs := matchr.LongestCommonSubsequence(a, b)
	return 100 * float64(2*lcs) / float64(total)
}

// JaroWinklerScore is the Jaro-Winkler similarity scaled to 0..100.
func JaroWinklerScore(a, b string) float64 {
	return 100 * matchr.JaroWinkler(a, b, false)
}

// ScorerByName returns "token_sort" (default) or "jaro_winkler".
func ScorerByName(name string) (Scorer, error) {
	switch strings.ToLower(name) {
	case "", "token_sort":
		return TokenSortRatio, nil
	case "jaro_winkler":
		return JaroWinklerScore, nil
	default:
		return nil, fmt.Errorf("match: unknown scorer %q", name)
	}
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
