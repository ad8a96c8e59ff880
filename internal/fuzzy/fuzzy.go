// Package fuzzy scores how similar two short strings are, such as a spoken
// transcript and a card name. Every function trims and lower-cases its
// inputs, never panics, and is pure.
package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Match is one scored choice returned by ExtractBest
type Match struct {
	Text  string `json:"text"`  // the choice as given
	Score int    `json:"score"` // 0..100
	Index int    `json:"index"` // position of the choice in the input slice
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EditDistance is the Levenshtein distance between the cleaned inputs,
// counted in runes with unit costs.
func EditDistance(a, b string) int {
	return levenshtein.ComputeDistance(clean(a), clean(b))
}

// Ratio is round((1 - d/max(len)) * 100). Equal strings (both empty
// included) score 100; a single empty side scores 0.
func Ratio(a, b string) int {
	return ratio(clean(a), clean(b))
}

func ratio(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return int(math.Round((1 - float64(d)/float64(longest)) * 100))
}

// PartialRatio is the best Ratio of the shorter string against every
// window of the longer one with the same length.
func PartialRatio(a, b string) int {
	a, b = clean(a), clean(b)
	if a == "" || b == "" {
		return 0
	}
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == len(long) {
		return ratio(a, b)
	}

	s := string(short)
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := ratio(s, string(long[i:i+len(short)])); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares the inputs with their words sorted
func TokenSortRatio(a, b string) int {
	return ratio(sortedTokens(clean(a)), sortedTokens(clean(b)))
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TokenSetRatio compares the shared words against each side's extra words:
// with T0 the sorted intersection and T1, T2 the intersection followed by
// each side's remainder, it returns max(Ratio(T0,T1), Ratio(T0,T2), Ratio(T1,T2)).
func TokenSetRatio(a, b string) int {
	setA, setB := tokenSet(clean(a)), tokenSet(clean(b))
	if len(setA) == 0 && len(setB) == 0 {
		return 100
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var inter, onlyA, onlyB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	return max(ratio(t0, t1), ratio(t0, t2), ratio(t1, t2))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}

// WeightedRatio blends the four scores:
// round(0.2*Ratio + 0.3*PartialRatio + 0.2*TokenSortRatio + 0.3*TokenSetRatio).
// It is 0 when either side is empty and symmetric in its arguments.
func WeightedRatio(a, b string) int {
	if clean(a) == "" || clean(b) == "" {
		return 0
	}
	score := 0.2*float64(Ratio(a, b)) +
		0.3*float64(PartialRatio(a, b)) +
		0.2*float64(TokenSortRatio(a, b)) +
		0.3*float64(TokenSetRatio(a, b))
	return int(math.Round(score))
}

// ExtractBest scores every choice against query with WeightedRatio, keeps
// those scoring at least minScore and returns them best first. Ties keep
// input order. A limit of zero or less returns every match.
func ExtractBest(query string, choices []string, limit, minScore int) []Match {
	if clean(query) == "" {
		return nil
	}
	var matches []Match
	for i, choice := range choices {
		score := WeightedRatio(query, choice)
		if score >= minScore {
			matches = append(matches, Match{Text: choice, Score: score, Index: i})
		}
	}
	SortMatches(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// SortMatches orders matches by descending score, then ascending index
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Index < matches[j].Index
	})
}
