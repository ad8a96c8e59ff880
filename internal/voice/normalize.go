package voice

import (
	"regexp"
	"sort"
	"strings"
)

// Mispronunciations maps words speech engines commonly hear for card-name
// vocabulary to the intended spelling. Keys are lower case.
var Mispronunciations = map[string]string{
	"dragun":    "Dragon",
	"dragan":    "Dragon",
	"draggon":   "Dragon",
	"majician":  "Magician",
	"magishun":  "Magician",
	"magican":   "Magician",
	"eys":       "Eyes",
	"eyez":      "Eyes",
	"hiro":      "Hero",
	"heero":     "Hero",
	"siber":     "Cyber",
	"gaya":      "Gaia",
	"evel":      "Evil",
	"drak":      "Dark",
	"blu":       "Blue",
	"kuribo":    "Kuriboh",
	"exodea":    "Exodia",
	"jinzoh":    "Jinzo",
	"zombi":     "Zombie",
	"sorcerror": "Sorcerer",
}

var (
	punctuation = regexp.MustCompile("[!\"#$%&'()*+,./:;<=>?@\\[\\\\\\]^_`{|}~]")
	whitespace  = regexp.MustCompile(`\s+`)
)

// Normalizer cleans transcripts for card-name matching: it strips ASCII
// punctuation except hyphens, collapses whitespace and fixes known
// mispronunciations as whole words, ignoring case.
type Normalizer struct {
	table   map[string]string
	pattern *regexp.Regexp
}

// NewNormalizer builds a normalizer from Mispronunciations plus extra
// entries; extra wins on conflicts.
func NewNormalizer(extra map[string]string) *Normalizer {
	table := make(map[string]string, len(Mispronunciations)+len(extra))
	for k, v := range Mispronunciations {
		table[strings.ToLower(k)] = v
	}
	for k, v := range extra {
		table[strings.ToLower(k)] = v
	}

	words := make([]string, 0, len(table))
	for k := range table {
		words = append(words, regexp.QuoteMeta(k))
	}
	// Longest first so overlapping entries prefer the longer word
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})

	n := &Normalizer{table: table}
	if len(words) > 0 {
		n.pattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
	}
	return n
}

// Normalize returns the cleaned transcript
func (n *Normalizer) Normalize(transcript string) string {
	s := punctuation.ReplaceAllString(transcript, "")
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	if n.pattern == nil || s == "" {
		return s
	}
	return n.pattern.ReplaceAllStringFunc(s, func(word string) string {
		if fixed, ok := n.table[strings.ToLower(word)]; ok {
			return fixed
		}
		return word
	})
}
