package services

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/codyseavey/ygo-ripper/internal/fuzzy"
)

const (
	DefaultResolveLimit    = 5
	DefaultResolveMinScore = 50

	// AutoConfirmGap is the lead the best match needs over the runner-up
	AutoConfirmGap = 10

	phoneticBoost          = 5
	phoneticBoostThreshold = 0.8
)

// ResolveOptions controls Resolve. A Limit of zero or less keeps every match.
type ResolveOptions struct {
	Limit         int
	MinScore      int
	PhoneticBoost bool
}

// DefaultResolveOptions returns limit 5, min score 50 and phonetic boosting
func DefaultResolveOptions() ResolveOptions {
	return ResolveOptions{Limit: DefaultResolveLimit, MinScore: DefaultResolveMinScore, PhoneticBoost: true}
}

// Resolve ranks catalog names against a transcript. Each name is scored with
// WeightedRatio; names that also sound alike get a small boost. Results are
// ordered by score, ties keeping catalog order.
func Resolve(transcript string, catalog []string, opts ResolveOptions) []fuzzy.Match {
	if strings.TrimSpace(transcript) == "" || len(catalog) == 0 {
		return nil
	}

	var matches []fuzzy.Match
	for i, name := range catalog {
		score := fuzzy.WeightedRatio(transcript, name)
		if opts.PhoneticBoost && fuzzy.PhoneticSimilarity(transcript, name) >= phoneticBoostThreshold {
			score = min(score+phoneticBoost, 100)
		}
		if score >= opts.MinScore {
			matches = append(matches, fuzzy.Match{Text: name, Score: score, Index: i})
		}
	}

	fuzzy.SortMatches(matches)
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches
}

// DecisionKind is the outcome of classifying ranked matches
type DecisionKind int

const (
	DecisionNone DecisionKind = iota
	DecisionAutoConfirm
	DecisionAmbiguous
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAutoConfirm:
		return "auto_confirm"
	case DecisionAmbiguous:
		return "ambiguous"
	}
	return "none"
}

// Decision carries the classified matches. Match is set for AutoConfirm;
// Candidates always holds the ranked matches that were classified.
type Decision struct {
	Kind       DecisionKind
	Match      fuzzy.Match
	Candidates []fuzzy.Match
}

// Classify decides whether the best match can be accepted without asking.
// The top match must reach threshold and lead the second by AutoConfirmGap;
// reaching the threshold without that lead is ambiguous.
func Classify(matches []fuzzy.Match, threshold int) Decision {
	d := Decision{Kind: DecisionNone, Candidates: matches}
	if len(matches) == 0 {
		return d
	}

	top := matches[0]
	if top.Score < threshold {
		return d
	}
	second := 0
	if len(matches) > 1 {
		second = matches[1].Score
	}
	if top.Score-second >= AutoConfirmGap {
		d.Kind = DecisionAutoConfirm
		d.Match = top
		return d
	}
	d.Kind = DecisionAmbiguous
	return d
}

// CardResolver binds resolve options and the auto-confirm threshold
type CardResolver struct {
	Options              ResolveOptions
	AutoConfirmThreshold int
}

// NewCardResolver creates a resolver with the default options
func NewCardResolver(autoConfirmThreshold int) *CardResolver {
	return &CardResolver{Options: DefaultResolveOptions(), AutoConfirmThreshold: autoConfirmThreshold}
}

// Decide resolves a transcript against the catalog and classifies the result
func (r *CardResolver) Decide(transcript string, catalog []string) Decision {
	return Classify(Resolve(transcript, catalog, r.Options), r.AutoConfirmThreshold)
}

// Utterance is a dictated card with the rarity and art variant split off
type Utterance struct {
	CardName   string
	Rarity     string
	ArtVariant string
}

var artPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bart variant (\w+)`),
	regexp.MustCompile(`\bart (\w+)`),
	regexp.MustCompile(`\bvariant (\w+)`),
	regexp.MustCompile(`\bartwork (\w+)`),
}

type rarityPattern struct {
	re   *regexp.Regexp
	name string // empty means use the first capture group
}

// rarityPatterns are tried in order; longer rarities come first so
// "secret rare" is not read as "rare"
var rarityPatterns = []rarityPattern{
	{regexp.MustCompile(`\bquarter century secret(?: rare)?\b`), "Quarter Century Secret Rare"},
	{regexp.MustCompile(`\bprismatic secret(?: rare)?\b`), "Prismatic Secret Rare"},
	{regexp.MustCompile(`\bstarlight rare\b`), "Starlight Rare"},
	{regexp.MustCompile(`\bcollector'?s? rare\b`), "Collector's Rare"},
	{regexp.MustCompile(`\bghost rare\b`), "Ghost Rare"},
	{regexp.MustCompile(`\bsecret rare\b`), "Secret Rare"},
	{regexp.MustCompile(`\bultra rare\b`), "Ultra Rare"},
	{regexp.MustCompile(`\bsuper rare\b`), "Super Rare"},
	{regexp.MustCompile(`\brare\b`), "Rare"},
	{regexp.MustCompile(`\bcommon\b`), "Common"},
	{regexp.MustCompile(`\brarity (\w+)`), ""},
}

// ParseUtterance extracts a spoken art variant ("art 2", "variant blue") and
// rarity ("quarter century secret rare", "rarity gold") from a dictated card.
// What remains is the card name.
func ParseUtterance(text string) Utterance {
	rest := strings.ToLower(strings.TrimSpace(text))
	var u Utterance

	for _, re := range artPatterns {
		if m := re.FindStringSubmatchIndex(rest); m != nil {
			u.ArtVariant = rest[m[2]:m[3]]
			rest = rest[:m[0]] + " " + rest[m[1]:]
			break
		}
	}

	for _, p := range rarityPatterns {
		m := p.re.FindStringSubmatchIndex(rest)
		if m == nil {
			continue
		}
		if p.name != "" {
			u.Rarity = p.name
		} else {
			u.Rarity = rest[m[2]:m[3]]
		}
		rest = rest[:m[0]] + " " + rest[m[1]:]
		break
	}

	u.CardName = strings.Join(strings.Fields(rest), " ")
	return u
}

// SelectionKind is what a reply to a pending prompt asked for
type SelectionKind int

const (
	SelectionUnrecognized SelectionKind = iota
	SelectionOption
	SelectionOutOfRange
	SelectionReject
)

// Selection is a parsed reply; Index is zero-based and set for SelectionOption
type Selection struct {
	Kind  SelectionKind
	Index int
}

var (
	numberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\s*(\w+)\s*$`),
		regexp.MustCompile(`\boption\s+(\w+)`),
		regexp.MustCompile(`\bselect\s+(\w+)`),
		regexp.MustCompile(`\bchoose\s+(\w+)`),
		regexp.MustCompile(`\bnumber\s+(\w+)`),
	}
	rejectPattern = regexp.MustCompile(`\b(?:reject|cancel|no|none|skip)\b`)

	numberWords = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
		"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	}
)

// ParseSelection interprets a reply to a prompt offering n options:
// "2", "option 2", "select two" pick an option; "cancel", "no", "skip"
// reject them all.
func ParseSelection(text string, n int) Selection {
	text = strings.ToLower(strings.TrimSpace(text))

	for _, re := range numberPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		num, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		if num < 1 || num > n {
			return Selection{Kind: SelectionOutOfRange}
		}
		return Selection{Kind: SelectionOption, Index: num - 1}
	}

	if rejectPattern.MatchString(text) {
		return Selection{Kind: SelectionReject}
	}
	return Selection{Kind: SelectionUnrecognized}
}

func parseNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	n, ok := numberWords[s]
	return n, ok
}
