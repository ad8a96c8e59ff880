package services

import (
	"testing"

	"github.com/codyseavey/ygo-ripper/internal/fuzzy"
	"github.com/codyseavey/ygo-ripper/internal/voice"
)

var starterCatalog = []string{"Blue-Eyes White Dragon", "Red-Eyes Black Dragon", "Dark Magician"}

func TestFuzzyMatchPipeline(t *testing.T) {
	transcript := voice.NewNormalizer(nil).Normalize("blue eys white dragun")
	if transcript != "blue eys white Dragon" {
		t.Fatalf("Normalize() = %q, want %q", transcript, "blue eys white Dragon")
	}

	matches := Resolve(transcript, starterCatalog, DefaultResolveOptions())
	if len(matches) == 0 {
		t.Fatal("Expected matches")
	}
	if matches[0].Text != "Blue-Eyes White Dragon" {
		t.Errorf("top match = %q, want Blue-Eyes White Dragon", matches[0].Text)
	}
	if matches[0].Score < 80 {
		t.Errorf("top score = %d, want >= 80", matches[0].Score)
	}
	for _, m := range matches {
		if m.Text == "Dark Magician" {
			t.Errorf("Dark Magician (score %d) should be filtered out", m.Score)
		}
	}

	d := Classify(matches, 85)
	if d.Kind != DecisionAutoConfirm {
		t.Fatalf("Classify() = %s, want auto_confirm (matches %+v)", d.Kind, matches)
	}
	if d.Match.Text != "Blue-Eyes White Dragon" || d.Match.Index != 0 {
		t.Errorf("decision match = %+v", d.Match)
	}
}

func TestResolvePhoneticBoost(t *testing.T) {
	catalog := []string{"Dark Magician", "Dark Magician Girl", "Magician of Dark Illusion"}

	plain := Resolve("dark magician", catalog, ResolveOptions{Limit: 5, MinScore: 50})
	boosted := Resolve("dark magician", catalog, DefaultResolveOptions())

	if len(plain) != 3 || len(boosted) != 3 {
		t.Fatalf("Expected 3 matches, got %d and %d", len(plain), len(boosted))
	}
	if plain[0].Score != 100 || boosted[0].Score != 100 {
		t.Errorf("exact match scores = %d/%d, want 100 (boost is capped)", plain[0].Score, boosted[0].Score)
	}
	// "Dark Magician Girl" encodes like "Dark Magician" and gains the boost
	if boosted[1].Score != plain[1].Score+5 {
		t.Errorf("boosted score = %d, want %d", boosted[1].Score, plain[1].Score+5)
	}
	if boosted[2].Score != plain[2].Score {
		t.Errorf("unrelated name boosted: %d vs %d", boosted[2].Score, plain[2].Score)
	}

	if d := Classify(plain, 85); d.Kind != DecisionAutoConfirm {
		t.Errorf("Classify(plain) = %s, want auto_confirm", d.Kind)
	}
	if d := Classify(boosted, 85); d.Kind != DecisionAmbiguous {
		t.Errorf("Classify(boosted) = %s, want ambiguous", d.Kind)
	}
}

func TestResolveOrderingAndLimits(t *testing.T) {
	catalog := []string{"Magician of Dark Illusion", "Dark Magician Girl", "Dark Magician"}

	matches := Resolve("magician", catalog, ResolveOptions{Limit: 2, MinScore: 0})
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("matches not sorted: %+v", matches)
	}
	if matches[0].Text != "Dark Magician" || matches[0].Index != 2 {
		t.Errorf("top match = %+v, want Dark Magician at index 2", matches[0])
	}

	all := Resolve("magician", catalog, ResolveOptions{Limit: 0, MinScore: 0})
	if len(all) != 3 {
		t.Errorf("Limit 0 kept %d matches, want 3", len(all))
	}

	tests := []struct {
		name       string
		transcript string
		catalog    []string
	}{
		{"empty transcript", "", catalog},
		{"blank transcript", "   ", catalog},
		{"empty catalog", "dark magician", nil},
		{"nothing close", "kuriboh", starterCatalog},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.transcript, tt.catalog, DefaultResolveOptions()); len(got) != 0 {
				t.Errorf("Resolve(%q) = %+v, want none", tt.transcript, got)
			}
		})
	}
}

func TestResolveTiesKeepCatalogOrder(t *testing.T) {
	catalog := []string{"Mirror Force", "Mirror Force", "Mirror Force"}
	matches := Resolve("mirror force", catalog, DefaultResolveOptions())
	for i, m := range matches {
		if m.Index != i {
			t.Errorf("match %d has index %d, want %d", i, m.Index, i)
		}
	}
}

func TestClassify(t *testing.T) {
	m := func(scores ...int) []fuzzy.Match {
		out := make([]fuzzy.Match, len(scores))
		for i, s := range scores {
			out[i] = fuzzy.Match{Text: string(rune('A' + i)), Score: s, Index: i}
		}
		return out
	}

	tests := []struct {
		name    string
		matches []fuzzy.Match
		want    DecisionKind
	}{
		{"no matches", nil, DecisionNone},
		{"below threshold", m(84, 40), DecisionNone},
		{"single match at threshold", m(85), DecisionAutoConfirm},
		{"gap exactly ten", m(95, 85), DecisionAutoConfirm},
		{"gap nine", m(95, 86), DecisionAmbiguous},
		{"tied", m(90, 90, 90), DecisionAmbiguous},
		{"clear winner", m(100, 51, 17), DecisionAutoConfirm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(tt.matches, 85)
			if d.Kind != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.matches, d.Kind, tt.want)
			}
			if len(d.Candidates) != len(tt.matches) {
				t.Errorf("Candidates = %d, want %d", len(d.Candidates), len(tt.matches))
			}
			if d.Kind == DecisionAutoConfirm && d.Match != tt.matches[0] {
				t.Errorf("Match = %+v, want %+v", d.Match, tt.matches[0])
			}
		})
	}
}

func TestCardResolverDecide(t *testing.T) {
	r := NewCardResolver(85)
	if d := r.Decide("Dark Magician", starterCatalog); d.Kind != DecisionAutoConfirm || d.Match.Text != "Dark Magician" {
		t.Errorf("Decide(Dark Magician) = %s %+v", d.Kind, d.Match)
	}
	if d := r.Decide("kuriboh", starterCatalog); d.Kind != DecisionNone || len(d.Candidates) != 0 {
		t.Errorf("Decide(kuriboh) = %s with %d candidates", d.Kind, len(d.Candidates))
	}
}

func TestParseUtterance(t *testing.T) {
	tests := []struct {
		input string
		want  Utterance
	}{
		{"Blue-Eyes White Dragon ultra rare", Utterance{CardName: "blue-eyes white dragon", Rarity: "Ultra Rare"}},
		{"dark magician secret rare art 2", Utterance{CardName: "dark magician", Rarity: "Secret Rare", ArtVariant: "2"}},
		{"kuriboh quarter century secret rare", Utterance{CardName: "kuriboh", Rarity: "Quarter Century Secret Rare"}},
		{"Starlight rare Ash Blossom", Utterance{CardName: "ash blossom", Rarity: "Starlight Rare"}},
		{"mirror force rarity gold", Utterance{CardName: "mirror force", Rarity: "gold"}},
		{"dark magician art variant blue", Utterance{CardName: "dark magician", ArtVariant: "blue"}},
		{"exodia artwork three common", Utterance{CardName: "exodia", Rarity: "Common", ArtVariant: "three"}},
		{"  summoned   skull ", Utterance{CardName: "summoned skull"}},
		{"", Utterance{}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseUtterance(tt.input); got != tt.want {
				t.Errorf("ParseUtterance(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		input string
		want  Selection
	}{
		{"2", Selection{Kind: SelectionOption, Index: 1}},
		{"option 3", Selection{Kind: SelectionOption, Index: 2}},
		{"select two", Selection{Kind: SelectionOption, Index: 1}},
		{"choose One", Selection{Kind: SelectionOption, Index: 0}},
		{"first", Selection{Kind: SelectionOption, Index: 0}},
		{"number 4", Selection{Kind: SelectionOutOfRange}},
		{"0", Selection{Kind: SelectionOutOfRange}},
		{"choose five", Selection{Kind: SelectionOutOfRange}},
		{"cancel", Selection{Kind: SelectionReject}},
		{"no thanks", Selection{Kind: SelectionReject}},
		{"skip it", Selection{Kind: SelectionReject}},
		{"nothing", Selection{Kind: SelectionUnrecognized}},
		{"blue eyes white dragon", Selection{Kind: SelectionUnrecognized}},
		{"", Selection{Kind: SelectionUnrecognized}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseSelection(tt.input, 3); got != tt.want {
				t.Errorf("ParseSelection(%q, 3) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecisionKindString(t *testing.T) {
	tests := []struct {
		kind DecisionKind
		want string
	}{
		{DecisionNone, "none"},
		{DecisionAutoConfirm, "auto_confirm"},
		{DecisionAmbiguous, "ambiguous"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
