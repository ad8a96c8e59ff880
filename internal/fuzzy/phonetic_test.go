package fuzzy

import (
	"testing"
	"unicode"
)

func TestPhoneticCodeShape(t *testing.T) {
	inputs := []string{
		"Blue-Eyes White Dragon", "Dark Magician", "Elemental HERO Neos",
		"Thousand-Eyes Restrict", "a", "Ash Blossom & Joyous Spring", "Café",
	}

	for _, in := range inputs {
		codes := PhoneticCode(in)
		for i, c := range codes {
			if len(c) > 4 {
				t.Errorf("PhoneticCode(%q)[%d] = %q, longer than 4", in, i, c)
			}
			for _, r := range c {
				if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
					t.Errorf("PhoneticCode(%q)[%d] = %q, has non-uppercase %q", in, i, c, r)
				}
			}
		}
		if codes[0] != "" && codes[1] == "" {
			t.Errorf("PhoneticCode(%q) secondary is empty but primary is %q", in, codes[0])
		}
	}
}

func TestPhoneticCodeEdgeCases(t *testing.T) {
	if codes := PhoneticCode(""); codes != [2]string{} {
		t.Errorf("PhoneticCode(\"\") = %v, want empty codes", codes)
	}
	if codes := PhoneticCode("123 !!"); codes != [2]string{} {
		t.Errorf("PhoneticCode(digits) = %v, want empty codes", codes)
	}
	if codes := PhoneticCode("東京"); codes != [2]string{} {
		t.Errorf("PhoneticCode(non-ASCII) = %v, want empty codes", codes)
	}
	if PhoneticCode("Café") != PhoneticCode("cafe") {
		t.Errorf("PhoneticCode(Café) = %v, want same as cafe %v", PhoneticCode("Café"), PhoneticCode("cafe"))
	}
	if PhoneticCode("Blue-Eyes") != PhoneticCode("blueeyes") {
		t.Errorf("PhoneticCode should ignore punctuation and case")
	}
}

func TestPhoneticSimilarity(t *testing.T) {
	tests := []struct {
		a, b     string
		expected float64
	}{
		{"Smith", "Smyth", 1.0},
		{"Catherine", "Kathryn", 1.0},
		{"Dragon", "dragon", 1.0},
		{"", "Dragon", 0},
		{"Dragon", "", 0},
	}

	for _, tt := range tests {
		result := PhoneticSimilarity(tt.a, tt.b)
		if result != tt.expected {
			t.Errorf("PhoneticSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, result, tt.expected)
		}
	}
}

func TestPhoneticSimilarityRange(t *testing.T) {
	pairs := [][2]string{
		{"Blue-Eyes White Dragon", "Red-Eyes Black Dragon"},
		{"Dark Magician", "Dark Magician Girl"},
		{"Kuriboh", "Winged Kuriboh"},
		{"Jinzo", "Gemini Elf"},
	}
	allowed := map[float64]bool{0: true, 0.7: true, 0.8: true, 1.0: true}

	for _, p := range pairs {
		s := PhoneticSimilarity(p[0], p[1])
		if s < 0 || s > 1 {
			t.Errorf("PhoneticSimilarity(%q, %q) = %v, outside [0,1]", p[0], p[1], s)
		}
		rounded := float64(int(s*10+0.5)) / 10
		if !allowed[rounded] {
			t.Errorf("PhoneticSimilarity(%q, %q) = %v, not one of the defined levels", p[0], p[1], s)
		}
	}
}

func TestCommonPrefix(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"TRKN", "TRK", 3},
		{"PLST", "PLRK", 2},
		{"ABC", "XBC", 0},
		{"", "ABC", 0},
	}

	for _, tt := range tests {
		if result := commonPrefix(tt.a, tt.b); result != tt.expected {
			t.Errorf("commonPrefix(%q, %q) = %d, want %d", tt.a, tt.b, result, tt.expected)
		}
	}
}
