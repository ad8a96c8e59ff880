package fuzzy

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxCodeLength bounds each phonetic code
const maxCodeLength = 4

// foldAccents turns "Café" into "Cafe" so accented letters survive the
// ASCII filter as their base letter.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func asciiLetters(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneticCode returns the Double Metaphone primary and secondary codes of
// s, each at most four uppercase letters. Anything that is not an ASCII
// letter after accent folding is dropped first, so multi-word names encode
// as one word. The secondary code equals the primary when the encoder has
// no alternative.
func PhoneticCode(s string) [2]string {
	letters := asciiLetters(foldAccents(strings.TrimSpace(s)))
	if letters == "" {
		return [2]string{}
	}
	primary, secondary := matchr.DoubleMetaphone(strings.ToUpper(letters))
	primary = truncateCode(primary)
	secondary = truncateCode(secondary)
	if secondary == "" {
		secondary = primary
	}
	return [2]string{primary, secondary}
}

func truncateCode(code string) string {
	code = strings.ToUpper(code)
	if len(code) > maxCodeLength {
		return code[:maxCodeLength]
	}
	return code
}

// PhoneticSimilarity compares the phonetic codes of a and b:
// 1.0 when any code pair is equal, 0.8 when one code is a prefix of the
// other, 0.5+0.1k for the longest common prefix k >= 2, else 0.
func PhoneticSimilarity(a, b string) float64 {
	ca, cb := PhoneticCode(a), PhoneticCode(b)
	if ca[0] == "" || cb[0] == "" {
		return 0
	}

	for _, x := range ca {
		for _, y := range cb {
			if x != "" && x == y {
				return 1.0
			}
		}
	}

	for _, x := range ca {
		for _, y := range cb {
			if x == "" || y == "" {
				continue
			}
			if strings.HasPrefix(x, y) || strings.HasPrefix(y, x) {
				return 0.8
			}
		}
	}

	best := 0
	for _, x := range ca {
		for _, y := range cb {
			if k := commonPrefix(x, y); k > best {
				best = k
			}
		}
	}
	if best >= 2 {
		return 0.5 + float64(best)*0.1
	}
	return 0
}

func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
