package util

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// NewID returns a random identifier.
func NewID() string { return uuid.NewString() }

// Truncate shortens s to at most n runes. Non-positive n returns s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Fold lower-cases s for matching. The four Turkish and English forms of
// the letter I (I, İ, ı, i) all fold to i, so English "Insomnia" and
// Turkish "İLAÇ" match their lower-case spellings.
func Fold(s string) string {
	return dotlessI.Replace(strings.ToLowerSpecial(unicode.TurkishCase, s))
}

var dotlessI = strings.NewReplacer("ı", "i")

// Tokenize folds s and splits it into words of letters and digits.
func Tokenize(s string) []string {
	s = Fold(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords tokenizes s, drops tokens shorter than minLen or present in stop,
// and deduplicates while keeping first-seen order. Keys of stop must already
// be folded.
func Keywords(s string, stop map[string]struct{}, minLen int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(s) {
		if len([]rune(tok)) < minLen {
			continue
		}
		if _, ok := stop[tok]; ok {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// ContainsFold reports whether substr is within s after both are folded.
func ContainsFold(s, substr string) bool {
	return strings.Contains(Fold(s), Fold(substr))
}
