package record

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// identity returns the comparison form of a list value: accents stripped,
// case folded, punctuation and whitespace collapsed. Author names written
// "Last, First" compare equal to "First Last".
func identity(key Key, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	// Transformers carry state, so a fresh chain per call.
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), value)
	if err != nil {
		stripped = value
	}
	folded := cases.Fold().String(stripped)

	if key == Authors {
		if last, first, ok := strings.Cut(folded, ","); ok && !strings.Contains(first, ",") {
			if strings.TrimSpace(first) != "" && strings.TrimSpace(last) != "" {
				folded = first + " " + last
			}
		}
	}

	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}

// Identity exposes the list comparison form for callers that need to match
// values the same way Merge does.
func Identity(key Key, value string) string {
	return identity(key, value)
}
