package similarity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize applies NFKC and Unicode case folding.
func Normalize(text string) string {
	return strings.TrimSpace(folder.String(norm.NFKC.String(text)))
}

// Tokenize splits normalized text into word tokens: maximal runs of letters,
// digits, marks and underscores. Single-character tokens are kept so that
// short numeric answers still carry a vector.
func Tokenize(text string) []string {
	normalized := Normalize(text)
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_')
	})
}
