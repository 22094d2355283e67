package directive

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize applies compatibility normalization, case folding and
// whitespace collapsing to text.
func Normalize(text string) string {
	s := norm.NFKC.String(text)
	s = cases.Fold().String(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// ContentHash is the locator hash of text: BLAKE2b-256 of the normalized
// text, as lowercase hex. Empty text has no hash.
func ContentHash(text string) string {
	n := Normalize(text)
	if n == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(n))
	return hex.EncodeToString(sum[:])
}
