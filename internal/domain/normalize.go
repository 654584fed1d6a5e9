package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MinQueryLength is the shortest normalized query worth sending to a provider.
const MinQueryLength = 2

// Normalize canonicalizes a free-text query: lower-case, compatibility forms
// folded, every run of non letter/digit runes turned into a single space,
// surrounding space trimmed. Combining marks are kept; in Indic scripts they
// carry vowels and conjuncts. It never fails and
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	folded := norm.NFKC.String(strings.ToLower(text))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if !isWordRune(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Hash returns a 128-bit hex digest of the normalized text. Equal hashes are
// taken to mean "same place" during merge detection.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:16])
}

// CoordinateQuery renders coordinates as the query text used to key reverse
// lookups. Hemisphere letters keep the sign through normalization.
func CoordinateQuery(lat, lng float64) string {
	ns, ew := "n", "e"
	if lat < 0 {
		ns = "s"
	}
	if lng < 0 {
		ew = "w"
	}
	return fmt.Sprintf("%.6f%s %.6f%s", math.Abs(lat), ns, math.Abs(lng), ew)
}

// queryLength counts runes, not bytes, so short non-Latin queries are measured fairly.
func queryLength(normalized string) int {
	return len([]rune(normalized))
}

// QueryUsable reports whether a normalized query is long enough to resolve.
func QueryUsable(normalized string) bool {
	return queryLength(normalized) >= MinQueryLength
}

// isWordRune keeps letters, digits and combining marks (vowel signs and
// viramas in Devanagari and other Indic scripts) together as one token.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.In(r, unicode.Mn, unicode.Mc)
}
