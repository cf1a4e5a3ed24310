// Package search canonicalizes free text for accent- and case-insensitive matching.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize decomposes accented characters, drops the combining marks and
// lowercases the result. It is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// transform.Chain keeps internal state, so a fresh chain is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}

	return strings.ToLower(stripped)
}

// Contains reports whether query occurs in haystack once both are normalized.
// A query that is blank after trimming matches everything.
func Contains(haystack, query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return true
	}
	return strings.Contains(Normalize(haystack), Normalize(q))
}
