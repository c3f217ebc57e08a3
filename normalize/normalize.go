// Package normalize implements the string normalization used for
// case-insensitive code and display matching.
//
// Normalization decomposes the string (NFD), strips nonspacing marks so that
// accented characters compare equal to their base letters, recomposes (NFC)
// and applies Unicode case folding.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// String returns the normalized form of s.
func String(s string) string {
	if isPlainLower(s) {
		return s
	}
	// Transformers and casers carry state, so they are built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}

// Equal compares two strings. When caseSensitive is false both sides are
// normalized first.
func Equal(a, b string, caseSensitive bool) bool {
	if a == b {
		return true
	}
	if caseSensitive {
		return false
	}
	return String(a) == String(b)
}

// Contains reports whether needle occurs in haystack after normalization.
func Contains(haystack, needle string) bool {
	return strings.Contains(String(haystack), String(needle))
}

// isPlainLower is a fast path for ASCII strings that are already folded.
func isPlainLower(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= utf8RuneSelf || ('A' <= c && c <= 'Z') {
			return false
		}
	}
	return true
}

const utf8RuneSelf = 0x80
