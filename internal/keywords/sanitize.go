// Package keywords turns raw model output into filename-safe keyword tokens
// and builds the renamed file names from them.
package keywords

import (
	"strings"
	"unicode"
)

// MaxNameBytes is the longest file name BuildName will produce when keywords
// are involved. Most filesystems cap a single path element at 255 bytes.
const MaxNameBytes = 255

// Sanitize reduces a raw keyword to letters, digits and single hyphens.
// Whitespace and hyphen runs become one hyphen; anything else is dropped.
// Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "-")
}

// Dedupe drops exact repeats, keeping the first occurrence of each keyword.
func Dedupe(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// BuildName prefixes original with each non-empty keyword followed by an
// underscore. With no usable keyword the original name is returned as is.
// Trailing keywords are dropped until the result fits in MaxNameBytes.
func BuildName(original string, keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k != "" {
			parts = append(parts, k)
		}
	}

	for len(parts) > 0 {
		name := strings.Join(parts, "_") + "_" + original
		if len(name) <= MaxNameBytes {
			return name
		}
		parts = parts[:len(parts)-1]
	}
	return original
}
