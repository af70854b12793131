package core

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// StringsContain reports whether s is in sorted.
func StringsContain(sorted []string, s string) bool {
	idx := sort.SearchStrings(sorted, s)
	return idx < len(sorted) && sorted[idx] == s
}

// IsPlainText reports whether s is valid UTF-8 without control characters other than tabs and line breaks.
// Such strings survive every store unchanged, xlsx cells included.
func IsPlainText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) || r == 0xFFFE || r == 0xFFFF {
			return false
		}
	}
	return true
}
