package domain

import "unicode/utf8"

const ellipsis = "..."

// Truncate cuts s to at most max characters.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// TruncateEllipsis cuts s to max characters and appends "..." when anything
// was removed.
func TruncateEllipsis(s string, max int) string {
	t := Truncate(s, max)
	if len(t) < len(s) {
		return t + ellipsis
	}
	return t
}
