package httputil

import (
	"strings"
	"unicode"
)

// MaxFieldIDLength bounds field ids accepted from URLs.
const MaxFieldIDLength = 256

// ValidateFieldID checks a lockable field id such as "posts.42.title".
// It must be non-empty, at most MaxFieldIDLength bytes, and free of
// whitespace and control characters.
func ValidateFieldID(id string) bool {
	if id == "" || len(id) > MaxFieldIDLength {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) < 0
}
