package normalize

import (
	"html"
	"regexp"
	"strings"
)

var (
	numericRefPattern = regexp.MustCompile(`&#\d+;`)
	whitespaceRuns    = regexp.MustCompile(`\s+`)
)

// CleanDescription sanitizes the free-text description of a thing.
// Descriptions arrive HTML-escaped and frequently doubly-escaped
// ("&amp;eacute;"), so entities are decoded twice. Remaining numeric
// character references are blanked, newlines become spaces, and runs
// of whitespace collapse to a single space. The result is not
// trimmed.
func CleanDescription(s string) string {
	s = html.UnescapeString(html.UnescapeString(s))
	s = numericRefPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\n", " ")
	return whitespaceRuns.ReplaceAllString(s, " ")
}
