package domain

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Slug lower-cases name and replaces every run of whitespace with a single underscore. It is
// used for workflow ids and export file names.
func Slug(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(name), "_")
}
