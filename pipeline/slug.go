package pipeline

import (
	"regexp"
	"strings"
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives the canonical novel slug from a title: lowercase,
// non-alphanumeric runs collapsed to a single hyphen, no leading or
// trailing hyphen. The mapping is deterministic so repeated runs resolve
// to the same record.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = nonAlnumRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
