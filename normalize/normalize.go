// Package normalize turns raw chapter HTML into translation-ready plain
// text. The transform order matters: block tags must become newlines
// before the remaining tags are stripped, otherwise paragraph structure
// is lost.
package normalize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Step is one named transform in the normalization pipeline.
type Step struct {
	Name  string
	Apply func(string) string
}

var (
	brRe         = regexp.MustCompile(`(?i)<br\s*/?>`)
	pOpenRe      = regexp.MustCompile(`(?i)<p[^>]*>`)
	pCloseRe     = regexp.MustCompile(`(?i)</p>`)
	divCloseRe   = regexp.MustCompile(`(?i)</div>`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)

	stripPolicy = bluemonday.StrictPolicy()

	// junkPatterns matches promotional and filler text injected by source
	// sites. Matches are removed line by line.
	junkPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)please\s+support\s+the\s+author`),
		regexp.MustCompile(`(?i)support\s+the\s+author\s+by\s+reading`),
		regexp.MustCompile(`(?i)affiliate\s+links?`),
		regexp.MustCompile(`(?i)^book\s+\d+\s*$`),
		regexp.MustCompile(`(?i)read\s+the\s+latest\s+chapters?\s+at`),
		regexp.MustCompile(`(?i)this\s+chapter\s+is\s+updated\s+by`),
		regexp.MustCompile(`本章未完[，,]?点击下一页继续阅读`),
	}
)

// Steps is the canonical pipeline, applied in order by Text.
var Steps = []Step{
	{"block-tags-to-newlines", blockTagsToNewlines},
	{"strip-tags", stripTags},
	{"decode-entities", decodeEntities},
	{"strip-junk", stripJunk},
	{"collapse-whitespace", collapseWhitespace},
}

// Text runs the full normalization pipeline over a raw HTML fragment.
func Text(rawHTML string) string {
	s := rawHTML
	for _, step := range Steps {
		s = step.Apply(s)
	}
	return s
}

func blockTagsToNewlines(s string) string {
	s = brRe.ReplaceAllString(s, "\n")
	s = pOpenRe.ReplaceAllString(s, "")
	s = pCloseRe.ReplaceAllString(s, "\n\n")
	s = divCloseRe.ReplaceAllString(s, "\n\n")
	return s
}

func stripTags(s string) string {
	return stripPolicy.Sanitize(s)
}

func decodeEntities(s string) string {
	s = html.UnescapeString(s)
	// StrictPolicy re-escapes text content, so a second pass catches
	// entities it produced.
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, "​", "")
	return s
}

func stripJunk(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		junk := false
		for _, re := range junkPatterns {
			if re.MatchString(strings.TrimSpace(line)) {
				junk = true
				break
			}
		}
		if !junk {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func collapseWhitespace(s string) string {
	s = spaceRunRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")

	s = newlineRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// WordCount counts whitespace-separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Paragraphs splits normalized text on blank lines.
func Paragraphs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
