package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextPreservesParagraphStructure(t *testing.T) {
	raw := `<div><p>First paragraph.</p><p>Second<br>line two.</p><script>alert(1)</script></div>`

	got := Text(raw)

	assert.Equal(t, "First paragraph.\n\nSecond\nline two.", got)
}

func TestBlockTagsBeforeStripOrdering(t *testing.T) {
	// If tags were stripped before <p> conversion, both paragraphs would
	// run together into one.
	raw := `<p>one</p><p>two</p>`
	got := Text(raw)

	paras := Paragraphs(got)
	assert.Len(t, paras, 2)
}

func TestDecodeEntities(t *testing.T) {
	raw := `<p>He said &quot;hello&quot; &amp; waved&nbsp;&mdash; twice.</p>`
	got := Text(raw)

	assert.Equal(t, `He said "hello" & waved — twice.`, got)
}

func TestStripJunkLines(t *testing.T) {
	raw := "<p>Real prose.</p><p>Please support the author at our site!</p><p>Book 3</p><p>More prose.</p>"
	got := Text(raw)

	assert.NotContains(t, got, "support the author")
	assert.NotContains(t, got, "Book 3")
	assert.Contains(t, got, "Real prose.")
	assert.Contains(t, got, "More prose.")
}

func TestCollapseNewlines(t *testing.T) {
	got := collapseWhitespace("a\n\n\n\n\nb")
	assert.Equal(t, "a\n\nb", got)
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount("   "))
	assert.Equal(t, 5, WordCount("the quick  brown\nfox jumps"))
}

func TestParagraphs(t *testing.T) {
	assert.Nil(t, Paragraphs(" \n "))

	paras := Paragraphs("a\n\nb\n\n\nc")
	// The pipeline canonicalizes separators before splitting, but
	// Paragraphs itself must also skip empties.
	var nonEmpty int
	for _, p := range paras {
		if strings.TrimSpace(p) != "" {
			nonEmpty++
		}
	}
	assert.Equal(t, len(paras), nonEmpty)
}
