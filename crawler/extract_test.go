package crawler

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"novelpipe/models"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

const listingHTML = `<html><body>
<div class="novel-item">
  <div class="novel-title"><a href="/novel/sword-saga">Sword Saga</a></div>
  <div class="novel-author">Mo Yan</div>
  <div class="novel-synopsis">A sword. A saga.</div>
  <img src="/covers/sword.jpg">
</div>
<div class="novel-item _completed">
  <div class="novel-title"><a href="/novel/done-story">Done Story</a></div>
  <div class="novel-author">An Author</div>
  <div class="novel-synopsis">Finished long ago.</div>
  <img src="/covers/done.jpg">
</div>
<div class="novel-item">
  <div class="novel-title"><a href="/premium/novel/locked">Locked Tale</a></div>
  <div class="novel-author">Hidden</div>
</div>
</body></html>`

func TestExtractNovelCardsFiltersPremium(t *testing.T) {
	doc := docFrom(t, listingHTML)

	novels := ExtractNovelCards(doc, "https://example.com/browse")

	require.Len(t, novels, 2)
	assert.Equal(t, "Sword Saga", novels[0].Title)
	assert.Equal(t, "https://example.com/novel/sword-saga", novels[0].SourceURL)
	assert.Equal(t, "https://example.com/covers/sword.jpg", novels[0].CoverURL)
	assert.Equal(t, models.StatusOngoing, novels[0].Status)
	assert.Equal(t, models.StatusCompleted, novels[1].Status)
}

func TestExtractNovelCardsDiscardsEmptyEntries(t *testing.T) {
	doc := docFrom(t, `<div class="novel-item"><div class="novel-title"><a href="">Nameless</a></div></div>
<div class="novel-item"><div class="novel-title"><a href="/novel/x"></a></div></div>`)

	novels := ExtractNovelCards(doc, "https://example.com")
	assert.Empty(t, novels)
}

func TestExtractNovelDetail(t *testing.T) {
	doc := docFrom(t, `<html><body>
<h1 class="novel-title">The Beginning After The End</h1>
<div class="author"><span itemprop="author">TurtleMe</span></div>
<div class="summary"><div class="content">King Grey has it all.</div></div>
<div class="fixed-img"><img src="/cover.png"></div>
<div class="genres"><a>Fantasy</a><a>Action</a></div>
<div class="novel-status">Completed</div>
</body></html>`)

	info := ExtractNovelDetail(doc, "https://example.com/novel/tbate")

	assert.Equal(t, "The Beginning After The End", info.Title)
	assert.Equal(t, "TurtleMe", info.Author)
	assert.Equal(t, "King Grey has it all.", info.Synopsis)
	assert.Equal(t, []string{"Fantasy", "Action"}, info.Genres)
	assert.Equal(t, models.StatusCompleted, info.Status)
}

func TestExtractNovelDetailNoTitle(t *testing.T) {
	doc := docFrom(t, `<html><body><p>nothing here</p></body></html>`)
	info := ExtractNovelDetail(doc, "https://example.com/novel/x")
	assert.Empty(t, info.Title)
}

func TestParseChapterNumberCascade(t *testing.T) {
	cases := []struct {
		text string
		want int
		ok   bool
	}{
		{"Chapter 12: The Awakening", 12, true},
		{"chapter  7", 7, true},
		{"12. The Awakening", 12, true},
		{"The Awakening", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseChapterNumber(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.text)
		}
	}
}

func TestExtractChapterIndex(t *testing.T) {
	doc := docFrom(t, `<ul class="chapter-list">
<li><a href="/c/2">Chapter 2: Second</a></li>
<li><a href="/c/1">Chapter 1: First</a></li>
<li><a href="/c/1">Chapter 1: First</a></li>
<li><a href="/c/3">Interlude</a></li>
</ul>`)

	chapters := ExtractChapterIndex(doc, "https://example.com/novel/x")

	require.Len(t, chapters, 3)
	assert.Equal(t, 1, chapters[0].Number)
	assert.Equal(t, 2, chapters[1].Number)
	// "Interlude" has no digits; it takes the next sequential slot.
	assert.Equal(t, 3, chapters[2].Number)
	assert.Equal(t, "https://example.com/c/3", chapters[2].URL)
}

func TestExtractChapterContentProbesByLength(t *testing.T) {
	long := strings.Repeat("Prose sentence here. ", 25) // ~500 chars

	doc := docFrom(t, `<html><body>
<div class="chapter-content">short</div>
<div id="chapter-content">   </div>
<div id="content"><p>`+long+`</p></div>
<script>tracking()</script>
</body></html>`)

	got := ExtractChapterContent(doc)

	assert.Contains(t, got, "Prose sentence here.")
	assert.NotContains(t, got, "tracking")
}

func TestExtractChapterContentNotFound(t *testing.T) {
	doc := docFrom(t, `<html><body><div class="sidebar">nav</div></body></html>`)
	assert.Empty(t, ExtractChapterContent(doc))
}
