package crawler

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"novelpipe/models"
)

// NovelInfo is the extracted metadata for one source work.
type NovelInfo struct {
	Title     string
	Author    string
	Synopsis  string
	CoverURL  string
	SourceURL string
	Status    string
	Genres    []string
}

// ChapterRef is one entry of a novel's chapter index.
type ChapterRef struct {
	Number int
	Title  string
	URL    string
}

// minContentLength guards the content-container probe against selecting
// an empty or wrong container.
const minContentLength = 100

var (
	chapterNumRe = regexp.MustCompile(`(?i)chapter\s*(\d+)`)
	digitRunRe   = regexp.MustCompile(`(\d+)`)
)

// cardStrategy maps one listing-page card layout onto NovelInfo fields.
type cardStrategy struct {
	card, titleLink, author, synopsis, cover, completedClass string
}

var cardStrategies = []cardStrategy{
	{
		card:           ".novel-item",
		titleLink:      ".novel-title a",
		author:         ".novel-author",
		synopsis:       ".novel-synopsis",
		cover:          "img",
		completedClass: "_completed",
	},
	{
		card:           ".book-card",
		titleLink:      "a.book-title",
		author:         ".book-author",
		synopsis:       ".book-intro",
		cover:          ".book-cover img",
		completedClass: "_completed",
	},
}

// indexStrategy is one way a novel detail page lays out its chapter list.
type indexStrategy struct {
	anchor string
}

var indexStrategies = []indexStrategy{
	{anchor: ".chapter-list li a"},
	{anchor: "#chapter-list a"},
	{anchor: "ul.chapters a"},
	{anchor: "div#list a[rel='chapter']"},
	{anchor: ".book.chapterlist dd a"},
}

// contentSelectors is the probe order for chapter reader pages.
var contentSelectors = []string{
	".chapter-content",
	"#chapter-content",
	"#content",
	".reading-content",
	"p.readcotent",
	"article",
}

// detailStrategy maps a novel detail page layout onto NovelInfo fields.
type detailStrategy struct {
	title, altTitle, author, synopsis, cover string
}

var detailStrategies = []detailStrategy{
	{
		title:    ".novel-title",
		author:   ".author span[itemprop='author']",
		synopsis: ".summary .content",
		cover:    ".fixed-img img",
	},
	{
		title:    "#info h1",
		author:   "#info > p:first-of-type a",
		synopsis: "#intro",
		cover:    "#fmimg img",
	},
	{
		title:    ".booktitle",
		author:   ".booktag a.red",
		synopsis: ".bookintro",
		cover:    ".thumbnail",
	},
}

// ExtractNovelCards pulls all novel entries from a listing page. Entries
// with an empty title or URL are filtered, as are premium-marked links —
// premium content is out of scope for unattended scraping.
func ExtractNovelCards(doc *goquery.Document, baseURL string) []NovelInfo {
	var novels []NovelInfo

	for _, st := range cardStrategies {
		doc.Find(st.card).Each(func(_ int, card *goquery.Selection) {
			link := card.Find(st.titleLink).First()
			title := strings.TrimSpace(link.Text())
			href, _ := link.Attr("href")
			if title == "" || href == "" {
				return
			}
			if isPremiumURL(href) {
				return
			}

			info := NovelInfo{
				Title:     title,
				SourceURL: absoluteURL(baseURL, href),
				Author:    strings.TrimSpace(card.Find(st.author).First().Text()),
				Synopsis:  strings.TrimSpace(card.Find(st.synopsis).First().Text()),
				Status:    models.StatusOngoing,
			}

			if src, ok := card.Find(st.cover).First().Attr("src"); ok {
				info.CoverURL = absoluteURL(baseURL, src)
			}
			if card.HasClass(st.completedClass) || card.Find("."+st.completedClass).Length() > 0 {
				info.Status = models.StatusCompleted
			}

			novels = append(novels, info)
		})
		if len(novels) > 0 {
			break
		}
	}

	return novels
}

// ExtractNovelDetail reads novel metadata off a detail page, trying each
// layout strategy in priority order. An empty Title means discovery
// failed for this page.
func ExtractNovelDetail(doc *goquery.Document, pageURL string) NovelInfo {
	info := NovelInfo{SourceURL: pageURL, Status: models.StatusOngoing}

	for _, st := range detailStrategies {
		title := strings.TrimSpace(doc.Find(st.title).First().Text())
		if title == "" {
			continue
		}

		info.Title = title
		info.Author = strings.TrimSpace(doc.Find(st.author).First().Text())
		info.Synopsis = strings.TrimSpace(doc.Find(st.synopsis).First().Text())

		img := doc.Find(st.cover).First()
		if src, ok := img.Attr("src"); ok && !strings.HasPrefix(src, "data:image") {
			info.CoverURL = absoluteURL(pageURL, src)
		} else if src, ok := img.Attr("data-src"); ok {
			info.CoverURL = absoluteURL(pageURL, src)
		}
		break
	}

	if info.Title == "" {
		return info
	}

	doc.Find(".genres a, .categories a, .novel-tags a").Each(func(_ int, s *goquery.Selection) {
		if g := strings.TrimSpace(s.Text()); g != "" {
			info.Genres = append(info.Genres, g)
		}
	})

	statusText := strings.ToUpper(strings.TrimSpace(doc.Find(".novel-status, .status").First().Text()))
	switch {
	case strings.Contains(statusText, "COMPLET"):
		info.Status = models.StatusCompleted
	case strings.Contains(statusText, "HIATUS"):
		info.Status = models.StatusHiatus
	case strings.Contains(statusText, "DROP"):
		info.Status = models.StatusDropped
	}

	return info
}

// ExtractChapterIndex builds the ordered chapter list from a detail page.
// Strategies are tried in priority order; the first that yields anchors
// wins. Entries are deduplicated by URL and sorted ascending by number.
func ExtractChapterIndex(doc *goquery.Document, baseURL string) []ChapterRef {
	var chapters []ChapterRef
	seen := make(map[string]bool)

	for _, st := range indexStrategies {
		doc.Find(st.anchor).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok || href == "" {
				return
			}
			abs := absoluteURL(baseURL, href)
			if seen[abs] {
				return
			}
			seen[abs] = true

			title := strings.TrimSpace(a.Text())
			num, ok := ParseChapterNumber(title)
			if !ok {
				// No parseable number: assign the next sequential slot so
				// the chapter is not silently dropped.
				num = len(chapters) + 1
			}

			chapters = append(chapters, ChapterRef{
				Number: num,
				Title:  title,
				URL:    abs,
			})
		})
		if len(chapters) > 0 {
			break
		}
	}

	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].Number < chapters[j].Number
	})

	return chapters
}

// ParseChapterNumber applies the regex cascade to link text: an explicit
// "chapter N" first, then any embedded digit run.
func ParseChapterNumber(text string) (int, bool) {
	if m := chapterNumRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	if m := digitRunRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

// ExtractChapterContent probes the content selectors in priority order
// and returns the inner HTML of the first container whose rendered text
// clears the minimum length. Script, style and ad nodes are dropped
// first. Empty return means no usable container was found.
func ExtractChapterContent(doc *goquery.Document) string {
	doc.Find("script, style, ins, iframe, .ads, .adsbygoogle, .google-auto-placed").Remove()

	for _, sel := range contentSelectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		if len(strings.TrimSpace(container.Text())) < minContentLength {
			continue
		}
		htmlStr, err := container.Html()
		if err != nil {
			continue
		}
		return htmlStr
	}

	return ""
}

func isPremiumURL(href string) bool {
	lower := strings.ToLower(href)
	return strings.Contains(lower, "premium") || strings.Contains(lower, "/vip")
}

func absoluteURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
