package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelpipe/crawler"
	"novelpipe/logger"
	"novelpipe/models"
	"novelpipe/progress"
	"novelpipe/translate"
)

// fakeFetcher serves canned HTML per URL.
type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL, _ string) (*goquery.Document, error) {
	html, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("no page for %s", pageURL)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (f *fakeFetcher) Close() error { return nil }

// flakyFetcher fails the first N fetches of every URL, then serves the
// canned page.
type flakyFetcher struct {
	pages    map[string]string
	failures int
	calls    map[string]int
}

func (f *flakyFetcher) Fetch(_ context.Context, pageURL, _ string) (*goquery.Document, error) {
	f.calls[pageURL]++
	if f.calls[pageURL] <= f.failures {
		return nil, fmt.Errorf("connection reset by peer")
	}
	html, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("no page for %s", pageURL)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (f *flakyFetcher) Close() error { return nil }

// missFetcher always reports the wait selector absent.
type missFetcher struct {
	calls int
}

func (m *missFetcher) Fetch(_ context.Context, pageURL, _ string) (*goquery.Document, error) {
	m.calls++
	return nil, &crawler.SelectorMissError{URL: pageURL, Selector: ".novel-title"}
}

func (m *missFetcher) Close() error { return nil }

// echoTranslator returns input unchanged; failOn makes a specific chapter
// number fail to model exhausted retries. synopsisPrefix marks synopsis
// output so tests can tell it passed through translation.
type echoTranslator struct {
	failOn         int
	synopsisPrefix string
}

func (e *echoTranslator) Translate(_ context.Context, req translate.Request) (string, error) {
	if e.failOn != 0 && req.ChapterNumber == e.failOn {
		return "", fmt.Errorf("translation API unavailable")
	}
	return req.Text, nil
}

func (e *echoTranslator) TranslateTitle(_ context.Context, title string) (string, error) {
	return title, nil
}

func (e *echoTranslator) TranslateSynopsis(_ context.Context, s string) (string, error) {
	return e.synopsisPrefix + s, nil
}

// memStore is the in-memory Store fake.
type memStore struct {
	novels   []*models.Novel
	chapters []*models.Chapter
	genres   map[string]*models.Genre
	jobs     map[uint]*models.ScrapeJob
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{
		genres: make(map[string]*models.Genre),
		jobs:   make(map[uint]*models.ScrapeJob),
		nextID: 1,
	}
}

func (m *memStore) FindNovelBySlug(slug string) (*models.Novel, error) {
	for _, n := range m.novels {
		if n.Slug == slug {
			return n, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateNovel(novel *models.Novel) error {
	novel.ID = m.nextID
	m.nextID++
	m.novels = append(m.novels, novel)
	return nil
}

func (m *memStore) UpsertGenre(name string) (*models.Genre, error) {
	if g, ok := m.genres[name]; ok {
		return g, nil
	}
	g := &models.Genre{Name: name}
	g.ID = m.nextID
	m.nextID++
	m.genres[name] = g
	return g, nil
}

func (m *memStore) ExistingChapterNumbers(novelID uint) (map[int]bool, error) {
	out := make(map[int]bool)
	for _, c := range m.chapters {
		if c.NovelID == novelID {
			out[c.Number] = true
		}
	}
	return out, nil
}

func (m *memStore) CreateChapter(chapter *models.Chapter) (bool, error) {
	for _, c := range m.chapters {
		if c.NovelID == chapter.NovelID && c.Number == chapter.Number {
			return false, nil
		}
	}
	chapter.ID = m.nextID
	m.nextID++
	m.chapters = append(m.chapters, chapter)
	return true, nil
}

func (m *memStore) GetJob(id uint) (*models.ScrapeJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %d not found", id)
	}
	return job, nil
}

func (m *memStore) UpdateJob(job *models.ScrapeJob) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *memStore) addJob(novelURL string) *models.ScrapeJob {
	job := &models.ScrapeJob{NovelURL: novelURL, Status: models.JobPending}
	job.ID = m.nextID
	m.nextID++
	m.jobs[job.ID] = job
	return job
}

const novelURL = "https://example.com/novel/sword-saga"

func chapterBody(n int) string {
	return strings.Repeat(fmt.Sprintf("Chapter %d prose sentence. ", n), 10)
}

func fixturePages(chapterCount int) map[string]string {
	var index strings.Builder
	index.WriteString(`<ul class="chapter-list">`)
	for n := 1; n <= chapterCount; n++ {
		fmt.Fprintf(&index, `<li><a href="/c/%d">Chapter %d: Part %d</a></li>`, n, n, n)
	}
	index.WriteString(`</ul>`)

	pages := map[string]string{
		novelURL: `<html><body>
<h1 class="novel-title">Sword Saga</h1>
<div class="author"><span itemprop="author">Mo Yan</span></div>
<div class="summary"><div class="content">A sword. A saga.</div></div>
<div class="genres"><a>Action</a><a>Fantasy</a></div>
` + index.String() + `</body></html>`,
	}
	for n := 1; n <= chapterCount; n++ {
		pages[fmt.Sprintf("https://example.com/c/%d", n)] = fmt.Sprintf(
			`<html><body><div class="chapter-content"><p>%s</p><p>%s</p></div></body></html>`,
			chapterBody(n), chapterBody(n))
	}
	return pages
}

func newTestPipeline(store *memStore, fetcher crawler.Fetcher, tr translate.Translator, maxPerRun int) *Pipeline {
	return New(fetcher, tr, store, progress.NewMemoryStore(), nil,
		Options{MaxChaptersPerRun: maxPerRun}, logger.Nop())
}

func TestRunHappyPath(t *testing.T) {
	store := newMemStore()
	job := store.addJob(novelURL)
	p := newTestPipeline(store, &fakeFetcher{pages: fixturePages(3)}, &echoTranslator{}, 50)

	require.NoError(t, p.Run(context.Background(), job.ID))

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 3, job.TotalChapters)
	assert.Equal(t, 3, job.ScrapedChapters)
	require.Len(t, store.novels, 1)
	assert.Equal(t, "sword-saga", store.novels[0].Slug)
	assert.Equal(t, "Mo Yan", store.novels[0].Author)
	assert.Len(t, store.novels[0].Genres, 2)
	require.Len(t, store.chapters, 3)
	assert.NotZero(t, store.chapters[0].WordCount)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
}

func TestRunIdempotentNovelCreation(t *testing.T) {
	store := newMemStore()
	fetcher := &fakeFetcher{pages: fixturePages(2)}

	job1 := store.addJob(novelURL)
	p := newTestPipeline(store, fetcher, &echoTranslator{}, 50)
	require.NoError(t, p.Run(context.Background(), job1.ID))

	// A second job against the same URL reuses the novel and adds zero
	// new chapter rows.
	job2 := store.addJob(novelURL)
	p2 := newTestPipeline(store, fetcher, &echoTranslator{}, 50)
	require.NoError(t, p2.Run(context.Background(), job2.ID))

	assert.Len(t, store.novels, 1)
	assert.Len(t, store.chapters, 2)
	assert.Equal(t, models.JobCompleted, job2.Status)
	assert.Equal(t, 0, job2.ScrapedChapters)
}

func TestRunDiscoveryFailure(t *testing.T) {
	store := newMemStore()
	job := store.addJob(novelURL)
	fetcher := &fakeFetcher{pages: map[string]string{
		novelURL: `<html><body><p>not a novel page</p></body></html>`,
	}}
	p := newTestPipeline(store, fetcher, &echoTranslator{}, 50)

	err := p.Run(context.Background(), job.ID)

	require.Error(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, 0, job.ScrapedChapters)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "no novel title")
}

func TestRunChapterFailureDoesNotFailJob(t *testing.T) {
	store := newMemStore()
	job := store.addJob(novelURL)
	p := newTestPipeline(store, &fakeFetcher{pages: fixturePages(5)}, &echoTranslator{failOn: 3}, 50)

	require.NoError(t, p.Run(context.Background(), job.ID))

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 4, job.ScrapedChapters)

	// Chapter 3 must be absent, not inserted half-translated.
	for _, c := range store.chapters {
		assert.NotEqual(t, 3, c.Number)
	}
	assert.Len(t, store.chapters, 4)
	assert.Contains(t, job.Logs, "chapter 3 skipped")
}

func TestRunChapterCap(t *testing.T) {
	store := newMemStore()
	job := store.addJob(novelURL)
	fetcher := &fakeFetcher{pages: fixturePages(5)}
	p := newTestPipeline(store, fetcher, &echoTranslator{}, 2)

	require.NoError(t, p.Run(context.Background(), job.ID))

	assert.Equal(t, 5, job.TotalChapters)
	assert.Equal(t, 2, job.ScrapedChapters)
	assert.Len(t, store.chapters, 2)

	// The next run picks up the remainder.
	job2 := store.addJob(novelURL)
	p2 := newTestPipeline(store, fetcher, &echoTranslator{}, 50)
	require.NoError(t, p2.Run(context.Background(), job2.ID))
	assert.Len(t, store.chapters, 5)
	assert.Equal(t, 3, job2.ScrapedChapters)
}

func TestRunSkipsTerminalJob(t *testing.T) {
	store := newMemStore()
	job := store.addJob(novelURL)
	job.Status = models.JobCompleted

	p := newTestPipeline(store, &fakeFetcher{}, &echoTranslator{}, 50)
	require.NoError(t, p.Run(context.Background(), job.ID))
	assert.Equal(t, models.JobCompleted, job.Status)
}

func TestRunCancellationBetweenChapters(t *testing.T) {
	store := newMemStore()
	job := store.addJob(novelURL)
	p := newTestPipeline(store, &fakeFetcher{pages: fixturePages(3)}, &echoTranslator{}, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx, job.ID)
	require.Error(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Empty(t, store.chapters)
}

func TestRunRetriesTransientFetchFailures(t *testing.T) {
	prev := fetchBackoffInterval
	fetchBackoffInterval = time.Millisecond
	defer func() { fetchBackoffInterval = prev }()

	store := newMemStore()
	job := store.addJob(novelURL)
	fetcher := &flakyFetcher{
		pages:    fixturePages(1),
		failures: 2,
		calls:    make(map[string]int),
	}
	p := newTestPipeline(store, fetcher, &echoTranslator{}, 50)

	require.NoError(t, p.Run(context.Background(), job.ID))

	assert.Equal(t, models.JobCompleted, job.Status)
	require.Len(t, store.chapters, 1)
	assert.Equal(t, 3, fetcher.calls[novelURL])
	assert.Equal(t, 3, fetcher.calls["https://example.com/c/1"])
}

func TestRunDoesNotRetryMissingSelector(t *testing.T) {
	prev := fetchBackoffInterval
	fetchBackoffInterval = time.Millisecond
	defer func() { fetchBackoffInterval = prev }()

	store := newMemStore()
	job := store.addJob(novelURL)
	fetcher := &missFetcher{}
	p := newTestPipeline(store, fetcher, &echoTranslator{}, 50)

	err := p.Run(context.Background(), job.ID)

	require.Error(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	// A missing selector is final; reloading the page cannot fix it.
	assert.Equal(t, 1, fetcher.calls)
}

const listingURL = "https://example.com/browse"

const listingPageHTML = `<html><body>
<div class="novel-item">
  <div class="novel-title"><a href="/novel/sword-saga">Sword Saga</a></div>
  <div class="novel-author">Mo Yan</div>
</div>
<div class="novel-item">
  <div class="novel-title"><a href="/novel/moon-court">Moon Court</a></div>
  <div class="novel-author">Gu Long</div>
</div>
<div class="novel-item">
  <div class="novel-title"><a href="/premium/novel/locked">Locked Tale</a></div>
</div>
</body></html>`

func TestDiscoverNovels(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{listingURL: listingPageHTML}}
	p := newTestPipeline(newMemStore(), fetcher, &echoTranslator{}, 50)

	cards, err := p.DiscoverNovels(context.Background(), listingURL)

	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "Sword Saga", cards[0].Title)
	assert.Equal(t, "https://example.com/novel/moon-court", cards[1].SourceURL)
}

func TestDiscoverNovelsNoCards(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		listingURL: `<html><body><p>maintenance</p></body></html>`,
	}}
	p := newTestPipeline(newMemStore(), fetcher, &echoTranslator{}, 50)

	_, err := p.DiscoverNovels(context.Background(), listingURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no novel cards")
}

func TestRunTranslatesSynopsis(t *testing.T) {
	store := newMemStore()
	job := store.addJob(novelURL)
	p := newTestPipeline(store, &fakeFetcher{pages: fixturePages(1)},
		&echoTranslator{synopsisPrefix: "EN: "}, 50)

	require.NoError(t, p.Run(context.Background(), job.ID))

	require.Len(t, store.novels, 1)
	assert.Equal(t, "EN: A sword. A saga.", store.novels[0].Synopsis)
}

func TestRunDuplicateChapterNumbersCountedOnce(t *testing.T) {
	store := newMemStore()
	job := store.addJob(novelURL)

	body := chapterBody(1)
	pages := map[string]string{
		novelURL: `<html><body>
<h1 class="novel-title">Sword Saga</h1>
<ul class="chapter-list">
<li><a href="/c/1a">Chapter 1: First Cut</a></li>
<li><a href="/c/1b">Chapter 1: First Cut (mirror)</a></li>
</ul></body></html>`,
		"https://example.com/c/1a": `<html><body><div class="chapter-content"><p>` + body + `</p><p>` + body + `</p></div></body></html>`,
		"https://example.com/c/1b": `<html><body><div class="chapter-content"><p>` + body + `</p><p>` + body + `</p></div></body></html>`,
	}
	p := newTestPipeline(store, &fakeFetcher{pages: pages}, &echoTranslator{}, 50)

	require.NoError(t, p.Run(context.Background(), job.ID))

	assert.Equal(t, models.JobCompleted, job.Status)
	require.Len(t, store.chapters, 1)
	// The mirror URL collides on (novel, number) and must not inflate
	// the persisted-work counter.
	assert.Equal(t, 1, job.ScrapedChapters)
}

func TestRunResumesInterruptedJob(t *testing.T) {
	store := newMemStore()
	job := store.addJob(novelURL)
	// Worker died mid-run; the redelivered job is stuck in SCRAPING.
	job.Status = models.JobScraping

	p := newTestPipeline(store, &fakeFetcher{pages: fixturePages(2)}, &echoTranslator{}, 50)

	require.NoError(t, p.Run(context.Background(), job.ID))

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Len(t, store.chapters, 2)
	assert.Contains(t, job.Logs, "restarting interrupted job")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.JobPending, models.JobScraping))
	assert.True(t, CanTransition(models.JobScraping, models.JobTranslating))
	assert.True(t, CanTransition(models.JobScraping, models.JobFailed))
	assert.True(t, CanTransition(models.JobTranslating, models.JobCompleted))

	// Terminal states never regress.
	assert.False(t, CanTransition(models.JobCompleted, models.JobScraping))
	assert.False(t, CanTransition(models.JobFailed, models.JobPending))
	assert.False(t, CanTransition(models.JobPending, models.JobCompleted))
}
