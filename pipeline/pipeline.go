// Package pipeline sequences the scrape-translate flow: discover a novel,
// persist it idempotently, enumerate chapters, diff against ingested
// work, and scrape-normalize-translate-persist each missing chapter.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"novelpipe/crawler"
	"novelpipe/models"
	"novelpipe/normalize"
	"novelpipe/progress"
	"novelpipe/translate"
)

// Store is the persistence contract the pipeline depends on. The GORM
// implementation lives in the db package; tests use an in-memory fake.
type Store interface {
	FindNovelBySlug(slug string) (*models.Novel, error)
	CreateNovel(novel *models.Novel) error
	UpsertGenre(name string) (*models.Genre, error)
	ExistingChapterNumbers(novelID uint) (map[int]bool, error)
	CreateChapter(chapter *models.Chapter) (created bool, err error)
	GetJob(id uint) (*models.ScrapeJob, error)
	UpdateJob(job *models.ScrapeJob) error
}

// CoverUploader mirrors a remote cover image into owned storage and
// returns the public URL. Optional.
type CoverUploader interface {
	UploadFromURL(ctx context.Context, coverURL, slug string) (string, error)
}

// Options bounds one pipeline run.
type Options struct {
	// MaxChaptersPerRun caps runtime and API cost per invocation; the
	// remainder is picked up by a later run via the existing-chapter diff.
	MaxChaptersPerRun int
	// ChapterDelay is the pause between chapters.
	ChapterDelay time.Duration
}

type Pipeline struct {
	fetcher    crawler.Fetcher
	translator translate.Translator
	store      Store
	progress   progress.Store
	covers     CoverUploader
	opts       Options
	log        *zap.SugaredLogger
}

func New(fetcher crawler.Fetcher, translator translate.Translator, store Store, prog progress.Store, covers CoverUploader, opts Options, log *zap.SugaredLogger) *Pipeline {
	if opts.MaxChaptersPerRun <= 0 {
		opts.MaxChaptersPerRun = 50
	}
	if prog == nil {
		prog = progress.NewMemoryStore()
	}
	return &Pipeline{
		fetcher:    fetcher,
		translator: translator,
		store:      store,
		progress:   prog,
		covers:     covers,
		opts:       opts,
		log:        log,
	}
}

// Run executes one scrape job to a terminal state. Novel-level failures
// (unresolvable title, navigation failure at discovery) mark the job
// FAILED; individual chapter failures are logged and skipped. Chapters
// persisted before a failure stay persisted.
func (p *Pipeline) Run(ctx context.Context, jobID uint) error {
	job, err := p.store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("loading job %d: %w", jobID, err)
	}
	if job.Terminal() {
		p.log.Infow("job already terminal, skipping", "job_id", jobID, "status", job.Status)
		return nil
	}
	if job.Status != models.JobPending {
		// Redelivered after a worker crash mid-run. Restart from the top;
		// already-persisted chapters are skipped by the diff.
		p.appendLog(job, "restarting interrupted job, was "+job.Status)
		job.Status = models.JobPending
	}

	if err := p.run(ctx, job); err != nil {
		p.fail(job, err)
		return err
	}
	return nil
}

// maxFetchRetries bounds the transient-failure retries per page fetch.
// Navigation timeouts and network errors are transient; a missing
// selector is not, the markup will not change on a reload.
const maxFetchRetries = 3

var fetchBackoffInterval = 500 * time.Millisecond

// fetch wraps the fetcher with bounded backoff for transient failures.
func (p *Pipeline) fetch(ctx context.Context, pageURL, waitSelector string) (*goquery.Document, error) {
	var doc *goquery.Document
	operation := func() error {
		d, err := p.fetcher.Fetch(ctx, pageURL, waitSelector)
		if err != nil {
			var miss *crawler.SelectorMissError
			if errors.As(err, &miss) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			p.log.Debugw("fetch failed, retrying", "url", pageURL, "error", err)
			return err
		}
		doc = d
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = fetchBackoffInterval
	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, maxFetchRetries), ctx))
	return doc, err
}

func (p *Pipeline) run(ctx context.Context, job *models.ScrapeJob) error {
	now := time.Now()
	job.StartedAt = &now
	p.appendLog(job, "job started for "+job.NovelURL)
	if err := p.transition(job, models.JobScraping); err != nil {
		return err
	}

	doc, err := p.fetch(ctx, job.NovelURL, "")
	if err != nil {
		return fmt.Errorf("loading novel page: %w", err)
	}

	info := crawler.ExtractNovelDetail(doc, job.NovelURL)
	if info.Title == "" {
		return fmt.Errorf("no novel title found at %s", job.NovelURL)
	}

	novel, err := p.upsertNovel(ctx, info)
	if err != nil {
		return fmt.Errorf("persisting novel: %w", err)
	}
	job.NovelID = &novel.ID
	p.appendLog(job, fmt.Sprintf("novel resolved: %q (id=%d)", novel.Title, novel.ID))

	index := crawler.ExtractChapterIndex(doc, job.NovelURL)
	job.TotalChapters = len(index)
	if err := p.store.UpdateJob(job); err != nil {
		return err
	}
	p.appendLog(job, fmt.Sprintf("chapter index: %d entries", len(index)))

	existing, err := p.store.ExistingChapterNumbers(novel.ID)
	if err != nil {
		return fmt.Errorf("loading existing chapters: %w", err)
	}

	scope := strconv.FormatUint(uint64(novel.ID), 10)
	var work []crawler.ChapterRef
	for _, ref := range index {
		if existing[ref.Number] || p.progress.IsDone(scope, ref.Number) {
			continue
		}
		work = append(work, ref)
		if len(work) >= p.opts.MaxChaptersPerRun {
			break
		}
	}
	p.appendLog(job, fmt.Sprintf("to process: %d chapters (cap %d)", len(work), p.opts.MaxChaptersPerRun))

	if err := p.transition(job, models.JobTranslating); err != nil {
		return err
	}

	for i, ref := range work {
		// Cancellation is honored between chapters only; an in-flight
		// chapter either completes fully or does not start.
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && p.opts.ChapterDelay > 0 {
			time.Sleep(p.opts.ChapterDelay)
		}

		created, err := p.processChapter(ctx, novel, ref, scope)
		if err != nil {
			p.log.Warnw("chapter skipped", "novel_id", novel.ID, "chapter", ref.Number, "error", err)
			p.appendLog(job, fmt.Sprintf("chapter %d skipped: %v", ref.Number, err))
			continue
		}
		if !created {
			continue
		}

		job.ScrapedChapters++
		if err := p.store.UpdateJob(job); err != nil {
			return err
		}
	}

	done := time.Now()
	job.CompletedAt = &done
	p.appendLog(job, fmt.Sprintf("job completed: %d/%d chapters", job.ScrapedChapters, job.TotalChapters))
	return p.transition(job, models.JobCompleted)
}

// DiscoverNovels loads a listing page and returns the novel cards found
// on it. Premium and empty entries are already filtered by the
// extractor; an empty result means the page matched no known layout.
func (p *Pipeline) DiscoverNovels(ctx context.Context, listingURL string) ([]crawler.NovelInfo, error) {
	doc, err := p.fetch(ctx, listingURL, "")
	if err != nil {
		return nil, fmt.Errorf("loading listing page: %w", err)
	}

	cards := crawler.ExtractNovelCards(doc, listingURL)
	if len(cards) == 0 {
		return nil, fmt.Errorf("no novel cards found at %s", listingURL)
	}
	return cards, nil
}

// upsertNovel reuses the record for this slug if one exists; metadata of
// an existing record is left alone.
func (p *Pipeline) upsertNovel(ctx context.Context, info crawler.NovelInfo) (*models.Novel, error) {
	slug := Slugify(info.Title)

	existing, err := p.store.FindNovelBySlug(slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	novel := &models.Novel{
		Title:     info.Title,
		Slug:      slug,
		Synopsis:  info.Synopsis,
		Author:    info.Author,
		Status:    info.Status,
		SourceURL: info.SourceURL,
	}
	if novel.Author == "" {
		novel.Author = "Unknown"
	}

	// Best effort, like the title path: the source synopsis stands when
	// translation fails.
	if info.Synopsis != "" {
		if translated, err := p.translator.TranslateSynopsis(ctx, info.Synopsis); err == nil && translated != "" {
			novel.Synopsis = translated
		} else if err != nil {
			p.log.Warnf("synopsis translation failed for %s: %v", slug, err)
		}
	}

	if info.CoverURL != "" {
		cover := info.CoverURL
		if p.covers != nil {
			if uploaded, err := p.covers.UploadFromURL(ctx, info.CoverURL, slug); err != nil {
				p.log.Warnf("cover upload failed for %s: %v", slug, err)
			} else {
				cover = uploaded
			}
		}
		novel.Cover = &cover
	}

	for _, name := range info.Genres {
		genre, err := p.store.UpsertGenre(name)
		if err != nil {
			return nil, fmt.Errorf("upserting genre %q: %w", name, err)
		}
		novel.Genres = append(novel.Genres, *genre)
	}

	if err := p.store.CreateNovel(novel); err != nil {
		return nil, err
	}
	return novel, nil
}

// processChapter runs scrape -> normalize -> translate -> persist for one
// chapter. Progress is marked only after the chapter row is durable. The
// bool reports whether a new chapter row was inserted.
func (p *Pipeline) processChapter(ctx context.Context, novel *models.Novel, ref crawler.ChapterRef, scope string) (bool, error) {
	doc, err := p.fetch(ctx, ref.URL, "")
	if err != nil {
		var miss *crawler.SelectorMissError
		if errors.As(err, &miss) {
			return false, fmt.Errorf("page structure missing: %w", err)
		}
		return false, fmt.Errorf("fetching chapter: %w", err)
	}

	rawHTML := crawler.ExtractChapterContent(doc)
	if rawHTML == "" {
		return false, fmt.Errorf("no content container found")
	}

	original := normalize.Text(rawHTML)
	if original == "" {
		return false, fmt.Errorf("content empty after normalization")
	}

	translated, err := p.translator.Translate(ctx, translate.Request{
		Text:          original,
		NovelTitle:    novel.Title,
		ChapterNumber: ref.Number,
	})
	if err != nil {
		// Partial translations are never persisted; this chapter is
		// retried by a later run via the existing-chapter diff.
		return false, fmt.Errorf("translation failed: %w", err)
	}

	title := ref.Title
	if translatedTitle, err := p.translator.TranslateTitle(ctx, ref.Title); err == nil && translatedTitle != "" {
		title = translatedTitle
	}

	chapter := &models.Chapter{
		NovelID:           novel.ID,
		Number:            ref.Number,
		Title:             title,
		ContentOriginal:   &original,
		ContentTranslated: &translated,
		WordCount:         normalize.WordCount(translated),
		SourceURL:         ref.URL,
	}

	created, err := p.store.CreateChapter(chapter)
	if err != nil {
		return false, fmt.Errorf("persisting chapter: %w", err)
	}
	if !created {
		// Another run got here first; keep the existing row untouched.
		p.log.Infow("chapter already exists, skipped insert", "novel_id", novel.ID, "chapter", ref.Number)
	}

	if err := p.progress.MarkDone(scope, ref.Number); err != nil {
		return created, err
	}
	return created, nil
}

func (p *Pipeline) fail(job *models.ScrapeJob, cause error) {
	msg := cause.Error()
	job.Error = &msg
	done := time.Now()
	job.CompletedAt = &done
	p.appendLog(job, "job failed: "+msg)

	if CanTransition(job.Status, models.JobFailed) {
		job.Status = models.JobFailed
	}
	if err := p.store.UpdateJob(job); err != nil {
		p.log.Errorw("recording job failure", "job_id", job.ID, "error", err)
	}
}

func (p *Pipeline) appendLog(job *models.ScrapeJob, line string) {
	job.Logs += time.Now().Format(time.RFC3339) + " " + line + "\n"
}
