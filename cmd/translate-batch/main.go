// Command translate-batch translates already-scraped novel JSON files.
// It resumes from a file-based progress ledger, runs a small pool of
// concurrent chapter translations, and writes a parallel "translated"
// JSON per input file with the original text preserved.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"novelpipe/config"
	"novelpipe/logger"
	"novelpipe/progress"
	"novelpipe/translate"
)

type batchChapter struct {
	Number          int    `json:"number"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	ContentOriginal string `json:"contentOriginal,omitempty"`
}

type batchNovel struct {
	Title    string         `json:"title"`
	Author   string         `json:"author"`
	Synopsis string         `json:"synopsis"`
	Chapters []batchChapter `json:"chapters"`
}

func main() {
	inDir := flag.String("in", "raw", "directory of raw novel JSON files")
	outDir := flag.String("out", "translated", "directory for translated JSON files")
	ledgerPath := flag.String("ledger", "translation-progress.json", "progress ledger file")
	concurrency := flag.Int("concurrency", 3, "chapters translated at once")
	flag.Parse()

	cfg := config.LoadConfig()

	log, err := logger.New(os.Getenv("DEBUG") != "")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	var translator translate.Translator
	if cfg.TranslationAPIKey != "" {
		translator = translate.NewClient(
			cfg.TranslationAPIURL, cfg.TranslationAPIKey, cfg.TranslationModel,
			cfg.ChunkSize, cfg.RateLimitDelay, log,
		)
	} else {
		log.Warn("TRANSLATION_API_KEY not set, falling back to google translate")
		translator = translate.NewGoogleTranslator()
	}

	ledger, err := progress.OpenFileLedger(*ledgerPath)
	if err != nil {
		log.Fatalf("opening ledger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries, err := os.ReadDir(*inDir)
	if err != nil {
		log.Fatalf("reading input dir: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			log.Info("interrupted, stopping between files")
			break
		}

		if err := translateFile(ctx, log.Named(entry.Name()), translator, ledger,
			filepath.Join(*inDir, entry.Name()),
			filepath.Join(*outDir, entry.Name()),
			entry.Name(), *concurrency, cfg.RateLimitDelay); err != nil {
			log.Errorf("translating %s: %v", entry.Name(), err)
		}
	}
}

func translateFile(ctx context.Context, log *zap.SugaredLogger, translator translate.Translator, ledger *progress.FileLedger, inPath, outPath, scope string, concurrency int, rateWindow time.Duration) error {
	novel, err := readNovel(inPath)
	if err != nil {
		return err
	}
	if novel == nil {
		return fmt.Errorf("input %s not found", inPath)
	}

	// Start from prior output so completed chapters survive re-runs.
	out, err := readNovel(outPath)
	if err != nil || out == nil {
		out = &batchNovel{
			Title:    novel.Title,
			Author:   novel.Author,
			Synopsis: novel.Synopsis,
		}
	}
	translated := make(map[int]batchChapter, len(out.Chapters))
	for _, ch := range out.Chapters {
		translated[ch.Number] = ch
	}

	var pending []batchChapter
	for _, ch := range novel.Chapters {
		if ledger.IsDone(scope, ch.Number) {
			continue
		}
		pending = append(pending, ch)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Number < pending[j].Number })
	log.Infof("%d chapters pending of %d", len(pending), len(novel.Chapters))

	sem := semaphore.NewWeighted(int64(concurrency))
	var mu sync.Mutex

	for start := 0; start < len(pending); start += concurrency {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + concurrency
		if end > len(pending) {
			end = len(pending)
		}

		var wg sync.WaitGroup
		for _, ch := range pending[start:end] {
			wg.Add(1)
			go func(ch batchChapter) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)

				result, err := translator.Translate(ctx, translate.Request{
					Text:          ch.Content,
					NovelTitle:    novel.Title,
					ChapterNumber: ch.Number,
				})
				if err != nil {
					log.Warnf("chapter %d failed: %v", ch.Number, err)
					return
				}

				done := batchChapter{
					Number:          ch.Number,
					Title:           ch.Title,
					Content:         result,
					ContentOriginal: ch.Content,
				}

				// Persist the output file before recording progress: the
				// ledger must never claim a chapter the file lost.
				mu.Lock()
				defer mu.Unlock()
				translated[ch.Number] = done
				if err := writeNovel(outPath, out, translated); err != nil {
					log.Errorf("writing output for chapter %d: %v", ch.Number, err)
					return
				}
				if err := ledger.MarkDone(scope, ch.Number); err != nil {
					log.Errorf("marking chapter %d done: %v", ch.Number, err)
				}
			}(ch)
		}
		wg.Wait()

		// Full rate-limit window between batches keeps the pool under the
		// provider's requests-per-minute ceiling.
		if end < len(pending) && rateWindow > 0 {
			time.Sleep(rateWindow)
		}
	}

	return nil
}

func readNovel(path string) (*batchNovel, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var novel batchNovel
	if err := json.Unmarshal(data, &novel); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &novel, nil
}

func writeNovel(path string, novel *batchNovel, chapters map[int]batchChapter) error {
	numbers := make([]int, 0, len(chapters))
	for n := range chapters {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	novel.Chapters = novel.Chapters[:0]
	for _, n := range numbers {
		novel.Chapters = append(novel.Chapters, chapters[n])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	data, err := json.MarshalIndent(novel, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
