package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"

	"novelpipe/config"
	"novelpipe/crawler"
	"novelpipe/db"
	handlers "novelpipe/handler"
	"novelpipe/logger"
	"novelpipe/pipeline"
	"novelpipe/progress"
	"novelpipe/storage"
	"novelpipe/translate"
	"novelpipe/worker"
)

func main() {
	cfg := config.LoadConfig()

	log, err := logger.New(os.Getenv("DEBUG") != "")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	gormDB, err := db.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	store := db.NewStore(gormDB)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})

	fetcher := crawler.NewFetcher(cfg.Headless, log)
	defer fetcher.Close()

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

	var covers pipeline.CoverUploader
	if cfg.S3AccessKey != "" {
		cs, err := storage.NewCoverStore(cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Endpoint, cfg.S3Bucket)
		if err != nil {
			log.Fatalf("initializing cover store: %v", err)
		}
		covers = cs
	}

	p := pipeline.New(fetcher, translator, store, progress.NewMemoryStore(), covers,
		pipeline.Options{
			MaxChaptersPerRun: cfg.MaxChaptersPerRun,
			ChapterDelay:      cfg.RateLimitDelay,
		}, log)

	w := worker.NewWorker(rdb, store, p, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go w.Start(ctx)

	e := echo.New()
	novelHandler := &handlers.NovelHandler{DB: gormDB}
	jobHandler := &handlers.JobHandler{Worker: w}

	e.POST("/scrape", jobHandler.CreateScrapeJob)
	e.POST("/scrape-listing", jobHandler.CreateListingScrapeJob)
	e.GET("/scrape-jobs/:id", jobHandler.GetScrapeJob)
	e.GET("/novels", novelHandler.GetNovels)
	e.GET("/novels/:id", novelHandler.GetNovel)
	e.GET("/novels/:id/chapters", novelHandler.GetNovelChapters)
	e.GET("/novels/:novel_id/chapters/:number", novelHandler.GetChapterByNumber)
	e.GET("/novels/chapters-stats/:id", novelHandler.GetNovelTranslationStats)
	e.DELETE("/novels/:id", novelHandler.DeleteNovel)

	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
