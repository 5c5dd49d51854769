// Package worker consumes scrape jobs from a Redis queue and drives the
// pipeline. One worker process owns a job at a time via a Redis lock.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"novelpipe/db"
	"novelpipe/models"
	"novelpipe/pipeline"
)

const (
	scrapeQueueKey  = "scrape_queue"
	listingQueueKey = "listing_queue"
	jobLockTTL      = 30 * time.Minute
	popTimeout      = 5 * time.Second
)

type scrapePayload struct {
	JobID uint `json:"job_id"`
}

type listingPayload struct {
	ListingURL string `json:"listing_url"`
}

type Worker struct {
	Redis    *redis.Client
	Store    *db.Store
	Pipeline *pipeline.Pipeline
	log      *zap.SugaredLogger
}

func NewWorker(rdb *redis.Client, store *db.Store, p *pipeline.Pipeline, log *zap.SugaredLogger) *Worker {
	return &Worker{
		Redis:    rdb,
		Store:    store,
		Pipeline: p,
		log:      log,
	}
}

// EnqueueScrape creates a PENDING job row and pushes it onto the queue.
// Returns the job id for status polling.
func (w *Worker) EnqueueScrape(ctx context.Context, novelURL string) (uint, error) {
	job, err := w.Store.CreateJob(novelURL)
	if err != nil {
		return 0, fmt.Errorf("creating scrape job: %w", err)
	}

	payload, err := json.Marshal(scrapePayload{JobID: job.ID})
	if err != nil {
		return 0, fmt.Errorf("marshalling scrape payload: %w", err)
	}

	if err := w.Redis.RPush(ctx, scrapeQueueKey, payload).Err(); err != nil {
		return 0, fmt.Errorf("enqueueing job %d: %w", job.ID, err)
	}

	w.log.Infow("scrape job enqueued", "job_id", job.ID, "url", novelURL)
	return job.ID, nil
}

// EnqueueListing queues a listing page crawl. The worker discovers the
// novel cards on it and enqueues a scrape job per novel not yet stored.
func (w *Worker) EnqueueListing(ctx context.Context, listingURL string) error {
	payload, err := json.Marshal(listingPayload{ListingURL: listingURL})
	if err != nil {
		return fmt.Errorf("marshalling listing payload: %w", err)
	}

	if err := w.Redis.RPush(ctx, listingQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueueing listing crawl: %w", err)
	}

	w.log.Infow("listing crawl enqueued", "url", listingURL)
	return nil
}

// Start blocks, popping jobs until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return
		default:
			result, err := w.Redis.BLPop(ctx, popTimeout, scrapeQueueKey, listingQueueKey).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Warnf("popping from queues: %v", err)
				time.Sleep(time.Second)
				continue
			}

			switch result[0] {
			case listingQueueKey:
				if err := w.processListing(ctx, result[1]); err != nil {
					w.log.Errorw("listing processing failed", "error", err)
				}
			default:
				if err := w.processJob(ctx, result[1]); err != nil {
					w.log.Errorw("job processing failed", "error", err)
				}
			}
		}
	}
}

func (w *Worker) processJob(ctx context.Context, raw string) error {
	var payload scrapePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("unmarshalling scrape payload: %w", err)
	}

	// A single job owns its novel exclusively; the lock keeps two worker
	// processes off the same job.
	lockKey := fmt.Sprintf("scrape_job_lock:%d", payload.JobID)
	locked, err := w.Redis.SetNX(ctx, lockKey, "1", jobLockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquiring job lock: %w", err)
	}
	if !locked {
		w.log.Infow("job held by another worker, skipping", "job_id", payload.JobID)
		return nil
	}
	defer w.Redis.Del(context.Background(), lockKey)

	if err := w.Pipeline.Run(ctx, payload.JobID); err != nil {
		// The job record already carries FAILED + the error; a failed job
		// is terminal and is re-attempted only by enqueueing a new job.
		return fmt.Errorf("running job %d: %w", payload.JobID, err)
	}
	return nil
}

// processListing discovers novels on a listing page and enqueues a
// scrape job for each one not already stored. Known novels are skipped;
// their backfill goes through per-novel jobs.
func (w *Worker) processListing(ctx context.Context, raw string) error {
	var payload listingPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("unmarshalling listing payload: %w", err)
	}

	cards, err := w.Pipeline.DiscoverNovels(ctx, payload.ListingURL)
	if err != nil {
		return fmt.Errorf("discovering novels at %s: %w", payload.ListingURL, err)
	}

	enqueued := 0
	for _, card := range cards {
		existing, err := w.Store.FindNovelBySlug(pipeline.Slugify(card.Title))
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := w.EnqueueScrape(ctx, card.SourceURL); err != nil {
			return err
		}
		enqueued++
	}

	w.log.Infow("listing processed", "url", payload.ListingURL, "cards", len(cards), "enqueued", enqueued)
	return nil
}

// JobStatus loads the observable state for polling handlers.
func (w *Worker) JobStatus(id uint) (*models.ScrapeJob, error) {
	return w.Store.GetJob(id)
}
