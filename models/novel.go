package models

import (
	"time"

	"gorm.io/gorm"
)

// Novel publication status.
const (
	StatusOngoing   = "ONGOING"
	StatusCompleted = "COMPLETED"
	StatusHiatus    = "HIATUS"
	StatusDropped   = "DROPPED"
)

type Novel struct {
	gorm.Model
	Title     string  `json:"title"`
	Slug      string  `json:"slug" gorm:"uniqueIndex"`
	Synopsis  string  `json:"synopsis"`
	Cover     *string `json:"cover"`
	Author    string  `json:"author" gorm:"default:Unknown"`
	Status    string  `json:"status" gorm:"default:ONGOING"`
	SourceURL string  `json:"source_url"`
	// IsManual marks hand-entered novels; the pipeline never touches them.
	IsManual bool      `json:"is_manual"`
	Genres   []Genre   `json:"genres" gorm:"many2many:novel_genres;"`
	Chapters []Chapter `json:"chapters"`
}

type Chapter struct {
	gorm.Model
	NovelID           uint    `json:"novel_id" gorm:"index:idx_novel_number,unique"`
	Number            int     `json:"number" gorm:"index:idx_novel_number,unique"`
	Title             string  `json:"title"`
	ContentOriginal   *string `json:"content_original"`
	ContentTranslated *string `json:"content_translated"`
	WordCount         int     `json:"word_count"`
	IsPremium         bool    `json:"is_premium"`
	CoinCost          int     `json:"coin_cost"`
	SourceURL         string  `json:"source_url"`
}

type Genre struct {
	gorm.Model
	Name string `json:"name" gorm:"uniqueIndex"`
}

// ScrapeJob status values. Transitions are monotonic: a job never leaves
// COMPLETED or FAILED.
const (
	JobPending     = "PENDING"
	JobScraping    = "SCRAPING"
	JobTranslating = "TRANSLATING"
	JobCompleted   = "COMPLETED"
	JobFailed      = "FAILED"
)

type ScrapeJob struct {
	gorm.Model
	NovelURL        string     `json:"novel_url"`
	Status          string     `json:"status" gorm:"default:PENDING"`
	NovelID         *uint      `json:"novel_id"`
	TotalChapters   int        `json:"total_chapters"`
	ScrapedChapters int        `json:"scraped_chapters"`
	Error           *string    `json:"error"`
	Logs            string     `json:"logs"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

// Terminal reports whether the job reached a final state.
func (j *ScrapeJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
