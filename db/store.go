package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"novelpipe/models"
)

// Store is the GORM-backed persistence layer the pipeline runs against.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// FindNovelBySlug returns nil without error when no record matches.
func (s *Store) FindNovelBySlug(slug string) (*models.Novel, error) {
	var novel models.Novel
	err := s.DB.Where("slug = ?", slug).First(&novel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &novel, nil
}

func (s *Store) CreateNovel(novel *models.Novel) error {
	return s.DB.Create(novel).Error
}

// UpsertGenre inserts the genre if missing and returns the stored row.
func (s *Store) UpsertGenre(name string) (*models.Genre, error) {
	var genre models.Genre
	err := s.DB.Where("name = ?", name).First(&genre).Error
	if err == nil {
		return &genre, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	genre = models.Genre{Name: name}
	if err := s.DB.Create(&genre).Error; err != nil {
		return nil, err
	}
	return &genre, nil
}

func (s *Store) ExistingChapterNumbers(novelID uint) (map[int]bool, error) {
	var numbers []int
	err := s.DB.Model(&models.Chapter{}).
		Where("novel_id = ?", novelID).
		Pluck("number", &numbers).Error
	if err != nil {
		return nil, err
	}

	existing := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		existing[n] = true
	}
	return existing, nil
}

// CreateChapter inserts the chapter unless a row for the same
// (novel_id, number) already exists. Collisions skip, never overwrite.
func (s *Store) CreateChapter(chapter *models.Chapter) (bool, error) {
	var count int64
	err := s.DB.Model(&models.Chapter{}).
		Where("novel_id = ? AND number = ?", chapter.NovelID, chapter.Number).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	if err := s.DB.Create(chapter).Error; err != nil {
		return false, fmt.Errorf("creating chapter %d for novel %d: %w", chapter.Number, chapter.NovelID, err)
	}
	return true, nil
}

func (s *Store) GetJob(id uint) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	if err := s.DB.First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Store) UpdateJob(job *models.ScrapeJob) error {
	return s.DB.Save(job).Error
}

func (s *Store) CreateJob(novelURL string) (*models.ScrapeJob, error) {
	job := &models.ScrapeJob{
		NovelURL: novelURL,
		Status:   models.JobPending,
	}
	if err := s.DB.Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}
