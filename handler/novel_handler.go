package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"novelpipe/models"
)

type NovelHandler struct {
	DB *gorm.DB
}

type ChapterListItem struct {
	ID        uint      `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	WordCount int       `json:"word_count"`
	IsPremium bool      `json:"is_premium"`
	CoinCost  int       `json:"coin_cost"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *NovelHandler) GetNovel(c echo.Context) error {
	id := c.Param("id")

	var novel models.Novel
	if err := h.DB.Preload("Genres").First(&novel, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "Novel not found")
		}
		return err
	}

	return c.JSON(http.StatusOK, novel)
}

func (h *NovelHandler) GetNovels(c echo.Context) error {
	var novelResponses []struct {
		models.Novel
		LastChapterNumber  int `json:"last_chapter_number"`
		TotalChaptersCount int `json:"total_chapters_count"`
	}

	lastChapterSubquery := h.DB.Table("chapters").
		Select("MAX(number) as last_chapter_number, COUNT(id) as total_chapters_count, novel_id").
		Where("deleted_at IS NULL").
		Group("novel_id")

	if err := h.DB.Table("novels").
		Select("novels.*, cc.last_chapter_number, cc.total_chapters_count").
		Joins("LEFT JOIN (?) as cc ON cc.novel_id = novels.id", lastChapterSubquery).
		Where("novels.deleted_at IS NULL").
		Order("novels.updated_at DESC").
		Scan(&novelResponses).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, novelResponses)
}

func (h *NovelHandler) GetNovelChapters(c echo.Context) error {
	id := c.Param("id")

	page, pageSize := 1, 50
	var err error

	if qp := c.QueryParam("page"); qp != "" {
		page, err = strconv.Atoi(qp)
		if err != nil || page < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid page number")
		}
	}
	if qp := c.QueryParam("pageSize"); qp != "" {
		pageSize, err = strconv.Atoi(qp)
		if err != nil || pageSize < 1 || pageSize > 200 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid page size")
		}
	}

	var total int64
	if err := h.DB.Model(&models.Chapter{}).Where("novel_id = ?", id).Count(&total).Error; err != nil {
		return err
	}

	var chapters []ChapterListItem
	if err := h.DB.Table("chapters").
		Select("id, number, title, word_count, is_premium, coin_cost, updated_at").
		Where("novel_id = ? AND deleted_at IS NULL", id).
		Order("number ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Scan(&chapters).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"chapters":      chapters,
		"totalChapters": total,
		"currentPage":   page,
		"pageSize":      pageSize,
		"totalPages":    int(math.Ceil(float64(total) / float64(pageSize))),
	})
}

func (h *NovelHandler) GetChapterByNumber(c echo.Context) error {
	novelID := c.Param("novel_id")
	number := c.Param("number")

	var response struct {
		ID                uint      `json:"id"`
		Number            int       `json:"number"`
		Title             string    `json:"title"`
		ContentTranslated string    `json:"content_translated"`
		WordCount         int       `json:"word_count"`
		UpdatedAt         time.Time `json:"updated_at"`
		NovelID           uint      `json:"novel_id"`
		NovelTitle        string    `json:"novel_title"`
	}

	if err := h.DB.Table("chapters").
		Select("chapters.id, chapters.number, chapters.title, chapters.content_translated, chapters.word_count, chapters.updated_at, novels.id as novel_id, novels.title as novel_title").
		Joins("JOIN novels ON novels.id = chapters.novel_id").
		Where("chapters.novel_id = ? AND chapters.number = ?", novelID, number).
		First(&response).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "Chapter not found")
		}
		return err
	}

	return c.JSON(http.StatusOK, response)
}

func (h *NovelHandler) GetNovelTranslationStats(c echo.Context) error {
	id := c.Param("id")

	var total, translated int64
	if err := h.DB.Model(&models.Chapter{}).Where("novel_id = ?", id).Count(&total).Error; err != nil {
		return err
	}
	if err := h.DB.Model(&models.Chapter{}).
		Where("novel_id = ? AND content_translated IS NOT NULL AND content_translated != ''", id).
		Count(&translated).Error; err != nil {
		return err
	}

	status := "in_progress"
	if total > 0 && translated == total {
		status = "completed"
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"total_chapters":      total,
		"translated_chapters": translated,
		"status":              status,
	})
}

// DeleteNovel is an operator route; the pipeline itself never deletes.
func (h *NovelHandler) DeleteNovel(c echo.Context) error {
	id := c.Param("id")

	tx := h.DB.Begin()

	if err := tx.Unscoped().Where("novel_id = ?", id).Delete(&models.Chapter{}).Error; err != nil {
		tx.Rollback()
		return echo.NewHTTPError(http.StatusInternalServerError, "Error deleting chapters")
	}
	if err := tx.Unscoped().Where("id = ?", id).Delete(&models.Novel{}).Error; err != nil {
		tx.Rollback()
		return echo.NewHTTPError(http.StatusInternalServerError, "Error deleting novel")
	}
	if err := tx.Commit().Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Error committing transaction")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Novel and chapters deleted"})
}
