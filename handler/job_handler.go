package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"novelpipe/models"
	"novelpipe/worker"
)

// JobHandler exposes the scrape-job surface: enqueue and status polling.
// The job's status, error and logs fields are the sole failure surface —
// operators poll, there is no push alerting.
type JobHandler struct {
	Worker *worker.Worker
}

func (h *JobHandler) CreateScrapeJob(c echo.Context) error {
	url := c.FormValue("url")
	if url == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	jobID, err := h.Worker.EnqueueScrape(c.Request().Context(), url)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to enqueue scrape job")
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"job_id": jobID,
		"status": models.JobPending,
	})
}

// CreateListingScrapeJob queues a listing-page crawl; discovered novels
// each get their own scrape job, visible via the job endpoints.
func (h *JobHandler) CreateListingScrapeJob(c echo.Context) error {
	url := c.FormValue("url")
	if url == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	if err := h.Worker.EnqueueListing(c.Request().Context(), url); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to enqueue listing crawl")
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *JobHandler) GetScrapeJob(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid job id")
	}

	job, err := h.Worker.JobStatus(uint(id))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "Job not found")
		}
		return err
	}

	return c.JSON(http.StatusOK, job)
}
