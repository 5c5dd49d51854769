package pipeline

import (
	"fmt"

	"novelpipe/models"
)

// validTransitions encodes the job state machine:
// PENDING -> SCRAPING -> TRANSLATING -> COMPLETED, with FAILED reachable
// from SCRAPING or TRANSLATING. Terminal states have no exits.
var validTransitions = map[string][]string{
	models.JobPending:     {models.JobScraping},
	models.JobScraping:    {models.JobTranslating, models.JobFailed},
	models.JobTranslating: {models.JobCompleted, models.JobFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (p *Pipeline) transition(job *models.ScrapeJob, to string) error {
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("invalid job transition %s -> %s", job.Status, to)
	}
	job.Status = to
	return p.store.UpdateJob(job)
}
