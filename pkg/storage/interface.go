package storage

import (
	"github.com/devseo/siteaudit/pkg/models"
)

// ResultStore persists crawl jobs, per-page analyses, and recommendations
// across audit runs. Implementations must be safe for concurrent use; the
// audit service shares one store between simultaneous jobs.
type ResultStore interface {
	// SaveJob persists a newly created job. Saving an existing ID overwrites it.
	SaveJob(job models.CrawlJob) error

	// UpdateJob overwrites a previously saved job. Returns an error wrapping
	// utils.ErrNotFound if the job was never saved.
	UpdateJob(job models.CrawlJob) error

	// GetJob fetches a single job by ID. Returns an error wrapping
	// utils.ErrNotFound if no such job exists.
	GetJob(jobID string) (models.CrawlJob, error)

	// ListJobs returns all stored jobs, most recently started first.
	ListJobs() ([]models.CrawlJob, error)

	// SavePageRecords persists a job's page records. Crawl order is preserved
	// and reproduced by ListPageRecords.
	SavePageRecords(jobID string, records []models.PageRecord) error

	// ListPageRecords returns a job's page records in crawl order.
	ListPageRecords(jobID string) ([]models.PageRecord, error)

	// SaveRecommendations persists a job's recommendations in generation order.
	SaveRecommendations(jobID string, recs []models.Recommendation) error

	// ListRecommendations returns a job's recommendations in generation order.
	ListRecommendations(jobID string) ([]models.Recommendation, error)

	// UpdateRecommendationStatus sets the implementation status of one
	// recommendation, addressed by its ID. Returns an error wrapping
	// utils.ErrNotFound if the recommendation does not exist.
	UpdateRecommendationStatus(recID string, status models.ImplementationStatus) error

	// Close cleanly closes the database connection
	Close() error
}
