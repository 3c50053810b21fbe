package audit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devseo/siteaudit/pkg/models"
)

// ErrDomainBusy means an audit for the domain is already in flight.
var ErrDomainBusy = errors.New("audit already running for domain")

// JobManager tracks audit jobs in memory. The result store keeps the durable
// copy; this map is the authority on which jobs are live right now, in
// particular for the one-audit-per-domain rule. All methods are safe for
// concurrent use and return snapshots, never pointers into the map.
type JobManager struct {
	mu       sync.RWMutex
	jobs     map[string]*models.CrawlJob
	byDomain map[string]string // domain -> active (non-terminal) job ID
}

// NewJobManager creates an empty job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:     make(map[string]*models.CrawlJob),
		byDomain: make(map[string]string),
	}
}

// CreateJob registers a new pending job for domain. At most one non-terminal
// job may exist per domain; a second request is rejected with ErrDomainBusy
// until the first finishes.
func (m *JobManager) CreateJob(domain string, maxPages int) (models.CrawlJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if activeID, ok := m.byDomain[domain]; ok {
		return models.CrawlJob{}, fmt.Errorf("%w: %s (job %s)", ErrDomainBusy, domain, activeID)
	}

	job := &models.CrawlJob{
		ID:        uuid.New().String(),
		Domain:    domain,
		MaxPages:  maxPages,
		Status:    models.JobStatusPending,
		StartedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.byDomain[domain] = job.ID
	return *job, nil
}

// StartJob moves a pending job to running. Returns false when the job is
// unknown or not pending.
func (m *JobManager) StartJob(jobID string) (models.CrawlJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != models.JobStatusPending {
		return models.CrawlJob{}, false
	}
	job.Status = models.JobStatusRunning
	return *job, true
}

// FinishJob moves a job to a terminal status, stamps its completion time and
// releases the domain for the next audit. Non-terminal statuses and double
// finishes are rejected.
func (m *JobManager) FinishJob(jobID string, status models.JobStatus, errMsg string) (models.CrawlJob, error) {
	if !status.IsTerminal() {
		return models.CrawlJob{}, fmt.Errorf("cannot finish job %s with non-terminal status '%s'", jobID, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return models.CrawlJob{}, fmt.Errorf("unknown job %s", jobID)
	}
	if job.Status.IsTerminal() {
		return models.CrawlJob{}, fmt.Errorf("job %s already finished as '%s'", jobID, job.Status)
	}

	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	if errMsg != "" {
		job.ErrorMessage = errMsg
	}
	if m.byDomain[job.Domain] == jobID {
		delete(m.byDomain, job.Domain)
	}
	return *job, nil
}

// UpdateProgress records crawl progress on a live job. Returns false when
// the job is unknown or already terminal.
func (m *JobManager) UpdateProgress(jobID string, crawled, total int) (models.CrawlJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		return models.CrawlJob{}, false
	}
	job.PagesCrawled = crawled
	job.PagesTotal = total
	return *job, true
}

// RequestCancel flags a job for cooperative cancellation. The crawl loop
// checks the flag between pages, so the job stays running until it reacts.
// Returns false when the job is unknown or already terminal.
func (m *JobManager) RequestCancel(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		return false
	}
	job.CancellationRequested = true
	return true
}

// CancelRequested reports whether RequestCancel was called on a live job.
func (m *JobManager) CancelRequested(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	return ok && job.CancellationRequested
}

// GetJob returns a snapshot of the job.
func (m *JobManager) GetJob(jobID string) (models.CrawlJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return models.CrawlJob{}, false
	}
	return *job, true
}

// IsRunning reports whether the domain has a non-terminal job.
func (m *JobManager) IsRunning(domain string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.byDomain[domain]
	return ok
}
