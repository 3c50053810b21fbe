// Package audit runs complete SEO audits end to end: crawl the site,
// analyze every fetched page, generate recommendations, persist the lot
// and write the markdown report.
//
// The Service enforces the global concurrency budget with a weighted
// semaphore and the one-audit-per-domain rule through its JobManager.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/devseo/siteaudit/pkg/analyze"
	"github.com/devseo/siteaudit/pkg/config"
	"github.com/devseo/siteaudit/pkg/crawl"
	"github.com/devseo/siteaudit/pkg/metrics"
	"github.com/devseo/siteaudit/pkg/models"
	"github.com/devseo/siteaudit/pkg/recommend"
	"github.com/devseo/siteaudit/pkg/report"
	"github.com/devseo/siteaudit/pkg/storage"
	"github.com/devseo/siteaudit/pkg/utils"
)

// Service executes audits. One Service instance is shared by every
// subcommand surface (single run, batch, watch scheduler).
type Service struct {
	appCfg *config.AppConfig
	store  storage.ResultStore
	jobs   *JobManager
	sem    *semaphore.Weighted
	log    *logrus.Entry

	// Test seams. Production code leaves both zero, which makes the
	// crawler derive the seed from the target and guard every origin
	// with the resolving address check.
	seedURL string
	guard   crawl.SafetyChecker
}

// NewService wires an audit service against the given store. The
// concurrency budget comes from MaxConcurrentAudits, with a floor of one.
func NewService(appCfg *config.AppConfig, store storage.ResultStore, logger *logrus.Entry) *Service {
	maxConcurrent := appCfg.MaxConcurrentAudits
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		appCfg: appCfg,
		store:  store,
		jobs:   NewJobManager(),
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		log:    logger.WithField("component", "audit"),
	}
}

// resolveTarget normalizes the domain and settles the page budget: an
// explicit maxPages beats the per-target config, which beats the global
// default.
func (s *Service) resolveTarget(domain string, maxPages int) (models.CrawlTarget, error) {
	d, err := models.NormalizeDomain(domain)
	if err != nil {
		return models.CrawlTarget{}, err
	}
	budget := maxPages
	if budget <= 0 {
		budget = config.GetEffectiveMaxPages(s.appCfg.Targets[d], *s.appCfg)
	}
	return models.NewCrawlTarget(d, budget)
}

// Run executes one complete audit for domain and blocks until the job
// reaches a terminal state. maxPages overrides the configured budget when
// positive.
//
// The returned job carries the terminal state. The error is non-nil only
// when the audit failed or was rejected (for example ErrDomainBusy);
// completed and cancelled audits return a nil error, with the distinction
// in job.Status.
func (s *Service) Run(ctx context.Context, domain string, maxPages int) (models.CrawlJob, error) {
	target, err := s.resolveTarget(domain, maxPages)
	if err != nil {
		return models.CrawlJob{}, err
	}

	job, err := s.jobs.CreateJob(target.Domain, target.MaxPages)
	if err != nil {
		return models.CrawlJob{}, err
	}
	runLog := s.log.WithFields(logrus.Fields{"job_id": job.ID, "domain": job.Domain})

	if err := s.store.SaveJob(job); err != nil {
		final := s.finishJob(runLog, job.ID, models.JobStatusFailed, "cannot persist job")
		return final, fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}
	runLog.WithField("max_pages", job.MaxPages).Info("Audit job created")

	if err := s.sem.Acquire(ctx, 1); err != nil {
		status, msg := statusForRunError(err)
		final := s.finishJob(runLog, job.ID, status, msg)
		if status == models.JobStatusCancelled {
			return final, nil
		}
		return final, err
	}
	defer s.sem.Release(1)

	metrics.AuditsActive.Inc()
	defer metrics.AuditsActive.Dec()

	// A cancel can land while the job waits on the semaphore.
	if s.jobs.CancelRequested(job.ID) {
		final := s.finishJob(runLog, job.ID, models.JobStatusCancelled, "audit cancelled")
		return final, nil
	}

	running, ok := s.jobs.StartJob(job.ID)
	if !ok {
		final, _ := s.jobs.GetJob(job.ID)
		return final, nil
	}
	if err := s.store.UpdateJob(running); err != nil {
		runLog.Warnf("Cannot persist running state: %v", err)
	}

	return s.execute(ctx, running, target, runLog)
}

// execute drives a started job through crawl, analysis, persistence and
// reporting. Cancellation keeps the pages crawled so far; any run-level
// failure discards them.
func (s *Service) execute(ctx context.Context, job models.CrawlJob, target models.CrawlTarget, runLog *logrus.Entry) (models.CrawlJob, error) {
	runCtx := ctx
	if s.appCfg.GlobalAuditTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.appCfg.GlobalAuditTimeout)
		defer cancel()
	}

	crawler, err := crawl.New(runCtx, crawl.Config{
		Target:   target,
		App:      s.appCfg,
		SeedURL:  s.seedURL,
		Guard:    s.guard,
		Progress: s.progressFunc(runLog, job.ID),
	}, runLog)
	if err != nil {
		final := s.finishJob(runLog, job.ID, models.JobStatusFailed, err.Error())
		return final, err
	}

	results, runErr := crawler.Run(runCtx)
	status, errMsg := statusForRunError(runErr)

	if status == models.JobStatusFailed {
		// Partial results of a failed run are not persisted.
		final := s.finishJob(runLog, job.ID, status, errMsg)
		return final, runErr
	}

	records := s.analyzeResults(job.ID, results, runLog)
	if err := s.store.SavePageRecords(job.ID, records); err != nil {
		final := s.finishJob(runLog, job.ID, models.JobStatusFailed, "cannot persist page records")
		return final, fmt.Errorf("failed to persist page records for job %s: %w", job.ID, err)
	}

	recs := recommend.Generate(job.ID, records)
	if err := s.store.SaveRecommendations(job.ID, recs); err != nil {
		final := s.finishJob(runLog, job.ID, models.JobStatusFailed, "cannot persist recommendations")
		return final, fmt.Errorf("failed to persist recommendations for job %s: %w", job.ID, err)
	}

	final := s.finishJob(runLog, job.ID, status, errMsg)

	if status == models.JobStatusCompleted {
		path, err := report.Write(s.appCfg.ReportDir, final, records, recs)
		if err != nil {
			runLog.Errorf("Report generation failed: %v", err)
		} else {
			runLog.WithField("report", path).Info("Audit report written")
		}
	}

	return final, nil
}

// analyzeResults runs the page analyzer over every result that produced an
// HTTP response. Network-level failures are logged and skipped; they never
// become page records.
func (s *Service) analyzeResults(jobID string, results []models.FetchResult, runLog *logrus.Entry) []models.PageRecord {
	records := make([]models.PageRecord, 0, len(results))
	for _, result := range results {
		if result.Failed() {
			runLog.WithField("url", result.RequestedURL).Debugf("Skipping failed fetch: %s", result.Error)
			continue
		}
		analysis := analyze.Analyze(result)
		metrics.PagesAnalyzed.Inc()
		records = append(records, models.PageRecord{
			ID:           uuid.New().String(),
			CrawlJobID:   jobID,
			PageAnalysis: analysis,
		})
	}
	return records
}

// progressFunc bridges the crawler's per-page callback to the job manager
// and the store. Store write failures only log; losing one progress tick
// is not worth aborting a crawl.
func (s *Service) progressFunc(runLog *logrus.Entry, jobID string) crawl.ProgressFunc {
	return func(pagesCrawled, total int) crawl.Decision {
		if snap, ok := s.jobs.UpdateProgress(jobID, pagesCrawled, total); ok {
			if err := s.store.UpdateJob(snap); err != nil {
				runLog.Warnf("Cannot persist progress: %v", err)
			}
		}
		if s.jobs.CancelRequested(jobID) {
			return crawl.DecisionCancel
		}
		return crawl.DecisionContinue
	}
}

// statusForRunError maps a crawl outcome to the job's terminal status.
// Cooperative cancellation keeps partial results; a deadline or any other
// run-level error fails the job.
func statusForRunError(runErr error) (models.JobStatus, string) {
	switch {
	case runErr == nil:
		return models.JobStatusCompleted, ""
	case errors.Is(runErr, utils.ErrCrawlCancelled), errors.Is(runErr, context.Canceled):
		return models.JobStatusCancelled, "audit cancelled"
	case errors.Is(runErr, context.DeadlineExceeded):
		return models.JobStatusFailed, "audit timed out"
	default:
		return models.JobStatusFailed, runErr.Error()
	}
}

// finishJob drives the job to its terminal state in the manager and the
// store and bumps the audit counters. It always returns the freshest
// snapshot it can get.
func (s *Service) finishJob(runLog *logrus.Entry, jobID string, status models.JobStatus, errMsg string) models.CrawlJob {
	final, err := s.jobs.FinishJob(jobID, status, errMsg)
	if err != nil {
		runLog.Errorf("Cannot finish job: %v", err)
		final, _ = s.jobs.GetJob(jobID)
		return final
	}

	metrics.AuditsTotal.WithLabelValues(string(status)).Inc()
	if err := s.store.UpdateJob(final); err != nil {
		runLog.Warnf("Cannot persist terminal state: %v", err)
	}
	runLog.WithFields(logrus.Fields{
		"status": final.Status,
		"pages":  final.PagesCrawled,
	}).Info("Audit finished")
	return final
}

// RequestCancel flags a running audit for cooperative cancellation.
func (s *Service) RequestCancel(jobID string) bool {
	return s.jobs.RequestCancel(jobID)
}

// IsRunning reports whether an audit for the domain is in flight. The
// domain is normalized the same way Run normalizes it.
func (s *Service) IsRunning(domain string) bool {
	d, err := models.NormalizeDomain(domain)
	if err != nil {
		return false
	}
	return s.jobs.IsRunning(d)
}

// DomainResult is the outcome of one domain's audit within a batch run.
type DomainResult struct {
	Domain   string
	Job      models.CrawlJob
	Err      error
	Duration time.Duration
}

// RunAll audits every domain concurrently, bounded by the service
// semaphore, and blocks until all of them finish. Results come back in
// input order.
func (s *Service) RunAll(ctx context.Context, domains []string, maxPages int) []DomainResult {
	results := make([]DomainResult, len(domains))

	var wg sync.WaitGroup
	for i, domain := range domains {
		wg.Add(1)
		go func(idx int, d string) {
			defer wg.Done()
			start := time.Now()
			job, err := s.Run(ctx, d, maxPages)
			results[idx] = DomainResult{Domain: d, Job: job, Err: err, Duration: time.Since(start)}
		}(i, domain)
	}
	wg.Wait()

	s.logSummary(results)
	return results
}

func (s *Service) logSummary(results []DomainResult) {
	succeeded := 0
	for _, r := range results {
		if r.Err == nil && r.Job.Status == models.JobStatusCompleted {
			succeeded++
		}
	}

	s.log.Info("============================================")
	s.log.Infof("Audit batch finished: %d/%d domains completed", succeeded, len(results))
	for _, r := range results {
		if r.Err != nil {
			s.log.Infof("  %s: error - %v", r.Domain, r.Err)
			continue
		}
		s.log.Infof("  %s: %s - %d pages in %v", r.Domain, r.Job.Status, r.Job.PagesCrawled, r.Duration.Round(time.Millisecond))
	}
	s.log.Info("============================================")
}
