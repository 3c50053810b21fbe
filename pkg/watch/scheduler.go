// Package watch re-audits a fixed set of domains on an interval. Each
// domain's last run is remembered in a JSON state file, so a restarted
// scheduler picks up the cadence instead of re-auditing everything at once.
package watch

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devseo/siteaudit/pkg/audit"
	"github.com/devseo/siteaudit/pkg/models"
)

// AuditRunner is the slice of the audit service the scheduler drives.
type AuditRunner interface {
	// RunAll audits the domains and blocks until every one finishes.
	RunAll(ctx context.Context, domains []string, maxPages int) []audit.DomainResult
	// IsRunning reports whether the domain has an audit in flight.
	IsRunning(domain string) bool
}

// Scheduler periodically re-audits domains through the audit service.
type Scheduler struct {
	svc      AuditRunner
	domains  []string
	interval time.Duration
	log      *logrus.Entry
	state    *StateManager

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler that re-audits domains every interval,
// persisting per-domain state at statePath. Domains are normalized so state
// keys match the audit service's job records.
func NewScheduler(svc AuditRunner, domains []string, interval time.Duration, statePath string, log *logrus.Entry) *Scheduler {
	normalized := make([]string, 0, len(domains))
	for _, domain := range domains {
		if d, err := models.NormalizeDomain(domain); err == nil {
			domain = d
		}
		normalized = append(normalized, domain)
	}
	return &Scheduler{
		svc:      svc,
		domains:  normalized,
		interval: interval,
		log:      log.WithField("component", "watch"),
		state:    NewStateManager(statePath),
	}
}

// Run blocks until ctx is cancelled, auditing due domains as their interval
// elapses. In-flight audit batches observe the same ctx, and Run waits for
// them before returning, so shutdown is cooperative rather than abandonment.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.state.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode for %d domains with interval %s", len(s.domains), FormatInterval(s.interval))
	s.logSchedule()

	s.runDueDomains(ctx)

	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.runDueDomains(ctx)
		}
	}
}

// runDueDomains starts one batch audit for every domain whose interval has
// elapsed. Domains still running from a previous batch are skipped rather
// than queued twice.
func (s *Scheduler) runDueDomains(ctx context.Context) {
	var due []string
	for _, domain := range s.domains {
		if !s.state.ShouldRun(domain, s.interval) {
			continue
		}
		if s.svc.IsRunning(domain) {
			s.log.Debugf("Skipping %s: audit still running", domain)
			continue
		}
		due = append(due, domain)
	}
	if len(due) == 0 {
		s.logNextRun()
		return
	}

	s.log.Infof("Auditing %d due domains: %v", len(due), due)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		results := s.svc.RunAll(ctx, due, 0)
		for _, result := range results {
			s.state.RecordRun(result.Domain, result.Job, result.Err)
		}
		if err := s.state.Save(); err != nil {
			s.log.Errorf("Failed to save watch state: %v", err)
		}
		s.logNextRun()
	}()
}

// tickInterval is how often the scheduler checks for due domains: a tenth
// of the audit interval, clamped between one second and ten minutes.
func (s *Scheduler) tickInterval() time.Duration {
	tick := s.interval / 10
	if tick < time.Second {
		tick = time.Second
	}
	if tick > 10*time.Minute {
		tick = 10 * time.Minute
	}
	return tick
}

func (s *Scheduler) logSchedule() {
	s.log.Info("Watch schedule:")
	for _, domain := range s.domains {
		st, ok := s.state.GetDomainState(domain)
		if !ok {
			s.log.Infof("  %s: never audited, will run immediately", domain)
			continue
		}
		next := s.state.NextRunTime(domain, s.interval)
		s.log.Infof("  %s: last run %s (%s, %d pages), next run %s",
			domain,
			st.LastRunTime.Format(time.RFC3339),
			st.LastStatus,
			st.PagesCrawled,
			next.Format(time.RFC3339))
	}
}

func (s *Scheduler) logNextRun() {
	type upcoming struct {
		domain string
		at     time.Time
	}
	next := make([]upcoming, 0, len(s.domains))
	for _, domain := range s.domains {
		next = append(next, upcoming{domain, s.state.NextRunTime(domain, s.interval)})
	}
	if len(next) == 0 {
		return
	}
	sort.Slice(next, func(i, j int) bool { return next[i].at.Before(next[j].at) })

	until := time.Until(next[0].at)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next audit: %s in %v (at %s)", next[0].domain, until.Round(time.Second), next[0].at.Format("15:04:05"))
}

// FormatInterval formats a duration for display, using a day suffix for
// intervals of 24h and longer.
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string, extending time.ParseDuration with
// a day suffix ("7d", "1d12h").
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if value, remaining, found := strings.Cut(s, "d"); found {
		days, convErr := strconv.Atoi(value)
		if convErr == nil && days >= 0 {
			d = time.Duration(days) * 24 * time.Hour
			if remaining == "" {
				return d, nil
			}
			if extra, extraErr := time.ParseDuration(remaining); extraErr == nil {
				return d + extra, nil
			}
		}
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
