package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/devseo/siteaudit/pkg/models"
)

// DomainState is the last audit outcome remembered for one watched domain.
type DomainState struct {
	LastRunTime  time.Time        `json:"last_run_time"`
	LastJobID    string           `json:"last_job_id,omitempty"`
	LastStatus   models.JobStatus `json:"last_status"`
	PagesCrawled int              `json:"pages_crawled"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// State is the persistent state of the watch scheduler.
type State struct {
	Domains   map[string]DomainState `json:"domains"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// StateManager persists and answers questions about watch state. It is safe
// for concurrent use; the scheduler records outcomes from audit goroutines.
type StateManager struct {
	statePath string
	state     State
	mu        sync.RWMutex
}

// NewStateManager creates a manager for the given state file path.
func NewStateManager(statePath string) *StateManager {
	return &StateManager{
		statePath: statePath,
		state:     State{Domains: make(map[string]DomainState)},
	}
}

// Load reads the state file. A missing file is not an error; the scheduler
// starts fresh and every domain is immediately due.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = State{Domains: make(map[string]DomainState)}
			return nil
		}
		return fmt.Errorf("failed to read watch state file: %w", err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("failed to parse watch state file: %w", err)
	}
	if m.state.Domains == nil {
		m.state.Domains = make(map[string]DomainState)
	}
	return nil
}

// Save writes the state file, creating its directory when needed.
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	if dir := filepath.Dir(m.statePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create watch state directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal watch state: %w", err)
	}
	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write watch state file: %w", err)
	}
	return nil
}

// RecordRun remembers the outcome of one audit for the domain. runErr covers
// runs rejected before they produced a meaningful job.
func (m *StateManager) RecordRun(domain string, job models.CrawlJob, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := DomainState{
		LastRunTime:  time.Now(),
		LastJobID:    job.ID,
		LastStatus:   job.Status,
		PagesCrawled: job.PagesCrawled,
		ErrorMessage: job.ErrorMessage,
	}
	if runErr != nil && st.ErrorMessage == "" {
		st.ErrorMessage = runErr.Error()
	}
	m.state.Domains[domain] = st
}

// GetDomainState returns the remembered state for one domain.
func (m *StateManager) GetDomainState(domain string) (DomainState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.Domains[domain]
	return st, ok
}

// ShouldRun reports whether the domain is due for a re-audit. Domains never
// audited are always due.
func (m *StateManager) ShouldRun(domain string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.state.Domains[domain]
	if !ok {
		return true
	}
	return time.Since(st.LastRunTime) >= interval
}

// NextRunTime returns when the domain is next due. Unknown domains are due
// immediately.
func (m *StateManager) NextRunTime(domain string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.state.Domains[domain]
	if !ok {
		return time.Now()
	}
	return st.LastRunTime.Add(interval)
}
