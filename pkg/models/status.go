package models

// JobStatus represents the lifecycle state of a crawl job
type JobStatus string

const (
	JobStatusUnset     JobStatus = ""          // Zero value = unset/unknown
	JobStatusPending   JobStatus = "pending"   // Job created but not started
	JobStatusRunning   JobStatus = "running"   // Crawl loop in progress
	JobStatusCompleted JobStatus = "completed" // Queue exhausted or page cap reached
	JobStatusFailed    JobStatus = "failed"    // Run-level error before or during the crawl
	JobStatusCancelled JobStatus = "cancelled" // Cooperative cancellation, partial results kept
)

// String implements fmt.Stringer for logging
func (s JobStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true once the job can no longer change state
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Severity classifies how much an issue hurts a page's score
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// String implements fmt.Stringer for logging
func (s Severity) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the severity is a known value
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Priority ranks recommendations for the site owner
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// String implements fmt.Stringer for logging
func (p Priority) String() string {
	if p == "" {
		return "unset"
	}
	return string(p)
}

// IsValid returns true if the priority is a known value
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ImplementationStatus tracks what the site owner did with a recommendation.
// It is the only mutable part of a recommendation and is changed through the
// result store, never by the engine itself.
type ImplementationStatus string

const (
	ImplementationPending    ImplementationStatus = "pending"
	ImplementationInProgress ImplementationStatus = "in_progress"
	ImplementationCompleted  ImplementationStatus = "completed"
	ImplementationDismissed  ImplementationStatus = "dismissed"
)

// String implements fmt.Stringer for logging
func (s ImplementationStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known value
func (s ImplementationStatus) IsValid() bool {
	switch s {
	case ImplementationPending, ImplementationInProgress, ImplementationCompleted, ImplementationDismissed:
		return true
	}
	return false
}

// RecommendationType groups recommendations by the area of SEO they touch
type RecommendationType string

const (
	RecTypeTechnicalSEO   RecommendationType = "technical_seo"
	RecTypeContentQuality RecommendationType = "content_quality"
	RecTypeOnPage         RecommendationType = "on_page"
	RecTypePerformance    RecommendationType = "performance"
)

// String implements fmt.Stringer for logging
func (t RecommendationType) String() string {
	if t == "" {
		return "unset"
	}
	return string(t)
}

// IsValid returns true if the type is a known value
func (t RecommendationType) IsValid() bool {
	switch t {
	case RecTypeTechnicalSEO, RecTypeContentQuality, RecTypeOnPage, RecTypePerformance:
		return true
	}
	return false
}
