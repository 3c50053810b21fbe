package models

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CrawlTarget identifies what a single audit run crawls. It is immutable:
// build one with NewCrawlTarget and pass it by value.
type CrawlTarget struct {
	Domain   string // registrable host, no scheme (e.g. "example.com" or "www.example.com")
	MaxPages int    // hard cap on pages fetched during the run
}

// NewCrawlTarget validates and normalizes a target. Users paste all kinds of
// things into a "domain" field, so a leading scheme or trailing path is
// stripped rather than rejected.
func NewCrawlTarget(domain string, maxPages int) (CrawlTarget, error) {
	d, err := NormalizeDomain(domain)
	if err != nil {
		return CrawlTarget{}, err
	}
	if maxPages <= 0 {
		return CrawlTarget{}, fmt.Errorf("invalid crawl target: max pages must be positive, got %d", maxPages)
	}
	return CrawlTarget{Domain: d, MaxPages: maxPages}, nil
}

// NormalizeDomain applies NewCrawlTarget's domain cleanup on its own, for
// callers that key configuration or state by domain before building a target.
func NormalizeDomain(domain string) (string, error) {
	d := strings.TrimSpace(strings.ToLower(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")
	if d == "" {
		return "", fmt.Errorf("invalid crawl target: empty domain %q", domain)
	}
	if strings.ContainsAny(d, " \t") {
		return "", fmt.Errorf("invalid crawl target: domain %q contains whitespace", domain)
	}
	return d, nil
}

// SeedURL is where the crawl starts when sitemap discovery finds nothing.
func (t CrawlTarget) SeedURL() string {
	return "https://" + t.Domain
}

// FetchResult records one attempt to retrieve a page. A network-level failure
// leaves StatusCode zero and sets Error; an HTTP error response keeps its
// status code and body so the analyzer can still inspect it.
type FetchResult struct {
	RequestedURL  string        // normalized URL popped from the frontier
	FinalURL      string        // URL after redirects (equals RequestedURL when none)
	StatusCode    int           // 0 when the request never completed
	Body          string        // response body; empty for non-HTML responses
	Headers       http.Header   // response headers (nil on network failure)
	ContentType   string        // Content-Type header value, if any
	LoadTime      time.Duration // wall time for the request including redirects
	RedirectChain []string      // intermediate URLs visited before FinalURL
	Error         string        // network/transport failure description
}

// Failed reports whether the fetch never produced an HTTP response.
func (fr FetchResult) Failed() bool {
	return fr.Error != ""
}

// IsHTML reports whether the response declared an HTML content type.
func (fr FetchResult) IsHTML() bool {
	return strings.Contains(fr.ContentType, "text/html") ||
		strings.Contains(fr.ContentType, "application/xhtml")
}

// LoadTimeMs returns the fetch duration in whole milliseconds, the unit the
// analyzer and persisted records use.
func (fr FetchResult) LoadTimeMs() int64 {
	return fr.LoadTime.Milliseconds()
}

// StructuredData summarizes schema.org markup found on a page.
type StructuredData struct {
	Types []string `json:"types,omitempty"` // e.g. ["Article", "BreadcrumbList"]
	Count int      `json:"count"`
}

// Issue is a single finding the analyzer raised against a page. Issues are
// value objects; once attached to a PageAnalysis they are never mutated.
type Issue struct {
	Type       string   `json:"type"`     // stable machine identifier, e.g. "missing_title"
	Severity   Severity `json:"severity"` // critical, warning or info
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// PageAnalysis is the full SEO snapshot of one fetched page. The analyzer
// builds it in a single pass and nothing mutates it afterwards; JSON tags
// match the persisted page record shape.
type PageAnalysis struct {
	URL             string            `json:"url"`
	StatusCode      int               `json:"status_code"`
	Title           string            `json:"title"`
	MetaDescription string            `json:"meta_description"`
	H1Tags          []string          `json:"h1_tags"`
	HasH2           bool              `json:"has_h2"` // scored as a bonus; full H2 text is not persisted
	WordCount       int               `json:"word_count"`
	LoadTimeMs      int64             `json:"load_time_ms"`
	MobileFriendly  bool              `json:"mobile_friendly"`
	HasSSL          bool              `json:"has_ssl"`
	CanonicalURL    string            `json:"canonical_url,omitempty"`
	OGTags          map[string]string `json:"og_tags,omitempty"`
	TwitterTags     map[string]string `json:"twitter_tags,omitempty"`
	SchemaMarkup    StructuredData    `json:"schema_markup"`
	RobotsDirective string            `json:"robots_directive,omitempty"` // content of <meta name="robots">
	InternalLinks   int               `json:"internal_links"`
	ExternalLinks   int               `json:"external_links"`
	SecurityHeaders map[string]bool   `json:"security_headers,omitempty"` // present only for HTTPS pages
	Issues          []Issue           `json:"issues"`
	SEOScore        int               `json:"seo_score"`
}

// PageRecord is the persisted form of a PageAnalysis, tied to its crawl job.
type PageRecord struct {
	ID         string `json:"id"`
	CrawlJobID string `json:"crawl_job_id"`
	PageAnalysis
}

// Recommendation is an actionable suggestion derived from one page or from
// site-wide aggregates. Everything except ImplementationStatus is immutable
// after the engine emits it.
type Recommendation struct {
	ID                   string               `json:"id"`
	CrawlJobID           string               `json:"crawl_job_id"`
	PageRecordID         string               `json:"page_result_id,omitempty"` // empty = site-wide
	Type                 RecommendationType   `json:"recommendation_type"`
	Title                string               `json:"title"`
	Description          string               `json:"description"`
	Priority             Priority             `json:"priority"`
	ImplementationStatus ImplementationStatus `json:"implementation_status"`
}

// SiteWide reports whether the recommendation applies to the whole site
// rather than a single page.
func (r Recommendation) SiteWide() bool {
	return r.PageRecordID == ""
}

// CrawlJob tracks one audit run through its lifecycle.
type CrawlJob struct {
	ID                    string     `json:"id"`
	Domain                string     `json:"domain"`
	MaxPages              int        `json:"max_pages"`
	Status                JobStatus  `json:"status"`
	PagesCrawled          int        `json:"pages_crawled"`
	PagesTotal            int        `json:"pages_total"` // best-effort estimate, capped at MaxPages
	StartedAt             time.Time  `json:"started_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	CancellationRequested bool       `json:"cancellation_requested,omitempty"`
}
