package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCrawlTarget(t *testing.T) {
	tests := []struct {
		name       string
		domain     string
		maxPages   int
		wantDomain string
		wantErr    bool
	}{
		{"bare domain", "example.com", 50, "example.com", false},
		{"uppercase normalized", "Example.COM", 50, "example.com", false},
		{"scheme stripped", "https://example.com", 50, "example.com", false},
		{"http scheme stripped", "http://example.com", 50, "example.com", false},
		{"path stripped", "example.com/blog/post", 50, "example.com", false},
		{"query stripped", "example.com?utm=1", 50, "example.com", false},
		{"www preserved", "www.example.com", 50, "www.example.com", false},
		{"trailing dot trimmed", "example.com.", 50, "example.com", false},
		{"whitespace trimmed", "  example.com  ", 50, "example.com", false},
		{"empty domain", "", 50, "", true},
		{"scheme only", "https://", 50, "", true},
		{"embedded space", "exa mple.com", 50, "", true},
		{"zero max pages", "example.com", 0, "", true},
		{"negative max pages", "example.com", -3, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := NewCrawlTarget(tt.domain, tt.maxPages)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDomain, target.Domain)
			assert.Equal(t, tt.maxPages, target.MaxPages)
		})
	}
}

func TestCrawlTarget_SeedURL(t *testing.T) {
	target, err := NewCrawlTarget("example.com", 10)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target.SeedURL())
}

func TestFetchResult_Failed(t *testing.T) {
	ok := FetchResult{StatusCode: 200}
	assert.False(t, ok.Failed())

	failed := FetchResult{Error: "dial tcp: connection refused"}
	assert.True(t, failed.Failed())
}

func TestFetchResult_IsHTML(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"image/png", false},
		{"", false},
	}
	for _, tt := range tests {
		fr := FetchResult{ContentType: tt.contentType}
		assert.Equal(t, tt.want, fr.IsHTML(), "ContentType=%q", tt.contentType)
	}
}

func TestPageRecord_JSONShape(t *testing.T) {
	record := PageRecord{
		ID:         "page-1",
		CrawlJobID: "job-1",
		PageAnalysis: PageAnalysis{
			URL:             "https://example.com/",
			StatusCode:      200,
			Title:           "Example",
			MetaDescription: "An example page",
			H1Tags:          []string{"Welcome"},
			WordCount:       420,
			LoadTimeMs:      350,
			MobileFriendly:  true,
			HasSSL:          true,
			CanonicalURL:    "https://example.com/",
			OGTags:          map[string]string{"og:title": "Example"},
			SchemaMarkup:    StructuredData{Types: []string{"WebPage"}, Count: 1},
			InternalLinks:   5,
			ExternalLinks:   2,
			Issues: []Issue{
				{Type: "missing_favicon", Severity: SeverityInfo, Message: "No favicon found"},
			},
			SEOScore: 92,
		},
	}

	data, err := json.Marshal(record)
	require.NoError(t, err)

	// The persisted shape is a flat object; downstream consumers key on
	// these exact field names.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{
		"id", "crawl_job_id", "url", "status_code", "title", "meta_description",
		"h1_tags", "word_count", "load_time_ms", "mobile_friendly", "has_ssl",
		"canonical_url", "og_tags", "schema_markup", "issues", "seo_score",
	} {
		assert.Contains(t, raw, key)
	}

	var got PageRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, record, got)
}

func TestRecommendation_SiteWide(t *testing.T) {
	pageScoped := Recommendation{ID: "r1", PageRecordID: "page-1"}
	assert.False(t, pageScoped.SiteWide())

	siteScoped := Recommendation{ID: "r2"}
	assert.True(t, siteScoped.SiteWide())
}

func TestRecommendation_JSONOmitsEmptyPageRef(t *testing.T) {
	rec := Recommendation{
		ID:                   "r1",
		CrawlJobID:           "job-1",
		Type:                 RecTypeTechnicalSEO,
		Title:                "Serve every page over HTTPS",
		Description:          "2 pages still use HTTP",
		Priority:             PriorityHigh,
		ImplementationStatus: ImplementationPending,
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "page_result_id")
	assert.Contains(t, string(data), `"recommendation_type":"technical_seo"`)
}

func TestCrawlJob_CompletedAtOmittedWhileRunning(t *testing.T) {
	job := CrawlJob{
		ID:        "job-1",
		Domain:    "example.com",
		MaxPages:  50,
		Status:    JobStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "completed_at")
	assert.NotContains(t, string(data), "error_message")
}
