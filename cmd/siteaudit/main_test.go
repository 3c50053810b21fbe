package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devseo/siteaudit/pkg/config"
	"github.com/devseo/siteaudit/pkg/models"
	"github.com/devseo/siteaudit/pkg/storage"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func newTestStore(t *testing.T) *storage.BadgerStore {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store, err := storage.NewBadgerStore(context.Background(), t.TempDir(), logrus.NewEntry(logger))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfgPath := writeConfig(t, `
user_agent: "TestBot/1.0"
max_pages: 25
state_dir: "./state"
report_dir: "./reports"
targets:
  example.com:
    max_pages: 10
`)

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, "TestBot/1.0", cfg.UserAgent)
	assert.Equal(t, 25, cfg.MaxPages)
	assert.Contains(t, cfg.Targets, "example.com")
	assert.Equal(t, 10, cfg.Targets["example.com"].MaxPages)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := loadConfig("")

	require.NoError(t, err)
	assert.Equal(t, &config.AppConfig{}, cfg)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeConfig(t, "{{invalid yaml")

	_, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDoValidate_Targets(t *testing.T) {
	cfgPath := writeConfig(t, `
max_pages: 25
min_request_delay: 500000000
state_dir: "./state"
report_dir: "./reports"
targets:
  example.com:
    max_pages: 10
  blog.example.com: {}
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	out := stdout.String()
	assert.Contains(t, out, "OK: [example.com] max pages 10")
	assert.Contains(t, out, "OK: [blog.example.com] max pages 25")
	assert.Contains(t, out, "Configuration valid")
}

func TestDoValidate_NoConfigFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("", &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "Configuration valid")
}

func TestDoValidate_NonBareTargetKey(t *testing.T) {
	cfgPath := writeConfig(t, `
targets:
  "https://shop.example.com/":
    max_pages: 5
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "use 'shop.example.com'")
}

func TestDoValidate_InvalidTargetKey(t *testing.T) {
	cfgPath := writeConfig(t, `
targets:
  "bad domain":
    max_pages: 5
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "ERROR")
	assert.Contains(t, stderr.String(), "whitespace")
}

func TestDoValidate_BadBlockedPattern(t *testing.T) {
	cfgPath := writeConfig(t, `
blocked_path_patterns:
  - "["
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "ERROR")
}

func TestDoValidate_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestDoReport(t *testing.T) {
	store := newTestStore(t)

	completed := time.Date(2026, 3, 10, 14, 5, 0, 0, time.UTC)
	job := models.CrawlJob{
		ID:           "job-1",
		Domain:       "example.com",
		MaxPages:     10,
		Status:       models.JobStatusCompleted,
		PagesCrawled: 2,
		PagesTotal:   10,
		StartedAt:    completed.Add(-time.Minute),
		CompletedAt:  &completed,
	}
	require.NoError(t, store.SaveJob(job))
	require.NoError(t, store.SavePageRecords(job.ID, []models.PageRecord{
		{
			ID:         "pr-1",
			CrawlJobID: job.ID,
			PageAnalysis: models.PageAnalysis{
				URL:        "https://example.com/",
				StatusCode: 200,
				Title:      "Home",
				SEOScore:   80,
			},
		},
	}))
	require.NoError(t, store.SaveRecommendations(job.ID, []models.Recommendation{
		{
			ID:                   "rec-1",
			CrawlJobID:           job.ID,
			Type:                 models.RecTypeOnPage,
			Title:                "Add a meta description",
			Description:          "Pages need meta descriptions.",
			Priority:             models.PriorityHigh,
			ImplementationStatus: models.ImplementationPending,
		},
	}))

	reportDir := filepath.Join(t.TempDir(), "reports")
	var stdout, stderr bytes.Buffer
	exitCode := doReport(store, reportDir, job.ID, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "Report written to")

	path := filepath.Join(reportDir, "example.com_job-1.md")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "SEO Audit Report")
	assert.Contains(t, string(content), "example.com")
	assert.Contains(t, string(content), "Add a meta description")
}

func TestDoReport_UnknownJob(t *testing.T) {
	store := newTestStore(t)

	var stdout, stderr bytes.Buffer
	exitCode := doReport(store, t.TempDir(), "missing-job", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "not found")
}

func TestDoListJobs(t *testing.T) {
	store := newTestStore(t)

	older := models.CrawlJob{
		ID:        "job-old",
		Domain:    "example.com",
		MaxPages:  10,
		Status:    models.JobStatusCompleted,
		StartedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	newer := models.CrawlJob{
		ID:           "job-new",
		Domain:       "blog.example.com",
		MaxPages:     10,
		Status:       models.JobStatusFailed,
		ErrorMessage: "audit timed out",
		StartedAt:    time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveJob(older))
	require.NoError(t, store.SaveJob(newer))

	var stdout, stderr bytes.Buffer
	exitCode := doListJobs(store, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	out := stdout.String()
	assert.Contains(t, out, "job-old")
	assert.Contains(t, out, "job-new")
	assert.Contains(t, out, "Domain: blog.example.com")
	assert.Contains(t, out, "failed (audit timed out)")
	assert.Less(t, strings.Index(out, "job-new"), strings.Index(out, "job-old"),
		"jobs should list newest first")
}

func TestDoListJobs_Empty(t *testing.T) {
	store := newTestStore(t)

	var stdout, stderr bytes.Buffer
	exitCode := doListJobs(store, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "No audit jobs recorded.")
}

func TestSplitDomains(t *testing.T) {
	tests := []struct {
		name       string
		domain     string
		domainList string
		want       []string
	}{
		{"both empty", "", "", nil},
		{"single domain", "example.com", "", []string{"example.com"}},
		{"list with spaces", "", "a.com, b.com ,", []string{"a.com", "b.com"}},
		{"list wins over single", "ignored.com", "a.com", []string{"a.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitDomains(tt.domain, tt.domainList))
		})
	}
}

func TestTargetKeys(t *testing.T) {
	cfg := &config.AppConfig{
		Targets: map[string]config.TargetConfig{
			"c.example.com": {},
			"a.example.com": {},
			"b.example.com": {},
		},
	}

	assert.Equal(t, []string{"a.example.com", "b.example.com", "c.example.com"}, targetKeys(cfg))
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	assert.Contains(t, out, "audit")
	assert.Contains(t, out, "report")
	assert.Contains(t, out, "list-jobs")
	assert.Contains(t, out, "watch")
	assert.Contains(t, out, "validate")
	assert.Contains(t, out, "version")
}
