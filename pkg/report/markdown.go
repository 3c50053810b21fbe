// Package report renders finished audits as markdown files.
//
// Reports are derived entirely from the persisted job, page and
// recommendation records, so a report can be regenerated at any time
// without re-crawling the site.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/devseo/siteaudit/pkg/models"
	"github.com/devseo/siteaudit/pkg/utils"
)

const timeFormat = "2006-01-02 15:04:05 MST"

const topIssueLimit = 10 // Most widespread issue types shown in the summary

// Write renders the audit report for job and writes it into dir as
// <domain>_<jobID>.md, creating dir if it does not exist yet. It returns
// the path of the written file.
func Write(dir string, job models.CrawlJob, records []models.PageRecord, recs []models.Recommendation) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("cannot create report directory %s: %w", dir, err)
	}

	filename := fmt.Sprintf("%s_%s.md", utils.SanitizeFilename(job.Domain), utils.SanitizeFilename(job.ID))
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("cannot create report file %s: %w", path, err)
	}

	if err := Render(f, job, records, recs); err != nil {
		f.Close()
		return "", fmt.Errorf("failed writing report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed closing report %s: %w", path, err)
	}
	return path, nil
}

// Render writes the markdown report for job to w. Pages and recommendations
// are rendered in the order the store returns them, which is crawl order for
// pages and generation order for recommendations.
func Render(w io.Writer, job models.CrawlJob, records []models.PageRecord, recs []models.Recommendation) error {
	md := markdown.NewMarkdown(w)

	md.H1("SEO Audit Report")
	md.PlainText("")

	writeSummary(md, job, records)
	writePageScores(md, records)
	writeTopIssues(md, records)
	writeRecommendations(md, recs)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by siteaudit from stored job %s*", job.ID)

	return md.Build()
}

func writeSummary(md *markdown.Markdown, job models.CrawlJob, records []models.PageRecord) {
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Domain", "`" + job.Domain + "`"},
			{"Job ID", "`" + job.ID + "`"},
			{"Status", statusText(job)},
			{"Started", job.StartedAt.Format(timeFormat)},
			{"Completed", completedText(job)},
			{"Pages Crawled", strconv.Itoa(job.PagesCrawled)},
			{"Pages Analyzed", strconv.Itoa(len(records))},
			{"Average SEO Score", averageText(records)},
		},
	})
	md.PlainText("")
}

func statusText(job models.CrawlJob) string {
	if job.ErrorMessage != "" {
		return fmt.Sprintf("%s (%s)", job.Status, job.ErrorMessage)
	}
	return job.Status.String()
}

func completedText(job models.CrawlJob) string {
	if job.CompletedAt == nil {
		return "-"
	}
	return job.CompletedAt.Format(timeFormat)
}

func averageText(records []models.PageRecord) string {
	if len(records) == 0 {
		return "-"
	}
	return fmt.Sprintf("%d / 100", averageScore(records))
}

// averageScore is the mean SEO score across records, rounded to the
// nearest point.
func averageScore(records []models.PageRecord) int {
	if len(records) == 0 {
		return 0
	}
	sum := 0
	for _, r := range records {
		sum += r.SEOScore
	}
	return (sum + len(records)/2) / len(records)
}

func writePageScores(md *markdown.Markdown, records []models.PageRecord) {
	md.H2("Page Scores")
	md.PlainText("")

	if len(records) == 0 {
		md.PlainText("No pages were analyzed for this job.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			truncate(r.URL, 60),
			strconv.Itoa(r.StatusCode),
			strconv.Itoa(r.SEOScore),
			strconv.Itoa(len(r.Issues)),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Page", "HTTP Status", "SEO Score", "Issues"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeTopIssues lists the issue types affecting the most pages.
func writeTopIssues(md *markdown.Markdown, records []models.PageRecord) {
	md.H2("Top Issues")
	md.PlainText("")

	counts := countIssues(records)
	if len(counts) == 0 {
		md.PlainText("No issues detected on the analyzed pages.")
		md.PlainText("")
		return
	}

	limit := min(topIssueLimit, len(counts))
	rows := make([][]string, 0, limit)
	for _, c := range counts[:limit] {
		rows = append(rows, []string{
			"`" + c.issueType + "`",
			c.severity.String(),
			strconv.Itoa(c.pages),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Issue", "Severity", "Pages Affected"},
		Rows:   rows,
	})
	md.PlainText("")
}

type issueCount struct {
	issueType string
	severity  models.Severity
	pages     int
}

// countIssues tallies how many pages raise each issue type, most widespread
// first. Ties break alphabetically by type so the table is stable across
// regenerations.
func countIssues(records []models.PageRecord) []issueCount {
	byType := make(map[string]*issueCount)
	for _, r := range records {
		seen := make(map[string]bool, len(r.Issues))
		for _, issue := range r.Issues {
			if seen[issue.Type] {
				continue // A page counts once per issue type
			}
			seen[issue.Type] = true
			c, ok := byType[issue.Type]
			if !ok {
				c = &issueCount{issueType: issue.Type, severity: issue.Severity}
				byType[issue.Type] = c
			}
			c.pages++
		}
	}

	counts := make([]issueCount, 0, len(byType))
	for _, c := range byType {
		counts = append(counts, *c)
	}
	slices.SortFunc(counts, func(a, b issueCount) int {
		if a.pages != b.pages {
			return b.pages - a.pages
		}
		return strings.Compare(a.issueType, b.issueType)
	})
	return counts
}

// writeRecommendations groups recommendations by priority, highest first.
func writeRecommendations(md *markdown.Markdown, recs []models.Recommendation) {
	md.H2("Recommendations")
	md.PlainText("")

	if len(recs) == 0 {
		md.PlainText("No recommendations for this site.")
		md.PlainText("")
		return
	}

	groups := []struct {
		priority models.Priority
		header   string
	}{
		{models.PriorityHigh, "High Priority"},
		{models.PriorityMedium, "Medium Priority"},
		{models.PriorityLow, "Low Priority"},
	}

	for _, group := range groups {
		var matched []models.Recommendation
		for _, r := range recs {
			if r.Priority == group.priority {
				matched = append(matched, r)
			}
		}
		if len(matched) == 0 {
			continue
		}

		md.H3(group.header)
		md.PlainText("")
		writeRecommendationTable(md, matched)
	}
}

func writeRecommendationTable(md *markdown.Markdown, recs []models.Recommendation) {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		scope := "site-wide"
		if !r.SiteWide() {
			scope = "page"
		}
		rows[i] = []string{
			truncate(r.Title, 60),
			r.Type.String(),
			scope,
			r.ImplementationStatus.String(),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Recommendation", "Type", "Scope", "Status"},
		Rows:   rows,
	})
	md.PlainText("")

	// The same rule fires on many pages; describe each rule once.
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		if r.Description == "" || seen[r.Title] {
			continue
		}
		seen[r.Title] = true
		md.Details(r.Title, r.Description)
	}
	md.PlainText("")
}

// truncate shortens s to maxLen characters with a trailing ellipsis.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
