package analyze

import (
	"unicode/utf8"

	"github.com/devseo/siteaudit/pkg/models"
)

// Score grades a page from 0 to 100. Every issue deducts by severity (15
// critical, 8 warning, 2 info) and good practices earn small bonuses on top.
// Stored scores and report history depend on these weights staying put.
func Score(issues []models.Issue, a models.PageAnalysis) int {
	score := 100

	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityCritical:
			score -= 15
		case models.SeverityWarning:
			score -= 8
		case models.SeverityInfo:
			score -= 2
		}
	}

	if n := utf8.RuneCountInString(a.Title); a.Title != "" && n >= 50 && n <= 60 {
		score += 3
	}
	if n := utf8.RuneCountInString(a.MetaDescription); a.MetaDescription != "" && n >= 120 && n <= 160 {
		score += 3
	}
	if a.WordCount >= 500 {
		score += 3
	}
	if a.HasH2 {
		score += 2
	}
	if len(a.SchemaMarkup.Types) > 0 {
		score += 3
	}
	if a.OGTags["og:title"] != "" && a.OGTags["og:description"] != "" {
		score += 2
	}
	if a.CanonicalURL != "" {
		score += 2
	}

	return max(0, min(100, score))
}
