// Package recommend turns analyzed pages into actionable SEO advice.
//
// The engine is rule-based and deterministic: a fixed ladder of per-page
// checks followed by site-wide aggregate checks. Rule order is stable so
// stored recommendation lists stay comparable across runs.
package recommend

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/devseo/siteaudit/pkg/models"
)

// Generate produces the full recommendation set for one finished crawl:
// first the per-page rules over every record in crawl order, then the
// site-wide aggregates. Page-scoped entries reference their page record;
// site-wide entries carry no page reference. Everything starts pending.
func Generate(jobID string, pages []models.PageRecord) []models.Recommendation {
	var recs []models.Recommendation

	for _, page := range pages {
		for _, r := range pageRecommendations(page.PageAnalysis) {
			r.ID = uuid.NewString()
			r.CrawlJobID = jobID
			r.PageRecordID = page.ID
			r.ImplementationStatus = models.ImplementationPending
			recs = append(recs, r)
		}
	}

	for _, r := range siteRecommendations(pages) {
		r.ID = uuid.NewString()
		r.CrawlJobID = jobID
		r.ImplementationStatus = models.ImplementationPending
		recs = append(recs, r)
	}

	return recs
}

func pageRecommendations(a models.PageAnalysis) []models.Recommendation {
	var recs []models.Recommendation
	recs = append(recs, titleRecs(a)...)
	recs = append(recs, metaDescriptionRecs(a)...)
	recs = append(recs, headingRecs(a)...)
	recs = append(recs, contentRecs(a)...)
	recs = append(recs, technicalRecs(a)...)
	recs = append(recs, performanceRecs(a)...)
	recs = append(recs, imageRecs(a)...)
	recs = append(recs, structuredDataRecs(a)...)
	recs = append(recs, socialRecs(a)...)
	recs = append(recs, linkRecs(a)...)
	return recs
}

func rec(recType models.RecommendationType, title, description string, priority models.Priority) models.Recommendation {
	return models.Recommendation{
		Type:        recType,
		Title:       title,
		Description: description,
		Priority:    priority,
	}
}

func hasIssue(a models.PageAnalysis, issueType string) bool {
	for _, issue := range a.Issues {
		if issue.Type == issueType {
			return true
		}
	}
	return false
}

func titleRecs(a models.PageAnalysis) []models.Recommendation {
	if a.Title == "" {
		return []models.Recommendation{rec(models.RecTypeOnPage,
			"Missing Title Tag",
			"Add a descriptive title tag (50-60 characters). The title is crucial for SEO and appears in search results.",
			models.PriorityHigh)}
	}
	switch n := utf8.RuneCountInString(a.Title); {
	case n < 30:
		return []models.Recommendation{rec(models.RecTypeOnPage,
			"Title Too Short",
			fmt.Sprintf("Current title is %d characters. Aim for 50-60 characters to fully utilize search result space.", n),
			models.PriorityMedium)}
	case n > 60:
		return []models.Recommendation{rec(models.RecTypeOnPage,
			"Title Too Long",
			fmt.Sprintf("Current title is %d characters and will be truncated in search results. Keep it under 60 characters.", n),
			models.PriorityMedium)}
	}
	return nil
}

func metaDescriptionRecs(a models.PageAnalysis) []models.Recommendation {
	if a.MetaDescription == "" {
		return []models.Recommendation{rec(models.RecTypeOnPage,
			"Missing Meta Description",
			"Add a compelling meta description (150-160 characters). This text appears in search results and influences click-through rates.",
			models.PriorityHigh)}
	}
	switch n := utf8.RuneCountInString(a.MetaDescription); {
	case n < 120:
		return []models.Recommendation{rec(models.RecTypeOnPage,
			"Meta Description Too Short",
			fmt.Sprintf("Current meta description is %d characters. Aim for 150-160 characters to maximize impact.", n),
			models.PriorityMedium)}
	case n > 160:
		return []models.Recommendation{rec(models.RecTypeOnPage,
			"Meta Description Too Long",
			fmt.Sprintf("Current meta description is %d characters. Keep it under 160 characters to avoid truncation.", n),
			models.PriorityLow)}
	}
	return nil
}

// headingRecs checks the H1 count, the length of the first H1, and the
// hierarchy finding raised by the analyzer.
func headingRecs(a models.PageAnalysis) []models.Recommendation {
	var recs []models.Recommendation

	if len(a.H1Tags) == 0 {
		recs = append(recs, rec(models.RecTypeOnPage, "Missing H1 Tag",
			"Add an H1 heading that clearly describes the page content. Every page should have exactly one H1.",
			models.PriorityHigh))
	} else if len(a.H1Tags) > 1 {
		recs = append(recs, rec(models.RecTypeOnPage, "Multiple H1 Tags",
			fmt.Sprintf("Found %d H1 tags. Use only one H1 per page for better SEO structure.", len(a.H1Tags)),
			models.PriorityMedium))
	}

	if len(a.H1Tags) > 0 && utf8.RuneCountInString(a.H1Tags[0]) < 20 {
		recs = append(recs, rec(models.RecTypeOnPage, "H1 Too Short",
			"H1 heading should be descriptive (at least 20 characters) to effectively communicate page topic.",
			models.PriorityLow))
	}

	if hasIssue(a, "heading_hierarchy") {
		recs = append(recs, rec(models.RecTypeOnPage, "Improper Heading Hierarchy",
			"Page uses H3 headings without H2 headings. Maintain proper hierarchy: H1 → H2 → H3 for better content structure.",
			models.PriorityLow))
	}

	return recs
}

func contentRecs(a models.PageAnalysis) []models.Recommendation {
	switch {
	case a.WordCount == 0:
		return []models.Recommendation{rec(models.RecTypeContentQuality,
			"No Text Content",
			"Page has no text content. Add substantial, valuable content (at least 300 words) for better SEO.",
			models.PriorityHigh)}
	case a.WordCount < 300:
		return []models.Recommendation{rec(models.RecTypeContentQuality,
			"Thin Content",
			fmt.Sprintf("Page has only %d words. Aim for at least 300-500 words of quality content for better rankings.", a.WordCount),
			models.PriorityMedium)}
	case a.WordCount < 500:
		return []models.Recommendation{rec(models.RecTypeContentQuality,
			"Could Use More Content",
			fmt.Sprintf("Page has %d words. Consider expanding to 500+ words to provide more value and improve SEO.", a.WordCount),
			models.PriorityLow)}
	}
	return nil
}

func technicalRecs(a models.PageAnalysis) []models.Recommendation {
	var recs []models.Recommendation

	if !a.HasSSL {
		recs = append(recs, rec(models.RecTypeTechnicalSEO, "Not Using HTTPS",
			"Enable HTTPS/SSL certificate. Google prioritizes secure sites and browsers show warnings for non-HTTPS sites.",
			models.PriorityHigh))
	}
	if !a.MobileFriendly {
		recs = append(recs, rec(models.RecTypeTechnicalSEO, "Not Mobile-Friendly",
			"Page is not mobile-friendly. With mobile-first indexing, responsive design is critical for SEO.",
			models.PriorityHigh))
	}
	if a.CanonicalURL == "" {
		recs = append(recs, rec(models.RecTypeTechnicalSEO, "Missing Canonical Tag",
			"Add a canonical tag to prevent duplicate content issues and consolidate SEO signals.",
			models.PriorityMedium))
	}

	// StatusCode 0 means the fetch never completed; neither branch applies.
	switch {
	case a.StatusCode >= 400:
		recs = append(recs, rec(models.RecTypeTechnicalSEO,
			fmt.Sprintf("HTTP Error: %d", a.StatusCode),
			fmt.Sprintf("Page returns %d error. Fix server/page errors to ensure search engines can access content.", a.StatusCode),
			models.PriorityHigh))
	case a.StatusCode >= 300:
		recs = append(recs, rec(models.RecTypeTechnicalSEO, "Redirect Chain Detected",
			fmt.Sprintf("Page returns %d redirect. Minimize redirects for better performance and SEO.", a.StatusCode),
			models.PriorityLow))
	}

	if hasIssue(a, "robots_noindex") {
		recs = append(recs, rec(models.RecTypeTechnicalSEO, "Page Blocked from Indexing",
			"This page has a robots meta tag set to noindex. Remove it if you want this page to appear in search results.",
			models.PriorityHigh))
	}

	return recs
}

func performanceRecs(a models.PageAnalysis) []models.Recommendation {
	switch {
	case a.LoadTimeMs > 3000:
		return []models.Recommendation{rec(models.RecTypePerformance,
			"Slow Page Load Time",
			fmt.Sprintf("Page loads in %dms. Aim for under 2 seconds. Optimize images, minify CSS/JS, and enable caching.", a.LoadTimeMs),
			models.PriorityHigh)}
	case a.LoadTimeMs > 2000:
		return []models.Recommendation{rec(models.RecTypePerformance,
			"Page Load Could Be Faster",
			fmt.Sprintf("Page loads in %dms. Consider optimization to get under 2 seconds for better user experience and SEO.", a.LoadTimeMs),
			models.PriorityMedium)}
	}
	return nil
}

func imageRecs(a models.PageAnalysis) []models.Recommendation {
	if !hasIssue(a, "missing_alt_text") {
		return nil
	}
	return []models.Recommendation{rec(models.RecTypeOnPage,
		"Images Missing Alt Text",
		"Add descriptive alt text to all images for accessibility and SEO. Alt text helps search engines understand image content.",
		models.PriorityMedium)}
}

func structuredDataRecs(a models.PageAnalysis) []models.Recommendation {
	if !hasIssue(a, "no_structured_data") {
		return nil
	}
	return []models.Recommendation{rec(models.RecTypeTechnicalSEO,
		"Add Structured Data Markup",
		"Implement schema.org JSON-LD markup (e.g., Article, Product, FAQ, Organization) to help Google display rich results and improve click-through rates.",
		models.PriorityMedium)}
}

func socialRecs(a models.PageAnalysis) []models.Recommendation {
	if !hasIssue(a, "missing_og_tags") {
		return nil
	}
	return []models.Recommendation{rec(models.RecTypeOnPage,
		"Incomplete Open Graph Tags",
		"Add missing Open Graph tags (og:title, og:description, og:image) to control how your pages appear when shared on social media.",
		models.PriorityLow)}
}

func linkRecs(a models.PageAnalysis) []models.Recommendation {
	if !hasIssue(a, "low_internal_links") {
		return nil
	}
	return []models.Recommendation{rec(models.RecTypeOnPage,
		"Improve Internal Linking",
		"This page has very few internal links. Add relevant links to other pages on your site to improve navigation, distribute page authority, and help search engines discover more content.",
		models.PriorityLow)}
}

// siteRecommendations aggregates over every analyzed page. Pages that never
// produced a load time are left out of the speed average.
func siteRecommendations(pages []models.PageRecord) []models.Recommendation {
	if len(pages) == 0 {
		return nil
	}

	total := len(pages)
	var loadSum int64
	loadSamples := 0
	httpsPages := 0
	mobilePages := 0
	thinPages := 0
	missingMeta := 0
	withSchema := 0
	missingCanonical := 0

	for _, p := range pages {
		if p.LoadTimeMs > 0 {
			loadSum += p.LoadTimeMs
			loadSamples++
		}
		if p.HasSSL {
			httpsPages++
		}
		if p.MobileFriendly {
			mobilePages++
		}
		if p.WordCount < 300 {
			thinPages++
		}
		if p.MetaDescription == "" {
			missingMeta++
		}
		if len(p.SchemaMarkup.Types) > 0 {
			withSchema++
		}
		if p.CanonicalURL == "" {
			missingCanonical++
		}
	}

	var recs []models.Recommendation

	if loadSamples > 0 {
		if avg := float64(loadSum) / float64(loadSamples); avg > 2000 {
			recs = append(recs, rec(models.RecTypePerformance, "Site-Wide Performance Issue",
				fmt.Sprintf("Average page load time is %dms. Implement global optimizations like CDN, image compression, and caching.", int64(avg)),
				models.PriorityHigh))
		}
	}
	if httpsPages < total {
		recs = append(recs, rec(models.RecTypeTechnicalSEO, "Incomplete HTTPS Migration",
			fmt.Sprintf("%d pages still use HTTP. Complete HTTPS migration for all pages.", total-httpsPages),
			models.PriorityHigh))
	}
	if float64(mobilePages) < float64(total)*0.9 {
		recs = append(recs, rec(models.RecTypeTechnicalSEO, "Mobile-Friendliness Issues",
			fmt.Sprintf("Only %d/%d pages are mobile-friendly. Implement responsive design across the entire site.", mobilePages, total),
			models.PriorityHigh))
	}
	if float64(thinPages) > float64(total)*0.3 {
		recs = append(recs, rec(models.RecTypeContentQuality, "Site-Wide Thin Content",
			fmt.Sprintf("%d/%d pages have thin content (<300 words). Focus on adding substantial, valuable content.", thinPages, total),
			models.PriorityMedium))
	}
	if float64(missingMeta) > float64(total)*0.2 {
		recs = append(recs, rec(models.RecTypeOnPage, "Many Pages Missing Meta Descriptions",
			fmt.Sprintf("%d/%d pages lack meta descriptions. Add compelling descriptions to improve click-through rates.", missingMeta, total),
			models.PriorityMedium))
	}
	if float64(withSchema) < float64(total)*0.3 {
		recs = append(recs, rec(models.RecTypeTechnicalSEO, "Low Structured Data Adoption",
			fmt.Sprintf("Only %d/%d pages use structured data. Implement schema.org markup to gain rich snippets in search results.", withSchema, total),
			models.PriorityMedium))
	}
	if float64(missingCanonical) > float64(total)*0.5 {
		recs = append(recs, rec(models.RecTypeTechnicalSEO, "Missing Canonical Tags Site-Wide",
			fmt.Sprintf("%d/%d pages lack canonical tags. Add canonical tags to prevent duplicate content issues.", missingCanonical, total),
			models.PriorityMedium))
	}

	return recs
}
