// Package analyze inspects fetched pages and produces per-page SEO findings.
//
// Analyze is pure: it reads only the FetchResult it is given, so the same
// input always yields the same PageAnalysis. Length checks count runes, not
// bytes, so multibyte titles are not penalized for their encoding.
package analyze

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/devseo/siteaudit/pkg/models"
)

// wordPattern tokenizes visible text for the word count. Underscore counts
// as a word character, matching the usual \w class.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// essentialOGTags are the Open Graph properties a shareable page should carry.
var essentialOGTags = []string{"og:title", "og:description", "og:image"}

// securityHeaderNames are the response headers checked on HTTPS pages.
var securityHeaderNames = []string{
	"x-frame-options",
	"x-content-type-options",
	"strict-transport-security",
	"content-security-policy",
}

// Analyze runs every SEO check against one fetched page and returns the full
// snapshot, score included. Unparseable HTML is itself a finding: the result
// carries a single parse_error issue and zero-value extraction, and is still
// scored.
func Analyze(fr models.FetchResult) models.PageAnalysis {
	pageURL := fr.FinalURL
	if pageURL == "" {
		pageURL = fr.RequestedURL
	}

	a := models.PageAnalysis{
		URL:        pageURL,
		StatusCode: fr.StatusCode,
		LoadTimeMs: fr.LoadTimeMs(),
		HasSSL:     strings.HasPrefix(pageURL, "https://"),
		Issues:     []models.Issue{},
	}

	if !a.HasSSL {
		addIssue(&a, "no_ssl", models.SeverityCritical,
			"Page does not use HTTPS",
			"Enable HTTPS/SSL for better security and SEO")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fr.Body))
	if err != nil {
		addIssue(&a, "parse_error", models.SeverityCritical,
			fmt.Sprintf("Failed to parse HTML: %v", err), "")
		a.SEOScore = Score(a.Issues, a)
		return a
	}

	analyzeTitle(doc, &a)
	analyzeMetaDescription(doc, &a)
	analyzeHeadings(doc, &a)
	analyzeContent(doc, &a)
	analyzeMobile(doc, &a)
	analyzeImages(doc, &a)
	analyzeCanonical(doc, &a)
	analyzeOGTags(doc, &a)
	analyzeTwitterTags(doc, &a)
	analyzeStructuredData(doc, &a)
	analyzeRobotsMeta(doc, &a)
	analyzeLinks(doc, &a)
	analyzeSecurityHeaders(fr.Headers, &a)
	analyzeFavicon(doc, &a)

	a.SEOScore = Score(a.Issues, a)
	return a
}

func addIssue(a *models.PageAnalysis, issueType string, severity models.Severity, message, suggestion string) {
	a.Issues = append(a.Issues, models.Issue{
		Type:       issueType,
		Severity:   severity,
		Message:    message,
		Suggestion: suggestion,
	})
}

// analyzeTitle treats a <title> whose raw text is empty as missing. A
// whitespace-only title is present but zero characters long, which trips the
// too-short check instead.
func analyzeTitle(doc *goquery.Document, a *models.PageAnalysis) {
	titleSel := doc.Find("title").First()
	if titleSel.Length() == 0 || titleSel.Text() == "" {
		addIssue(a, "missing_title", models.SeverityCritical,
			"Page is missing a title tag",
			"Add a descriptive title tag between 50-60 characters")
		return
	}

	a.Title = strings.TrimSpace(titleSel.Text())

	switch n := utf8.RuneCountInString(a.Title); {
	case n < 30:
		addIssue(a, "title_too_short", models.SeverityWarning,
			fmt.Sprintf("Page title is only %d characters long", n),
			"Aim for 50-60 characters for optimal SEO")
	case n > 60:
		addIssue(a, "title_too_long", models.SeverityWarning,
			fmt.Sprintf("Page title is %d characters long (may be truncated)", n),
			"Keep title under 60 characters to avoid truncation in search results")
	}
}

func analyzeMetaDescription(doc *goquery.Document, a *models.PageAnalysis) {
	content, ok := doc.Find(`meta[name="description"]`).First().Attr("content")
	if !ok || content == "" {
		addIssue(a, "missing_meta_description", models.SeverityWarning,
			"Page is missing a meta description",
			"Add a meta description between 150-160 characters")
		return
	}

	a.MetaDescription = strings.TrimSpace(content)

	switch n := utf8.RuneCountInString(a.MetaDescription); {
	case n < 70:
		addIssue(a, "meta_description_too_short", models.SeverityInfo,
			fmt.Sprintf("Meta description is only %d characters long", n),
			"Aim for 150-160 characters for optimal display in search results")
	case n > 160:
		addIssue(a, "meta_description_too_long", models.SeverityInfo,
			fmt.Sprintf("Meta description is %d characters long", n),
			"Keep meta description under 160 characters")
	}
}

func analyzeHeadings(doc *goquery.Document, a *models.PageAnalysis) {
	a.H1Tags = headingTexts(doc, "h1")

	if len(a.H1Tags) == 0 {
		addIssue(a, "missing_h1", models.SeverityCritical,
			"Page is missing an H1 heading",
			"Add a single H1 heading that describes the page content")
	} else if len(a.H1Tags) > 1 {
		addIssue(a, "multiple_h1", models.SeverityWarning,
			fmt.Sprintf("Page has %d H1 headings", len(a.H1Tags)),
			"Use only one H1 heading per page for better SEO")
	}

	a.HasH2 = len(headingTexts(doc, "h2")) > 0
	hasH3 := len(headingTexts(doc, "h3")) > 0

	if hasH3 && !a.HasH2 {
		addIssue(a, "heading_hierarchy", models.SeverityInfo,
			"Page uses H3 headings but has no H2 headings",
			"Use proper heading hierarchy (H1 > H2 > H3) for better structure")
	}
}

// headingTexts returns the trimmed text of every non-empty heading of the
// given level, in document order.
func headingTexts(doc *goquery.Document, tag string) []string {
	var texts []string
	doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			texts = append(texts, text)
		}
	})
	return texts
}

// analyzeContent counts word tokens in the visible text. Scripts, styles and
// noscript blocks are pruned from a clone so the document stays intact for
// the structured data and link checks that follow.
func analyzeContent(doc *goquery.Document, a *models.PageAnalysis) {
	visible := doc.Selection.Clone()
	visible.Find("script,style,noscript").Remove()
	a.WordCount = len(wordPattern.FindAllString(visible.Text(), -1))

	if a.WordCount < 300 {
		addIssue(a, "thin_content", models.SeverityWarning,
			fmt.Sprintf("Page has only %d words", a.WordCount),
			"Add more quality content (aim for at least 300 words)")
	}
}

func analyzeMobile(doc *goquery.Document, a *models.PageAnalysis) {
	a.MobileFriendly = doc.Find(`meta[name="viewport"]`).Length() > 0
	if !a.MobileFriendly {
		addIssue(a, "no_viewport_meta", models.SeverityCritical,
			"Page is missing viewport meta tag for mobile devices",
			`Add <meta name="viewport" content="width=device-width, initial-scale=1">`)
	}
}

// analyzeImages flags images whose alt attribute is absent or empty.
func analyzeImages(doc *goquery.Document, a *models.PageAnalysis) {
	missing := 0
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); !ok || alt == "" {
			missing++
		}
	})
	if missing > 0 {
		addIssue(a, "missing_alt_text", models.SeverityWarning,
			fmt.Sprintf("%d image(s) missing alt text", missing),
			"Add descriptive alt text to all images for accessibility and SEO")
	}
}

func analyzeCanonical(doc *goquery.Document, a *models.PageAnalysis) {
	href, ok := doc.Find(`link[rel~="canonical"]`).First().Attr("href")
	if ok && href != "" {
		a.CanonicalURL = href
		return
	}
	addIssue(a, "missing_canonical", models.SeverityInfo,
		"Page is missing a canonical tag",
		"Add a canonical tag to prevent duplicate content issues")
}

func analyzeOGTags(doc *goquery.Document, a *models.PageAnalysis) {
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		property, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if property != "" && content != "" {
			if a.OGTags == nil {
				a.OGTags = make(map[string]string)
			}
			a.OGTags[property] = content
		}
	})

	var missing []string
	for _, tag := range essentialOGTags {
		if _, ok := a.OGTags[tag]; !ok {
			missing = append(missing, tag)
		}
	}
	if len(missing) > 0 {
		addIssue(a, "missing_og_tags", models.SeverityInfo,
			"Missing Open Graph tags: "+strings.Join(missing, ", "),
			"Add OG tags to improve social media sharing appearance")
	}
}

// analyzeTwitterTags collects twitter: card metadata. Their absence is not an
// issue on its own.
func analyzeTwitterTags(doc *goquery.Document, a *models.PageAnalysis) {
	doc.Find(`meta[name^="twitter:"]`).Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		if name != "" && content != "" {
			if a.TwitterTags == nil {
				a.TwitterTags = make(map[string]string)
			}
			a.TwitterTags[name] = content
		}
	})
}

// analyzeStructuredData collects schema.org types from JSON-LD scripts and
// microdata itemtype attributes. JSON-LD duplicates are kept; microdata types
// are deduplicated against everything already found.
func analyzeStructuredData(doc *goquery.Document, a *models.PageAnalysis) {
	var types []string

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return
		}
		switch v := payload.(type) {
		case map[string]any:
			types = append(types, jsonLDTypes(v)...)
		case []any:
			for _, item := range v {
				if obj, ok := item.(map[string]any); ok {
					types = append(types, jsonLDTypes(obj)...)
				}
			}
		}
	})

	doc.Find("[itemtype]").Each(func(_ int, s *goquery.Selection) {
		itemtype, _ := s.Attr("itemtype")
		if !strings.Contains(itemtype, "schema.org/") {
			return
		}
		parts := strings.Split(itemtype, "schema.org/")
		schemaType := parts[len(parts)-1]
		if schemaType != "" && !slices.Contains(types, schemaType) {
			types = append(types, schemaType)
		}
	})

	if len(types) == 0 {
		addIssue(a, "no_structured_data", models.SeverityInfo,
			"No structured data (JSON-LD/Microdata) found",
			"Add schema.org markup to help search engines understand your content")
		return
	}
	a.SchemaMarkup = models.StructuredData{Types: types, Count: len(types)}
}

// jsonLDTypes reads the @type of one JSON-LD object, which may be a single
// string or a list of strings.
func jsonLDTypes(obj map[string]any) []string {
	switch t := obj["@type"].(type) {
	case string:
		if t != "" {
			return []string{t}
		}
	case []any:
		var out []string
		for _, v := range t {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// analyzeRobotsMeta reads the first robots meta tag, matching the name
// case-insensitively. The directive content is stored lowercased.
func analyzeRobotsMeta(doc *goquery.Document, a *models.PageAnalysis) {
	var content string
	var found bool
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if name, _ := s.Attr("name"); strings.EqualFold(name, "robots") {
			content, _ = s.Attr("content")
			found = true
			return false
		}
		return true
	})
	if !found || content == "" {
		return
	}

	a.RobotsDirective = strings.ToLower(content)
	if strings.Contains(a.RobotsDirective, "noindex") {
		addIssue(a, "robots_noindex", models.SeverityCritical,
			"Page has robots meta tag set to noindex",
			"Remove noindex directive if you want this page to appear in search results")
	}
}

// analyzeLinks counts internal and external anchors. A link is internal when
// its href is relative or its host, lowercased and www-stripped, equals the
// page host. Unparseable hrefs count as internal.
func analyzeLinks(doc *goquery.Document, a *models.PageAnalysis) {
	pageHost := ""
	if parsed, err := url.Parse(a.URL); err == nil {
		pageHost = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	}

	internal, external := 0, 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		lower := strings.ToLower(href)
		switch {
		case strings.HasPrefix(lower, "#"),
			strings.HasPrefix(lower, "javascript:"),
			strings.HasPrefix(lower, "mailto:"),
			strings.HasPrefix(lower, "tel:"):
			return
		}
		if strings.HasPrefix(href, "/") || strings.HasPrefix(href, "./") || strings.HasPrefix(href, "../") {
			internal++
			return
		}

		linked, err := url.Parse(href)
		if err != nil {
			internal++
			return
		}
		linkHost := strings.TrimPrefix(strings.ToLower(linked.Host), "www.")
		if linkHost == "" || linkHost == pageHost {
			internal++
		} else {
			external++
		}
	})

	a.InternalLinks = internal
	a.ExternalLinks = external

	if internal < 2 {
		addIssue(a, "low_internal_links", models.SeverityInfo,
			fmt.Sprintf("Page has only %d internal link(s)", internal),
			"Add more internal links to improve site navigation and distribute link equity")
	}
}

// analyzeSecurityHeaders checks the response headers of HTTPS pages. HTTP
// pages already carry the no_ssl finding, so they are left alone.
func analyzeSecurityHeaders(headers http.Header, a *models.PageAnalysis) {
	if !a.HasSSL {
		return
	}

	checks := make(map[string]bool, len(securityHeaderNames))
	var missing []string
	for _, name := range securityHeaderNames {
		present := headers.Get(name) != ""
		checks[name] = present
		if !present {
			missing = append(missing, name)
		}
	}
	a.SecurityHeaders = checks

	if len(missing) > 0 {
		addIssue(a, "missing_security_headers", models.SeverityInfo,
			"Missing security headers: "+strings.Join(missing, ", "),
			"Add security headers to improve trust signals and site security")
	}
}

// analyzeFavicon accepts any link whose rel contains "icon", which covers
// icon, shortcut icon, apple-touch-icon and mask-icon variants.
func analyzeFavicon(doc *goquery.Document, a *models.PageAnalysis) {
	found := false
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if rel, _ := s.Attr("rel"); strings.Contains(rel, "icon") {
			found = true
			return false
		}
		return true
	})
	if !found {
		addIssue(a, "missing_favicon", models.SeverityInfo,
			"No favicon found",
			"Add a favicon to improve brand recognition in browser tabs")
	}
}
