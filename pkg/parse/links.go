package parse

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns the unique normalized URL of every <a href> in the
// document, resolved against base, preserving document order. Fragment-only,
// javascript:, mailto: and tel: hrefs are skipped, as is anything that fails
// to resolve. Malformed HTML never errors; the worst case is an empty slice.
func ExtractLinks(html string, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, element *goquery.Selection) {
		href, _ := element.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lowered := strings.ToLower(href)
		if strings.HasPrefix(lowered, "javascript:") ||
			strings.HasPrefix(lowered, "mailto:") ||
			strings.HasPrefix(lowered, "tel:") {
			return
		}

		linkURL, parseErr := base.Parse(href)
		if parseErr != nil {
			return // Skip unparseable hrefs
		}

		normalized := NormalizeURL(linkURL)
		if normalized == "" {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})

	return links
}
