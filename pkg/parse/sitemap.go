package parse

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// --- XML Structs for Sitemap Parsing ---

// XMLURL represents a <url> element in a sitemap
type XMLURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLURLSet represents a <urlset> element in a sitemap
type XMLURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []XMLURL `xml:"url"`
}

// XMLSitemap represents a <sitemap> element in a sitemap index file
type XMLSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLSitemapIndex represents a <sitemapindex> element
type XMLSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []XMLSitemap `xml:"sitemap"`
}

// SitemapContent is what one sitemap document yielded: page URLs from a
// <urlset>, child sitemap URLs from a <sitemapindex>. At most one of the
// two slices is populated.
type SitemapContent struct {
	PageURLs []string
	Children []string
}

// Empty reports whether the document yielded nothing usable.
func (c SitemapContent) Empty() bool {
	return len(c.PageURLs) == 0 && len(c.Children) == 0
}

// ParseSitemap extracts URLs from sitemap XML. <urlset> and <sitemapindex>
// roots are recognized in any namespace; anything else (including truncated
// or odd-rooted documents) falls back to a bare <loc> element scan, whose
// hits are treated as page URLs. Parse failures yield empty content, never
// an error.
func ParseSitemap(data []byte) SitemapContent {
	var content SitemapContent

	var urlSet XMLURLSet
	if err := xml.Unmarshal(data, &urlSet); err == nil {
		for _, u := range urlSet.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				content.PageURLs = append(content.PageURLs, loc)
			}
		}
		return content
	}

	var index XMLSitemapIndex
	if err := xml.Unmarshal(data, &index); err == nil {
		for _, child := range index.Sitemaps {
			if loc := strings.TrimSpace(child.Loc); loc != "" {
				content.Children = append(content.Children, loc)
			}
		}
		return content
	}

	content.PageURLs = scanLocElements(data)
	return content
}

// scanLocElements walks the token stream collecting <loc> text regardless
// of nesting or namespace. A decode error ends the scan but keeps whatever
// was already collected, which salvages truncated sitemaps.
func scanLocElements(data []byte) []string {
	var locs []string
	decoder := xml.NewDecoder(bytes.NewReader(data))
	inLoc := false
	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "loc" {
				inLoc = true
				text.Reset()
			}
		case xml.CharData:
			if inLoc {
				text.Write(t)
			}
		case xml.EndElement:
			if inLoc && t.Name.Local == "loc" {
				inLoc = false
				if loc := strings.TrimSpace(text.String()); loc != "" {
					locs = append(locs, loc)
				}
			}
		}
	}
	return locs
}
