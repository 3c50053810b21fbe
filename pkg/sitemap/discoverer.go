package sitemap

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/devseo/siteaudit/pkg/fetch"
	"github.com/devseo/siteaudit/pkg/parse"
)

const (
	// maxCandidates bounds how many sitemap locations are tried before the
	// crawl falls back to the seed URL alone.
	maxCandidates = 3

	// maxIndexDepth bounds recursion through nested sitemap index files.
	maxIndexDepth = 2
)

// Discoverer locates a site's sitemap and extracts page URLs from it to seed
// a crawl. Candidate locations are the robots.txt Sitemap directives (in file
// order) followed by the conventional /sitemap.xml and /sitemap_index.xml
// paths; the first candidate yielding at least one in-scope URL wins. Sitemap
// discovery is best-effort: every failure is logged and the crawl proceeds
// from the seed URL.
type Discoverer struct {
	fetcher    *fetch.Fetcher
	limiter    *fetch.RateLimiter
	politeness *fetch.PolitenessCache
	scope      *parse.Scope
	userAgent  string
	log        *logrus.Entry
}

// NewDiscoverer creates a Discoverer sharing the run's fetcher, rate limiter
// and politeness cache.
func NewDiscoverer(
	fetcher *fetch.Fetcher,
	limiter *fetch.RateLimiter,
	politeness *fetch.PolitenessCache,
	scope *parse.Scope,
	userAgent string,
	log *logrus.Entry,
) *Discoverer {
	return &Discoverer{
		fetcher:    fetcher,
		limiter:    limiter,
		politeness: politeness,
		scope:      scope,
		userAgent:  userAgent,
		log:        log,
	}
}

// Discover returns normalized, in-scope page URLs harvested from the first
// productive sitemap candidate for seed's site, capped at twice maxPages.
// An empty slice means no sitemap was found or none yielded usable URLs.
func (d *Discoverer) Discover(ctx context.Context, seed *url.URL, maxPages int) []string {
	if seed == nil || maxPages <= 0 {
		return nil
	}
	limit := maxPages * 2

	candidates := d.candidates(ctx, seed)
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	for _, candidate := range candidates {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		processed := make(map[string]bool)
		seen := make(map[string]struct{})
		urls := d.collect(ctx, candidate, 0, limit, processed, seen)
		if len(urls) > 0 {
			d.log.Infof("Sitemap %s yielded %d in-scope URLs", candidate, len(urls))
			return urls
		}
		d.log.Debugf("Sitemap candidate %s yielded no URLs", candidate)
	}

	d.log.Info("No usable sitemap found; crawl will expand from the seed URL only")
	return nil
}

// candidates builds the ordered list of sitemap locations to try. robots.txt
// directives come first; the conventional paths are appended unless a
// directive already names them.
func (d *Discoverer) candidates(ctx context.Context, seed *url.URL) []string {
	candidates := d.politeness.Sitemaps(ctx, seed)

	base := seed.Scheme + "://" + seed.Host
	for _, conventional := range []string{base + "/sitemap.xml", base + "/sitemap_index.xml"} {
		duplicate := false
		for _, existing := range candidates {
			if existing == conventional {
				duplicate = true
				break
			}
		}
		if !duplicate {
			candidates = append(candidates, conventional)
		}
	}
	return candidates
}

// collect fetches one sitemap document and returns the in-scope page URLs it
// (or, for index files, its children) yields. processed guards against
// reference cycles between index files; seen dedupes page URLs across
// sibling sitemaps.
func (d *Discoverer) collect(
	ctx context.Context,
	sitemapURL string,
	depth, limit int,
	processed map[string]bool,
	seen map[string]struct{},
) []string {
	if processed[sitemapURL] {
		return nil
	}
	processed[sitemapURL] = true

	smLog := d.log.WithField("sitemap_url", sitemapURL)

	data := d.fetchSitemap(ctx, sitemapURL, smLog)
	if len(data) == 0 {
		return nil
	}

	content := parse.ParseSitemap(data)
	if content.Empty() {
		smLog.Warn("Sitemap contained no recognizable URL or sitemap entries")
		return nil
	}

	if len(content.Children) > 0 {
		if depth >= maxIndexDepth {
			smLog.Warnf("Sitemap index nested deeper than %d levels, ignoring its children", maxIndexDepth)
			return nil
		}
		smLog.Infof("Parsed as sitemap index with %d child sitemaps", len(content.Children))

		var urls []string
		for _, child := range content.Children {
			if len(urls) >= limit {
				break
			}
			if _, err := url.ParseRequestURI(child); err != nil {
				smLog.Warnf("Skipping invalid child sitemap URL %q: %v", child, err)
				continue
			}
			urls = append(urls, d.collect(ctx, child, depth+1, limit-len(urls), processed, seen)...)
		}
		return urls
	}

	var urls []string
	for _, raw := range content.PageURLs {
		if len(urls) >= limit {
			break
		}
		normalized, parsedURL, err := parse.ParseAndNormalize(raw)
		if err != nil {
			smLog.Debugf("Skipping unparseable sitemap URL %q: %v", raw, err)
			continue
		}
		if !d.scope.InScope(parsedURL) {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		urls = append(urls, normalized)
	}
	smLog.Debugf("Sitemap listed %d URLs, %d in scope", len(content.PageURLs), len(urls))
	return urls
}

// fetchSitemap retrieves one sitemap document, honoring the origin's crawl
// delay. Any failure returns nil.
func (d *Discoverer) fetchSitemap(ctx context.Context, sitemapURL string, smLog *logrus.Entry) []byte {
	parsed, err := url.Parse(sitemapURL)
	if err != nil {
		smLog.Warnf("Invalid sitemap URL: %v", err)
		return nil
	}

	crawlDelay, _ := d.politeness.CrawlDelay(ctx, parsed)
	if err := d.limiter.Wait(ctx, crawlDelay); err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		smLog.Errorf("Failed to create sitemap request: %v", err)
		return nil
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, fetchErr := d.fetcher.FetchWithRetry(req, ctx)
	d.limiter.UpdateLastRequest()
	if fetchErr != nil {
		smLog.Warnf("Sitemap fetch failed: %v", fetchErr)
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return nil
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		smLog.Warnf("Failed to read sitemap body: %v", readErr)
		return nil
	}
	return data
}
