package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// politenessRecord caches what one origin's robots.txt said. A nil group
// means permissive: allow everything, no crawl delay.
type politenessRecord struct {
	group    *robotstxt.Group
	delay    time.Duration
	sitemaps []string
}

// PolitenessCache fetches, parses and caches robots.txt per origin. Each
// origin is fetched at most once per run; a missing file (404), fetch
// failure or parse failure all yield a permissive record, matching how the
// major crawlers behave. The cache is used from the single crawl goroutine,
// so there is no locking.
type PolitenessCache struct {
	fetcher   *Fetcher
	limiter   *RateLimiter
	userAgent string
	records   map[string]*politenessRecord // origin -> record
	log       *logrus.Entry
}

// NewPolitenessCache creates a PolitenessCache. Robots fetches go through
// the shared fetcher and rate limiter like any other request.
func NewPolitenessCache(fetcher *Fetcher, limiter *RateLimiter, userAgent string, log *logrus.Entry) *PolitenessCache {
	return &PolitenessCache{
		fetcher:   fetcher,
		limiter:   limiter,
		userAgent: userAgent,
		records:   make(map[string]*politenessRecord),
		log:       log,
	}
}

// Origin is the politeness cache key for u: lowercased scheme://host[:port].
func Origin(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// CanFetch reports whether the configured agent may fetch u according to
// its origin's robots.txt. The first call per origin fetches the file.
func (pc *PolitenessCache) CanFetch(ctx context.Context, u *url.URL) bool {
	rec := pc.record(ctx, u)
	if rec.group == nil {
		return true
	}
	return rec.group.Test(u.RequestURI())
}

// CrawlDelay returns the Crawl-delay directive for u's origin, and whether
// one was declared.
func (pc *PolitenessCache) CrawlDelay(ctx context.Context, u *url.URL) (time.Duration, bool) {
	rec := pc.record(ctx, u)
	return rec.delay, rec.delay > 0
}

// Sitemaps returns the Sitemap directives declared by u's origin, in file
// order. Empty when none were declared or robots.txt was unavailable.
func (pc *PolitenessCache) Sitemaps(ctx context.Context, u *url.URL) []string {
	return pc.record(ctx, u).sitemaps
}

// record returns the cached record for u's origin, fetching robots.txt on
// first sight.
func (pc *PolitenessCache) record(ctx context.Context, u *url.URL) *politenessRecord {
	origin := Origin(u)
	if rec, found := pc.records[origin]; found {
		return rec
	}
	rec := pc.fetchRecord(ctx, u)
	pc.records[origin] = rec
	return rec
}

// fetchRecord retrieves and parses robots.txt for u's origin. Every failure
// path returns a permissive record; robots problems never stop an audit.
func (pc *PolitenessCache) fetchRecord(ctx context.Context, u *url.URL) *politenessRecord {
	permissive := &politenessRecord{}

	robotsURL := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	robotsLog := pc.log.WithField("robots_url", robotsURL.String())
	robotsLog.Info("Fetching robots.txt...")

	if err := pc.limiter.Wait(ctx, 0); err != nil {
		robotsLog.Warnf("Rate limit wait aborted, allowing all: %v", err)
		return permissive
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		robotsLog.Errorf("Error creating robots.txt request: %v", err)
		return permissive
	}
	req.Header.Set("User-Agent", pc.userAgent)

	resp, fetchErr := pc.fetcher.FetchWithRetry(req, ctx)
	pc.limiter.UpdateLastRequest()

	// A 4xx response arrives here with resp non-nil; FromStatusAndBytes
	// turns it into allow-all. Only a missing response is a hard failure.
	if resp == nil {
		robotsLog.Warnf("Fetching robots.txt failed, allowing all: %v", fetchErr)
		return permissive
	}
	defer resp.Body.Close()

	// FromStatusAndBytes would read a 5xx as disallow-all; a broken server
	// should not stop its own audit, so stay permissive instead.
	if resp.StatusCode >= 500 {
		robotsLog.Warnf("robots.txt returned %d, allowing all", resp.StatusCode)
		return permissive
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		robotsLog.Warnf("Error reading robots.txt body, allowing all: %v", readErr)
		return permissive
	}

	data, parseErr := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if parseErr != nil {
		robotsLog.Warnf("Error parsing robots.txt, allowing all: %v", parseErr)
		return permissive
	}

	rec := &politenessRecord{sitemaps: data.Sitemaps}
	if group := data.FindGroup(pc.userAgent); group != nil {
		rec.group = group
		rec.delay = group.CrawlDelay
	}

	robotsLog.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"sitemaps": len(rec.sitemaps),
		"delay":    rec.delay,
	}).Info("Parsed robots.txt")
	return rec
}
