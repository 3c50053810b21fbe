package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devseo/siteaudit/pkg/config"
	"github.com/devseo/siteaudit/pkg/fetch"
	"github.com/devseo/siteaudit/pkg/metrics"
	"github.com/devseo/siteaudit/pkg/models"
	"github.com/devseo/siteaudit/pkg/parse"
	"github.com/devseo/siteaudit/pkg/sitemap"
	"github.com/devseo/siteaudit/pkg/utils"
)

// SafetyChecker validates that a URL's host does not resolve into a blocked
// address range. fetch.Guard is the production implementation.
type SafetyChecker interface {
	IsSafe(ctx context.Context, u *url.URL) error
}

// Config assembles one crawl run. SeedURL and Guard have working defaults;
// they are settable so tests can point a run at a local server.
type Config struct {
	Target   models.CrawlTarget
	App      *config.AppConfig
	SeedURL  string        // optional; defaults to Target.SeedURL()
	Guard    SafetyChecker // optional; defaults to the resolving address guard
	Progress ProgressFunc  // optional; called after each crawled page
}

// Crawler walks one site, strictly one URL in flight. Every component it owns
// (frontier, politeness cache, rate limiter) lives and dies with the run, so
// none of them carry locks.
type Crawler struct {
	target   models.CrawlTarget
	appCfg   *config.AppConfig
	seed     *url.URL
	guard    SafetyChecker
	progress ProgressFunc

	client     *http.Client
	fetcher    *fetch.Fetcher
	limiter    *fetch.RateLimiter
	politeness *fetch.PolitenessCache
	scope      *parse.Scope
	discoverer *sitemap.Discoverer
	frontier   *Frontier

	safeOrigins  map[string]bool // origins already cleared by the guard
	pagesCrawled int
	results      []models.FetchResult

	log *logrus.Entry
}

// New builds a Crawler and validates the target against the address guard.
// An unsafe target fails here, before any page is fetched.
func New(ctx context.Context, cfg Config, baseLog *logrus.Entry) (*Crawler, error) {
	if cfg.App == nil {
		return nil, errors.New("crawl: nil app config")
	}
	log := baseLog.WithField("domain", cfg.Target.Domain)

	seedStr := cfg.SeedURL
	if seedStr == "" {
		seedStr = cfg.Target.SeedURL()
	}
	seed, err := url.ParseRequestURI(seedStr)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "invalid seed URL '%s'", seedStr)
	}

	guard := cfg.Guard
	if guard == nil {
		guard = fetch.NewGuard(nil, log)
	}
	if err := guard.IsSafe(ctx, seed); err != nil {
		return nil, fmt.Errorf("target validation failed: %w", err)
	}

	scope, err := parse.NewScope(seed.Host, cfg.App.BlockedPathPatterns)
	if err != nil {
		return nil, fmt.Errorf("building crawl scope: %w", err)
	}

	client := fetch.NewClient(cfg.App.HTTPClientSettings, log.Logger)
	fetcher := fetch.NewFetcher(client, cfg.App, log.Logger)
	minDelay := config.GetEffectiveMinDelay(cfg.App.Targets[cfg.Target.Domain], *cfg.App)
	limiter := fetch.NewRateLimiter(minDelay, log.Logger)
	politeness := fetch.NewPolitenessCache(fetcher, limiter, cfg.App.UserAgent, log)

	return &Crawler{
		target:      cfg.Target,
		appCfg:      cfg.App,
		seed:        seed,
		guard:       guard,
		progress:    cfg.Progress,
		client:      client,
		fetcher:     fetcher,
		limiter:     limiter,
		politeness:  politeness,
		scope:       scope,
		discoverer:  sitemap.NewDiscoverer(fetcher, limiter, politeness, scope, cfg.App.UserAgent, log),
		frontier:    NewFrontier(),
		safeOrigins: map[string]bool{fetch.Origin(seed): true},
		log:         log,
	}, nil
}

// Run executes the crawl and returns fetch results in crawl order. A nil
// error means the frontier was exhausted or the page budget reached. On
// cooperative cancellation the error is utils.ErrCrawlCancelled (progress
// callback) or the context error; results gathered so far remain valid.
func (c *Crawler) Run(ctx context.Context) ([]models.FetchResult, error) {
	defer c.client.CloseIdleConnections()
	start := time.Now()
	c.log.WithField("max_pages", c.target.MaxPages).Info("Crawl starting")

	c.seedFrontier(ctx)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			c.frontier.Discard()
			break loop
		default:
		}

		pageURL, ok := c.frontier.Pop()
		if !ok {
			break // frontier exhausted
		}
		if c.frontier.Visited(pageURL) {
			continue
		}
		if c.pagesCrawled >= c.target.MaxPages {
			c.log.Infof("Page budget of %d reached", c.target.MaxPages)
			break
		}

		cancelled, err := c.crawlPage(ctx, pageURL)
		if err != nil {
			runErr = err
			c.frontier.Discard()
			break
		}
		if cancelled {
			runErr = utils.ErrCrawlCancelled
			c.frontier.Discard()
			break
		}
	}

	c.log.WithFields(logrus.Fields{
		"pages_crawled": c.pagesCrawled,
		"duration":      time.Since(start).String(),
		"outcome":       runOutcome(runErr),
	}).Info("Crawl finished")
	return c.results, runErr
}

func runOutcome(runErr error) string {
	switch {
	case runErr == nil:
		return "completed"
	case errors.Is(runErr, context.DeadlineExceeded):
		return "timed_out"
	default:
		return "cancelled"
	}
}

// seedFrontier queues the seed URL first, then whatever sitemap discovery
// yields. Discovery failures never block the run.
func (c *Crawler) seedFrontier(ctx context.Context) {
	seedNorm := parse.NormalizeURL(c.seed)
	c.frontier.Enqueue(seedNorm)

	discovered := c.discoverer.Discover(ctx, c.seed, c.target.MaxPages)
	for _, u := range discovered {
		c.frontier.Enqueue(u)
	}
	c.log.WithFields(logrus.Fields{
		"seed":         seedNorm,
		"sitemap_urls": len(discovered),
	}).Info("Frontier seeded")
}

// crawlPage handles a single popped URL: safety and robots checks, the rate
// limit wait, the fetch, result recording, the progress callback and link
// expansion. It reports whether the progress callback cancelled the run and
// any context error. A panic here is contained: the page is recorded as
// errored and the crawl moves on.
func (c *Crawler) crawlPage(ctx context.Context, pageURL string) (cancelled bool, runErr error) {
	pageLog := c.log.WithField("url", pageURL)
	recorded := false

	defer func() {
		if r := recover(); r != nil {
			pageLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered while processing page")
			if !recorded {
				c.recordResult(models.FetchResult{
					RequestedURL: pageURL,
					FinalURL:     pageURL,
					Error:        fmt.Sprintf("panic: %v", r),
				}, pageLog)
			}
			cancelled = false
			runErr = nil
		}
	}()

	parsed, parseErr := url.Parse(pageURL)
	if parseErr != nil {
		// The frontier only holds URLs that already survived normalization
		pageLog.Warnf("Skipping unparseable frontier entry: %v", parseErr)
		return false, nil
	}

	// Guard before robots: the robots fetch for a new origin is itself a
	// request, so the origin must be cleared first
	origin := fetch.Origin(parsed)
	if !c.safeOrigins[origin] {
		if err := c.guard.IsSafe(ctx, parsed); err != nil {
			pageLog.Warnf("Skipping URL on unsafe origin: %v", err)
			return false, nil
		}
		c.safeOrigins[origin] = true
	}

	if !c.politeness.CanFetch(ctx, parsed) {
		metrics.RobotsDenied.Inc()
		pageLog.Info("Skipping URL disallowed by robots.txt")
		return false, nil
	}

	crawlDelay, _ := c.politeness.CrawlDelay(ctx, parsed)
	if err := c.limiter.Wait(ctx, crawlDelay); err != nil {
		return false, err
	}

	result := c.fetcher.FetchPage(ctx, pageURL)
	c.limiter.UpdateLastRequest()
	if ctx.Err() != nil && result.Failed() {
		// Cancelled mid-fetch; don't record the aborted attempt as a page
		return false, ctx.Err()
	}

	c.recordResult(result, pageLog)
	recorded = true

	if c.progress != nil {
		if c.progress(c.pagesCrawled, c.estimatedTotal()) == DecisionCancel {
			pageLog.Info("Cancellation requested via progress callback")
			return true, nil
		}
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if result.StatusCode == http.StatusOK && result.IsHTML() && result.Body != "" {
		c.expandLinks(result, pageLog)
	}
	return false, nil
}

func (c *Crawler) recordResult(result models.FetchResult, pageLog *logrus.Entry) {
	c.frontier.MarkVisited(result.RequestedURL)
	c.pagesCrawled++
	c.results = append(c.results, result)

	if result.Failed() {
		metrics.FetchErrors.Inc()
		pageLog.Warnf("Fetch failed: %s", result.Error)
		return
	}
	metrics.PagesFetched.WithLabelValues(metrics.StatusClass(result.StatusCode)).Inc()
	metrics.FetchDuration.Observe(result.LoadTime.Seconds())
	pageLog.WithFields(logrus.Fields{
		"status":    result.StatusCode,
		"load_time": result.LoadTime.String(),
	}).Info("Page crawled")
}

// estimatedTotal is the progress denominator: everything known about so far,
// capped at the page budget.
func (c *Crawler) estimatedTotal() int {
	total := c.pagesCrawled + c.frontier.QueuedLen()
	if total > c.target.MaxPages {
		total = c.target.MaxPages
	}
	return total
}

// expandLinks queues unseen in-scope links from a fetched HTML page.
func (c *Crawler) expandLinks(result models.FetchResult, pageLog *logrus.Entry) {
	base, err := url.Parse(result.FinalURL)
	if err != nil {
		pageLog.Warnf("Cannot resolve links against final URL: %v", err)
		return
	}
	links := parse.ExtractLinks(result.Body, base)
	added := 0
	for _, link := range links {
		parsed, parseErr := url.Parse(link)
		if parseErr != nil {
			continue
		}
		if !c.scope.InScope(parsed) {
			continue
		}
		if c.frontier.Enqueue(link) {
			added++
		}
	}
	pageLog.Debugf("Found %d links, queued %d new in-scope URLs", len(links), added)
}
