package fetch

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter spaces out consecutive requests within one audit run. A single
// limiter covers every origin the run touches, so redirects that hop off the
// start host stay throttled too. The crawl loop is one goroutine, so no
// locking is needed; each run owns its own instance.
type RateLimiter struct {
	minDelay    time.Duration // configured floor between requests
	lastRequest time.Time     // zero until the first request attempt
	log         *logrus.Logger
}

// NewRateLimiter creates a RateLimiter with the configured minimum spacing.
func NewRateLimiter(minDelay time.Duration, log *logrus.Logger) *RateLimiter {
	if minDelay < 0 {
		minDelay = 0
	}
	return &RateLimiter{
		minDelay: minDelay,
		log:      log,
	}
}

// Wait sleeps until the spacing since the previous request attempt reaches
// max(crawlDelay, configured minimum), with +/- 10% jitter to avoid a
// metronome pattern. crawlDelay is the robots.txt Crawl-delay for the
// current origin, zero when none. Wait returns ctx.Err() the moment the
// context is cancelled; it never leaves a timer running.
func (rl *RateLimiter) Wait(ctx context.Context, crawlDelay time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	required := rl.minDelay
	if crawlDelay > required {
		required = crawlDelay
	}
	if required <= 0 || rl.lastRequest.IsZero() {
		return nil // First request, or no spacing configured
	}

	elapsed := time.Since(rl.lastRequest)
	if elapsed >= required {
		return nil
	}
	sleep := required - elapsed

	// Jitter: +/- 10% of the remaining sleep
	var jitter time.Duration
	jitterRange := int64(sleep) / 5 // 20% range width for +/-10%
	if jitterRange > 0 {
		jitter = time.Duration(rand.Int63n(jitterRange)) - (sleep / 10)
	}
	finalSleep := sleep + jitter
	if finalSleep <= 0 {
		return nil
	}

	rl.log.WithFields(logrus.Fields{
		"sleep": finalSleep, "required_delay": required, "elapsed": elapsed,
	}).Debug("Rate limit applying sleep")

	timer := time.NewTimer(finalSleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateLastRequest records now as the most recent request attempt. Call it
// after every attempt, successful or not, so failures still count against
// the request budget.
func (rl *RateLimiter) UpdateLastRequest() {
	rl.lastRequest = time.Now()
}
