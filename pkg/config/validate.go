package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/devseo/siteaudit/pkg/utils"
)

// DefaultUserAgent identifies the crawler to sites it audits. Keep the
// contact URL current; operators use it to reach us about crawl behavior.
const DefaultUserAgent = "DevSEO-Bot/1.0 (+https://devseo.io/bot)"

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// UserAgent
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// MaxPages
	if c.MaxPages <= 0 {
		warnings = append(warnings, "max_pages should be > 0, defaulting to 50")
		c.MaxPages = 50
	}

	// MinRequestDelay
	if c.MinRequestDelay <= 0 {
		warnings = append(warnings, "min_request_delay should be > 0, defaulting to 500ms")
		c.MinRequestDelay = 500 * time.Millisecond
	}

	// FetchTimeout
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}

	// GlobalAuditTimeout
	if c.GlobalAuditTimeout < 0 {
		warnings = append(warnings, "global_audit_timeout cannot be negative, disabling timeout")
		c.GlobalAuditTimeout = 0
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// MaxConcurrentAudits
	if c.MaxConcurrentAudits <= 0 {
		c.MaxConcurrentAudits = 2
	}

	// MaxBodySizeBytes
	if c.MaxBodySizeBytes <= 0 {
		c.MaxBodySizeBytes = 10 * 1024 * 1024 // 10 MiB
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './audit_state'")
		c.StateDir = "./audit_state"
	}

	// ReportDir
	if c.ReportDir == "" {
		warnings = append(warnings, "report_dir is empty, defaulting to './audit_reports'")
		c.ReportDir = "./audit_reports"
	}

	// Blocked path patterns must compile; invalid regex is a config error
	if _, reErr := utils.CompileRegexPatterns(c.BlockedPathPatterns); reErr != nil {
		return warnings, reErr
	}

	// Per-target overrides
	for domain, targetCfg := range c.Targets {
		if strings.TrimSpace(domain) == "" {
			return warnings, fmt.Errorf("%w: targets map contains an empty domain key", utils.ErrConfigValidation)
		}
		targetWarnings, targetErr := targetCfg.Validate()
		if targetErr != nil {
			return warnings, fmt.Errorf("target %q: %w", domain, targetErr)
		}
		for _, w := range targetWarnings {
			warnings = append(warnings, fmt.Sprintf("target %q: %s", domain, w))
		}
		c.Targets[domain] = targetCfg
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	// Log settings defaults
	c.validateLogSettings(&warnings)

	// Watch defaults
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = 24 * time.Hour
	}
	if c.Watch.StateFile == "" {
		c.Watch.StateFile = c.StateDir + "/watch_state.json"
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// validateLogSettings applies defaults for the rotating file sink.
func (c *AppConfig) validateLogSettings(warnings *[]string) {
	l := &c.Log
	if l.Level == "" {
		l.Level = "info"
	}
	if l.File == "" {
		return // stdout only, rotation knobs irrelevant
	}
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = 5
	}
	if l.MaxBackups < 0 {
		*warnings = append(*warnings, "log.max_backups cannot be negative, defaulting to 3")
		l.MaxBackups = 3
	} else if l.MaxBackups == 0 {
		l.MaxBackups = 3
	}
	if l.MaxAgeDays <= 0 {
		l.MaxAgeDays = 30
	}
}

// Validate checks TargetConfig fields. Returns collected warnings and any
// fatal error. Modifies receiver in place.
func (c *TargetConfig) Validate() (warnings []string, err error) {
	if c.MaxPages < 0 {
		warnings = append(warnings, "max_pages cannot be negative, using global default")
		c.MaxPages = 0
	}
	if c.MinRequestDelay < 0 {
		warnings = append(warnings, "min_request_delay cannot be negative, using global default")
		c.MinRequestDelay = 0
	}
	return warnings, nil
}
