package config

import "time"

// TargetConfig holds per-domain overrides. The map key in AppConfig.Targets
// is the domain itself, so only the knobs that vary per site live here.
type TargetConfig struct {
	MaxPages        int           `yaml:"max_pages,omitempty"`         // 0 = inherit global default
	MinRequestDelay time.Duration `yaml:"min_request_delay,omitempty"` // 0 = inherit global default
}

// AppConfig holds the global application configuration
type AppConfig struct {
	UserAgent           string                  `yaml:"user_agent,omitempty"`
	MaxPages            int                     `yaml:"max_pages,omitempty"`             // default page budget per audit
	MinRequestDelay     time.Duration           `yaml:"min_request_delay,omitempty"`     // floor between any two requests in a run
	FetchTimeout        time.Duration           `yaml:"fetch_timeout,omitempty"`         // per-request deadline
	GlobalAuditTimeout  time.Duration           `yaml:"global_audit_timeout,omitempty"`  // 0 = no overall deadline
	MaxRetries          int                     `yaml:"max_retries,omitempty"`
	InitialRetryDelay   time.Duration           `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay       time.Duration           `yaml:"max_retry_delay,omitempty"`
	MaxConcurrentAudits int                     `yaml:"max_concurrent_audits,omitempty"` // parallel runs across domains
	MaxBodySizeBytes    int64                   `yaml:"max_body_size_bytes,omitempty"`   // cap on bytes read per response
	StateDir            string                  `yaml:"state_dir,omitempty"`
	ReportDir           string                  `yaml:"report_dir,omitempty"`
	MetricsAddr         string                  `yaml:"metrics_addr,omitempty"` // empty = metrics endpoint disabled
	BlockedPathPatterns []string                `yaml:"blocked_path_patterns,omitempty"` // extra regex filters on URL paths
	Targets             map[string]TargetConfig `yaml:"targets,omitempty"`
	HTTPClientSettings  HTTPClientConfig        `yaml:"http_client_settings,omitempty"`
	Log                 LogConfig               `yaml:"log,omitempty"`
	Watch               WatchConfig             `yaml:"watch,omitempty"`
}

// HTTPClientConfig holds settings for the per-run HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // Explicitly enable/disable HTTP/2 attempt (use pointer for tri-state: nil=default, true=force, false=disable)
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// LogConfig controls log level and optional rotating file output
type LogConfig struct {
	Level      string `yaml:"level,omitempty"`
	File       string `yaml:"file,omitempty"` // empty = stdout only
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	Compress   *bool  `yaml:"compress,omitempty"` // pointer for tri-state: nil=default (true)
}

// WatchConfig controls the periodic re-audit scheduler
type WatchConfig struct {
	Interval  time.Duration `yaml:"interval,omitempty"`   // how often each target is re-audited
	StateFile string        `yaml:"state_file,omitempty"` // JSON file remembering last run per domain
}

// GetEffectiveMaxPages determines the page budget for one target.
// Target config (if set) overrides the global default.
func GetEffectiveMaxPages(targetCfg TargetConfig, appCfg AppConfig) int {
	if targetCfg.MaxPages > 0 {
		return targetCfg.MaxPages
	}
	return appCfg.MaxPages
}

// GetEffectiveMinDelay determines the request-spacing floor for one target.
func GetEffectiveMinDelay(targetCfg TargetConfig, appCfg AppConfig) time.Duration {
	if targetCfg.MinRequestDelay > 0 {
		return targetCfg.MinRequestDelay
	}
	return appCfg.MinRequestDelay
}

// GetEffectiveLogCompress resolves the tri-state compress flag.
func GetEffectiveLogCompress(logCfg LogConfig) bool {
	if logCfg.Compress != nil {
		return *logCfg.Compress
	}
	return true
}
