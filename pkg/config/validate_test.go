package config

import (
	"strings"
	"testing"
	"time"

	"github.com/devseo/siteaudit/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	// Check defaults applied
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, 50, cfg.MaxPages)
	assert.Equal(t, 500*time.Millisecond, cfg.MinRequestDelay)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, 2, cfg.MaxConcurrentAudits)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxBodySizeBytes)
	assert.Equal(t, "./audit_state", cfg.StateDir)
	assert.Equal(t, "./audit_reports", cfg.ReportDir)
	assert.Equal(t, 24*time.Hour, cfg.Watch.Interval)
	assert.Equal(t, "./audit_state/watch_state.json", cfg.Watch.StateFile)
	assert.Equal(t, "info", cfg.Log.Level)

	// Check HTTP client defaults
	assert.Equal(t, 45*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 2, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPClientSettings.TLSHandshakeTimeout)
	assert.Equal(t, 1*time.Second, cfg.HTTPClientSettings.ExpectContinueTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.DialerKeepAlive)

	// Check warnings generated
	assert.True(t, containsWarning(warnings, "max_pages should be > 0"))
	assert.True(t, containsWarning(warnings, "min_request_delay should be > 0"))
	assert.True(t, containsWarning(warnings, "state_dir is empty"))
	assert.True(t, containsWarning(warnings, "report_dir is empty"))
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		UserAgent:           "AuditBot/2.0",
		MaxPages:            200,
		MinRequestDelay:     time.Second,
		FetchTimeout:        10 * time.Second,
		MaxRetries:          5,
		InitialRetryDelay:   2 * time.Second,
		MaxRetryDelay:       60 * time.Second,
		MaxConcurrentAudits: 4,
		StateDir:            "/state",
		ReportDir:           "/reports",
		HTTPClientSettings: HTTPClientConfig{
			Timeout:      30 * time.Second,
			MaxIdleConns: 50,
		},
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	// No warnings for valid fields
	assert.False(t, containsWarning(warnings, "max_pages"))
	assert.False(t, containsWarning(warnings, "min_request_delay"))
	assert.False(t, containsWarning(warnings, "state_dir"))
	assert.False(t, containsWarning(warnings, "report_dir"))

	// Values should be preserved
	assert.Equal(t, "AuditBot/2.0", cfg.UserAgent)
	assert.Equal(t, 200, cfg.MaxPages)
	assert.Equal(t, time.Second, cfg.MinRequestDelay)
	assert.Equal(t, 4, cfg.MaxConcurrentAudits)
	assert.Equal(t, "/state", cfg.StateDir)
}

func TestAppConfig_Validate_NegativeValues(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*AppConfig)
		wantWarning string
		check       func(*testing.T, *AppConfig)
	}{
		{
			name: "negative max_retries",
			setup: func(c *AppConfig) {
				c.MaxRetries = -1
				c.InitialRetryDelay = 1 * time.Second // Prevent default of 3 retries
			},
			wantWarning: "max_retries cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, 0, c.MaxRetries)
			},
		},
		{
			name: "negative global_audit_timeout",
			setup: func(c *AppConfig) {
				c.GlobalAuditTimeout = -1 * time.Second
			},
			wantWarning: "global_audit_timeout cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, time.Duration(0), c.GlobalAuditTimeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{}
			tt.setup(&cfg)

			warnings, err := cfg.Validate()

			require.NoError(t, err)
			assert.True(t, containsWarning(warnings, tt.wantWarning),
				"expected warning containing %q, got %v", tt.wantWarning, warnings)
			tt.check(t, &cfg)
		})
	}
}

func TestAppConfig_Validate_RetryDelayInversion(t *testing.T) {
	cfg := AppConfig{
		MaxPages:          10,
		MinRequestDelay:   time.Second,
		StateDir:          "/state",
		ReportDir:         "/reports",
		MaxRetries:        3,
		InitialRetryDelay: 60 * time.Second, // Greater than max
		MaxRetryDelay:     10 * time.Second,
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "initial_retry_delay"))
	assert.Equal(t, 10*time.Second, cfg.InitialRetryDelay) // Should be clamped
}

func TestAppConfig_Validate_InvalidBlockedPathPattern(t *testing.T) {
	cfg := AppConfig{
		BlockedPathPatterns: []string{`[unclosed`},
	}

	_, err := cfg.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestAppConfig_Validate_EmptyTargetDomain(t *testing.T) {
	cfg := AppConfig{
		Targets: map[string]TargetConfig{
			"": {MaxPages: 10},
		},
	}

	_, err := cfg.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
	assert.Contains(t, err.Error(), "empty domain key")
}

func TestAppConfig_Validate_TargetWarningsPrefixed(t *testing.T) {
	cfg := AppConfig{
		Targets: map[string]TargetConfig{
			"example.com": {MaxPages: -5},
		},
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, `target "example.com"`))
	assert.Equal(t, 0, cfg.Targets["example.com"].MaxPages)
}

func TestAppConfig_Validate_LogFileDefaults(t *testing.T) {
	cfg := AppConfig{
		Log: LogConfig{File: "/var/log/siteaudit.log"},
	}

	_, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Log.MaxSizeMB)
	assert.Equal(t, 3, cfg.Log.MaxBackups)
	assert.Equal(t, 30, cfg.Log.MaxAgeDays)
}

func TestTargetConfig_Validate_NegativeValues(t *testing.T) {
	cfg := TargetConfig{MaxPages: -1, MinRequestDelay: -time.Second}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "max_pages cannot be negative"))
	assert.True(t, containsWarning(warnings, "min_request_delay cannot be negative"))
	assert.Equal(t, 0, cfg.MaxPages)
	assert.Equal(t, time.Duration(0), cfg.MinRequestDelay)
}
