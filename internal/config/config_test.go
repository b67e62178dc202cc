package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allEnvVars = []string{
	"LOG_LEVEL", "HEADLESS", "BROWSER_PATH", "IGNORE_CERT_ERRORS", "PROXY_URL",
	"VIEWPORT_WIDTH", "VIEWPORT_HEIGHT",
	"BROWSER_POOL_SIZE", "BROWSER_POOL_TIMEOUT", "PAGE_TIMEOUT",
	"LOAD_SETTLE_DELAY", "RENDER_SETTLE_DELAY", "CAPTURE_MIN_INTERVAL",
	"DISPATCH_TIMEOUT", "HIGHLIGHT_ADS",
	"FILTER_LIST_URL", "FILTER_LIST_PATH", "SETTINGS_PATH", "SETTINGS_HOT_RELOAD",
	"COLLECTOR_HOST", "COLLECTOR_PORT", "COLLECTOR_DB_PATH", "COLLECTOR_UPLOAD_DIR",
	"CORS_ALLOWED_ORIGINS", "RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "TRUST_PROXY",
	"PROMETHEUS_ENABLED", "PROMETHEUS_PORT",
}

func unsetAll() {
	for _, env := range allEnvVars {
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetAll()

	cfg := Load()

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}
	if !cfg.Headless {
		t.Error("Expected Headless to be true by default")
	}
	if cfg.BrowserPoolSize != 2 {
		t.Errorf("Expected default pool size 2, got %d", cfg.BrowserPoolSize)
	}
	if cfg.PageTimeout != 2*time.Minute {
		t.Errorf("Expected default page timeout 2m, got %v", cfg.PageTimeout)
	}
	if cfg.LoadSettleDelay != 2*time.Second {
		t.Errorf("Expected default load delay 2s, got %v", cfg.LoadSettleDelay)
	}
	if cfg.RenderSettleDelay != 300*time.Millisecond {
		t.Errorf("Expected default render delay 300ms, got %v", cfg.RenderSettleDelay)
	}
	if cfg.CaptureMinInterval != 500*time.Millisecond {
		t.Errorf("Expected default capture interval 500ms, got %v", cfg.CaptureMinInterval)
	}
	if cfg.DispatchTimeout != 0 {
		t.Errorf("Expected no dispatch timeout by default, got %v", cfg.DispatchTimeout)
	}
	if cfg.FilterListURL != DefaultFilterListURL {
		t.Errorf("Expected default filter list URL, got %q", cfg.FilterListURL)
	}
	if cfg.FilterListPath != filepath.Join(DataDir(), "easylist.txt") {
		t.Errorf("Unexpected filter list path %q", cfg.FilterListPath)
	}
	if !strings.HasSuffix(cfg.SettingsPath, filepath.Join(AppName, "settings.yaml")) {
		t.Errorf("Unexpected settings path %q", cfg.SettingsPath)
	}
	if cfg.CollectorPort != 5500 {
		t.Errorf("Expected default collector port 5500, got %d", cfg.CollectorPort)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Errorf("Expected no CORS origins by default, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitEnabled {
		t.Error("Expected rate limiting to be disabled by default")
	}
	if cfg.PrometheusEnabled {
		t.Error("Expected Prometheus to be disabled by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("HEADLESS", "false")
	os.Setenv("BROWSER_POOL_SIZE", "4")
	os.Setenv("LOAD_SETTLE_DELAY", "5s")
	os.Setenv("DISPATCH_TIMEOUT", "10s")
	os.Setenv("FILTER_LIST_PATH", "/tmp/list.txt")
	os.Setenv("COLLECTOR_PORT", "6000")
	os.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	os.Setenv("RATE_LIMIT_ENABLED", "true")
	os.Setenv("PROXY_URL", "http://proxy:8080")
	defer unsetAll()

	cfg := Load()

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %q", cfg.LogLevel)
	}
	if cfg.Headless {
		t.Error("Expected Headless to be false")
	}
	if cfg.BrowserPoolSize != 4 {
		t.Errorf("Expected pool size 4, got %d", cfg.BrowserPoolSize)
	}
	if cfg.LoadSettleDelay != 5*time.Second {
		t.Errorf("Expected load delay 5s, got %v", cfg.LoadSettleDelay)
	}
	if cfg.DispatchTimeout != 10*time.Second {
		t.Errorf("Expected dispatch timeout 10s, got %v", cfg.DispatchTimeout)
	}
	if cfg.FilterListPath != "/tmp/list.txt" {
		t.Errorf("Expected filter list path override, got %q", cfg.FilterListPath)
	}
	if cfg.CollectorPort != 6000 {
		t.Errorf("Expected collector port 6000, got %d", cfg.CollectorPort)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected CORS origins %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.RateLimitEnabled {
		t.Error("Expected rate limiting to be enabled")
	}
	if !cfg.HasProxy() {
		t.Error("Expected HasProxy to return true")
	}
}

func TestInvalidEnvValues(t *testing.T) {
	os.Setenv("COLLECTOR_PORT", "not_a_number")
	os.Setenv("HEADLESS", "not_a_bool")
	os.Setenv("LOAD_SETTLE_DELAY", "-1s")
	os.Setenv("DISPATCH_TIMEOUT", "soon")
	defer unsetAll()

	cfg := Load()

	if cfg.CollectorPort != 5500 {
		t.Errorf("Expected default port for invalid value, got %d", cfg.CollectorPort)
	}
	if !cfg.Headless {
		t.Error("Expected default Headless (true) for invalid value")
	}
	if cfg.LoadSettleDelay != 2*time.Second {
		t.Errorf("Expected default load delay for negative value, got %v", cfg.LoadSettleDelay)
	}
	if cfg.DispatchTimeout != 0 {
		t.Errorf("Expected default dispatch timeout for invalid value, got %v", cfg.DispatchTimeout)
	}
}

func TestGetEnvOptionalDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 7 * time.Second},
		{"0", 0},
		{"0s", 0},
		{"3s", 3 * time.Second},
		{"-3s", 7 * time.Second},
		{"bogus", 7 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			os.Setenv("TEST_OPTIONAL_DURATION", tt.value)
			defer os.Unsetenv("TEST_OPTIONAL_DURATION")

			if got := getEnvOptionalDuration("TEST_OPTIONAL_DURATION", 7*time.Second); got != tt.want {
				t.Errorf("getEnvOptionalDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		check  func(*testing.T, *Config)
	}{
		{
			name:   "pool size zero",
			modify: func(c *Config) { c.BrowserPoolSize = 0 },
			check: func(t *testing.T, c *Config) {
				if c.BrowserPoolSize != 2 {
					t.Errorf("BrowserPoolSize = %d, want 2", c.BrowserPoolSize)
				}
			},
		},
		{
			name:   "pool size capped",
			modify: func(c *Config) { c.BrowserPoolSize = 500 },
			check: func(t *testing.T, c *Config) {
				if c.BrowserPoolSize != maxBrowserPoolSize {
					t.Errorf("BrowserPoolSize = %d, want %d", c.BrowserPoolSize, maxBrowserPoolSize)
				}
			},
		},
		{
			name:   "unknown log level",
			modify: func(c *Config) { c.LogLevel = "loud" },
			check: func(t *testing.T, c *Config) {
				if c.LogLevel != "info" {
					t.Errorf("LogLevel = %q, want info", c.LogLevel)
				}
			},
		},
		{
			name:   "browser path traversal",
			modify: func(c *Config) { c.BrowserPath = "/opt/../bin/chrome" },
			check: func(t *testing.T, c *Config) {
				if c.BrowserPath != "" {
					t.Errorf("BrowserPath = %q, want empty", c.BrowserPath)
				}
			},
		},
		{
			name:   "tiny viewport",
			modify: func(c *Config) { c.ViewportWidth = 10 },
			check: func(t *testing.T, c *Config) {
				if c.ViewportWidth != 1920 {
					t.Errorf("ViewportWidth = %d, want 1920", c.ViewportWidth)
				}
			},
		},
		{
			name:   "settle delay capped",
			modify: func(c *Config) { c.RenderSettleDelay = time.Hour },
			check: func(t *testing.T, c *Config) {
				if c.RenderSettleDelay != maxSettleDelay {
					t.Errorf("RenderSettleDelay = %v, want %v", c.RenderSettleDelay, maxSettleDelay)
				}
			},
		},
		{
			name: "metrics port conflict",
			modify: func(c *Config) {
				c.PrometheusEnabled = true
				c.PrometheusPort = c.CollectorPort
			},
			check: func(t *testing.T, c *Config) {
				if c.PrometheusEnabled {
					t.Error("PrometheusEnabled should be turned off on port conflict")
				}
			},
		},
		{
			name:   "non-http filter list url",
			modify: func(c *Config) { c.FilterListURL = "file:///etc/passwd" },
			check: func(t *testing.T, c *Config) {
				if c.FilterListURL != DefaultFilterListURL {
					t.Errorf("FilterListURL = %q, want default", c.FilterListURL)
				}
			},
		},
		{
			name:   "rate limit zero",
			modify: func(c *Config) { c.RateLimitRPM = 0 },
			check: func(t *testing.T, c *Config) {
				if c.RateLimitRPM != 600 {
					t.Errorf("RateLimitRPM = %d, want 600", c.RateLimitRPM)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetAll()
			cfg := Load()
			tt.modify(cfg)
			cfg.Validate()
			tt.check(t, cfg)
		})
	}
}
