// Package config provides application configuration management.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog/log"
)

// AppName names the per-user data and config directories.
const AppName = "adscanner"

// DefaultFilterListURL is the filter list fetched by init.
const DefaultFilterListURL = "https://easylist.to/easylist/easylist.txt"

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxBrowserPoolSize = 20
	maxPageTimeout     = 30 * time.Minute
	maxSettleDelay     = time.Minute
	maxRateLimitRPM    = 100000
	maxViewport        = 8192
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Logging
	LogLevel string

	// Browser settings
	Headless         bool
	BrowserPath      string
	IgnoreCertErrors bool
	ProxyURL         string
	ViewportWidth    int
	ViewportHeight   int

	// Pool settings
	BrowserPoolSize    int
	BrowserPoolTimeout time.Duration
	PageTimeout        time.Duration // Bounds acquire, navigation and the load wait, not the scan

	// Scan timing
	LoadSettleDelay    time.Duration // Wait after the load event before scanning
	RenderSettleDelay  time.Duration // Wait after scrolling an element into view
	CaptureMinInterval time.Duration // Minimum gap between viewport captures
	DispatchTimeout    time.Duration // Report HTTP timeout, 0 = none
	HighlightAds       bool

	// Filter list and settings files
	FilterListURL     string
	FilterListPath    string
	SettingsPath      string
	SettingsHotReload bool

	// Collector server
	CollectorHost      string
	CollectorPort      int
	CollectorDBPath    string
	CollectorUploadDir string
	CORSAllowedOrigins []string // Empty = allow all
	RateLimitEnabled   bool
	RateLimitRPM       int
	TrustProxy         bool

	// Metrics
	PrometheusEnabled bool
	PrometheusPort    int
}

// DataDir returns the per-user data directory.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	dataDir := DataDir()

	return &Config{
		LogLevel: getEnvString("LOG_LEVEL", "info"),

		// Browser
		Headless:         getEnvBool("HEADLESS", true),
		BrowserPath:      getEnvString("BROWSER_PATH", ""),
		IgnoreCertErrors: getEnvBool("IGNORE_CERT_ERRORS", false),
		ProxyURL:         getEnvString("PROXY_URL", ""),
		ViewportWidth:    getEnvInt("VIEWPORT_WIDTH", 1920),
		ViewportHeight:   getEnvInt("VIEWPORT_HEIGHT", 1080),

		// Pool
		BrowserPoolSize:    getEnvInt("BROWSER_POOL_SIZE", 2),
		BrowserPoolTimeout: getEnvDuration("BROWSER_POOL_TIMEOUT", 30*time.Second),
		PageTimeout:        getEnvDuration("PAGE_TIMEOUT", 2*time.Minute),

		// Scan timing
		LoadSettleDelay:    getEnvDuration("LOAD_SETTLE_DELAY", 2*time.Second),
		RenderSettleDelay:  getEnvDuration("RENDER_SETTLE_DELAY", 300*time.Millisecond),
		CaptureMinInterval: getEnvDuration("CAPTURE_MIN_INTERVAL", 500*time.Millisecond),
		DispatchTimeout:    getEnvOptionalDuration("DISPATCH_TIMEOUT", 0),
		HighlightAds:       getEnvBool("HIGHLIGHT_ADS", true),

		// Files
		FilterListURL:     getEnvString("FILTER_LIST_URL", DefaultFilterListURL),
		FilterListPath:    getEnvString("FILTER_LIST_PATH", filepath.Join(dataDir, "easylist.txt")),
		SettingsPath:      getEnvString("SETTINGS_PATH", filepath.Join(ConfigDir(), "settings.yaml")),
		SettingsHotReload: getEnvBool("SETTINGS_HOT_RELOAD", false),

		// Collector
		CollectorHost:      getEnvString("COLLECTOR_HOST", "0.0.0.0"),
		CollectorPort:      getEnvInt("COLLECTOR_PORT", 5500),
		CollectorDBPath:    getEnvString("COLLECTOR_DB_PATH", filepath.Join(dataDir, "ad_data.db")),
		CollectorUploadDir: getEnvString("COLLECTOR_UPLOAD_DIR", filepath.Join(dataDir, "uploads", "screenshots")),
		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", false),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 600),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),

		// Metrics
		PrometheusEnabled: getEnvBool("PROMETHEUS_ENABLED", false),
		PrometheusPort:    getEnvInt("PROMETHEUS_PORT", 9090),
	}
}

// HasProxy returns true if a browser proxy is configured.
func (c *Config) HasProxy() bool {
	return c.ProxyURL != ""
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		log.Warn().Str("level", c.LogLevel).Msg("Unknown log level, using info")
		c.LogLevel = "info"
	}

	// BrowserPath validation - prevent path traversal
	if c.BrowserPath != "" && strings.Contains(c.BrowserPath, "..") {
		log.Error().
			Str("path", c.BrowserPath).
			Msg("BrowserPath contains path traversal sequence (..), ignoring")
		c.BrowserPath = ""
	}

	if c.BrowserPoolSize < 1 {
		log.Warn().Int("size", c.BrowserPoolSize).Msg("Invalid pool size, using default 2")
		c.BrowserPoolSize = 2
	} else if c.BrowserPoolSize > maxBrowserPoolSize {
		log.Warn().
			Int("size", c.BrowserPoolSize).
			Int("max", maxBrowserPoolSize).
			Msg("Pool size too large, capping to maximum")
		c.BrowserPoolSize = maxBrowserPoolSize
	}

	if c.ViewportWidth < 320 || c.ViewportWidth > maxViewport {
		log.Warn().Int("width", c.ViewportWidth).Msg("Invalid viewport width, using 1920")
		c.ViewportWidth = 1920
	}
	if c.ViewportHeight < 240 || c.ViewportHeight > maxViewport {
		log.Warn().Int("height", c.ViewportHeight).Msg("Invalid viewport height, using 1080")
		c.ViewportHeight = 1080
	}

	if c.PageTimeout > maxPageTimeout {
		log.Warn().
			Dur("timeout", c.PageTimeout).
			Dur("max", maxPageTimeout).
			Msg("Page timeout too high, capping to maximum")
		c.PageTimeout = maxPageTimeout
	}

	if c.LoadSettleDelay > maxSettleDelay {
		log.Warn().Dur("delay", c.LoadSettleDelay).Msg("Load settle delay too long, capping to maximum")
		c.LoadSettleDelay = maxSettleDelay
	}
	if c.RenderSettleDelay > maxSettleDelay {
		log.Warn().Dur("delay", c.RenderSettleDelay).Msg("Render settle delay too long, capping to maximum")
		c.RenderSettleDelay = maxSettleDelay
	}

	if c.CollectorPort < 0 || c.CollectorPort > 65535 {
		log.Warn().Int("port", c.CollectorPort).Msg("Invalid collector port, using default 5500")
		c.CollectorPort = 5500
	}
	if c.PrometheusPort < 1 || c.PrometheusPort > 65535 {
		log.Warn().Int("port", c.PrometheusPort).Msg("Invalid Prometheus port, using default 9090")
		c.PrometheusPort = 9090
	}
	if c.PrometheusEnabled && c.PrometheusPort == c.CollectorPort {
		log.Warn().
			Int("port", c.PrometheusPort).
			Msg("Prometheus port conflicts with collector port, metrics stay on the collector mux")
		c.PrometheusEnabled = false
	}

	if c.RateLimitRPM < 1 {
		log.Warn().Int("rpm", c.RateLimitRPM).Msg("Invalid rate limit, using 600")
		c.RateLimitRPM = 600
	} else if c.RateLimitRPM > maxRateLimitRPM {
		log.Warn().
			Int("rpm", c.RateLimitRPM).
			Int("max", maxRateLimitRPM).
			Msg("Rate limit too high, capping to maximum")
		c.RateLimitRPM = maxRateLimitRPM
	}

	if c.FilterListURL != "" && !strings.HasPrefix(c.FilterListURL, "http://") && !strings.HasPrefix(c.FilterListURL, "https://") {
		log.Warn().Str("url", c.FilterListURL).Msg("Filter list URL must be http(s), using default")
		c.FilterListURL = DefaultFilterListURL
	}

	if c.IgnoreCertErrors {
		log.Warn().Msg("IGNORE_CERT_ERRORS is enabled - TLS certificate validation is disabled")
	}
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			// Reject negative or zero durations
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

// getEnvOptionalDuration accepts zero, which disables the limit it configures.
func getEnvOptionalDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "0" {
		return 0
	}
	duration, err := time.ParseDuration(value)
	if err != nil || duration < 0 {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
		return defaultValue
	}
	return duration
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
