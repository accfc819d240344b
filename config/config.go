package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Pool      PoolConfig
	Limiter   LimiterConfig
	Batch     BatchConfig
	Task      TaskConfig
	Detector  DetectorConfig
	Registry  RegistryConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Store     StoreConfig
	Log       LogConfig
	Target    Target
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// PoolConfig controls the browser sessions and their execution contexts.
type PoolConfig struct {
	// Driver selects the browser automation backend: "rod" or "playwright".
	Driver string // default: "rod"

	// SessionCount is the number of browser processes to launch.
	SessionCount int // default: 3

	// ContextsPerSession is the number of isolated contexts per browser.
	// default: max(1, MaxConcurrent/SessionCount)
	ContextsPerSession int

	// Headless controls whether browsers run headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL handed to every browser.
	Proxy string

	// Stealth injects navigator.webdriver masking into every page.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// RetireScore is the error score at which a context is recycled between batches.
	RetireScore float64 // default: 3
}

// LimiterConfig bounds in-flight fetch tasks.
type LimiterConfig struct {
	MaxConcurrent int // default: 5
}

// BatchConfig controls how a run is partitioned.
type BatchConfig struct {
	// Size is the number of items per batch.
	Size int // default: MaxConcurrent

	// Pause is the delay between consecutive batches.
	Pause time.Duration // default: 2s
}

// TaskConfig controls one fetch task.
type TaskConfig struct {
	NavigationTimeout  time.Duration // default: 30s
	InteractionTimeout time.Duration // default: 15s
	ConsentTimeout     time.Duration // default: 2s
	ClickTimeout       time.Duration // default: 5s

	// TaskTimeout bounds the whole task including retries.
	TaskTimeout time.Duration // default: 90s

	// Retries is how many times a navigation timeout is retried.
	Retries int // default: 1

	// RetryBase is the unit of the exponential backoff between attempts.
	RetryBase time.Duration // default: 1s
}

// DetectorConfig controls the completion detector.
type DetectorConfig struct {
	PollInterval time.Duration // default: 500ms
	GracePeriod  time.Duration // default: 3s
	HardBudget   time.Duration // default: 8s
}

// RegistryConfig controls the federal registry paginator.
type RegistryConfig struct {
	BaseURL    string        // default: federal corporation search
	MaxRetries int           // default: 5
	Timeout    time.Duration // default: 20s
	DelayMin   time.Duration // default: 1s
	DelayMax   time.Duration // default: 3s
	Jitter     bool          // default: false

	// Fingerprint selects the TLS transport: "utls", "cloudflare" or "none".
	Fingerprint string // default: "utls"

	Proxy string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the outcome cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached outcomes. 0 disables caching.
	MaxEntries int // default: 1000

	TTL time.Duration // default: 1h
}

// WebhookConfig controls run-completion notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// StoreConfig controls SQLite persistence.
type StoreConfig struct {
	// Path is the database file; empty disables persistence.
	Path string // default: "bizscout.db"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	maxConcurrent := envIntOr("BIZSCOUT_MAX_CONCURRENT", 5)
	sessions := envIntOr("BIZSCOUT_SESSION_COUNT", 3)

	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("BIZSCOUT_HOST", "0.0.0.0"),
			Port: envIntOr("BIZSCOUT_PORT", 8080),
			Mode: envOr("BIZSCOUT_MODE", "release"),
		},
		Pool: PoolConfig{
			Driver:             envOr("BIZSCOUT_DRIVER", "rod"),
			SessionCount:       sessions,
			ContextsPerSession: envIntOr("BIZSCOUT_CONTEXTS_PER_SESSION", ContextsPerSession(maxConcurrent, sessions)),
			Headless:           envBoolOr("BIZSCOUT_HEADLESS", true),
			NoSandbox:          envBoolOr("BIZSCOUT_NO_SANDBOX", false),
			BrowserBin:         os.Getenv("BIZSCOUT_BROWSER_BIN"),
			Proxy:              os.Getenv("BIZSCOUT_PROXY"),
			Stealth:            envBoolOr("BIZSCOUT_STEALTH", true),
			BlockedResourceTypes: envSliceOr("BIZSCOUT_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			RetireScore: envFloatOr("BIZSCOUT_RETIRE_SCORE", 3.0),
		},
		Limiter: LimiterConfig{
			MaxConcurrent: maxConcurrent,
		},
		Batch: BatchConfig{
			Size:  envIntOr("BIZSCOUT_BATCH_SIZE", maxConcurrent),
			Pause: envDurationOr("BIZSCOUT_BATCH_PAUSE", 2*time.Second),
		},
		Task: TaskConfig{
			NavigationTimeout:  envDurationOr("BIZSCOUT_NAV_TIMEOUT", 30*time.Second),
			InteractionTimeout: envDurationOr("BIZSCOUT_INTERACTION_TIMEOUT", 15*time.Second),
			ConsentTimeout:     envDurationOr("BIZSCOUT_CONSENT_TIMEOUT", 2*time.Second),
			ClickTimeout:       envDurationOr("BIZSCOUT_CLICK_TIMEOUT", 5*time.Second),
			TaskTimeout:        envDurationOr("BIZSCOUT_TASK_TIMEOUT", 90*time.Second),
			Retries:            envIntOr("BIZSCOUT_TASK_RETRIES", 1),
			RetryBase:          envDurationOr("BIZSCOUT_TASK_RETRY_BASE", time.Second),
		},
		Detector: DetectorConfig{
			PollInterval: envDurationOr("BIZSCOUT_POLL_INTERVAL", 500*time.Millisecond),
			GracePeriod:  envDurationOr("BIZSCOUT_GRACE_PERIOD", 3*time.Second),
			HardBudget:   envDurationOr("BIZSCOUT_HARD_BUDGET", 8*time.Second),
		},
		Registry: RegistryConfig{
			BaseURL:     envOr("BIZSCOUT_REGISTRY_URL", "https://ised-isde.canada.ca/cc/lgcy/fdrlCrpSrch.html"),
			MaxRetries:  envIntOr("BIZSCOUT_REGISTRY_MAX_RETRIES", 5),
			Timeout:     envDurationOr("BIZSCOUT_REGISTRY_TIMEOUT", 20*time.Second),
			DelayMin:    envDurationOr("BIZSCOUT_REGISTRY_DELAY_MIN", time.Second),
			DelayMax:    envDurationOr("BIZSCOUT_REGISTRY_DELAY_MAX", 3*time.Second),
			Jitter:      envBoolOr("BIZSCOUT_REGISTRY_JITTER", false),
			Fingerprint: envOr("BIZSCOUT_REGISTRY_FINGERPRINT", "utls"),
			Proxy:       os.Getenv("BIZSCOUT_REGISTRY_PROXY"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("BIZSCOUT_AUTH_ENABLED", true),
			APIKeys: envSliceOr("BIZSCOUT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("BIZSCOUT_RATE_RPS", 5.0),
			Burst:             envIntOr("BIZSCOUT_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("BIZSCOUT_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("BIZSCOUT_CACHE_TTL", time.Hour),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("BIZSCOUT_WEBHOOK_URL"),
			Secret: os.Getenv("BIZSCOUT_WEBHOOK_SECRET"),
		},
		Store: StoreConfig{
			Path: envOr("BIZSCOUT_DB_PATH", "bizscout.db"),
		},
		Log: LogConfig{
			Level:  envOr("BIZSCOUT_LOG_LEVEL", "info"),
			Format: envOr("BIZSCOUT_LOG_FORMAT", "json"),
		},
		Target: DefaultTarget(),
	}
	return cfg
}

// ContextsPerSession spreads maxConcurrent contexts across the sessions,
// never fewer than one per session.
func ContextsPerSession(maxConcurrent, sessions int) int {
	if sessions <= 0 {
		return 1
	}
	return max(1, maxConcurrent/sessions)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
