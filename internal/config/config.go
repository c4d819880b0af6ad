package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete prewarm configuration
type Config struct {
	Prefetch PrefetchConfig `mapstructure:"prefetch"`
	Device   DeviceConfig   `mapstructure:"device"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Manifest ManifestConfig `mapstructure:"manifest"`
}

// PrefetchConfig controls the prefetch queue and tier timing
type PrefetchConfig struct {
	// MaxConcurrent is the number of route loads allowed in flight (default: 3)
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// CacheHitThresholdMs is the load duration under which a success counts as a cache hit (default: 50)
	CacheHitThresholdMs int `mapstructure:"cache_hit_threshold_ms"`
	// CriticalDelayMs is the delay before the first critical route is enqueued (default: 500)
	CriticalDelayMs int `mapstructure:"critical_delay_ms"`
	// LowEndCriticalDelayMs replaces CriticalDelayMs on low-end devices (default: 1000)
	LowEndCriticalDelayMs int `mapstructure:"low_end_critical_delay_ms"`
	// StepDelayMs is added per critical route index (default: 200)
	StepDelayMs int `mapstructure:"step_delay_ms"`
	// SecondaryDelayMs is the delay between the secondary trigger and enqueueing (default: 2000)
	SecondaryDelayMs int `mapstructure:"secondary_delay_ms"`
	// IdleTimeoutMs bounds how long the secondary tier waits for an idle signal (default: 3000)
	IdleTimeoutMs int `mapstructure:"idle_timeout_ms"`
	// TertiaryDelayMs is the tertiary fallback when fewer than two interactions happen (default: 5000)
	TertiaryDelayMs int `mapstructure:"tertiary_delay_ms"`
	// HistoryLimit is the number of navigation entries kept (default: 10)
	HistoryLimit int `mapstructure:"history_limit"`
}

// DeviceConfig overrides the host's detected device signals
type DeviceConfig struct {
	// HardwareConcurrency overrides runtime.NumCPU when > 0
	HardwareConcurrency int `mapstructure:"hardware_concurrency"`
	// EffectiveType is the network class: "slow-2g", "2g", "3g", "4g" or empty for unknown
	EffectiveType string `mapstructure:"effective_type"`
}

// HTTPConfig controls how route modules are fetched
type HTTPConfig struct {
	// BaseURL is the origin of the application being warmed (e.g., "https://app.example.com")
	BaseURL string `mapstructure:"base_url"`
	// TimeoutMs is the per-request client timeout (default: 10000)
	TimeoutMs int `mapstructure:"timeout_ms"`
	// RequestsPerSecond caps outgoing requests; 0 disables limiting (default: 20)
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	// Burst is the rate limiter burst size (default: 5)
	Burst int `mapstructure:"burst"`
	// AssetConcurrency bounds concurrent asset fetches per route (default: 4)
	AssetConcurrency int `mapstructure:"asset_concurrency"`
	// UserAgent is sent with every request
	UserAgent string `mapstructure:"user_agent"`
}

// StorageConfig controls where session and local state live
type StorageConfig struct {
	// SessionDir holds the per-session store; empty uses {data dir}/session
	SessionDir string `mapstructure:"session_dir"`
	// LocalDB is the SQLite file for long-lived preferences; empty uses {data dir}/prewarm.db
	LocalDB string `mapstructure:"local_db"`
}

// ServerConfig controls the daemon HTTP API
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Mode is the gin mode: "debug", "release" or "test" (default: "release")
	Mode string `mapstructure:"mode"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logs are written to the data directory (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the size at which prewarm.log rotates (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// ManifestConfig selects the route manifest
type ManifestConfig struct {
	// Path to a manifest YAML file; empty uses the built-in route table
	Path string `mapstructure:"path"`
	// Watch reloads the manifest when the file changes (serve only)
	Watch bool `mapstructure:"watch"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Prefetch: PrefetchConfig{
			MaxConcurrent:         3,
			CacheHitThresholdMs:   50,
			CriticalDelayMs:       500,
			LowEndCriticalDelayMs: 1000,
			StepDelayMs:           200,
			SecondaryDelayMs:      2000,
			IdleTimeoutMs:         3000,
			TertiaryDelayMs:       5000,
			HistoryLimit:          10,
		},
		Device: DeviceConfig{},
		HTTP: HTTPConfig{
			TimeoutMs:         10000,
			RequestsPerSecond: 20,
			Burst:             5,
			AssetConcurrency:  4,
			UserAgent:         "prewarm/1.0",
		},
		Storage: StorageConfig{},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7411,
			Mode: "release",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Manifest: ManifestConfig{},
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// CacheHitThreshold returns the cache hit threshold as a Duration
func (p *PrefetchConfig) CacheHitThreshold() time.Duration { return ms(p.CacheHitThresholdMs) }

// CriticalDelay returns the base critical delay as a Duration
func (p *PrefetchConfig) CriticalDelay() time.Duration { return ms(p.CriticalDelayMs) }

// LowEndCriticalDelay returns the low-end base critical delay as a Duration
func (p *PrefetchConfig) LowEndCriticalDelay() time.Duration { return ms(p.LowEndCriticalDelayMs) }

// StepDelay returns the per-route critical step as a Duration
func (p *PrefetchConfig) StepDelay() time.Duration { return ms(p.StepDelayMs) }

// SecondaryDelay returns the secondary enqueue delay as a Duration
func (p *PrefetchConfig) SecondaryDelay() time.Duration { return ms(p.SecondaryDelayMs) }

// IdleTimeout returns the idle wait bound as a Duration
func (p *PrefetchConfig) IdleTimeout() time.Duration { return ms(p.IdleTimeoutMs) }

// TertiaryDelay returns the tertiary fallback as a Duration
func (p *PrefetchConfig) TertiaryDelay() time.Duration { return ms(p.TertiaryDelayMs) }

// Timeout returns the HTTP client timeout as a Duration
func (h *HTTPConfig) Timeout() time.Duration { return ms(h.TimeoutMs) }

// ResolveSessionDir returns the session store directory, defaulting under DataDir
func (s *StorageConfig) ResolveSessionDir() string {
	if s.SessionDir != "" {
		return expandHome(s.SessionDir)
	}
	return filepath.Join(DataDir(), "session")
}

// ResolveLocalDB returns the local store database path, defaulting under DataDir
func (s *StorageConfig) ResolveLocalDB() string {
	if s.LocalDB != "" {
		return expandHome(s.LocalDB)
	}
	return filepath.Join(DataDir(), "prewarm.db")
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Prefetch defaults
	viper.SetDefault("prefetch.max_concurrent", defaults.Prefetch.MaxConcurrent)
	viper.SetDefault("prefetch.cache_hit_threshold_ms", defaults.Prefetch.CacheHitThresholdMs)
	viper.SetDefault("prefetch.critical_delay_ms", defaults.Prefetch.CriticalDelayMs)
	viper.SetDefault("prefetch.low_end_critical_delay_ms", defaults.Prefetch.LowEndCriticalDelayMs)
	viper.SetDefault("prefetch.step_delay_ms", defaults.Prefetch.StepDelayMs)
	viper.SetDefault("prefetch.secondary_delay_ms", defaults.Prefetch.SecondaryDelayMs)
	viper.SetDefault("prefetch.idle_timeout_ms", defaults.Prefetch.IdleTimeoutMs)
	viper.SetDefault("prefetch.tertiary_delay_ms", defaults.Prefetch.TertiaryDelayMs)
	viper.SetDefault("prefetch.history_limit", defaults.Prefetch.HistoryLimit)

	// Device defaults
	viper.SetDefault("device.hardware_concurrency", defaults.Device.HardwareConcurrency)
	viper.SetDefault("device.effective_type", defaults.Device.EffectiveType)

	// HTTP defaults
	viper.SetDefault("http.base_url", defaults.HTTP.BaseURL)
	viper.SetDefault("http.timeout_ms", defaults.HTTP.TimeoutMs)
	viper.SetDefault("http.requests_per_second", defaults.HTTP.RequestsPerSecond)
	viper.SetDefault("http.burst", defaults.HTTP.Burst)
	viper.SetDefault("http.asset_concurrency", defaults.HTTP.AssetConcurrency)
	viper.SetDefault("http.user_agent", defaults.HTTP.UserAgent)

	// Storage defaults
	viper.SetDefault("storage.session_dir", defaults.Storage.SessionDir)
	viper.SetDefault("storage.local_db", defaults.Storage.LocalDB)

	// Server defaults
	viper.SetDefault("server.host", defaults.Server.Host)
	viper.SetDefault("server.port", defaults.Server.Port)
	viper.SetDefault("server.mode", defaults.Server.Mode)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Manifest defaults
	viper.SetDefault("manifest.path", defaults.Manifest.Path)
	viper.SetDefault("manifest.watch", defaults.Manifest.Watch)
}

// Load reads the configuration from viper and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if it
// cannot be loaded
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "prewarm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prewarm"
	}
	return filepath.Join(home, ".config", "prewarm")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "prewarm.yaml")
}

// DataDir returns the directory for logs and stores
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "prewarm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prewarm"
	}
	return filepath.Join(home, ".local", "share", "prewarm")
}
