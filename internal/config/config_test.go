package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Prefetch.MaxConcurrent != 3 {
		t.Errorf("Prefetch.MaxConcurrent = %d, want 3", cfg.Prefetch.MaxConcurrent)
	}
	if cfg.Prefetch.HistoryLimit != 10 {
		t.Errorf("Prefetch.HistoryLimit = %d, want 10", cfg.Prefetch.HistoryLimit)
	}
	if cfg.Server.Port != 7411 {
		t.Errorf("Server.Port = %d, want 7411", cfg.Server.Port)
	}
	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() should validate, got %v", ValidationErrors(errs))
	}
}

func TestPrefetchConfig_Durations(t *testing.T) {
	p := Default().Prefetch

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"cache hit threshold", p.CacheHitThreshold(), 50 * time.Millisecond},
		{"critical delay", p.CriticalDelay(), 500 * time.Millisecond},
		{"low-end critical delay", p.LowEndCriticalDelay(), time.Second},
		{"step delay", p.StepDelay(), 200 * time.Millisecond},
		{"secondary delay", p.SecondaryDelay(), 2 * time.Second},
		{"idle timeout", p.IdleTimeout(), 3 * time.Second},
		{"tertiary delay", p.TertiaryDelay(), 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults round-trip through viper", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()
		SetDefaults()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.HTTP.AssetConcurrency != 4 {
			t.Errorf("HTTP.AssetConcurrency = %d, want 4", cfg.HTTP.AssetConcurrency)
		}
	})

	t.Run("overrides are applied", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()
		SetDefaults()
		viper.Set("prefetch.max_concurrent", 1)
		viper.Set("device.effective_type", "2g")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Prefetch.MaxConcurrent != 1 {
			t.Errorf("MaxConcurrent = %d, want 1", cfg.Prefetch.MaxConcurrent)
		}
		if cfg.Device.EffectiveType != "2g" {
			t.Errorf("EffectiveType = %q, want 2g", cfg.Device.EffectiveType)
		}
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()
		SetDefaults()
		viper.Set("prefetch.max_concurrent", 0)

		if _, err := Load(); err == nil {
			t.Fatal("Load() should fail for max_concurrent=0")
		}
		if cfg := Get(); cfg.Prefetch.MaxConcurrent != 3 {
			t.Errorf("Get() should fall back to defaults, got %d", cfg.Prefetch.MaxConcurrent)
		}
	})
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	if got := ConfigDir(); got != filepath.Join("/tmp/xdg", "prewarm") {
		t.Errorf("ConfigDir() = %q", got)
	}
	if got := ConfigFile(); got != filepath.Join("/tmp/xdg", "prewarm", "prewarm.yaml") {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestStorageConfig_Resolve(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/data")

	s := StorageConfig{}
	if got := s.ResolveSessionDir(); got != filepath.Join("/tmp/data", "prewarm", "session") {
		t.Errorf("ResolveSessionDir() = %q", got)
	}
	if got := s.ResolveLocalDB(); got != filepath.Join("/tmp/data", "prewarm", "prewarm.db") {
		t.Errorf("ResolveLocalDB() = %q", got)
	}

	s = StorageConfig{SessionDir: "/var/prewarm", LocalDB: "/var/prewarm.db"}
	if s.ResolveSessionDir() != "/var/prewarm" || s.ResolveLocalDB() != "/var/prewarm.db" {
		t.Error("explicit paths should be returned unchanged")
	}
}
