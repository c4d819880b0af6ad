package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"max concurrent zero", func(c *Config) { c.Prefetch.MaxConcurrent = 0 }, "prefetch.max_concurrent"},
		{"history limit zero", func(c *Config) { c.Prefetch.HistoryLimit = 0 }, "prefetch.history_limit"},
		{"negative step delay", func(c *Config) { c.Prefetch.StepDelayMs = -1 }, "prefetch.step_delay_ms"},
		{"negative cores", func(c *Config) { c.Device.HardwareConcurrency = -2 }, "device.hardware_concurrency"},
		{"unknown effective type", func(c *Config) { c.Device.EffectiveType = "5g" }, "device.effective_type"},
		{"relative base url", func(c *Config) { c.HTTP.BaseURL = "app.example.com" }, "http.base_url"},
		{"zero timeout", func(c *Config) { c.HTTP.TimeoutMs = 0 }, "http.timeout_ms"},
		{"zero burst with limit", func(c *Config) { c.HTTP.Burst = 0 }, "http.burst"},
		{"zero asset concurrency", func(c *Config) { c.HTTP.AssetConcurrency = 0 }, "http.asset_concurrency"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad server mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), ValidationErrors(errs))
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidate_AcceptsValidValues(t *testing.T) {
	cfg := Default()
	cfg.HTTP.BaseURL = "https://app.example.com"
	cfg.HTTP.RequestsPerSecond = 0
	cfg.HTTP.Burst = 0
	cfg.Device.EffectiveType = "slow-2g"
	cfg.Logging.Level = "DEBUG"

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", ValidationErrors(errs))
	}
}

func TestValidationErrors_Error(t *testing.T) {
	if got := (ValidationErrors{}).Error(); got != "" {
		t.Errorf("empty Error() = %q", got)
	}

	one := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
	if got := one.Error(); got != "a: bad (got: 1)" {
		t.Errorf("single Error() = %q", got)
	}

	two := ValidationErrors{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}
	if got := two.Error(); !strings.HasPrefix(got, "2 validation errors:") {
		t.Errorf("multi Error() = %q", got)
	}
}
