package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "prefetch.max_concurrent")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidEffectiveTypes returns the accepted network effective types
func ValidEffectiveTypes() []string {
	return []string{"slow-2g", "2g", "3g", "4g"}
}

// ValidServerModes returns the accepted gin modes
func ValidServerModes() []string {
	return []string{"debug", "release", "test"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePrefetch()...)
	errors = append(errors, c.validateDevice()...)
	errors = append(errors, c.validateHTTP()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validatePrefetch() []ValidationError {
	var errors []ValidationError
	p := c.Prefetch

	if p.MaxConcurrent < 1 {
		errors = append(errors, ValidationError{
			Field:   "prefetch.max_concurrent",
			Value:   p.MaxConcurrent,
			Message: "must be at least 1",
		})
	}
	if p.HistoryLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "prefetch.history_limit",
			Value:   p.HistoryLimit,
			Message: "must be at least 1",
		})
	}

	nonNegative := []struct {
		field string
		value int
	}{
		{"prefetch.cache_hit_threshold_ms", p.CacheHitThresholdMs},
		{"prefetch.critical_delay_ms", p.CriticalDelayMs},
		{"prefetch.low_end_critical_delay_ms", p.LowEndCriticalDelayMs},
		{"prefetch.step_delay_ms", p.StepDelayMs},
		{"prefetch.secondary_delay_ms", p.SecondaryDelayMs},
		{"prefetch.idle_timeout_ms", p.IdleTimeoutMs},
		{"prefetch.tertiary_delay_ms", p.TertiaryDelayMs},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			errors = append(errors, ValidationError{
				Field:   f.field,
				Value:   f.value,
				Message: "must be non-negative",
			})
		}
	}

	return errors
}

func (c *Config) validateDevice() []ValidationError {
	var errors []ValidationError

	if c.Device.HardwareConcurrency < 0 {
		errors = append(errors, ValidationError{
			Field:   "device.hardware_concurrency",
			Value:   c.Device.HardwareConcurrency,
			Message: "must be non-negative",
		})
	}
	if c.Device.EffectiveType != "" && !slices.Contains(ValidEffectiveTypes(), c.Device.EffectiveType) {
		errors = append(errors, ValidationError{
			Field:   "device.effective_type",
			Value:   c.Device.EffectiveType,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidEffectiveTypes(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateHTTP() []ValidationError {
	var errors []ValidationError
	h := c.HTTP

	if h.BaseURL != "" {
		u, err := url.Parse(h.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "http.base_url",
				Value:   h.BaseURL,
				Message: "must be an absolute http or https URL",
			})
		}
	}
	if h.TimeoutMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "http.timeout_ms",
			Value:   h.TimeoutMs,
			Message: "must be at least 1",
		})
	}
	if h.RequestsPerSecond < 0 {
		errors = append(errors, ValidationError{
			Field:   "http.requests_per_second",
			Value:   h.RequestsPerSecond,
			Message: "must be non-negative",
		})
	}
	if h.RequestsPerSecond > 0 && h.Burst < 1 {
		errors = append(errors, ValidationError{
			Field:   "http.burst",
			Value:   h.Burst,
			Message: "must be at least 1 when rate limiting is enabled",
		})
	}
	if h.AssetConcurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "http.asset_concurrency",
			Value:   h.AssetConcurrency,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Value:   c.Server.Port,
			Message: "must be between 1 and 65535",
		})
	}
	if !slices.Contains(ValidServerModes(), c.Server.Mode) {
		errors = append(errors, ValidationError{
			Field:   "server.mode",
			Value:   c.Server.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidServerModes(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
