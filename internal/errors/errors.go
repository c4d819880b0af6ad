// Package errors provides centralized error definitions for prewarm.
//
// Prefetching is best effort: nothing in this package is ever surfaced to
// an end user. The typed errors exist so that failures can be logged with
// the route or feature that caused them and classified for log severity.
//
// # Error Types
//
//   - LoadError: a route module load failed
//   - DependencyError: a feature bundle load failed
//   - HTTPError: an upstream responded with a non-2xx status
//   - ConfigError: configuration or manifest could not be used
//
// # Usage
//
//	err := errors.NewLoadError("contratos", cause)
//
//	var loadErr *errors.LoadError
//	if errors.As(err, &loadErr) { ... }
//
//	if errors.IsRetryable(err) {
//	    logger.Warn(...) // transient, the route loads on demand instead
//	}
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are only interesting while debugging.
	SeverityDebug Severity = iota
	// SeverityWarning is for recoverable failures such as a failed prefetch.
	SeverityWarning
	// SeverityError is for failures that stop an operation.
	SeverityError
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnknownFeature indicates a feature tag with no declared bundle.
	ErrUnknownFeature = New("unknown feature")
	// ErrUnknownInteraction indicates an interaction kind that is not tracked.
	ErrUnknownInteraction = New("unknown interaction kind")
	// ErrManifestInvalid indicates a route manifest that failed validation.
	ErrManifestInvalid = New("route manifest is invalid")
	// ErrNotStarted indicates an operation that requires a started orchestrator.
	ErrNotStarted = New("orchestrator not started")
	// ErrAlreadyStarted indicates a second Start on the same orchestrator.
	ErrAlreadyStarted = New("orchestrator already started")
	// ErrNoLoader indicates a route descriptor without a load function.
	ErrNoLoader = New("route has no loader")
)

// -----------------------------------------------------------------------------
// Typed Errors
// -----------------------------------------------------------------------------

// LoadError records a failed route module load.
type LoadError struct {
	Route string
	Err   error
}

// NewLoadError creates a LoadError for the named route.
func NewLoadError(route string, cause error) *LoadError {
	return &LoadError{Route: route, Err: cause}
}

func (e *LoadError) Error() string {
	if e.Route == "" {
		return fmt.Sprintf("prefetch failed: %v", e.Err)
	}
	return fmt.Sprintf("prefetch failed [route=%s]: %v", e.Route, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DependencyError records a failed feature bundle load.
type DependencyError struct {
	Feature string
	Err     error
}

// NewDependencyError creates a DependencyError for the given feature tag.
func NewDependencyError(feature string, cause error) *DependencyError {
	return &DependencyError{Feature: feature, Err: cause}
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("failed to load feature dependency [feature=%s]: %v", e.Feature, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// HTTPError records a non-2xx response while fetching a module or asset.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// ConfigError records an unusable configuration or manifest value.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// WithCause attaches an underlying error.
func (e *ConfigError) WithCause(cause error) *ConfigError {
	e.Err = cause
	return e
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsRetryable reports whether err looks transient: a timeout, a network
// failure, or an upstream 5xx/429. Prefetching never retries; this only
// decides how loudly a failure is logged.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr *HTTPError
	if As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
	}

	// *net.OpError also implements net.Error; a refused dial is transient
	// even though it is not a timeout.
	var opErr *net.OpError
	if As(err, &opErr) {
		return true
	}

	var netErr net.Error
	if As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// GetSeverity returns the log severity for err. Load and dependency
// failures are warnings; configuration failures are errors.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var cfgErr *ConfigError
	if As(err, &cfgErr) || Is(err, ErrManifestInvalid) {
		return SeverityError
	}
	if Is(err, context.Canceled) {
		return SeverityDebug
	}
	return SeverityWarning
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
