// Package device classifies the client device from hardware and network
// signals so the scheduler can back off on constrained clients.
package device

import (
	"runtime"
	"strings"
)

// Effective network types that mark a device as low end.
const (
	EffectiveSlow2G = "slow-2g"
	Effective2G     = "2g"
)

// UnknownConnection is reported when no effective type is available.
const UnknownConnection = "unknown"

const (
	lowEndMaxCores  = 2
	highEndMinCores = 8
)

// Signals exposes the raw inputs to Detect. Implementations may return 0
// or "" when a signal is unavailable.
type Signals interface {
	HardwareConcurrency() int
	EffectiveType() string
}

// Capabilities is the classification derived from Signals.
type Capabilities struct {
	IsLowEnd       bool   `json:"is_low_end"`
	IsHighEnd      bool   `json:"is_high_end"`
	ConnectionType string `json:"connection_type"`
}

// Detect classifies s. It reads the signals on every call; nothing is
// cached.
//
// A device is low end when it has at most two cores (a missing core count
// reads as zero and therefore low end) or when the network is slow-2g/2g.
// It is high end with eight or more cores. A many-core device on a 2g
// network is both.
func Detect(s Signals) Capabilities {
	cores := s.HardwareConcurrency()
	effective := strings.ToLower(strings.TrimSpace(s.EffectiveType()))

	caps := Capabilities{
		IsLowEnd:       cores <= lowEndMaxCores || effective == EffectiveSlow2G || effective == Effective2G,
		IsHighEnd:      cores >= highEndMinCores,
		ConnectionType: effective,
	}
	if caps.ConnectionType == "" {
		caps.ConnectionType = UnknownConnection
	}
	return caps
}

// StaticSignals is a fixed set of signals, typically reported by a browser.
type StaticSignals struct {
	Cores     int
	Effective string
}

// HardwareConcurrency implements Signals.
func (s StaticSignals) HardwareConcurrency() int { return s.Cores }

// EffectiveType implements Signals.
func (s StaticSignals) EffectiveType() string { return s.Effective }

// HostSignals reports the local machine's CPU count. Both values may be
// overridden from configuration; a zero CoresOverride means "use the host".
type HostSignals struct {
	CoresOverride int
	Effective     string
}

// HardwareConcurrency implements Signals.
func (h HostSignals) HardwareConcurrency() int {
	if h.CoresOverride > 0 {
		return h.CoresOverride
	}
	return runtime.NumCPU()
}

// EffectiveType implements Signals.
func (h HostSignals) EffectiveType() string { return h.Effective }
