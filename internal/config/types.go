package config

import (
	"hivemind/internal/provision"
	"hivemind/internal/sim"
	"hivemind/internal/task/scheduler"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Scheduler tunes the per-tick scheduling pass. Cadence fields are
	// cadence strings ("50", "every:50", "@every 30s", cron specs, "off").
	Scheduler scheduler.Config `json:"scheduler"`

	// Provisioning controls the worker pool. If omitted, provisioning is enabled
	// with defaults.
	Provisioning *ProvisioningConfig `json:"provisioning,omitempty"`

	// Storage persists the live task set. Nil means disabled.
	Storage *StorageConfig `json:"storage,omitempty"`

	Debug DebugConfig `json:"debug,omitempty"`

	// Sim describes the demo world. Changes take effect on restart.
	Sim sim.Config `json:"sim"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ProvisioningConfig wraps the pool settings.
//
// Enabled is a pointer so we can distinguish "omitted" (default on) from an
// explicit false.
type ProvisioningConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	provision.Config
}

// IsEnabled reports the effective switch; a nil section means enabled.
func (p *ProvisioningConfig) IsEnabled() bool {
	if p == nil || p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// Pool returns the pool settings, defaults when the section is omitted.
func (p *ProvisioningConfig) Pool() provision.Config {
	if p == nil {
		return provision.Config{}
	}
	return p.Config
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./state/tasks.zst", "persist_every": "10" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// PersistEvery is a cadence string; empty means every tick.
	PersistEvery string `json:"persist_every,omitempty"`
}

// DebugConfig controls the optional debug HTTP server (/healthz, /metrics,
// /debug/scheduler, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // pprof prefix, default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
