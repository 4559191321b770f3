package config

import (
	"errors"
	"fmt"
	"strings"

	logx "hivemind/pkg/logx"
)

var knownDrivers = map[string]bool{"": true, "none": true, "memory": true, "mem": true, "file": true, "sqlite": true, "sqlite3": true}

// Validate checks values the JSON decoder cannot: levels, durations,
// cadences and driver names. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		add(fmt.Errorf("logging.level: unknown level %q", lv))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path is required when logging.file.enabled"))
	}

	_, err := ParseCadenceField("scheduler.escalate_every", cfg.Scheduler.EscalateEvery)
	add(err)
	if cfg.Scheduler.MaxPrerequisiteDepth < 0 {
		add(errors.New("scheduler.max_prerequisite_depth must be >= 0"))
	}

	if p := cfg.Provisioning; p != nil {
		if p.MaxWorkers < 0 {
			add(errors.New("provisioning.max_workers must be >= 0"))
		}
		if p.PartBudget < 0 {
			add(errors.New("provisioning.part_budget must be >= 0"))
		}
	}

	if s := cfg.Storage; s != nil {
		d := strings.ToLower(strings.TrimSpace(s.Driver))
		if !knownDrivers[d] {
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if (d == "file" || d == "sqlite" || d == "sqlite3") && strings.TrimSpace(s.Path) == "" {
			add(fmt.Errorf("storage.path is required for driver %q", d))
		}
		_, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
		_, err = ParseCadenceField("storage.persist_every", s.PersistEvery)
		add(err)
	}

	for _, f := range []struct{ path, raw string }{
		{"debug.read_timeout", cfg.Debug.ReadTimeout},
		{"debug.write_timeout", cfg.Debug.WriteTimeout},
		{"debug.idle_timeout", cfg.Debug.IdleTimeout},
	} {
		_, err := ParseDurationField(f.path, f.raw)
		add(err)
	}

	if err := cfg.Sim.Validate(); err != nil {
		add(fmt.Errorf("sim: %w", err))
	}
	_, err = ParseDurationField("sim.tick_interval", cfg.Sim.TickInterval)
	add(err)

	return errors.Join(errs...)
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: &StorageConfig{Driver: "memory"},
		Debug:   DebugConfig{Addr: "127.0.0.1:6060"},
	}
}
