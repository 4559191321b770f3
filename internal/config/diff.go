package config

import (
	"reflect"
	"sort"
	"strings"

	logx "hivemind/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		s := newCfg.Scheduler
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.escalate_every", s.EscalateEvery),
			logx.Bool("scheduler.recurse_prerequisites", s.RecursePrerequisites),
			logx.Bool("scheduler.no_preempt", s.NoPreempt),
			logx.Int("scheduler.circuit_trip_failures", s.CircuitTripFailures),
		)
	}

	if oldCfg.Provisioning.IsEnabled() != newCfg.Provisioning.IsEnabled() ||
		!reflect.DeepEqual(oldCfg.Provisioning.Pool(), newCfg.Provisioning.Pool()) {
		p := newCfg.Provisioning.Pool()
		changed = append(changed, "provisioning")
		attrs = append(attrs,
			logx.Bool("provisioning.enabled", newCfg.Provisioning.IsEnabled()),
			logx.Int("provisioning.max_workers", p.MaxWorkers),
			logx.Uint64("provisioning.cooldown_ticks", p.CooldownTicks),
			logx.Int("provisioning.part_budget", p.PartBudget),
		)
	}

	// Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) ||
		strings.TrimSpace(oS.PersistEvery) != strings.TrimSpace(nS.PersistEvery) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.persist_every", strings.TrimSpace(nS.PersistEvery)),
		)
	}

	// Debug server (never log token)
	oD, nD := oldCfg.Debug, newCfg.Debug
	tokenChanged := oD.Token != nD.Token
	oD.Token, nD.Token = "", ""
	if tokenChanged || oD != nD {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nD.Enabled),
			logx.String("debug.addr", strings.TrimSpace(nD.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
			logx.Bool("debug.allow_insecure", nD.AllowInsecure),
		)
	}

	if oldCfg.Sim != newCfg.Sim {
		changed = append(changed, "sim")
		attrs = append(attrs,
			logx.Int64("sim.seed", newCfg.Sim.Seed),
			logx.String("sim.tick_interval", newCfg.Sim.TickInterval),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that cannot be applied at runtime.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if s == "storage" || s == "sim" {
			out = append(out, s)
		}
	}
	return out
}
