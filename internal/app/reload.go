package app

import (
	"context"
	"strings"

	"hivemind/internal/config"
	logx "hivemind/pkg/logx"
)

// reloadLoop applies configs published by the watcher. Bursts are coalesced
// so only the newest config is applied.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) error {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case newCfg := <-sub:
			if newCfg == nil {
				continue
			}
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("app.config_unchanged")
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("app.config_reloaded", fields...)
			if restart := config.RestartRequired(sections); len(restart) > 0 {
				a.log.Warn("app.restart_required", logx.Strings("sections", restart))
			}
			a.apply(ctx, newCfg)
			lastApplied = newCfg
		}
	}
}

// apply pushes the live-tunable parts of cfg into the running services.
func (a *App) apply(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(mapLogging(cfg.Logging))

	a.sched.Apply(cfg.Scheduler)
	a.pool.Apply(cfg.Provisioning.Pool())
	a.prov.enabled.Store(cfg.Provisioning.IsEnabled())

	if c, err := persistCadence(cfg); err != nil {
		a.log.Warn("app.persist_cadence_invalid", logx.Err(err))
	} else {
		a.persist.Store(&c)
	}

	dcfg, err := mapDebugConfig(cfg.Debug)
	if err != nil {
		a.log.Warn("app.debug_config_invalid", logx.Err(err))
		return
	}
	a.dcfg = dcfg
	a.debug.Reconfigure(ctx, dcfg)
}
