package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hivemind/internal/capacity"
	"hivemind/internal/config"
	"hivemind/internal/eventbus"
	"hivemind/internal/metrics"
	"hivemind/internal/observability/debugsrv"
	"hivemind/internal/provision"
	"hivemind/internal/runtime/supervisor"
	"hivemind/internal/sim"
	"hivemind/internal/storage"
	"hivemind/internal/task"
	"hivemind/internal/task/cadence"
	"hivemind/internal/task/scheduler"
	logx "hivemind/pkg/logx"
)

// App hosts one world and its scheduler: config -> logging -> storage ->
// world -> scheduler, one scheduling pass per tick.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	reg   *prometheus.Registry
	met   *metrics.Metrics
	store storage.Store

	world *sim.World
	gate  *capacity.Gate
	pool  *provision.Pool
	prov  *switchProvisioner
	sched *scheduler.Service
	debug *debugsrv.Service
	dcfg  debugsrv.Config

	interval time.Duration
	maxTicks uint64
	persist  atomic.Pointer[cadence.Cadence]

	lastTick   atomic.Uint64
	lastTickAt atomic.Int64
	stopReason atomic.Value // StopReason
}

// New builds the app from a config file. An empty path runs on defaults
// without hot reload.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	var cfg *config.Config
	if cfgPath == "" {
		cfg = config.Default()
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
		cfgm.Commit(cfg)
	} else {
		var err error
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	}
	return build(cfgm, cfg)
}

func build(cfgm *config.ConfigManager, cfg *config.Config) (*App, error) {
	logs, root := logx.New(mapLogging(cfg.Logging))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root)

	interval, err := config.ParseDurationOrDefault("sim.tick_interval", cfg.Sim.TickInterval, 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	persist, err := persistCadence(cfg)
	if err != nil {
		return nil, err
	}
	dcfg, err := mapDebugConfig(cfg.Debug)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.MustNew(reg)

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		if store, err = storage.Open(sc, root); err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		log.Info("app.storage_enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	w, err := sim.New(cfg.Sim, root)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("build world: %w", err)
	}

	templates := task.NewRegistry()
	w.Register(templates)
	gate := capacity.New(root)
	w.DefineZones(gate)
	bus := eventbus.New()

	pool := provision.New(cfg.Provisioning.Pool(), w.Spawners(), provision.Options{
		Population: w.Population,
		Locate:     w.Locate,
		Metric:     w.Metric(),
		Metrics:    met,
	}, root)
	prov := &switchProvisioner{next: pool}
	prov.enabled.Store(cfg.Provisioning.IsEnabled())

	sched := scheduler.New(cfg.Scheduler, templates, scheduler.Deps{
		Gate:        gate,
		Router:      w.Router(gate),
		Provisioner: prov,
		Sources:     w.WorkSources(),
		Metric:      w.Metric(),
		Bus:         bus,
		Metrics:     met,
	}, root)
	pool.SetRefill(sched)

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logs,
		bus:      bus,
		reg:      reg,
		met:      met,
		store:    store,
		world:    w,
		gate:     gate,
		pool:     pool,
		prov:     prov,
		sched:    sched,
		dcfg:     dcfg,
		interval: interval,
		maxTicks: cfg.Sim.MaxTicks,
	}
	a.persist.Store(&persist)

	a.debug = debugsrv.New(dcfg, debugsrv.Sources{
		Health:   a.health,
		Gatherer: reg,
		State:    func() any { return a.State() },
	}, root)
	return a, nil
}

// switchProvisioner lets hot reload turn provisioning off without rebuilding
// the scheduler.
type switchProvisioner struct {
	enabled atomic.Bool
	next    scheduler.Provisioner
}

func (p *switchProvisioner) RequestWorkers(d scheduler.Demand) {
	if p.enabled.Load() {
		p.next.RequestWorkers(d)
	}
}

// Done is closed when the app stops running, on error, max ticks or Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Reason reports why Done fired.
func (a *App) Reason() StopReason {
	if r, ok := a.stopReason.Load().(StopReason); ok {
		return r
	}
	if a.Err() != nil {
		return StopFatalError
	}
	return StopUnknown
}

// Start restores the persisted task set and launches the tick loop, config
// reload and the debug server.
func (a *App) Start(ctx context.Context) error {
	if err := a.restore(ctx); err != nil {
		return err
	}

	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return config.Validate(cfg) })
	a.lastTickAt.Store(time.Now().UnixNano())
	a.debug.Reconfigure(a.sup.Context(), a.dcfg)

	a.sup.Go("sim.loop", a.run)
	a.sup.Go("sim.speech", func(c context.Context) error { return a.world.Listen(c, a.bus) })
	if a.cfgm.Path() != "" {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go("config.reload", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			return a.reloadLoop(c, sub)
		})
		a.sup.GoRestart("config.watch", a.cfgm.Watch)
	}
	if w := watchdogInterval(); w > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error { return a.watchdog(c, w) })
	}

	notifyReady(a.log)
	a.log.Info("app.started", logx.Duration("tick_interval", a.interval), logx.Uint64("max_ticks", a.maxTicks),
		logx.Bool("provisioning", a.prov.enabled.Load()), logx.String("debug", a.debug.Addr()))
	return nil
}

// Stop shuts everything down within ctx. The task set is saved one last time.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.stopReason.CompareAndSwap(nil, reason)
	a.log.Info("app.stopping", logx.String("reason", string(a.Reason())))
	notifyStopping(a.log, a.Reason())

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > max {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("app.stop_step_failed", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("app.stop_step", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("app.stop_step_deadline", logx.String("name", name), logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	// The loop must be gone before the final save.
	if a.sup != nil {
		step("supervisor", 3*time.Second, a.sup.Stop)
	}
	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("storage", 2*time.Second, func(c context.Context) error {
		if a.store == nil {
			return nil
		}
		a.save(c, a.lastTick.Load())
		return a.store.Close()
	})

	a.log.Info("app.stopped", logx.Uint64("tick", a.lastTick.Load()))
	return a.logs.Close()
}

func (a *App) health() error {
	if a.sup != nil {
		if err := a.Err(); err != nil {
			return err
		}
	}
	last := time.Unix(0, a.lastTickAt.Load())
	if stall := time.Since(last); stall > 10*a.interval+5*time.Second {
		return fmt.Errorf("tick loop stalled for %s", stall.Round(time.Millisecond))
	}
	return nil
}

// State is the JSON document served at /debug/scheduler.
type State struct {
	Scheduler  scheduler.Snapshot  `json:"scheduler"`
	Zones      []capacity.ZoneStat `json:"zones"`
	Provision  provision.Stats     `json:"provision"`
	World      sim.Status          `json:"world"`
	Supervisor supervisor.Snapshot `json:"supervisor"`
	BusDropped uint64              `json:"bus_dropped"`
}

func (a *App) State() State {
	return State{
		Scheduler:  a.sched.Snapshot(),
		Zones:      a.gate.Stats(),
		Provision:  a.pool.Stats(),
		World:      a.world.Status(),
		Supervisor: a.sup.Snapshot(),
		BusDropped: a.bus.Dropped(),
	}
}
