package app

import (
	"context"
	"errors"
	"time"

	"hivemind/internal/storage"
	logx "hivemind/pkg/logx"
)

// run drives the world: one Step, one planning pass and one scheduling pass
// per interval.
func (a *App) run(ctx context.Context) error {
	t := time.NewTicker(a.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		tick := a.step(ctx)
		if a.maxTicks > 0 && tick >= a.maxTicks {
			a.stopReason.CompareAndSwap(nil, StopMaxTicks)
			a.log.Info("app.max_ticks", logx.Tick(tick))
			a.sup.Cancel()
			return nil
		}
	}
}

// step runs a single tick and returns it.
func (a *App) step(ctx context.Context) uint64 {
	a.world.Step()
	snap := a.world.Snapshot()
	queued := a.world.Plan(snap, a.sched)
	rep := a.sched.Tick(ctx, snap)

	tick := snap.Tick()
	a.lastTick.Store(tick)
	a.lastTickAt.Store(time.Now().UnixNano())
	if queued > 0 || rep.Assigned > 0 {
		a.log.Debug("app.tick", logx.Tick(tick), logx.Int("queued", queued), logx.Int("assigned", rep.Assigned),
			logx.Int("live", rep.Live))
	}

	if a.store != nil && a.persist.Load().Due(tick) {
		a.save(ctx, tick)
	}
	return tick
}

// save writes the live task set. Failures are logged and counted; the loop
// keeps running.
func (a *App) save(ctx context.Context, tick uint64) {
	start := time.Now()
	err := a.store.SaveTasks(ctx, storage.Snapshot{Tick: tick, Tasks: a.sched.Records()})
	a.met.ObservePersist("save", err, time.Since(start))
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("app.persist_failed", logx.Tick(tick), logx.Err(err))
	}
}

// restore loads the last saved task set. The world is regenerated from its
// seed, so tasks that point at objects it no longer has are dropped by the
// first sweep.
func (a *App) restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	start := time.Now()
	snap, ok, err := a.store.LoadTasks(ctx)
	a.met.ObservePersist("load", err, time.Since(start))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	a.world.Resume(snap.Tick)
	n := a.sched.Restore(snap.Tick, snap.Tasks)
	a.lastTick.Store(snap.Tick)
	a.log.Info("app.restored", logx.Tick(snap.Tick), logx.Int("tasks", n))
	return nil
}
