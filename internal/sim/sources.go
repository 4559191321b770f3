package sim

import (
	"sort"

	"hivemind/internal/task"
	"hivemind/internal/task/scheduler"
	"hivemind/internal/world"
)

// WorkSources returns the idle-worker fallbacks in the order they are
// offered: retire old workers, spend carried energy, then go harvest.
func (w *World) WorkSources() []scheduler.WorkSource {
	return []scheduler.WorkSource{
		scheduler.WorkSourceFunc(w.offerRecycle),
		scheduler.WorkSourceFunc(w.offerDeposit),
		scheduler.WorkSourceFunc(w.offerBuild),
		scheduler.WorkSourceFunc(w.offerUpgrade),
		scheduler.WorkSourceFunc(w.offerHarvest),
	}
}

// bindNearest tries targets nearest first and binds wk to the first one that
// accepts it.
func (w *World) bindNearest(wk world.Worker, b scheduler.Binder, name string, targets []world.Entity) bool {
	sort.SliceStable(targets, func(i, j int) bool {
		return w.metric.Distance(wk.Pos, targets[i].Pos) < w.metric.Distance(wk.Pos, targets[j].Pos)
	})
	for _, e := range targets {
		t, ok := b.Create(name, e.ID, task.Overrides{})
		if ok && b.Bind(t, wk) {
			return true
		}
	}
	return false
}

func (w *World) offerRecycle(c task.Context, wk world.Worker, b scheduler.Binder) bool {
	if wk.TicksToLive <= 0 || wk.TicksToLive > w.cfg.RecycleBelow {
		return false
	}
	return w.bindNearest(wk, b, RecycleTask, world.OfKind(c.World, KindSpawn))
}

func (w *World) offerDeposit(c task.Context, wk world.Worker, b scheduler.Binder) bool {
	if wk.Empty() || !wk.Has(world.Carry) {
		return false
	}
	var hungry []world.Entity
	for _, e := range world.OfKind(c.World, KindSpawn) {
		if e.Attr(world.AttrEnergy) < e.Attr(world.AttrEnergyCapacity) {
			hungry = append(hungry, e)
		}
	}
	return w.bindNearest(wk, b, DepositTask, hungry)
}

func (w *World) offerBuild(c task.Context, wk world.Worker, b scheduler.Binder) bool {
	if wk.Empty() || !task.HasCapabilities(wk, workCarry) {
		return false
	}
	return w.bindNearest(wk, b, BuildTask, world.OfKind(c.World, KindSite))
}

func (w *World) offerUpgrade(c task.Context, wk world.Worker, b scheduler.Binder) bool {
	if wk.Empty() || !task.HasCapabilities(wk, workCarry) {
		return false
	}
	return w.bindNearest(wk, b, UpgradeTask, world.OfKind(c.World, KindController))
}

func (w *World) offerHarvest(c task.Context, wk world.Worker, b scheduler.Binder) bool {
	if wk.Full() || !task.HasCapabilities(wk, workCarry) {
		return false
	}
	var live []world.Entity
	for _, e := range world.OfKind(c.World, KindSource) {
		if e.Attr(world.AttrEnergy) > 0 {
			live = append(live, e)
		}
	}
	return w.bindNearest(wk, b, HarvestTask, live)
}
