package sim

import (
	"hivemind/internal/task"
	"hivemind/internal/world"
)

// Template names registered by World.Register.
const (
	HarvestTask = "harvest"
	DepositTask = "deposit"
	BuildTask   = "build"
	RepairTask  = "repair"
	UpgradeTask = "upgrade"
	FetchTask   = "fetch"
	RecycleTask = "recycle"
	DefendTask  = "defend"
)

const (
	// repairBelow is the hit percentage under which structures get a repair task.
	repairBelow = 40
	// fetchAtLeast is the share of free capacity, in percent, a drop must fill.
	fetchAtLeast = 10
)

var (
	workCarry = []world.Capability{world.Work, world.Carry}
	carryOnly = []world.Capability{world.Carry}
)

// Register adds the demo templates to reg. Their behaviors act on w.
func (w *World) Register(reg *task.Registry) {
	reg.Register(HarvestTask, task.Definition{Requires: workCarry, Behavior: harvest{w}, Label: "Harvesting"})
	reg.Register(DepositTask, task.Definition{Requires: carryOnly, Behavior: deposit{w}, Priority: 2, Label: "Depositing"})
	reg.Register(BuildTask, task.Definition{Requires: workCarry, Behavior: build{w}, Range: 3, Priority: 1, Label: "Building"})
	reg.Register(RepairTask, task.Definition{Requires: workCarry, Behavior: repair{w}, Range: 3, Label: "Repairing"})
	reg.Register(UpgradeTask, task.Definition{Requires: workCarry, Behavior: upgrade{w}, Range: 3, Priority: 1, Label: "Upgrading"})
	reg.Register(FetchTask, task.Definition{Requires: carryOnly, Behavior: fetch{w}, Priority: 3, Label: "Fetching"})
	reg.Register(RecycleTask, task.Definition{Requires: []world.Capability{world.Move}, Behavior: recycle{w}, Priority: 5, Label: "Recycling"})
	reg.Register(DefendTask, task.Definition{
		Requires:  []world.Capability{world.Attack},
		Behavior:  defend{w},
		Triggered: true,
		Priority:  10,
		Label:     "Defending",
	})
}

// nearestSource picks the closest source that still has energy, or the
// closest source at all when every one is dry.
func (w *World) nearestSource(snap world.Snapshot, from world.Position) (world.ID, bool) {
	var best, dry world.ID
	bestD, dryD := world.FarAway+1, world.FarAway+1
	for _, e := range world.OfKind(snap, KindSource) {
		d := w.metric.Distance(from, e.Pos)
		if e.Attr(world.AttrEnergy) > 0 && d < bestD {
			best, bestD = e.ID, d
		}
		if d < dryD {
			dry, dryD = e.ID, d
		}
	}
	if !best.IsNone() {
		return best, true
	}
	return dry, !dry.IsNone()
}

// refuel is the prerequisite of every task that spends carried energy.
func (w *World) refuel(c task.Context, dest world.Entity) []task.Request {
	src, ok := w.nearestSource(c.World, dest.Pos)
	if !ok {
		return nil
	}
	return []task.Request{{Name: HarvestTask, Destination: src}}
}

type harvest struct{ w *World }

func (harvest) CanExecute(_ task.Context, wk world.Worker, dest world.Entity) bool {
	return dest.Kind == KindSource && !wk.Full() && dest.Attr(world.AttrEnergy) > 0
}
func (h harvest) Execute(_ task.Context, wk world.Worker, dest world.Entity) task.Result {
	return result(h.w.Harvest(wk.ID, dest.ID))
}
func (harvest) IsComplete(_ task.Context, wk world.Worker, _ world.Entity) bool { return wk.Full() }
func (harvest) Prerequisites(task.Context, world.Worker, world.Entity) []task.Request {
	return nil
}
func (harvest) TriggerCondition(task.Context, world.Entity) bool { return false }

type deposit struct{ w *World }

func (deposit) CanExecute(_ task.Context, wk world.Worker, dest world.Entity) bool {
	return wk.Load > 0 && dest.Attr(world.AttrEnergy) < dest.Attr(world.AttrEnergyCapacity)
}
func (d deposit) Execute(_ task.Context, wk world.Worker, dest world.Entity) task.Result {
	return result(d.w.Deposit(wk.ID, dest.ID))
}
func (deposit) IsComplete(_ task.Context, wk world.Worker, dest world.Entity) bool {
	return wk.Empty() || dest.Attr(world.AttrEnergy) >= dest.Attr(world.AttrEnergyCapacity)
}
func (d deposit) Prerequisites(c task.Context, _ world.Worker, dest world.Entity) []task.Request {
	return d.w.refuel(c, dest)
}
func (deposit) TriggerCondition(task.Context, world.Entity) bool { return false }

type build struct{ w *World }

func (build) CanExecute(_ task.Context, wk world.Worker, dest world.Entity) bool {
	return wk.Load > 0 && dest.Kind == KindSite
}
func (b build) Execute(_ task.Context, wk world.Worker, dest world.Entity) task.Result {
	return result(b.w.Build(wk.ID, dest.ID))
}
func (build) IsComplete(_ task.Context, _ world.Worker, dest world.Entity) bool {
	total := dest.Attr(world.AttrProgressTotal)
	return total > 0 && dest.Attr(world.AttrProgress) >= total
}
func (b build) Prerequisites(c task.Context, _ world.Worker, dest world.Entity) []task.Request {
	return b.w.refuel(c, dest)
}
func (build) TriggerCondition(task.Context, world.Entity) bool { return false }

type repair struct{ w *World }

func (repair) CanExecute(_ task.Context, wk world.Worker, _ world.Entity) bool { return wk.Load > 0 }
func (r repair) Execute(_ task.Context, wk world.Worker, dest world.Entity) task.Result {
	return result(r.w.Repair(wk.ID, dest.ID))
}
func (repair) IsComplete(_ task.Context, _ world.Worker, dest world.Entity) bool {
	return dest.Attr(world.AttrHits) >= dest.Attr(world.AttrHitsMax)
}
func (r repair) Prerequisites(c task.Context, _ world.Worker, dest world.Entity) []task.Request {
	return r.w.refuel(c, dest)
}
func (repair) TriggerCondition(task.Context, world.Entity) bool { return false }

type upgrade struct{ w *World }

func (upgrade) CanExecute(_ task.Context, wk world.Worker, _ world.Entity) bool { return wk.Load > 0 }
func (u upgrade) Execute(_ task.Context, wk world.Worker, dest world.Entity) task.Result {
	return result(u.w.Upgrade(wk.ID, dest.ID))
}

// IsComplete: the controller never fills up, so the worker is done once empty.
func (upgrade) IsComplete(_ task.Context, wk world.Worker, _ world.Entity) bool { return wk.Empty() }
func (u upgrade) Prerequisites(c task.Context, _ world.Worker, dest world.Entity) []task.Request {
	return u.w.refuel(c, dest)
}
func (upgrade) TriggerCondition(task.Context, world.Entity) bool { return false }

type fetch struct{ w *World }

func (fetch) CanExecute(_ task.Context, wk world.Worker, dest world.Entity) bool {
	free := wk.Capacity - wk.Load
	if free <= 0 {
		return false
	}
	return dest.Attr(world.AttrEnergy)*100/free >= fetchAtLeast
}
func (f fetch) Execute(_ task.Context, wk world.Worker, dest world.Entity) task.Result {
	return result(f.w.Pickup(wk.ID, dest.ID))
}
func (fetch) IsComplete(_ task.Context, wk world.Worker, dest world.Entity) bool {
	return dest.Attr(world.AttrEnergy) == 0 || wk.Full()
}
func (fetch) Prerequisites(task.Context, world.Worker, world.Entity) []task.Request { return nil }
func (fetch) TriggerCondition(task.Context, world.Entity) bool                       { return false }

// recycle never completes: the worker is gone afterwards and the task is
// dropped as a stale reference.
type recycle struct{ w *World }

func (r recycle) CanExecute(_ task.Context, wk world.Worker, dest world.Entity) bool {
	return dest.Kind == KindSpawn && wk.TicksToLive > 0 && wk.TicksToLive <= r.w.cfg.RecycleBelow
}
func (r recycle) Execute(_ task.Context, wk world.Worker, dest world.Entity) task.Result {
	return result(r.w.Recycle(wk.ID, dest.ID))
}
func (recycle) IsComplete(task.Context, world.Worker, world.Entity) bool              { return false }
func (recycle) Prerequisites(task.Context, world.Worker, world.Entity) []task.Request { return nil }
func (recycle) TriggerCondition(task.Context, world.Entity) bool                       { return false }

// defend is a standing trigger on a structure. It is unassigned, never
// completed, once the hostiles are gone.
type defend struct{ w *World }

func (defend) CanExecute(task.Context, world.Worker, world.Entity) bool { return true }
func (d defend) Execute(_ task.Context, wk world.Worker, dest world.Entity) task.Result {
	return result(d.w.Attack(wk.ID, dest.ID))
}
func (defend) IsComplete(task.Context, world.Worker, world.Entity) bool              { return false }
func (defend) Prerequisites(task.Context, world.Worker, world.Entity) []task.Request { return nil }
func (defend) TriggerCondition(_ task.Context, dest world.Entity) bool {
	return dest.Attr(world.AttrHostiles) > 0
}
