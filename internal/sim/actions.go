package sim

import (
	"hivemind/internal/task"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

// result maps an action error onto what the scheduler understands.
func result(err error) task.Result {
	switch err {
	case nil:
		return task.ResultOK
	case errNotInRange:
		return task.ResultNotInRange
	default:
		return task.ResultRejected
	}
}

// pair resolves a live worker and entity and checks their range.
func (w *World) pair(wid, eid world.ID, rng int) (*world.Worker, *world.Entity, error) {
	wk := w.worker(wid)
	e := w.entity(eid)
	if wk == nil || e == nil {
		return nil, nil, errGone
	}
	if !wk.Pos.InRange(e.Pos, rng) {
		return nil, nil, errNotInRange
	}
	return wk, e, nil
}

func (w *World) free(wk *world.Worker) int { return max(0, wk.Capacity-wk.Load) }

// Harvest moves energy from a source into the worker, two units per work part.
func (w *World) Harvest(wid, source world.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wk, e, err := w.pair(wid, source, 1)
	if err != nil {
		return err
	}
	if e.Kind != KindSource {
		return errWrongKind
	}
	n := min(2*wk.Count(world.Work), e.Attr(world.AttrEnergy), w.free(wk))
	if n <= 0 {
		return errEmpty
	}
	e.Attrs[world.AttrEnergy] -= n
	wk.Load += n
	w.stats.Harvested += n
	return nil
}

// Deposit moves the worker's load into a spawn.
func (w *World) Deposit(wid, target world.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wk, e, err := w.pair(wid, target, 1)
	if err != nil {
		return err
	}
	if e.Kind != KindSpawn {
		return errWrongKind
	}
	room := e.Attr(world.AttrEnergyCapacity) - e.Attr(world.AttrEnergy)
	if room <= 0 {
		return errFull
	}
	n := min(wk.Load, room)
	if n <= 0 {
		return errEmpty
	}
	wk.Load -= n
	e.Attrs[world.AttrEnergy] += n
	w.stats.Deposited += n
	return nil
}

// Build spends up to five energy per work part on a site. A finished site
// turns into a structure under the same handle.
func (w *World) Build(wid, site world.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wk, e, err := w.pair(wid, site, 3)
	if err != nil {
		return err
	}
	if e.Kind != KindSite {
		return errWrongKind
	}
	left := e.Attr(world.AttrProgressTotal) - e.Attr(world.AttrProgress)
	n := min(wk.Load, 5*wk.Count(world.Work), left)
	if n <= 0 {
		return errEmpty
	}
	wk.Load -= n
	e.Attrs[world.AttrProgress] += n
	w.stats.Built += n
	if e.Attrs[world.AttrProgress] >= e.Attrs[world.AttrProgressTotal] {
		e.Kind = KindStructure
		e.Attrs[world.AttrHits] = structureHits
		e.Attrs[world.AttrHitsMax] = structureHits
		e.Attrs[world.AttrHostiles] = 0
		w.grid.solid[w.grid.idx(e.Pos.X, e.Pos.Y)] = true
		w.metric.Purge()
		w.log.Info("sim.built", logx.String("id", string(e.ID)), logx.Tick(w.tick))
	}
	return nil
}

// Repair restores 100 hits per energy unit spent, one unit per work part.
func (w *World) Repair(wid, target world.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wk, e, err := w.pair(wid, target, 3)
	if err != nil {
		return err
	}
	if e.Kind != KindStructure && e.Kind != KindSpawn {
		return errWrongKind
	}
	missing := e.Attr(world.AttrHitsMax) - e.Attr(world.AttrHits)
	if missing <= 0 {
		return errFull
	}
	n := min(wk.Load, wk.Count(world.Work), (missing+99)/100)
	if n <= 0 {
		return errEmpty
	}
	wk.Load -= n
	e.Attrs[world.AttrHits] = min(e.Attr(world.AttrHitsMax), e.Attr(world.AttrHits)+100*n)
	w.stats.Repaired += n
	return nil
}

// Upgrade feeds the controller; every levelProgress*level points is a level.
func (w *World) Upgrade(wid, ctrl world.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wk, e, err := w.pair(wid, ctrl, 3)
	if err != nil {
		return err
	}
	if e.Kind != KindController {
		return errWrongKind
	}
	n := min(wk.Load, 2*wk.Count(world.Work))
	if n <= 0 {
		return errEmpty
	}
	wk.Load -= n
	e.Attrs[world.AttrProgress] += n
	w.stats.Upgraded += n
	if e.Attrs[world.AttrProgress] >= e.Attrs[world.AttrProgressTotal] {
		e.Attrs[world.AttrProgress] -= e.Attrs[world.AttrProgressTotal]
		e.Attrs[AttrLevel]++
		e.Attrs[world.AttrProgressTotal] = levelProgress * e.Attrs[AttrLevel]
		w.log.Info("sim.level_up", logx.Int("level", e.Attrs[AttrLevel]), logx.Tick(w.tick))
	}
	return nil
}

// Pickup takes energy from a drop.
func (w *World) Pickup(wid, drop world.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wk, e, err := w.pair(wid, drop, 1)
	if err != nil {
		return err
	}
	if e.Kind != KindDrop {
		return errWrongKind
	}
	n := min(e.Attr(world.AttrEnergy), w.free(wk))
	if n <= 0 {
		return errEmpty
	}
	e.Attrs[world.AttrEnergy] -= n
	wk.Load += n
	w.stats.Fetched += n
	if e.Attrs[world.AttrEnergy] == 0 {
		w.emptied[e.ID] = w.tick
	}
	return nil
}

// Recycle dissolves the worker at a spawn, refunding part of its body and
// everything it carried.
func (w *World) Recycle(wid, spawn world.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wk, e, err := w.pair(wid, spawn, 1)
	if err != nil {
		return err
	}
	if e.Kind != KindSpawn {
		return errWrongKind
	}
	refund := wk.Load + bodyCost(partTypes(wk))/4
	e.Attrs[world.AttrEnergy] = min(e.Attr(world.AttrEnergyCapacity), e.Attr(world.AttrEnergy)+refund)
	for i, x := range w.workers {
		if x.ID == wid {
			w.workers = append(w.workers[:i], w.workers[i+1:]...)
			break
		}
	}
	delete(w.speech, wid)
	delete(w.moved, wid)
	w.stats.Recycled++
	w.log.Debug("sim.recycled", logx.String("worker", string(wid)), logx.Tick(w.tick))
	return nil
}

// Attack removes one hostile per attack part.
func (w *World) Attack(wid, target world.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wk, e, err := w.pair(wid, target, 1)
	if err != nil {
		return err
	}
	h := e.Attr(world.AttrHostiles)
	if h <= 0 {
		return errEmpty
	}
	n := min(h, wk.Count(world.Attack))
	if n <= 0 {
		return errEmpty
	}
	e.Attrs[world.AttrHostiles] = h - n
	if h-n == 0 {
		w.stats.Repelled++
		w.log.Info("sim.repelled", logx.String("target", string(target)), logx.Tick(w.tick))
	}
	return nil
}
