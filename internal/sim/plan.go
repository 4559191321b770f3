package sim

import (
	"context"
	"errors"

	"hivemind/internal/eventbus"
	"hivemind/internal/task"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

// Enqueuer submits work. *scheduler.Service satisfies it.
type Enqueuer interface {
	Enqueue(name string, dest world.ID, ov task.Overrides) (*task.Instance, error)
}

// Plan submits the standing work snap calls for and returns how many tasks
// were admitted. Work that is already queued is refused by the scheduler and
// not counted.
func (w *World) Plan(snap world.Snapshot, q Enqueuer) int {
	n := 0
	submit := func(name string, dest world.ID) {
		_, err := q.Enqueue(name, dest, task.Overrides{})
		switch {
		case err == nil:
			n++
		case errors.Is(err, task.ErrDuplicate), errors.Is(err, task.ErrCapacityExhausted):
		default:
			w.log.Warn("sim.plan_failed", logx.String("name", name), logx.String("dest", string(dest)), logx.Err(err))
		}
	}
	for _, e := range snap.Entities() {
		switch e.Kind {
		case KindController:
			submit(UpgradeTask, e.ID)
		case KindSpawn:
			if e.Attr(world.AttrEnergy) < e.Attr(world.AttrEnergyCapacity) {
				submit(DepositTask, e.ID)
			}
		case KindSite:
			submit(BuildTask, e.ID)
		case KindStructure:
			if e.Attr(world.AttrHits)*100 < repairBelow*e.Attr(world.AttrHitsMax) {
				submit(RepairTask, e.ID)
			}
			submit(DefendTask, e.ID)
		case KindDrop:
			if e.Attr(world.AttrEnergy) > 0 {
				submit(FetchTask, e.ID)
			}
		}
	}
	return n
}

// Say sets what a worker is shown saying.
func (w *World) Say(worker world.ID, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.worker(worker) == nil {
		return
	}
	w.speech[worker] = msg
}

// Speech returns what a worker last said.
func (w *World) Speech(worker world.ID) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.speech[worker]
}

// Listen turns task.assigned events into worker speech until ctx ends.
func (w *World) Listen(ctx context.Context, bus eventbus.Bus) error {
	ch, unsubscribe := bus.Subscribe(256, eventbus.TaskAssigned)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if te, ok := ev.Data.(eventbus.TaskEvent); ok && te.Worker != "" && te.Label != "" {
				w.Say(world.ID(te.Worker), te.Label)
			}
		}
	}
}
