package sim

import (
	"hivemind/internal/world"
)

// Slotter reports the standing position reserved for a worker.
// *capacity.Gate satisfies it.
type Slotter interface {
	Slot(worker world.ID) (world.Position, bool)
}

// Router walks workers one tile per tick toward their destination, or toward
// their reserved standing tile when the destination has a zone.
type Router struct {
	w     *World
	slots Slotter
}

func (w *World) Router(slots Slotter) *Router { return &Router{w: w, slots: slots} }

// Approach implements scheduler.Router.
func (r *Router) Approach(wk world.Worker, dest world.Entity) bool {
	var slot world.Position
	hasSlot := false
	if r.slots != nil {
		slot, hasSlot = r.slots.Slot(wk.ID)
		// A slot only counts if it belongs to this destination's zone.
		hasSlot = hasSlot && slot.InRange(dest.Pos, 1)
	}

	w := r.w
	w.mu.Lock()
	defer w.mu.Unlock()
	live := w.worker(wk.ID)
	if live == nil {
		return false
	}
	g := w.grid
	goal := func(x, y int) bool {
		if hasSlot {
			return x == slot.X && y == slot.Y
		}
		return g.pos(x, y).InRange(dest.Pos, 1)
	}
	if goal(live.Pos.X, live.Pos.Y) {
		return true
	}
	if last, ok := w.moved[live.ID]; ok && last == w.tick {
		return false
	}
	_, next, ok := g.bfs(live.Pos, goal, g.open)
	if !ok {
		return false
	}
	live.Pos = next
	w.moved[live.ID] = w.tick
	return goal(next.X, next.Y)
}
