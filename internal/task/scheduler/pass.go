package scheduler

import (
	"sort"

	"hivemind/internal/task"
	"hivemind/internal/world"
)

// pass is the per-tick scratch state. It never outlives Tick.
type pass struct {
	c    task.Context
	snap world.Snapshot
	tick uint64

	workers []world.Worker
	// worker -> owning task, for every live assignment.
	owner map[world.ID]*task.Instance
	// workers bound during this pass; each may be consumed once.
	claimed map[world.ID]bool

	sorted []*task.Instance

	unmet     []*task.Instance
	unmetSeen map[string]bool

	rep TickReport
}

func newPass(snap world.Snapshot, live []*task.Instance) *pass {
	p := &pass{
		c:         task.NewContext(snap),
		snap:      snap,
		tick:      snap.Tick(),
		workers:   snap.Workers(),
		owner:     make(map[world.ID]*task.Instance, len(live)),
		claimed:   make(map[world.ID]bool),
		unmetSeen: make(map[string]bool),
	}
	p.rep.Tick = p.tick
	for _, t := range live {
		if t.Assigned() && !t.State.Terminal() {
			p.owner[t.Worker] = t
		}
	}
	return p
}

func (p *pass) idle(id world.ID) bool {
	_, owned := p.owner[id]
	return !owned && !p.claimed[id]
}

// idleWorkers lists unowned workers in snapshot order.
func (p *pass) idleWorkers() []world.Worker {
	out := make([]world.Worker, 0, len(p.workers))
	for _, w := range p.workers {
		if p.idle(w.ID) {
			out = append(out, w)
		}
	}
	return out
}

func (p *pass) bind(t *task.Instance, w world.ID) {
	p.owner[w] = t
	p.claimed[w] = true
}

func (p *pass) unbind(w world.ID, t *task.Instance) {
	if p.owner[w] == t {
		delete(p.owner, w)
	}
}

func (p *pass) addUnmet(t *task.Instance) {
	if p.unmetSeen[t.ID] {
		return
	}
	p.unmetSeen[t.ID] = true
	p.unmet = append(p.unmet, t)
}

// byDistance sorts candidates nearest-first; ties keep snapshot order.
func byDistance(m world.Metric, ws []world.Worker, to world.Position) {
	d := make(map[world.ID]int, len(ws))
	for _, w := range ws {
		d[w.ID] = m.Distance(w.Pos, to)
	}
	sort.SliceStable(ws, func(i, j int) bool { return d[ws[i].ID] < d[ws[j].ID] })
}
