package sim

import (
	"hivemind/internal/provision"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

var partCost = map[world.Capability]int{
	world.Move:   50,
	world.Work:   100,
	world.Carry:  50,
	world.Attack: 80,
	world.Ranged: 150,
	world.Heal:   250,
	world.Claim:  600,
	world.Tough:  10,
}

// ticksPerPart is how long a spawn is busy per body part.
const ticksPerPart = 3

func bodyCost(body []world.Capability) int {
	n := 0
	for _, c := range body {
		n += partCost[c]
	}
	return n
}

func partTypes(wk *world.Worker) []world.Capability {
	out := make([]world.Capability, 0, len(wk.Parts))
	for _, p := range wk.Parts {
		out = append(out, p.Type)
	}
	return out
}

// spawner adapts one spawn entity to provision.Spawner.
type spawner struct {
	w  *World
	id world.ID
}

func (s spawner) ID() world.ID { return s.id }

func (s spawner) Pos() world.Position {
	p, _ := s.w.Locate(s.id)
	return p
}

func (s spawner) Spawn(tick uint64, name string, body []world.Capability) error {
	return s.w.spawn(s.id, tick, name, body)
}

// Spawners returns every spawn in the world as a provision.Spawner.
func (w *World) Spawners() []provision.Spawner {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []provision.Spawner
	for _, e := range w.entities {
		if e.Kind == KindSpawn {
			out = append(out, spawner{w: w, id: e.ID})
		}
	}
	return out
}

func (w *World) spawn(id world.ID, tick uint64, name string, body []world.Capability) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.entity(id)
	if e == nil || e.Kind != KindSpawn {
		return errGone
	}
	if _, busy := w.pending[id]; busy {
		return provision.ErrSpawnerBusy
	}
	cost := bodyCost(body)
	if cost > e.Attr(world.AttrEnergyCapacity) {
		return provision.ErrBodyTooLarge
	}
	if cost > e.Attr(world.AttrEnergy) {
		return provision.ErrNotEnoughEnergy
	}
	e.Attrs[world.AttrEnergy] -= cost
	w.pending[id] = &pendingSpawn{
		name:  name,
		body:  append([]world.Capability(nil), body...),
		ready: max(tick, w.tick) + uint64(ticksPerPart*len(body)),
	}
	w.log.Debug("sim.spawning", logx.String("spawn", string(id)), logx.String("name", name),
		logx.Int("cost", cost), logx.Tick(w.tick))
	return nil
}
