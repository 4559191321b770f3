// Package capacity bounds how many workers may work one destination at a time.
//
// A destination with a defined zone has a fixed number of slots, optionally
// tied to standing positions. Destinations without a zone are unlimited.
// Reservations are keyed by worker, so a worker holds at most one slot.
package capacity

import (
	"sort"
	"sync"

	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

type zone struct {
	slots     *slots
	positions []world.Position
	// worker -> index into positions (or -1 when the zone has none)
	holders map[world.ID]int
}

func (z *zone) freePosition() int {
	if len(z.positions) == 0 {
		return -1
	}
	taken := make([]bool, len(z.positions))
	for _, i := range z.holders {
		if i >= 0 && i < len(taken) {
			taken[i] = true
		}
	}
	for i, t := range taken {
		if !t {
			return i
		}
	}
	return -1
}

// Gate is the reference capacity gate.
type Gate struct {
	mu    sync.Mutex
	zones map[world.ID]*zone
	// worker -> destination for every reservation, zoned or not.
	held map[world.ID]world.ID

	log logx.Logger
}

func New(log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{
		zones: make(map[world.ID]*zone),
		held:  make(map[world.ID]world.ID),
		log:   log.With(logx.String("comp", "capacity")),
	}
}

// Define sets a destination's slot count. Each position is one slot; with no
// positions, n slots without fixed standing tiles are created.
//
// Redefining a zone with reservations outstanding keeps the first limit; the
// new one applies once the zone is empty.
func (g *Gate) Define(dest world.ID, n int, positions ...world.Position) {
	if len(positions) > 0 {
		n = len(positions)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if z, ok := g.zones[dest]; ok && len(z.holders) > 0 {
		if z.slots.limit != n {
			g.log.Debug("capacity.redefine_deferred",
				logx.String("dest", string(dest)), logx.Int("limit", z.slots.limit), logx.Int("want", n))
		}
		return
	}
	g.zones[dest] = &zone{
		slots:     newSlots(n),
		positions: append([]world.Position(nil), positions...),
		holders:   make(map[world.ID]int),
	}
}

// Undefine makes dest unlimited again. Outstanding reservations stay tracked
// so their Release is still a no-op-safe call.
func (g *Gate) Undefine(dest world.ID) {
	g.mu.Lock()
	delete(g.zones, dest)
	g.mu.Unlock()
}

func (g *Gate) IsFull(dest world.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	z, ok := g.zones[dest]
	if !ok {
		return false
	}
	return z.slots.free() == 0
}

// Capacity returns the slot count and whether dest is limited at all.
func (g *Gate) Capacity(dest world.ID) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	z, ok := g.zones[dest]
	if !ok {
		return 0, false
	}
	return z.slots.limit, true
}

// Reserve takes a slot at dest for worker. It is idempotent for the same
// (dest, worker); a worker holding a slot elsewhere gives that one up first.
func (g *Gate) Reserve(dest, worker world.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cur, ok := g.held[worker]; ok {
		if cur == dest {
			return true
		}
		g.releaseLocked(worker)
	}
	z, ok := g.zones[dest]
	if !ok {
		g.held[worker] = dest
		return true
	}
	if !z.slots.tryAcquire() {
		return false
	}
	z.holders[worker] = z.freePosition()
	g.held[worker] = dest
	return true
}

// Release frees whatever worker holds. Releasing twice is harmless.
func (g *Gate) Release(worker world.ID) {
	g.mu.Lock()
	g.releaseLocked(worker)
	g.mu.Unlock()
}

func (g *Gate) releaseLocked(worker world.ID) {
	dest, ok := g.held[worker]
	if !ok {
		return
	}
	delete(g.held, worker)
	z, ok := g.zones[dest]
	if !ok {
		return
	}
	if _, held := z.holders[worker]; !held {
		return
	}
	delete(z.holders, worker)
	z.slots.release()
}

// Slot returns the standing position assigned to worker, if its zone has one.
func (g *Gate) Slot(worker world.ID) (world.Position, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	dest, ok := g.held[worker]
	if !ok {
		return world.Position{}, false
	}
	z, ok := g.zones[dest]
	if !ok {
		return world.Position{}, false
	}
	i, ok := z.holders[worker]
	if !ok || i < 0 || i >= len(z.positions) {
		return world.Position{}, false
	}
	return z.positions[i], true
}

// InUse reports the number of held slots at dest.
func (g *Gate) InUse(dest world.ID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	z, ok := g.zones[dest]
	if !ok {
		n := 0
		for _, d := range g.held {
			if d == dest {
				n++
			}
		}
		return n
	}
	return z.slots.inUse()
}

// Holders lists workers holding dest, sorted.
func (g *Gate) Holders(dest world.ID) []world.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []world.ID
	for w, d := range g.held {
		if d == dest {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ZoneStat is one row of Stats.
type ZoneStat struct {
	Destination world.ID `json:"destination"`
	Limit       int      `json:"limit"`
	InUse       int      `json:"in_use"`
}

func (g *Gate) Stats() []ZoneStat {
	g.mu.Lock()
	out := make([]ZoneStat, 0, len(g.zones))
	for id, z := range g.zones {
		out = append(out, ZoneStat{Destination: id, Limit: z.slots.limit, InUse: z.slots.inUse()})
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Destination < out[j].Destination })
	return out
}
