package sim

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"hivemind/internal/task/cadence"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

// Entity kinds.
const (
	KindSource     = "source"
	KindSpawn      = "spawn"
	KindController = "controller"
	KindSite       = "site"
	KindStructure  = "structure"
	KindDrop       = "drop"
)

// AttrLevel is the controller level.
const AttrLevel = "level"

const (
	structureHits = 1000
	siteProgress  = 300
	levelProgress = 1000
	carryPerPart  = 50
	partHits      = 100
)

var (
	errNotInRange = errors.New("sim: not in range")
	errGone       = errors.New("sim: no such object")
	errEmpty      = errors.New("sim: nothing to transfer")
	errFull       = errors.New("sim: target full")
	errWrongKind  = errors.New("sim: wrong target kind")
)

// Stats counts what happened in the world so far.
type Stats struct {
	Tick      uint64 `json:"tick"`
	Workers   int    `json:"workers"`
	Harvested int    `json:"harvested"`
	Deposited int    `json:"deposited"`
	Built     int    `json:"built"`
	Repaired  int    `json:"repaired"`
	Upgraded  int    `json:"upgraded"`
	Fetched   int    `json:"fetched"`
	Spawned   int    `json:"spawned"`
	Died      int    `json:"died"`
	Recycled  int    `json:"recycled"`
	Raids     int    `json:"raids"`
	Repelled  int    `json:"repelled"`
	Destroyed int    `json:"destroyed"`
}

// World is the live, mutable demo world. Behaviors change it through its
// methods while the scheduler reads immutable snapshots of it.
type World struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	rng *rand.Rand

	grid *grid
	tick uint64

	entities []*world.Entity
	workers  []*world.Worker
	// drop -> tick it was emptied; removed one tick later so the emptying
	// task can observe completion.
	emptied map[world.ID]uint64
	// worker -> tick of its last step
	moved   map[world.ID]uint64
	pending map[world.ID]*pendingSpawn
	speech  map[world.ID]string
	// tiles kept free for zones
	keep map[world.Position]bool

	raid, site cadence.Cadence
	metric     *world.Memo
	nextID     int
	stats      Stats
}

type pendingSpawn struct {
	name  string
	body  []world.Capability
	ready uint64
}

// New generates a world from cfg.
func New(cfg Config, log logx.Logger) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := newWorld(cfg, log)
	if err := w.generate(); err != nil {
		return nil, err
	}
	w.log.Info("sim.generated", logx.Int("width", w.cfg.Width), logx.Int("height", w.cfg.Height),
		logx.Int("entities", len(w.entities)), logx.Int("workers", len(w.workers)), logx.Int64("seed", w.cfg.Seed))
	return w, nil
}

// newWorld returns an empty, wall-free world. cfg must be valid.
func newWorld(cfg Config, log logx.Logger) *World {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	w := &World{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "sim")),
		rng:     rand.New(rand.NewPCG(uint64(cfg.Seed), 0x9e3779b97f4a7c15)),
		grid:    newGrid(cfg.Width, cfg.Height),
		emptied: make(map[world.ID]uint64),
		moved:   make(map[world.ID]uint64),
		pending: make(map[world.ID]*pendingSpawn),
		speech:  make(map[world.ID]string),
		keep:    make(map[world.Position]bool),
		raid:    cadence.MustParse(cfg.RaidEvery),
		site:    cadence.MustParse(cfg.SiteEvery),
	}
	w.metric = world.NewMemo(world.MetricFunc(w.grid.distance), 8192)
	return w
}

func (w *World) generate() error {
	g := w.grid
	for i := range g.wall {
		if w.rng.IntN(1000) < w.cfg.WallPermille {
			g.wall[i] = true
		}
	}
	center := g.pos(g.w/2, g.h/2)
	g.wall[g.idx(center.X, center.Y)] = false
	// Open tiles cut off from the center are walled in.
	seen := g.reachable(center)
	for i := range g.wall {
		if !seen[i] {
			g.wall[i] = true
		}
	}

	spawn := w.addEntity(KindSpawn, center, map[string]int{
		world.AttrEnergy:         w.cfg.SpawnEnergy,
		world.AttrEnergyCapacity: w.cfg.SpawnCapacity,
		world.AttrHits:           structureHits,
		world.AttrHitsMax:        structureHits,
	})
	if p, ok := w.freeTile(3); ok {
		w.addEntity(KindController, p, map[string]int{
			AttrLevel:               1,
			world.AttrProgress:      0,
			world.AttrProgressTotal: levelProgress,
		})
	} else {
		return fmt.Errorf("sim: no room for the controller")
	}
	for range w.cfg.Sources {
		p, ok := w.freeTile(3)
		if !ok {
			return fmt.Errorf("sim: no room for %d sources", w.cfg.Sources)
		}
		w.addEntity(KindSource, p, map[string]int{
			world.AttrEnergy:         w.cfg.SourceEnergy,
			world.AttrEnergyCapacity: w.cfg.SourceEnergy,
		})
	}
	// Standing tiles around zoned entities stay free of later buildings.
	for _, e := range w.entities {
		if e.Kind == KindSource || e.Kind == KindController {
			for _, p := range g.around(e.Pos) {
				w.keep[p] = true
			}
		}
	}
	for range w.cfg.Structures {
		p, ok := w.freeTile(2)
		if !ok {
			break
		}
		w.addEntity(KindStructure, p, map[string]int{
			world.AttrHits:     structureHits/4 + w.rng.IntN(structureHits*3/4+1),
			world.AttrHitsMax:  structureHits,
			world.AttrHostiles: 0,
		})
	}
	for range w.cfg.Sites {
		w.addSite()
	}
	around := g.around(spawn.Pos)
	for i := range w.cfg.Workers {
		p := spawn.Pos
		if len(around) > 0 {
			p = around[i%len(around)]
		}
		w.addWorker(fmt.Sprintf("Founder %d", i+1), p, []world.Capability{world.Work, world.Carry, world.Move, world.Move})
	}
	return nil
}

func (w *World) newID(prefix string) world.ID {
	w.nextID++
	return world.ID(fmt.Sprintf("%s-%d", prefix, w.nextID))
}

func solidKind(kind string) bool {
	switch kind {
	case KindSite, KindDrop:
		return false
	}
	return true
}

func (w *World) addEntity(kind string, p world.Position, attrs map[string]int) *world.Entity {
	e := &world.Entity{ID: w.newID(kind), Kind: kind, Pos: p, Attrs: attrs}
	w.entities = append(w.entities, e)
	if solidKind(kind) {
		w.grid.solid[w.grid.idx(p.X, p.Y)] = true
		w.metric.Purge()
	}
	return e
}

func (w *World) removeEntity(id world.ID) {
	for i, e := range w.entities {
		if e.ID != id {
			continue
		}
		if solidKind(e.Kind) {
			w.grid.solid[w.grid.idx(e.Pos.X, e.Pos.Y)] = false
			w.metric.Purge()
		}
		w.entities = append(w.entities[:i], w.entities[i+1:]...)
		delete(w.emptied, id)
		return
	}
}

func (w *World) addSite() bool {
	p, ok := w.freeTile(1)
	if !ok {
		return false
	}
	w.addEntity(KindSite, p, map[string]int{
		world.AttrProgress:      0,
		world.AttrProgressTotal: siteProgress,
	})
	return true
}

func (w *World) addWorker(name string, p world.Position, body []world.Capability) *world.Worker {
	wk := &world.Worker{ID: w.newID("worker"), Name: name, Pos: p, TicksToLive: w.cfg.WorkerTTL}
	for _, c := range body {
		wk.Parts = append(wk.Parts, world.Part{Type: c, Hits: partHits})
	}
	wk.Capacity = carryPerPart * wk.Count(world.Carry)
	w.workers = append(w.workers, wk)
	return wk
}

// freeTile picks a random reachable open tile with no entity within gap.
// It falls back to any tile with no entity on it.
func (w *World) freeTile(gap int) (world.Position, bool) {
	g := w.grid
	var spawnPos world.Position
	for _, e := range w.entities {
		if e.Kind == KindSpawn {
			spawnPos = e.Pos
			break
		}
	}
	seen := g.reachable(spawnPos)
	var fallback []world.Position
	var good []world.Position
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			p := g.pos(x, y)
			if !seen[g.idx(x, y)] || !g.open(x, y) || w.keep[p] {
				continue
			}
			near := w.nearestEntity(p)
			if near == 0 {
				continue
			}
			fallback = append(fallback, p)
			if near > gap {
				good = append(good, p)
			}
		}
	}
	switch {
	case len(good) > 0:
		return good[w.rng.IntN(len(good))], true
	case len(fallback) > 0:
		return fallback[w.rng.IntN(len(fallback))], true
	}
	return world.Position{}, false
}

func (w *World) nearestEntity(p world.Position) int {
	best := world.FarAway
	for _, e := range w.entities {
		best = min(best, p.Range(e.Pos))
	}
	return best
}

func (w *World) entity(id world.ID) *world.Entity {
	for _, e := range w.entities {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (w *World) worker(id world.ID) *world.Worker {
	for _, wk := range w.workers {
		if wk.ID == id {
			return wk
		}
	}
	return nil
}

// Tick returns the current tick.
func (w *World) Tick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

// Resume moves the clock forward to tick so a restored task set and the
// world agree on time. Earlier ticks are ignored.
func (w *World) Resume(tick uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if tick > w.tick {
		w.tick = tick
		w.stats.Tick = tick
	}
}

// Step advances the world by one tick: sources regenerate, workers age,
// finished spawns appear, raids and new sites arrive on their cadences and
// hostiles damage what they sit on.
func (w *World) Step() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tick++
	w.stats.Tick = w.tick

	for id, at := range w.emptied {
		if at < w.tick-1 {
			w.removeEntity(id)
		}
	}

	for _, e := range w.entities {
		switch e.Kind {
		case KindSource:
			e.Attrs[world.AttrEnergy] = min(e.Attr(world.AttrEnergyCapacity), e.Attr(world.AttrEnergy)+w.cfg.SourceRegen)
		case KindStructure:
			if h := e.Attr(world.AttrHostiles); h > 0 {
				e.Attrs[world.AttrHits] -= 5 * h
			}
		}
	}
	for _, e := range append([]*world.Entity(nil), w.entities...) {
		if e.Kind == KindStructure && e.Attr(world.AttrHits) <= 0 {
			w.stats.Destroyed++
			w.log.Info("sim.destroyed", logx.String("id", string(e.ID)), logx.Tick(w.tick))
			w.removeEntity(e.ID)
		}
	}

	alive := w.workers[:0]
	for _, wk := range w.workers {
		wk.TicksToLive--
		if wk.TicksToLive > 0 {
			alive = append(alive, wk)
			continue
		}
		w.stats.Died++
		delete(w.speech, wk.ID)
		delete(w.moved, wk.ID)
		if wk.Load > 0 {
			w.addEntity(KindDrop, wk.Pos, map[string]int{world.AttrEnergy: wk.Load})
		}
		w.log.Debug("sim.worker_died", logx.String("worker", string(wk.ID)), logx.Tick(w.tick))
	}
	w.workers = alive

	for _, sid := range w.sortedPending() {
		ps := w.pending[sid]
		if ps.ready > w.tick {
			continue
		}
		delete(w.pending, sid)
		sp := w.entity(sid)
		if sp == nil {
			continue
		}
		p := sp.Pos
		if around := w.grid.around(sp.Pos); len(around) > 0 {
			p = around[w.rng.IntN(len(around))]
		}
		wk := w.addWorker(ps.name, p, ps.body)
		w.stats.Spawned++
		w.log.Info("sim.spawned", logx.String("worker", string(wk.ID)), logx.String("name", wk.Name),
			logx.Int("parts", len(wk.Parts)), logx.Tick(w.tick))
	}

	if w.raid.Due(w.tick) {
		w.startRaid()
	}
	if w.site.Due(w.tick) {
		w.addSite()
	}
}

func (w *World) sortedPending() []world.ID {
	out := make([]world.ID, 0, len(w.pending))
	for id := range w.pending {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (w *World) startRaid() {
	var targets []*world.Entity
	for _, e := range w.entities {
		if e.Kind == KindStructure {
			targets = append(targets, e)
		}
	}
	if len(targets) == 0 {
		return
	}
	t := targets[w.rng.IntN(len(targets))]
	n := 1 + w.rng.IntN(3)
	t.Attrs[world.AttrHostiles] += n
	w.stats.Raids++
	w.log.Info("sim.raid", logx.String("target", string(t.ID)), logx.Int("hostiles", n), logx.Tick(w.tick))
}

// Snapshot copies the world into an immutable read view.
func (w *World) Snapshot() world.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	workers := make([]world.Worker, 0, len(w.workers))
	for _, wk := range w.workers {
		cp := *wk
		cp.Parts = append([]world.Part(nil), wk.Parts...)
		workers = append(workers, cp)
	}
	entities := make([]world.Entity, 0, len(w.entities))
	for _, e := range w.entities {
		cp := *e
		cp.Attrs = make(map[string]int, len(e.Attrs))
		for k, v := range e.Attrs {
			cp.Attrs[k] = v
		}
		entities = append(entities, cp)
	}
	return world.NewIndex(w.tick, workers, entities)
}

// Metric is the walking distance, memoized. The memo is purged whenever a
// solid entity appears or disappears.
func (w *World) Metric() world.Metric { return w.metric }

// Population is the number of living workers plus spawns in progress.
func (w *World) Population() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.workers) + len(w.pending)
}

// Locate resolves an entity or worker position.
func (w *World) Locate(id world.ID) (world.Position, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e := w.entity(id); e != nil {
		return e.Pos, true
	}
	if wk := w.worker(id); wk != nil {
		return wk.Pos, true
	}
	return world.Position{}, false
}

// Stats returns the running counters.
func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Workers = len(w.workers)
	return s
}

// Status is the diagnostic view served by the debug endpoint.
type Status struct {
	Stats  Stats             `json:"stats"`
	Speech map[string]string `json:"speech,omitempty"`
}

func (w *World) Status() Status {
	st := Status{Stats: w.Stats()}
	w.mu.Lock()
	if len(w.speech) > 0 {
		st.Speech = make(map[string]string, len(w.speech))
		for k, v := range w.speech {
			st.Speech[string(k)] = v
		}
	}
	w.mu.Unlock()
	return st
}
