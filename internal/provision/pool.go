package provision

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"hivemind/internal/metrics"
	"hivemind/internal/task"
	"hivemind/internal/task/scheduler"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

var (
	// ErrSpawnerBusy means the spawner is already producing a worker.
	ErrSpawnerBusy = errors.New("provision: spawner busy")
	// ErrNotEnoughEnergy means the body is affordable once the spawner is refilled.
	ErrNotEnoughEnergy = errors.New("provision: not enough energy")
	// ErrBodyTooLarge means the spawner can never afford the body.
	ErrBodyTooLarge = errors.New("provision: body exceeds spawner capacity")
)

// Spawner materializes workers. Spawn must not block; the new worker appears
// in a later world snapshot.
type Spawner interface {
	ID() world.ID
	Pos() world.Position
	Spawn(tick uint64, name string, body []world.Capability) error
}

// Enqueuer submits follow-up work. *scheduler.Service satisfies it.
type Enqueuer interface {
	Enqueue(name string, dest world.ID, ov task.Overrides) (*task.Instance, error)
}

type Config struct {
	// MaxWorkers caps the population; 0 means unbounded.
	MaxWorkers int `json:"max_workers"`
	// CooldownTicks is the minimum distance between two successful spawns.
	CooldownTicks uint64 `json:"cooldown_ticks"`
	// PartBudget caps the parts in one body.
	PartBudget int `json:"part_budget"`
	// RefillTemplate is queued against a spawner that lacks energy.
	RefillTemplate string   `json:"refill_template"`
	Names          []string `json:"names,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.PartBudget <= 0 {
		c.PartBudget = 50
	}
	if c.RefillTemplate == "" {
		c.RefillTemplate = "deposit"
	}
	if len(c.Names) == 0 {
		c.Names = defaultNames
	}
	return c
}

type Options struct {
	// Refill receives refill tasks; nil disables them.
	Refill Enqueuer
	// Population reports the current worker count for MaxWorkers.
	Population func() int
	// Locate resolves task destinations so the nearest spawner is tried first.
	Locate func(world.ID) (world.Position, bool)
	Metric world.Metric
	Metrics *metrics.Metrics
}

// Stats summarizes pool activity.
type Stats struct {
	Spawned   int    `json:"spawned"`
	Refills   int    `json:"refills"`
	LastSpawn uint64 `json:"last_spawn"`
}

// Pool implements scheduler.Provisioner.
type Pool struct {
	log  logx.Logger
	opts Options

	mu       sync.Mutex
	cfg      Config
	spawners []Spawner
	throttle logx.Throttle

	stats    Stats
	spawned  bool
	nextName int
	ordinals map[string]int
}

func New(cfg Config, spawners []Spawner, opts Options, log logx.Logger) *Pool {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Metric == nil {
		opts.Metric = world.Chebyshev
	}
	return &Pool{
		log:      log.With(logx.String("comp", "provision")),
		opts:     opts,
		cfg:      cfg.withDefaults(),
		spawners: append([]Spawner(nil), spawners...),
		throttle: logx.Throttle{Interval: 30 * time.Second},
		ordinals: make(map[string]int),
	}
}

// Apply swaps the configuration. Cooldown state is kept.
func (p *Pool) Apply(cfg Config) {
	p.mu.Lock()
	p.cfg = cfg.withDefaults()
	p.mu.Unlock()
}

// SetSpawners replaces the spawner set, e.g. after the world changed.
func (p *Pool) SetSpawners(spawners []Spawner) {
	p.mu.Lock()
	p.spawners = append(p.spawners[:0], spawners...)
	p.mu.Unlock()
}

// SetRefill sets where refill tasks go. The scheduler usually needs the pool
// before it exists, so this is wired after both are built.
func (p *Pool) SetRefill(q Enqueuer) {
	p.mu.Lock()
	p.opts.Refill = q
	p.mu.Unlock()
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

type outcome int

const (
	unserved outcome = iota
	spawned
	refilled
)

// RequestWorkers spends the demand of one tick on at most one spawn per
// spawner.
func (p *Pool) RequestWorkers(d scheduler.Demand) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(d.Tasks) == 0 || len(p.spawners) == 0 {
		return
	}
	if p.spawned && d.Tick < p.stats.LastSpawn+p.cfg.CooldownTicks {
		p.throttle.Do("cooldown", func() {
			p.log.Debug("provision.cooldown", logx.Tick(d.Tick), logx.Uint64("last_spawn", p.stats.LastSpawn))
		})
		return
	}
	headroom := math.MaxInt
	if p.cfg.MaxWorkers > 0 && p.opts.Population != nil {
		headroom = p.cfg.MaxWorkers - p.opts.Population()
		if headroom <= 0 {
			p.throttle.Do("max_workers", func() {
				p.log.Info("provision.population_cap", logx.Int("max_workers", p.cfg.MaxWorkers), logx.Int("unmet", len(d.Tasks)))
			})
			return
		}
	}

	pending := append([]scheduler.UnmetTask(nil), d.Tasks...)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Priority > pending[j].Priority })

	used := make(map[world.ID]bool, len(p.spawners))
	for size := len(pending); size >= 1 && len(pending) > 0; size-- {
		size = min(size, len(pending))
		var left []scheduler.UnmetTask
		for _, g := range groups(pending, size) {
			if headroom <= 0 || len(used) == len(p.spawners) {
				return
			}
			switch p.provide(d.Tick, g, used) {
			case spawned:
				headroom--
			case refilled:
			default:
				left = append(left, g...)
			}
		}
		pending = left
	}
	if len(pending) > 0 {
		p.throttle.Do("unserved", func() {
			p.log.Debug("provision.unserved", logx.Tick(d.Tick), logx.Int("tasks", len(pending)))
		})
	}
}

func (p *Pool) provide(tick uint64, g []scheduler.UnmetTask, used map[world.ID]bool) outcome {
	body := Body(g)
	if len(body) > p.cfg.PartBudget {
		p.opts.Metrics.IncSpawn("too_large")
		return unserved
	}
	for _, sp := range p.rank(g) {
		id := sp.ID()
		if used[id] {
			continue
		}
		name, base := p.peekName()
		err := sp.Spawn(tick, name, body)
		switch {
		case err == nil:
			used[id] = true
			p.commitName(base)
			p.spawned = true
			p.stats.Spawned++
			p.stats.LastSpawn = tick
			p.opts.Metrics.IncSpawn("spawned")
			p.log.Info("provision.spawned", logx.String("name", name), logx.String("spawner", string(id)),
				logx.Strings("body", capStrings(body)), logx.Int("tasks", len(g)), logx.Tick(tick))
			return spawned
		case errors.Is(err, ErrSpawnerBusy):
			used[id] = true
			p.opts.Metrics.IncSpawn("busy")
		case errors.Is(err, ErrNotEnoughEnergy):
			used[id] = true
			p.opts.Metrics.IncSpawn("no_energy")
			p.refill(tick, id)
			return refilled
		case errors.Is(err, ErrBodyTooLarge):
			p.opts.Metrics.IncSpawn("too_large")
		default:
			p.opts.Metrics.IncSpawn("error")
			p.log.Warn("provision.spawn_failed", logx.String("spawner", string(id)), logx.Err(err), logx.Tick(tick))
		}
	}
	return unserved
}

func (p *Pool) refill(tick uint64, spawner world.ID) {
	if p.opts.Refill == nil {
		return
	}
	t, err := p.opts.Refill.Enqueue(p.cfg.RefillTemplate, spawner, task.Overrides{})
	switch {
	case err == nil:
		p.stats.Refills++
		p.log.Info("provision.refill_requested", logx.String("spawner", string(spawner)), logx.String("task", t.ID), logx.Tick(tick))
	case errors.Is(err, task.ErrDuplicate), errors.Is(err, task.ErrCapacityExhausted):
	default:
		p.log.Warn("provision.refill_failed", logx.String("spawner", string(spawner)), logx.Err(err), logx.Tick(tick))
	}
}

// rank orders spawners by how many of the group's destinations they are
// nearest to. Without a locator the configured order is kept.
func (p *Pool) rank(g []scheduler.UnmetTask) []Spawner {
	out := append([]Spawner(nil), p.spawners...)
	if p.opts.Locate == nil || len(out) < 2 {
		return out
	}
	votes := make(map[world.ID]int, len(out))
	for _, t := range g {
		pos, ok := p.opts.Locate(t.Destination)
		if !ok {
			continue
		}
		best, bestD := world.None, math.MaxInt
		for _, sp := range out {
			if d := p.opts.Metric.Distance(sp.Pos(), pos); d < bestD {
				best, bestD = sp.ID(), d
			}
		}
		votes[best]++
	}
	sort.SliceStable(out, func(i, j int) bool { return votes[out[i].ID()] > votes[out[j].ID()] })
	return out
}

func (p *Pool) peekName() (name, base string) {
	base = p.cfg.Names[p.nextName%len(p.cfg.Names)]
	return ordinalName(base, p.ordinals[base]+1), base
}

func (p *Pool) commitName(base string) {
	p.ordinals[base]++
	p.nextName++
}

func capStrings(caps []world.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}
