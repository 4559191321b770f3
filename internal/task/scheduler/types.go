package scheduler

import (
	"time"

	"hivemind/internal/eventbus"
	"hivemind/internal/metrics"
	"hivemind/internal/task"
	"hivemind/internal/world"
)

// Config controls the scheduling pass. Zero values get defaults.
type Config struct {
	// EscalateEvery is a cadence string (see package cadence). Empty means
	// every 50 ticks; "off" disables escalation.
	EscalateEvery string `json:"escalate_every"`

	// RecursePrerequisites matches prerequisite tasks in the same pass that
	// created them instead of waiting for the next tick.
	RecursePrerequisites bool `json:"recurse_prerequisites"`
	MaxPrerequisiteDepth int  `json:"max_prerequisite_depth"`

	// NoPreempt stops triggered tasks from taking workers away from active
	// queued tasks; they then only draw from idle workers.
	NoPreempt bool `json:"no_preempt"`

	// Circuit breaker over (template, destination), in ticks.
	// CircuitTripFailures < 0 disables it.
	CircuitTripFailures int    `json:"circuit_trip_failures"`
	CircuitBaseTicks    uint64 `json:"circuit_base_ticks"`
	CircuitMaxTicks     uint64 `json:"circuit_max_ticks"`
	CircuitResetTicks   uint64 `json:"circuit_reset_ticks"`

	HistorySize int `json:"history_size"`

	// IdleLogEvery logs a persistently idle worker once per this many ticks.
	IdleLogEvery int `json:"idle_log_every"`
}

func (c Config) withDefaults() Config {
	if c.EscalateEvery == "" {
		c.EscalateEvery = "50"
	}
	if c.MaxPrerequisiteDepth <= 0 {
		c.MaxPrerequisiteDepth = 2
	}
	if c.CircuitTripFailures == 0 {
		c.CircuitTripFailures = 5
	}
	if c.CircuitBaseTicks == 0 {
		c.CircuitBaseTicks = 5
	}
	if c.CircuitMaxTicks == 0 {
		c.CircuitMaxTicks = 200
	}
	if c.CircuitResetTicks == 0 {
		c.CircuitResetTicks = 500
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	if c.IdleLogEvery <= 0 {
		c.IdleLogEvery = 25
	}
	return c
}

// Gate bounds concurrent workers per destination. The gate, not the
// scheduler, is the source of truth for capacity.
type Gate interface {
	IsFull(dest world.ID) bool
	// Reserve takes a slot for worker at dest; false means no slot.
	Reserve(dest, worker world.ID) bool
	// Release frees the slot held by worker, if any.
	Release(worker world.ID)
	// Capacity reports the slot count and whether dest is limited at all.
	Capacity(dest world.ID) (int, bool)
}

// Router moves a worker toward its destination, through reserved standing
// positions where the world has them. It returns true once the worker has
// arrived.
type Router interface {
	Approach(w world.Worker, dest world.Entity) bool
}

// Provisioner receives the capability demand of tasks that found no worker.
// It must not block; new workers simply show up idle in a later snapshot.
type Provisioner interface {
	RequestWorkers(d Demand)
}

// WorkSource is offered workers left idle after matching. Returning true
// claims the worker for this tick.
type WorkSource interface {
	OfferWork(c task.Context, w world.Worker, b Binder) bool
}

// Binder is the only way a WorkSource may touch the live task set during a
// pass. Service methods must not be called from inside OfferWork.
type Binder interface {
	Create(name string, dest world.ID, ov task.Overrides) (*task.Instance, bool)
	Submit(t *task.Instance) bool
	// Bind submits t if needed and assigns w to it, under the same
	// capability, capacity and ownership rules as matching.
	Bind(t *task.Instance, w world.Worker) bool
}

// WorkSourceFunc adapts a function to WorkSource.
type WorkSourceFunc func(c task.Context, w world.Worker, b Binder) bool

func (f WorkSourceFunc) OfferWork(c task.Context, w world.Worker, b Binder) bool { return f(c, w, b) }

// Deps are the collaborators of a Service. Only the registry is mandatory.
type Deps struct {
	Gate        Gate
	Router      Router
	Provisioner Provisioner
	Sources     []WorkSource
	// Metric orders candidates by travel distance; defaults to tile range.
	Metric  world.Metric
	Bus     eventbus.Bus
	Metrics *metrics.Metrics
}

// Demand is the unmet-work signal for one tick.
type Demand struct {
	Tick         uint64
	Capabilities []world.Capability
	Tasks        []UnmetTask
}

// UnmetTask describes one task in a Demand.
type UnmetTask struct {
	ID          string
	Name        string
	Destination world.ID
	Priority    int
	Requires    []world.Capability
}

// TickReport summarizes one pass.
type TickReport struct {
	Tick     uint64        `json:"tick"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"`

	Submitted       int `json:"submitted"`
	Prerequisites   int `json:"prerequisites"`
	Assigned        int `json:"assigned"`
	Preempted       int `json:"preempted"`
	Unassigned      int `json:"unassigned"`
	Completed       int `json:"completed"`
	Abandoned       int `json:"abandoned"`
	Released        int `json:"released"`
	Escalated       int `json:"escalated"`
	CapacityBlocked int `json:"capacity_blocked"`
	Idle            int `json:"idle"`
	Unmet           int `json:"unmet"`
	Faults          int `json:"faults"`
	Live            int `json:"live"`
}

// Snapshot is a diagnostic view of the service.
type Snapshot struct {
	Tick          uint64        `json:"tick"`
	Config        Config        `json:"config"`
	Tasks         []task.Record `json:"tasks"`
	History       []TickReport  `json:"history"`
	CircuitsTotal int           `json:"circuits_total"`
	CircuitsOpen  int           `json:"circuits_open"`
}

type unlimitedGate struct{}

func (unlimitedGate) IsFull(world.ID) bool            { return false }
func (unlimitedGate) Reserve(world.ID, world.ID) bool { return true }
func (unlimitedGate) Release(world.ID)                {}
func (unlimitedGate) Capacity(world.ID) (int, bool)   { return 0, false }

// stationaryRouter never moves anyone; only workers already in range act.
type stationaryRouter struct{}

func (stationaryRouter) Approach(world.Worker, world.Entity) bool { return false }
