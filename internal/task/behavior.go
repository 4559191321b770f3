package task

import "hivemind/internal/world"

// Context is what every behavior call sees for the current tick.
type Context struct {
	World world.Snapshot
	Tick  uint64
}

// NewContext binds a context to a snapshot.
func NewContext(snap world.Snapshot) Context {
	return Context{World: snap, Tick: snap.Tick()}
}

// Result is the outcome of one Execute call.
type Result int

const (
	// ResultOK means the action was accepted by the world.
	ResultOK Result = iota
	// ResultNotInRange asks the scheduler to re-approach without unassigning.
	ResultNotInRange
	// ResultRejected unassigns the worker and releases its capacity.
	ResultRejected
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultNotInRange:
		return "not_in_range"
	case ResultRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Request asks the scheduler to create a task by template name.
// Prerequisites are expressed this way so behaviors never need the registry.
type Request struct {
	Name        string
	Destination world.ID
	Overrides   Overrides
}

// Behavior is the per-template logic.
//
// Only TriggerCondition is consulted for templates registered as triggered;
// it is never called for queued templates.
type Behavior interface {
	CanExecute(c Context, w world.Worker, dest world.Entity) bool
	Execute(c Context, w world.Worker, dest world.Entity) Result
	IsComplete(c Context, w world.Worker, dest world.Entity) bool
	Prerequisites(c Context, w world.Worker, dest world.Entity) []Request
	TriggerCondition(c Context, dest world.Entity) bool
}

// Base supplies permissive defaults so behaviors only override what they need.
type Base struct{}

func (Base) CanExecute(Context, world.Worker, world.Entity) bool         { return true }
func (Base) Execute(Context, world.Worker, world.Entity) Result          { return ResultOK }
func (Base) IsComplete(Context, world.Worker, world.Entity) bool         { return false }
func (Base) Prerequisites(Context, world.Worker, world.Entity) []Request { return nil }
func (Base) TriggerCondition(Context, world.Entity) bool                 { return false }
