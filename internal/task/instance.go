package task

import (
	"fmt"

	"hivemind/internal/world"
)

// State is the lifecycle position of an Instance.
type State int

const (
	StateQueued State = iota
	StateTriggerPending
	StateApproaching
	StateInRange
	StateComplete
	StateAbandoned
)

var stateNames = [...]string{"queued", "trigger_pending", "approaching", "in_range", "complete", "abandoned"}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState is the inverse of String.
func ParseState(s string) (State, bool) {
	for i, n := range stateNames {
		if n == s {
			return State(i), true
		}
	}
	return StateQueued, false
}

// Active reports whether the state carries an assigned worker.
func (s State) Active() bool { return s == StateApproaching || s == StateInRange }

// Terminal reports whether the instance is waiting for removal.
func (s State) Terminal() bool { return s == StateComplete || s == StateAbandoned }

// Overrides replace template defaults at creation time.
type Overrides struct {
	Priority *int
	Range    *int
}

func WithPriority(p int) Overrides { return Overrides{Priority: &p} }

// Instance is a live binding of a template to a destination.
type Instance struct {
	ID          string
	Template    *Template
	Destination world.ID
	Worker      world.ID
	Priority    int
	Range       int
	InRange     bool
	State       State
	CreatedTick uint64

	// Reserved is set while the capacity gate holds a slot for Worker.
	Reserved bool

	// Seq orders instances created in the same tick. It is assigned on
	// admission and never reused.
	Seq uint64
}

func (i *Instance) Name() string {
	if i == nil || i.Template == nil {
		return ""
	}
	return i.Template.Name()
}

func (i *Instance) Assigned() bool { return i != nil && !i.Worker.IsNone() }

// Key identifies duplicates: same template against the same destination.
func (i *Instance) Key() string { return i.Name() + "@" + string(i.Destination) }

func (i *Instance) String() string {
	return fmt.Sprintf("%s(%s->%s p=%d %s)", i.ID, i.Name(), i.Destination, i.Priority, i.State)
}

func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}
