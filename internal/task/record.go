package task

import (
	"fmt"

	"hivemind/internal/world"
)

// Record is the durable form of an Instance. It stores the template by name
// and references by handle only.
type Record struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Destination world.ID `json:"destination"`
	Worker      world.ID `json:"worker,omitempty"`
	Priority    int      `json:"priority"`
	Range       int      `json:"range"`
	InRange     bool     `json:"in_range,omitempty"`
	State       string   `json:"state"`
	Reserved    bool     `json:"reserved,omitempty"`
	CreatedTick uint64   `json:"created_tick"`
	Seq         uint64   `json:"seq"`
}

func (i *Instance) Record() Record {
	return Record{
		ID:          i.ID,
		Name:        i.Name(),
		Destination: i.Destination,
		Worker:      i.Worker,
		Priority:    i.Priority,
		Range:       i.Range,
		InRange:     i.InRange,
		State:       i.State.String(),
		Reserved:    i.Reserved,
		CreatedTick: i.CreatedTick,
		Seq:         i.Seq,
	}
}

// FromRecord rebuilds an instance. Entity references are not resolved here;
// a handle to something that no longer exists resolves as absent on the next
// tick.
func (r *Registry) FromRecord(rec Record) (*Instance, error) {
	t, ok := r.Lookup(rec.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, rec.Name)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrBadRecord)
	}
	st, ok := ParseState(rec.State)
	if !ok {
		return nil, fmt.Errorf("%w: state %q", ErrBadRecord, rec.State)
	}
	rng := rec.Range
	if rng <= 0 {
		rng = t.Range()
	}
	inst := &Instance{
		ID:          rec.ID,
		Template:    t,
		Destination: rec.Destination,
		Worker:      rec.Worker,
		Priority:    rec.Priority,
		Range:       rng,
		InRange:     rec.InRange,
		State:       st,
		Reserved:    rec.Reserved,
		CreatedTick: rec.CreatedTick,
		Seq:         rec.Seq,
	}
	// A record can only be active with a worker, and vice versa.
	switch {
	case inst.Worker.IsNone() && st.Active():
		inst.State = pendingState(t)
		inst.InRange = false
		inst.Reserved = false
	case !inst.Worker.IsNone() && !st.Active() && !st.Terminal():
		inst.State = StateApproaching
	}
	return inst, nil
}

func pendingState(t *Template) State {
	if t.Triggered() {
		return StateTriggerPending
	}
	return StateQueued
}

// PendingState is the state an unassigned instance of t rests in.
func PendingState(t *Template) State { return pendingState(t) }
