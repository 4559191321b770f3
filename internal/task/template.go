package task

import (
	"strings"

	"hivemind/internal/world"
)

// Definition is what callers register. Zero Range means "adjacent" (1).
type Definition struct {
	Requires  []world.Capability
	Behavior  Behavior
	Triggered bool
	Range     int
	Priority  int
	Label     string
}

// Template is the immutable, registered form of a Definition.
type Template struct {
	name      string
	requires  []world.Capability
	behavior  Behavior
	triggered bool
	rng       int
	priority  int
	label     string
}

func newTemplate(name string, def Definition) *Template {
	rng := def.Range
	if rng <= 0 {
		rng = 1
	}
	b := def.Behavior
	if b == nil {
		b = Base{}
	}
	label := strings.TrimSpace(def.Label)
	if label == "" {
		label = name
	}
	return &Template{
		name:      name,
		requires:  world.SortCapabilities(append([]world.Capability(nil), def.Requires...)),
		behavior:  b,
		triggered: def.Triggered,
		rng:       rng,
		priority:  def.Priority,
		label:     label,
	}
}

func (t *Template) Name() string       { return t.name }
func (t *Template) Behavior() Behavior { return t.behavior }
func (t *Template) Triggered() bool    { return t.triggered }
func (t *Template) Range() int         { return t.rng }
func (t *Template) Priority() int      { return t.priority }

// Label is the presentation hook shown when a worker picks the task up.
func (t *Template) Label() string { return t.label }

// Requires returns a copy of the sorted capability set.
func (t *Template) Requires() []world.Capability {
	return append([]world.Capability(nil), t.requires...)
}

// Eligible reports whether w passes the capability gate for this template.
func (t *Template) Eligible(w world.Worker) bool { return HasCapabilities(w, t.requires) }
