package task

import (
	"sort"
	"strings"
	"sync"

	"hivemind/internal/world"
)

// Registry holds templates keyed by name.
type Registry struct {
	mu sync.RWMutex
	m  map[string]*Template
}

func NewRegistry() *Registry { return &Registry{m: make(map[string]*Template)} }

// Register stores a template; an existing name is overwritten.
func (r *Registry) Register(name string, def Definition) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	t := newTemplate(name, def)
	r.mu.Lock()
	r.m[name] = t
	r.mu.Unlock()
}

func (r *Registry) Lookup(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.m[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.m))
	for n := range r.m {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Create instantiates a template. It returns (nil, false) if the name is
// unknown. ID, Seq and CreatedTick are stamped on admission.
func (r *Registry) Create(name string, dest world.ID, ov Overrides) (*Instance, bool) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	inst := &Instance{
		Template:    t,
		Destination: dest,
		Priority:    t.Priority(),
		Range:       t.Range(),
		State:       StateQueued,
	}
	if t.Triggered() {
		inst.State = StateTriggerPending
	}
	if ov.Priority != nil {
		inst.Priority = *ov.Priority
	}
	if ov.Range != nil && *ov.Range > 0 {
		inst.Range = *ov.Range
	}
	return inst, true
}
