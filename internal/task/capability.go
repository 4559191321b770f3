package task

import "hivemind/internal/world"

// HasCapabilities reports whether every required tag is backed by at least one
// functional part of w. Damaged parts do not count.
func HasCapabilities(w world.Worker, required []world.Capability) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[world.Capability]struct{}, len(w.Parts))
	for _, p := range w.Parts {
		if p.Functional() {
			have[p.Type] = struct{}{}
		}
	}
	for _, c := range required {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

// UnionCapabilities merges requirement sets into one sorted set.
func UnionCapabilities(sets ...[]world.Capability) []world.Capability {
	var out []world.Capability
	for _, s := range sets {
		out = append(out, s...)
	}
	return world.SortCapabilities(out)
}
