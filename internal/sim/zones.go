package sim

import (
	"hivemind/internal/world"
)

// ZoneDefiner is the part of *capacity.Gate the world uses.
type ZoneDefiner interface {
	Define(dest world.ID, n int, positions ...world.Position)
}

// DefineZones limits sources and controllers to the open tiles around them,
// at most ZoneSlots each. It returns the number of zones defined.
func (w *World) DefineZones(g ZoneDefiner) int {
	w.mu.Lock()
	type zone struct {
		id  world.ID
		pos []world.Position
	}
	var zones []zone
	for _, e := range w.entities {
		if e.Kind != KindSource && e.Kind != KindController {
			continue
		}
		pos := w.grid.around(e.Pos)
		if len(pos) == 0 {
			continue
		}
		if len(pos) > w.cfg.ZoneSlots {
			pos = pos[:w.cfg.ZoneSlots]
		}
		zones = append(zones, zone{e.ID, pos})
	}
	w.mu.Unlock()

	for _, z := range zones {
		g.Define(z.id, len(z.pos), z.pos...)
	}
	return len(zones)
}
