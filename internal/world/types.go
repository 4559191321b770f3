package world

import (
	"fmt"
	"sort"
)

// ID is a weak handle to a world entity or worker.
type ID string

// None is the explicit "absent" reference.
const None ID = ""

func (id ID) IsNone() bool { return id == None }

// Capability is a functional unit tag (a body part type).
type Capability string

const (
	Move   Capability = "move"
	Work   Capability = "work"
	Carry  Capability = "carry"
	Attack Capability = "attack"
	Ranged Capability = "ranged"
	Heal   Capability = "heal"
	Claim  Capability = "claim"
	Tough  Capability = "tough"
)

// SortCapabilities sorts and de-duplicates caps in place.
func SortCapabilities(caps []Capability) []Capability {
	if len(caps) == 0 {
		return caps
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	out := caps[:1]
	for _, c := range caps[1:] {
		if c != out[len(out)-1] {
			out = append(out, c)
		}
	}
	return out
}

// Part is one capability unit of a worker. A part with no hits left is
// present but not functional.
type Part struct {
	Type Capability `json:"type"`
	Hits int        `json:"hits"`
}

func (p Part) Functional() bool { return p.Hits > 0 }

// Position is a tile in a room.
type Position struct {
	Room string `json:"room"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// FarAway is the range reported between positions in different rooms.
const FarAway = 1 << 20

// Range is the Chebyshev distance between two tiles of the same room.
func (p Position) Range(o Position) int {
	if p.Room != o.Room {
		return FarAway
	}
	return max(abs(p.X-o.X), abs(p.Y-o.Y))
}

func (p Position) InRange(o Position, r int) bool { return p.Range(o) <= r }

func (p Position) String() string { return fmt.Sprintf("%s[%d,%d]", p.Room, p.X, p.Y) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Worker is an agent that can be assigned to tasks.
type Worker struct {
	ID    ID       `json:"id"`
	Name  string   `json:"name"`
	Pos   Position `json:"pos"`
	Parts []Part   `json:"parts"`

	// TicksToLive counts down to the worker's expiry. 0 means unknown.
	TicksToLive int `json:"ttl,omitempty"`

	Load     int `json:"load"`
	Capacity int `json:"capacity"`
}

// Count reports the number of functional parts of the given type.
func (w Worker) Count(c Capability) int {
	n := 0
	for _, p := range w.Parts {
		if p.Type == c && p.Functional() {
			n++
		}
	}
	return n
}

// Has reports whether at least one functional part of type c exists.
func (w Worker) Has(c Capability) bool { return w.Count(c) > 0 }

// Capabilities returns the sorted set of functional capability tags.
func (w Worker) Capabilities() []Capability {
	out := make([]Capability, 0, len(w.Parts))
	for _, p := range w.Parts {
		if p.Functional() {
			out = append(out, p.Type)
		}
	}
	return SortCapabilities(out)
}

func (w Worker) Empty() bool { return w.Load <= 0 }
func (w Worker) Full() bool  { return w.Capacity > 0 && w.Load >= w.Capacity }

// Entity is any non-worker object a task can target.
type Entity struct {
	ID    ID             `json:"id"`
	Kind  string         `json:"kind"`
	Pos   Position       `json:"pos"`
	Attrs map[string]int `json:"attrs,omitempty"`
}

// Attr returns a numeric attribute, 0 when unset.
func (e Entity) Attr(k string) int {
	if e.Attrs == nil {
		return 0
	}
	return e.Attrs[k]
}

// Common attribute keys.
const (
	AttrEnergy         = "energy"
	AttrEnergyCapacity = "energy_capacity"
	AttrHits           = "hits"
	AttrHitsMax        = "hits_max"
	AttrProgress       = "progress"
	AttrProgressTotal  = "progress_total"
	AttrHostiles       = "hostiles"
)
