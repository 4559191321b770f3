package world

// Snapshot is the state of the world at the start of one tick.
//
// Workers and Entities return values in a stable order; the scheduler relies
// on it for deterministic tie-breaks.
type Snapshot interface {
	Tick() uint64
	Worker(id ID) (Worker, bool)
	Workers() []Worker
	Entity(id ID) (Entity, bool)
	Entities() []Entity
}

// Index is a map-backed Snapshot.
type Index struct {
	tick     uint64
	workers  []Worker
	entities []Entity
	wByID    map[ID]int
	eByID    map[ID]int
}

// NewIndex builds a snapshot. Later duplicates of an ID replace earlier ones
// in lookups but keep the first position in iteration order.
func NewIndex(tick uint64, workers []Worker, entities []Entity) *Index {
	ix := &Index{
		tick:  tick,
		wByID: make(map[ID]int, len(workers)),
		eByID: make(map[ID]int, len(entities)),
	}
	for _, w := range workers {
		if i, ok := ix.wByID[w.ID]; ok {
			ix.workers[i] = w
			continue
		}
		ix.wByID[w.ID] = len(ix.workers)
		ix.workers = append(ix.workers, w)
	}
	for _, e := range entities {
		if i, ok := ix.eByID[e.ID]; ok {
			ix.entities[i] = e
			continue
		}
		ix.eByID[e.ID] = len(ix.entities)
		ix.entities = append(ix.entities, e)
	}
	return ix
}

func (ix *Index) Tick() uint64 { return ix.tick }

func (ix *Index) Worker(id ID) (Worker, bool) {
	if ix == nil || id.IsNone() {
		return Worker{}, false
	}
	i, ok := ix.wByID[id]
	if !ok {
		return Worker{}, false
	}
	return ix.workers[i], true
}

func (ix *Index) Workers() []Worker {
	if ix == nil {
		return nil
	}
	return append([]Worker(nil), ix.workers...)
}

func (ix *Index) Entity(id ID) (Entity, bool) {
	if ix == nil || id.IsNone() {
		return Entity{}, false
	}
	i, ok := ix.eByID[id]
	if !ok {
		return Entity{}, false
	}
	return ix.entities[i], true
}

func (ix *Index) Entities() []Entity {
	if ix == nil {
		return nil
	}
	return append([]Entity(nil), ix.entities...)
}

// OfKind filters entities by kind, preserving order.
func OfKind(s Snapshot, kind string) []Entity {
	var out []Entity
	for _, e := range s.Entities() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
