package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"hivemind/internal/capacity"
	"hivemind/internal/task"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

const (
	capA = world.Work
	capB = world.Carry
	capX = world.Attack
)

type fakeBehavior struct {
	task.Base

	canExec  func(w world.Worker, d world.Entity) bool
	exec     func(w world.Worker, d world.Entity) task.Result
	done     func(w world.Worker, d world.Entity) bool
	prereqs  func(w world.Worker, d world.Entity) []task.Request
	trigger  func(d world.Entity) bool
	execHits int
}

func (b *fakeBehavior) CanExecute(_ task.Context, w world.Worker, d world.Entity) bool {
	if b.canExec == nil {
		return true
	}
	return b.canExec(w, d)
}

func (b *fakeBehavior) Execute(_ task.Context, w world.Worker, d world.Entity) task.Result {
	b.execHits++
	if b.exec == nil {
		return task.ResultOK
	}
	return b.exec(w, d)
}

func (b *fakeBehavior) IsComplete(_ task.Context, w world.Worker, d world.Entity) bool {
	return b.done != nil && b.done(w, d)
}

func (b *fakeBehavior) Prerequisites(_ task.Context, w world.Worker, d world.Entity) []task.Request {
	if b.prereqs == nil {
		return nil
	}
	return b.prereqs(w, d)
}

func (b *fakeBehavior) TriggerCondition(_ task.Context, d world.Entity) bool {
	return b.trigger != nil && b.trigger(d)
}

// countingGate records every Release call.
type countingGate struct {
	*capacity.Gate

	mu       sync.Mutex
	releases map[world.ID]int
}

func newCountingGate() *countingGate {
	return &countingGate{Gate: capacity.New(logx.Nop()), releases: map[world.ID]int{}}
}

func (g *countingGate) Release(w world.ID) {
	g.mu.Lock()
	g.releases[w]++
	g.mu.Unlock()
	g.Gate.Release(w)
}

func (g *countingGate) released(w world.ID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.releases[w]
}

type recordingProvisioner struct {
	demands []Demand
}

func (p *recordingProvisioner) RequestWorkers(d Demand) { p.demands = append(p.demands, d) }

type arriveRouter struct{ calls int }

func (r *arriveRouter) Approach(world.Worker, world.Entity) bool {
	r.calls++
	return true
}

type harness struct {
	t        *testing.T
	reg      *task.Registry
	gate     *countingGate
	prov     *recordingProvisioner
	router   *arriveRouter
	svc      *Service
	workers  []world.Worker
	entities []world.Entity
	tick     uint64
}

func newHarness(t *testing.T, cfg Config, sources ...WorkSource) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		reg:    task.NewRegistry(),
		gate:   newCountingGate(),
		prov:   &recordingProvisioner{},
		router: &arriveRouter{},
	}
	h.svc = New(cfg, h.reg, Deps{
		Gate:        h.gate,
		Router:      h.router,
		Provisioner: h.prov,
		Sources:     sources,
	}, logx.Nop())
	return h
}

func (h *harness) define(name string, b task.Behavior, def task.Definition) {
	def.Behavior = b
	h.reg.Register(name, def)
}

func (h *harness) submit(name string, dest world.ID, ov task.Overrides) *task.Instance {
	h.t.Helper()
	inst, ok := h.svc.CreateTask(name, dest, ov)
	require.True(h.t, ok, "CreateTask(%s)", name)
	require.True(h.t, h.svc.Submit(inst), "Submit(%s@%s)", name, dest)
	return inst
}

func (h *harness) step() TickReport {
	h.tick++
	return h.svc.Tick(context.Background(), world.NewIndex(h.tick, h.workers, h.entities))
}

func (h *harness) get(id string) *task.Instance {
	h.t.Helper()
	inst, ok := h.svc.Task(id)
	require.True(h.t, ok, "task %s not live", id)
	return inst
}

func (h *harness) live(id string) bool {
	_, ok := h.svc.Task(id)
	return ok
}

func (h *harness) dropEntity(id world.ID) {
	out := h.entities[:0]
	for _, e := range h.entities {
		if e.ID != id {
			out = append(out, e)
		}
	}
	h.entities = out
}

func (h *harness) dropWorker(id world.ID) {
	out := h.workers[:0]
	for _, w := range h.workers {
		if w.ID != id {
			out = append(out, w)
		}
	}
	h.workers = out
}

func mkWorker(id string, x int, caps ...world.Capability) world.Worker {
	parts := make([]world.Part, 0, len(caps))
	for _, c := range caps {
		parts = append(parts, world.Part{Type: c, Hits: 100})
	}
	return world.Worker{ID: world.ID(id), Name: id, Pos: world.Position{Room: "R", X: x}, Parts: parts}
}

func mkEntity(id string, x int) world.Entity {
	return world.Entity{ID: world.ID(id), Kind: "site", Pos: world.Position{Room: "R", X: x}}
}
