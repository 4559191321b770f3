package provision

import (
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"hivemind/internal/metrics"
	"hivemind/internal/task"
	"hivemind/internal/task/scheduler"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

type spawnCall struct {
	tick uint64
	name string
	body []world.Capability
}

type fakeSpawner struct {
	id    world.ID
	pos   world.Position
	err   error
	limit int // parts; 0 means unlimited
	calls []spawnCall
}

func (s *fakeSpawner) ID() world.ID        { return s.id }
func (s *fakeSpawner) Pos() world.Position { return s.pos }

func (s *fakeSpawner) Spawn(tick uint64, name string, body []world.Capability) error {
	s.calls = append(s.calls, spawnCall{tick: tick, name: name, body: append([]world.Capability(nil), body...)})
	if s.limit > 0 && len(body) > s.limit {
		return ErrBodyTooLarge
	}
	return s.err
}

type fakeEnqueuer struct {
	reqs []task.Request
	err  error
}

func (e *fakeEnqueuer) Enqueue(name string, dest world.ID, _ task.Overrides) (*task.Instance, error) {
	e.reqs = append(e.reqs, task.Request{Name: name, Destination: dest})
	if e.err != nil {
		return nil, e.err
	}
	return &task.Instance{ID: "refill-" + string(dest), Destination: dest}, nil
}

func unmet(name string, prio int, caps ...world.Capability) scheduler.UnmetTask {
	return scheduler.UnmetTask{ID: name, Name: name, Destination: world.ID("d-" + name), Priority: prio, Requires: caps}
}

func TestBodyAddsOneMovePerCapability(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		group []scheduler.UnmetTask
		want  []world.Capability
	}{
		{"empty requirements", []scheduler.UnmetTask{unmet("a", 0)}, []world.Capability{world.Move}},
		{"single", []scheduler.UnmetTask{unmet("a", 0, world.Work)}, []world.Capability{world.Move, world.Work}},
		{
			"union dedup",
			[]scheduler.UnmetTask{unmet("a", 0, world.Work, world.Carry), unmet("b", 0, world.Carry)},
			[]world.Capability{world.Move, world.Move, world.Carry, world.Work},
		},
		{"move requirement ignored", []scheduler.UnmetTask{unmet("a", 0, world.Move, world.Claim)}, []world.Capability{world.Move, world.Claim}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Body(tc.group); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Body = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOrdinalNames(t *testing.T) {
	t.Parallel()

	want := map[int]string{1: "Gray", 2: "Gray the 2nd", 3: "Gray the 3rd", 4: "Gray the 4th", 11: "Gray the 11th", 21: "Gray the 21st", 112: "Gray the 112th"}
	for n, w := range want {
		if got := ordinalName("Gray", n); got != w {
			t.Fatalf("ordinalName(%d) = %q, want %q", n, got, w)
		}
	}
}

func TestRequestWorkersGroupsAllTasksIntoOneBody(t *testing.T) {
	t.Parallel()

	sp := &fakeSpawner{id: "spawn1"}
	p := New(Config{}, []Spawner{sp}, Options{}, logx.Nop())
	p.RequestWorkers(scheduler.Demand{Tick: 3, Tasks: []scheduler.UnmetTask{
		unmet("a", 0, world.Work), unmet("b", 0, world.Carry),
	}})

	if len(sp.calls) != 1 {
		t.Fatalf("spawn calls = %d, want 1", len(sp.calls))
	}
	want := []world.Capability{world.Move, world.Move, world.Carry, world.Work}
	if !reflect.DeepEqual(sp.calls[0].body, want) {
		t.Fatalf("body = %v, want %v", sp.calls[0].body, want)
	}
	if sp.calls[0].name != defaultNames[0] {
		t.Fatalf("name = %q, want %q", sp.calls[0].name, defaultNames[0])
	}
	if st := p.Stats(); st.Spawned != 1 || st.LastSpawn != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRequestWorkersShrinksGroupsToFitBudget(t *testing.T) {
	t.Parallel()

	a := &fakeSpawner{id: "a"}
	b := &fakeSpawner{id: "b"}
	p := New(Config{PartBudget: 4}, []Spawner{a, b}, Options{}, logx.Nop())
	p.RequestWorkers(scheduler.Demand{Tick: 1, Tasks: []scheduler.UnmetTask{
		unmet("x", 0, world.Work, world.Carry),
		unmet("y", 0, world.Attack, world.Heal),
	}})

	// The combined body needs 8 parts; each half fits in 4.
	if len(a.calls) != 1 || len(b.calls) != 1 {
		t.Fatalf("calls a=%d b=%d, want 1 each", len(a.calls), len(b.calls))
	}
	if got := len(a.calls[0].body); got != 4 {
		t.Fatalf("body size = %d, want 4", got)
	}
}

func TestRequestWorkersHighestPriorityFirst(t *testing.T) {
	t.Parallel()

	sp := &fakeSpawner{id: "s", limit: 2}
	p := New(Config{}, []Spawner{sp}, Options{}, logx.Nop())
	p.RequestWorkers(scheduler.Demand{Tick: 1, Tasks: []scheduler.UnmetTask{
		unmet("low", 1, world.Carry),
		unmet("high", 9, world.Attack),
	}})

	last := sp.calls[len(sp.calls)-1]
	if !reflect.DeepEqual(last.body, []world.Capability{world.Move, world.Attack}) {
		t.Fatalf("spawned body = %v, want the high priority task's", last.body)
	}
}

func TestRequestWorkersRespectsCooldownAndCap(t *testing.T) {
	t.Parallel()

	sp := &fakeSpawner{id: "s"}
	pop := 0
	p := New(Config{CooldownTicks: 10, MaxWorkers: 2}, []Spawner{sp}, Options{Population: func() int { return pop }}, logx.Nop())
	d := func(tick uint64) scheduler.Demand {
		return scheduler.Demand{Tick: tick, Tasks: []scheduler.UnmetTask{unmet("a", 0, world.Work)}}
	}

	p.RequestWorkers(d(5))
	pop = 1
	p.RequestWorkers(d(9))
	if len(sp.calls) != 1 {
		t.Fatalf("calls during cooldown = %d, want 1", len(sp.calls))
	}
	p.RequestWorkers(d(15))
	if len(sp.calls) != 2 {
		t.Fatalf("calls after cooldown = %d, want 2", len(sp.calls))
	}
	if sp.calls[1].name != defaultNames[1] {
		t.Fatalf("second name = %q, want %q", sp.calls[1].name, defaultNames[1])
	}
	pop = 2
	p.RequestWorkers(d(40))
	if len(sp.calls) != 2 {
		t.Fatalf("calls at population cap = %d, want 2", len(sp.calls))
	}
}

func TestRequestWorkersQueuesRefillWhenEnergyShort(t *testing.T) {
	t.Parallel()

	sp := &fakeSpawner{id: "spawn1", err: ErrNotEnoughEnergy}
	enq := &fakeEnqueuer{}
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	p := New(Config{}, []Spawner{sp}, Options{Refill: enq, Metrics: m}, logx.Nop())

	p.RequestWorkers(scheduler.Demand{Tick: 2, Tasks: []scheduler.UnmetTask{unmet("a", 0, world.Work)}})

	if len(enq.reqs) != 1 || enq.reqs[0] != (task.Request{Name: "deposit", Destination: "spawn1"}) {
		t.Fatalf("refill requests = %+v", enq.reqs)
	}
	if st := p.Stats(); st.Refills != 1 || st.Spawned != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if got := testutil.CollectAndCount(reg, "hivemind_provision_spawn_attempts_total"); got != 1 {
		t.Fatalf("spawn outcome series = %d, want 1", got)
	}

	// A refill that is already queued is not an error.
	enq.err = task.ErrDuplicate
	p.RequestWorkers(scheduler.Demand{Tick: 3, Tasks: []scheduler.UnmetTask{unmet("a", 0, world.Work)}})
	if st := p.Stats(); st.Refills != 1 {
		t.Fatalf("refills = %d, want 1", st.Refills)
	}
}

func TestRequestWorkersSkipsBusySpawner(t *testing.T) {
	t.Parallel()

	busy := &fakeSpawner{id: "busy", err: ErrSpawnerBusy}
	free := &fakeSpawner{id: "free"}
	p := New(Config{}, []Spawner{busy, free}, Options{}, logx.Nop())
	p.RequestWorkers(scheduler.Demand{Tick: 1, Tasks: []scheduler.UnmetTask{unmet("a", 0, world.Work)}})

	if len(free.calls) != 1 {
		t.Fatalf("free spawner calls = %d, want 1", len(free.calls))
	}
}

func TestRequestWorkersPrefersNearestSpawner(t *testing.T) {
	t.Parallel()

	far := &fakeSpawner{id: "far", pos: world.Position{Room: "R", X: 40}}
	near := &fakeSpawner{id: "near", pos: world.Position{Room: "R", X: 2}}
	locate := func(id world.ID) (world.Position, bool) { return world.Position{Room: "R", X: 1}, true }
	p := New(Config{}, []Spawner{far, near}, Options{Locate: locate}, logx.Nop())
	p.RequestWorkers(scheduler.Demand{Tick: 1, Tasks: []scheduler.UnmetTask{unmet("a", 0, world.Work)}})

	if len(near.calls) != 1 || len(far.calls) != 0 {
		t.Fatalf("near=%d far=%d, want 1/0", len(near.calls), len(far.calls))
	}
}

func TestRequestWorkersLogsUnknownErrors(t *testing.T) {
	t.Parallel()

	sp := &fakeSpawner{id: "s", err: errors.New("boom")}
	p := New(Config{}, []Spawner{sp}, Options{}, logx.Nop())
	p.RequestWorkers(scheduler.Demand{Tick: 1, Tasks: []scheduler.UnmetTask{unmet("a", 0, world.Work)}})

	if p.Stats().Spawned != 0 {
		t.Fatal("failed spawn counted")
	}
	if len(sp.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(sp.calls))
	}
}
