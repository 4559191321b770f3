package scheduler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"hivemind/internal/task"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

func TestRecordsRestoreIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	h.define("job", &fakeBehavior{}, task.Definition{Priority: 2})
	h.define("defend", &fakeBehavior{}, task.Definition{Triggered: true})
	h.workers = []world.Worker{mkWorker("w1", 0), mkWorker("w2", 9)}
	h.entities = []world.Entity{mkEntity("a", 0), mkEntity("b", 0), mkEntity("c", 0)}
	h.gate.Define("a", 1)

	h.submit("job", "a", task.Overrides{})
	h.submit("job", "b", task.WithPriority(7))
	h.submit("job", "c", task.Overrides{})
	h.submit("defend", "a", task.Overrides{})
	h.step()

	recs := h.svc.Records()
	require.Len(t, recs, 4)

	raw, err := json.Marshal(recs)
	require.NoError(t, err)
	var decoded []task.Record
	require.NoError(t, json.Unmarshal(raw, &decoded))

	gate := newCountingGate()
	gate.Define("a", 1)
	restored := New(Config{}, h.reg, Deps{Gate: gate}, logx.Nop())
	require.Equal(t, 4, restored.Restore(h.tick, decoded))
	require.Equal(t, recs, restored.Records())
	require.True(t, gate.IsFull("a"), "reservation re-taken on restore")

	again := New(Config{}, h.reg, Deps{Gate: newCountingGate()}, logx.Nop())
	again.Restore(h.tick, restored.Records())
	require.Equal(t, recs, again.Records())

	// A restored task is the same task: resubmitting its twin is a duplicate.
	twin, _ := restored.CreateTask("job", "b", task.Overrides{})
	require.False(t, restored.Submit(twin))

	// New IDs continue after the restored sequence.
	fresh, err := restored.Enqueue("job", "d", task.Overrides{})
	require.NoError(t, err)
	for _, r := range recs {
		require.NotEqual(t, r.ID, fresh.ID)
		require.Less(t, r.Seq, fresh.Seq)
	}
}

func TestRestoreResolvesDanglingReferencesAsAbsent(t *testing.T) {
	reg := task.NewRegistry()
	reg.Register("job", task.Definition{})
	gate := newCountingGate()
	svc := New(Config{}, reg, Deps{Gate: gate}, logx.Nop())

	n := svc.Restore(40, []task.Record{
		{ID: "tsk-1-1", Name: "job", Destination: "gone", State: "queued", Seq: 1},
		{ID: "tsk-1-2", Name: "job", Destination: "here", Worker: "dead", State: "in_range", InRange: true, Reserved: true, Seq: 2},
		{ID: "tsk-1-3", Name: "unknown", Destination: "here", State: "queued", Seq: 3},
		{ID: "tsk-1-2", Name: "job", Destination: "here", State: "queued", Seq: 4},
	})
	require.Equal(t, 2, n)

	snap := world.NewIndex(41, nil, []world.Entity{mkEntity("here", 0)})
	var rep TickReport
	require.NotPanics(t, func() { rep = svc.Tick(t.Context(), snap) })
	require.Equal(t, 2, rep.Abandoned)
	require.Empty(t, svc.Tasks())
	require.Equal(t, 1, gate.released("dead"))
}

func TestRestoreDemotesConflictingOwners(t *testing.T) {
	reg := task.NewRegistry()
	reg.Register("job", task.Definition{})
	gate := newCountingGate()
	gate.Define("full", 1)
	gate.Reserve("full", "someone-else")
	svc := New(Config{}, reg, Deps{Gate: gate}, logx.Nop())

	svc.Restore(5, []task.Record{
		{ID: "a", Name: "job", Destination: "x", Worker: "w1", State: "approaching", Reserved: true, Seq: 1},
		{ID: "b", Name: "job", Destination: "y", Worker: "w1", State: "approaching", Reserved: true, Seq: 2},
		{ID: "c", Name: "job", Destination: "full", Worker: "w2", State: "in_range", Reserved: true, Seq: 3},
	})

	a, _ := svc.Task("a")
	b, _ := svc.Task("b")
	c, _ := svc.Task("c")
	require.Equal(t, world.ID("w1"), a.Worker)
	require.False(t, b.Assigned(), "second owner of w1 demoted")
	require.False(t, b.Reserved)
	require.False(t, c.Assigned(), "slot could not be re-taken")
	require.Equal(t, task.StateQueued, c.State)
}

func TestRestoreSkipsFinishedTasks(t *testing.T) {
	reg := task.NewRegistry()
	reg.Register("job", task.Definition{})
	gate := newCountingGate()
	gate.Define("d", 1)
	svc := New(Config{}, reg, Deps{Gate: gate}, logx.Nop())

	n := svc.Restore(5, []task.Record{
		{ID: "x", Name: "job", Destination: "d", Worker: "w1", State: "complete", Reserved: true, Seq: 1},
		{ID: "y", Name: "job", Destination: "d", Worker: "w2", State: "abandoned", Reserved: true, Seq: 2},
	})
	require.Zero(t, n)
	require.Empty(t, svc.Tasks())
	require.False(t, gate.IsFull("d"))

	svc.Tick(t.Context(), world.NewIndex(6,
		[]world.Worker{mkWorker("w1", 0)},
		[]world.Entity{mkEntity("d", 0)}))
	require.False(t, gate.IsFull("d"), "no slot leaked by a finished record")

	inst, ok := svc.CreateTask("job", "d", task.Overrides{})
	require.True(t, ok)
	require.True(t, svc.Submit(inst))
	rep := svc.Tick(t.Context(), world.NewIndex(7,
		[]world.Worker{mkWorker("w1", 0)},
		[]world.Entity{mkEntity("d", 0)}))
	require.Equal(t, 1, rep.Assigned)
}
