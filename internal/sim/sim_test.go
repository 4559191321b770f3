package sim_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"hivemind/internal/capacity"
	"hivemind/internal/eventbus"
	"hivemind/internal/metrics"
	"hivemind/internal/provision"
	"hivemind/internal/sim"
	"hivemind/internal/task"
	"hivemind/internal/task/scheduler"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

func TestSimulationEndToEnd(t *testing.T) {
	w, err := sim.New(sim.Config{
		Seed: 5, Width: 20, Height: 16, WallPermille: 50,
		Sources: 2, Structures: 2, Sites: 1, Workers: 3,
		WorkerTTL: 400, RecycleBelow: 30,
		RaidEvery: "60", SiteEvery: "150",
	}, logx.Nop())
	require.NoError(t, err)

	reg := task.NewRegistry()
	w.Register(reg)
	gate := capacity.New(logx.Nop())
	require.Positive(t, w.DefineZones(gate))

	bus := eventbus.New()
	met := metrics.MustNew(prometheus.NewRegistry())
	pool := provision.New(provision.Config{MaxWorkers: 8, CooldownTicks: 5, PartBudget: 12}, w.Spawners(),
		provision.Options{Population: w.Population, Locate: w.Locate, Metric: w.Metric(), Metrics: met}, logx.Nop())
	svc := scheduler.New(scheduler.Config{RecursePrerequisites: true}, reg, scheduler.Deps{
		Gate:        gate,
		Router:      w.Router(gate),
		Provisioner: pool,
		Sources:     w.WorkSources(),
		Metric:      w.Metric(),
		Bus:         bus,
		Metrics:     met,
	}, logx.Nop())
	pool.SetRefill(svc)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	listening := make(chan error, 1)
	go func() { listening <- w.Listen(ctx, bus) }()

	var completed, assigned int
	for range 800 {
		w.Step()
		snap := w.Snapshot()
		w.Plan(snap, svc)
		rep := svc.Tick(ctx, snap)
		completed += rep.Completed
		assigned += rep.Assigned
		checkInvariants(t, snap, svc, gate)
	}

	require.Eventually(t, func() bool { return len(w.Status().Speech) > 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-listening, context.Canceled)

	st := w.Stats()
	require.Positive(t, st.Harvested)
	require.Positive(t, st.Deposited+st.Built+st.Upgraded+st.Repaired)
	require.Positive(t, st.Spawned)
	require.Positive(t, completed)
	require.Positive(t, assigned)
	require.Equal(t, pool.Stats().Spawned, st.Spawned+pending(w, st))
}

// pending is the number of spawns paid for but not yet delivered.
func pending(w *sim.World, st sim.Stats) int {
	return w.Population() - st.Workers
}

func checkInvariants(t *testing.T, snap world.Snapshot, svc *scheduler.Service, gate *capacity.Gate) {
	t.Helper()
	owners := map[world.ID]string{}
	reserved := map[world.ID]int{}
	for _, tk := range svc.Tasks() {
		require.False(t, tk.State.Terminal(), "terminal task %s still live", tk)
		if !tk.Assigned() {
			require.False(t, tk.State.Active(), "unassigned task %s is active", tk)
			require.False(t, tk.Reserved, "unassigned task %s holds a slot", tk)
			continue
		}
		prev, dup := owners[tk.Worker]
		require.False(t, dup, "worker %s owned by %s and %s", tk.Worker, prev, tk.ID)
		owners[tk.Worker] = tk.ID
		if wk, ok := snap.Worker(tk.Worker); ok {
			require.True(t, tk.Template.Eligible(wk), "worker %s lacks capabilities for %s", wk.ID, tk)
		}
		if tk.Reserved {
			reserved[tk.Destination]++
		}
	}
	for _, z := range gate.Stats() {
		require.LessOrEqual(t, z.InUse, z.Limit, "zone %s over capacity", z.Destination)
		require.Equal(t, reserved[z.Destination], z.InUse, "zone %s holders disagree with tasks", z.Destination)
	}
}
