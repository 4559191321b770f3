package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"hivemind/internal/task"
	logx "hivemind/pkg/logx"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Tick: 412,
		Tasks: []task.Record{
			{ID: "tsk-3-1", Name: "harvest", Destination: "src-1", Worker: "w-1", Priority: 2, Range: 1, InRange: true, State: "in_range", Reserved: true, CreatedTick: 3, Seq: 1},
			{ID: "tsk-9-4", Name: "build", Destination: "site-2", Priority: 5, Range: 3, State: "queued", CreatedTick: 9, Seq: 4},
			{ID: "tsk-9-7", Name: "defend", Destination: "spawn-1", Priority: 10, Range: 3, State: "trigger_pending", CreatedTick: 9, Seq: 7},
		},
	}
}

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "tasks")
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDriversRoundTrip(t *testing.T) {
	for _, driver := range []string{"memory", "file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openDriver(t, driver)

			_, ok, err := st.LoadTasks(ctx)
			require.NoError(t, err)
			require.False(t, ok, "fresh store has no snapshot")

			want := sampleSnapshot()
			require.NoError(t, st.SaveTasks(ctx, want))
			got, ok, err := st.LoadTasks(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, want, got)

			// Saving what was loaded changes nothing.
			require.NoError(t, st.SaveTasks(ctx, got))
			again, _, err := st.LoadTasks(ctx)
			require.NoError(t, err)
			require.Equal(t, want, again)

			// A later save replaces, never merges.
			require.NoError(t, st.SaveTasks(ctx, Snapshot{Tick: 500}))
			empty, ok, err := st.LoadTasks(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, Snapshot{Tick: 500}, empty)
		})
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		require.NoError(t, err)
		require.Nil(t, st)
	}
	_, err := Open(Config{Driver: "etcd"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err, "file driver needs a path")
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.zst")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.SaveTasks(ctx, sampleSnapshot()))
	require.NoError(t, st.Close())

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file left behind")

	hdr, snap, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, FormatVersion, hdr.Version)
	require.Equal(t, uint64(412), hdr.Tick)
	require.Equal(t, 3, hdr.Tasks)
	require.False(t, hdr.SavedAt.IsZero())
	require.Len(t, snap.Tasks, 3)

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	got, ok, err := st2.LoadTasks(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sampleSnapshot(), got)
}

func TestFileStoreRejectsCorruptSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tasks")
	require.NoError(t, os.WriteFile(path, []byte("not zstd at all"), 0o600))

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	_, ok, err := st.LoadTasks(context.Background())
	require.Error(t, err)
	require.False(t, ok)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.SaveTasks(ctx, sampleSnapshot()))
	require.NoError(t, st.Close())

	st2, err := Open(Config{Driver: "sqlite3", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()
	got, ok, err := st2.LoadTasks(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sampleSnapshot(), got)
}

func TestSaveHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, driver := range []string{"memory", "file"} {
		st := openDriver(t, driver)
		require.ErrorIs(t, st.SaveTasks(ctx, sampleSnapshot()), context.Canceled, driver)
	}
}
