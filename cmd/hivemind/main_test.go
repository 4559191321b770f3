package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"hivemind/internal/storage"
	"hivemind/internal/task"
	logx "hivemind/pkg/logx"
)

func TestInspectPrintsSavedTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.zst")
	st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.SaveTasks(t.Context(), storage.Snapshot{
		Tick: 12,
		Tasks: []task.Record{
			{ID: "tsk-3-1", Name: "harvest", Destination: "source-4", Worker: "worker-9", State: "approaching", Reserved: true, Seq: 1},
			{ID: "tsk-5-2", Name: "build", Destination: "site-7", Priority: 1, State: "queued", Seq: 2},
		},
	}))
	require.NoError(t, st.Close())

	var out bytes.Buffer
	cmd := inspectCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--path", path, "--state", "queued"})
	require.NoError(t, cmd.Execute())

	s := out.String()
	require.Contains(t, s, "tick 12, 2 tasks")
	require.Contains(t, s, "tsk-5-2")
	require.NotContains(t, s, "tsk-3-1")
}

func TestInspectRequiresPath(t *testing.T) {
	cmd := inspectCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)
	require.Error(t, cmd.Execute())
}

func TestValidateRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, writeFile(good, "logging:\n  level: info\n"))
	require.NoError(t, writeFile(bad, "logging:\n  level: info\nbogus: 1\n"))

	var out bytes.Buffer
	cmd := validateCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{good})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), good)

	cmd = validateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{bad})
	require.Error(t, cmd.Execute())
}

func writeFile(path, body string) error { return os.WriteFile(path, []byte(body), 0o600) }
