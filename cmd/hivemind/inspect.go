package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hivemind/internal/storage"
	"hivemind/internal/task"
	logx "hivemind/pkg/logx"
)

func inspectCmd() *cobra.Command {
	var (
		driver string
		path   string
		state  string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a persisted task set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(path) == "" {
				return fmt.Errorf("--path is required")
			}
			snap, saved, err := load(cmd, driver, path)
			if err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), snap, saved, state)
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "store", "file", "store driver: file or sqlite")
	cmd.Flags().StringVar(&path, "path", "", "store path")
	cmd.Flags().StringVar(&state, "state", "", "only show tasks in this state")
	return cmd
}

func load(cmd *cobra.Command, driver, path string) (storage.Snapshot, time.Time, error) {
	switch strings.ToLower(driver) {
	case "file":
		hdr, snap, err := storage.ReadFile(path)
		return snap, hdr.SavedAt, err
	case "sqlite", "sqlite3":
		st, err := storage.Open(storage.Config{Driver: "sqlite", Path: path}, logx.Nop())
		if err != nil {
			return storage.Snapshot{}, time.Time{}, err
		}
		defer st.Close()
		snap, ok, err := st.LoadTasks(cmd.Context())
		if err == nil && !ok {
			err = fmt.Errorf("%s: nothing saved yet", path)
		}
		return snap, time.Time{}, err
	default:
		return storage.Snapshot{}, time.Time{}, fmt.Errorf("unknown store %q", driver)
	}
}

func printSnapshot(out io.Writer, snap storage.Snapshot, saved time.Time, only string) {
	header := fmt.Sprintf("tick %d, %d tasks", snap.Tick, len(snap.Tasks))
	if !saved.IsZero() {
		header += ", saved " + saved.Format(time.RFC3339)
	}
	fmt.Fprintln(out, bold(header))

	counts := map[string]int{}
	for _, r := range snap.Tasks {
		counts[r.State]++
	}
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)
	for _, s := range states {
		fmt.Fprintf(out, "  %s %d\n", colorState(s), counts[s])
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTEMPLATE\tDEST\tWORKER\tPRIO\tSTATE")
	for _, r := range snap.Tasks {
		if only != "" && !strings.EqualFold(only, r.State) {
			continue
		}
		worker := string(r.Worker)
		if worker == "" {
			worker = "-"
		}
		if r.Reserved {
			worker += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Name, r.Destination, worker, r.Priority, r.State)
	}
	_ = tw.Flush()
}

// colorState pads before coloring so escape codes do not skew alignment.
func colorState(s string) string {
	padded := fmt.Sprintf("%-12s", s)
	switch st, _ := task.ParseState(s); {
	case st == task.StateComplete:
		return green(padded)
	case st.Active():
		return yellow(padded)
	case st == task.StateAbandoned:
		return red(padded)
	}
	return gray(padded)
}
