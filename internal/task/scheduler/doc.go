// Package scheduler matches workers to tasks once per tick.
//
// A pass runs, in order: stale-reference sweep, queued matching (priority
// descending, nearest eligible worker first, prerequisites on refusal),
// triggered activation and force-unassignment, starvation escalation on a
// cadence, idle-worker fallback to work sources, the execution state machine
// for every assigned task, garbage collection, and finally the unmet-demand
// signal to the provisioner.
//
// Everything runs on the caller's goroutine. The only state carried between
// ticks is the live task set, which round-trips through Records/Restore.
package scheduler
