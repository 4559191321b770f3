package storage

import (
	"context"
	"errors"
	"strings"

	"hivemind/internal/task"
	logx "hivemind/pkg/logx"
)

// Store persists task snapshots.
type Store interface {
	// SaveTasks replaces the stored snapshot.
	SaveTasks(ctx context.Context, snap Snapshot) error
	// LoadTasks returns the stored snapshot; ok is false if nothing was saved yet.
	LoadTasks(ctx context.Context) (snap Snapshot, ok bool, err error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "memory", "mem":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{Tick: s.Tick}
	if len(s.Tasks) > 0 {
		out.Tasks = append(make([]task.Record, 0, len(s.Tasks)), s.Tasks...)
	}
	return out
}
