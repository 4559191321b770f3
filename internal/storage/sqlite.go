package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"hivemind/internal/task"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const metaTick = "tick"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveTasks replaces the whole table in one transaction.
func (s *sqliteStore) SaveTasks(ctx context.Context, snap Snapshot) (err error) {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tasks(id, seq, name, destination, worker, priority, task_range, in_range, state, reserved, created_tick)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range snap.Tasks {
		if _, err = stmt.ExecContext(ctx,
			r.ID, int64(r.Seq), r.Name, string(r.Destination), nullStr(string(r.Worker)),
			r.Priority, r.Range, r.InRange, r.State, r.Reserved, int64(r.CreatedTick),
		); err != nil {
			return fmt.Errorf("insert task %s: %w", r.ID, err)
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		metaTick, strconv.FormatUint(snap.Tick, 10),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadTasks(ctx context.Context) (Snapshot, bool, error) {
	if s == nil || s.db == nil {
		return Snapshot{}, false, ErrDisabled
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaTick).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	tick, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("meta tick %q: %w", raw, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, name, destination, worker, priority, task_range, in_range, state, reserved, created_tick
		 FROM tasks ORDER BY seq`)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer rows.Close()

	snap := Snapshot{Tick: tick}
	for rows.Next() {
		var (
			r            task.Record
			seq, created int64
			dest         string
			worker       sql.NullString
		)
		if err := rows.Scan(&r.ID, &seq, &r.Name, &dest, &worker, &r.Priority, &r.Range,
			&r.InRange, &r.State, &r.Reserved, &created); err != nil {
			return Snapshot{}, false, err
		}
		r.Seq = uint64(seq)
		r.CreatedTick = uint64(created)
		r.Destination = world.ID(dest)
		if worker.Valid {
			r.Worker = world.ID(worker.String)
		}
		snap.Tasks = append(snap.Tasks, r)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
