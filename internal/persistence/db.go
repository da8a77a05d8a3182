// Package persistence provides SQLite-based run history storage.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/speedrunner/internal/engine"
)

// ErrUnknownRun is returned when a run id has no row.
var ErrUnknownRun = errors.New("unknown run")

// DB wraps a SQLite connection for run history.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		ticks INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		final_phase TEXT NOT NULL DEFAULT '',
		elapsed_ns INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS ticks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		phase TEXT NOT NULL,
		action TEXT NOT NULL,
		executed TEXT NOT NULL,
		source TEXT NOT NULL,
		reward REAL NOT NULL,
		epsilon REAL NOT NULL,
		success INTEGER NOT NULL,
		elapsed_ns INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ticks_run ON ticks(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// runRow is the stored shape of a run. Times are unix milliseconds.
type runRow struct {
	ID         string `db:"id"`
	StartedAt  int64  `db:"started_at"`
	EndedAt    int64  `db:"ended_at"`
	Outcome    string `db:"outcome"`
	Ticks      int    `db:"ticks"`
	Deaths     int    `db:"deaths"`
	FinalPhase string `db:"final_phase"`
	ElapsedNS  int64  `db:"elapsed_ns"`
}

func toRow(r engine.RunSummary) runRow {
	row := runRow{
		ID:         r.ID,
		StartedAt:  r.StartedAt.UnixMilli(),
		Outcome:    string(r.Outcome),
		Ticks:      r.Ticks,
		Deaths:     r.Deaths,
		FinalPhase: r.FinalPhase,
		ElapsedNS:  int64(r.Elapsed),
	}
	if !r.EndedAt.IsZero() {
		row.EndedAt = r.EndedAt.UnixMilli()
	}
	return row
}

func (row runRow) summary() engine.RunSummary {
	s := engine.RunSummary{
		ID:         row.ID,
		StartedAt:  time.UnixMilli(row.StartedAt).UTC(),
		Outcome:    engine.Outcome(row.Outcome),
		Ticks:      row.Ticks,
		Deaths:     row.Deaths,
		FinalPhase: row.FinalPhase,
		Elapsed:    time.Duration(row.ElapsedNS),
	}
	if row.EndedAt != 0 {
		s.EndedAt = time.UnixMilli(row.EndedAt).UTC()
	}
	return s
}

// StartRun inserts a new run.
func (db *DB) StartRun(r engine.RunSummary) error {
	_, err := db.conn.NamedExec(`INSERT INTO runs
		(id, started_at, ended_at, outcome, ticks, deaths, final_phase, elapsed_ns)
		VALUES (:id, :started_at, :ended_at, :outcome, :ticks, :deaths, :final_phase, :elapsed_ns)`,
		toRow(r))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// RecordTick appends one tick to its run.
func (db *DB) RecordTick(t engine.TickRecord) error {
	_, err := db.conn.NamedExec(`INSERT INTO ticks
		(run_id, tick, phase, action, executed, source, reward, epsilon, success, elapsed_ns)
		VALUES (:run_id, :tick, :phase, :action, :executed, :source, :reward, :epsilon, :success, :elapsed_ns)`,
		t)
	if err != nil {
		return fmt.Errorf("insert tick %d: %w", t.Tick, err)
	}
	return nil
}

// FinishRun writes a run's final summary and bumps the lifetime counters.
func (db *DB) FinishRun(r engine.RunSummary) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.NamedExec(`UPDATE runs SET
		ended_at = :ended_at, outcome = :outcome, ticks = :ticks, deaths = :deaths,
		final_phase = :final_phase, elapsed_ns = :elapsed_ns
		WHERE id = :id`, toRow(r))
	if err != nil {
		return fmt.Errorf("update run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", r.ID, ErrUnknownRun)
	}

	for _, key := range []string{"runs_finished", "runs_" + string(r.Outcome)} {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, '1')
			ON CONFLICT(key) DO UPDATE SET value = CAST(value AS INTEGER) + 1`, key); err != nil {
			return fmt.Errorf("bump %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("run saved", "run", r.ID, "outcome", r.Outcome, "ticks", r.Ticks)
	return nil
}

// Run returns one run by id.
func (db *DB) Run(id string) (engine.RunSummary, error) {
	var row runRow
	err := db.conn.Get(&row, "SELECT * FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.RunSummary{}, fmt.Errorf("%s: %w", id, ErrUnknownRun)
	}
	if err != nil {
		return engine.RunSummary{}, err
	}
	return row.summary(), nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]engine.RunSummary, error) {
	var rows []runRow
	err := db.conn.Select(&rows,
		"SELECT * FROM runs ORDER BY started_at DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]engine.RunSummary, len(rows))
	for i, row := range rows {
		out[i] = row.summary()
	}
	return out, nil
}

// Ticks returns a run's ticks in order.
func (db *DB) Ticks(runID string) ([]engine.TickRecord, error) {
	var ticks []engine.TickRecord
	err := db.conn.Select(&ticks,
		`SELECT run_id, tick, phase, action, executed, source, reward, epsilon, success, elapsed_ns
		FROM ticks WHERE run_id = ? ORDER BY tick`,
		runID,
	)
	return ticks, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
