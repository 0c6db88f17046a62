package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/w4lkr/shopsync/pkg/catalog"
)

// History keeps the audit trail of sync runs and record changes.
type History struct {
	sql *sql.DB
}

func OpenHistory(path string) (*History, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sync_runs (
  id               TEXT PRIMARY KEY,
  started_at       TEXT NOT NULL,
  ended_at         TEXT NOT NULL,
  source           TEXT NOT NULL,
  items_count      INTEGER NOT NULL,
  categories_count INTEGER NOT NULL,
  error_count      INTEGER NOT NULL DEFAULT 0,
  used_cached_data INTEGER NOT NULL CHECK (used_cached_data IN (0,1)),
  error_message    TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON sync_runs(started_at);
CREATE TABLE IF NOT EXISTS record_changes (
  id          INTEGER PRIMARY KEY,
  run_id      TEXT NOT NULL,
  occurred_at TEXT NOT NULL,
  kind        TEXT NOT NULL CHECK (kind IN ('item','category')),
  record_key  TEXT NOT NULL,
  name        TEXT,
  change_type TEXT NOT NULL CHECK (change_type IN ('added','updated','removed'))
);
CREATE INDEX IF NOT EXISTS idx_changes_run ON record_changes(run_id);
CREATE INDEX IF NOT EXISTS idx_changes_time ON record_changes(occurred_at);
    `); err != nil {
		return nil, err
	}
	return &History{sql: db}, nil
}

func (h *History) Close() error {
	if h == nil || h.sql == nil {
		return nil
	}
	return h.sql.Close()
}

// RecordRun stores a finished run and its change log in one transaction.
func (h *History) RecordRun(ctx context.Context, run catalog.SyncRun, changes []Change) error {
	tx, err := h.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_runs(id, started_at, ended_at, source, items_count, categories_count, error_count, used_cached_data, error_message)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.EndedAt.UTC().Format(time.RFC3339Nano),
		run.Source,
		run.ItemCount,
		run.CategoryCount,
		run.ErrorCount,
		boolToInt(run.UsedCachedData),
		nullIfEmpty(run.ErrorMessage),
	)
	if err != nil {
		return err
	}

	occurred := run.EndedAt.UTC().Format(time.RFC3339Nano)
	for _, c := range changes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO record_changes(run_id, occurred_at, kind, record_key, name, change_type) VALUES(?,?,?,?,?,?)`,
			run.ID, occurred, c.Kind, c.Key, nullIfEmpty(c.Name), c.ChangeType)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (h *History) ListRuns(ctx context.Context, limit int) ([]catalog.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, started_at, ended_at, source, items_count, categories_count, error_count, used_cached_data, error_message
	      FROM sync_runs ORDER BY started_at DESC LIMIT ?`
	rows, err := h.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []catalog.SyncRun
	for rows.Next() {
		var (
			run              catalog.SyncRun
			startedAt, ended string
			cached           int
			errMsg           sql.NullString
		)
		if err := rows.Scan(&run.ID, &startedAt, &ended, &run.Source, &run.ItemCount, &run.CategoryCount, &run.ErrorCount, &cached, &errMsg); err != nil {
			return nil, err
		}
		run.StartedAt = parseTime(startedAt)
		run.EndedAt = parseTime(ended)
		run.UsedCachedData = cached == 1
		run.ErrorMessage = errMsg.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// ChangeRecord is a change log row joined with its run context.
type ChangeRecord struct {
	RunID      string    `json:"run_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	Name       string    `json:"name,omitempty"`
	ChangeType string    `json:"change_type"`
}

// ListChanges returns the most recent changes across all runs.
func (h *History) ListChanges(ctx context.Context, limit int) ([]ChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT run_id, occurred_at, kind, record_key, name, change_type
	      FROM record_changes ORDER BY occurred_at DESC, id DESC LIMIT ?`
	rows, err := h.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []ChangeRecord{}
	for rows.Next() {
		var (
			c        ChangeRecord
			occurred string
			name     sql.NullString
		)
		if err := rows.Scan(&c.RunID, &occurred, &c.Kind, &c.Key, &name, &c.ChangeType); err != nil {
			return nil, err
		}
		c.OccurredAt = parseTime(occurred)
		c.Name = name.String
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

type SourceStats struct {
	Source     string `json:"source"`
	Runs       int    `json:"runs"`
	CachedRuns int    `json:"cached_runs"`
}

type ChangeStats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// GetStats aggregates run counts per source.
func (h *History) GetStats(ctx context.Context) ([]SourceStats, error) {
	query := `
		SELECT
			source,
			COUNT(*),
			SUM(used_cached_data)
		FROM
			sync_runs
		GROUP BY
			source
		ORDER BY
			source;
	`
	rows, err := h.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SourceStats
	for rows.Next() {
		var s SourceStats
		if err := rows.Scan(&s.Source, &s.Runs, &s.CachedRuns); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetChangeStats totals the change log by change type.
func (h *History) GetChangeStats(ctx context.Context) (ChangeStats, error) {
	rows, err := h.sql.QueryContext(ctx, `SELECT change_type, COUNT(*) FROM record_changes GROUP BY change_type`)
	if err != nil {
		return ChangeStats{}, err
	}
	defer rows.Close()

	var cs ChangeStats
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return ChangeStats{}, err
		}
		switch typ {
		case ChangeAdded:
			cs.Added = n
		case ChangeUpdated:
			cs.Updated = n
		case ChangeRemoved:
			cs.Removed = n
		}
	}
	if err := rows.Err(); err != nil {
		return ChangeStats{}, err
	}
	return cs, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
