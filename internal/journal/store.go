// Package journal keeps an append-only SQLite record of tool invocations.
// Only outcomes are stored; parameters and context values never are.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"toolcall/internal/domain"
)

// SQLiteJournal implements domain.Journal using SQLite.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.Journal = (*SQLiteJournal)(nil)

func NewSQLiteJournal(dbPath string, logger *slog.Logger) (*SQLiteJournal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return &SQLiteJournal{db: db, logger: logger}, nil
}

func (j *SQLiteJournal) Record(ctx context.Context, inv domain.Invocation) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO invocations (request_id, tool_id, outcome, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		inv.RequestID, inv.ToolID, inv.Outcome, inv.Error, inv.Duration.Milliseconds(), inv.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record invocation %s: %w", inv.RequestID, err)
	}
	return nil
}

// Recent returns the newest invocations first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]domain.Invocation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, request_id, tool_id, outcome, error, duration_ms, created_at
		 FROM invocations ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Invocation
	for rows.Next() {
		var (
			inv        domain.Invocation
			durationMs int64
			createdAt  int64
		)
		if err := rows.Scan(&inv.ID, &inv.RequestID, &inv.ToolID, &inv.Outcome, &inv.Error, &durationMs, &createdAt); err != nil {
			return nil, err
		}
		inv.Duration = time.Duration(durationMs) * time.Millisecond
		inv.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Counts returns the number of recorded invocations per outcome.
func (j *SQLiteJournal) Counts(ctx context.Context) (map[string]int64, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM invocations GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Prune deletes invocations recorded before the cutoff.
func (j *SQLiteJournal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM invocations WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		j.logger.Info("pruned journal", "deleted", n, "before", before.Format(time.RFC3339))
	}
	return n, nil
}

// RunPruner prunes entries older than retention once per interval until ctx
// is cancelled.
func (j *SQLiteJournal) RunPruner(ctx context.Context, retention, interval time.Duration) error {
	if retention <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Prune(ctx, time.Now().Add(-retention)); err != nil && ctx.Err() == nil {
			j.logger.Warn("journal prune failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
