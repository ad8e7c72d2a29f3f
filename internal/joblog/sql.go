package joblog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const table = "idsm_attempts"

var columns = []string{
	"id", "task_key", "origin_seed", "run_seed", "attempt", "status", "exit_code",
	"error", "duration_ms", "peak_heap_bytes", "started_at", "finished_at",
}

// dialect captures the differences between the SQL backends.
type dialect struct {
	name        string
	placeholder func(n int) string
	ddl         string
}

// sqlLog implements Log over database/sql. Timestamps are stored as unix
// nanoseconds so both backends round-trip them exactly.
type sqlLog struct {
	db *sql.DB
	d  dialect
}

func newSQLLog(ctx context.Context, db *sql.DB, d dialect) (*sqlLog, error) {
	if _, err := db.ExecContext(ctx, d.ddl); err != nil {
		return nil, fmt.Errorf("create %s table: %w", d.name, err)
	}
	return &sqlLog{db: db, d: d}, nil
}

func (l *sqlLog) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = l.d.placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

// Record appends an attempt, assigning an ID when none is set.
func (l *sqlLog) Record(ctx context.Context, a Attempt) (Attempt, error) {
	if a.Key == "" {
		return Attempt{}, fmt.Errorf("joblog: attempt key required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), l.placeholders(len(columns)))
	_, err := l.db.ExecContext(ctx, query,
		a.ID, a.Key, a.OriginSeed, a.RunSeed, int64(a.Attempt), string(a.Status), int64(a.ExitCode),
		a.Error, a.Duration.Milliseconds(), a.PeakHeapBytes, a.StartedAt.UnixNano(), a.FinishedAt.UnixNano())
	if err != nil {
		return Attempt{}, fmt.Errorf("joblog: insert attempt: %w", err)
	}
	return a, nil
}

// Succeeded reports whether any attempt of key succeeded.
func (l *sqlLog) Succeeded(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf("SELECT id FROM %s WHERE task_key = %s AND status = %s", table, l.d.placeholder(1), l.d.placeholder(2))
	rows, err := l.db.QueryContext(ctx, query, key, string(StatusSucceeded))
	if err != nil {
		return false, fmt.Errorf("joblog: query succeeded: %w", err)
	}
	defer func() { _ = rows.Close() }()
	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("joblog: iterate succeeded: %w", err)
	}
	return found, nil
}

// Attempts lists every attempt of key ordered by attempt number.
func (l *sqlLog) Attempts(ctx context.Context, key string) ([]Attempt, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE task_key = %s ORDER BY attempt", strings.Join(columns, ", "), table, l.d.placeholder(1))
	rows, err := l.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("joblog: query attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Attempt
	for rows.Next() {
		var (
			a                 Attempt
			status            string
			attempt, exit     int64
			durationMS        int64
			started, finished int64
		)
		if err := rows.Scan(&a.ID, &a.Key, &a.OriginSeed, &a.RunSeed, &attempt, &status, &exit,
			&a.Error, &durationMS, &a.PeakHeapBytes, &started, &finished); err != nil {
			return nil, fmt.Errorf("joblog: scan attempt: %w", err)
		}
		a.Attempt = int(attempt)
		a.Status = Status(status)
		a.ExitCode = int(exit)
		a.Duration = time.Duration(durationMS) * time.Millisecond
		a.StartedAt = time.Unix(0, started).UTC()
		a.FinishedAt = time.Unix(0, finished).UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("joblog: iterate attempts: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (l *sqlLog) Close() error { return l.db.Close() }
