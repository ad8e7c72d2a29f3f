// Package joblog is the append-only record of batch run attempts. One row
// is written per attempt; a task counts as done once any of its attempts
// succeeded, which is what resume consults.
package joblog

import (
	"context"
	"fmt"
	"time"
)

// Status is the outcome of one attempt.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Attempt is one row of the log.
type Attempt struct {
	ID            string        `json:"id"`
	Key           string        `json:"key"`
	OriginSeed    int64         `json:"origin_seed"`
	RunSeed       int64         `json:"run_seed"`
	Attempt       int           `json:"attempt"`
	Status        Status        `json:"status"`
	ExitCode      int           `json:"exit_code"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
	PeakHeapBytes int64         `json:"peak_heap_bytes"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// Log records attempts and answers resume queries.
type Log interface {
	Record(ctx context.Context, a Attempt) (Attempt, error)
	Succeeded(ctx context.Context, key string) (bool, error)
	Attempts(ctx context.Context, key string) ([]Attempt, error)
	Close() error
}

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Options configures Open.
type Options struct {
	Driver Driver `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

// Open connects to the configured backend and ensures the table exists;
// sqlite is the default.
func Open(ctx context.Context, opts Options) (Log, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return OpenSQLite(ctx, opts.DSN)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown joblog driver %q", opts.Driver)
	}
}
