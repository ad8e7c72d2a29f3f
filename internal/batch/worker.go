// Package batch schedules seed-pair runs: a bounded queue drained by a fixed
// pool of workers, with resume, bounded retry and an attempt log.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"idsm/internal/blob"
	"idsm/internal/inputs"
	"idsm/internal/joblog"
	"idsm/internal/logging"
	"idsm/internal/metrics"
	"idsm/internal/model"
	"idsm/internal/pipeline"
	"idsm/internal/posterior"
	"idsm/internal/sampler"
)

// Status describes the lifecycle stage of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Exit codes recorded in the job log.
const (
	ExitOK       = 0
	ExitFailed   = 1
	ExitCanceled = 130
)

// ErrQueueFull is returned by Enqueue when no queue slot is free.
var ErrQueueFull = errors.New("batch: queue full")

// ErrStopped is returned when tasks are submitted after Stop.
var ErrStopped = errors.New("batch: worker stopped")

// Task is one (origin seed, run seed) unit of work.
type Task struct {
	OriginSeed int64 `json:"origin_seed"`
	RunSeed    int64 `json:"run_seed"`
}

// Key identifies the task in the job log and names its archive prefix.
func (t Task) Key() string {
	return strings.TrimSuffix(posterior.ArchivePrefix(t.OriginSeed, t.RunSeed), "/")
}

// Record tracks a task and the artifacts it produced.
type Record struct {
	Task        Task       `json:"task"`
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []string   `json:"artifacts,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	out := r
	out.Artifacts = append([]string(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Terminal reports whether the task will not change again.
func (r Record) Terminal() bool {
	switch r.Status {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Dataset resolves the input bundle identified by an origin seed.
type Dataset func(ctx context.Context, originSeed int64) (inputs.Bundle, error)

// Options fixes what every task runs.
type Options struct {
	Model       model.Config
	Chains      int
	Spec        sampler.RunSpec
	TestRun     bool
	Engine      string
	Monitors    []string
	Formats     []posterior.Format
	Workers     int
	MaxAttempts int
	QueueSize   int
}

// Option configures optional collaborators.
type Option func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(l logging.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithRunner replaces the pipeline runner.
func WithRunner(r *pipeline.Runner) Option {
	return func(w *Worker) {
		if r != nil {
			w.runner = r
		}
	}
}

// Worker executes seed-pair tasks asynchronously.
type Worker struct {
	opts    Options
	dataset Dataset
	store   blob.Store
	log     joblog.Log
	runner  *pipeline.Runner
	logger  logging.Logger
	metrics *metrics.Recorder

	queue   chan Task
	mu      sync.RWMutex
	jobs    map[string]*Record
	pending sync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started sync.Once
}

// NewWorker constructs a worker. Zero-valued pool options fall back to one
// worker, one attempt and a queue of 64.
func NewWorker(opts Options, dataset Dataset, store blob.Store, log joblog.Log, extra ...Option) *Worker {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if len(opts.Formats) == 0 {
		opts.Formats = append([]posterior.Format(nil), posterior.ArchiveFormats...)
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		opts:    opts,
		dataset: dataset,
		store:   store,
		log:     log,
		logger:  logging.Noop(),
		queue:   make(chan Task, opts.QueueSize),
		jobs:    make(map[string]*Record),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range extra {
		opt(w)
	}
	if w.runner == nil {
		w.runner = pipeline.New(pipeline.WithLogger(w.logger), pipeline.WithMetrics(w.metrics))
	}
	return w
}

// Start launches the worker pool. Later calls are no-ops.
func (w *Worker) Start() {
	w.started.Do(func() {
		for i := 0; i < w.opts.Workers; i++ {
			w.wg.Add(1)
			go w.loop()
		}
	})
}

// Stop signals the pool to halt and waits for running tasks to return.
// Queued tasks stay queued.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.drain()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain fails tasks still queued once the worker has stopped.
func (w *Worker) drain() {
	for {
		select {
		case task := <-w.queue:
			w.fail(task, ErrStopped.Error())
		default:
			w.metrics.QueueDepth(len(w.queue))
			return
		}
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.metrics.QueueDepth(len(w.queue))
			w.process(task)
		}
	}
}

// Enqueue schedules a task without blocking. A task already known to the
// worker is not queued twice; its current record is returned instead.
func (w *Worker) Enqueue(_ context.Context, task Task) (Record, error) {
	if w.ctx.Err() != nil {
		return Record{}, ErrStopped
	}
	record, fresh := w.register(task)
	if !fresh {
		return record, nil
	}
	select {
	case w.queue <- task:
	default:
		w.forget(task)
		return Record{}, fmt.Errorf("%w: %s", ErrQueueFull, task.Key())
	}
	if w.ctx.Err() != nil {
		w.drain()
		return Record{}, ErrStopped
	}
	w.metrics.QueueDepth(len(w.queue))
	return record, nil
}

// Submit schedules a task, waiting for a queue slot.
func (w *Worker) Submit(ctx context.Context, task Task) (Record, error) {
	if w.ctx.Err() != nil {
		return Record{}, ErrStopped
	}
	record, fresh := w.register(task)
	if !fresh {
		return record, nil
	}
	select {
	case w.queue <- task:
	case <-ctx.Done():
		w.forget(task)
		return Record{}, ctx.Err()
	case <-w.ctx.Done():
		w.forget(task)
		return Record{}, ErrStopped
	}
	if w.ctx.Err() != nil {
		w.drain()
		return Record{}, ErrStopped
	}
	w.metrics.QueueDepth(len(w.queue))
	return record, nil
}

func (w *Worker) register(task Task) (Record, bool) {
	key := task.Key()
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.jobs[key]; ok {
		return existing.copy(), false
	}
	now := time.Now().UTC()
	record := &Record{Task: task, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}
	w.jobs[key] = record
	w.pending.Add(1)
	return record.copy(), true
}

func (w *Worker) forget(task Task) {
	w.mu.Lock()
	delete(w.jobs, task.Key())
	w.mu.Unlock()
	w.pending.Done()
}

// Get returns a snapshot of a task record.
func (w *Worker) Get(task Task) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[task.Key()]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// Records returns snapshots of every known task ordered by seed pair.
func (w *Worker) Records() []Record {
	w.mu.RLock()
	out := make([]Record, 0, len(w.jobs))
	for _, r := range w.jobs {
		out = append(out, r.copy())
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Task.OriginSeed != out[j].Task.OriginSeed {
			return out[i].Task.OriginSeed < out[j].Task.OriginSeed
		}
		return out[i].Task.RunSeed < out[j].Task.RunSeed
	})
	return out
}

// Wait blocks until every registered task is terminal.
func (w *Worker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAll starts the pool, runs tasks to completion and stops it. The
// returned error reports how many tasks failed.
func (w *Worker) RunAll(ctx context.Context, tasks []Task) ([]Record, error) {
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()
	for _, task := range tasks {
		if _, err := w.Submit(ctx, task); err != nil {
			return w.Records(), err
		}
	}
	if err := w.Wait(ctx); err != nil {
		return w.Records(), err
	}
	records := w.Records()
	failed := 0
	for _, r := range records {
		if r.Status == StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return records, fmt.Errorf("batch: %d of %d tasks failed", failed, len(records))
	}
	return records, nil
}
