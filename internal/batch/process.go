package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"idsm/internal/blob"
	"idsm/internal/joblog"
	"idsm/internal/pipeline"
	"idsm/internal/posterior"
)

const heapSampleInterval = 50 * time.Millisecond

func (w *Worker) process(task Task) {
	key := task.Key()
	done, err := w.completed(w.ctx, task)
	if err != nil {
		w.fail(task, fmt.Sprintf("resume check failed: %v", err))
		return
	}
	if done {
		w.logger.Info("task already complete", "task", key)
		w.finish(task, StatusSkipped, "", w.archiveKeys(task))
		return
	}

	prior, err := w.log.Attempts(w.ctx, key)
	if err != nil {
		w.fail(task, fmt.Sprintf("read job log: %v", err))
		return
	}
	var lastErr error
	for n := 1; n <= w.opts.MaxAttempts; n++ {
		w.updateStatus(task, StatusRunning, n, "")
		keys, attempt := w.attempt(task, len(prior)+n)
		if attempt.Status == joblog.StatusSucceeded {
			w.finish(task, StatusSucceeded, "", keys)
			return
		}
		lastErr = errors.New(attempt.Error)
		if attempt.Status == joblog.StatusCanceled {
			break
		}
		if n < w.opts.MaxAttempts {
			w.logger.Warn("attempt failed, retrying", "task", key, "attempt", n, "error", attempt.Error)
		}
	}
	w.fail(task, lastErr.Error())
}

// completed reports whether every archive and a success row exist.
func (w *Worker) completed(ctx context.Context, task Task) (bool, error) {
	stored, err := blob.ExistsAll(ctx, w.store, w.archiveKeys(task)...)
	if err != nil || !stored {
		return false, err
	}
	return w.log.Succeeded(ctx, task.Key())
}

func (w *Worker) archiveKeys(task Task) []string {
	keys := make([]string, len(w.opts.Formats))
	for i, f := range w.opts.Formats {
		keys[i] = posterior.ArchiveKey(task.OriginSeed, task.RunSeed, f)
	}
	return keys
}

// attempt runs the task once and appends the outcome to the job log.
func (w *Worker) attempt(task Task, number int) ([]string, joblog.Attempt) {
	started := time.Now().UTC()
	watch := watchHeap(heapSampleInterval)
	keys, runErr := w.run(w.ctx, task)
	peak := watch()
	finished := time.Now().UTC()

	entry := joblog.Attempt{
		Key:           task.Key(),
		OriginSeed:    task.OriginSeed,
		RunSeed:       task.RunSeed,
		Attempt:       number,
		Status:        joblog.StatusSucceeded,
		ExitCode:      ExitOK,
		Duration:      finished.Sub(started),
		PeakHeapBytes: int64(peak),
		StartedAt:     started,
		FinishedAt:    finished,
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		entry.Status, entry.ExitCode, entry.Error = joblog.StatusCanceled, ExitCanceled, runErr.Error()
	default:
		entry.Status, entry.ExitCode, entry.Error = joblog.StatusFailed, ExitFailed, runErr.Error()
	}
	w.metrics.Attempt(entry.Duration)

	// The attempt row outlives cancellation of the pool.
	recorded, err := w.log.Record(context.WithoutCancel(w.ctx), entry)
	if err != nil {
		w.logger.Error("record attempt", "task", entry.Key, "error", err)
		if entry.Status == joblog.StatusSucceeded {
			entry.Status, entry.ExitCode = joblog.StatusFailed, ExitFailed
			entry.Error = fmt.Sprintf("record attempt: %v", err)
		}
		return keys, entry
	}
	w.logger.Info("attempt finished", "task", recorded.Key, "attempt", recorded.Attempt,
		"status", recorded.Status, "duration", recorded.Duration, "peak_heap_bytes", recorded.PeakHeapBytes)
	return keys, recorded
}

// run fits the model and stores its archives. Nothing is written unless the
// run completes.
func (w *Worker) run(ctx context.Context, task Task) ([]string, error) {
	bundle, err := w.dataset(ctx, task.OriginSeed)
	if err != nil {
		return nil, fmt.Errorf("load dataset %d: %w", task.OriginSeed, err)
	}
	data, consts, dims, err := bundle.Model()
	if err != nil {
		return nil, fmt.Errorf("dataset %d: %w", task.OriginSeed, err)
	}
	result, err := w.runner.Run(ctx, pipeline.Request{
		Config:     w.opts.Model,
		Data:       data,
		Consts:     consts,
		Dims:       dims,
		OriginSeed: task.OriginSeed,
		RunSeed:    task.RunSeed,
		Chains:     w.opts.Chains,
		Spec:       w.opts.Spec,
		TestRun:    w.opts.TestRun,
		Engine:     w.opts.Engine,
		Monitors:   w.opts.Monitors,
	})
	if err != nil {
		return nil, err
	}
	artifacts, err := result.Artifacts(w.opts.Formats...)
	if err != nil {
		return nil, fmt.Errorf("render archives: %w", err)
	}
	if err := w.clearStale(ctx, task); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		key := a.Name
		_, err := w.store.Put(ctx, key, bytes.NewReader(a.Payload), blob.PutOptions{
			ContentType: a.ContentType,
			Metadata:    stringMetadata(a.Metadata),
		})
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func stringMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// clearStale removes archives left by an attempt that never logged success.
func (w *Worker) clearStale(ctx context.Context, task Task) error {
	for _, key := range w.archiveKeys(task) {
		if _, err := w.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	return nil
}

// watchHeap samples the heap until the returned func is called, which
// reports the largest HeapAlloc seen.
func watchHeap(every time.Duration) func() uint64 {
	var (
		mu   sync.Mutex
		peak uint64
	)
	sample := func() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		mu.Lock()
		peak = max(peak, ms.HeapAlloc)
		mu.Unlock()
	}
	sample()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sample()
			}
		}
	}()
	return func() uint64 {
		close(stop)
		<-done
		sample()
		mu.Lock()
		defer mu.Unlock()
		return peak
	}
}

func (w *Worker) updateStatus(task Task, status Status, attempts int, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[task.Key()]; ok {
		record.Status = status
		record.Attempts = attempts
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
}

func (w *Worker) finish(task Task, status Status, message string, artifacts []string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[task.Key()]; ok {
		record.Status = status
		record.Error = message
		record.Artifacts = append([]string(nil), artifacts...)
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.metrics.Finished(string(status))
	if status == StatusFailed {
		w.logger.Error("task failed", "task", task.Key(), "error", message)
	} else {
		w.logger.Info("task finished", "task", task.Key(), "status", status)
	}
	w.pending.Done()
}

func (w *Worker) fail(task Task, reason string) {
	w.finish(task, StatusFailed, reason, nil)
}
