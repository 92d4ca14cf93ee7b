// Package worker runs the background job pool. One loop claims pending jobs
// in creation order and fans them out to per-kind handlers, honoring each
// kind's parallelism cap.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
)

// ErrCanceled is returned by handlers that observed the cancellation flag.
// The wrapper maps it to the canceled terminal status.
var ErrCanceled = errors.New("job canceled")

// Flag is the cancellation signal shared between the status poller and a
// running handler. Handlers check it at batch boundaries and before LLM
// calls.
type Flag struct {
	v atomic.Bool
}

func (f *Flag) Set()        { f.v.Store(true) }
func (f *Flag) IsSet() bool { return f.v.Load() }

// Handler executes one claimed job and returns its typed result.
type Handler func(ctx context.Context, job *models.BackgroundJob, cancelled *Flag) (any, error)

// Config holds worker configuration.
type Config struct {
	PollInterval       time.Duration
	CancelPollInterval time.Duration
}

// Worker claims and dispatches background jobs.
type Worker struct {
	jobs        *repository.JobRepository
	broadcaster *events.Broadcaster
	handlers    map[models.TaskKind]Handler

	pollInterval       time.Duration
	cancelPollInterval time.Duration

	stop   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	mu       sync.Mutex
	inFlight int
}

// New creates a worker. Handlers must be registered before Start.
func New(jobs *repository.JobRepository, broadcaster *events.Broadcaster, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.CancelPollInterval == 0 {
		cfg.CancelPollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		jobs:               jobs,
		broadcaster:        broadcaster,
		handlers:           make(map[models.TaskKind]Handler),
		pollInterval:       cfg.PollInterval,
		cancelPollInterval: cfg.CancelPollInterval,
		stop:               make(chan struct{}),
		logger:             logger.With("component", "worker"),
	}
}

// Register binds a handler to a task kind.
func (w *Worker) Register(kind models.TaskKind, h Handler) {
	w.handlers[kind] = h
}

// Start begins the claim loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "task_kinds", len(w.handlers), "poll_interval", w.pollInterval)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.claimOnce(ctx)
		}
	}
}

// claimOnce claims at most one job per tick and dispatches it if its kind
// has capacity; otherwise the job is released back to pending.
func (w *Worker) claimOnce(ctx context.Context) {
	w.mu.Lock()
	inFlight := w.inFlight
	w.mu.Unlock()
	if inFlight >= models.TotalParallelLimit() {
		return
	}

	job, err := w.jobs.ClaimNextPending(ctx)
	if err != nil {
		w.logger.Error("failed to claim job", "error", err)
		return
	}
	if job == nil {
		return
	}

	// Claiming set the job in_progress, so the count includes it.
	count, err := w.jobs.CountInProgressByKind(ctx, job.TaskKind)
	if err != nil {
		w.logger.Error("failed to count in-progress jobs", "job_id", job.ID, "error", err)
		count = models.ParallelLimits[job.TaskKind] + 1
	}
	if count > models.ParallelLimits[job.TaskKind] {
		if err := w.jobs.Release(ctx, job.ID); err != nil {
			w.logger.Error("failed to release job", "job_id", job.ID, "error", err)
		}
		return
	}

	w.mu.Lock()
	w.inFlight++
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			w.inFlight--
			w.mu.Unlock()
		}()
		w.runJob(ctx, job)
	}()
}

// runJob wraps one handler invocation: cancellation poller, panic recovery,
// terminal status write and the matching event.
func (w *Worker) runJob(ctx context.Context, job *models.BackgroundJob) {
	logger := w.logger.With("job_id", job.ID, "task_kind", job.TaskKind, "project_id", job.ProjectID)
	logger.Info("processing job")
	w.publishStatus(ctx, job.ID)

	handler, ok := w.handlers[job.TaskKind]
	if !ok {
		w.finish(ctx, job, nil, fmt.Errorf("no handler for task kind %q", job.TaskKind))
		return
	}

	cancelled := &Flag{}
	pollerDone := make(chan struct{})
	w.wg.Add(1)
	go w.pollCancellation(ctx, job.ID, cancelled, pollerDone)

	var result any
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		result, err = handler(ctx, job, cancelled)
	}()
	close(pollerDone)

	w.finish(ctx, job, result, err)
}

func (w *Worker) pollCancellation(ctx context.Context, jobID string, cancelled *Flag, done <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := w.jobs.GetStatus(ctx, jobID)
			if err != nil {
				w.logger.Warn("cancellation poll failed", "job_id", jobID, "error", err)
				continue
			}
			if status == models.JobStatusCancelling {
				cancelled.Set()
				return
			}
		}
	}
}

func (w *Worker) finish(ctx context.Context, job *models.BackgroundJob, result any, err error) {
	logger := w.logger.With("job_id", job.ID, "task_kind", job.TaskKind)

	switch {
	case err == nil:
		encoded, merr := json.Marshal(result)
		if merr != nil {
			logger.Error("failed to encode job result", "error", merr)
			encoded = []byte("{}")
		}
		if uerr := w.jobs.Complete(ctx, job.ID, encoded); uerr != nil {
			logger.Error("failed to mark job completed", "error", uerr)
		}
		logger.Info("job completed")

	case errors.Is(err, ErrCanceled):
		if uerr := w.jobs.SetStatus(ctx, job.ID, models.JobStatusCanceled, ""); uerr != nil {
			logger.Error("failed to mark job canceled", "error", uerr)
		}
		logger.Info("job canceled")

	default:
		if uerr := w.jobs.SetStatus(ctx, job.ID, models.JobStatusFailed, err.Error()); uerr != nil {
			logger.Error("failed to mark job failed", "error", uerr)
		}
		logger.Error("job failed", "error", err)
	}

	w.publishStatus(ctx, job.ID)
}

// publishStatus emits a job_status_update with the job's current row.
func (w *Worker) publishStatus(ctx context.Context, jobID string) {
	job, err := w.jobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		return
	}
	w.broadcaster.Publish(job.ProjectID, events.EventJobStatusUpdate, StatusPayload(job))
}

// StatusPayload is the SSE body for job_status_update events.
func StatusPayload(job *models.BackgroundJob) map[string]any {
	payload := map[string]any{
		"job_id":          job.ID,
		"task_kind":       job.TaskKind,
		"status":          job.Status,
		"progress":        job.Progress,
		"processed_items": job.ProcessedItems,
		"total_items":     job.TotalItems,
	}
	if job.ErrorMessage != "" {
		payload["error_message"] = job.ErrorMessage
	}
	if len(job.Result) > 0 {
		payload["result"] = json.RawMessage(job.Result)
	}
	return payload
}
