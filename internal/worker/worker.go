// Package worker runs background jobs from the SQLite job queue.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aboutme/cards/internal/directory"
	"github.com/aboutme/cards/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	PurgeJobs(ctx context.Context, cutoff time.Time) (int64, error)
}

// GraphRebuilder rebuilds an organization's skills graph.
type GraphRebuilder interface {
	RebuildSkillGraph(ctx context.Context, orgID string) error
}

// Worker processes skillgraph_rebuild jobs.
type Worker struct {
	store   JobStore
	graphs  GraphRebuilder
	poll    time.Duration
	timeout time.Duration
	logger  *slog.Logger

	// Finished jobs older than retention are purged every purgeEvery.
	retention  time.Duration
	purgeEvery time.Duration
	lastPurge  time.Time
}

// New creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func New(store JobStore, graphs GraphRebuilder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		graphs:  graphs,
		poll:    pollInterval,
		timeout: 30 * time.Second,
		logger:  slog.Default(),

		retention:  7 * 24 * time.Hour,
		purgeEvery: time.Hour,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}
		w.maybePurge(ctx, time.Now())

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{directory.JobSkillGraphRebuild})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	// The job row must leave "running" even when ctx was cancelled mid-job.
	bookkeeping := context.WithoutCancel(ctx)

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(bookkeeping, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(bookkeeping, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	orgID, err := directory.ParseRebuildPayload(*job)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.graphs.RebuildSkillGraph(ctx, orgID); err != nil {
		return fmt.Errorf("rebuilding skills graph of %s: %w", orgID, err)
	}
	return nil
}

// maybePurge deletes old finished jobs when purgeEvery has elapsed since
// the last purge. It only runs while the queue is idle.
func (w *Worker) maybePurge(ctx context.Context, now time.Time) {
	if now.Sub(w.lastPurge) < w.purgeEvery {
		return
	}
	w.lastPurge = now

	n, err := w.store.PurgeJobs(ctx, now.Add(-w.retention))
	if err != nil {
		w.logger.Warn("purging finished jobs failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("purged finished jobs", "count", n)
	}
}
