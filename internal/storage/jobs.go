package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

const defaultMaxAttempts = 3

// EnqueueJob inserts a pending job. MaxAttempts defaults to 3.
//
// A job with a CoalesceKey is dropped when a pending job of the same type
// and key is already queued; the queued one will observe the same state.
// Running jobs do not absorb new ones. It reports whether a row was added.
func (s *Store) EnqueueJob(ctx context.Context, job Job) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, payload_json, coalesce_key, status, attempts, max_attempts, run_after, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, 0, ?, ?, ?, ?
		WHERE ? = '' OR NOT EXISTS (
			SELECT 1 FROM jobs WHERE type = ? AND coalesce_key = ? AND status = ?
		)`,
		job.ID, job.Type, job.PayloadJSON, job.CoalesceKey, JobPending, maxAttempts, runAfter, now, now,
		job.CoalesceKey, job.Type, job.CoalesceKey, JobPending,
	)
	if err != nil {
		return false, fmt.Errorf("inserting job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimNextJob marks the oldest runnable job of one of types as running and
// returns it. It returns nil when nothing is runnable.
func (s *Store) ClaimNextJob(ctx context.Context, types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	args := []any{JobPending, now.Format(time.RFC3339)}
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		j                             Job
		runAfter, createdAt, lastSeen string
		lastError                     sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, type, payload_json, coalesce_key, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = ? AND run_after <= ? AND type IN (?`+strings.Repeat(",?", len(types)-1)+`)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`, args...,
	).Scan(&j.ID, &j.Type, &j.PayloadJSON, &j.CoalesceKey, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &lastSeen, &lastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		JobRunning, now.Format(time.RFC3339), j.ID, JobPending)
	if err != nil {
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	} else if n != 1 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = JobRunning
	j.LastError = lastError.String
	j.UpdatedAt = now.Truncate(time.Second)
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(ctx context.Context, id string) error {
	return s.setJobStatus(ctx, id, JobCompleted)
}

func (s *Store) setJobStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. The job is retried after 2^attempts
// seconds until it reaches max_attempts, then marked failed.
func (s *Store) FailJob(ctx context.Context, id string, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRowContext(ctx, `SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++
	status, runAfter := JobFailed, now
	if attempts < maxAttempts {
		status = JobPending
		runAfter = now.Add(retryBackoff(attempts))
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
		status, attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// retryBackoff is 2^attempts seconds.
func retryBackoff(attempts int) time.Duration {
	return time.Duration(1<<attempts) * time.Second
}

// PurgeJobs deletes completed and failed jobs last touched before cutoff
// and returns how many were removed.
func (s *Store) PurgeJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		JobCompleted, JobFailed, cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("purging jobs: %w", err)
	}
	return res.RowsAffected()
}
