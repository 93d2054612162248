package storage

import (
	"context"
	"testing"
	"time"
)

func pendingCount(t *testing.T, s *Store, key string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE coalesce_key = ? AND status = 'pending'`, key).Scan(&n); err != nil {
		t.Fatalf("counting jobs: %v", err)
	}
	return n
}

func TestEnqueueJob_CoalescesPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	added, err := s.EnqueueJob(ctx, Job{ID: "j1", Type: "rebuild", PayloadJSON: `{}`, CoalesceKey: "o1"})
	if err != nil || !added {
		t.Fatalf("first EnqueueJob = %v, %v", added, err)
	}
	added, err = s.EnqueueJob(ctx, Job{ID: "j2", Type: "rebuild", PayloadJSON: `{}`, CoalesceKey: "o1"})
	if err != nil {
		t.Fatalf("second EnqueueJob: %v", err)
	}
	if added {
		t.Error("second job with the same key should be coalesced")
	}
	if n := pendingCount(t, s, "o1"); n != 1 {
		t.Errorf("pending jobs for o1 = %d, want 1", n)
	}

	// Other keys and other types are independent.
	if added, _ := s.EnqueueJob(ctx, Job{ID: "j3", Type: "rebuild", PayloadJSON: `{}`, CoalesceKey: "o2"}); !added {
		t.Error("job for another key was coalesced")
	}
	if added, _ := s.EnqueueJob(ctx, Job{ID: "j4", Type: "other", PayloadJSON: `{}`, CoalesceKey: "o1"}); !added {
		t.Error("job of another type was coalesced")
	}
}

func TestEnqueueJob_RunningDoesNotAbsorb(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.EnqueueJob(ctx, Job{ID: "j1", Type: "rebuild", PayloadJSON: `{}`, CoalesceKey: "o1"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	job, err := s.ClaimNextJob(ctx, []string{"rebuild"})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob = %v, %v", job, err)
	}
	if job.CoalesceKey != "o1" {
		t.Errorf("CoalesceKey = %q, want o1", job.CoalesceKey)
	}

	added, err := s.EnqueueJob(ctx, Job{ID: "j2", Type: "rebuild", PayloadJSON: `{}`, CoalesceKey: "o1"})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if !added {
		t.Error("a running job must not absorb a new one")
	}
}

func TestEnqueueJob_NoKeyNeverCoalesces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		added, err := s.EnqueueJob(ctx, Job{ID: id, Type: "rebuild", PayloadJSON: `{}`})
		if err != nil || !added {
			t.Fatalf("EnqueueJob %s = %v, %v", id, added, err)
		}
	}
	if n := pendingCount(t, s, ""); n != 2 {
		t.Errorf("pending = %d, want 2", n)
	}
}

func TestPurgeJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"done", "dead", "waiting"} {
		if _, err := s.EnqueueJob(ctx, Job{ID: id, Type: "x", PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
			t.Fatalf("EnqueueJob %s: %v", id, err)
		}
	}
	if err := s.CompleteJob(ctx, "done"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if err := s.FailJob(ctx, "dead", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	// Nothing is old enough yet.
	n, err := s.PurgeJobs(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeJobs: %v", err)
	}
	if n != 0 {
		t.Errorf("purged %d, want 0", n)
	}

	n, err = s.PurgeJobs(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeJobs: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d, want 2", n)
	}

	var left string
	if err := s.db.QueryRow(`SELECT id FROM jobs`).Scan(&left); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if left != "waiting" {
		t.Errorf("remaining job = %q, want waiting", left)
	}
}

func TestRetryBackoff(t *testing.T) {
	for attempts, want := range map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 8 * time.Second} {
		if got := retryBackoff(attempts); got != want {
			t.Errorf("retryBackoff(%d) = %v, want %v", attempts, got, want)
		}
	}
}
