package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/jobs"
	"github.com/dvloznov/taxonomy-bridge/internal/pipeline"
	"github.com/google/go-cmp/cmp"
)

func TestStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.SaveJob(ctx, &jobs.ImportJob{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("SaveJob without id = %v, want ErrValidation", err)
	}

	job := &jobs.ImportJob{JobID: "j1", MarketplaceID: "mkt-000001", Status: jobs.JobStatusPending}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	job.Status = jobs.JobStatusRunning

	got, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("Store should keep a copy, status = %s", got.Status)
	}
	got.Status = jobs.JobStatusFailed
	again, _ := s.GetJob(ctx, "j1")
	if again.Status != jobs.JobStatusPending {
		t.Errorf("GetJob should return a copy, status = %s", again.Status)
	}

	if _, err := s.GetJob(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetJob(missing) = %v, want ErrNotFound", err)
	}
	if err := s.UpdateJobStatus(ctx, "nope", jobs.JobStatusFailed, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateJobStatus(missing) = %v, want ErrNotFound", err)
	}
	if err := s.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetJob(ctx, "j1")
	if got.Status != jobs.JobStatusFailed || got.Error != "boom" {
		t.Errorf("After update: %s %q", got.Status, got.Error)
	}
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, mkt := range []string{"mkt-000001", "mkt-000002", "mkt-000001", "mkt-000001"} {
		status := jobs.JobStatusCompleted
		if i == 3 {
			status = jobs.JobStatusFailed
		}
		_ = s.SaveJob(ctx, &jobs.ImportJob{
			JobID:         fmt.Sprintf("j%d", i),
			MarketplaceID: mkt,
			Status:        status,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
	}

	ids := func(list []*jobs.ImportJob) []string {
		out := []string{}
		for _, j := range list {
			out = append(out, j.JobID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"j3", "j2", "j1", "j0"}},
		{"by marketplace", jobs.JobFilter{MarketplaceID: "mkt-000001"}, []string{"j3", "j2", "j0"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusFailed}, []string{"j3"}},
		{"limit and offset", jobs.JobFilter{Limit: 2, Offset: 1}, []string{"j2", "j1"}},
		{"offset past end", jobs.JobFilter{Offset: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("ListJobs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// waitFor polls the store until the job reaches a final state.
func waitFor(t *testing.T, s *Store, id string) *jobs.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, err := s.GetJob(context.Background(), id); err == nil && job.Done() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish in time", id)
	return nil
}

func TestQueue_CompletesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 1, store)
	defer q.Close()

	err := q.Start(ctx, func(ctx context.Context, job *jobs.ImportJob) error {
		job.Summary = &pipeline.Summary{MarketplaceID: job.MarketplaceID}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	job := &jobs.ImportJob{MarketplaceID: "mkt-000001", Filename: "a.csv", Data: []byte("x")}
	if err := q.PublishImport(ctx, job); err != nil {
		t.Fatal(err)
	}
	if job.JobID == "" || job.MaxRetries != defaultMaxRetries || job.CreatedAt.IsZero() {
		t.Errorf("Publish should fill defaults, got %+v", job)
	}

	got := waitFor(t, store, job.JobID)
	if got.Status != jobs.JobStatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.Summary == nil || got.Summary.MarketplaceID != "mkt-000001" {
		t.Errorf("Summary not kept: %+v", got.Summary)
	}
	if got.Data != nil {
		t.Error("Finished job should drop its file data")
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("Timestamps not set")
	}
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 1, store)
	q.RetryBackoff = time.Millisecond
	defer q.Close()

	var calls atomic.Int32
	_ = q.Start(ctx, func(ctx context.Context, job *jobs.ImportJob) error {
		if calls.Add(1) == 1 {
			return errors.New("sheet quota exceeded")
		}
		return nil
	})

	job := &jobs.ImportJob{JobID: "retry", MarketplaceID: "mkt-000001"}
	if err := q.PublishImport(ctx, job); err != nil {
		t.Fatal(err)
	}
	got := waitFor(t, store, "retry")
	if got.Status != jobs.JobStatusCompleted || got.RetryCount != 1 {
		t.Errorf("Got status %s after %d retries, want completed after 1", got.Status, got.RetryCount)
	}
	if calls.Load() != 2 {
		t.Errorf("Handler calls = %d, want 2", calls.Load())
	}
}

func TestQueue_PermanentErrorsFailImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 1, store)
	q.RetryBackoff = time.Millisecond
	defer q.Close()

	var calls atomic.Int32
	_ = q.Start(ctx, func(ctx context.Context, job *jobs.ImportJob) error {
		calls.Add(1)
		return fmt.Errorf("pipeline step 1 failed: %w", domain.ErrParse)
	})

	_ = q.PublishImport(ctx, &jobs.ImportJob{JobID: "bad"})
	got := waitFor(t, store, "bad")
	if got.Status != jobs.JobStatusFailed || got.RetryCount != 0 {
		t.Errorf("Got status %s after %d retries, want failed without retry", got.Status, got.RetryCount)
	}
	if got.Error == "" {
		t.Error("Error not recorded")
	}
	if calls.Load() != 1 {
		t.Errorf("Handler calls = %d, want 1", calls.Load())
	}
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 1, store)
	q.RetryBackoff = time.Millisecond
	defer q.Close()

	_ = q.Start(ctx, func(ctx context.Context, job *jobs.ImportJob) error {
		return errors.New("backend unavailable")
	})
	_ = q.PublishImport(ctx, &jobs.ImportJob{JobID: "flaky", MaxRetries: 2})

	got := waitFor(t, store, "flaky")
	if got.Status != jobs.JobStatusFailed || got.RetryCount != 2 {
		t.Errorf("Got status %s after %d retries, want failed after 2", got.Status, got.RetryCount)
	}
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(1, 0, nil)
	if err := q.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("Second Stop = %v, want nil", err)
	}
	if err := q.PublishImport(context.Background(), &jobs.ImportJob{}); err == nil {
		t.Error("Publish on closed queue should fail")
	}
	if err := q.Start(context.Background(), nil); err == nil {
		t.Error("Start on closed queue should fail")
	}
}
