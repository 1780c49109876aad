package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mfigueredo/spendy/internal/jobs"
)

// waitForStatus polls the store until the job reaches a terminal status or
// the deadline expires.
func waitForStatus(t *testing.T, store jobs.JobStore, jobID string, want jobs.JobStatus) *jobs.ParseStatementJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached %s, last state: %+v", jobID, want, job)
	return nil
}

func TestQueueProcessesJob(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, store, WithWorkers(1))
	defer queue.Close()

	handler := func(ctx context.Context, job jobs.Job) (jobs.HandlerResult, error) {
		return jobs.HandlerResult{FileID: 42}, nil
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ParseStatementJob{UserID: "user-1", Filename: "resumen.pdf"}
	if err := queue.PublishParseStatement(context.Background(), job); err != nil {
		t.Fatalf("PublishParseStatement() error = %v", err)
	}
	if job.JobID == "" {
		t.Fatal("publish did not assign a job ID")
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if got.FileID != 42 {
		t.Errorf("FileID = %d, want 42", got.FileID)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestQueueMarksDuplicate(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, store, WithWorkers(1))
	defer queue.Close()

	handler := func(ctx context.Context, job jobs.Job) (jobs.HandlerResult, error) {
		return jobs.HandlerResult{FileID: 7, Duplicate: true}, nil
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ParseStatementJob{UserID: "user-1"}
	if err := queue.PublishParseStatement(context.Background(), job); err != nil {
		t.Fatalf("PublishParseStatement() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusDuplicate)
	if got.FileID != 7 {
		t.Errorf("FileID = %d, want 7", got.FileID)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want empty", got.Error)
	}
}

func TestQueueDoesNotRetryTerminalErrors(t *testing.T) {
	store := NewStore()
	calls := make(chan struct{}, 16)
	queue := NewQueue(10, store, WithWorkers(1), WithRetryable(func(error) bool { return false }))
	defer queue.Close()

	handler := func(ctx context.Context, job jobs.Job) (jobs.HandlerResult, error) {
		calls <- struct{}{}
		return jobs.HandlerResult{}, errors.New("malformed response")
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ParseStatementJob{UserID: "user-1"}
	if err := queue.PublishParseStatement(context.Background(), job); err != nil {
		t.Fatalf("PublishParseStatement() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", got.RetryCount)
	}
	if got.Error == "" {
		t.Error("Error not recorded")
	}
	if len(calls) != 1 {
		t.Errorf("handler called %d times, want 1", len(calls))
	}
}

func TestQueueRetriesTransientErrors(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, store, WithWorkers(1), WithRetryable(func(error) bool { return true }))
	defer queue.Close()

	attempts := 0
	handler := func(ctx context.Context, job jobs.Job) (jobs.HandlerResult, error) {
		attempts++
		if attempts < 2 {
			return jobs.HandlerResult{}, errors.New("extraction service unavailable")
		}
		return jobs.HandlerResult{FileID: 1}, nil
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ParseStatementJob{UserID: "user-1"}
	if err := queue.PublishParseStatement(context.Background(), job); err != nil {
		t.Fatalf("PublishParseStatement() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
}

func TestStoreListJobsFilters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	seed := []*jobs.ParseStatementJob{
		{JobID: "a", UserID: "user-1", Status: jobs.JobStatusCompleted, CreatedAt: time.Now().Add(-2 * time.Hour)},
		{JobID: "b", UserID: "user-1", Status: jobs.JobStatusFailed, CreatedAt: time.Now().Add(-1 * time.Hour)},
		{JobID: "c", UserID: "user-2", Status: jobs.JobStatusCompleted, CreatedAt: time.Now()},
	}
	for _, j := range seed {
		if err := store.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob(%s) error = %v", j.JobID, err)
		}
	}

	got, err := store.ListJobs(ctx, jobs.JobFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d jobs, want 2", len(got))
	}
	if got[0].JobID != "b" {
		t.Errorf("first job = %s, want b (newest first)", got[0].JobID)
	}

	got, err = store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d completed jobs, want 2", len(got))
	}
}
