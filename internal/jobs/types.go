// Package jobs defines the asynchronous statement-processing job model and
// the queue abstractions the API and worker share.
package jobs

import (
	"context"
	"time"
)

// JobType identifies the kind of work a job carries.
type JobType string

const (
	// JobTypeParseStatement is the statement extraction and persistence job.
	JobTypeParseStatement JobType = "parse_statement"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
	// JobStatusDuplicate means processing found the statement was already
	// ingested for this user. Terminal, not an error.
	JobStatusDuplicate JobStatus = "duplicate"
)

// ParseStatementJob carries one uploaded statement through extraction. The
// page texts travel with the job; the raw upload lives in the object store
// under StoragePath.
type ParseStatementJob struct {
	JobID string `json:"job_id"`

	UserID      string   `json:"user_id"`
	Filename    string   `json:"filename"`
	ContentType string   `json:"content_type"`
	StoragePath string   `json:"storage_path"`
	ContentHash string   `json:"content_hash"`
	Pages       []string `json:"pages"`

	Status    JobStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is set when the job reaches a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// FileID is the persisted statement's ID once the job completes.
	FileID int64 `json:"file_id,omitempty"`

	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

// Job is the generic handle the queue hands to handlers.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *ParseStatementJob) GetID() string        { return j.JobID }
func (j *ParseStatementJob) GetType() JobType     { return JobTypeParseStatement }
func (j *ParseStatementJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues statement jobs. The abstraction keeps the API handler
// independent of the queue implementation (in-memory today, a broker later).
type Publisher interface {
	PublishParseStatement(ctx context.Context, job *ParseStatementJob) error
	Close() error
}

// Consumer drains jobs and hands each to a handler.
type Consumer interface {
	// Start begins consuming. The handler runs concurrently, one goroutine
	// per worker.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming and waits for in-flight jobs.
	Stop(ctx context.Context) error
}

// HandlerResult tells the queue how a job ended.
type HandlerResult struct {
	// FileID is the persisted statement ID on success.
	FileID int64

	// Duplicate marks the upload as already ingested.
	Duplicate bool
}

// JobHandler processes one job. A returned error marks the job failed; the
// queue retries it only when Retryable(err) reports true.
type JobHandler func(ctx context.Context, job Job) (HandlerResult, error)

// Retryable decides whether a handler error is transient. Wired to the
// pipeline's error taxonomy in the worker; defaults to no retries.
type Retryable func(err error) bool

// JobStore tracks job state so clients can poll progress.
type JobStore interface {
	SaveJob(ctx context.Context, job *ParseStatementJob) error
	GetJob(ctx context.Context, jobID string) (*ParseStatementJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*ParseStatementJob, error)
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	UserID string
	Status JobStatus
	Limit  int
	Offset int
}
