package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/pipeline"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeImport imports a marketplace or reference file.
	JobTypeImport JobType = "import"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// ImportJob imports one file into the taxonomy store. The file comes either
// inline (Data, from an upload) or from SourceURI.
type ImportJob struct {
	JobID         string `json:"job_id"`
	MarketplaceID string `json:"marketplace_id"`

	// SourceURI is a gs:// URI or a local path. Empty when Data is set.
	SourceURI string `json:"source_uri,omitempty"`
	Filename  string `json:"filename"`
	Data      []byte `json:"-"`

	// AutoMap runs auto-mapping over the records the import created.
	AutoMap bool `json:"auto_map"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`

	// Summary is set by the handler once the import ran, even when it failed
	// part way.
	Summary *pipeline.Summary `json:"summary,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *ImportJob) GetID() string        { return j.JobID }
func (j *ImportJob) GetType() JobType     { return JobTypeImport }
func (j *ImportJob) GetStatus() JobStatus { return j.Status }

// Done reports whether the job reached a final state.
func (j *ImportJob) Done() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishImport(ctx context.Context, job *ImportJob) error
	Close() error
}

// Consumer runs jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs. The handler is called for each job.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error is retried unless Permanent
// reports it as such.
type JobHandler func(ctx context.Context, job *ImportJob) error

// JobStore keeps job state.
type JobStore interface {
	SaveJob(ctx context.Context, job *ImportJob) error
	GetJob(ctx context.Context, jobID string) (*ImportJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*ImportJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	MarketplaceID string
	Status        JobStatus
	Limit         int
	Offset        int
}

// Permanent reports whether err will fail the same way on every attempt:
// bad input, unparseable files and unknown marketplaces.
func Permanent(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrParse) ||
		errors.Is(err, domain.ErrNotFound)
}
