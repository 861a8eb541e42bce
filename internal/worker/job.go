// Package worker runs the long contact jobs (CSV import and deduplication)
// off the request path. Jobs travel as small JSON payloads over a Queue and
// report back only through progress messages.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// JobKind names the work a job performs.
type JobKind string

const (
	JobImport JobKind = "import"
	JobDedup  JobKind = "dedup"
)

// Job is the payload handed to a worker.
type Job struct {
	Kind        JobKind   `json:"kind"`
	TenantID    string    `json:"companyId"`
	UserID      string    `json:"userId"`
	PrimaryKey  string    `json:"primaryKey,omitempty"`
	ObjectKey   string    `json:"objectKey,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ErrUnknownJob is returned for a job kind no handler understands.
var ErrUnknownJob = errors.New("worker: unknown job kind")

// Validate checks the fields the job kind needs.
func (j Job) Validate() error {
	if j.TenantID == "" {
		return fmt.Errorf("worker: job has no company id")
	}
	switch j.Kind {
	case JobImport:
		if j.ObjectKey == "" {
			return fmt.Errorf("worker: import job has no object key")
		}
	case JobDedup:
		if j.PrimaryKey == "" {
			return fmt.Errorf("worker: dedup job has no primary key")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, j.Kind)
	}
	return nil
}

// Handler processes one job.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// Queue accepts jobs for asynchronous processing.
type Queue interface {
	Submit(ctx context.Context, job Job) error
}

// Submitter turns lifecycle requests into queued jobs.
type Submitter struct {
	queue Queue
	now   func() time.Time
}

// NewSubmitter creates a Submitter over q.
func NewSubmitter(q Queue) *Submitter {
	return &Submitter{queue: q, now: time.Now}
}

func (s *Submitter) SubmitDedup(ctx context.Context, tenantID, userID, primaryKey string) error {
	return s.submit(ctx, Job{Kind: JobDedup, TenantID: tenantID, UserID: userID, PrimaryKey: primaryKey})
}

func (s *Submitter) SubmitImport(ctx context.Context, tenantID, userID, objectKey string) error {
	return s.submit(ctx, Job{Kind: JobImport, TenantID: tenantID, UserID: userID, ObjectKey: objectKey})
}

func (s *Submitter) submit(ctx context.Context, job Job) error {
	job.SubmittedAt = s.now().UTC()
	if err := job.Validate(); err != nil {
		return err
	}
	if err := s.queue.Submit(ctx, job); err != nil {
		return fmt.Errorf("submit %s job: %w", job.Kind, err)
	}
	return nil
}
