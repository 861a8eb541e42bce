package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/notify"
	"github.com/ignite/audience-core/internal/pkg/distlock"
	"github.com/ignite/audience-core/internal/service/dedup"
)

// Messages sent when a job finds its tenant busy.
var (
	ErrDedupRunning  = errors.New("deduplication already running")
	ErrImportRunning = errors.New("import already running")
)

// Leaser hands out per-tenant job leases and keeps them renewed while a job
// runs.
type Leaser interface {
	Acquire(ctx context.Context, kind, tenantID string) (distlock.DistLock, error)
	Hold(ctx context.Context, lock distlock.DistLock) (context.Context, func())
}

// Deduper marks duplicates on a primary key.
type Deduper interface {
	MarkDuplicates(ctx context.Context, tenantID, primaryKey string, dryRun bool) (dedup.Result, error)
}

// ContactImporter runs an import job.
type ContactImporter interface {
	Run(ctx context.Context, job Job) (ImportResult, error)
}

// BusyFlagger sets the tenant's isMarkingDuplicates flag.
type BusyFlagger interface {
	SetMarkingDuplicates(ctx context.Context, id string, marking bool) error
}

// Supervisor runs jobs one tenant lease at a time and reports their outcome
// on the user's progress channel.
type Supervisor struct {
	lease     Leaser
	companies BusyFlagger
	dedup     Deduper
	importer  ContactImporter
	sink      notify.Sink
}

func NewSupervisor(lease Leaser, companies BusyFlagger, d Deduper, im ContactImporter, sink notify.Sink) *Supervisor {
	return &Supervisor{lease: lease, companies: companies, dedup: d, importer: im, sink: sink}
}

// Handle dispatches job by kind. Failures are reported to the user; the
// returned error is for the caller's log.
func (s *Supervisor) Handle(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	switch job.Kind {
	case JobDedup:
		return s.runDedup(ctx, job)
	case JobImport:
		return s.runImport(ctx, job)
	}
	return fmt.Errorf("%w: %q", ErrUnknownJob, job.Kind)
}

func (s *Supervisor) runDedup(ctx context.Context, job Job) (err error) {
	ch := domain.ChannelMarkDuplicateProgress
	lock, err := s.acquire(ctx, job, ch, ErrDedupRunning)
	if err != nil {
		return err
	}
	// The flag and lease must be cleared even when ctx is cancelled.
	cleanup := context.WithoutCancel(ctx)
	defer func() {
		if ferr := s.companies.SetMarkingDuplicates(cleanup, job.TenantID, false); ferr != nil {
			log.Error("clear marking flag failed", "company_id", job.TenantID, "error", ferr)
			err = errors.Join(err, ferr)
		}
		if rerr := lock.Release(cleanup); rerr != nil {
			log.Warn("release lease failed", "company_id", job.TenantID, "error", rerr)
		}
	}()
	ctx, stop := s.lease.Hold(ctx, lock)
	defer stop()

	if err := s.companies.SetMarkingDuplicates(ctx, job.TenantID, true); err != nil {
		s.fail(ctx, job, ch, err)
		return err
	}
	s.emit(ctx, job.UserID, domain.Progress(ch, 0))

	res, err := s.dedup.MarkDuplicates(ctx, job.TenantID, job.PrimaryKey, false)
	if err != nil {
		err = leaseCause(ctx, err)
		s.fail(ctx, job, ch, err)
		return err
	}
	log.Info("dedup job done", "company_id", job.TenantID, "duplicates", res.Duplicates, "applied", res.Applied)
	s.emit(ctx, job.UserID, domain.Progress(ch, 100))
	return nil
}

func (s *Supervisor) runImport(ctx context.Context, job Job) error {
	ch := domain.ChannelUploadProgress
	lock, err := s.acquire(ctx, job, ch, ErrImportRunning)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn("release lease failed", "company_id", job.TenantID, "error", rerr)
		}
	}()
	ctx, stop := s.lease.Hold(ctx, lock)
	defer stop()

	if _, err := s.importer.Run(ctx, job); err != nil {
		err = leaseCause(ctx, err)
		s.fail(ctx, job, ch, err)
		return err
	}
	return nil
}

// acquire takes the tenant lease for the job kind, reporting busy as
// busyErr.
func (s *Supervisor) acquire(ctx context.Context, job Job, ch domain.ProgressChannel, busyErr error) (distlock.DistLock, error) {
	lock, err := s.lease.Acquire(ctx, string(job.Kind), job.TenantID)
	if errors.Is(err, distlock.ErrLeaseHeld) {
		s.fail(ctx, job, ch, busyErr)
		return nil, busyErr
	}
	if err != nil {
		s.fail(ctx, job, ch, err)
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	return lock, nil
}

// leaseCause attributes a job error to a lost lease when that is why the job
// context ended.
func leaseCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, distlock.ErrLeaseLost) {
		return fmt.Errorf("%w: %v", cause, err)
	}
	return err
}

func (s *Supervisor) fail(ctx context.Context, job Job, ch domain.ProgressChannel, err error) {
	log.Warn("job failed", "kind", job.Kind, "company_id", job.TenantID, "error", err)
	s.emit(context.WithoutCancel(ctx), job.UserID, domain.ProgressError(ch, err))
}

func (s *Supervisor) emit(ctx context.Context, userID string, msg domain.ProgressMessage) {
	if err := s.sink.Emit(ctx, userID, msg); err != nil {
		log.Warn("progress emit failed", "user_id", userID, "error", err)
	}
}
