package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tkhuang/riskcast/internal/domain"
	"github.com/tkhuang/riskcast/internal/logger"
	"github.com/tkhuang/riskcast/internal/repository"
)

// Submitter hands an accepted job to the processing pipeline.
type Submitter interface {
	Submit(ctx context.Context, job *domain.BulkJob, rawRows []map[string]interface{}) error
}

// CreateJobRequest is one bulk submission.
type CreateJobRequest struct {
	JobType  domain.JobType           `json:"job_type"`
	Priority domain.Priority          `json:"priority"`
	Scope    string                   `json:"scope"`
	OwnerID  string                   `json:"owner_id"`
	Rows     []map[string]interface{} `json:"rows"`
}

// JobService accepts bulk submissions and exposes job lifecycle operations.
// Row content is not validated here; malformed rows surface as row-level
// errors during processing, not as submission failures.
type JobService struct {
	jobs      *repository.JobRepository
	submitter Submitter
	maxRows   int
}

// NewJobService creates a new JobService. maxRows caps the rows accepted in
// one submission.
func NewJobService(jobs *repository.JobRepository, submitter Submitter, maxRows int) *JobService {
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &JobService{
		jobs:      jobs,
		submitter: submitter,
		maxRows:   maxRows,
	}
}

// CreateJob validates the submission envelope, persists a pending job and
// hands it to the queue. Returns the created job in its post-submit state.
func (s *JobService) CreateJob(ctx context.Context, req *CreateJobRequest) (*domain.BulkJob, error) {
	if !req.JobType.Valid() {
		return nil, fmt.Errorf("%w: unknown job type %q", domain.ErrValidation, req.JobType)
	}
	if len(req.Rows) == 0 {
		return nil, fmt.Errorf("%w: rows must not be empty", domain.ErrValidation)
	}
	if len(req.Rows) > s.maxRows {
		return nil, fmt.Errorf("%w: %d rows exceeds the %d row limit", domain.ErrValidation, len(req.Rows), s.maxRows)
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, priority)
	}

	job := &domain.BulkJob{
		ID:        uuid.New().String(),
		JobType:   req.JobType,
		Priority:  priority,
		Status:    domain.JobStatusPending,
		Scope:     req.Scope,
		OwnerID:   req.OwnerID,
		TotalRows: len(req.Rows),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.submitter.Submit(ctx, job, req.Rows); err != nil {
		// The record exists but never reached the queue. Mark it failed so
		// the caller is not left polling a job nothing will pick up.
		if _, terr := s.jobs.Transition(ctx, job.ID, domain.JobStatusFailed); terr != nil {
			logger.FromContext(ctx).WithError(terr).Error("Failed to mark unqueued job failed")
		}
		return nil, fmt.Errorf("failed to submit job: %w", err)
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldJobID:    job.ID,
		logger.FieldPriority: string(priority),
		"total_rows":         job.TotalRows,
	}).Info("Job accepted")

	return s.jobs.Get(ctx, job.ID)
}

// GetJob retrieves a job by ID.
func (s *JobService) GetJob(ctx context.Context, id string) (*domain.BulkJob, error) {
	return s.jobs.Get(ctx, id)
}

// ListJobs retrieves jobs for a scope, newest first.
func (s *JobService) ListJobs(ctx context.Context, scope string, status domain.JobStatus, limit, offset int) ([]domain.BulkJob, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if status != "" && !status.Terminal() &&
		status != domain.JobStatusPending && status != domain.JobStatusQueued && status != domain.JobStatusProcessing {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}
	return s.jobs.List(ctx, scope, status, limit, offset)
}

// CancelJob requests cooperative cancellation of a job.
func (s *JobService) CancelJob(ctx context.Context, id string) (*domain.BulkJob, error) {
	job, err := s.jobs.RequestCancel(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).WithField(logger.FieldJobID, id).Info("Cancellation requested")
	return s.jobs.Get(ctx, job.ID)
}
