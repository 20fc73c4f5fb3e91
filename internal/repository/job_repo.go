package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tkhuang/riskcast/internal/domain"
	"gorm.io/gorm"
)

// JobRepository is the durable store for bulk jobs. Only the worker that owns
// a job calls Transition and UpdateProgress for it (single-writer discipline);
// the transactions here defend the invariants, they do not arbitrate writers.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist; Status should be pending.
// Returns:
//   - error: non-nil if the insert fails or inputs are malformed.
func (r *JobRepository) Create(ctx context.Context, job *domain.BulkJob) error {
	if !job.JobType.Valid() {
		return fmt.Errorf("%w: unknown job type %q", domain.ErrValidation, job.JobType)
	}
	if job.TotalRows <= 0 {
		return fmt.Errorf("%w: total_rows must be positive, got %d", domain.ErrValidation, job.TotalRows)
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// Get retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.BulkJob: job record if found.
//   - error: domain.ErrJobNotFound if the ID is unknown.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.BulkJob, error) {
	var job domain.BulkJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// List retrieves jobs for a scope, optionally filtered by status, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - scope: owning scope to filter by.
//   - status: job status to filter by; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.BulkJob: matching job records.
//   - int64: total matching count before pagination.
//   - error: non-nil if the query fails.
func (r *JobRepository) List(ctx context.Context, scope string, status domain.JobStatus, limit, offset int) ([]domain.BulkJob, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.BulkJob{}).Where("scope = ?", scope)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []domain.BulkJob
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// Transition moves a job to a new status, enforcing the legal-edge table.
// started_at is set exactly once on entering processing; completed_at is set
// on any terminal status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - to: target status.
// Returns:
//   - *domain.BulkJob: updated job record.
//   - error: domain.ErrInvalidTransition for an illegal edge,
//     domain.ErrJobNotFound for an unknown ID.
func (r *JobRepository) Transition(ctx context.Context, id string, to domain.JobStatus) (*domain.BulkJob, error) {
	var job domain.BulkJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrJobNotFound
			}
			return err
		}

		if !domain.CanTransition(job.Status, to) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, job.Status, to)
		}

		now := time.Now()
		updates := map[string]interface{}{"status": to}
		if to == domain.JobStatusProcessing && job.StartedAt == nil {
			updates["started_at"] = now
		}
		if to.Terminal() && job.CompletedAt == nil {
			updates["completed_at"] = now
		}

		if err := tx.Model(&job).Updates(updates).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// RequestCancel marks a job for cooperative cancellation. Queued jobs flip
// straight to cancelled; processing jobs only get the flag, and the owning
// worker performs the transition at its next batch boundary.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.BulkJob: job record after the request.
//   - error: domain.ErrInvalidState if the job is not queued or processing.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) (*domain.BulkJob, error) {
	var job domain.BulkJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrJobNotFound
			}
			return err
		}

		switch job.Status {
		case domain.JobStatusQueued:
			now := time.Now()
			if err := tx.Model(&job).Updates(map[string]interface{}{
				"status":           domain.JobStatusCancelled,
				"cancel_requested": true,
				"completed_at":     now,
			}).Error; err != nil {
				return err
			}
		case domain.JobStatusProcessing:
			if err := tx.Model(&job).Update("cancel_requested", true).Error; err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: status is %s", domain.ErrInvalidState, job.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// SetPayloadKey records where a job's payload was archived.
func (r *JobRepository) SetPayloadKey(ctx context.Context, id, key string) error {
	return r.db.WithContext(ctx).Model(&domain.BulkJob{}).
		Where("id = ?", id).
		Update("payload_key", key).Error
}

// SavePayload stores the raw submitted rows for a job.
func (r *JobRepository) SavePayload(ctx context.Context, jobID string, rows []byte) error {
	return r.db.WithContext(ctx).Create(&domain.JobPayload{JobID: jobID, Rows: rows}).Error
}

// GetPayload loads the raw submitted rows for a job.
func (r *JobRepository) GetPayload(ctx context.Context, jobID string) ([]byte, error) {
	var payload domain.JobPayload
	if err := r.db.WithContext(ctx).First(&payload, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return payload.Rows, nil
}

// DeletePayload removes a job's raw rows once the job is terminal.
func (r *JobRepository) DeletePayload(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).Delete(&domain.JobPayload{}, "job_id = ?", jobID).Error
}

// UpdateProgress writes batch-committed counters and appends new row errors.
// processed must be monotonically non-decreasing; violating calls fail with
// domain.ErrProgressRegression. The stored error list is capped at
// domain.MaxJobErrors entries while failed counts keep growing unbounded.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - processed, successful, failed: absolute counter values after the batch.
//   - rowErrors: row-level errors produced by the batch.
// Returns:
//   - error: non-nil on regression, unknown ID, or write failure.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, processed, successful, failed int, rowErrors []domain.JobError) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.BulkJob
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrJobNotFound
			}
			return err
		}

		if processed < job.ProcessedRows {
			return fmt.Errorf("%w: %d -> %d", domain.ErrProgressRegression, job.ProcessedRows, processed)
		}
		if processed > job.TotalRows {
			return fmt.Errorf("%w: processed %d exceeds total %d", domain.ErrValidation, processed, job.TotalRows)
		}

		errs := job.Errors
		for _, re := range rowErrors {
			if len(errs) >= domain.MaxJobErrors {
				break
			}
			errs = append(errs, re)
		}

		return tx.Model(&job).Updates(map[string]interface{}{
			"processed_rows":  processed,
			"successful_rows": successful,
			"failed_rows":     failed,
			"errors":          errs,
		}).Error
	})
}
