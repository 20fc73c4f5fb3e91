package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkhuang/riskcast/internal/domain"
	"github.com/tkhuang/riskcast/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubSubmitter struct {
	err  error
	seen []*domain.BulkJob
}

func (s *stubSubmitter) Submit(_ context.Context, job *domain.BulkJob, _ []map[string]interface{}) error {
	if s.err != nil {
		return s.err
	}
	s.seen = append(s.seen, job)
	return nil
}

func newJobServiceTest(t *testing.T, submitter Submitter, maxRows int) *JobService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.BulkJob{}, &domain.JobPayload{}))
	return NewJobService(repository.NewJobRepository(db), submitter, maxRows)
}

func TestJobService_CreateJob(t *testing.T) {
	submitter := &stubSubmitter{}
	svc := newJobServiceTest(t, submitter, 100)

	job, err := svc.CreateJob(context.Background(), &CreateJobRequest{
		JobType: domain.JobTypeQuarterly,
		Scope:   "tenant-a",
		Rows:    []map[string]interface{}{{"symbol": "ACME"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, domain.PriorityMedium, job.Priority, "priority defaults to medium")
	assert.Equal(t, 1, job.TotalRows)
	assert.Len(t, submitter.seen, 1)
}

func TestJobService_CreateJobValidatesEnvelope(t *testing.T) {
	svc := newJobServiceTest(t, &stubSubmitter{}, 3)
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, &CreateJobRequest{JobType: "weekly", Rows: []map[string]interface{}{{}}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateJob(ctx, &CreateJobRequest{JobType: domain.JobTypeAnnual})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateJob(ctx, &CreateJobRequest{
		JobType:  domain.JobTypeAnnual,
		Priority: "urgent",
		Rows:     []map[string]interface{}{{}},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateJob(ctx, &CreateJobRequest{
		JobType: domain.JobTypeAnnual,
		Rows:    make([]map[string]interface{}, 4),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestJobService_CreateJobMarksUnqueuedJobFailed(t *testing.T) {
	svc := newJobServiceTest(t, &stubSubmitter{err: errors.New("broker down")}, 100)

	_, err := svc.CreateJob(context.Background(), &CreateJobRequest{
		JobType: domain.JobTypeAnnual,
		Scope:   "tenant-a",
		Rows:    []map[string]interface{}{{"symbol": "ACME"}},
	})
	require.Error(t, err)

	// The stranded record is failed, not left pending forever.
	jobs, total, err := svc.ListJobs(context.Background(), "tenant-a", domain.JobStatusFailed, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusFailed, jobs[0].Status)
}
