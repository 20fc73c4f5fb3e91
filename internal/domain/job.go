package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobType selects the required ratio set for submitted rows.
type JobType string

const (
	JobTypeAnnual    JobType = "annual"
	JobTypeQuarterly JobType = "quarterly"
)

// Valid reports whether the job type is a known value.
func (t JobType) Valid() bool {
	return t == JobTypeAnnual || t == JobTypeQuarterly
}

// JobStatus represents the lifecycle state of a bulk job.
// Values include JobStatusPending, JobStatusQueued, JobStatusProcessing,
// JobStatusCompleted, JobStatusFailed, and JobStatusCancelled.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal jobs are read-only.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// legalTransitions enumerates the allowed status edges. Transitions are
// one-directional; cancel is only reachable from queued or processing.
var legalTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusQueued, JobStatusFailed},
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to JobStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MaxJobErrors bounds the persisted error list per job. Failed row counts are
// not bounded, only the stored error detail.
const MaxJobErrors = 100

// JobError records a single row-level failure.
type JobError struct {
	RowIndex int    `json:"row_index"`
	Message  string `json:"message"`
}

// JobErrorList is a custom type for storing job errors as JSON in the database.
type JobErrorList []JobError

// Value implements the driver.Valuer interface for database serialization.
func (l JobErrorList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *JobErrorList) Scan(value interface{}) error {
	if value == nil {
		*l = JobErrorList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JobErrorList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// BulkJob represents one submitted prediction file and its progress metadata.
type BulkJob struct {
	ID             string       `gorm:"type:text;primaryKey" json:"id"`
	JobType        JobType      `gorm:"type:text;not null" json:"job_type"`
	Priority       Priority     `gorm:"type:text;not null;default:medium" json:"priority"`
	Status         JobStatus    `gorm:"type:text;index:idx_bulk_jobs_status;default:pending" json:"status"`
	Scope          string       `gorm:"type:text;not null;index" json:"scope"`
	OwnerID        string       `gorm:"type:text" json:"owner_id,omitempty"`
	TotalRows      int          `gorm:"default:0" json:"total_rows"`
	ProcessedRows  int          `gorm:"default:0" json:"processed_rows"`
	SuccessfulRows int          `gorm:"default:0" json:"successful_rows"`
	FailedRows     int          `gorm:"default:0" json:"failed_rows"`
	Errors         JobErrorList `gorm:"type:text" json:"errors"`
	CancelRequested bool        `gorm:"default:false" json:"cancel_requested,omitempty"`
	PayloadKey     string       `gorm:"type:text" json:"payload_key,omitempty"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TableName returns the database table name for BulkJob.
func (BulkJob) TableName() string {
	return "bulk_jobs"
}

// JobPayload holds the raw submitted rows for a job as JSON, separate from
// the job record so status polling never drags the payload along. Deleted
// once the job reaches a terminal state.
type JobPayload struct {
	JobID     string    `gorm:"type:text;primaryKey" json:"job_id"`
	Rows      []byte    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for JobPayload.
func (JobPayload) TableName() string {
	return "job_payloads"
}

// ProgressPercentage returns processed rows as a percentage of total rows.
func (j *BulkJob) ProgressPercentage() float64 {
	if j.TotalRows == 0 {
		return 0
	}
	return float64(j.ProcessedRows) / float64(j.TotalRows) * 100
}
