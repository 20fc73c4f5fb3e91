package domain

import "errors"

// Sentinel errors for the job store and batch pipeline. Callers classify
// failures with errors.Is rather than string matching.
var (
	// ErrJobNotFound is returned when a job ID does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned for an illegal status edge. This is a
	// programming-contract violation, never silently ignored.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrInvalidState is returned when cancelling a job that is not queued
	// or processing.
	ErrInvalidState = errors.New("job is not in a cancellable state")

	// ErrProgressRegression is returned when an update would decrease
	// processed_rows. Counters are monotonic within a job's life.
	ErrProgressRegression = errors.New("processed rows would regress")

	// ErrValidation is returned for malformed job submissions.
	ErrValidation = errors.New("validation failed")

	// ErrOracleUnavailable marks the scoring oracle itself as unreachable,
	// which is fatal to the whole job rather than a single batch.
	ErrOracleUnavailable = errors.New("scoring oracle unreachable")

	// ErrStoreUnavailable marks the durable store as unreachable.
	ErrStoreUnavailable = errors.New("job store unreachable")
)

// RowOutcome is the closed set of per-row processing results. Row failures
// are aggregated into job counters without unwinding the batch.
type RowOutcome string

const (
	RowOutcomeSuccess          RowOutcome = "success"
	RowOutcomeValidationFailed RowOutcome = "validation_failed"
	RowOutcomeDuplicateSkipped RowOutcome = "duplicate_skipped"
	RowOutcomeOracleFailed     RowOutcome = "oracle_failed"
	RowOutcomeRepositoryFailed RowOutcome = "repository_failed"
)
