package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the bulk job ID
	FieldJobID = "job_id"

	// FieldWorkerID is the batch worker ID
	FieldWorkerID = "worker_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldPriority is the queue priority class
	FieldPriority = "priority"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldBatch is the batch index within a job
	FieldBatch = "batch"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldSize is the response body size in bytes
	FieldSize = "size"
)
