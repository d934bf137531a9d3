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

	// FieldJobID is the upload job ID
	FieldJobID = "job_id"

	// FieldChunkID is the upload chunk ID
	FieldChunkID = "chunk_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldFile is the uploaded source file name
	FieldFile = "file"

	// FieldWorker is the worker index within the pool
	FieldWorker = "worker"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldRows is a row count field
	FieldRows = "rows"

	// FieldThroughput is the processing rate in rows per second
	FieldThroughput = "rows_per_sec"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
