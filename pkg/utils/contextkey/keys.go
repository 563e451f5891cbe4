package contextkey

// Key is a private context key type to avoid collisions.
type Key string

const (
	// TraceID identifies one request or one submission end to end.
	TraceID Key = "trace_id"
	// RequestID identifies a single HTTP request.
	RequestID Key = "request_id"
	// SubmissionID carries the numeric submission id through the judge pipeline.
	SubmissionID Key = "submission_id"
)
