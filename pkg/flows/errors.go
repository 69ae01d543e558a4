// Package flows implements the job handlers of the triage pipeline: the
// nine durable job types that carry a case from PDF intake to cleanup.
package flows

import "fmt"

// Failure cause labels carried in retried job errors. The failure
// finalizer categorizes a dead job's last error by these substrings, and
// the Room-1 failure reply reports the category to the requester.
const (
	CauseDownload      = "download"
	CauseExtract       = "extract"
	CauseRecordExtract = "record_extract"
)

// RetriableError tags a handler failure with its pipeline cause. The cause
// prefixes the error text so it survives into the job's last_error column.
type RetriableError struct {
	Cause string
	Err   error
}

func (e *RetriableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Cause, e.Err)
}

func (e *RetriableError) Unwrap() error {
	return e.Err
}

func retriable(cause string, err error) *RetriableError {
	return &RetriableError{Cause: cause, Err: err}
}
