package inference

import (
	"errors"
	"fmt"
)

// ErrEmptyPrompt is returned before any network call when the prompt is blank.
var ErrEmptyPrompt = errors.New("prompt is required")

// SubmissionError covers a failed initial request: transport failure, a
// non-200 status, or an unusable response body.
type SubmissionError struct {
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submit job: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("submit job: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollTransportError is a network, HTTP or decoding failure while checking
// job status, including a COMPLETE response without an output url.
type PollTransportError struct {
	JobID string
	Err   error
}

func (e *PollTransportError) Error() string {
	return fmt.Sprintf("check job %s: %v", e.JobID, e.Err)
}

func (e *PollTransportError) Unwrap() error { return e.Err }

// JobFailedError means the remote reported a terminal status other than
// COMPLETE.
type JobFailedError struct {
	JobID  string
	Status string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s ended with status %s", e.JobID, e.Status)
}
