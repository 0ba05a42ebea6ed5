package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoEligibleJobs is returned by ClaimNext when nothing is claimable.
	ErrNoEligibleJobs = errors.New("no eligible jobs")

	// ErrJobNotCancellable is returned when cancelling a job already in a
	// terminal state.
	ErrJobNotCancellable = errors.New("job is not pending or processing")

	// ErrUnknownJobType is returned when a job carries a type outside the
	// closed set. This is a configuration error, never a retry case.
	ErrUnknownJobType = errors.New("unknown job type")
)

// MalformedPayloadError marks a job whose payload cannot be decoded into
// the shape its handler expects. It is terminal: retrying cannot fix it.
type MalformedPayloadError struct {
	JobType JobType
	Err     error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.JobType, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// RetryableError wraps transient handler failures that should consume an
// attempt and return the job to pending.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable reports whether err should send the job back to pending
// (attempts permitting) rather than failing it terminally. Malformed
// payloads and unknown types fail fast.
func Retryable(err error) bool {
	var mp *MalformedPayloadError
	if errors.As(err, &mp) {
		return false
	}
	if errors.Is(err, ErrUnknownJobType) {
		return false
	}
	return true
}
