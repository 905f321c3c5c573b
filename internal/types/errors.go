package types

import "errors"

// Sentinel errors for wardroster operations.
var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrPeriodNotFound indicates the target scheduling period does not exist.
	ErrPeriodNotFound = errors.New("scheduling period not found")

	// ErrEmptyBundle indicates bundle composition selected no rules.
	ErrEmptyBundle = errors.New("no rules selected for bundle")

	// ErrLawRuleImmutable indicates a user edit/delete of a law-tagged rule.
	ErrLawRuleImmutable = errors.New("law rule cannot be edited or deleted")

	// ErrJobTerminal indicates a state change on an already-terminal job.
	ErrJobTerminal = errors.New("job is in a terminal state")

	// ErrJobNotSucceeded indicates apply on a job that has not succeeded.
	ErrJobNotSucceeded = errors.New("job has not succeeded")

	// ErrPeriodBusy indicates a second concurrent run on the same period.
	ErrPeriodBusy = errors.New("another run is active for this period")

	// ErrInfeasible indicates the hard constraints admit no schedule.
	ErrInfeasible = errors.New("assignment problem is infeasible")

	// ErrSolveTimeout indicates the solver stopped without an incumbent.
	ErrSolveTimeout = errors.New("solver time limit reached without solution")

	// ErrCanceled indicates cooperative cancellation was observed.
	ErrCanceled = errors.New("job canceled")
)

// FailureCode is the user-visible job failure taxonomy. Every FAILED or
// CANCELED job carries exactly one code.
type FailureCode string

const (
	FailValidation FailureCode = "VALIDATION"
	FailInfeasible FailureCode = "OPT_INFEASIBLE"
	FailTimeout    FailureCode = "OPT_TIMEOUT"
	FailCanceled   FailureCode = "CANCELED"
	FailInternal   FailureCode = "INTERNAL"
)

// JobError is the structured error payload attached to a failed job and
// surfaced on the event stream.
type JobError struct {
	Code    FailureCode `json:"code"`
	Message string      `json:"message"`
	Details JSONMap     `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *JobError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewJobError builds a JobError with optional details.
func NewJobError(code FailureCode, message string, details JSONMap) *JobError {
	return &JobError{Code: code, Message: message, Details: details}
}
