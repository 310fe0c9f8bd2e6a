package programmer

import (
	"errors"
	"fmt"
)

var (
	// ErrOperationInProgress indicates a job is already running.
	ErrOperationInProgress = errors.New("operation in progress")

	// ErrCancelled indicates the job was stopped by Cancel.
	ErrCancelled = errors.New("operation cancelled")

	// ErrNotAcknowledged indicates the session is Failed and Acknowledge
	// must be called first.
	ErrNotAcknowledged = errors.New("previous failure not acknowledged")
)

// OperationError reports a failed or cancelled job and how far it got.
type OperationError struct {
	Op    Operation
	Phase Phase
	Done  int
	Total int
	Err   error
}

func (e *OperationError) Error() string {
	if e.Total > 0 {
		return fmt.Sprintf("%s failed while %s after %d of %d bytes: %v",
			e.Op, e.Phase, e.Done, e.Total, e.Err)
	}
	return fmt.Sprintf("%s failed while %s: %v", e.Op, e.Phase, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Cancelled reports whether the job was stopped by Cancel.
func (e *OperationError) Cancelled() bool {
	return errors.Is(e.Err, ErrCancelled)
}
