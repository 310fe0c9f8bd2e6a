package protocol

import "fmt"

// ProtocolError reports a malformed packet or response.
type ProtocolError struct {
	// Operation is the step that failed
	Operation string

	// Reason describes what was wrong
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Reason)
}

// IsProtocolError returns true if the error is a ProtocolError.
func IsProtocolError(err error) bool {
	_, ok := err.(*ProtocolError)
	return ok
}
