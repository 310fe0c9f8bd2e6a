package ihex

import "fmt"

// MalformedRecordError reports an invalid line in an Intel HEX file.
type MalformedRecordError struct {
	// Line is the 1-based line number
	Line int

	// Reason describes what is wrong
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("line %d: malformed record: %s", e.Line, e.Reason)
}
