package eeprom

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDeviceDetected indicates no candidate address acknowledged.
	ErrNoDeviceDetected = errors.New("no EEPROM detected")

	// ErrWriteTimeout indicates the chip did not finish its write cycle
	// within the poll timeout.
	ErrWriteTimeout = errors.New("write cycle timeout")

	// ErrWriteProtected indicates the chip acknowledged a write without
	// storing it, as it does with its WP pin asserted.
	ErrWriteProtected = errors.New("write protected")
)

// RangeError indicates an access outside the memory array.
type RangeError struct {
	Offset int
	Length int
	Size   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range 0x%X+%d outside %d-byte array", e.Offset, e.Length, e.Size)
}

// VerifyMismatchError reports the first byte that differs from the
// expected content.
type VerifyMismatchError struct {
	Offset   int
	Expected byte
	Actual   byte
}

func (e *VerifyMismatchError) Error() string {
	return fmt.Sprintf("verify mismatch at 0x%04X: expected 0x%02X, got 0x%02X",
		e.Offset, e.Expected, e.Actual)
}

// PartialError reports how far a bulk operation got before it failed or
// was cancelled. Done and Total are in bytes.
type PartialError struct {
	Done  int
	Total int
	Err   error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("stopped after %d of %d bytes: %v", e.Done, e.Total, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
