package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrDeviceNotFound indicates no adapter matches the requested identifier.
	ErrDeviceNotFound = errors.New("adapter not found")

	// ErrPermissionDenied indicates the adapter exists but cannot be opened.
	ErrPermissionDenied = errors.New("adapter permission denied")

	// ErrTimeout indicates a transfer did not complete within the handle timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrIO indicates a fatal transfer failure; the handle has been closed.
	ErrIO = errors.New("transfer I/O error")

	// ErrHandleClosed indicates the handle was closed or torn down.
	ErrHandleClosed = errors.New("handle closed")

	// ErrAlreadyOpen indicates the adapter is already owned by another handle.
	ErrAlreadyOpen = errors.New("adapter already open")
)

// TransferError describes a failed bulk transfer.
// It matches its Kind (ErrTimeout or ErrIO) and the underlying cause with errors.Is.
type TransferError struct {
	// Op is the direction that failed: "write" or "read"
	Op string

	// Kind is ErrTimeout or ErrIO
	Kind error

	// Err is the error reported by the backend
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IsTimeout reports whether err is a transfer timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsFatal reports whether err tore the handle down.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIO) || errors.Is(err, ErrHandleClosed)
}
