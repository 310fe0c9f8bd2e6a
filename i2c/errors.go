package i2c

import (
	"errors"
	"fmt"
)

var (
	// ErrNack indicates a device did not acknowledge its address or a data byte.
	ErrNack = errors.New("no acknowledge")

	// ErrBusTimeout indicates the bridge did not answer within the transfer timeout.
	ErrBusTimeout = errors.New("bus timeout")

	// ErrInvalidAddress indicates a device address outside the 7-bit range.
	ErrInvalidAddress = errors.New("invalid device address")
)

// NackError describes where a transaction was not acknowledged.
// It matches ErrNack with errors.Is.
type NackError struct {
	// Addr is the 7-bit device address of the transaction
	Addr uint8

	// Index is 0 for the address byte, i+1 for the i-th data byte written
	Index int
}

func (e *NackError) Error() string {
	if e.Index == 0 {
		return fmt.Sprintf("device 0x%02X: address not acknowledged", e.Addr)
	}
	return fmt.Sprintf("device 0x%02X: data byte %d not acknowledged", e.Addr, e.Index-1)
}

func (e *NackError) Is(target error) bool {
	return target == ErrNack
}

// IsNack reports whether err is a negative acknowledge.
func IsNack(err error) bool {
	return errors.Is(err, ErrNack)
}
