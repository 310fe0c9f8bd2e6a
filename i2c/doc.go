// Package i2c drives an I2C bus through a CH341A bridge.
//
// A Bus turns byte-level transactions (write, read, combined write/read with
// a repeated START, and address probes) into bridge stream packets, sends
// them through a Commander (normally a *transport.Handle) and checks the
// acknowledge status of every byte clocked out.
//
// A negative acknowledge aborts the transaction with a STOP condition and
// returns an error matching ErrNack. Transactions that fail with ErrNack or
// ErrBusTimeout are retried according to the RetryPolicy; fatal transport
// errors are returned immediately.
//
// Basic usage:
//
//	bus := i2c.New(handle)
//	if err := bus.Configure(ctx, i2c.Config{Speed: i2c.SpeedStandard, Address: 0x50}); err != nil {
//	    return err
//	}
//	data, err := bus.WriteRead(ctx, 0x50, []byte{0x00}, 16)
package i2c
