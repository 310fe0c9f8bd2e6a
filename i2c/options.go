package i2c

import (
	"log/slog"
	"time"
)

// RetryPolicy controls how transactions failing with ErrNack or
// ErrBusTimeout are repeated.
type RetryPolicy struct {
	// Retries is the number of additional attempts after the first one
	Retries int

	// Settle is the pause before each retry
	Settle time.Duration
}

// DefaultRetryPolicy returns three retries with a 1 ms settle delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, Settle: time.Millisecond}
}

// RetryFunc is called before every retry with the attempt number (1-based)
// and the error that caused it.
type RetryFunc func(op string, addr uint8, attempt int, err error)

type options struct {
	retry       RetryPolicy
	speedSettle time.Duration
	logger      *slog.Logger
	onRetry     RetryFunc
	sleep       func(time.Duration)
}

func defaultOptions() options {
	return options{
		retry:       DefaultRetryPolicy(),
		speedSettle: 50 * time.Millisecond,
		logger:      slog.New(slog.DiscardHandler),
		sleep:       time.Sleep,
	}
}

// Option is a functional option for configuring the Bus.
type Option func(*options)

// WithRetryPolicy replaces the retry policy.
//
// Example:
//
//	bus := i2c.New(handle, i2c.WithRetryPolicy(i2c.RetryPolicy{Retries: 5, Settle: 2 * time.Millisecond}))
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		if p.Retries >= 0 && p.Settle >= 0 {
			o.retry = p
		}
	}
}

// WithRetries sets the number of retries, keeping the settle delay.
func WithRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retry.Retries = n
		}
	}
}

// WithSpeedSettle sets the pause after a speed change.
// The bridge needs about 50 ms before the new clock is stable.
func WithSpeedSettle(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.speedSettle = d
		}
	}
}

// WithLogger sets the logger for bus diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRetryHook registers a function called before every retry.
func WithRetryHook(fn RetryFunc) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}
