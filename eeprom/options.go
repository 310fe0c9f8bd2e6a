package eeprom

import (
	"log/slog"
	"time"
)

type options struct {
	readChunk    int
	pollTimeout  time.Duration
	scanAttempts int
	scanDelay    time.Duration
	candidates   []uint8
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		readChunk:    32,
		pollTimeout:  10 * time.Millisecond,
		scanAttempts: 3,
		scanDelay:    10 * time.Millisecond,
		candidates:   []uint8{0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57},
		logger:       slog.New(slog.DiscardHandler),
	}
}

// Option is a functional option for Detect and Open.
type Option func(*options)

// WithReadChunk sets the number of bytes fetched per bus transaction.
func WithReadChunk(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readChunk = n
		}
	}
}

// WithPollTimeout bounds acknowledge polling after a write.
//
// Example:
//
//	dev, err := eeprom.Open(bus, 0x50, profile, eeprom.WithPollTimeout(20*time.Millisecond))
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollTimeout = d
		}
	}
}

// WithScanAttempts sets how often each candidate address is probed during
// detection and the pause between probes.
func WithScanAttempts(n int, delay time.Duration) Option {
	return func(o *options) {
		if n > 0 {
			o.scanAttempts = n
		}
		if delay >= 0 {
			o.scanDelay = delay
		}
	}
}

// WithCandidates replaces the addresses scanned by Detect.
func WithCandidates(addrs ...uint8) Option {
	return func(o *options) {
		if len(addrs) > 0 {
			o.candidates = append([]uint8(nil), addrs...)
		}
	}
}

// WithLogger sets the logger for device diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
