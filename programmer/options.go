package programmer

import (
	"time"

	"github.com/moffa90/go-ch341prog/eeprom"
	"github.com/moffa90/go-ch341prog/i2c"
)

// Config holds the session configuration.
type Config struct {
	// ProgressCallback is called after every page to report progress (optional)
	ProgressCallback ProgressCallback

	// ResultCallback is called once when a job ends (optional)
	ResultCallback ResultCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// EventSink receives structured session events (optional)
	EventSink EventSink

	// Profile, when set, declares the chip and skips detection
	Profile *eeprom.Profile

	// Address is the device address used with Profile
	Address uint8

	// Speed is the bus clock applied before the first job
	Speed i2c.Speed

	// Verify enables a read-back phase after Write and Erase
	Verify bool

	// Retries is the number of retries for NACKed or timed-out transactions
	Retries int

	// PollTimeout bounds acknowledge polling after each page write
	PollTimeout time.Duration

	// ReadChunk is the number of bytes fetched per read transaction
	ReadChunk int

	// ScanAttempts is how often each candidate address is probed during detection
	ScanAttempts int

	// ScanDelay is the pause between probes of one candidate
	ScanDelay time.Duration

	// SpeedSettle is the pause after the speed command
	SpeedSettle time.Duration
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Address:      0x50,
		Speed:        i2c.SpeedStandard,
		Verify:       true,
		Retries:      3,
		PollTimeout:  10 * time.Millisecond,
		ReadChunk:    32,
		ScanAttempts: 3,
		ScanDelay:    10 * time.Millisecond,
		SpeedSettle:  50 * time.Millisecond,
	}
}

// Option is a functional option for configuring the Session.
type Option func(*Config)

// WithProgressCallback sets a callback function to track job progress.
//
// Example:
//
//	sess := programmer.New(handle,
//	    programmer.WithProgressCallback(func(p programmer.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithResultCallback sets a callback invoked when a job ends.
func WithResultCallback(callback ResultCallback) Option {
	return func(c *Config) {
		c.ResultCallback = callback
	}
}

// WithLogger sets a logger for the session operations.
// A *slog.Logger is also handed to the bus and device layers.
//
// Example:
//
//	sess := programmer.New(handle, programmer.WithLogger(slog.Default()))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithEventSink sets the receiver of structured session events.
func WithEventSink(sink EventSink) Option {
	return func(c *Config) {
		c.EventSink = sink
	}
}

// WithProfile declares the chip at addr instead of detecting it.
//
// Example:
//
//	p, _ := eeprom.Lookup("24C02")
//	sess := programmer.New(handle, programmer.WithProfile(p, 0x50))
func WithProfile(p eeprom.Profile, addr uint8) Option {
	return func(c *Config) {
		c.Profile = &p
		c.Address = addr
	}
}

// WithAddress sets the device address used with a declared profile.
func WithAddress(addr uint8) Option {
	return func(c *Config) {
		c.Address = addr
	}
}

// WithSpeed sets the bus clock.
func WithSpeed(s i2c.Speed) Option {
	return func(c *Config) {
		c.Speed = s
	}
}

// WithVerify enables or disables the read-back phase after Write and Erase.
//
// Example:
//
//	sess := programmer.New(handle, programmer.WithVerify(false))
func WithVerify(verify bool) Option {
	return func(c *Config) {
		c.Verify = verify
	}
}

// WithRetries sets the number of retries for NACKed or timed-out transactions.
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

// WithPollTimeout bounds acknowledge polling after each page write.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollTimeout = d
		}
	}
}

// WithReadChunk sets the number of bytes fetched per read transaction.
func WithReadChunk(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.ReadChunk = n
		}
	}
}

// WithScanAttempts sets the probes per candidate address and the pause
// between them.
func WithScanAttempts(n int, delay time.Duration) Option {
	return func(c *Config) {
		if n > 0 {
			c.ScanAttempts = n
		}
		if delay >= 0 {
			c.ScanDelay = delay
		}
	}
}

// WithSpeedSettle sets the pause after the speed command.
func WithSpeedSettle(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.SpeedSettle = d
		}
	}
}
