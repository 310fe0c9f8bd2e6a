package i2c

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/moffa90/go-ch341prog/protocol"
	"github.com/moffa90/go-ch341prog/transport"
)

// MaxAddress is the highest 7-bit device address.
const MaxAddress = 0x7F

// Commander sends one command packet and returns respLen response bytes.
// *transport.Handle implements it.
type Commander interface {
	SendCommand(ctx context.Context, cmd []byte, respLen int) ([]byte, error)
}

// Speed is the I2C clock rate.
type Speed int

// Supported bus speeds.
const (
	SpeedSlow     Speed = iota // 20 kHz
	SpeedStandard              // 100 kHz
	SpeedFast                  // 400 kHz
	SpeedFastPlus              // 750 kHz
)

var speedNames = map[Speed]string{
	SpeedSlow:     "slow",
	SpeedStandard: "standard",
	SpeedFast:     "fast",
	SpeedFastPlus: "fastplus",
}

func (s Speed) String() string {
	if name, ok := speedNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Speed(%d)", int(s))
}

// selector maps the speed onto the bridge SET argument.
func (s Speed) selector() (protocol.Speed, error) {
	switch s {
	case SpeedSlow:
		return protocol.Speed20kHz, nil
	case SpeedStandard:
		return protocol.Speed100kHz, nil
	case SpeedFast:
		return protocol.Speed400kHz, nil
	case SpeedFastPlus:
		return protocol.Speed750kHz, nil
	default:
		return 0, fmt.Errorf("unsupported bus speed %d", int(s))
	}
}

// Hz returns the nominal clock frequency.
func (s Speed) Hz() int {
	sel, err := s.selector()
	if err != nil {
		return 0
	}
	return sel.Hz()
}

// ParseSpeed parses "slow", "standard", "fast" or "fastplus", or a frequency
// such as "100k" or "400000".
func ParseSpeed(s string) (Speed, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for sp, name := range speedNames {
		if v == name {
			return sp, nil
		}
	}

	switch strings.TrimSuffix(v, "hz") {
	case "20k", "20000":
		return SpeedSlow, nil
	case "100k", "100000":
		return SpeedStandard, nil
	case "400k", "400000":
		return SpeedFast, nil
	case "750k", "750000":
		return SpeedFastPlus, nil
	}
	return 0, fmt.Errorf("unknown bus speed %q", s)
}

// Config is the bus configuration applied by Configure.
type Config struct {
	// Speed is the clock rate
	Speed Speed

	// Address is the default 7-bit device address
	Address uint8
}

// DefaultConfig returns 100 kHz with the usual EEPROM base address 0x50.
func DefaultConfig() Config {
	return Config{Speed: SpeedStandard, Address: 0x50}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := c.Speed.selector(); err != nil {
		return err
	}
	if c.Address > MaxAddress {
		return fmt.Errorf("%w: 0x%02X", ErrInvalidAddress, c.Address)
	}
	return nil
}

// Bus performs I2C transactions through a bridge.
//
// Bus is not safe for concurrent use; the transport handle underneath
// serialises transfers, but interleaved transactions would corrupt each
// other's bus state.
type Bus struct {
	cmd  Commander
	opts options
	cfg  Config
}

// New creates a bus on top of cmd. The bridge keeps its power-on speed until
// Configure is called.
func New(cmd Commander, opts ...Option) *Bus {
	if cmd == nil {
		panic("commander cannot be nil")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Bus{
		cmd:  cmd,
		opts: o,
		cfg:  DefaultConfig(),
	}
}

// Config returns the configuration set by the last Configure.
func (b *Bus) Config() Config {
	return b.cfg
}

// RetryPolicy returns the retry policy in use.
func (b *Bus) RetryPolicy() RetryPolicy {
	return b.opts.retry
}

// Configure sends the speed command and waits for the clock to settle.
// The new configuration applies to the next transaction.
func (b *Bus) Configure(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	sel, _ := cfg.Speed.selector()
	pkt, err := protocol.BuildSetSpeedCmd(sel)
	if err != nil {
		return err
	}

	if _, err := b.cmd.SendCommand(ctx, pkt.Data, 0); err != nil {
		return fmt.Errorf("set speed: %w", mapTransportError(err))
	}
	b.opts.sleep(b.opts.speedSettle)

	b.cfg = cfg
	b.opts.logger.Debug("bus configured", "speed", cfg.Speed.String(), "address", fmt.Sprintf("0x%02X", cfg.Address))
	return nil
}

// Write sends data to the device at addr.
func (b *Bus) Write(ctx context.Context, addr uint8, data []byte) error {
	_, err := b.retry(ctx, "write", addr, func() ([]byte, error) {
		return b.transact(ctx, addr, data, true, 0)
	})
	return err
}

// Read reads n bytes from the device at addr.
func (b *Bus) Read(ctx context.Context, addr uint8, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("read length must be positive, got %d", n)
	}
	return b.retry(ctx, "read", addr, func() ([]byte, error) {
		return b.transact(ctx, addr, nil, false, n)
	})
}

// WriteRead writes w, issues a repeated START and reads n bytes, all in one
// transaction. This is the EEPROM random and sequential read sequence.
func (b *Bus) WriteRead(ctx context.Context, addr uint8, w []byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("read length must be positive, got %d", n)
	}
	return b.retry(ctx, "write-read", addr, func() ([]byte, error) {
		return b.transact(ctx, addr, w, true, n)
	})
}

// Probe addresses the device with a zero-length write and reports whether
// it acknowledged. Probe is not retried.
func (b *Bus) Probe(ctx context.Context, addr uint8) (bool, error) {
	_, err := b.transact(ctx, addr, nil, true, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNack):
		return false, nil
	default:
		return false, err
	}
}

// Scan probes every address in [from, to] and returns the ones that
// acknowledged.
func (b *Bus) Scan(ctx context.Context, from, to uint8) ([]uint8, error) {
	if from > to || to > MaxAddress {
		return nil, fmt.Errorf("%w: scan range 0x%02X-0x%02X", ErrInvalidAddress, from, to)
	}

	var found []uint8
	for addr := int(from); addr <= int(to); addr++ {
		ok, err := b.Probe(ctx, uint8(addr))
		if err != nil {
			return found, fmt.Errorf("probe 0x%02X: %w", addr, err)
		}
		if ok {
			found = append(found, uint8(addr))
		}
	}
	return found, nil
}

// retry runs fn until it succeeds, fails with a non-retryable error, or the
// retry policy is exhausted.
func (b *Bus) retry(ctx context.Context, op string, addr uint8, fn func() ([]byte, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= b.opts.retry.Retries; attempt++ {
		if attempt > 0 {
			b.opts.logger.Debug("retrying transaction",
				"op", op,
				"address", fmt.Sprintf("0x%02X", addr),
				"attempt", attempt,
				"error", lastErr,
			)
			if b.opts.onRetry != nil {
				b.opts.onRetry(op, addr, attempt, lastErr)
			}
			b.opts.sleep(b.opts.retry.Settle)
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func retryable(err error) bool {
	return errors.Is(err, ErrNack) || errors.Is(err, ErrBusTimeout)
}

// transact runs a single attempt of a transaction. With write set it
// addresses the device for writing and sends w; with n > 0 it then (re)starts
// in read direction and clocks in n bytes.
func (b *Bus) transact(ctx context.Context, addr uint8, w []byte, write bool, n int) ([]byte, error) {
	if addr > MaxAddress {
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidAddress, addr)
	}

	s := protocol.NewStream().Start()
	if write {
		s.WriteAcked(addr << 1)
		for _, v := range w {
			s.WriteAcked(v)
		}
		if n > 0 {
			s.Start()
		}
	}
	if n > 0 {
		s.WriteAcked(addr<<1 | 1).Read(n)
	}
	s.Stop()

	// Ack index 0 is the write address, then one per data byte, then the
	// read address.
	var data []byte
	ackIdx := 0
	for _, pkt := range s.Packets() {
		raw, err := b.cmd.SendCommand(ctx, pkt.Data, pkt.ResponseLen())
		if err != nil {
			// No STOP here: it would commit a partially latched page. The
			// next attempt begins with a START, which discards it.
			return nil, mapTransportError(err)
		}

		resp, err := protocol.ParseResponse(pkt, raw)
		if err != nil {
			b.abort(ctx)
			return nil, err
		}

		for _, ack := range resp.Acks {
			if !ack {
				b.abort(ctx)
				return nil, &NackError{Addr: addr, Index: nackIndex(ackIdx, write, len(w))}
			}
			ackIdx++
		}
		data = append(data, resp.Data...)
	}

	return data, nil
}

// nackIndex converts a position in the ack sequence into a NackError index.
func nackIndex(ackIdx int, write bool, wlen int) int {
	if !write {
		return 0
	}
	if ackIdx > wlen {
		// read address after the repeated START
		return 0
	}
	return ackIdx
}

// abort releases the bus after a failed transaction.
func (b *Bus) abort(ctx context.Context) {
	pkt := protocol.NewStream().Stop().Packets()[0]
	if _, err := b.cmd.SendCommand(ctx, pkt.Data, 0); err != nil {
		b.opts.logger.Debug("stop after abort failed", "error", err)
	}
}

// mapTransportError turns transport timeouts into ErrBusTimeout while
// keeping the transport error in the chain.
func mapTransportError(err error) error {
	if transport.IsTimeout(err) {
		return fmt.Errorf("%w: %w", ErrBusTimeout, err)
	}
	return err
}
