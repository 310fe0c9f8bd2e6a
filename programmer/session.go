package programmer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/moffa90/go-ch341prog/eeprom"
	"github.com/moffa90/go-ch341prog/i2c"
	"github.com/moffa90/go-ch341prog/memory"
)

// Session drives one EEPROM through one bridge.
type Session struct {
	id     xid.ID
	bus    *i2c.Bus
	config Config

	mu         sync.Mutex
	state      State
	busy       bool
	cancel     context.CancelFunc
	device     *eeprom.Device
	configured bool
	lastErr    error
}

// New creates a session on top of an open bridge handle.
func New(cmd i2c.Commander, opts ...Option) *Session {
	if cmd == nil {
		panic("commander cannot be nil")
	}

	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	s := &Session{
		id:     xid.New(),
		config: config,
		state:  StateIdle,
	}

	busOpts := []i2c.Option{
		i2c.WithRetries(config.Retries),
		i2c.WithSpeedSettle(config.SpeedSettle),
		i2c.WithRetryHook(s.onRetry),
	}
	if l := s.slogger(); l != nil {
		busOpts = append(busOpts, i2c.WithLogger(l.With("component", "i2c")))
	}
	s.bus = i2c.New(cmd, busOpts...)
	return s
}

// ID returns the session identifier stamped on every event.
func (s *Session) ID() string {
	return s.id.String()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the chip found by the last detection, or nil.
func (s *Session) Device() *eeprom.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// LastError returns the error that moved the session to Failed.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Acknowledge clears a failure and returns the session to Idle.
func (s *Session) Acknowledge() {
	s.mu.Lock()
	if s.state != StateFailed {
		s.mu.Unlock()
		return
	}
	s.lastErr = nil
	s.mu.Unlock()
	s.setState("", StateIdle)
}

// Cancel asks the running job to stop at the next page boundary.
// It is a no-op when no job is running.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		s.logInfo("cancel requested")
		cancel()
	}
}

// Detect identifies the chip. With a declared profile it only checks that
// the device acknowledges. Detect runs synchronously on the caller's
// goroutine.
func (s *Session) Detect(ctx context.Context) (*eeprom.Device, error) {
	if err := s.acquire(nil); err != nil {
		return nil, err
	}

	start := time.Now()
	dev, err := s.detect(ctx, OpDetect)
	if err != nil {
		err = s.opError(OpDetect, PhaseDetecting, err)
	}
	s.release(OpDetect, err)
	s.emitResult(Result{Op: OpDetect, Profile: profileOf(dev), Elapsed: time.Since(start), Err: err})
	return dev, err
}

// Read starts a job reading n bytes from off. A non-positive n reads to
// the end of the chip.
func (s *Session) Read(off, n int) (*Job, error) {
	if off < 0 {
		return nil, fmt.Errorf("offset must not be negative, got %d", off)
	}
	return s.start(OpRead, func(ctx context.Context, r *run) error {
		dev, err := r.ensureDevice(ctx)
		if err != nil {
			return err
		}
		if n <= 0 {
			n = dev.Profile().Size - off
		}

		r.enter(StateReading, PhaseReading)
		data, err := dev.Dump(ctx, off, n, r.progress)
		r.result.Offset = off
		r.result.Data = data
		return err
	})
}

// Write starts a job programming every page img touches. Bytes of partly
// covered pages keep their content. With verification enabled the touched
// pages are read back afterwards.
func (s *Session) Write(img *memory.Image) (*Job, error) {
	if img == nil || img.Empty() {
		return nil, fmt.Errorf("image cannot be empty")
	}
	return s.start(OpWrite, func(ctx context.Context, r *run) error {
		dev, err := r.ensureDevice(ctx)
		if err != nil {
			return err
		}

		r.enter(StateWriting, PhaseWriting)
		if err := dev.WriteRange(ctx, img, false, r.progress); err != nil {
			return err
		}
		if !s.config.Verify {
			return nil
		}

		r.enter(StateVerifying, PhaseVerifying)
		return dev.Verify(ctx, img, r.progress)
	})
}

// Erase starts a job filling the whole chip with 0xFF.
func (s *Session) Erase() (*Job, error) {
	return s.start(OpErase, func(ctx context.Context, r *run) error {
		dev, err := r.ensureDevice(ctx)
		if err != nil {
			return err
		}

		r.enter(StateErasing, PhaseErasing)
		if err := dev.EraseChip(ctx, r.progress); err != nil {
			return err
		}
		if !s.config.Verify {
			return nil
		}

		r.enter(StateVerifying, PhaseVerifying)
		size := dev.Profile().Size
		return dev.Verify(ctx, memory.FromBytes(0, slices.Repeat([]byte{0xFF}, size)), r.progress)
	})
}

// Verify starts a job comparing the chip with every byte img specifies.
func (s *Session) Verify(img *memory.Image) (*Job, error) {
	if img == nil || img.Empty() {
		return nil, fmt.Errorf("image cannot be empty")
	}
	return s.start(OpVerify, func(ctx context.Context, r *run) error {
		dev, err := r.ensureDevice(ctx)
		if err != nil {
			return err
		}

		r.enter(StateVerifying, PhaseVerifying)
		return dev.Verify(ctx, img, r.progress)
	})
}

// run carries the per-job bookkeeping through a job body.
type run struct {
	s      *Session
	op     Operation
	phase  Phase
	start  time.Time
	result Result
}

func (r *run) enter(state State, phase Phase) {
	r.phase = phase
	r.s.setState(r.op, state)
}

func (r *run) progress(done, total int) {
	r.s.reportProgress(r.phase, done, total, r.start)
}

func (r *run) ensureDevice(ctx context.Context) (*eeprom.Device, error) {
	r.phase = PhaseDetecting
	r.s.mu.Lock()
	dev := r.s.device
	r.s.mu.Unlock()

	// A cached device only needs to still answer; a swapped or removed
	// chip falls through to a full detection.
	if dev != nil {
		r.s.setState(r.op, StateDetecting)
		ok, err := r.s.bus.Probe(ctx, dev.Address())
		if err != nil {
			return nil, err
		}
		if ok {
			r.result.Profile = dev.Profile()
			return dev, nil
		}
		r.s.logInfo("cached device gone, detecting again", "address", fmt.Sprintf("0x%02X", dev.Address()))
		r.s.mu.Lock()
		r.s.device = nil
		r.s.mu.Unlock()
	}

	dev, err := r.s.detect(ctx, r.op)
	if err != nil {
		return nil, err
	}
	r.result.Profile = dev.Profile()
	return dev, nil
}

// start claims the session and runs body on a new goroutine.
func (s *Session) start(op Operation, body func(ctx context.Context, r *run) error) (*Job, error) {
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.acquire(cancel); err != nil {
		cancel()
		return nil, err
	}

	job := &Job{op: op, done: make(chan struct{})}
	r := &run{s: s, op: op, start: time.Now(), result: Result{Op: op}}

	s.logInfo("job started", "op", op)
	go func() {
		defer cancel()

		err := body(ctx, r)
		if err != nil {
			err = s.opError(op, r.phase, err)
		}
		r.result.Err = err
		r.result.Elapsed = time.Since(r.start)

		s.release(op, err)
		s.emitResult(r.result)

		job.result = r.result
		close(job.done)
	}()
	return job, nil
}

func (s *Session) acquire(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.busy:
		return ErrOperationInProgress
	case s.state == StateFailed:
		return ErrNotAcknowledged
	}
	s.busy = true
	s.cancel = cancel
	return nil
}

// release ends a job. Cancellation returns to Idle, any other error
// leaves the session Failed.
func (s *Session) release(op Operation, err error) {
	next := StateIdle
	if err != nil && !errors.Is(err, ErrCancelled) {
		next = StateFailed
	}

	s.mu.Lock()
	s.busy = false
	s.cancel = nil
	if next == StateFailed {
		s.lastErr = err
	}
	s.mu.Unlock()

	s.setState(op, next)
}

func (s *Session) detect(ctx context.Context, op Operation) (*eeprom.Device, error) {
	s.setState(op, StateDetecting)
	if err := s.configure(ctx); err != nil {
		return nil, err
	}

	devOpts := []eeprom.Option{
		eeprom.WithPollTimeout(s.config.PollTimeout),
		eeprom.WithReadChunk(s.config.ReadChunk),
		eeprom.WithScanAttempts(s.config.ScanAttempts, s.config.ScanDelay),
	}
	if l := s.slogger(); l != nil {
		devOpts = append(devOpts, eeprom.WithLogger(l.With("component", "eeprom")))
	}

	var (
		dev *eeprom.Device
		err error
	)
	if p := s.config.Profile; p != nil {
		dev, err = s.open(ctx, *p, devOpts)
	} else {
		dev, err = eeprom.Detect(ctx, s.bus, devOpts...)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.device = dev
	s.mu.Unlock()

	s.logInfo("device ready", "device", dev.String())
	s.record(Event{Kind: EventDetected, Op: op, Message: dev.String(), Total: dev.Profile().Size})
	return dev, nil
}

// open uses a declared profile after checking that the chip answers.
func (s *Session) open(ctx context.Context, p eeprom.Profile, devOpts []eeprom.Option) (*eeprom.Device, error) {
	dev, err := eeprom.Open(s.bus, s.config.Address, p, devOpts...)
	if err != nil {
		return nil, err
	}

	ok, err := s.bus.Probe(ctx, s.config.Address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w at 0x%02X", eeprom.ErrNoDeviceDetected, s.config.Address)
	}
	return dev, nil
}

// configure applies the bus speed once per session.
func (s *Session) configure(ctx context.Context) error {
	if s.configured {
		return nil
	}

	cfg := i2c.Config{Speed: s.config.Speed, Address: s.config.Address}
	if err := s.bus.Configure(ctx, cfg); err != nil {
		return fmt.Errorf("configure bus: %w", err)
	}
	s.configured = true
	return nil
}

// opError wraps a job failure with the phase and partial completion.
func (s *Session) opError(op Operation, phase Phase, err error) error {
	oe := &OperationError{Op: op, Phase: phase, Err: err}

	var perr *eeprom.PartialError
	if errors.As(err, &perr) {
		oe.Done, oe.Total = perr.Done, perr.Total
	}
	if errors.Is(err, context.Canceled) {
		oe.Err = ErrCancelled
	}

	if oe.Cancelled() {
		s.logInfo("job cancelled", "op", op, "done", oe.Done, "total", oe.Total)
	} else {
		s.logError("job failed", "op", op, "phase", phase, "error", err)
	}
	return oe
}

func (s *Session) setState(op Operation, state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev == state {
		return
	}
	s.logDebug("state changed", "from", prev, "to", state)
	s.record(Event{Kind: EventState, Op: op, State: state, Message: prev.String() + " -> " + state.String()})
}

func (s *Session) onRetry(op string, addr uint8, attempt int, err error) {
	s.record(Event{
		Kind:    EventRetry,
		Message: fmt.Sprintf("%s 0x%02X attempt %d", op, addr, attempt),
		Err:     errString(err),
	})
}

func (s *Session) emitResult(res Result) {
	e := Event{Kind: EventResult, Op: res.Op, Err: errString(res.Err), Message: res.Elapsed.String()}
	var oe *OperationError
	if errors.As(res.Err, &oe) {
		e.Done, e.Total = oe.Done, oe.Total
	}
	s.record(e)

	if s.config.ResultCallback != nil {
		s.config.ResultCallback(res)
	}
}

func (s *Session) record(e Event) {
	if s.config.EventSink == nil {
		return
	}
	e.SessionID = s.ID()
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.config.EventSink.Record(e)
}

// reportProgress calls the progress callback if configured.
func (s *Session) reportProgress(phase Phase, done, total int, start time.Time) {
	if s.config.ProgressCallback == nil {
		return
	}

	var pct float64
	if total > 0 {
		pct = float64(done) / float64(total) * 100.0
	}
	s.config.ProgressCallback(Progress{
		Phase:       phase,
		BytesDone:   done,
		BytesTotal:  total,
		Percentage:  pct,
		ElapsedTime: time.Since(start),
	})
}

// slogger returns the configured logger when it is a *slog.Logger, so the
// lower layers can share it.
func (s *Session) slogger() *slog.Logger {
	l, _ := s.config.Logger.(*slog.Logger)
	return l
}

func profileOf(dev *eeprom.Device) eeprom.Profile {
	if dev == nil {
		return eeprom.Profile{}
	}
	return dev.Profile()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Logging helpers
func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, keysAndValues...)
	}
}

func (s *Session) logError(msg string, keysAndValues ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Error(msg, keysAndValues...)
	}
}
