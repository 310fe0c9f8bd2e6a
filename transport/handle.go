package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// drainTimeout bounds the read used to discard a late response after a timeout.
const drainTimeout = 20 * time.Millisecond

// Handle is the exclusive owner of one open adapter.
//
// SendCommand serialises transfers: exactly one command is in flight per
// Handle. A Handle is not meant to be shared by independent callers.
type Handle struct {
	mu      sync.Mutex
	conn    Conn
	info    AdapterInfo
	timeout time.Duration
	logger  *slog.Logger
	release func()

	closed bool
	cause  error

	// stale is set after a timeout; the IN pipe may still deliver the
	// answer to the timed-out command.
	stale bool
}

// Info returns the adapter this handle owns.
func (h *Handle) Info() AdapterInfo {
	return h.info
}

// Timeout returns the per-transfer timeout.
func (h *Handle) Timeout() time.Duration {
	return h.timeout
}

// SendCommand writes cmd to the adapter and reads back exactly respLen bytes.
// A respLen of zero skips the read.
func (h *Handle) SendCommand(ctx context.Context, cmd []byte, respLen int) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		if h.cause != nil {
			return nil, fmt.Errorf("%w: %w", ErrHandleClosed, h.cause)
		}
		return nil, ErrHandleClosed
	}

	// Transfers are never interrupted by caller cancellation.
	base := context.WithoutCancel(ctx)

	if h.stale {
		h.drain(base)
	}

	tctx, cancel := context.WithTimeout(base, h.timeout)
	defer cancel()

	n, err := h.conn.WriteContext(tctx, cmd)
	if err != nil {
		return nil, h.fail("write", err)
	}
	if n != len(cmd) {
		return nil, h.fail("write", fmt.Errorf("short write: %d of %d bytes", n, len(cmd)))
	}

	if respLen == 0 {
		return nil, nil
	}

	resp := make([]byte, 0, respLen)
	buf := make([]byte, max(respLen, 64))
	for len(resp) < respLen {
		n, err := h.conn.ReadContext(tctx, buf)
		if err != nil {
			return nil, h.fail("read", err)
		}
		if n == 0 {
			if err := tctx.Err(); err != nil {
				return nil, h.fail("read", err)
			}
			continue
		}
		resp = append(resp, buf[:n]...)
	}

	return resp[:respLen], nil
}

// Close releases the adapter. Closing an already closed handle is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	return h.teardown(nil)
}

// Closed reports whether the handle can no longer be used.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fail classifies a transfer error. Timeouts keep the handle; everything
// else tears it down.
func (h *Handle) fail(op string, err error) error {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		h.stale = true
		h.logger.Debug("transfer timeout", "op", op, "timeout", h.timeout)
		return &TransferError{Op: op, Kind: ErrTimeout, Err: err}
	}

	h.logger.Error("transfer failed, closing adapter", "op", op, "error", err)
	terr := &TransferError{Op: op, Kind: ErrIO, Err: err}
	_ = h.teardown(terr)
	return terr
}

func (h *Handle) teardown(cause error) error {
	h.closed = true
	h.cause = cause
	err := h.conn.Close()
	if h.release != nil {
		h.release()
	}
	h.logger.Info("adapter closed")
	return err
}

// drain discards whatever a timed-out command left in the IN pipe.
func (h *Handle) drain(ctx context.Context) {
	h.stale = false
	dctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	buf := make([]byte, 64)
	for {
		n, err := h.conn.ReadContext(dctx, buf)
		if err != nil || n == 0 {
			return
		}
		h.logger.Debug("discarded stale response", "bytes", n)
	}
}
