package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds every bulk transfer.
const DefaultTimeout = time.Second

// AdapterInfo identifies one attached bridge adapter.
type AdapterInfo struct {
	// ID is the backend-specific identifier passed to Open, e.g. "1:7"
	ID string

	// Bus is the USB bus number
	Bus int

	// Address is the USB device address on the bus
	Address int

	// VendorID and ProductID are the USB IDs reported by the adapter
	VendorID  uint16
	ProductID uint16

	// Description is a human-readable label (optional)
	Description string
}

func (a AdapterInfo) String() string {
	s := fmt.Sprintf("%s [%04x:%04x]", a.ID, a.VendorID, a.ProductID)
	if a.Description != "" {
		s += " " + a.Description
	}
	return s
}

// Conn is a raw bulk pipe pair to one adapter.
// Implementations must honour the context deadline and report a deadline
// expiry as an error matching ErrTimeout or context.DeadlineExceeded.
type Conn interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
	ReadContext(ctx context.Context, p []byte) (int, error)
	Close() error
}

// Backend enumerates and opens adapters.
// Open errors must wrap ErrDeviceNotFound or ErrPermissionDenied where they apply.
type Backend interface {
	List(ctx context.Context) ([]AdapterInfo, error)
	Open(ctx context.Context, info AdapterInfo) (Conn, error)
	Close() error
}

// Config holds the manager configuration.
type Config struct {
	// Timeout bounds each bulk transfer
	Timeout time.Duration

	// Logger receives transfer diagnostics
	Logger *slog.Logger
}

func defaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		Logger:  slog.New(slog.DiscardHandler),
	}
}

// Option is a functional option for configuring the Manager.
type Option func(*Config)

// WithTimeout sets the per-transfer timeout for handles opened by the manager.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithLogger sets the logger used by the manager and its handles.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Manager hands out Handles and enforces that each adapter has at most one
// open Handle.
//
// Manager is safe for concurrent use.
type Manager struct {
	backend Backend
	config  Config

	mu   sync.Mutex
	open map[string]*Handle
}

// NewManager creates a manager on top of the given backend.
func NewManager(backend Backend, opts ...Option) *Manager {
	if backend == nil {
		panic("backend cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Manager{
		backend: backend,
		config:  cfg,
		open:    make(map[string]*Handle),
	}
}

// ListAdapters returns the adapters currently attached.
func (m *Manager) ListAdapters(ctx context.Context) ([]AdapterInfo, error) {
	adapters, err := m.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list adapters: %w", err)
	}
	return adapters, nil
}

// Open opens the adapter with the given ID. An empty ID selects the first
// adapter found.
func (m *Manager) Open(ctx context.Context, id string) (*Handle, error) {
	adapters, err := m.ListAdapters(ctx)
	if err != nil {
		return nil, err
	}

	var info *AdapterInfo
	for i := range adapters {
		if id == "" || adapters[i].ID == id {
			info = &adapters[i]
			break
		}
	}
	if info == nil {
		if id == "" {
			return nil, fmt.Errorf("open: %w", ErrDeviceNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", id, ErrDeviceNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.open[info.ID]; busy {
		return nil, fmt.Errorf("open %s: %w", info.ID, ErrAlreadyOpen)
	}

	conn, err := m.backend.Open(ctx, *info)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", info.ID, err)
	}

	h := &Handle{
		conn:    conn,
		info:    *info,
		timeout: m.config.Timeout,
		logger:  m.config.Logger.With("component", "transport", "adapter", info.ID),
	}
	h.release = func() { m.forget(h) }
	m.open[info.ID] = h

	h.logger.Info("adapter opened", "vid", fmt.Sprintf("0x%04X", info.VendorID), "pid", fmt.Sprintf("0x%04X", info.ProductID))
	return h, nil
}

// Close closes every open handle and the backend.
func (m *Manager) Close() error {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.open))
	for _, h := range m.open {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		_ = h.Close()
	}
	return m.backend.Close()
}

func (m *Manager) forget(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open[h.info.ID] == h {
		delete(m.open, h.info.ID)
	}
}
