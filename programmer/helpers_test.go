package programmer_test

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/moffa90/go-ch341prog/programmer"
	"github.com/moffa90/go-ch341prog/transport"
	"github.com/moffa90/go-ch341prog/transport/transporttest"
)

// MockLogger records log messages for testing
type MockLogger struct {
	mu       sync.Mutex
	debugMsg []string
	infoMsg  []string
	errorMsg []string
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsg = append(m.debugMsg, fmt.Sprint(msg, keysAndValues))
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsg = append(m.infoMsg, msg)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsg = append(m.errorMsg, msg)
}

func (m *MockLogger) Infos() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.infoMsg...)
}

func (m *MockLogger) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errorMsg...)
}

// eventLog collects session events.
type eventLog struct {
	mu     sync.Mutex
	events []programmer.Event
}

func (l *eventLog) Record(e programmer.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func (l *eventLog) Kind(kind programmer.EventKind) []programmer.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []programmer.Event
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) States() []programmer.State {
	var out []programmer.State
	for _, e := range l.Kind(programmer.EventState) {
		out = append(out, e.State)
	}
	return out
}

// openHandle attaches chips to a simulated bridge and opens it.
func openHandle(chips ...*transporttest.Chip) (*transport.Handle, *transporttest.Bridge) {
	bridge := transporttest.NewBridge(chips...)
	mgr := transport.NewManager(bridge)
	DeferCleanup(mgr.Close)

	h, err := mgr.Open(context.Background(), "")
	Expect(err).NotTo(HaveOccurred())
	return h, bridge
}

// testOptions removes the settle delays the real hardware needs.
func testOptions(opts ...programmer.Option) []programmer.Option {
	return append([]programmer.Option{
		programmer.WithScanAttempts(1, 0),
		programmer.WithSpeedSettle(0),
	}, opts...)
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}
