// Package journal stores session events in a SQLite database.
//
// A Journal implements programmer.EventSink. Events are buffered and
// written in batches; the buffer is also flushed when the process exits
// through atexit.
//
//	j, err := journal.Open("ch341prog.sqlite3")
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
//	sess := programmer.New(handle, programmer.WithEventSink(j))
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/moffa90/go-ch341prog/programmer"
)

const schema = `CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	time       INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	op         TEXT,
	state      TEXT,
	message    TEXT,
	done       INTEGER,
	total      INTEGER,
	err        TEXT
);
CREATE INDEX IF NOT EXISTS events_session ON events (session_id);`

const insertSQL = `INSERT INTO events
	(session_id, time, kind, op, state, message, done, total, err)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type options struct {
	batchSize int
	logger    *slog.Logger
}

// Option is a functional option for Open.
type Option func(*options)

// WithBatchSize sets how many events are buffered before a write.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithLogger sets the logger for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Journal is a SQLite-backed event store.
//
// Journal is safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	db      *sql.DB
	path    string
	opts    options
	pending []programmer.Event
	closed  bool
}

// DefaultPath returns a fresh database file name.
func DefaultPath() string {
	return "ch341prog_journal_" + xid.New().String() + ".sqlite3"
}

// Open opens or creates the database at path. An empty path uses
// DefaultPath.
func Open(path string, opts ...Option) (*Journal, error) {
	o := options{
		batchSize: 64,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if path == "" {
		path = DefaultPath()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	j := &Journal{db: db, path: path, opts: o}
	atexit.Register(func() {
		if err := j.Close(); err != nil {
			o.logger.Error("journal close failed", "path", path, "error", err)
		}
	})
	return j, nil
}

// Path returns the database file name.
func (j *Journal) Path() string {
	return j.path
}

// Record buffers an event. Events recorded after Close are dropped.
func (j *Journal) Record(e programmer.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return
	}
	j.pending = append(j.pending, e)
	if len(j.pending) >= j.opts.batchSize {
		if err := j.flushLocked(); err != nil {
			j.opts.logger.Error("journal write failed", "path", j.path, "error", err)
		}
	}
}

// Flush writes the buffered events.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	if len(j.pending) == 0 || j.closed {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range j.pending {
		_, err := stmt.Exec(e.SessionID, e.Time.UnixNano(), string(e.Kind), string(e.Op),
			e.State.String(), e.Message, e.Done, e.Total, e.Err)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	j.pending = j.pending[:0]
	return nil
}

// Close flushes the buffer and closes the database. It is safe to call
// more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	err := j.flushLocked()
	j.closed = true
	if cerr := j.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// Entry is a stored event.
type Entry struct {
	SessionID string
	Time      time.Time
	Kind      programmer.EventKind
	Op        programmer.Operation
	State     string
	Message   string
	Done      int
	Total     int
	Err       string
}

// Entries returns the stored events of one session in recording order.
// An empty sessionID returns every event.
func (j *Journal) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}

	query := `SELECT session_id, time, kind, op, state, message, done, total, err FROM events`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			ns   int64
			kind string
			op   string
		)
		if err := rows.Scan(&e.SessionID, &ns, &kind, &op, &e.State, &e.Message, &e.Done, &e.Total, &e.Err); err != nil {
			return nil, err
		}
		e.Time = time.Unix(0, ns)
		e.Kind = programmer.EventKind(kind)
		e.Op = programmer.Operation(op)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions returns the distinct session IDs in the order they first
// appeared.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id FROM events GROUP BY session_id ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
