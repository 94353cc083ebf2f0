// Package sqlite provides a durable event.Store so the audit and undo
// journal survives host restarts. One database file holds all sessions;
// the per-session sequence is assigned inside the append transaction,
// keeping it gap-free under concurrent writers.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aretw0/datum/pkg/event"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS events (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	command_id     TEXT NOT NULL,
	user_id        TEXT NOT NULL DEFAULT '',
	session_id     TEXT NOT NULL,
	seq            INTEGER NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT '',
	timestamp      TEXT NOT NULL,
	type           TEXT NOT NULL,
	payload        TEXT NOT NULL,
	UNIQUE (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_events_command ON events (command_id, seq);
CREATE INDEX IF NOT EXISTS idx_events_session ON events (session_id, seq);
`

// Store is a SQLite-backed event journal. Appends are serialized in
// process: the sequence read and the insert must be one atomic unit,
// and SQLite allows a single writer anyway.
type Store struct {
	mu    sync.Mutex
	db    *sql.DB
	clock func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Open opens (and if needed creates) the journal database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database. Nil-safe so callers can defer it in all
// startup paths.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append assigns the next per-session sequence and records the event.
func (s *Store) Append(ctx context.Context, evt event.Event) (event.Event, error) {
	if evt.SessionID == "" {
		return event.Event{}, fmt.Errorf("append event: session id is required")
	}
	if evt.Payload == nil {
		return event.Event{}, fmt.Errorf("append event: payload is required")
	}
	if evt.Type == "" {
		evt.Type = evt.Payload.EventType()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock().UTC()
	}

	payload, err := event.MarshalPayload(evt.Payload)
	if err != nil {
		return event.Event{}, fmt.Errorf("marshal payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id = ?`, evt.SessionID)
	var last uint64
	if err := row.Scan(&last); err != nil {
		return event.Event{}, fmt.Errorf("read session sequence: %w", err)
	}
	evt.Seq = last + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (command_id, user_id, session_id, seq, correlation_id, timestamp, type, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.CommandID, evt.UserID, evt.SessionID, evt.Seq, evt.CorrelationID,
		evt.Timestamp.Format(time.RFC3339Nano), string(evt.Type), string(payload))
	if err != nil {
		return event.Event{}, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit append: %w", err)
	}
	return evt, nil
}

// BySession returns the session's events in sequence order.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]event.Event, error) {
	return s.query(ctx,
		`SELECT command_id, user_id, session_id, seq, correlation_id, timestamp, type, payload
		 FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
}

// ByCommand returns the command's events in sequence order.
func (s *Store) ByCommand(ctx context.Context, commandID string) ([]event.Event, error) {
	return s.query(ctx,
		`SELECT command_id, user_id, session_id, seq, correlation_id, timestamp, type, payload
		 FROM events WHERE command_id = ? ORDER BY seq`, commandID)
}

func (s *Store) query(ctx context.Context, q string, arg any) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var (
			evt       event.Event
			ts        string
			typeName  string
			payloadJS string
		)
		if err := rows.Scan(&evt.CommandID, &evt.UserID, &evt.SessionID, &evt.Seq,
			&evt.CorrelationID, &ts, &typeName, &payloadJS); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Type = event.Type(typeName)
		if evt.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		if evt.Payload, err = event.UnmarshalPayload(evt.Type, []byte(payloadJS)); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
