package event

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is the append-only journal contract. Implementations guarantee
// monotonic, gap-free per-session sequencing and append-only durability
// for the lifetime of a session.
type Store interface {
	// Append assigns the next session sequence number and records the
	// event. The stored event (with Seq and Timestamp set) is returned.
	Append(ctx context.Context, evt Event) (Event, error)

	// BySession returns all events of a session in sequence order.
	BySession(ctx context.Context, sessionID string) ([]Event, error)

	// ByCommand returns all events of one command execution in sequence
	// order, used by the undo path.
	ByCommand(ctx context.Context, commandID string) ([]Event, error)
}

// MemoryStore is an in-memory Store. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
	seqs   map[string]uint64
	clock  func() time.Time
}

// MemoryOption configures the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// NewMemoryStore creates an empty in-memory journal.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		seqs:  make(map[string]uint64),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append assigns the next per-session sequence and records the event.
func (s *MemoryStore) Append(ctx context.Context, evt Event) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if evt.SessionID == "" {
		return Event{}, fmt.Errorf("append event: session id is required")
	}
	if evt.Payload == nil {
		return Event{}, fmt.Errorf("append event: payload is required")
	}
	if evt.Type == "" {
		evt.Type = evt.Payload.EventType()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seqs[evt.SessionID]++
	evt.Seq = s.seqs[evt.SessionID]
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock().UTC()
	}
	s.events = append(s.events, evt)
	return evt, nil
}

// BySession returns the session's events in append order.
func (s *MemoryStore) BySession(ctx context.Context, sessionID string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, evt := range s.events {
		if evt.SessionID == sessionID {
			out = append(out, evt)
		}
	}
	return out, nil
}

// ByCommand returns the command's events in append order.
func (s *MemoryStore) ByCommand(ctx context.Context, commandID string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, evt := range s.events {
		if evt.CommandID == commandID {
			out = append(out, evt)
		}
	}
	return out, nil
}
