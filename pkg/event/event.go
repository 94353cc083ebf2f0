// Package event defines the domain events emitted while commands mutate
// the host document, and the append-only store used as the audit and
// undo substrate.
package event

import (
	"time"

	"github.com/aretw0/datum/pkg/domain"
)

// Type identifies the kind of a domain event.
type Type string

const (
	// TypeElementCreated records the creation of an element.
	TypeElementCreated Type = "element.created"
	// TypeElementModified records a parameter change on an element.
	TypeElementModified Type = "element.modified"
	// TypeElementDeleted records the deletion of an element.
	TypeElementDeleted Type = "element.deleted"
	// TypeTransactionStarted records the start of a document transaction.
	TypeTransactionStarted Type = "transaction.started"
	// TypeTransactionCommitted records a successful commit.
	TypeTransactionCommitted Type = "transaction.committed"
	// TypeTransactionRolledBack records a rollback after a failure.
	TypeTransactionRolledBack Type = "transaction.rolled_back"
)

// Event is an immutable record in the per-session journal.
type Event struct {
	// CommandID correlates all events of one command execution.
	CommandID string
	// UserID identifies who triggered the command.
	UserID string
	// SessionID groups events into sessions.
	SessionID string
	// Seq is the event sequence number within the session (starts at 1).
	// Assigned by the store on append; strictly increasing and gap-free.
	Seq uint64
	// CorrelationID tracks the bridge request that triggered the event.
	CorrelationID string
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// Payload holds the event-specific data as a tagged variant.
	Payload Payload
}

// ElementID returns the element the event touches, or "" for
// transaction markers.
func (e Event) ElementID() domain.ElementID {
	switch p := e.Payload.(type) {
	case ElementCreated:
		return p.ElementID
	case ElementModified:
		return p.ElementID
	case ElementDeleted:
		return p.ElementID
	default:
		return ""
	}
}
