package event

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/datum/pkg/domain"
)

// Payload is the tagged variant carried by an event. Undo handlers
// pattern-match on the concrete type to derive the inverse action.
type Payload interface {
	EventType() Type
}

// ElementCreated records a newly created element with enough detail to
// delete it again on undo.
type ElementCreated struct {
	ElementID domain.ElementID `json:"element_id"`
	Category  string           `json:"category"`
	TypeName  string           `json:"type_name"`
	Name      string           `json:"name,omitempty"`
}

func (ElementCreated) EventType() Type { return TypeElementCreated }

// ElementModified records a parameter change with the previous value so
// undo can restore it.
type ElementModified struct {
	ElementID domain.ElementID `json:"element_id"`
	Parameter string           `json:"parameter"`
	OldValue  any              `json:"old_value"`
	NewValue  any              `json:"new_value"`
}

func (ElementModified) EventType() Type { return TypeElementModified }

// ElementDeleted records a removed element with enough detail to
// recreate it on undo (best effort).
type ElementDeleted struct {
	ElementID domain.ElementID `json:"element_id"`
	Category  string           `json:"category,omitempty"`
	TypeName  string           `json:"type_name,omitempty"`
	Name      string           `json:"name,omitempty"`
}

func (ElementDeleted) EventType() Type { return TypeElementDeleted }

// TransactionStarted marks the beginning of a command's transaction.
type TransactionStarted struct {
	Name string `json:"name"`
}

func (TransactionStarted) EventType() Type { return TypeTransactionStarted }

// TransactionCommitted marks a successful commit and the number of
// elements the command affected.
type TransactionCommitted struct {
	Name             string `json:"name"`
	ElementsAffected int    `json:"elements_affected"`
}

func (TransactionCommitted) EventType() Type { return TypeTransactionCommitted }

// TransactionRolledBack marks a rollback and carries the failure reason.
type TransactionRolledBack struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (TransactionRolledBack) EventType() Type { return TypeTransactionRolledBack }

// MarshalPayload encodes a payload as JSON for durable storage.
func MarshalPayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPayload decodes a stored payload by event type.
func UnmarshalPayload(t Type, data []byte) (Payload, error) {
	var p Payload
	switch t {
	case TypeElementCreated:
		var v ElementCreated
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeElementModified:
		var v ElementModified
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeElementDeleted:
		var v ElementDeleted
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeTransactionStarted:
		var v TransactionStarted
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeTransactionCommitted:
		var v TransactionCommitted
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeTransactionRolledBack:
		var v TransactionRolledBack
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	return p, nil
}
