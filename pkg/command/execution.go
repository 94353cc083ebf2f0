package command

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/event"
	"github.com/aretw0/datum/pkg/ports"
)

// Execution carries the per-command state a Spec needs while executing
// or undoing: the document, decoded parameters, and the event emitter.
type Execution struct {
	// Doc is the host document. All mutation happens inside the
	// transaction the framework opened before calling the spec.
	Doc ports.HostDocument

	// Params is the raw parameter map of the command being executed.
	Params map[string]any

	// CommandID correlates the events of this execution.
	CommandID string

	session  Session
	store    event.Store
	clock    func() time.Time
	deadline time.Time
}

// Emit appends a domain event stamped with the execution's identity.
func (ex *Execution) Emit(ctx context.Context, payload event.Payload) error {
	_, err := ex.store.Append(ctx, event.Event{
		CommandID:     ex.CommandID,
		UserID:        ex.session.UserID,
		SessionID:     ex.session.SessionID,
		CorrelationID: ex.session.CorrelationID,
		Timestamp:     ex.clock().UTC(),
		Type:          payload.EventType(),
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("emit %s: %w", payload.EventType(), err)
	}
	return nil
}

// Checkpoint is the cooperative cancellation point. Specs call it
// between discrete steps; it never preempts an in-flight host call.
func (ex *Execution) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAborted, err)
	}
	if !ex.deadline.IsZero() && ex.clock().After(ex.deadline) {
		return fmt.Errorf("%w: exceeded max execution time", domain.ErrAborted)
	}
	return nil
}
