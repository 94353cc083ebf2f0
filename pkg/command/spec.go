package command

import (
	"context"

	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/event"
	"github.com/aretw0/datum/pkg/ports"
	"github.com/aretw0/datum/pkg/schema"
)

// Spec defines one command type: its static schema, its contextual and
// semantic checks, and its execute/undo behavior. Specs are registered
// on a Framework and looked up by Name.
type Spec interface {
	// Name is the command type discriminator (e.g. "create_wall").
	Name() string

	// Schema declares the static parameter contract (phase 1).
	Schema() schema.Schema

	// ValidateContextual checks parameters against current document state
	// (phase 2). Runs only when the static phase passed.
	ValidateContextual(ctx context.Context, doc ports.HostDocument, params map[string]any) []domain.ValidationError

	// ValidateSemantic checks domain/business rules (phase 3). Each
	// violation carries a stable Code. Runs only when earlier phases passed.
	ValidateSemantic(ctx context.Context, params map[string]any) []domain.ValidationError

	// Preview reports the command's would-be effects without mutating the
	// document. It may read document state.
	Preview(ctx context.Context, doc ports.HostDocument, params map[string]any) (domain.CommandResult, error)

	// Execute performs the mutation inside the framework's transaction,
	// emitting a domain event per mutation via the Execution. Returns the
	// number of elements affected.
	Execute(ctx context.Context, ex *Execution) (int, error)

	// Undo applies the inverse of one previously emitted event. Called in
	// reverse event order inside the undo transaction. Events a command
	// cannot invert are skipped by returning nil.
	Undo(ctx context.Context, ex *Execution, evt event.Event) error
}

// Session identifies who is driving the engine; its fields are stamped
// onto every emitted event.
type Session struct {
	SessionID     string
	UserID        string
	CorrelationID string
}
