package ports

import (
	"context"
	"fmt"

	"github.com/aretw0/datum/pkg/domain"
)

// HostDocument is the capability surface the host application exposes to
// the engine. All document mutation flows through this interface and is
// only valid inside a transaction opened via Begin.
//
// The host mutates its document from exactly one execution context at a
// time; callers are responsible for funneling calls onto that context
// (see the bridge dispatcher).
type HostDocument interface {
	// SelectedElements returns the host's current user selection.
	SelectedElements(ctx context.Context) ([]domain.ElementRef, error)

	// ElementsByCategory returns all elements in a category.
	ElementsByCategory(ctx context.Context, category string) ([]domain.ElementRef, error)

	// ElementsByType returns all elements of a named type.
	ElementsByType(ctx context.Context, typeName string) ([]domain.ElementRef, error)

	// Element resolves an element ID to its reference.
	// Returns domain.ErrElementNotFound for unknown IDs.
	Element(ctx context.Context, id domain.ElementID) (domain.ElementRef, error)

	// KnownTypes returns the type catalog for a category.
	KnownTypes(ctx context.Context, category string) ([]string, error)

	// ElementParameters returns the parameters of an element.
	// Returns domain.ErrElementNotFound for unknown IDs.
	ElementParameters(ctx context.Context, id domain.ElementID) ([]domain.Parameter, error)

	// SetElementParameter writes a parameter value. Returns
	// domain.ErrParameterReadOnly or domain.ErrParameterNotFound when the
	// write is not possible.
	SetElementParameter(ctx context.Context, id domain.ElementID, name string, value any) error

	// CreateInstance creates a new element and returns its ID.
	CreateInstance(ctx context.Context, spec domain.InstanceSpec) (domain.ElementID, error)

	// DeleteElement removes an element from the document.
	DeleteElement(ctx context.Context, id domain.ElementID) error

	// ShowMessage displays a message to the host's user.
	ShowMessage(ctx context.Context, title, body string) error

	// Begin opens a named document transaction. A transaction must be
	// resolved by exactly one Commit or Rollback.
	Begin(ctx context.Context, name string) (Transaction, error)

	// Snapshot returns a deterministic byte representation of the
	// document state, used to verify rollback atomicity.
	Snapshot(ctx context.Context) ([]byte, error)
}

// Transaction represents one atomic unit of document mutation.
type Transaction interface {
	Commit() error
	Rollback() error
}

// Transact runs fn inside a transaction, committing on success and
// rolling back on error.
func Transact(ctx context.Context, doc HostDocument, name string, fn func(ctx context.Context) error) error {
	tx, err := doc.Begin(ctx, name)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}
