package command

import (
	"context"
	"fmt"

	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/event"
	"github.com/aretw0/datum/pkg/ports"
	"github.com/aretw0/datum/pkg/schema"
)

// DeleteElement removes an element from the document. Undo recreates it
// best-effort from the recorded reference.
type DeleteElement struct{}

// NewDeleteElement creates the delete_element command spec.
func NewDeleteElement() *DeleteElement {
	return &DeleteElement{}
}

type deleteParams struct {
	ElementID string `mapstructure:"element_id"`
}

func (d *DeleteElement) Name() string { return "delete_element" }

func (d *DeleteElement) Schema() schema.Schema {
	return schema.Schema{
		"element_id": schema.String(),
	}
}

func (d *DeleteElement) ValidateContextual(ctx context.Context, doc ports.HostDocument, params map[string]any) []domain.ValidationError {
	var p deleteParams
	if err := decodeParams(params, &p); err != nil {
		return []domain.ValidationError{{Property: "parameters", Message: err.Error()}}
	}
	if _, err := doc.Element(ctx, domain.ElementID(p.ElementID)); err != nil {
		return []domain.ValidationError{{
			Property: "element_id",
			Message:  fmt.Sprintf("element %s: %v", p.ElementID, err),
		}}
	}
	return nil
}

func (d *DeleteElement) ValidateSemantic(ctx context.Context, params map[string]any) []domain.ValidationError {
	return nil
}

func (d *DeleteElement) Preview(ctx context.Context, doc ports.HostDocument, params map[string]any) (domain.CommandResult, error) {
	var p deleteParams
	if err := decodeParams(params, &p); err != nil {
		return domain.CommandResult{}, err
	}
	ref, err := doc.Element(ctx, domain.ElementID(p.ElementID))
	if err != nil {
		return domain.CommandResult{}, err
	}
	return domain.CommandResult{
		Success:          true,
		Message:          fmt.Sprintf("would delete %s element %s", ref.Category, ref.ID),
		ElementsAffected: 1,
	}, nil
}

func (d *DeleteElement) Execute(ctx context.Context, ex *Execution) (int, error) {
	var p deleteParams
	if err := decodeParams(ex.Params, &p); err != nil {
		return 0, err
	}
	if err := ex.Checkpoint(ctx); err != nil {
		return 0, err
	}

	id := domain.ElementID(p.ElementID)
	ref, err := ex.Doc.Element(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("element %s: %w", id, err)
	}
	if err := ex.Doc.DeleteElement(ctx, id); err != nil {
		return 0, fmt.Errorf("delete %s: %w", id, err)
	}

	if err := ex.Emit(ctx, event.ElementDeleted{
		ElementID: ref.ID,
		Category:  ref.Category,
		TypeName:  ref.TypeName,
		Name:      ref.Name,
	}); err != nil {
		return 0, err
	}
	return 1, nil
}

func (d *DeleteElement) Undo(ctx context.Context, ex *Execution, evt event.Event) error {
	deleted, ok := evt.Payload.(event.ElementDeleted)
	if !ok {
		return nil
	}
	id, err := ex.Doc.CreateInstance(ctx, domain.InstanceSpec{
		Category: deleted.Category,
		TypeName: deleted.TypeName,
		Name:     deleted.Name,
	})
	if err != nil {
		return fmt.Errorf("recreate %s: %w", deleted.ElementID, err)
	}
	return ex.Emit(ctx, event.ElementCreated{
		ElementID: id,
		Category:  deleted.Category,
		TypeName:  deleted.TypeName,
		Name:      deleted.Name,
	})
}
