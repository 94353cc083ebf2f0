package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/event"
	"github.com/aretw0/datum/pkg/ports"
	"github.com/aretw0/datum/pkg/schema"
)

// SetParameter writes one parameter value on an existing element.
type SetParameter struct{}

// NewSetParameter creates the set_parameter command spec.
func NewSetParameter() *SetParameter {
	return &SetParameter{}
}

type setParameterParams struct {
	ElementID string `mapstructure:"element_id"`
	ParamName string `mapstructure:"name"`
	Value     any    `mapstructure:"value"`
}

func (s *SetParameter) Name() string { return "set_parameter" }

func (s *SetParameter) Schema() schema.Schema {
	return schema.Schema{
		"element_id": schema.String(),
		"name":       schema.String(),
		"value": schema.Custom("any", func(v any) error {
			if v == nil {
				return errors.New("value must not be null")
			}
			return nil
		}),
	}
}

func (s *SetParameter) ValidateContextual(ctx context.Context, doc ports.HostDocument, params map[string]any) []domain.ValidationError {
	var p setParameterParams
	if err := decodeParams(params, &p); err != nil {
		return []domain.ValidationError{{Property: "parameters", Message: err.Error()}}
	}

	current, err := doc.ElementParameters(ctx, domain.ElementID(p.ElementID))
	if err != nil {
		return []domain.ValidationError{{
			Property: "element_id",
			Message:  fmt.Sprintf("element %s: %v", p.ElementID, err),
		}}
	}

	for _, param := range current {
		if param.Name != p.ParamName {
			continue
		}
		if param.ReadOnly {
			return []domain.ValidationError{{
				Property: "name",
				Message:  fmt.Sprintf("parameter %q is read-only", p.ParamName),
			}}
		}
		return nil
	}
	return []domain.ValidationError{{
		Property: "name",
		Message:  fmt.Sprintf("element %s has no parameter %q", p.ElementID, p.ParamName),
	}}
}

func (s *SetParameter) ValidateSemantic(ctx context.Context, params map[string]any) []domain.ValidationError {
	return nil
}

func (s *SetParameter) Preview(ctx context.Context, doc ports.HostDocument, params map[string]any) (domain.CommandResult, error) {
	var p setParameterParams
	if err := decodeParams(params, &p); err != nil {
		return domain.CommandResult{}, err
	}
	old, _ := currentValue(ctx, doc, domain.ElementID(p.ElementID), p.ParamName)
	return domain.CommandResult{
		Success:          true,
		Message:          fmt.Sprintf("would set %q on %s", p.ParamName, p.ElementID),
		ElementsAffected: 1,
		Data:             map[string]any{"old_value": old, "new_value": p.Value},
	}, nil
}

func (s *SetParameter) Execute(ctx context.Context, ex *Execution) (int, error) {
	var p setParameterParams
	if err := decodeParams(ex.Params, &p); err != nil {
		return 0, err
	}
	if err := ex.Checkpoint(ctx); err != nil {
		return 0, err
	}

	id := domain.ElementID(p.ElementID)
	old, err := currentValue(ctx, ex.Doc, id, p.ParamName)
	if err != nil {
		return 0, err
	}
	if err := ex.Doc.SetElementParameter(ctx, id, p.ParamName, p.Value); err != nil {
		return 0, fmt.Errorf("set %q on %s: %w", p.ParamName, p.ElementID, err)
	}

	if err := ex.Emit(ctx, event.ElementModified{
		ElementID: id,
		Parameter: p.ParamName,
		OldValue:  old,
		NewValue:  p.Value,
	}); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *SetParameter) Undo(ctx context.Context, ex *Execution, evt event.Event) error {
	modified, ok := evt.Payload.(event.ElementModified)
	if !ok {
		return nil
	}
	if err := ex.Doc.SetElementParameter(ctx, modified.ElementID, modified.Parameter, modified.OldValue); err != nil {
		return fmt.Errorf("restore %q on %s: %w", modified.Parameter, modified.ElementID, err)
	}
	return ex.Emit(ctx, event.ElementModified{
		ElementID: modified.ElementID,
		Parameter: modified.Parameter,
		OldValue:  modified.NewValue,
		NewValue:  modified.OldValue,
	})
}

func currentValue(ctx context.Context, doc ports.HostDocument, id domain.ElementID, name string) (any, error) {
	params, err := doc.ElementParameters(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("element %s: %w", id, err)
	}
	for _, p := range params {
		if p.Name == name {
			return p.Value, nil
		}
	}
	return nil, fmt.Errorf("element %s: %q: %w", id, name, domain.ErrParameterNotFound)
}
