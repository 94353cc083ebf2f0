package command

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/event"
	"github.com/aretw0/datum/pkg/ports"
	"github.com/aretw0/datum/pkg/schema"
)

// Stable semantic error codes for wall creation.
const (
	CodeHeightStandard = "FLC_HEIGHT_STANDARD"
	CodeLengthMax      = "FLC_LENGTH_MAX"
)

const wallCategory = "Walls"

// CreateWall creates a straight wall between two points.
type CreateWall struct {
	// StandardHeights is the organization's allowed wall heights in feet.
	StandardHeights []float64
	// MaxLength is the longest permitted wall in feet.
	MaxLength float64
}

// NewCreateWall returns the spec with the default standards:
// heights 8/9/10/12 ft, maximum length 40 ft.
func NewCreateWall() *CreateWall {
	return &CreateWall{
		StandardHeights: []float64{8, 9, 10, 12},
		MaxLength:       40,
	}
}

type wallParams struct {
	Start    domain.Point3D `mapstructure:"start"`
	End      domain.Point3D `mapstructure:"end"`
	Height   float64        `mapstructure:"height"`
	WallType string         `mapstructure:"wall_type"`
}

func (p wallParams) length() float64 { return p.Start.DistanceTo(p.End) }

func (c *CreateWall) Name() string { return "create_wall" }

func (c *CreateWall) Schema() schema.Schema {
	return schema.Schema{
		"start":     schema.Point(),
		"end":       schema.Point(),
		"height":    schema.Float(),
		"wall_type": schema.String(),
	}
}

func (c *CreateWall) ValidateContextual(ctx context.Context, doc ports.HostDocument, params map[string]any) []domain.ValidationError {
	var p wallParams
	if err := decodeParams(params, &p); err != nil {
		return []domain.ValidationError{{Property: "parameters", Message: err.Error()}}
	}

	var errs []domain.ValidationError
	if p.length() == 0 {
		errs = append(errs, domain.ValidationError{
			Property: "end",
			Message:  "start and end points coincide (degenerate wall)",
		})
	}

	types, err := doc.KnownTypes(ctx, wallCategory)
	if err != nil {
		errs = append(errs, domain.ValidationError{
			Property: "wall_type",
			Message:  fmt.Sprintf("cannot read wall type catalog: %v", err),
		})
	} else if !slices.Contains(types, p.WallType) {
		errs = append(errs, domain.ValidationError{
			Property: "wall_type",
			Message:  fmt.Sprintf("wall type %q is not in the document catalog", p.WallType),
		})
	}
	return errs
}

func (c *CreateWall) ValidateSemantic(ctx context.Context, params map[string]any) []domain.ValidationError {
	var p wallParams
	if err := decodeParams(params, &p); err != nil {
		return []domain.ValidationError{{Property: "parameters", Message: err.Error()}}
	}

	var errs []domain.ValidationError
	if !slices.Contains(c.StandardHeights, p.Height) {
		errs = append(errs, domain.ValidationError{
			Property: "height",
			Message:  fmt.Sprintf("height %g ft is not a standard height %v", p.Height, c.StandardHeights),
			Code:     CodeHeightStandard,
		})
	}
	if p.length() > c.MaxLength {
		errs = append(errs, domain.ValidationError{
			Property: "end",
			Message:  fmt.Sprintf("wall length %.2f ft exceeds maximum %g ft", p.length(), c.MaxLength),
			Code:     CodeLengthMax,
		})
	}
	return errs
}

func (c *CreateWall) Preview(ctx context.Context, doc ports.HostDocument, params map[string]any) (domain.CommandResult, error) {
	var p wallParams
	if err := decodeParams(params, &p); err != nil {
		return domain.CommandResult{}, err
	}
	return domain.CommandResult{
		Success:          true,
		Message:          fmt.Sprintf("would create one %s wall, %.2f ft long, %g ft high", p.WallType, p.length(), p.Height),
		ElementsAffected: 1,
		Data: map[string]any{
			"length_ft": p.length(),
			"height_ft": p.Height,
			"wall_type": p.WallType,
		},
	}, nil
}

func (c *CreateWall) Execute(ctx context.Context, ex *Execution) (int, error) {
	var p wallParams
	if err := decodeParams(ex.Params, &p); err != nil {
		return 0, err
	}
	if err := ex.Checkpoint(ctx); err != nil {
		return 0, err
	}

	id, err := ex.Doc.CreateInstance(ctx, domain.InstanceSpec{
		Category: wallCategory,
		TypeName: p.WallType,
		Location: p.Start,
		Parameters: map[string]any{
			"Height": p.Height,
			"Length": p.length(),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("create wall: %w", err)
	}

	if err := ex.Emit(ctx, event.ElementCreated{
		ElementID: id,
		Category:  wallCategory,
		TypeName:  p.WallType,
	}); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c *CreateWall) Undo(ctx context.Context, ex *Execution, evt event.Event) error {
	created, ok := evt.Payload.(event.ElementCreated)
	if !ok {
		return nil
	}
	if err := ex.Doc.DeleteElement(ctx, created.ElementID); err != nil {
		return fmt.Errorf("delete wall %s: %w", created.ElementID, err)
	}
	return ex.Emit(ctx, event.ElementDeleted{
		ElementID: created.ElementID,
		Category:  created.Category,
		TypeName:  created.TypeName,
	})
}
