package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Passes(t *testing.T) {
	s := Schema{
		"height":    Float(),
		"wall_type": String(),
		"start":     Point(),
	}
	err := Validate(s, map[string]any{
		"height":    9.0,
		"wall_type": "Generic - 8\"",
		"start":     map[string]any{"x": 0.0, "y": 0.0, "z": 0.0},
	})
	assert.NoError(t, err)
}

func TestValidate_MissingAndWrongType(t *testing.T) {
	s := Schema{
		"height":    Float(),
		"wall_type": String(),
	}
	err := Validate(s, map[string]any{
		"height": "nine",
	})
	require.Error(t, err)

	fieldErrs := FieldErrors(err)
	require.Len(t, fieldErrs, 2)

	keys := []string{fieldErrs[0].Key, fieldErrs[1].Key}
	assert.Contains(t, keys, "height")
	assert.Contains(t, keys, "wall_type")
}

func TestValidate_Optional(t *testing.T) {
	s := Schema{
		"name": Optional{String()},
	}
	assert.NoError(t, Validate(s, map[string]any{}))
	assert.Error(t, Validate(s, map[string]any{"name": 7}))
}

func TestEnum(t *testing.T) {
	e := Enum("a", "b")
	assert.NoError(t, e.Validate("a"))
	assert.Error(t, e.Validate("c"))
	assert.Error(t, e.Validate(3))
}

func TestValidate_EmptySchemaSkips(t *testing.T) {
	assert.NoError(t, Validate(nil, map[string]any{"anything": 1}))
}
