package schema

import (
	"fmt"

	"github.com/aretw0/datum/pkg/domain"
)

// Type defines the contract for parameter validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

// FloatType validates numeric values via checked conversion.
type FloatType struct{}

func (t *FloatType) Name() string { return "float" }

func (t *FloatType) Validate(value any) error {
	_, err := domain.AsFloat(value)
	return err
}

// IntType validates whole-number values.
type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	_, err := domain.AsInt(value)
	return err
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

// PointType validates 3D point values (map with x/y/z or 3-element slice).
type PointType struct{}

func (t *PointType) Name() string { return "point" }

func (t *PointType) Validate(value any) error {
	_, err := domain.AsPoint(value)
	return err
}

// EnumType validates that a string value is one of a fixed set.
type EnumType struct {
	values []string
}

func (t *EnumType) Name() string { return "enum" }

func (t *EnumType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	for _, v := range t.values {
		if v == s {
			return nil
		}
	}
	return fmt.Errorf("value %q not in %v", s, t.values)
}

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error {
	return t.validate(value)
}

// --- Factory Functions ---

// String creates a string type validator.
func String() Type { return &StringType{} }

// Float creates a float type validator.
func Float() Type { return &FloatType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Point creates a 3D point validator.
func Point() Type { return &PointType{} }

// Enum creates a validator accepting one of the given string values.
func Enum(values ...string) Type { return &EnumType{values: values} }

// Custom creates a validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return &CustomType{name: name, validate: validate}
}
