// Package schema provides field-type validation for command parameters.
// It covers the static validation phase only: no document access, just
// presence and type checks against a declared schema.
package schema

// Schema is a map of parameter names to their expected types.
// Example: {"height": Float(), "wall_type": String()}
type Schema map[string]Type

// Optional marks a field that may be absent. Present values are still
// type-checked.
type Optional struct {
	Type
}

// Validate checks if data conforms to the schema.
// Returns an error aggregating all failures found.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		// No schema = no validation
		return nil
	}

	var errs []*FieldError

	for fieldName, fieldType := range schema {
		value, exists := data[fieldName]
		if !exists {
			if _, optional := fieldType.(Optional); optional {
				continue
			}
			errs = append(errs, &FieldError{
				Key:    fieldName,
				Reason: "required",
			})
			continue
		}

		if err := fieldType.Validate(value); err != nil {
			errs = append(errs, &FieldError{
				Key:    fieldName,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}

	return nil
}
