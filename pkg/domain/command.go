package domain

import "time"

// Command is a structured, typed request to mutate the host document.
// It is owned by the framework for the duration of one request and must
// not be mutated once validation has started.
type Command struct {
	// Type discriminates which registered command spec handles this request.
	Type string `json:"type" mapstructure:"type"`

	// Parameters carries the raw key/value payload. Values arrive as
	// decoded JSON (string, float64, bool, map, slice); commands convert
	// them explicitly via the As* helpers or a typed decode.
	Parameters map[string]any `json:"parameters" mapstructure:"parameters"`

	// EstimatedBudget is the unit-of-work cost the caller expects.
	EstimatedBudget int `json:"estimated_budget,omitempty" mapstructure:"estimated_budget"`

	// MaxExecutionTime bounds execution; zero means no bound.
	MaxExecutionTime time.Duration `json:"max_execution_time,omitempty" mapstructure:"max_execution_time"`
}

// CommandResult is the structured outcome of a preview, execute, or undo.
type CommandResult struct {
	Success          bool           `json:"success"`
	Message          string         `json:"message"`
	ElementsAffected int            `json:"elements_affected"`
	Data             map[string]any `json:"data,omitempty"`
	ExecutionTime    time.Duration  `json:"execution_time"`

	// Err holds the underlying failure, if any. It is kept out of the
	// JSON surface; Message carries the human-readable form.
	Err error `json:"-"`
}

// Failure builds a failed result with the given message and cause.
func Failure(message string, err error) CommandResult {
	return CommandResult{Success: false, Message: message, Err: err}
}
