package domain

// Phase identifies a validation phase. Phases run in a fixed order and
// validation short-circuits at the first failing phase.
type Phase string

const (
	// PhaseNone means no phase failed.
	PhaseNone Phase = "none"
	// PhaseStatic covers schema/type/presence checks on parameters only.
	PhaseStatic Phase = "static"
	// PhaseContextual covers checks against current document state.
	PhaseContextual Phase = "contextual"
	// PhaseSemantic covers domain/business-rule checks.
	PhaseSemantic Phase = "semantic"
)

// ValidationError is a single phase-tagged validation failure.
// Semantic errors carry a stable Code for programmatic handling.
type ValidationError struct {
	Phase    Phase  `json:"phase"`
	Property string `json:"property"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
}

// ValidationResult is produced fresh per validation call and never
// mutated afterward.
type ValidationResult struct {
	IsValid     bool              `json:"is_valid"`
	FailedPhase Phase             `json:"failed_phase"`
	Errors      []ValidationError `json:"errors,omitempty"`
}

// Valid returns a passing result.
func Valid() ValidationResult {
	return ValidationResult{IsValid: true, FailedPhase: PhaseNone}
}

// Invalid returns a failing result for the given phase.
func Invalid(phase Phase, errs []ValidationError) ValidationResult {
	return ValidationResult{IsValid: false, FailedPhase: phase, Errors: errs}
}
