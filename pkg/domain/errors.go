package domain

import "errors"

// ErrElementNotFound is returned when a referenced element does not exist.
var ErrElementNotFound = errors.New("element not found")

// ErrParameterNotFound is returned when a parameter name does not resolve.
var ErrParameterNotFound = errors.New("parameter not found")

// ErrParameterReadOnly is returned on writes to a read-only parameter.
var ErrParameterReadOnly = errors.New("parameter is read-only")

// ErrScriptNotFound is returned when a script name is not registered.
var ErrScriptNotFound = errors.New("script not found")

// ErrNotValidated is returned when execution is requested for a command
// that did not pass validation.
var ErrNotValidated = errors.New("command did not pass validation")

// ErrCommandUnknown is returned when no spec is registered for a command type.
var ErrCommandUnknown = errors.New("unknown command type")

// ErrAborted is returned when a command exceeds its execution budget or
// is cancelled between steps.
var ErrAborted = errors.New("command aborted")
