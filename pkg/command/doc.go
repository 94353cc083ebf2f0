// Package command implements the validation and transactional execution
// pipeline for structured commands.
//
// Validation runs three phases in fixed order, short-circuiting at the
// first failure: static (schema only), contextual (document state), and
// semantic (business rules with stable error codes). Execution happens
// inside a single document transaction; any failure rolls back and emits
// a rollback event, so no partial state is ever observable. Undo replays
// the inverse of a command's recorded events inside its own transaction.
package command
