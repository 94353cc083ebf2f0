// Package bridge implements the JSON protocol between an AI
// orchestrator and the execution engine, and the dispatcher that hands
// inbound work to the single goroutine allowed to touch the host
// document.
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/datum/pkg/domain"
)

// Request type discriminators.
const (
	TypeCommand        = "command"
	TypeScript         = "script"
	TypeSelectionQuery = "selection_query"
)

// Machine-readable error codes on failed responses.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeExecutionFailed  = "EXECUTION_FAILED"
	CodeScriptFailed     = "SCRIPT_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
)

// Request is the inbound protocol envelope. Correlation is carried in
// either "id" or "commandId"; both spellings are accepted because
// producers historically disagreed, and a mismatch here shows up as a
// false timeout on the orchestrator side.
type Request struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	CommandID string `json:"commandId,omitempty"`

	// Command payload.
	CommandType string         `json:"commandType,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`

	// Script payload.
	ScriptName string             `json:"scriptName,omitempty"`
	Source     string             `json:"source,omitempty"`
	Targets    []domain.ElementID `json:"targets,omitempty"`

	// Selection query payload.
	Category string `json:"category,omitempty"`
	TypeName string `json:"typeName,omitempty"`
}

// CorrelationID returns the request's correlation key, whichever field
// carried it.
func (r Request) CorrelationID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.CommandID
}

// Validate checks the envelope before dispatch.
func (r Request) Validate() error {
	switch r.Type {
	case TypeCommand:
		if r.CommandType == "" {
			return fmt.Errorf("command request requires commandType")
		}
	case TypeScript:
		if r.ScriptName == "" {
			return fmt.Errorf("script request requires scriptName")
		}
	case TypeSelectionQuery:
		// All fields optional: an empty query returns the selection.
	default:
		return fmt.Errorf("unknown request type %q", r.Type)
	}
	if r.CorrelationID() == "" {
		return fmt.Errorf("request requires a correlation id")
	}
	return nil
}

// Response is the outbound envelope. The correlation key is echoed in
// both spellings so any consumer finds it under the field it expects.
type Response struct {
	ID        string `json:"id,omitempty"`
	CommandID string `json:"commandId,omitempty"`

	Success    bool           `json:"success"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	ScriptType string         `json:"scriptType,omitempty"`
	ErrorCode  string         `json:"errorCode,omitempty"`
}

// ParseRequest decodes a protocol message.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func respond(req Request) Response {
	return Response{ID: req.CorrelationID(), CommandID: req.CorrelationID()}
}

func failure(req Request, code, message string) Response {
	resp := respond(req)
	resp.Message = message
	resp.ErrorCode = code
	return resp
}
