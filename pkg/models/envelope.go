// Package models defines the shared data types that flow between graph
// nodes, workers, and stores. Types here are plain structs with JSON tags;
// behavior lives in the owning packages.
package models

import (
	"encoding/json"
	"fmt"
)

// Error codes shared with the remote tool registry.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
	ErrCodeAPIKeyMissing = "API_KEY_MISSING"
	ErrCodePermission    = "PERMISSION_DENIED"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeMissingParams = "MISSING_PARAMETERS"
	ErrCodeIncomplete    = "WORKER_INCOMPLETE"
)

// ErrorEnvelope is the typed error representation used inside result slots.
// Errors never cross the scheduler boundary as Go errors — they are carried
// as envelopes so downstream nodes (feedback, responder) can still act.
type ErrorEnvelope struct {
	Error           bool   `json:"error"`
	ErrorCode       string `json:"error_code"`
	ErrorMessage    string `json:"error_message"`
	Suggestion      string `json:"suggestion,omitempty"`
	APIErrorDetails any    `json:"api_error_details,omitempty"`
}

// NewErrorEnvelope builds an envelope with the given code and message.
func NewErrorEnvelope(code, message string) *ErrorEnvelope {
	return &ErrorEnvelope{Error: true, ErrorCode: code, ErrorMessage: message}
}

// Errorf builds an envelope with a formatted message.
func Errorf(code, format string, args ...any) *ErrorEnvelope {
	return NewErrorEnvelope(code, fmt.Sprintf(format, args...))
}

// WithSuggestion attaches a hint for the responder or feedback loop.
func (e *ErrorEnvelope) WithSuggestion(s string) *ErrorEnvelope {
	e.Suggestion = s
	return e
}

// ParseEnvelope inspects a raw payload for the shared envelope shape and
// returns it when error=true, nil otherwise. Tool results carry their
// errors as data, not as transport failures.
func ParseEnvelope(raw json.RawMessage) *ErrorEnvelope {
	if len(raw) == 0 {
		return nil
	}
	var e ErrorEnvelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	if !e.Error {
		return nil
	}
	return &e
}

// IsRetriable reports whether a feedback loop may fix this error by
// re-running the worker with corrected parameters.
func (e *ErrorEnvelope) IsRetriable() bool {
	if e == nil {
		return false
	}
	switch e.ErrorCode {
	case ErrCodeValidation, ErrCodeMissingParams, ErrCodeUpstream, ErrCodeTimeout:
		return true
	}
	return false
}
