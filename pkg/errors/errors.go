// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Daimon.
// Codes follow the runtime's failure taxonomy: registration, composition,
// dispatch, service, model, and lifecycle failures each carry their own code
// so callers can branch on class instead of string matching.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrorCode classifies Daimon errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeDuplicateCapability indicates a plugin tried to register a
	// capability name that is already taken. Fatal to that plugin only.
	CodeDuplicateCapability ErrorCode = "DUPLICATE_CAPABILITY"

	// CodeInvalidPlugin indicates a malformed plugin bundle.
	CodeInvalidPlugin ErrorCode = "INVALID_PLUGIN"

	// CodeUnknownProvider indicates a requested provider name is not
	// registered. Fatal to the requesting cycle.
	CodeUnknownProvider ErrorCode = "UNKNOWN_PROVIDER"

	// CodeDispatch indicates the dispatcher could not run a cycle.
	CodeDispatch ErrorCode = "DISPATCH_ERROR"

	// CodeService indicates a service start or stop failure. The service
	// degrades to unavailable; the runtime keeps going.
	CodeService ErrorCode = "SERVICE_ERROR"

	// CodeNoModelHandler indicates no handler is registered for the
	// requested model class. Recoverable for the calling capability.
	CodeNoModelHandler ErrorCode = "NO_MODEL_HANDLER"

	// CodeModelBackend indicates a model backend call failed.
	CodeModelBackend ErrorCode = "MODEL_BACKEND_ERROR"

	// CodeNotRunning indicates a runtime entry point was called outside the
	// Running state.
	CodeNotRunning ErrorCode = "NOT_RUNNING"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeStorage indicates a persistence collaborator error.
	CodeStorage ErrorCode = "STORAGE_ERROR"

	// CodeConflict indicates a write collided with an existing record.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeUnavailable indicates a collaborator is not available, e.g. a
	// store lookup through a stopped runtime handle.
	CodeUnavailable ErrorCode = "UNAVAILABLE"
)

// DaimonError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type DaimonError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *DaimonError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *DaimonError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *DaimonError) MarshalJSON() ([]byte, error) {
	type Alias DaimonError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new DaimonError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *DaimonError {
	return &DaimonError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// Newf creates a DaimonError without a cause, formatting the message.
func Newf(code ErrorCode, format string, args ...interface{}) *DaimonError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *DaimonError) WithContext(key string, value interface{}) *DaimonError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *DaimonError) WithAttribute(key, value string) *DaimonError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *DaimonError) WithRecoverable(recoverable bool) *DaimonError {
	e.Recoverable = recoverable
	return e
}

// AsDaimonError attempts to convert an error to a DaimonError.
// Returns the error as DaimonError if one is in the chain, or wraps it
// as internal otherwise.
func AsDaimonError(err error) *DaimonError {
	if err == nil {
		return nil
	}
	var de *DaimonError
	if errors.As(err, &de) {
		return de
	}
	return New(CodeInternal, "wrapped error", err)
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var de *DaimonError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// IsRecoverable reports whether the error is marked recoverable. Unknown
// error types are not.
func IsRecoverable(err error) bool {
	var de *DaimonError
	if !errors.As(err, &de) {
		return false
	}
	return de.Recoverable
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *DaimonError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// LogValue implements slog.LogValuer so logged errors carry their code and
// context as structured fields.
func (e *DaimonError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", string(e.Code)),
		slog.String("message", e.Message),
		slog.Bool("recoverable", e.Recoverable),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("cause", e.Err.Error()))
	}
	for k, v := range e.Context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}
