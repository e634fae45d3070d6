// Package errors provides structured error types for the riggen application.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the build engine, CLI, and API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Build failures carry one of a small set of codes describing what went
// wrong structurally. Geometry degeneracies (zero-length vectors, collinear
// chains) are resolved by fallback cascades inside the solvers and never
// surface as errors; the codes here describe the conditions that abort a
// build sub-step.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeGuideMissing, "limb %s: guide %q not found", name, role)
//	if errors.Is(err, errors.ErrCodeGuideMissing) {
//	    // Skip this module, continue the build
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeStore, origErr, "load layout %s", name)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidFormat   Code = "INVALID_FORMAT"
	ErrCodeInvalidSide     Code = "INVALID_SIDE"
	ErrCodeInvalidKind     Code = "INVALID_KIND"

	// Structural build errors
	ErrCodeGuideMissing             Code = "GUIDE_MISSING"
	ErrCodeMirrorSourceIncomplete   Code = "MIRROR_SOURCE_INCOMPLETE"
	ErrCodeConstraintWeightMismatch Code = "CONSTRAINT_WEIGHT_MISMATCH"
	ErrCodeChainMismatch            Code = "CHAIN_MISMATCH"

	// Scene-graph errors
	ErrCodeNodeNotFound Code = "NODE_NOT_FOUND"
	ErrCodeNodeExists   Code = "NODE_EXISTS"
	ErrCodeAttrNotFound Code = "ATTR_NOT_FOUND"

	// Resource errors
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeStore    Code = "STORE_ERROR"
	ErrCodeRender   Code = "RENDER_ERROR"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
