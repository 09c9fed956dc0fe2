// Package errors defines the error taxonomy shared by perfguard components.
//
// Nothing in the optimization core is allowed to fail its host: most of these
// errors end up in a log line rather than a return value. The categories
// decide how loudly they are logged and whether the caller may keep going.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// ErrorTypeUnsupported marks a platform capability that is missing.
	ErrorTypeUnsupported ErrorType = "unsupported"
	// ErrorTypeElement marks a failure scoped to a single DOM element.
	ErrorTypeElement ErrorType = "element"
	// ErrorTypeGuard marks a failure inside mutation interception.
	ErrorTypeGuard      ErrorType = "guard"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeInternal   ErrorType = "internal"
)

// PerfError is a structured error type with context.
type PerfError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *PerfError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PerfError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison on type and code.
func (e *PerfError) Is(target error) bool {
	var t *PerfError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PerfError) WithContext(key string, value interface{}) *PerfError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *PerfError) WithComponent(component string) *PerfError {
	e.Component = component

	return e
}

// NewUnsupportedError reports a missing platform capability.
func NewUnsupportedError(code, message string, cause error) *PerfError {
	return &PerfError{
		Type:        ErrorTypeUnsupported,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewElementError reports a failure scoped to one element of a batch.
func NewElementError(code, message string, cause error) *PerfError {
	return &PerfError{
		Type:        ErrorTypeElement,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewGuardError reports a failure inside mutation interception.
func NewGuardError(code, message string, cause error) *PerfError {
	return &PerfError{
		Type:        ErrorTypeGuard,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PerfError {
	return &PerfError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PerfError {
	return &PerfError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PerfError {
	return &PerfError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewNetworkError creates a network error (browser connection, navigation).
func NewNetworkError(code, message string, cause error) *PerfError {
	return &PerfError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PerfError {
	return &PerfError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var pe *PerfError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

// IsUnsupported checks if an error reports a missing platform capability.
func IsUnsupported(err error) bool {
	return hasType(err, ErrorTypeUnsupported)
}

// IsElementError checks if an error is scoped to a single element.
func IsElementError(err error) bool {
	return hasType(err, ErrorTypeElement)
}

func hasType(err error, t ErrorType) bool {
	var pe *PerfError
	if errors.As(err, &pe) {
		return pe.Type == t
	}

	return false
}

// ErrorHandler routes errors to the log at a level matching their category.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err. Unsupported, element and guard errors are warnings since
// they only cost an enhancement; everything else is logged as an error.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var pe *PerfError
	if !errors.As(err, &pe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch pe.Type {
	case ErrorTypeUnsupported, ErrorTypeElement, ErrorTypeGuard, ErrorTypeValidation:
		h.logger.Warn(ctx, pe, "Enhancement skipped",
			"type", pe.Type,
			"code", pe.Code,
			"component", pe.Component)
	default:
		h.logger.Error(ctx, pe, "Error occurred",
			"type", pe.Type,
			"code", pe.Code,
			"component", pe.Component)
	}
}

// Common error codes.
const (
	ErrCodeUnsupportedEntryType = "ERR_UNSUPPORTED_ENTRY_TYPE"
	ErrCodeUnsupportedFeature   = "ERR_UNSUPPORTED_FEATURE"
	ErrCodeLayoutUnavailable    = "ERR_LAYOUT_UNAVAILABLE"
	ErrCodeElementPanic         = "ERR_ELEMENT_PANIC"
	ErrCodeMissingElement       = "ERR_MISSING_ELEMENT"
	ErrCodeInvalidSelector      = "ERR_INVALID_SELECTOR"
	ErrCodeFacadeSealed         = "ERR_FACADE_SEALED"
	ErrCodeAlreadyTracing       = "ERR_ALREADY_TRACING"
	ErrCodeNotTracing           = "ERR_NOT_TRACING"
	ErrCodeConfigInvalid        = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound         = "ERR_FILE_NOT_FOUND"
	ErrCodeFileAccess           = "ERR_FILE_ACCESS"
	ErrCodeParse                = "ERR_PARSE"
	ErrCodeBrowser              = "ERR_BROWSER"
	ErrCodeInternalError        = "ERR_INTERNAL"
	ErrCodeValidationFailed     = "ERR_VALIDATION_FAILED"
)

// ErrInvalidSelector creates a selector validation error.
func ErrInvalidSelector(selector string, cause error) *PerfError {
	err := NewValidationError(ErrCodeInvalidSelector, "invalid selector: "+selector)
	err.Cause = cause
	return err
}

// ErrLayoutUnavailable reports that no geometry is known for an element.
func ErrLayoutUnavailable(tag string) *PerfError {
	return NewElementError(ErrCodeLayoutUnavailable, "no layout for <"+tag+">", nil)
}
