package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a PerfError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *PerfError {
	if err == nil {
		return nil
	}

	var pe *PerfError
	if errors.As(err, &pe) {
		return &PerfError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       pe,
			Context:     pe.Context,
			Component:   pe.Component,
			Recoverable: pe.Recoverable,
		}
	}

	return &PerfError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType != ErrorTypeInternal && errType != ErrorTypeConfig,
	}
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *PerfError {
	return Wrap(err, ErrorTypeIO, code, message)
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *PerfError {
	return Wrap(err, ErrorTypeConfig, code, message)
}

// FromPanic converts a recovered panic value into an error.
func FromPanic(code string, recovered interface{}) *PerfError {
	if err, ok := recovered.(error); ok {
		return NewInternalError(code, "recovered panic", err)
	}
	return NewInternalError(code, fmt.Sprintf("recovered panic: %v", recovered), nil)
}

// CollectErrors helper for common error collection patterns
func CollectErrors(errs ...error) []error {
	var collected []error
	for _, err := range errs {
		if err != nil {
			collected = append(collected, err)
		}
	}
	return collected
}

// CombineErrors combines multiple errors into a single error with context
func CombineErrors(errs ...error) error {
	nonNilErrs := CollectErrors(errs...)
	if len(nonNilErrs) == 0 {
		return nil
	}
	if len(nonNilErrs) == 1 {
		return nonNilErrs[0]
	}

	messages := make([]string, 0, len(nonNilErrs))
	for _, err := range nonNilErrs {
		messages = append(messages, err.Error())
	}

	return &PerfError{
		Type:    ErrorTypeInternal,
		Code:    "ERR_MULTIPLE_ERRORS",
		Message: fmt.Sprintf("multiple errors occurred: %d errors", len(nonNilErrs)),
		Cause:   errors.Join(nonNilErrs...),
		Context: map[string]interface{}{
			"error_count": len(nonNilErrs),
			"errors":      messages,
		},
	}
}
