package errors

import (
	stderrors "errors"
	"fmt"

	"fairnb/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context. The code of a wrapped
// AppError is kept; otherwise it is derived from the domain sentinels.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    Classify(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError in the chain, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Classify maps an error to a code: an AppError keeps its code, domain
// sentinels map to their codes, anything else is internal.
func Classify(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case stderrors.Is(err, core.ErrSearchBudgetExceeded):
		return CodeSearchBudgetExceeded
	case stderrors.Is(err, core.ErrInfeasibleFit):
		return CodeInfeasibleFit
	case stderrors.Is(err, core.ErrNumericDomain):
		return CodeNumericDomain
	case stderrors.Is(err, core.ErrMalformedInput):
		return CodeMalformedInput
	case stderrors.Is(err, core.ErrInvalidParameter):
		return CodeInvalidParameter
	default:
		return CodeInternalError
	}
}

// Predefined error codes
const (
	CodeMalformedInput       = "MALFORMED_INPUT"
	CodeInvalidParameter     = "INVALID_PARAMETER"
	CodeInfeasibleFit        = "INFEASIBLE_FIT"
	CodeNumericDomain        = "NUMERIC_DOMAIN"
	CodeSearchBudgetExceeded = "SEARCH_BUDGET_EXCEEDED"
	CodeConfigInvalid        = "CONFIG_INVALID"
	CodeStorageError         = "STORAGE_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func StorageError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeStorageError,
		Message: message,
		Cause:   cause,
	}
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}
