package utils

import (
	"errors"
	"fmt"
	"runtime"
)

// AppError represents an application error with context
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	StackTrace string `json:"stack_trace,omitempty"`

	// Cause is the underlying error, if any. Not serialized.
	Cause error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(code, message string, details ...string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
	}

	if len(details) > 0 {
		err.Details = details[0]
	}

	return err
}

// WrapAppError creates an application error that carries an underlying cause
func WrapAppError(code, message string, cause error) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
		Cause:   cause,
	}
	if cause != nil {
		err.Details = cause.Error()
	}

	return err
}

// WithStackTrace adds stack trace to the error
func (e *AppError) WithStackTrace() *AppError {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	e.StackTrace = string(buf[:n])
	return e
}

// ErrorCode returns the code of the outermost AppError in err's chain, or ""
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err is an AppError with the given code
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// Common error codes
const (
	ErrCodeDatabase      = "DATABASE_ERROR"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeExternal      = "EXTERNAL_ERROR"
	ErrCodeConflict      = "CONFLICT"
)

// Recycling error codes
const (
	ErrCodeInvalidAmount      = "INVALID_AMOUNT"
	ErrCodeInvalidSeverity    = "INVALID_SEVERITY"
	ErrCodeInvalidName        = "INVALID_NAME"
	ErrCodeInvalidDescription = "INVALID_DESCRIPTION"
	ErrCodeAlreadyExists      = "ALREADY_EXISTS"
	ErrCodeAccountMismatch    = "ACCOUNT_MISMATCH"
	ErrCodeBurnFailed         = "BURN_FAILED"
	ErrCodeTransferFailed     = "TRANSFER_FAILED"
	ErrCodeOverflow           = "OVERFLOW"
	ErrCodeCompensation       = "COMPENSATION_FAILED"
)

// IsValidationCode reports whether code is raised before any side effect
func IsValidationCode(code string) bool {
	switch code {
	case ErrCodeValidation, ErrCodeInvalidAmount, ErrCodeInvalidSeverity,
		ErrCodeInvalidName, ErrCodeInvalidDescription, ErrCodeAccountMismatch,
		ErrCodeOverflow:
		return true
	}
	return false
}
