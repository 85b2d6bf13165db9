// Package errors provides structured error types for bulk-restore
// with error codes, categories, and remediation guidance
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error codes for bulk-restore
// Format: BULKRESTORE-<CATEGORY><NUMBER>
// Categories: V=Validation, A=Auth, D=Discovery, R=Restore, P=Provider, B=Bug
const (
	// Validation errors (user fix, raised before any provider call)
	ErrCodeInvalidInput       ErrorCode = "BULKRESTORE-V001"
	ErrCodeMissingField       ErrorCode = "BULKRESTORE-V002"
	ErrCodeInvalidFilter      ErrorCode = "BULKRESTORE-V003"
	ErrCodeIncompatibleTarget ErrorCode = "BULKRESTORE-V004"
	ErrCodeTargetMismatch     ErrorCode = "BULKRESTORE-V005"

	// Authentication errors (credential fix)
	ErrCodeMissingToken ErrorCode = "BULKRESTORE-A001"
	ErrCodeSecretFetch  ErrorCode = "BULKRESTORE-A002"
	ErrCodeUnauthorized ErrorCode = "BULKRESTORE-A003"

	// Discovery errors
	ErrCodeDiscoveryFailed ErrorCode = "BULKRESTORE-D001"
	ErrCodeNoMatch         ErrorCode = "BULKRESTORE-D002"
	ErrCodeNoEnvironment   ErrorCode = "BULKRESTORE-D003"

	// Restore lifecycle errors
	ErrCodeDispatchRejected ErrorCode = "BULKRESTORE-R001"
	ErrCodePollExhausted    ErrorCode = "BULKRESTORE-R002"
	ErrCodeTaskFailed       ErrorCode = "BULKRESTORE-R003"
	ErrCodeSetCancelled     ErrorCode = "BULKRESTORE-R004"

	// Provider errors
	ErrCodeProviderFailed ErrorCode = "BULKRESTORE-P001"
	ErrCodeRateLimited    ErrorCode = "BULKRESTORE-P002"
	ErrCodeTimeout        ErrorCode = "BULKRESTORE-P003"
	ErrCodeUnavailable    ErrorCode = "BULKRESTORE-P004"

	// Internal errors (report to maintainers)
	ErrCodeLogicError   ErrorCode = "BULKRESTORE-B001"
	ErrCodeInvalidState ErrorCode = "BULKRESTORE-B002"
)

// Category represents error categories
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryAuth       Category = "authentication"
	CategoryDiscovery  Category = "discovery"
	CategoryRestore    Category = "restore"
	CategoryProvider   Category = "provider"
	CategoryInternal   Category = "internal"
)

// RestoreError is a structured error with code, category, and remediation
type RestoreError struct {
	Code        ErrorCode
	Category    Category
	Message     string
	Details     string
	Remediation string
	Cause       error
}

// Error implements error interface
func (e *RestoreError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += fmt.Sprintf(": %s", e.Details)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *RestoreError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for error comparison
func (e *RestoreError) Is(target error) bool {
	if t, ok := target.(*RestoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetails attaches detail text and returns the error
func (e *RestoreError) WithDetails(details string) *RestoreError {
	e.Details = details
	return e
}

// WithCause attaches an underlying cause and returns the error
func (e *RestoreError) WithCause(cause error) *RestoreError {
	e.Cause = cause
	return e
}

// NewValidationError creates a validation error (malformed or inconsistent input)
func NewValidationError(code ErrorCode, message string) *RestoreError {
	return &RestoreError{
		Code:        code,
		Category:    CategoryValidation,
		Message:     message,
		Remediation: "Correct the restore definition and rerun",
	}
}

// NewInvalidFilterError creates an error for a malformed asset filter
func NewInvalidFilterError(message string) *RestoreError {
	return &RestoreError{
		Code:        ErrCodeInvalidFilter,
		Category:    CategoryValidation,
		Message:     message,
		Remediation: "Fix the asset filter block for this asset type",
	}
}

// NewIncompatibleTargetError creates an error for jointly invalid target fields
func NewIncompatibleTargetError(message string) *RestoreError {
	return &RestoreError{
		Code:        ErrCodeIncompatibleTarget,
		Category:    CategoryValidation,
		Message:     message,
		Remediation: "Fix the target spec block for this asset type",
	}
}

// NewAuthError creates an authentication error
func NewAuthError(code ErrorCode, message string, cause error) *RestoreError {
	return &RestoreError{
		Code:        code,
		Category:    CategoryAuth,
		Message:     message,
		Cause:       cause,
		Remediation: "Check the API token or the Secrets Manager secret",
	}
}

// NewDiscoveryError creates a transient discovery error (eligible for retry)
func NewDiscoveryError(message string, cause error) *RestoreError {
	return &RestoreError{
		Code:     ErrCodeDiscoveryFailed,
		Category: CategoryDiscovery,
		Message:  message,
		Cause:    cause,
	}
}

// NewNoMatchError creates the terminal zero-matches error for one asset type
func NewNoMatchError(assetType string) *RestoreError {
	return &RestoreError{
		Code:     ErrCodeNoMatch,
		Category: CategoryDiscovery,
		Message:  fmt.Sprintf("no backups matched the %s filter", assetType),
	}
}

// NewDispatchError creates an error for a synchronously rejected restore start
func NewDispatchError(message string, cause error) *RestoreError {
	return &RestoreError{
		Code:     ErrCodeDispatchRejected,
		Category: CategoryRestore,
		Message:  message,
		Cause:    cause,
	}
}

// NewPollExhaustedError creates an error for a job whose status polling
// exceeded the retry ceiling
func NewPollExhaustedError(taskID string, attempts int, cause error) *RestoreError {
	return &RestoreError{
		Code:     ErrCodePollExhausted,
		Category: CategoryRestore,
		Message:  fmt.Sprintf("status polling for task %s exhausted after %d attempts", taskID, attempts),
		Cause:    cause,
	}
}

// NewProviderError creates a non-retriable provider error
func NewProviderError(message string, cause error) *RestoreError {
	return &RestoreError{
		Code:     ErrCodeProviderFailed,
		Category: CategoryProvider,
		Message:  message,
		Cause:    cause,
	}
}

// NewInternalError creates an internal error
func NewInternalError(code ErrorCode, message string) *RestoreError {
	return &RestoreError{
		Code:        code,
		Category:    CategoryInternal,
		Message:     message,
		Remediation: "This is a bug, report it to the maintainers",
	}
}

// IsValidation reports whether err is a pre-dispatch validation failure
func IsValidation(err error) bool {
	var re *RestoreError
	if errors.As(err, &re) {
		return re.Category == CategoryValidation
	}
	return false
}

// IsNoMatch reports whether err is the zero-matches outcome
func IsNoMatch(err error) bool {
	return errors.Is(err, &RestoreError{Code: ErrCodeNoMatch})
}

// IsTransient reports whether err may succeed on retry
func IsTransient(err error) bool {
	var re *RestoreError
	if errors.As(err, &re) {
		switch re.Code {
		case ErrCodeDiscoveryFailed, ErrCodeRateLimited, ErrCodeTimeout, ErrCodeUnavailable:
			return true
		}
	}
	return false
}

// GetCode extracts the error code, or empty string for foreign errors
func GetCode(err error) ErrorCode {
	var re *RestoreError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
