package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorType represents the class of a pipeline error
type ErrorType string

const (
	// ErrorTypeNotAvailable indicates the provider never published the resource
	ErrorTypeNotAvailable ErrorType = "NOT_AVAILABLE"
	// ErrorTypeTransient indicates a network failure worth retrying
	ErrorTypeTransient ErrorType = "TRANSIENT"
	// ErrorTypeTruncated indicates a local file shorter than expected
	ErrorTypeTruncated ErrorType = "TRUNCATED"
	// ErrorTypeCorrupt indicates a local file with an invalid signature or layout
	ErrorTypeCorrupt ErrorType = "CORRUPT"
	// ErrorTypeExtractionIncomplete indicates an archive missing required members
	ErrorTypeExtractionIncomplete ErrorType = "EXTRACTION_INCOMPLETE"
	// ErrorTypeFilesystem indicates the local disk cannot be written
	ErrorTypeFilesystem ErrorType = "FILESYSTEM"
	// ErrorTypeBadRequest indicates a bad request
	ErrorTypeBadRequest ErrorType = "BAD_REQUEST"
	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new application error
func New(errorType ErrorType, message string) error {
	return &AppError{
		Type:    errorType,
		Message: message,
	}
}

// Wrap wraps an error with an application error
func Wrap(errorType ErrorType, message string, err error) error {
	return &AppError{
		Type:    errorType,
		Message: message,
		Err:     err,
	}
}

// NotAvailable creates a not available error
func NotAvailable(message string) error {
	return New(ErrorTypeNotAvailable, message)
}

// Transient wraps a retryable network error
func Transient(message string, err error) error {
	return Wrap(ErrorTypeTransient, message, err)
}

// Truncated creates a truncated file error
func Truncated(message string) error {
	return New(ErrorTypeTruncated, message)
}

// Corrupt creates a corrupt file error
func Corrupt(message string) error {
	return New(ErrorTypeCorrupt, message)
}

// ExtractionIncomplete creates an incomplete extraction error
func ExtractionIncomplete(message string) error {
	return New(ErrorTypeExtractionIncomplete, message)
}

// Filesystem wraps a local disk error
func Filesystem(message string, err error) error {
	return Wrap(ErrorTypeFilesystem, message, err)
}

// BadRequest creates a bad request error
func BadRequest(message string) error {
	return New(ErrorTypeBadRequest, message)
}

// Internal creates an internal error
func Internal(message string) error {
	return New(ErrorTypeInternal, message)
}

// TypeOf returns the type of the outermost AppError in the chain, or
// ErrorTypeInternal when err carries none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsNotAvailable checks if an error is a not available error
func IsNotAvailable(err error) bool {
	return isType(err, ErrorTypeNotAvailable)
}

// IsTransient checks if an error is a transient error
func IsTransient(err error) bool {
	return isType(err, ErrorTypeTransient)
}

// IsTruncated checks if an error is a truncated file error
func IsTruncated(err error) bool {
	return isType(err, ErrorTypeTruncated)
}

// IsCorrupt checks if an error is a corrupt file error
func IsCorrupt(err error) bool {
	return isType(err, ErrorTypeCorrupt)
}

// IsExtractionIncomplete checks if an error is an incomplete extraction error
func IsExtractionIncomplete(err error) bool {
	return isType(err, ErrorTypeExtractionIncomplete)
}

// IsFilesystem checks if an error is a filesystem error
func IsFilesystem(err error) bool {
	return isType(err, ErrorTypeFilesystem)
}

// IsBadRequest checks if an error is a bad request error
func IsBadRequest(err error) bool {
	return isType(err, ErrorTypeBadRequest)
}

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// IsRetryable reports whether the orchestrator may attempt the step again.
// Verification failures count as retryable; the caller bounds them separately.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch TypeOf(err) {
	case ErrorTypeTransient, ErrorTypeTruncated, ErrorTypeCorrupt:
		return true
	}
	return false
}

// IsNetworkError reports whether err came from the network stack rather than
// the HTTP exchange itself.
func IsNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}
