// Package errors defines structured error types for the record store API.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrValidationFailed is returned when a field value fails validation
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrUniqueConstraint is returned when a unique field value collides
	ErrUniqueConstraint ErrorCode = "UNIQUE_CONSTRAINT"
	// ErrReferentialIntegrity is returned when a delete is blocked by references
	ErrReferentialIntegrity ErrorCode = "REFERENTIAL_INTEGRITY"

	// ErrNotFound is returned when a resource is not found
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrDatasetNotFound is returned when a dataset is not found
	ErrDatasetNotFound ErrorCode = "DATASET_NOT_FOUND"
	// ErrRecordNotFound is returned when a record is not found
	ErrRecordNotFound ErrorCode = "RECORD_NOT_FOUND"

	// ErrFileUpload is returned when a chunked upload session is invalid or expired
	ErrFileUpload ErrorCode = "FILE_UPLOAD"
	// ErrFileNotFound is returned when a file is not found
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	// ErrStorageError is returned when a storage operation fails
	ErrStorageError ErrorCode = "STORAGE_ERROR"

	// ErrRateLimited is returned when a client exceeds the mutation rate limit
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrInternal is returned when an unexpected server error occurs
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	// ErrConflict is returned when there is a resource conflict
	ErrConflict ErrorCode = "CONFLICT"
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// Validation creates a 400 error for a field value that fails validation.
func Validation(field, message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message).WithDetail("field", field)
}

// UniqueConstraint creates a 409 error for a unique field collision.
//
// The message keeps the literal "must be unique" substring followed by the
// field's display name; the legacy UI matches on it.
func UniqueConstraint(key, displayName string) *APIError {
	return NewAPIError(http.StatusConflict, ErrUniqueConstraint, "value must be unique: "+displayName).
		WithDetail("field", key).
		WithDetail("displayName", displayName)
}

// ReferentialIntegrity creates a 409 error for a delete blocked by references.
//
// The message keeps the literal "referenced by other records" substring; the
// legacy UI matches on it.
func ReferentialIntegrity(message string) *APIError {
	return NewAPIError(http.StatusConflict, ErrReferentialIntegrity, message+": referenced by other records")
}

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrNotFound, resource+" not found")
}

// DatasetNotFound creates a 404 error for a missing dataset.
func DatasetNotFound(id string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrDatasetNotFound, "dataset not found").WithDetail("id", id)
}

// RecordNotFound creates a 404 error for a missing record.
func RecordNotFound(id string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrRecordNotFound, "record not found").WithDetail("id", id)
}

// FileNotFound creates a 404 error for a missing asset.
func FileNotFound(path string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrFileNotFound, "file not found").WithDetail("path", path)
}

// FileUpload creates a 400 error for an invalid chunked upload request.
func FileUpload(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrFileUpload, message)
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}
