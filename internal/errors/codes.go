package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents internal error codes for pipeline operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Caller errors
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeEventTooLarge   ErrorCode = 1001
	ErrCodeUnknownFeature  ErrorCode = 1002
	ErrCodeInvalidEvent    ErrorCode = 1003
	ErrCodeConsentDenied   ErrorCode = 1004

	// Pipeline errors
	ErrCodeInternal         ErrorCode = 2000
	ErrCodeUnavailable      ErrorCode = 2001
	ErrCodeDiskFull         ErrorCode = 2002
	ErrCodeDiskThrottled    ErrorCode = 2003
	ErrCodeNoWritableFile   ErrorCode = 2004
	ErrCodeWriteFailed      ErrorCode = 2005
	ErrCodeCorruptedData    ErrorCode = 2006
	ErrCodeEncryptionFailed ErrorCode = 2007
	ErrCodeTaskRejected     ErrorCode = 2008
)

// PipelineError represents a structured error with code and context
type PipelineError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to the status returned by the ingest API
func (e *PipelineError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument, ErrCodeInvalidEvent:
		return http.StatusBadRequest
	case ErrCodeEventTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeUnknownFeature:
		return http.StatusNotFound
	case ErrCodeConsentDenied:
		return http.StatusForbidden
	case ErrCodeDiskFull, ErrCodeDiskThrottled, ErrCodeTaskRejected:
		return http.StatusServiceUnavailable
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// String returns the code name used in API error bodies
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "OK"
	case ErrCodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case ErrCodeEventTooLarge:
		return "EVENT_TOO_LARGE"
	case ErrCodeUnknownFeature:
		return "UNKNOWN_FEATURE"
	case ErrCodeInvalidEvent:
		return "INVALID_EVENT"
	case ErrCodeConsentDenied:
		return "CONSENT_DENIED"
	case ErrCodeUnavailable:
		return "SERVICE_UNAVAILABLE"
	case ErrCodeDiskFull:
		return "DISK_FULL"
	case ErrCodeDiskThrottled:
		return "DISK_THROTTLED"
	case ErrCodeTaskRejected:
		return "TASK_REJECTED"
	default:
		return "INTERNAL_ERROR"
	}
}

// NewPipelineError creates a new PipelineError
func NewPipelineError(code ErrorCode, message string, cause error) *PipelineError {
	return &PipelineError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *PipelineError) WithDetail(key string, value interface{}) *PipelineError {
	e.Details[key] = value
	return e
}

func InvalidArgument(message string, cause error) *PipelineError {
	return NewPipelineError(ErrCodeInvalidArgument, message, cause)
}

func EventTooLarge(size, maxSize int) *PipelineError {
	return NewPipelineError(ErrCodeEventTooLarge, fmt.Sprintf("event size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func UnknownFeature(name string) *PipelineError {
	return NewPipelineError(ErrCodeUnknownFeature, fmt.Sprintf("feature %q is not registered", name), nil).
		WithDetail("feature", name)
}

func InvalidEvent(reason string) *PipelineError {
	return NewPipelineError(ErrCodeInvalidEvent, fmt.Sprintf("invalid event: %s", reason), nil).
		WithDetail("reason", reason)
}

func ConsentDenied(feature string) *PipelineError {
	return NewPipelineError(ErrCodeConsentDenied, "tracking consent not granted", nil).
		WithDetail("feature", feature)
}

func InternalError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *PipelineError {
	return NewPipelineError(ErrCodeUnavailable, message, cause)
}

func DiskFull(usagePercent float64, availableBytes uint64) *PipelineError {
	return NewPipelineError(ErrCodeDiskFull, fmt.Sprintf("disk full: %.2f%% used, %d bytes available", usagePercent, availableBytes), nil).
		WithDetail("usage_percent", usagePercent).
		WithDetail("available_bytes", availableBytes)
}

func DiskThrottled(usagePercent float64) *PipelineError {
	return NewPipelineError(ErrCodeDiskThrottled, fmt.Sprintf("disk write throttled: %.2f%% used", usagePercent), nil).
		WithDetail("usage_percent", usagePercent)
}

func NoWritableFile(dir string) *PipelineError {
	return NewPipelineError(ErrCodeNoWritableFile, "no writable batch file available", nil).
		WithDetail("dir", dir)
}

func WriteFailed(path string, cause error) *PipelineError {
	return NewPipelineError(ErrCodeWriteFailed, fmt.Sprintf("failed to write %s", path), cause).
		WithDetail("path", path)
}

func CorruptedData(message string, cause error) *PipelineError {
	return NewPipelineError(ErrCodeCorruptedData, message, cause)
}

func EncryptionFailed(message string, cause error) *PipelineError {
	return NewPipelineError(ErrCodeEncryptionFailed, message, cause)
}

func TaskRejected(executor string, cause error) *PipelineError {
	return NewPipelineError(ErrCodeTaskRejected, "Unable to schedule operation on the executor", cause).
		WithDetail("executor", executor)
}

// IsPipelineError checks if an error is a PipelineError
func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}
