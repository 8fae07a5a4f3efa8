package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryNotFound is returned when no entry matches an identity.
	ErrEntryNotFound = errors.New("upload entry not found")
	// ErrEntryInFlight is returned by Remove for entries that must be cancelled instead.
	ErrEntryInFlight = errors.New("upload entry is still in flight")
)

// IsNotFound reports whether err means the entry does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrEntryNotFound) }

// Error codes attached to rejected and failed entries.
const (
	CodeRejectedType   = "rejected_type"
	CodeFileTooLarge   = "file_too_large"
	CodeNetworkFailure = "network_failure"
	CodeServerFailure  = "server_failure"
)

// UploadError describes why an entry was rejected or failed.
type UploadError struct {
	Code    string
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// RejectedTypeError reports a declared content type outside the accepted set.
func RejectedTypeError(mimeType string, hint string) *UploadError {
	msg := "This file type is not accepted"
	if hint != "" {
		msg = fmt.Sprintf("This file type is not accepted. You can upload %s", hint)
	}
	return &UploadError{
		Code:    CodeRejectedType,
		Message: msg,
		Err:     fmt.Errorf("content type %q", mimeType),
	}
}

// FileTooLargeError reports a file above the enforced size limit.
func FileTooLargeError(size, limit int64) *UploadError {
	return &UploadError{
		Code:    CodeFileTooLarge,
		Message: "This file exceeds the maximum upload size",
		Err:     fmt.Errorf("size %d exceeds limit %d", size, limit),
	}
}

// NetworkFailureError wraps a transport-level error.
func NetworkFailureError(err error) *UploadError {
	return &UploadError{Code: CodeNetworkFailure, Message: "Upload failed", Err: err}
}

// ServerFailureError reports a non-200 response.
func ServerFailureError(statusCode int) *UploadError {
	return &UploadError{
		Code:    CodeServerFailure,
		Message: "Upload failed",
		Err:     fmt.Errorf("unexpected status code %d", statusCode),
	}
}
