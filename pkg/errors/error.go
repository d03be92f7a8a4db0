package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType defines distinct categories for errors originating from HLSdrop components.
type ErrorType string

const (
	// EngineError represents failures while locating, fetching or verifying the transcoding engine.
	EngineError ErrorType = "engine_error"
	// StagingError represents failures copying the source file into engine working storage.
	StagingError ErrorType = "staging_error"
	// TranscodingError represents errors occurring during the engine command (FFmpeg execution).
	TranscodingError ErrorType = "transcoding_error"
	// PlaylistError represents errors reading or interpreting the generated playlist.
	PlaylistError ErrorType = "playlist_error"
	// UploadError represents failures talking to the hosting endpoint, including unusable responses.
	UploadError ErrorType = "upload_error"
	// ValidationError represents errors caused by invalid input parameters or configuration.
	ValidationError ErrorType = "validation_error"
	// SystemError represents underlying system issues, such as file I/O errors.
	SystemError ErrorType = "system_error"
	// UnknownError is assigned to any failure that did not come from a known origin.
	UnknownError ErrorType = "unknown_error"
)

// StructuredError represents a detailed error originating from HLSdrop operations.
// It includes a type, message, optional details, timestamp, and a specific error code.
// It implements the standard Go `error` interface.
type StructuredError struct {
	// Type categorizes the error (e.g., UploadError, TranscodingError).
	Type ErrorType `json:"type"`
	// Message provides a concise, human-readable description of the error.
	Message string `json:"message"`
	// Details offers additional context or the underlying error message, if available.
	Details string `json:"details,omitempty"`
	// Timestamp marks when the error occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
	// Code provides a specific integer code unique to the error source within its type.
	Code int `json:"code"`

	cause error
}

// Error implements the standard `error` interface for StructuredError.
// It returns a formatted string including the error type, message, and details.
func (e *StructuredError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Message, e.Details)
}

// Unwrap returns the error passed to Wrap, if any.
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// JSON returns the StructuredError serialized as a JSON string.
// Returns an empty string and an error if marshalling fails.
func (e *StructuredError) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// New creates a new StructuredError instance.
// It automatically sets the Timestamp to the current time.
func New(errorType ErrorType, message, details string, code int) *StructuredError {
	return &StructuredError{
		Type:      errorType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
		Code:      code,
	}
}

// Wrap creates a new StructuredError, using the message from an existing standard Go error
// as the Details field. The original error stays reachable through errors.Unwrap.
// If the input error `err` is nil, Details will be empty.
func Wrap(err error, errorType ErrorType, message string, code int) *StructuredError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	se := New(errorType, message, details, code)
	se.cause = err
	return se
}

// As reports whether err is, or wraps, a StructuredError and returns it.
func As(err error) (*StructuredError, bool) {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Is forwards to the standard library so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Normalize converts any error into a StructuredError. Errors that are already
// structured are returned as-is; everything else becomes an UnknownError.
func Normalize(err error) *StructuredError {
	if err == nil {
		return nil
	}
	if se, ok := As(err); ok {
		return se
	}
	return Wrap(err, UnknownError, GetErrorMessage(ErrUnknown), ErrUnknown)
}

// Describe returns the message shown to a user for a failed conversion.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	se, ok := As(err)
	if !ok {
		if msg := err.Error(); msg != "" {
			return msg
		}
		return GetErrorMessage(ErrUnknown)
	}
	if se.Type == UnknownError && se.Details != "" {
		return se.Details
	}
	if se.Details != "" {
		return se.Message + ": " + se.Details
	}
	if se.Message == "" {
		return GetErrorMessage(ErrUnknown)
	}
	return se.Message
}
