package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDeviceError        = errors.New("device error")
	ErrUploadFailed       = errors.New("upload failed")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrTimeout            = errors.New("request timed out")

	ErrPlaybackAborted       = errors.New("playback aborted")
	ErrPlaybackNetwork       = errors.New("playback network error")
	ErrPlaybackDecode        = errors.New("playback decode error")
	ErrPlaybackSourceInvalid = errors.New("playback source invalid")
	ErrPlaybackUnknown       = errors.New("playback unknown error")
)

// UploadError reports a storage or validation failure of the upload gateway.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload failed: %s: %v", e.Reason, e.Err)
	}
	return "upload failed: " + e.Reason
}

// Unwrap lets errors.Is match both ErrUploadFailed and the cause.
func (e *UploadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUploadFailed, e.Err}
	}
	return []error{ErrUploadFailed}
}

// BackendError is a persistence failure that is neither NotFound nor Forbidden.
type BackendError struct {
	Status  int
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error (%s): %s", e.Code, e.Message)
	}
	return "backend error: " + e.Message
}

func (e *BackendError) Unwrap() error {
	return ErrBackendUnavailable
}
