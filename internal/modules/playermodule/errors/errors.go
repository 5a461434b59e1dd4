// Package errors provides structured error handling for the player module.
// It classifies failures of pipeline assembly, device reset and overlay
// rendering so callers can decide whether playback is still authoritative.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies a player failure
type ErrorType string

const (
	// ErrorTypeOpen indicates one input could not be opened
	ErrorTypeOpen ErrorType = "open"
	// ErrorTypeBuild indicates pipeline assembly was aborted
	ErrorTypeBuild ErrorType = "build"
	// ErrorTypeDeviceReset indicates an in-place sink reset failed and the device was closed
	ErrorTypeDeviceReset ErrorType = "device_reset"
	// ErrorTypeRuntimeIO indicates frame I/O failed while playing
	ErrorTypeRuntimeIO ErrorType = "runtime_io"
	// ErrorTypeOverlay indicates one OSD element could not be rendered
	ErrorTypeOverlay ErrorType = "overlay"
	// ErrorTypeValidation indicates invalid parameters or configuration
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInternal indicates an unexpected internal failure
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors
var (
	ErrNoInputs          = errors.New("no inputs opened")
	ErrUnsupportedKind   = errors.New("unsupported input kind")
	ErrDeviceUnavailable = errors.New("output device unavailable")
	ErrUnsupportedOutput = errors.New("unsupported output type")
	ErrUnsupportedFormat = errors.New("unsupported stream format")
	ErrNoPictureStream   = errors.New("no picture stream")
	ErrResetFailed       = errors.New("sink reset failed")
	ErrOutOfBounds       = errors.New("overlay outside picture bounds")
	ErrNotInitialised    = errors.New("overlay not initialised")
	ErrNotRunning        = errors.New("player not running")
	ErrClosed            = errors.New("closed")
	ErrEndOfSource       = errors.New("end of source")
	ErrInvalidInput      = errors.New("invalid input")
	ErrStreamDisabled    = errors.New("stream disabled")
)

// PlayerError provides structured error information with context
type PlayerError struct {
	Type    ErrorType              // Error classification
	Op      string                 // Operation that failed (e.g. "open_input", "build_sink")
	Input   string                 // Related input if applicable
	Err     error                  // Underlying error
	Details map[string]interface{} // Additional context
}

// Error implements the error interface
func (e *PlayerError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("%s error in %s for input %s: %v", e.Type, e.Op, e.Input, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *PlayerError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sentinel errors
func (e *PlayerError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates a new PlayerError
func New(errType ErrorType, op string, err error) *PlayerError {
	return &PlayerError{
		Type:    errType,
		Op:      op,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithInput adds input context to the error
func (e *PlayerError) WithInput(input string) *PlayerError {
	e.Input = input
	return e
}

// WithDetail adds a key-value detail to the error
func (e *PlayerError) WithDetail(key string, value interface{}) *PlayerError {
	e.Details[key] = value
	return e
}

// IsRecoverable returns true when playback can continue despite the error.
// Open failures are recoverable through blank fallback, overlay failures only
// drop one element for one frame.
func (e *PlayerError) IsRecoverable() bool {
	switch e.Type {
	case ErrorTypeOpen, ErrorTypeOverlay, ErrorTypeRuntimeIO:
		return true
	}
	return false
}

// OpenError creates an input open error
func OpenError(op string, err error) *PlayerError {
	return New(ErrorTypeOpen, op, err)
}

// BuildError creates a pipeline build error
func BuildError(op string, err error) *PlayerError {
	return New(ErrorTypeBuild, op, err)
}

// DeviceResetError creates a device reset error
func DeviceResetError(op string, err error) *PlayerError {
	return New(ErrorTypeDeviceReset, op, err)
}

// RuntimeIOError creates a frame I/O error
func RuntimeIOError(op string, err error) *PlayerError {
	return New(ErrorTypeRuntimeIO, op, err)
}

// OverlayError creates an OSD element render error
func OverlayError(op string, err error) *PlayerError {
	return New(ErrorTypeOverlay, op, err)
}

// ValidationError creates a validation error
func ValidationError(op string, err error) *PlayerError {
	return New(ErrorTypeValidation, op, err)
}

// Wrap wraps an error with operation context if it's not already a PlayerError
func Wrap(err error, errType ErrorType, op string) error {
	if err == nil {
		return nil
	}

	var pErr *PlayerError
	if errors.As(err, &pErr) {
		return err
	}

	return New(errType, op, err)
}

// GetType extracts the error type from an error
func GetType(err error) ErrorType {
	var pErr *PlayerError
	if errors.As(err, &pErr) {
		return pErr.Type
	}
	return ErrorTypeInternal
}

// GetOperation extracts the operation from an error
func GetOperation(err error) string {
	var pErr *PlayerError
	if errors.As(err, &pErr) {
		return pErr.Op
	}
	return "unknown"
}
