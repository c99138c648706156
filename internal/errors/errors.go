// Package errors provides standardized error codes for the dashboard service.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (auth, protocol, ipc, render, storage)
//   - error: The specific error type within that domain
//
// Codes are stable identifiers: they appear in logs, in the rejection frame sent
// to producers that fail the handshake, and as keys of the rejection counters
// reported by the status endpoint.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Auth domain - shared-secret handshake
	CodeAuthInvalid         = "auth.invalid"          // Secret did not match
	CodeAuthHandshakeFailed = "auth.handshake_failed" // Handshake frame missing, malformed or late
	CodeAuthRateLimited     = "auth.rate_limited"     // Too many failed handshakes recently

	// Protocol domain - inbound producer messages
	CodeProtocolInvalidMessage = "protocol.invalid_message" // Message lacks required fields
	CodeProtocolUnknownAction  = "protocol.unknown_action"  // Action has no dispatch case
	CodeProtocolInvalidPayload = "protocol.invalid_payload" // Data could not be classified
	CodeProtocolInvalidOptions = "protocol.invalid_options" // Recognized option has the wrong type
	CodeProtocolInvalidMode    = "protocol.invalid_mode"    // Mode is neither append nor replace

	// IPC domain - local socket lifecycle
	CodeIPCSocketInUse   = "ipc.socket_in_use"   // Another process serves the socket path
	CodeIPCSocketInvalid = "ipc.socket_invalid"  // Socket path unusable (too long, not a socket)
	CodeIPCListenFailed  = "ipc.listen_failed"   // Listener could not be created
	CodeIPCAcceptFailed  = "ipc.accept_failed"   // Listener stopped accepting

	// Render domain - drawing and surfaces
	CodeRenderFailed  = "render.failed"  // Panel or figure could not be drawn
	CodeRenderSurface = "render.surface" // Surface failed to present a frame

	// Storage domain - connection audit database
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data

	// Viewer domain - live dashboard viewer
	CodeViewerRateLimited = "viewer.rate_limited" // Viewer sent requests too quickly
	CodeViewerNotFound    = "viewer.not_found"    // No frame for the requested client

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "protocol.unknown_action")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to rejection frames.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// InvalidSecret creates an "auth.invalid" error.
func InvalidSecret() *CodedError {
	return New(CodeAuthInvalid, "shared secret rejected")
}

// HandshakeFailed creates an "auth.handshake_failed" error.
func HandshakeFailed(reason string, cause error) *CodedError {
	return Wrap(CodeAuthHandshakeFailed, fmt.Sprintf("handshake failed: %s", reason), cause)
}

// RateLimited creates an "auth.rate_limited" error.
func RateLimited() *CodedError {
	return New(CodeAuthRateLimited, "too many failed handshakes, try again later")
}

// InvalidMessage creates a "protocol.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeProtocolInvalidMessage, reason)
}

// UnknownAction creates a "protocol.unknown_action" error.
// The message is consumed without mutating any state.
func UnknownAction(action string) *CodedError {
	return New(CodeProtocolUnknownAction, fmt.Sprintf("unknown action %q", action))
}

// InvalidPayload creates a "protocol.invalid_payload" error.
func InvalidPayload(reason string) *CodedError {
	return New(CodeProtocolInvalidPayload, fmt.Sprintf("invalid data payload: %s", reason))
}

// InvalidOptions creates a "protocol.invalid_options" error.
func InvalidOptions(key, want string) *CodedError {
	return New(CodeProtocolInvalidOptions, fmt.Sprintf("option %q must be %s", key, want))
}

// InvalidMode creates a "protocol.invalid_mode" error.
func InvalidMode(mode string) *CodedError {
	return New(CodeProtocolInvalidMode, fmt.Sprintf("invalid mode %q (must be 'append' or 'replace')", mode))
}

// SocketInUse creates an "ipc.socket_in_use" error.
func SocketInUse(path string) *CodedError {
	return New(CodeIPCSocketInUse, fmt.Sprintf("dashboard socket already in use: %s", path))
}

// RenderFailed creates a "render.failed" error.
func RenderFailed(what string, cause error) *CodedError {
	return Wrap(CodeRenderFailed, fmt.Sprintf("failed to render %s", what), cause)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
