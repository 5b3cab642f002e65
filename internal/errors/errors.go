// Package errors provides structured error handling for qapper operations.
// It defines error codes, error types, and utilities for creating and
// classifying errors with target context attached.
package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodePermission    ErrorCode = "PERMISSION"

	// Input validation errors.
	CodeInvalidPortToken ErrorCode = "INVALID_PORT_TOKEN"
	CodeInvalidRange     ErrorCode = "INVALID_RANGE"
	CodePortOutOfBounds  ErrorCode = "PORT_OUT_OF_BOUNDS"
	CodeNoTargets        ErrorCode = "NO_TARGETS"
	CodeResolveFailed    ErrorCode = "RESOLVE_FAILED"

	// Network and probing errors.
	CodeConnectionRefused ErrorCode = "CONNECTION_REFUSED"
	CodeHostUnreachable   ErrorCode = "HOST_UNREACHABLE"
	CodeProbeFailed       ErrorCode = "PROBE_FAILED"
	CodeDiscoveryFailed   ErrorCode = "DISCOVERY_FAILED"
)

// ScanError represents an error that occurred while preparing or running
// a scan.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
	}
}

// ParseError represents a port-specification parsing failure. It records the
// offending token so callers can point at the exact part of the input.
type ParseError struct {
	Code    ErrorCode
	Message string
	Token   string
	Cause   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("[%s] %s (token: %q)", e.Code, e.Message, e.Token)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a parse error for a specific input token.
func NewParseError(code ErrorCode, message, token string) *ParseError {
	return &ParseError{
		Code:    code,
		Message: message,
		Token:   token,
	}
}

// WrapParseError wraps an existing error as a parse error.
func WrapParseError(code ErrorCode, message, token string, err error) *ParseError {
	return &ParseError{
		Code:    code,
		Message: message,
		Token:   token,
		Cause:   err,
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// DiscoveryError represents liveness-check errors.
type DiscoveryError struct {
	Code    ErrorCode
	Message string
	Address string
	Cause   error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("[%s] %s (address: %s)", e.Code, e.Message, e.Address)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// WrapDiscoveryError wraps an existing error as a discovery error.
func WrapDiscoveryError(code ErrorCode, message, address string, err error) *DiscoveryError {
	return &DiscoveryError{
		Code:    code,
		Message: message,
		Address: address,
		Cause:   err,
	}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *ScanError:
		return e.Code
	case *ParseError:
		return e.Code
	case *ConfigError:
		return e.Code
	case *DiscoveryError:
		return e.Code
	}
	return CodeUnknown
}

// IsInputError reports whether an error stems from invalid user input,
// meaning the run aborted before any network activity.
func IsInputError(err error) bool {
	switch GetCode(err) {
	case CodeInvalidPortToken, CodeInvalidRange, CodePortOutOfBounds,
		CodeNoTargets, CodeResolveFailed, CodeConfiguration:
		return true
	default:
		return false
	}
}
