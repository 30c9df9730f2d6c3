// Unified error handling for the motion host
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCode represents the category of a host error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigFile       ErrorCode = "CONFIG_FILE"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Motion request errors, wrapping a numeric Code
	ErrMotion ErrorCode = "MOTION"

	// Runtime errors
	ErrRuntime      ErrorCode = "RUNTIME"
	ErrRuntimeInit  ErrorCode = "RUNTIME_INIT"
	ErrRuntimeStore ErrorCode = "RUNTIME_STORE"
)

// HostError is the error type used outside the tick path. Inside the
// kernel plain Code values are returned.
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Axis is the axis id the error refers to, or -1
	Axis int

	// Section is the config section or operation name
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *HostError) Error() string {
	where := e.Section
	if e.Option != "" {
		where = e.Section + "." + e.Option
	}
	if e.Axis >= 0 {
		where = fmt.Sprintf("axis %d %s", e.Axis, where)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Code, where, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Code, where, e.Message)
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetAxis sets the axis id
func (e *HostError) SetAxis(axis int) *HostError {
	e.Axis = axis
	return e
}

// SetSection sets the context section
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Axis:    -1,
		Err:     err,
	}
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Axis:    -1,
	}
}

// Motion wraps a kernel code returned by an axis operation.
func Motion(axis int, op string, c Code) *HostError {
	return Wrap(c, ErrMotion, c.Name()).SetAxis(axis).SetSection(op)
}

// ConfigFileError creates an error for an unreadable config file
func ConfigFileError(path string, err error) *HostError {
	return Wrap(err, ErrConfigFile, fmt.Sprintf("failed to load '%s'", path)).
		SetContext("config_path", path)
}

// ConfigOptionError creates an error for a missing or malformed option
func ConfigOptionError(section, option string, reason string) *HostError {
	return New(ErrConfigOption, reason).
		SetSection(section).
		SetOption(option)
}

// ConfigValidationError creates an error for a value the kernel rejects
func ConfigValidationError(section, option string, c Code) *HostError {
	return Wrap(c, ErrConfigValidation, fmt.Sprintf("rejected with %s", c.Name())).
		SetSection(section).
		SetOption(option)
}

// RuntimeError creates a general runtime error
func RuntimeError(message string) *HostError {
	return New(ErrRuntime, message)
}

// RuntimeErrorInit creates an error for initialization failure
func RuntimeErrorInit(component string, err error) *HostError {
	return Wrap(err, ErrRuntimeInit, fmt.Sprintf("failed to initialize %s", component))
}

// StoreError creates an error for a persistence failure
func StoreError(operation string, err error) *HostError {
	return Wrap(err, ErrRuntimeStore, fmt.Sprintf("store %s failed", operation))
}

// RecoverPanic converts a recovered panic value into an error. It must be
// called directly from a deferred function.
func RecoverPanic(r interface{}) *HostError {
	if r == nil {
		return nil
	}
	switch x := r.(type) {
	case runtime.Error:
		return Wrap(x, ErrRuntime, "panic")
	case error:
		return Wrap(x, ErrRuntime, "panic")
	case string:
		return RuntimeError(fmt.Sprintf("panic: %s", x))
	default:
		return RuntimeError(fmt.Sprintf("panic: %v", x))
	}
}

// Is checks if error matches given error category
func Is(err error, code ErrorCode) bool {
	var hostErr *HostError
	if stderrors.As(err, &hostErr) {
		return hostErr.Code == code
	}
	return false
}

// CodeOf extracts the numeric motion code carried by err. A nil error
// yields Good, an error without a code yields false.
func CodeOf(err error) (Code, bool) {
	if err == nil {
		return Good, true
	}
	var c Code
	if stderrors.As(err, &c) {
		return c, true
	}
	return Good, false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	if c, ok := CodeOf(err); ok && c.Group() == GroupConfig {
		return true
	}
	return Is(err, ErrConfigFile) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation)
}

// IsRuntime checks if error is a runtime fault
func IsRuntime(err error) bool {
	if c, ok := CodeOf(err); ok && c.Group() == GroupRuntime {
		return true
	}
	return Is(err, ErrRuntime) ||
		Is(err, ErrRuntimeInit) ||
		Is(err, ErrRuntimeStore)
}

// IsSafety checks if error is an emergency or communication stop
func IsSafety(err error) bool {
	c, ok := CodeOf(err)
	return ok && c.Group() == GroupSafety
}

// IsStatus checks if error is a status mirror code
func IsStatus(err error) bool {
	c, ok := CodeOf(err)
	return ok && c.Group() == GroupStatus
}
