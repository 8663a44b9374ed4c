// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package environment

import (
	"errors"
	"fmt"
	"strings"
)

// ExitCode is the coarse outcome reported to the command layer.
type ExitCode int

// Exit codes exposed to the shell.
const (
	ExitSuccess   ExitCode = 0 // Operation completed successfully
	ExitInvalid   ExitCode = 1 // Nothing to operate on (no running environment, bad arguments)
	ExitException ExitCode = 2 // Operation failed
)

// Sentinel errors for environment management.
var (
	// Precondition errors
	ErrInvalidEnvironment  = errors.New("invalid environment")
	ErrInvalidState        = errors.New("invalid environment state")
	ErrUnsupportedType     = errors.New("unsupported environment type")
	ErrMissingRequirements = errors.New("missing system requirements")

	// Registry errors
	ErrDuplicateEnvironment = errors.New("environment already registered")
	ErrAlreadyActive        = errors.New("another environment is already active")
	ErrNotFound             = errors.New("environment not found")
	ErrNoActiveEnvironment  = errors.New("no running environment")

	// Infrastructure errors
	ErrFilesystem        = errors.New("filesystem operation failed")
	ErrSubprocessFailure = errors.New("subprocess exited with a non-zero status")
)

// InvalidEnvironmentError reports a violated precondition with a message
// meant to be shown to the user as-is.
type InvalidEnvironmentError struct {
	Message string
}

// NewInvalidEnvironmentError builds an InvalidEnvironmentError from a format string.
func NewInvalidEnvironmentError(format string, args ...any) *InvalidEnvironmentError {
	return &InvalidEnvironmentError{Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *InvalidEnvironmentError) Error() string {
	return e.Message
}

// Unwrap returns ErrInvalidEnvironment.
func (e *InvalidEnvironmentError) Unwrap() error {
	return ErrInvalidEnvironment
}

// DuplicateEnvironmentError is returned when registering a name twice.
type DuplicateEnvironmentError struct {
	Name string
}

// Error implements the error interface.
func (e *DuplicateEnvironmentError) Error() string {
	return fmt.Sprintf("An environment named %q is already registered.", e.Name)
}

// Unwrap returns ErrDuplicateEnvironment.
func (e *DuplicateEnvironmentError) Unwrap() error {
	return ErrDuplicateEnvironment
}

// AlreadyActiveError is returned when activating an environment while
// another one is running.
type AlreadyActiveError struct {
	Requested string
	Active    string
}

// Error implements the error interface.
func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("Unable to start %q while the environment %q is running.", e.Requested, e.Active)
}

// Unwrap returns ErrAlreadyActive.
func (e *AlreadyActiveError) Unwrap() error {
	return ErrAlreadyActive
}

// InvalidStateError is returned when an operation is not allowed in the
// environment's current state.
type InvalidStateError struct {
	Name    string
	Message string
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return e.Message
}

// Unwrap returns ErrInvalidState.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// NotFoundError is returned when no registered environment matches.
type NotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("There is no environment named %q.", e.Name)
}

// Unwrap returns ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NoActiveEnvironmentError is returned by commands that need a running environment.
type NoActiveEnvironmentError struct{}

// Error implements the error interface.
func (e *NoActiveEnvironmentError) Error() string {
	return "There is no running environment."
}

// Unwrap returns ErrNoActiveEnvironment.
func (e *NoActiveEnvironmentError) Unwrap() error {
	return ErrNoActiveEnvironment
}

// UnsupportedTypeError is returned for types without a configuration template.
type UnsupportedTypeError struct {
	Type string
}

// Error implements the error interface.
func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("The environment type %q is not supported.", e.Type)
}

// Unwrap returns ErrUnsupportedType.
func (e *UnsupportedTypeError) Unwrap() error {
	return ErrUnsupportedType
}

// FilesystemError wraps an I/O failure with the operation and path involved.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FilesystemError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both ErrFilesystem and the underlying cause.
func (e *FilesystemError) Unwrap() []error {
	return []error{ErrFilesystem, e.Err}
}

// SubprocessError reports a non-zero exit from an external binary.
type SubprocessError struct {
	Command  string
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *SubprocessError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Unwrap returns ErrSubprocessFailure.
func (e *SubprocessError) Unwrap() error {
	return ErrSubprocessFailure
}

// MissingRequirementsError lists the mandatory binaries absent from PATH.
type MissingRequirementsError struct {
	Missing []string
}

// Error implements the error interface.
func (e *MissingRequirementsError) Error() string {
	return fmt.Sprintf("Missing mandatory requirements: %s.", strings.Join(e.Missing, ", "))
}

// Unwrap returns ErrMissingRequirements.
func (e *MissingRequirementsError) Unwrap() error {
	return ErrMissingRequirements
}

// ExitCodeFor maps an error returned by a core operation to an ExitCode.
//
// A nil error is ExitSuccess, the absence of a running environment is
// ExitInvalid, and every other failure is ExitException.
func ExitCodeFor(err error) ExitCode {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrNoActiveEnvironment):
		return ExitInvalid
	default:
		return ExitException
	}
}
