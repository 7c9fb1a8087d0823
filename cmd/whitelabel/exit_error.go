// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/whitelabel/internal/pipeline"
)

// Process exit codes.
const (
	ExitSuccess   = 0
	ExitUserError = 1
	ExitFatal     = 2
)

// ExitError carries the exit code a command failure maps to.
//
// # Description
//
// Commands return ExitError when the failure class is known at the call
// site, such as a bad flag or an invalid configuration document. Other
// errors are classified by exitCode.
//
// # Example
//
//	return &ExitError{Code: ExitUserError, Err: err}
type ExitError struct {
	// Code is the process exit code.
	Code int

	// Err is the underlying error.
	Err error

	// Reported is true when the command already printed the failure.
	Reported bool
}

// Error returns the wrapped error's message.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// userError wraps err as a user-directed failure.
func userError(err error) *ExitError {
	return &ExitError{Code: ExitUserError, Err: err}
}

// exitCode maps err to a process exit code.
//
// # Outputs
//
//   - int: ExitSuccess for nil, the ExitError code when err carries one,
//     ExitUserError for configuration and option errors, ExitFatal
//     otherwise.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if pipeline.IsUserError(err) {
		return ExitUserError
	}
	return ExitFatal
}

// reported reports whether the failure was already printed.
func reported(err error) bool {
	var ee *ExitError
	return errors.As(err, &ee) && ee.Reported
}
