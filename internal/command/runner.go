// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package command runs the external tools of a whitelabel run: the
// structural diff (git diff --no-index) and the monorepo build.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Spec describes one subprocess.
type Spec struct {
	// Program is the executable, resolved through PATH.
	Program string

	// Args are passed verbatim, without a shell.
	Args []string

	// Dir is the working directory. Empty uses the current directory.
	Dir string

	// Timeout bounds the process. Zero means no timeout beyond ctx.
	Timeout time.Duration

	// Stream, when set, also receives stdout and stderr as they arrive.
	Stream io.Writer
}

// String returns the command line for logs and errors.
func (s Spec) String() string {
	return strings.TrimSpace(s.Program + " " + strings.Join(s.Args, " "))
}

// Result is the captured outcome of a finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes subprocesses.
//
// # Description
//
// Run blocks until the process exits. A non-zero exit is reported as a
// *CommandError while the Result is still returned, so callers whose tools
// use exit codes as signals (git diff exits 1 on differences) can inspect
// both.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// ExecRunner implements Runner with os/exec.
//
// # Thread Safety
//
// Safe for concurrent use.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner. A nil logger uses slog.Default().
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger}
}

// Run executes spec.
//
// # Outputs
//
//   - *Result: Captured output; nil only when the process never started.
//   - error: *CommandError for start failures (exit -1), timeouts
//     (wrapping ErrTimeout) and non-zero exits.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Program == "" {
		return nil, ErrEmptyCommand
	}
	ctx, span := startRunSpan(ctx, spec.Program, spec.Args)
	defer span.End()

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Program, spec.Args...)
	cmd.Dir = spec.Dir

	var stdout, stderr bytes.Buffer
	if spec.Stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, spec.Stream)
		cmd.Stderr = io.MultiWriter(&stderr, spec.Stream)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	r.logger.Debug("running command", "command", spec.String(), "dir", spec.Dir)
	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: duration,
	}
	recordRun(ctx, spec.Program, result.ExitCode, duration)
	span.SetAttributes(attribute.Int("command.exit_code", result.ExitCode))

	if err == nil {
		return result, nil
	}

	var cmdErr *CommandError
	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		cmdErr = NewCommandError(spec.String(), -1, result.Stderr,
			fmt.Errorf("%w after %v", ErrTimeout, spec.Timeout))
	case errors.As(err, &exitErr):
		cmdErr = NewCommandError(spec.String(), exitErr.ExitCode(), result.Stderr, err)
	default:
		// The process never started: missing binary, bad working dir.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, NewCommandError(spec.String(), -1, "", err)
	}
	span.SetStatus(codes.Error, cmdErr.Error())
	return result, cmdErr
}
