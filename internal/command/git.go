// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultDiffTimeout bounds one git diff invocation.
const DefaultDiffTimeout = 5 * time.Minute

// GitDiffer computes unified diffs between two paths with
// "git diff --no-index".
//
// # Description
//
// Neither path needs to be inside a git repository. Paths may be two
// directories or two files. The raw output keeps git's own headers
// ("diff --git a/<path> b/<path>"); rewriting them to portable prefixes is
// the caller's job.
//
// # Thread Safety
//
// Safe for concurrent use.
type GitDiffer struct {
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger
}

// NewGitDiffer creates a GitDiffer. A zero timeout uses
// DefaultDiffTimeout.
func NewGitDiffer(runner Runner, timeout time.Duration, logger *slog.Logger) *GitDiffer {
	if timeout <= 0 {
		timeout = DefaultDiffTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitDiffer{runner: runner, timeout: timeout, logger: logger}
}

// Diff returns the raw unified diff from base to head.
//
// # Description
//
// git reports differences with exit code 1, which is success here. The
// completion signal alone is not trusted:
//
//   - exit 0: no differences, "" returned.
//   - exit 1 with output on stdout: differences, stdout returned.
//   - exit 1 with empty stdout and a message on stderr: failure.
//   - exit 1 with neither: no textual differences.
//   - any other exit, or the tool failing to start: failure.
//
// # Outputs
//
//   - string: The raw diff, "" when the inputs are identical.
//   - error: Wraps ErrDiffFailed and the *CommandError. Fatal.
func (g *GitDiffer) Diff(ctx context.Context, base, head string) (string, error) {
	spec := Spec{
		Program: "git",
		Args: []string{
			"-c", "core.quotepath=false",
			"diff", "--no-index", "--no-color", "--no-ext-diff", "--no-renames",
			base, head,
		},
		Timeout: g.timeout,
	}

	res, err := g.runner.Run(ctx, spec)
	if err == nil {
		return "", nil
	}

	var cmdErr *CommandError
	if res != nil && errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
		if strings.TrimSpace(res.Stdout) != "" {
			return res.Stdout, nil
		}
		if strings.TrimSpace(res.Stderr) == "" {
			g.logger.Debug("diff exited 1 without output", "base", base, "head", head)
			return "", nil
		}
	}
	return "", fmt.Errorf("%w: %w", ErrDiffFailed, err)
}
