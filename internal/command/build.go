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
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// DefaultBuildCommand builds every SDK package of the monorepo.
const DefaultBuildCommand = "yarn g:build --force"

// DefaultBuildTimeout bounds one full build.
const DefaultBuildTimeout = 20 * time.Minute

// BuildConfig configures a Builder.
type BuildConfig struct {
	// Command is split on whitespace and run without a shell.
	// Default: DefaultBuildCommand.
	Command string

	// Dir is the monorepo root.
	Dir string

	// Timeout bounds one build. Default: DefaultBuildTimeout.
	Timeout time.Duration

	// Output, when set, receives the build's output as it runs.
	Output io.Writer
}

// Builder runs the monorepo build.
type Builder struct {
	runner Runner
	config BuildConfig
	logger *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(runner Runner, config BuildConfig, logger *slog.Logger) *Builder {
	if config.Command == "" {
		config.Command = DefaultBuildCommand
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultBuildTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{runner: runner, config: config, logger: logger}
}

// Build runs the build command once.
//
// # Outputs
//
//   - error: ErrEmptyCommand, or a *CommandError with the build's stderr.
//     Fatal.
func (b *Builder) Build(ctx context.Context, label string) error {
	fields := strings.Fields(b.config.Command)
	if len(fields) == 0 {
		return ErrEmptyCommand
	}

	b.logger.Info("running build", "step", label, "command", b.config.Command)
	res, err := b.runner.Run(ctx, Spec{
		Program: fields[0],
		Args:    fields[1:],
		Dir:     b.config.Dir,
		Timeout: b.config.Timeout,
		Stream:  b.config.Output,
	})
	if err != nil {
		return fmt.Errorf("%s build: %w", label, err)
	}
	b.logger.Info("build completed", "step", label, "duration", res.Duration.Round(time.Millisecond))
	return nil
}
