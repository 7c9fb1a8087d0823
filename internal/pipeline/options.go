// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/whitelabel/internal/command"
	"github.com/AleutianAI/whitelabel/internal/patch"
)

// Defaults of a run, relative to the monorepo root.
const (
	DefaultConfigFile = "whitelabel-config.json"
	DefaultOutputDir  = "whitelabel-patches"
)

// ErrInvalidOptions indicates run options that fail validation.
var ErrInvalidOptions = errors.New("invalid options")

var optionsValidate = validator.New(validator.WithRequiredStructEnabled())

// Options configures one run.
type Options struct {
	// Root is the monorepo root.
	Root string `validate:"required"`

	// ConfigPath is the configuration document. Relative paths are
	// resolved against Root.
	ConfigPath string `validate:"required"`

	// OutputDir receives the patch files. Relative paths are resolved
	// against Root.
	OutputDir string `validate:"required"`

	// BuildCommand builds every package. Required unless SkipBuild.
	BuildCommand string `validate:"required_if=SkipBuild false"`

	// BuildTimeout bounds each build. Zero uses the command default.
	BuildTimeout time.Duration `validate:"gte=0"`

	// DiffTimeout bounds each diff. Zero uses the command default.
	DiffTimeout time.Duration `validate:"gte=0"`

	// DryRun previews every mutation and writes nothing.
	DryRun bool

	// SourcePatch also writes source-mode patches.
	SourcePatch bool

	// SkipBuild uses the build output already on disk for the baseline
	// and does not rebuild. Patches then only cover source mode
	// meaningfully.
	SkipBuild bool

	// DefaultScope and DefaultVersion name packages without a manifest.
	DefaultScope   string
	DefaultVersion string `validate:"omitempty,semver"`

	// BuildOutput receives build output as it runs. Nil discards it.
	BuildOutput io.Writer `validate:"-"`

	// Logger receives progress. Default: slog.Default().
	Logger *slog.Logger `validate:"-"`
}

// DefaultOptions returns the options of a plain run in root.
func DefaultOptions(root string) Options {
	return Options{
		Root:           root,
		ConfigPath:     DefaultConfigFile,
		OutputDir:      DefaultOutputDir,
		BuildCommand:   command.DefaultBuildCommand,
		BuildTimeout:   command.DefaultBuildTimeout,
		DiffTimeout:    command.DefaultDiffTimeout,
		DefaultScope:   patch.DefaultScope,
		DefaultVersion: patch.DefaultVersion,
	}
}

// Validate checks the options.
//
// # Outputs
//
//   - error: nil, or ErrInvalidOptions naming each offending field.
func (o Options) Validate() error {
	err := optionsValidate.Struct(o)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q (got: %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(parts, "; "))
}

// resolved returns o with absolute paths and defaults filled in.
func (o Options) resolved() (Options, error) {
	root, err := filepath.Abs(o.Root)
	if err != nil {
		return o, fmt.Errorf("resolve root: %w", err)
	}
	o.Root = root
	o.ConfigPath = underRoot(root, o.ConfigPath)
	o.OutputDir = underRoot(root, o.OutputDir)
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o, nil
}

func underRoot(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

func (o Options) identityDefaults() patch.IdentityDefaults {
	return patch.IdentityDefaults{Scope: o.DefaultScope, Version: o.DefaultVersion}
}
