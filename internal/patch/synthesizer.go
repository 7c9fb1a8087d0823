// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch turns the difference between pre-mutation and
// post-rebuild state into portable patch files that the package manager
// can apply: "a/" and "b/" package-relative headers, no absolute paths,
// named "<encoded name>@<version>.patch".
package patch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/whitelabel/internal/fsutil"
)

var (
	// ErrMalformedPatch indicates a rewritten diff that does not parse or
	// has headers without exactly one a/ or b/ prefix.
	ErrMalformedPatch = errors.New("malformed patch")

	// ErrPatchLeaksPath indicates an absolute path survived rewriting.
	ErrPatchLeaksPath = errors.New("patch leaks absolute path")
)

// SourceDir is the subdirectory of the output directory holding
// source-mode patches, so they never replace the build-output patch of
// the same package.
const SourceDir = "source"

// Mode selects what a patch compares.
type Mode int

const (
	// ModeDiff compares a snapshot of the build output with the rebuilt
	// output.
	ModeDiff Mode = iota + 1

	// ModeSource compares artifact backups with the mutated artifacts.
	ModeSource
)

// String returns "diff" or "source".
func (m Mode) String() string {
	switch m {
	case ModeDiff:
		return "diff"
	case ModeSource:
		return "source"
	default:
		return "unknown"
	}
}

// Status is the outcome of synthesizing one package's patch.
type Status int

const (
	// StatusWritten means a patch file was written.
	StatusWritten Status = iota + 1

	// StatusEmpty means there were no differences; nothing was written.
	StatusEmpty

	// StatusSkipped means an input was missing; nothing was written.
	StatusSkipped
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusWritten:
		return "written"
	case StatusEmpty:
		return "empty"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Differ computes the raw unified diff between two paths. An empty string
// with a nil error means no differences.
type Differ interface {
	Diff(ctx context.Context, base, head string) (string, error)
}

// Package is a package of the monorepo.
type Package struct {
	// Name is the package directory name, e.g. "sdk-core".
	Name string

	// Dir is the absolute package root holding package.json.
	Dir string

	// OutputDir is the build output directory relative to Dir, e.g.
	// "dist".
	OutputDir string
}

// OutputPath returns the absolute build output path.
func (p Package) OutputPath() string {
	return filepath.Join(p.Dir, p.OutputDir)
}

// SourceFile is one mutated artifact of a package.
type SourceFile struct {
	// Path is the absolute artifact path.
	Path string

	// Backup is the absolute path of its pre-mutation copy.
	Backup string

	// Rel is the path relative to the package root, e.g.
	// "src/addresses.ts".
	Rel string
}

// Result reports one package's patch.
type Result struct {
	Package  string
	Mode     Mode
	Status   Status
	Reason   string
	Identity Identity

	// Path is the written patch file. Empty unless Status is
	// StatusWritten.
	Path string

	// Files lists the package-relative paths changed by the patch.
	Files []string

	// Lines is the patch's line count.
	Lines int

	// Overwrote is true when a patch file of the same name was replaced.
	Overwrote bool
}

// Options configures a Synthesizer.
type Options struct {
	// OutputDir receives the patch files. Required.
	OutputDir string

	// Defaults is the identity used for packages without a manifest.
	Defaults IdentityDefaults

	// Logger receives progress. Default: slog.Default().
	Logger *slog.Logger
}

// Synthesizer produces patch files.
//
// # Description
//
// DiffTrees and DiffFile are the primitives: run the differ, rewrite
// absolute paths, repair headers, and verify the result. TreePatch and
// SourcePatch build and write one package's patch on top of them.
//
// # Thread Safety
//
// Not designed for concurrent use; a run synthesizes one patch at a time.
type Synthesizer struct {
	differ Differ
	opts   Options
	logger *slog.Logger
}

// New creates a Synthesizer.
func New(differ Differ, opts Options) *Synthesizer {
	if opts.Defaults.Version == "" && opts.Defaults.Scope == "" {
		opts.Defaults = DefaultIdentityDefaults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{differ: differ, opts: opts, logger: logger}
}

// =============================================================================
// Primitives
// =============================================================================

// DiffTrees diffs two directory trees and returns a portable diff.
//
// # Inputs
//
//   - basePath: Absolute snapshot directory.
//   - headPath: Absolute current build output directory.
//   - rel: Package-relative name both trees map to, e.g. "dist".
//
// # Outputs
//
//   - string: The rewritten diff, "" when the trees are identical.
//   - error: Differ failures, ErrMalformedPatch, ErrPatchLeaksPath. Fatal.
//
// # Example
//
//	// snapshot/index.js "v1" vs dist/index.js "v2" yields
//	// --- a/dist/index.js
//	// +++ b/dist/index.js
//	text, err := s.DiffTrees(ctx, snapshot, dist, "dist")
func (s *Synthesizer) DiffTrees(ctx context.Context, basePath, headPath, rel string) (string, error) {
	return s.diff(ctx, basePath, rel, headPath, rel)
}

// DiffFile diffs one backup against its mutated artifact; both sides are
// rewritten to the artifact's package-relative path.
func (s *Synthesizer) DiffFile(ctx context.Context, backupPath, currentPath, rel string) (string, error) {
	return s.diff(ctx, backupPath, rel, currentPath, rel)
}

func (s *Synthesizer) diff(ctx context.Context, base, baseRel, head, headRel string) (string, error) {
	raw, err := s.differ.Diff(ctx, base, head)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	out := Rewrite(raw, base, baseRel, head, headRel)
	if _, err := Verify(out, base, head); err != nil {
		return "", err
	}
	return out, nil
}

// =============================================================================
// Patches
// =============================================================================

// TreePatch writes the build-output patch of pkg.
//
// # Description
//
// A missing snapshot or build output skips the package. Identical trees
// write nothing and are reported as StatusEmpty.
//
// # Outputs
//
//   - *Result: Always set when error is nil.
//   - error: Diff, verification, or write failures. Fatal.
func (s *Synthesizer) TreePatch(ctx context.Context, pkg Package, snapshotPath string) (*Result, error) {
	ctx, span := startPatchSpan(ctx, pkg.Name, ModeDiff)
	defer span.End()

	result, err := s.treePatch(ctx, pkg, snapshotPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("patch.status", result.Status.String()))
	return result, nil
}

func (s *Synthesizer) treePatch(ctx context.Context, pkg Package, snapshotPath string) (*Result, error) {
	logger := s.logger.With("package", pkg.Name, "mode", ModeDiff.String())
	result := &Result{Package: pkg.Name, Mode: ModeDiff}
	head := pkg.OutputPath()

	if !fsutil.IsDir(snapshotPath) {
		logger.Warn("no snapshot found, skipping package", "path", snapshotPath)
		result.Status, result.Reason = StatusSkipped, "no snapshot"
		return result, nil
	}
	if !fsutil.IsDir(head) {
		logger.Warn("build output not found, skipping package", "path", head)
		result.Status, result.Reason = StatusSkipped, "no build output"
		return result, nil
	}

	before, _ := fsutil.CountFiles(snapshotPath)
	after, _ := fsutil.CountFiles(head)
	logger.Debug("comparing build output", "snapshot_files", before, "current_files", after)

	text, err := s.DiffTrees(ctx, snapshotPath, head, pkg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", pkg.Name, err)
	}
	if text == "" {
		logger.Warn("no differences in build output; the build may not pick up source changes")
		recordPatch(ctx, ModeDiff, true)
		result.Status, result.Reason = StatusEmpty, "no differences"
		return result, nil
	}

	return s.write(ctx, logger, result, pkg, s.opts.OutputDir, text)
}

// SourcePatch writes one combined patch of pkg's mutated artifacts, in
// the order given. Files without a backup or without the artifact are
// skipped with a warning.
func (s *Synthesizer) SourcePatch(ctx context.Context, pkg Package, files []SourceFile) (*Result, error) {
	ctx, span := startPatchSpan(ctx, pkg.Name, ModeSource)
	defer span.End()

	result, err := s.sourcePatch(ctx, pkg, files)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("patch.status", result.Status.String()))
	return result, nil
}

func (s *Synthesizer) sourcePatch(ctx context.Context, pkg Package, files []SourceFile) (*Result, error) {
	logger := s.logger.With("package", pkg.Name, "mode", ModeSource.String())
	result := &Result{Package: pkg.Name, Mode: ModeSource}

	var combined strings.Builder
	for _, f := range files {
		if ok, _ := fsutil.Exists(f.Backup); !ok {
			logger.Warn("no backup found, skipping file", "artifact", f.Rel)
			continue
		}
		if ok, _ := fsutil.Exists(f.Path); !ok {
			logger.Warn("artifact not found, skipping file", "artifact", f.Rel)
			continue
		}

		text, err := s.DiffFile(ctx, f.Backup, f.Path, f.Rel)
		if err != nil {
			return nil, fmt.Errorf("diff %s/%s: %w", pkg.Name, f.Rel, err)
		}
		if text == "" {
			logger.Debug("no differences in artifact", "artifact", f.Rel)
			continue
		}
		combined.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			combined.WriteString("\n")
		}
	}

	if combined.Len() == 0 {
		logger.Warn("no differences in source files")
		recordPatch(ctx, ModeSource, true)
		result.Status, result.Reason = StatusEmpty, "no differences"
		return result, nil
	}
	return s.write(ctx, logger, result, pkg, filepath.Join(s.opts.OutputDir, SourceDir), combined.String())
}

// write names and writes a patch. A same-named file is replaced, with a
// warning.
func (s *Synthesizer) write(ctx context.Context, logger *slog.Logger, result *Result, pkg Package, dir, text string) (*Result, error) {
	files, err := Verify(text)
	if err != nil {
		return nil, err
	}

	id := ReadIdentity(pkg.Dir, s.opts.Defaults, logger)
	path := filepath.Join(dir, id.FileName())

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	exists, err := fsutil.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("stat patch: %w", err)
	}
	if exists {
		logger.Warn("overwriting existing patch file", "patch", path)
	}
	if err := fsutil.WriteFileAtomic(path, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("write patch: %w", err)
	}

	result.Status = StatusWritten
	result.Identity = id
	result.Path = path
	result.Files = files
	result.Lines = strings.Count(text, "\n")
	result.Overwrote = exists
	recordPatch(ctx, result.Mode, false)
	logger.Info("patch written", "patch", id.FileName(), "files", len(files), "lines", result.Lines)
	return result, nil
}
