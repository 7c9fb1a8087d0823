// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package editor applies composed entries to declarations inside source
// artifacts: insert when absent, replace when present, never duplicate.
//
// Upsert is the pure text primitive. Editor wraps it with the artifact
// lifecycle: read once, run every declaration edit in memory, back up the
// original, and write once (or, in preview mode, only log the diff).
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/whitelabel/internal/compose"
	"github.com/AleutianAI/whitelabel/internal/config"
	"github.com/AleutianAI/whitelabel/internal/declaration"
	"github.com/AleutianAI/whitelabel/internal/fsutil"
)

// =============================================================================
// Plan
// =============================================================================

// Edit pairs a declaration with the template that renders its entry.
type Edit struct {
	Declaration declaration.Declaration
	Template    compose.Template
}

// Plan lists the edits of one artifact, applied in order.
type Plan struct {
	// Path is the artifact's absolute path.
	Path string

	// Edits run in order against the same in-memory text.
	Edits []Edit

	// Guard, when set, turns the whole plan into a logged no-op if the
	// guarded enum already holds the chain id.
	Guard *Guard
}

// Outcome is the result of one declaration edit.
type Outcome struct {
	Declaration string
	Kind        declaration.Kind
	Action      Action
}

// Result describes what Apply did to one artifact.
type Result struct {
	// Path is the artifact path.
	Path string

	// Outcomes holds one entry per edit, in plan order.
	Outcomes []Outcome

	// Changed is true when the final text differs from the original.
	Changed bool

	// Written is true when the artifact was written to disk.
	Written bool

	// Diff is the unified diff of the change. Always computed in preview
	// mode, empty otherwise.
	Diff string
}

// =============================================================================
// Editor
// =============================================================================

// Backuper records an artifact's pre-mutation content before its first
// write.
type Backuper interface {
	Backup(path string) error
}

// Options configures an Editor.
type Options struct {
	// Preview computes and logs every change without touching disk.
	Preview bool

	// Backups receives each artifact before it is first written. Nil
	// disables backups.
	Backups Backuper

	// Logger receives progress and preview diffs. Default: slog.Default().
	Logger *slog.Logger
}

// Editor applies plans to artifacts. One artifact is edited at a time; an
// Editor is not meant for concurrent use.
type Editor struct {
	opts   Options
	logger *slog.Logger
}

// New creates an Editor.
func New(opts Options) *Editor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{opts: opts, logger: logger}
}

// Apply runs plan against its artifact.
//
// # Description
//
// Reads the artifact once, evaluates the guard against the original text,
// composes and upserts every edit in memory, then writes the result once.
// The backup is taken immediately before that write. Unchanged artifacts
// are neither backed up nor written. In preview mode the unified diff is
// logged and returned instead.
//
// # Inputs
//
//   - ctx: Carries the trace span.
//   - doc: Validated configuration document.
//   - plan: The artifact and its edits.
//
// # Outputs
//
//   - *Result: Per-edit outcomes.
//   - error: Any locator, composer, backup or write error. All fatal.
func (e *Editor) Apply(ctx context.Context, doc *config.Document, plan Plan) (*Result, error) {
	ctx, span := startApplySpan(ctx, plan.Path, e.opts.Preview)
	defer span.End()

	result, err := e.apply(ctx, doc, plan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("artifact.changed", result.Changed))
	return result, nil
}

func (e *Editor) apply(ctx context.Context, doc *config.Document, plan Plan) (*Result, error) {
	logger := e.logger.With("artifact", plan.Path)

	info, err := os.Stat(plan.Path)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", plan.Path, err)
	}
	data, err := os.ReadFile(plan.Path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	original := string(data)
	result := &Result{Path: plan.Path}

	if plan.Guard != nil {
		value := compose.Expand(plan.Guard.Value, doc)
		present, err := EnumHasValue(original, plan.Guard.Declaration, value)
		if err != nil {
			return nil, err
		}
		if present {
			logger.Info("chain id already registered, skipping artifact",
				"declaration", plan.Guard.Declaration.Name, "chain_id", value)
			for _, edit := range plan.Edits {
				result.Outcomes = append(result.Outcomes, Outcome{
					Declaration: edit.Declaration.Name,
					Kind:        edit.Declaration.Kind,
					Action:      ActionSkipped,
				})
				recordEdit(ctx, edit.Declaration.Kind.String(), ActionSkipped)
			}
			return result, nil
		}
	}

	text := original
	for _, edit := range plan.Edits {
		if edit.Template.Kind() != edit.Declaration.Kind {
			return nil, fmt.Errorf("declaration %s: %w: %s template for %s",
				edit.Declaration.Name, ErrKindMismatch, edit.Template.Kind(), edit.Declaration.Kind)
		}
		entry, err := compose.ComposeEntry(doc, edit.Template)
		if err != nil {
			return nil, fmt.Errorf("declaration %s: %w", edit.Declaration.Name, err)
		}

		var action Action
		text, action, err = Upsert(text, edit.Declaration, entry)
		if err != nil {
			return nil, err
		}
		logger.Debug("declaration edited",
			"declaration", edit.Declaration.Name, "kind", edit.Declaration.Kind.String(),
			"key", entry.Key, "action", action.String())
		result.Outcomes = append(result.Outcomes, Outcome{
			Declaration: edit.Declaration.Name,
			Kind:        edit.Declaration.Kind,
			Action:      action,
		})
		recordEdit(ctx, edit.Declaration.Kind.String(), action)
	}

	result.Changed = text != original
	if !result.Changed {
		logger.Info("artifact already up to date")
		return result, nil
	}

	if e.opts.Preview {
		diff, err := PreviewDiff(plan.Path, original, text)
		if err != nil {
			return nil, err
		}
		result.Diff = diff
		logger.Info("[preview] would modify artifact", "diff_lines", strings.Count(diff, "\n"))
		return result, nil
	}

	if e.opts.Backups != nil {
		if err := e.opts.Backups.Backup(plan.Path); err != nil {
			return nil, fmt.Errorf("backup artifact: %w", err)
		}
	}
	if err := fsutil.WriteFileAtomic(plan.Path, []byte(text), info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	result.Written = true
	logger.Info("artifact modified", "edits", len(result.Outcomes))
	return result, nil
}

// PreviewDiff renders the change from before to after as a unified diff
// with three lines of context.
func PreviewDiff(path, before, after string) (string, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path,
		ToFile:   path + " (modified)",
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("render preview diff: %w", err)
	}
	return diff, nil
}
