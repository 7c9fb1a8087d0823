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
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/whitelabel/internal/command"
	"github.com/AleutianAI/whitelabel/internal/config"
	"github.com/AleutianAI/whitelabel/internal/patch"
	"github.com/AleutianAI/whitelabel/internal/pipeline"
	"github.com/AleutianAI/whitelabel/internal/resilience"
	"github.com/AleutianAI/whitelabel/pkg/ux"
)

// RestorePrompt is asked after a successful build.
const RestorePrompt = "Restore original files?"

func newBuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Inject the configured chain, rebuild and write patches",
		Long: `Builds every package, snapshots the build output, injects the chain
from the configuration document into the SDK sources, rebuilds, and writes
one patch per package. Any failure restores the original sources.

Afterwards you are asked whether to restore the original sources. Answering
no keeps the modified sources and their .backup files; run
'whitelabel restore' later to undo the change.`,
		Args: cobra.NoArgs,
		RunE: a.runBuild,
	}
}

// runBuild runs the pipeline and prints its report.
func (a *app) runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := a.printer()

	opts, err := a.options(cmd)
	if err != nil {
		return err
	}
	p, err := pipeline.New(opts, a.deps)
	if err != nil {
		return err
	}

	out.Title("Whitelabel Build")
	if opts.DryRun {
		out.Info("[DRY RUN MODE] No files will be modified")
	}

	report, err := p.Run(ctx)
	if report != nil {
		a.printReport(out, report, opts.Root)
	}
	if err != nil {
		return a.reportFailure(out, err)
	}
	if report.Preview {
		out.Success("Dry run completed - no changes made")
		return nil
	}

	restore, err := a.newPrompter(a.slog()).Confirm(ctx, RestorePrompt)
	if err != nil {
		return fmt.Errorf("restore prompt: %w", err)
	}
	if !restore {
		out.Success("Done! Modified files kept. Patches available in " + report.OutputDir)
		return nil
	}
	if _, err := pipeline.RestoreArtifacts(opts.Root, a.slog()); err != nil {
		return fmt.Errorf("restore original files: %w", err)
	}
	out.Success("Files restored. Patches are available in " + report.OutputDir)
	return nil
}

func (a *app) printReport(out *ux.Printer, r *pipeline.Report, root string) {
	out.Info(fmt.Sprintf("Chain %s (ID: %d, identifier %s)", r.ChainName, r.ChainID, r.Identifier))
	if r.SessionID != "" {
		out.Muted("session " + r.SessionID)
	}

	for _, res := range r.Artifacts {
		rel := relTo(root, res.Path)
		switch {
		case res.Changed && r.Preview:
			out.FileStatus(rel, ux.IconArrow, "would change")
			fmt.Fprint(a.stdout, res.Diff)
		case res.Changed:
			out.FileStatus(rel, ux.IconSuccess, "modified")
		default:
			out.FileStatus(rel, ux.IconBullet, "unchanged")
		}
	}

	if len(r.Patches) == 0 {
		return
	}
	var written, empty, skipped int
	for _, res := range r.Patches {
		name := fmt.Sprintf("%s (%s)", res.Package, res.Mode)
		switch res.Status {
		case patch.StatusWritten:
			written++
			out.FileStatus(relTo(root, res.Path), ux.IconSuccess, fmt.Sprintf("%s, %d lines", res.Mode, res.Lines))
		case patch.StatusEmpty:
			empty++
			out.FileStatus(name, ux.IconWarning, "no differences")
		case patch.StatusSkipped:
			skipped++
			out.FileStatus(name, ux.IconPending, res.Reason)
		}
	}
	out.Summary(written, empty, skipped)
}

// reportFailure prints err and marks it reported.
func (a *app) reportFailure(out *ux.Printer, err error) error {
	var verr *config.ValidationError
	var serr *resilience.SagaError
	switch {
	case errors.As(err, &verr):
		printValidation(out, verr)
	case errors.As(err, &serr):
		if stderr := command.ExtractStderr(serr.Err); stderr != "" {
			out.Error(fmt.Sprintf("step %s failed", serr.Step))
			out.Box("Command output", stderr)
		} else {
			out.Error(fmt.Sprintf("step %s failed: %v", serr.Step, serr.Err))
		}
		if serr.RolledBack() {
			out.Info("Original files restored")
		} else {
			out.WarningBox("Rollback incomplete",
				"Some files could not be restored. Run 'whitelabel restore' to retry.")
		}
	default:
		out.Error(err.Error())
	}
	if a.logger != nil {
		if path := a.logger.FilePath(); path != "" {
			out.Info("Full log: " + path)
		}
	}
	return &ExitError{Code: exitCode(err), Err: err, Reported: true}
}

func printValidation(out *ux.Printer, verr *config.ValidationError) {
	out.Error("invalid configuration")
	for _, f := range verr.Fields {
		out.Info("  " + f.String())
	}
}

// relTo returns path relative to root, or path when it lies outside.
func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
