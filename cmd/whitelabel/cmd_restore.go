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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/whitelabel/internal/pipeline"
	"github.com/AleutianAI/whitelabel/internal/session"
	"github.com/AleutianAI/whitelabel/pkg/ux"
)

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore SDK sources from their .backup files",
		Long: `Restores every SDK source the build modifies that still has a .backup
sibling, then deletes the backup. Sources without a backup are left alone.`,
		Args: cobra.NoArgs,
		RunE: a.runRestore,
	}
}

func (a *app) runRestore(cmd *cobra.Command, args []string) error {
	out := a.printer()
	root, err := a.rootDir()
	if err != nil {
		return err
	}
	restored, err := pipeline.RestoreArtifacts(root, a.slog())
	for _, path := range restored {
		out.FileStatus(relTo(root, path), ux.IconSuccess, "restored")
	}
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if len(restored) == 0 {
		out.Info("No backups found; nothing to restore")
		return nil
	}
	out.Success(fmt.Sprintf("%d files restored", len(restored)))
	return nil
}

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove snapshot directories left behind by interrupted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := a.printer()
			root, err := a.rootDir()
			if err != nil {
				return err
			}
			n, err := session.CleanAll(root)
			if err != nil {
				return fmt.Errorf("clean: %w", err)
			}
			if n == 0 {
				out.Info("No snapshots found")
				return nil
			}
			out.Success(fmt.Sprintf("%d snapshot directories removed", n))
			return nil
		},
	}
}
