// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package editor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/whitelabel/internal/compose"
	"github.com/AleutianAI/whitelabel/internal/config"
)

const chainsSource = `export enum ChainId {
  MAINNET = 1,
  GOERLI = 5,
}

export const SUPPORTED_CHAINS = [
  ChainId.MAINNET,
  ChainId.GOERLI,
] as const
`

const chainsWant = `export enum ChainId {
  MAINNET = 1,
  GOERLI = 5,
  TEST_CHAIN = 9999,
}

export const SUPPORTED_CHAINS = [
  ChainId.MAINNET,
  ChainId.GOERLI,
  ChainId.TEST_CHAIN,
] as const
`

func editorDoc() *config.Document {
	return &config.Document{
		ChainID:   9999,
		ChainName: "test chain",
		Addresses: map[string]config.AddressEntry{
			config.RoleWETH:    {Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
			config.RolePermit2: {Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
		},
	}
}

func chainsPlan(path string) Plan {
	return Plan{
		Path: path,
		Edits: []Edit{
			{Declaration: enumDecl, Template: compose.EnumTemplate{}},
			{Declaration: listDecl, Template: compose.ListTemplate{Element: "ChainId.{ident}"}},
		},
		Guard: &Guard{Declaration: enumDecl, Value: "{id}"},
	}
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chains.ts")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func readArtifact(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingBackuper captures the artifact content at backup time.
type recordingBackuper struct {
	seen  map[string]string
	calls int
	err   error
}

func (b *recordingBackuper) Backup(path string) error {
	b.calls++
	if b.err != nil {
		return b.err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if b.seen == nil {
		b.seen = make(map[string]string)
	}
	b.seen[path] = string(data)
	return nil
}

func TestEditor_ApplyWritesAndBacksUp(t *testing.T) {
	path := writeArtifact(t, chainsSource)
	backups := &recordingBackuper{}
	ed := New(Options{Backups: backups, Logger: quietLogger()})

	result, err := ed.Apply(context.Background(), editorDoc(), chainsPlan(path))
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.True(t, result.Written)
	assert.Empty(t, result.Diff)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, ActionInserted, result.Outcomes[0].Action)
	assert.Equal(t, ActionInserted, result.Outcomes[1].Action)

	assert.Equal(t, chainsWant, readArtifact(t, path))
	assert.Equal(t, 1, backups.calls)
	assert.Equal(t, chainsSource, backups.seen[path], "backup must hold the pre-mutation content")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestEditor_SecondRunIsGuarded(t *testing.T) {
	path := writeArtifact(t, chainsSource)
	backups := &recordingBackuper{}
	ed := New(Options{Backups: backups, Logger: quietLogger()})

	_, err := ed.Apply(context.Background(), editorDoc(), chainsPlan(path))
	require.NoError(t, err)

	result, err := ed.Apply(context.Background(), editorDoc(), chainsPlan(path))
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.False(t, result.Written)
	for _, o := range result.Outcomes {
		assert.Equal(t, ActionSkipped, o.Action)
	}
	assert.Equal(t, chainsWant, readArtifact(t, path))
	assert.Equal(t, 1, backups.calls)
}

func TestEditor_GuardSkipsForeignName(t *testing.T) {
	src := "export enum ChainId {\n  ALREADY_THERE = 9999,\n}\n\nexport const SUPPORTED_CHAINS = [ChainId.ALREADY_THERE] as const\n"
	path := writeArtifact(t, src)
	ed := New(Options{Logger: quietLogger()})

	result, err := ed.Apply(context.Background(), editorDoc(), chainsPlan(path))
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, src, readArtifact(t, path))
}

func TestEditor_UnguardedRerunIsUnchanged(t *testing.T) {
	path := writeArtifact(t, chainsSource)
	plan := chainsPlan(path)
	plan.Guard = nil
	backups := &recordingBackuper{}
	ed := New(Options{Backups: backups, Logger: quietLogger()})

	_, err := ed.Apply(context.Background(), editorDoc(), plan)
	require.NoError(t, err)
	result, err := ed.Apply(context.Background(), editorDoc(), plan)
	require.NoError(t, err)

	assert.False(t, result.Changed)
	for _, o := range result.Outcomes {
		assert.Equal(t, ActionUnchanged, o.Action)
	}
	assert.Equal(t, 1, backups.calls, "unchanged artifact is not backed up again")
}

func TestEditor_PreviewWritesNothing(t *testing.T) {
	path := writeArtifact(t, chainsSource)
	backups := &recordingBackuper{}
	ed := New(Options{Preview: true, Backups: backups, Logger: quietLogger()})

	result, err := ed.Apply(context.Background(), editorDoc(), chainsPlan(path))
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.False(t, result.Written)
	assert.Contains(t, result.Diff, "+  TEST_CHAIN = 9999,")
	assert.Contains(t, result.Diff, "+  ChainId.TEST_CHAIN,")
	assert.Equal(t, chainsSource, readArtifact(t, path))
	assert.Zero(t, backups.calls)
}

func TestEditor_BackupFailureAbortsWrite(t *testing.T) {
	path := writeArtifact(t, chainsSource)
	ed := New(Options{Backups: &recordingBackuper{err: errors.New("disk full")}, Logger: quietLogger()})

	_, err := ed.Apply(context.Background(), editorDoc(), chainsPlan(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, chainsSource, readArtifact(t, path))
}

func TestEditor_Errors(t *testing.T) {
	doc := editorDoc()
	ed := New(Options{Logger: quietLogger()})

	t.Run("missing artifact", func(t *testing.T) {
		_, err := ed.Apply(context.Background(), doc, chainsPlan(filepath.Join(t.TempDir(), "nope.ts")))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("kind mismatch", func(t *testing.T) {
		path := writeArtifact(t, chainsSource)
		plan := Plan{Path: path, Edits: []Edit{
			{Declaration: enumDecl, Template: compose.ListTemplate{Element: "X"}},
		}}
		_, err := ed.Apply(context.Background(), doc, plan)
		assert.ErrorIs(t, err, ErrKindMismatch)
	})

	t.Run("missing role", func(t *testing.T) {
		path := writeArtifact(t, switchSource)
		plan := Plan{Path: path, Edits: []Edit{
			{Declaration: switchDecl, Template: compose.SwitchTemplate{Role: config.RoleV3CoreFactory}},
		}}
		_, err := ed.Apply(context.Background(), doc, plan)
		assert.ErrorIs(t, err, compose.ErrMissingRole)
		assert.Equal(t, switchSource, readArtifact(t, path))
	})

	t.Run("declaration missing leaves file intact", func(t *testing.T) {
		src := "export const NOTHING = 1\n"
		path := writeArtifact(t, src)
		_, err := ed.Apply(context.Background(), doc, chainsPlan(path))
		assert.Error(t, err)
		assert.Equal(t, src, readArtifact(t, path))
	})
}

func TestEditor_SwitchPlan(t *testing.T) {
	path := writeArtifact(t, switchSource)
	ed := New(Options{Logger: quietLogger()})
	plan := Plan{Path: path, Edits: []Edit{
		{Declaration: switchDecl, Template: compose.SwitchTemplate{Role: config.RolePermit2}},
	}}

	result, err := ed.Apply(context.Background(), editorDoc(), plan)
	require.NoError(t, err)
	assert.True(t, result.Written)
	assert.Contains(t, readArtifact(t, path),
		"    case 9999:\n      return '0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb'\n    default:\n")
}

func TestPreviewDiff(t *testing.T) {
	diff, err := PreviewDiff("chains.ts", "a\nb\n", "a\nc\n")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- chains.ts")
	assert.Contains(t, diff, "+++ chains.ts (modified)")
	assert.Contains(t, diff, "-b")
	assert.Contains(t, diff, "+c")

	empty, err := PreviewDiff("x", "same\n", "same\n")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
