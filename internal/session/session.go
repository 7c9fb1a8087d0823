// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns the on-disk state of one whitelabel run: the
// snapshot set of package build outputs and the backup records of mutated
// artifacts.
//
// Each Session snapshots into its own subdirectory, named by a random id,
// so concurrent sessions (tests, mostly) never collide.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/whitelabel/internal/fsutil"
)

var (
	// ErrNoBuildOutput indicates a package has no build output directory
	// to snapshot. Callers skip the package.
	ErrNoBuildOutput = errors.New("build output not found")

	// ErrNoSnapshot indicates no snapshot was taken for a package.
	ErrNoSnapshot = errors.New("no snapshot for package")

	// ErrSessionClosed indicates the session was cleaned up.
	ErrSessionClosed = errors.New("session closed")
)

const (
	// SnapshotDirName is the directory under the root that holds every
	// session's snapshot subdirectory.
	SnapshotDirName = "whitelabel-snapshot"

	// BackupSuffix is appended to an artifact path to name its backup.
	BackupSuffix = ".backup"
)

// Config configures a Session.
type Config struct {
	// Root is the monorepo root. Required.
	Root string

	// SnapshotBase overrides the directory holding session snapshots.
	// Default: <Root>/whitelabel-snapshot.
	SnapshotBase string

	// Logger receives lifecycle events. Default: slog.Default().
	Logger *slog.Logger
}

// Session tracks the snapshots and backups of one run.
//
// # Description
//
// Snapshot copies a package's build output before mutation. Backup copies
// an artifact to its ".backup" sibling immediately before the artifact's
// first write, and satisfies editor.Backuper. RestoreBackups and Cleanup
// undo both on failure.
//
// # Thread Safety
//
// Methods lock the session, though a run uses it from one goroutine.
//
// # Limitations
//
//   - Snapshots do not follow symbolic links inside build output.
//   - Backups are siblings of the artifact, not inside the session
//     directory, so a crashed run can still be restored by a later
//     "whitelabel restore".
type Session struct {
	id          string
	root        string
	base        string
	snapshotDir string
	logger      *slog.Logger

	mu        sync.Mutex
	snapshots map[string]string
	order     []string
	backups   []string
	closed    bool
}

// New creates a session with a fresh id. No directory is created until the
// first snapshot.
func New(cfg Config) (*Session, error) {
	if cfg.Root == "" {
		return nil, errors.New("session root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	base := cfg.SnapshotBase
	if base == "" {
		base = filepath.Join(root, SnapshotDirName)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	return &Session{
		id:          id,
		root:        root,
		base:        base,
		snapshotDir: filepath.Join(base, id),
		logger:      logger.With("session_id", id),
		snapshots:   make(map[string]string),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Root returns the absolute monorepo root.
func (s *Session) Root() string { return s.root }

// SnapshotDir returns this session's snapshot directory.
func (s *Session) SnapshotDir() string { return s.snapshotDir }

// =============================================================================
// Snapshots
// =============================================================================

// Snapshot copies the build output directory of pkg into the session.
//
// # Inputs
//
//   - pkg: Package name, also the snapshot subdirectory name.
//   - outputDir: Absolute path of the package's build output.
//
// # Outputs
//
//   - string: The snapshot path.
//   - error: ErrNoBuildOutput when outputDir is missing (recoverable; the
//     package is skipped). Copy errors are fatal.
func (s *Session) Snapshot(pkg, outputDir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}

	if !fsutil.IsDir(outputDir) {
		s.logger.Warn("build output not found, skipping snapshot", "package", pkg, "path", outputDir)
		return "", fmt.Errorf("%w: %s", ErrNoBuildOutput, outputDir)
	}

	dst := filepath.Join(s.snapshotDir, pkg)
	if err := os.RemoveAll(dst); err != nil {
		return "", fmt.Errorf("clear snapshot %s: %w", pkg, err)
	}
	if err := os.MkdirAll(s.snapshotDir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.CopyFS(dst, os.DirFS(outputDir)); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", pkg, err)
	}

	if _, seen := s.snapshots[pkg]; !seen {
		s.order = append(s.order, pkg)
	}
	s.snapshots[pkg] = dst
	s.logger.Info("snapshotted build output", "package", pkg)
	return dst, nil
}

// SnapshotPath returns the snapshot of pkg, or ErrNoSnapshot.
func (s *Session) SnapshotPath(pkg string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.snapshots[pkg]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSnapshot, pkg)
	}
	return path, nil
}

// Snapshots returns the snapshotted package names in snapshot order.
func (s *Session) Snapshots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Cleanup removes this session's snapshot directory, and the snapshot base
// when no other session is using it. Safe to call more than once.
func (s *Session) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.snapshots = make(map[string]string)
	s.order = nil

	if err := os.RemoveAll(s.snapshotDir); err != nil {
		return fmt.Errorf("remove snapshots: %w", err)
	}
	// Fails harmlessly when another session still has a directory there.
	if err := os.Remove(s.base); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("snapshot base kept", "path", s.base, "reason", err)
	}
	s.logger.Debug("snapshots removed", "path", s.snapshotDir)
	return nil
}

// CleanAll removes every session's snapshot directory under root and
// returns how many were removed.
func CleanAll(root string) (int, error) {
	base := filepath.Join(root, SnapshotDirName)
	entries, err := os.ReadDir(base)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read snapshot base: %w", err)
	}
	if err := os.RemoveAll(base); err != nil {
		return 0, fmt.Errorf("remove snapshot base: %w", err)
	}
	return len(entries), nil
}

// =============================================================================
// Backups
// =============================================================================

// BackupPath returns the backup sibling of path.
func BackupPath(path string) string {
	return path + BackupSuffix
}

// Backup copies path to its backup sibling before the first write.
//
// # Description
//
// A second Backup of the same path within the session is a no-op, so the
// record always holds the pre-mutation content. A backup left behind by an
// earlier interrupted run is kept rather than overwritten: it holds the
// older original, and the artifact on disk may already be mutated.
//
// # Outputs
//
//   - error: Copy errors, fatal.
func (s *Session) Backup(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if slices.Contains(s.backups, path) {
		return nil
	}

	backup := BackupPath(path)
	exists, err := fsutil.Exists(backup)
	if err != nil {
		return fmt.Errorf("stat backup: %w", err)
	}
	if exists {
		s.logger.Warn("keeping backup from an earlier run", "artifact", path, "backup", backup)
	} else if err := fsutil.CopyFile(path, backup); err != nil {
		return fmt.Errorf("backup %s: %w", path, err)
	}

	s.backups = append(s.backups, path)
	s.logger.Debug("artifact backed up", "artifact", path)
	return nil
}

// BackedUp returns the artifacts backed up in this session, in order.
func (s *Session) BackedUp() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.backups)
}

// RestoreBackups restores each path from its backup and deletes the
// backup. Only paths backed up in this session are touched: a backup kept
// by an earlier run belongs to that run and is left alone. Every path is
// attempted; the errors are joined.
func (s *Session) RestoreBackups(paths []string) error {
	s.mu.Lock()
	owned := slices.DeleteFunc(slices.Clone(paths), func(p string) bool {
		return !slices.Contains(s.backups, p)
	})
	s.mu.Unlock()

	var errs []error
	for _, path := range owned {
		restored, err := RestoreFile(path)
		if err != nil {
			s.logger.Error("restore failed", "artifact", path, "error", err)
			errs = append(errs, err)
			continue
		}
		if restored {
			s.logger.Info("artifact restored", "artifact", path)
		}
	}

	s.mu.Lock()
	s.backups = slices.DeleteFunc(s.backups, func(p string) bool {
		return slices.Contains(owned, p)
	})
	s.mu.Unlock()
	return errors.Join(errs...)
}

// RestoreFile copies the backup of path over path and deletes the backup.
//
// # Outputs
//
//   - bool: False when no backup exists.
//   - error: Copy or remove errors.
func RestoreFile(path string) (bool, error) {
	backup := BackupPath(path)
	exists, err := fsutil.Exists(backup)
	if err != nil {
		return false, fmt.Errorf("stat backup: %w", err)
	}
	if !exists {
		return false, nil
	}
	if err := fsutil.CopyFile(backup, path); err != nil {
		return false, fmt.Errorf("restore %s: %w", path, err)
	}
	if err := os.Remove(backup); err != nil {
		return true, fmt.Errorf("remove backup %s: %w", backup, err)
	}
	return true, nil
}
