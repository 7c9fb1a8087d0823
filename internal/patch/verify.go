// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

const devNull = "/dev/null"

// Verify parses a rewritten diff and checks it is portable.
//
// # Description
//
// Every file must carry an "a/" original name and a "b/" new name (or
// /dev/null for additions and deletions), with no doubled prefix. The
// same holds for both paths of the "diff --git" line. No file
// name or extended header may contain any of the forbidden absolute
// paths, with or without their leading slash.
//
// # Inputs
//
//   - text: The rewritten diff.
//   - forbidden: Absolute paths that must not appear in headers.
//
// # Outputs
//
//   - []string: Package-relative paths of the changed files, in diff order.
//   - error: ErrMalformedPatch or ErrPatchLeaksPath.
func Verify(text string, forbidden ...string) ([]string, error) {
	files, err := diff.ParseMultiFileDiff([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPatch, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no file sections", ErrMalformedPatch)
	}

	needles := make([]string, 0, 2*len(forbidden))
	for _, p := range forbidden {
		p = filepath.ToSlash(p)
		if p == "" || p == "/" {
			continue
		}
		needles = append(needles, p, strings.TrimPrefix(p, "/"))
	}

	paths := make([]string, 0, len(files))
	for _, fd := range files {
		if err := checkName(fd.OrigName, "a/"); err != nil {
			return nil, err
		}
		if err := checkName(fd.NewName, "b/"); err != nil {
			return nil, err
		}
		if err := checkGitHeader(fd.Extended); err != nil {
			return nil, err
		}
		headers := append([]string{fd.OrigName, fd.NewName}, fd.Extended...)
		for _, h := range headers {
			for _, n := range needles {
				if strings.Contains(h, n) {
					return nil, fmt.Errorf("%w: %q in %q", ErrPatchLeaksPath, n, h)
				}
			}
		}

		switch {
		case fd.NewName != "" && fd.NewName != devNull:
			paths = append(paths, strings.TrimPrefix(fd.NewName, "b/"))
		case fd.OrigName != "" && fd.OrigName != devNull:
			paths = append(paths, strings.TrimPrefix(fd.OrigName, "a/"))
		}
	}
	return paths, nil
}

func checkName(name, prefix string) error {
	if name == "" || name == devNull {
		return nil
	}
	if !strings.HasPrefix(name, prefix) {
		return fmt.Errorf("%w: %q lacks %q prefix", ErrMalformedPatch, name, prefix)
	}
	side := prefix[:1]
	if strings.HasPrefix(name, prefix+side+"/") || strings.HasPrefix(name, prefix+"/") {
		return fmt.Errorf("%w: doubled prefix in %q", ErrMalformedPatch, name)
	}
	return nil
}

// checkGitHeader checks the two paths of the "diff --git" extended header,
// when present.
func checkGitHeader(extended []string) error {
	for _, line := range extended {
		rest, ok := strings.CutPrefix(line, "diff --git ")
		if !ok {
			continue
		}
		i := strings.LastIndex(rest, " b/")
		if i < 0 {
			return fmt.Errorf("%w: %q lacks a %q path", ErrMalformedPatch, line, "b/")
		}
		if err := checkName(rest[:i], "a/"); err != nil {
			return err
		}
		return checkName(rest[i+1:], "b/")
	}
	return nil
}
