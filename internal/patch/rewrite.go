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
	"path/filepath"
	"regexp"
	"strings"
)

// Rewrite makes a raw diff between two absolute paths portable.
//
// # Description
//
// git prints an absolute path "/tmp/snap/pkg" as "a/tmp/snap/pkg". Every
// occurrence of basePath is replaced with "a/<baseRel>" and every
// occurrence of headPath with "b/<headRel>"; the longer path goes first
// so a path that prefixes the other (a file and its ".backup") is not
// half-replaced. The substitution leaves prefixes such as "aa/<rel>" or,
// for a file present on one side only, "ab/<rel>" on header lines, which
// RepairHeaders then rewrites.
//
// # Inputs
//
//   - raw: git diff output.
//   - basePath, baseRel: Absolute "old" path and its package-relative form.
//   - headPath, headRel: Absolute "new" path and its package-relative form.
//
// # Outputs
//
//   - string: The diff with a/ and b/ package-relative headers.
func Rewrite(raw, basePath, baseRel, headPath, headRel string) string {
	type sub struct{ from, to string }
	subs := []sub{
		{filepath.ToSlash(basePath), "a/" + filepath.ToSlash(baseRel)},
		{filepath.ToSlash(headPath), "b/" + filepath.ToSlash(headRel)},
	}
	if len(subs[1].from) > len(subs[0].from) {
		subs[0], subs[1] = subs[1], subs[0]
	}

	out := raw
	for _, s := range subs {
		if s.from == "" {
			continue
		}
		out = strings.ReplaceAll(out, s.from, s.to)
	}
	return RepairHeaders(out)
}

// sidePrefix matches a side prefix at the start of a header path token,
// including the damaged forms a substitution can leave behind: "aa/",
// "bb/", "ab/", "ba/" and any run of slashes after the letters.
const sidePrefix = `[ab]{1,2}/+`

var (
	gitHeader    = regexp.MustCompile(`^diff --git ` + sidePrefix + `(.*?) ` + sidePrefix + `(.*?)(\r?\n)?$`)
	oldHeader    = regexp.MustCompile(`^--- ` + sidePrefix)
	newHeader    = regexp.MustCompile(`^\+\+\+ ` + sidePrefix)
	binaryHeader = regexp.MustCompile(`^Binary files (?:` + sidePrefix + `)?(.*?) and (?:` + sidePrefix + `)?(.*?) differ(\r?\n)?$`)
)

// RepairHeaders rewrites the side prefix of every path on the diff, ---,
// +++ and "Binary files" header lines by position: the old path gets
// exactly "a/" and the new path exactly "b/". /dev/null is kept as is and
// content lines are untouched.
func RepairHeaders(diff string) string {
	lines := strings.SplitAfter(diff, "\n")
	for i, line := range lines {
		switch {
		case gitHeader.MatchString(line):
			m := gitHeader.FindStringSubmatch(line)
			lines[i] = "diff --git a/" + m[1] + " b/" + m[2] + m[3]
		case oldHeader.MatchString(line):
			lines[i] = oldHeader.ReplaceAllLiteralString(line, "--- a/")
		case newHeader.MatchString(line):
			lines[i] = newHeader.ReplaceAllLiteralString(line, "+++ b/")
		case binaryHeader.MatchString(line):
			m := binaryHeader.FindStringSubmatch(line)
			lines[i] = "Binary files " + sideToken("a/", m[1]) + " and " + sideToken("b/", m[2]) + " differ" + m[3]
		}
	}
	return strings.Join(lines, "")
}

func sideToken(prefix, path string) string {
	if path == devNull {
		return path
	}
	return prefix + path
}
