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
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/whitelabel/internal/command"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gitStyle renders a raw diff the way git prints absolute paths: the
// side prefix followed by the path, leading slash included.
func gitStyle(base, head, file, minus, plus string) string {
	a := "a" + filepath.ToSlash(base) + file
	b := "b" + filepath.ToSlash(head) + file
	return "diff --git " + a + " " + b + "\n" +
		"index 626799f..8c1384d 100644\n" +
		"--- " + a + "\n" +
		"+++ " + b + "\n" +
		"@@ -1 +1 @@\n" +
		"-" + minus + "\n" +
		"+" + plus + "\n"
}

// fakeDiffer renders canned diffs and records the compared paths.
type fakeDiffer struct {
	render func(base, head string) string
	err    error
	calls  [][2]string
}

func (f *fakeDiffer) Diff(_ context.Context, base, head string) (string, error) {
	f.calls = append(f.calls, [2]string{base, head})
	if f.err != nil {
		return "", f.err
	}
	if f.render == nil {
		return "", nil
	}
	return f.render(base, head), nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// =============================================================================
// Rewrite
// =============================================================================

func TestRewrite_Trees(t *testing.T) {
	base := "/tmp/wl/whitelabel-snapshot/1234/sdk-core"
	head := "/repo/sdks/sdk-core/dist"
	raw := gitStyle(base, head, "/index.js", "v1", "v2")

	got := Rewrite(raw, base, "dist", head, "dist")

	want := "diff --git a/dist/index.js b/dist/index.js\n" +
		"index 626799f..8c1384d 100644\n" +
		"--- a/dist/index.js\n" +
		"+++ b/dist/index.js\n" +
		"@@ -1 +1 @@\n" +
		"-v1\n" +
		"+v2\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rewrite mismatch (-want +got):\n%s", diff)
	}
}

func TestRewrite_FileAndBackupShareAPrefix(t *testing.T) {
	current := "/repo/sdks/sdk-core/src/addresses.ts"
	backup := current + ".backup"
	raw := "diff --git a" + backup + " b" + current + "\n" +
		"--- a" + backup + "\n" +
		"+++ b" + current + "\n" +
		"@@ -1 +1,2 @@\n" +
		" a\n" +
		"+b\n"

	got := Rewrite(raw, backup, "src/addresses.ts", current, "src/addresses.ts")

	assert.Contains(t, got, "diff --git a/src/addresses.ts b/src/addresses.ts\n")
	assert.Contains(t, got, "--- a/src/addresses.ts\n")
	assert.Contains(t, got, "+++ b/src/addresses.ts\n")
	assert.NotContains(t, got, ".backup")
	assert.NotContains(t, got, "/repo")
}

func TestRepairHeaders(t *testing.T) {
	in := "diff --git aa/dist/x.js bb/dist/x.js\n" +
		"--- aa/dist/x.js\n" +
		"+++ bb/dist/x.js\n" +
		"Binary files aa/dist/y.png and bb/dist/y.png differ\n" +
		"@@ -1 +1 @@\n" +
		"-aa/ stays in content\n" +
		"+ bb/ stays too\n"

	got := RepairHeaders(in)

	want := "diff --git a/dist/x.js b/dist/x.js\n" +
		"--- a/dist/x.js\n" +
		"+++ b/dist/x.js\n" +
		"Binary files a/dist/y.png and b/dist/y.png differ\n" +
		"@@ -1 +1 @@\n" +
		"-aa/ stays in content\n" +
		"+ bb/ stays too\n"
	assert.Equal(t, want, got)
	assert.Equal(t, want, RepairHeaders(want), "repair is idempotent")
}

func TestRepairHeaders_DoubleSlash(t *testing.T) {
	got := RepairHeaders("--- a//dist/x.js\n+++ b//dist/x.js\n")
	assert.Equal(t, "--- a/dist/x.js\n+++ b/dist/x.js\n", got)
}

func TestRepairHeaders_OneSidedFiles(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "added file",
			in: "diff --git ab/dist/added.js bb/dist/added.js\n" +
				"new file mode 100644\n" +
				"--- /dev/null\n" +
				"+++ bb/dist/added.js\n",
			want: "diff --git a/dist/added.js b/dist/added.js\n" +
				"new file mode 100644\n" +
				"--- /dev/null\n" +
				"+++ b/dist/added.js\n",
		},
		{
			name: "deleted file",
			in: "diff --git aa/dist/gone.js ba/dist/gone.js\n" +
				"deleted file mode 100644\n" +
				"--- aa/dist/gone.js\n" +
				"+++ /dev/null\n",
			want: "diff --git a/dist/gone.js b/dist/gone.js\n" +
				"deleted file mode 100644\n" +
				"--- a/dist/gone.js\n" +
				"+++ /dev/null\n",
		},
		{
			name: "binary added",
			in:   "Binary files /dev/null and bb/dist/logo.png differ\n",
			want: "Binary files /dev/null and b/dist/logo.png differ\n",
		},
		{
			name: "mixed prefixes on old and new lines",
			in:   "--- ba/dist/x.js\n+++ ab/dist/x.js\n",
			want: "--- a/dist/x.js\n+++ b/dist/x.js\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepairHeaders(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, RepairHeaders(got), "repair is idempotent")
		})
	}
}

// =============================================================================
// Verify
// =============================================================================

func TestVerify(t *testing.T) {
	good := "diff --git a/dist/index.js b/dist/index.js\n" +
		"--- a/dist/index.js\n" +
		"+++ b/dist/index.js\n" +
		"@@ -1 +1 @@\n" +
		"-v1\n" +
		"+v2\n"

	files, err := Verify(good, "/tmp/snap")
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/index.js"}, files)
}

func TestVerify_NewFile(t *testing.T) {
	text := "diff --git a/dist/new.js b/dist/new.js\n" +
		"new file mode 100644\n" +
		"index 0000000..8c1384d\n" +
		"--- /dev/null\n" +
		"+++ b/dist/new.js\n" +
		"@@ -0,0 +1 @@\n" +
		"+v2\n"

	files, err := Verify(text)
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/new.js"}, files)
}

func TestVerify_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		forbidden []string
		want      error
	}{
		{
			name:      "absolute path leak",
			text:      "--- a/tmp/snap/index.js\n+++ b/dist/index.js\n@@ -1 +1 @@\n-v1\n+v2\n",
			forbidden: []string{"/tmp/snap"},
			want:      ErrPatchLeaksPath,
		},
		{
			name: "missing prefix",
			text: "--- dist/index.js\n+++ b/dist/index.js\n@@ -1 +1 @@\n-v1\n+v2\n",
			want: ErrMalformedPatch,
		},
		{
			name: "doubled prefix",
			text: "--- a/a/dist/index.js\n+++ b/dist/index.js\n@@ -1 +1 @@\n-v1\n+v2\n",
			want: ErrMalformedPatch,
		},
		{
			name: "no files",
			text: "",
			want: ErrMalformedPatch,
		},
		{
			name: "mixed prefix on git header",
			text: "diff --git ab/dist/new.js b/dist/new.js\n" +
				"new file mode 100644\n" +
				"--- /dev/null\n" +
				"+++ b/dist/new.js\n" +
				"@@ -0,0 +1 @@\n" +
				"+v2\n",
			want: ErrMalformedPatch,
		},
		{
			name: "git header without b path",
			text: "diff --git a/dist/gone.js ba/dist/gone.js\n" +
				"deleted file mode 100644\n" +
				"--- a/dist/gone.js\n" +
				"+++ /dev/null\n" +
				"@@ -1 +0,0 @@\n" +
				"-v1\n",
			want: ErrMalformedPatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify(tt.text, tt.forbidden...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// =============================================================================
// Identity
// =============================================================================

func TestReadIdentity(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	writeFile(t, filepath.Join(dir, ManifestName), `{"name": "@scope/pkg", "version": "2.3.1"}`)

	id := ReadIdentity(dir, DefaultIdentityDefaults(), quietLogger())
	assert.Equal(t, "@scope/pkg", id.Name)
	assert.Equal(t, "2.3.1", id.Version)
	assert.False(t, id.Synthesized)
	assert.Equal(t, "@scope%2Fpkg@2.3.1.patch", id.FileName())
}

func TestReadIdentity_MissingManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "foo")

	id := ReadIdentity(dir, DefaultIdentityDefaults(), quietLogger())
	assert.True(t, id.Synthesized)
	assert.Equal(t, "@uniswap%2Ffoo@1.0.0.patch", id.FileName())

	custom := ReadIdentity(dir, IdentityDefaults{Scope: "@acme/", Version: "0.0.1"}, quietLogger())
	assert.Equal(t, "@acme%2Ffoo@0.0.1.patch", custom.FileName())

	unscoped := ReadIdentity(dir, IdentityDefaults{Version: "3.0.0"}, quietLogger())
	assert.Equal(t, "foo@3.0.0.patch", unscoped.FileName())
}

func TestReadIdentity_Degraded(t *testing.T) {
	t.Run("unparsable", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bar")
		writeFile(t, filepath.Join(dir, ManifestName), `{not json`)

		id := ReadIdentity(dir, DefaultIdentityDefaults(), quietLogger())
		assert.Equal(t, "@uniswap%2Fbar@1.0.0.patch", id.FileName())
	})

	t.Run("name only", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "baz")
		writeFile(t, filepath.Join(dir, ManifestName), `{"name": "multiformats"}`)

		id := ReadIdentity(dir, DefaultIdentityDefaults(), quietLogger())
		assert.Equal(t, "multiformats@1.0.0.patch", id.FileName())
		assert.True(t, id.Synthesized)
	})

	t.Run("non-semver version is kept and logged", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "qux")
		writeFile(t, filepath.Join(dir, ManifestName), `{"name": "qux", "version": "latest"}`)

		var logs bytes.Buffer
		id := ReadIdentity(dir, DefaultIdentityDefaults(), slog.New(slog.NewTextHandler(&logs, nil)))
		assert.Equal(t, "qux@latest.patch", id.FileName())
		assert.Contains(t, logs.String(), "not semver")
	})
}

func TestEncodeName(t *testing.T) {
	assert.Equal(t, "@uniswap%2Fsdk-core", EncodeName("@uniswap/sdk-core"))
	assert.Equal(t, "multiformats", EncodeName("multiformats"))
}

// =============================================================================
// Synthesizer
// =============================================================================

type fixture struct {
	root     string
	pkg      Package
	snapshot string
	out      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	pkgDir := filepath.Join(root, "sdks", "sdk-core")
	writeFile(t, filepath.Join(pkgDir, ManifestName), `{"name": "@uniswap/sdk-core", "version": "7.8.0"}`)
	writeFile(t, filepath.Join(pkgDir, "dist", "index.js"), "v2\n")

	snapshot := filepath.Join(root, "whitelabel-snapshot", "abc", "sdk-core")
	writeFile(t, filepath.Join(snapshot, "index.js"), "v1\n")

	return fixture{
		root:     root,
		pkg:      Package{Name: "sdk-core", Dir: pkgDir, OutputDir: "dist"},
		snapshot: snapshot,
		out:      filepath.Join(root, "whitelabel-patches"),
	}
}

func treeDiffer() *fakeDiffer {
	return &fakeDiffer{render: func(base, head string) string {
		return gitStyle(base, head, "/index.js", "v1", "v2")
	}}
}

func TestTreePatch(t *testing.T) {
	f := newFixture(t)
	s := New(treeDiffer(), Options{OutputDir: f.out, Logger: quietLogger()})

	result, err := s.TreePatch(context.Background(), f.pkg, f.snapshot)
	require.NoError(t, err)

	assert.Equal(t, StatusWritten, result.Status)
	assert.Equal(t, filepath.Join(f.out, "@uniswap%2Fsdk-core@7.8.0.patch"), result.Path)
	assert.Equal(t, []string{"dist/index.js"}, result.Files)
	assert.False(t, result.Overwrote)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "--- a/dist/index.js\n")
	assert.Contains(t, text, "+++ b/dist/index.js\n")
	assert.NotContains(t, text, f.root)

	again, err := s.TreePatch(context.Background(), f.pkg, f.snapshot)
	require.NoError(t, err)
	assert.True(t, again.Overwrote)
}

func TestTreePatch_Empty(t *testing.T) {
	f := newFixture(t)
	s := New(&fakeDiffer{}, Options{OutputDir: f.out, Logger: quietLogger()})

	result, err := s.TreePatch(context.Background(), f.pkg, f.snapshot)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, result.Status)
	assert.Empty(t, result.Path)
	assert.NoDirExists(t, f.out)
}

func TestTreePatch_Skipped(t *testing.T) {
	f := newFixture(t)
	differ := treeDiffer()
	s := New(differ, Options{OutputDir: f.out, Logger: quietLogger()})

	result, err := s.TreePatch(context.Background(), f.pkg, filepath.Join(f.root, "missing"))
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)

	noDist := f.pkg
	noDist.OutputDir = "build"
	result, err = s.TreePatch(context.Background(), noDist, f.snapshot)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)

	assert.Empty(t, differ.calls, "skipped packages are never diffed")
}

func TestTreePatch_DifferFailure(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("git: not found")
	s := New(&fakeDiffer{err: cause}, Options{OutputDir: f.out, Logger: quietLogger()})

	_, err := s.TreePatch(context.Background(), f.pkg, f.snapshot)
	assert.ErrorIs(t, err, cause)
	assert.NoDirExists(t, f.out)
}

func TestSourcePatch(t *testing.T) {
	f := newFixture(t)
	files := []SourceFile{
		{Rel: "src/addresses.ts"},
		{Rel: "src/chains.ts"},
		{Rel: "src/missing.ts"},
	}
	for i := range files {
		files[i].Path = filepath.Join(f.pkg.Dir, files[i].Rel)
		files[i].Backup = files[i].Path + ".backup"
		if files[i].Rel != "src/missing.ts" {
			writeFile(t, files[i].Path, "new\n")
			writeFile(t, files[i].Backup, "old\n")
		}
	}

	differ := &fakeDiffer{render: func(base, head string) string {
		return gitStyle(base, head, "", "old", "new")
	}}
	s := New(differ, Options{OutputDir: f.out, Logger: quietLogger()})

	result, err := s.SourcePatch(context.Background(), f.pkg, files)
	require.NoError(t, err)

	assert.Equal(t, StatusWritten, result.Status)
	assert.Equal(t, filepath.Join(f.out, SourceDir, "@uniswap%2Fsdk-core@7.8.0.patch"), result.Path)
	assert.Equal(t, []string{"src/addresses.ts", "src/chains.ts"}, result.Files, "declaration order is kept")
	assert.Len(t, differ.calls, 2)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), ".backup")
	assert.Less(t,
		strings.Index(string(data), "a/src/addresses.ts"),
		strings.Index(string(data), "a/src/chains.ts"))
}

func TestSourcePatch_NothingToDo(t *testing.T) {
	f := newFixture(t)
	s := New(&fakeDiffer{}, Options{OutputDir: f.out, Logger: quietLogger()})

	result, err := s.SourcePatch(context.Background(), f.pkg, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, result.Status)
}

func TestModeAndStatusStrings(t *testing.T) {
	assert.Equal(t, "diff", ModeDiff.String())
	assert.Equal(t, "source", ModeSource.String())
	assert.Equal(t, "unknown", Mode(0).String())
	assert.Equal(t, "written", StatusWritten.String())
	assert.Equal(t, "empty", StatusEmpty.String())
	assert.Equal(t, "skipped", StatusSkipped.String())
}

// =============================================================================
// Round trip through git
// =============================================================================

func TestDiffTrees_GitRoundTrip(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not available: %v", err)
	}
	root := t.TempDir()
	snapshot := filepath.Join(root, "whitelabel-snapshot", "s1", "sdk-core")
	dist := filepath.Join(root, "sdks", "sdk-core", "dist")
	writeFile(t, filepath.Join(snapshot, "index.js"), "v1\n")
	writeFile(t, filepath.Join(dist, "index.js"), "v2\n")
	writeFile(t, filepath.Join(snapshot, "same.js"), "same\n")
	writeFile(t, filepath.Join(dist, "same.js"), "same\n")
	writeFile(t, filepath.Join(dist, "added.js"), "fresh\n")
	writeFile(t, filepath.Join(snapshot, "gone.js"), "stale\n")

	differ := command.NewGitDiffer(command.NewExecRunner(quietLogger()), 0, quietLogger())
	s := New(differ, Options{OutputDir: filepath.Join(root, "out"), Logger: quietLogger()})

	text, err := s.DiffTrees(context.Background(), snapshot, dist, "dist")
	require.NoError(t, err)
	assert.Contains(t, text, "diff --git a/dist/index.js b/dist/index.js\n")
	assert.Contains(t, text, "--- a/dist/index.js\n")
	assert.Contains(t, text, "+++ b/dist/index.js\n")
	assert.Contains(t, text, "diff --git a/dist/added.js b/dist/added.js\n")
	assert.Contains(t, text, "+++ b/dist/added.js\n")
	assert.Contains(t, text, "diff --git a/dist/gone.js b/dist/gone.js\n")
	assert.Contains(t, text, "--- a/dist/gone.js\n")
	assert.NotContains(t, text, "ab/dist")
	assert.NotContains(t, text, "ba/dist")
	assert.NotContains(t, text, strings.TrimPrefix(filepath.ToSlash(root), "/"))

	files, err := Verify(text)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dist/added.js", "dist/gone.js", "dist/index.js"}, files)

	empty, err := s.DiffTrees(context.Background(), snapshot, snapshot, "dist")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
