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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	// ManifestName is the package manifest read for patch identity.
	ManifestName = "package.json"

	// DefaultScope is the scope of a synthesized identity.
	DefaultScope = "@uniswap"

	// DefaultVersion is the version of a synthesized identity.
	DefaultVersion = "1.0.0"
)

// IdentityDefaults supplies the synthesized identity used when a package
// has no readable manifest.
type IdentityDefaults struct {
	// Scope prefixes the package directory name, e.g. "@uniswap" gives
	// "@uniswap/sdk-core". Empty gives an unscoped name.
	Scope string

	// Version is used when the manifest is missing or has no version.
	Version string
}

// DefaultIdentityDefaults returns the defaults of the SDK monorepo.
func DefaultIdentityDefaults() IdentityDefaults {
	return IdentityDefaults{Scope: DefaultScope, Version: DefaultVersion}
}

// Identity names a patch file after the package it applies to.
type Identity struct {
	// Name is the package name, e.g. "@uniswap/sdk-core".
	Name string

	// Version is the package version, e.g. "7.8.0".
	Version string

	// Synthesized is true when Name or Version came from the defaults.
	Synthesized bool
}

// EncodedName returns Name with every "/" percent-encoded, the form the
// package manager uses in patch file names.
func (i Identity) EncodedName() string {
	return EncodeName(i.Name)
}

// FileName returns "<encoded name>@<version>.patch".
func (i Identity) FileName() string {
	return i.EncodedName() + "@" + i.Version + ".patch"
}

// EncodeName percent-encodes "/" in a package name.
func EncodeName(name string) string {
	return strings.ReplaceAll(name, "/", "%2F")
}

// synthesize builds the fallback identity of the package in directory pkg.
func (d IdentityDefaults) synthesize(pkg string) Identity {
	name := pkg
	if d.Scope != "" {
		name = strings.TrimSuffix(d.Scope, "/") + "/" + pkg
	}
	version := d.Version
	if version == "" {
		version = DefaultVersion
	}
	return Identity{Name: name, Version: version, Synthesized: true}
}

type manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ReadIdentity reads the identity of the package rooted at pkgDir.
//
// # Description
//
// A missing or unparsable manifest is recoverable: the identity is
// synthesized from defaults and the package directory name, and a warning
// is logged. A manifest missing only one field has that field synthesized.
// A version that is not valid semver is kept but logged.
//
// # Inputs
//
//   - pkgDir: Package root containing package.json.
//   - defaults: Scope and version of the synthesized identity.
//   - logger: Receives fallback warnings. Nil uses slog.Default().
//
// # Outputs
//
//   - Identity: Never empty.
func ReadIdentity(pkgDir string, defaults IdentityDefaults, logger *slog.Logger) Identity {
	if logger == nil {
		logger = slog.Default()
	}
	pkg := filepath.Base(pkgDir)
	fallback := defaults.synthesize(pkg)

	data, err := os.ReadFile(filepath.Join(pkgDir, ManifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("package manifest not found, using synthesized identity",
				"package", pkg, "identity", fallback.Name+"@"+fallback.Version)
		} else {
			logger.Warn("package manifest unreadable, using synthesized identity",
				"package", pkg, "error", err)
		}
		return fallback
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Warn("package manifest unparsable, using synthesized identity",
			"package", pkg, "error", fmt.Errorf("parse %s: %w", ManifestName, err))
		return fallback
	}

	id := Identity{Name: m.Name, Version: m.Version}
	if id.Name == "" {
		id.Name = fallback.Name
		id.Synthesized = true
	}
	if id.Version == "" {
		id.Version = fallback.Version
		id.Synthesized = true
	}
	if !semver.IsValid("v" + id.Version) {
		logger.Warn("package version is not semver", "package", pkg, "version", id.Version)
	}
	return id
}
