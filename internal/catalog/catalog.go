// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog lists the artifacts of the SDK monorepo that a chain
// registration edits, and the packages whose build output is patched.
//
// The catalog is data: each artifact is a set of declarations paired with
// entry templates, consumed by the single locator, composer and editor.
package catalog

import (
	"path/filepath"

	"github.com/AleutianAI/whitelabel/internal/compose"
	"github.com/AleutianAI/whitelabel/internal/config"
	"github.com/AleutianAI/whitelabel/internal/declaration"
	"github.com/AleutianAI/whitelabel/internal/editor"
)

// PackagesDir is the monorepo directory holding the SDK packages.
const PackagesDir = "sdks"

// DefaultOutputDir is the build output directory of every package.
const DefaultOutputDir = "dist"

// Package names.
const (
	SDKCore            = "sdk-core"
	UniversalRouterSDK = "universal-router-sdk"
	Permit2SDK         = "permit2-sdk"
)

// Package is one SDK package.
type Package struct {
	// Name is the directory name under PackagesDir.
	Name string

	// OutputDir is the build output directory relative to the package.
	OutputDir string
}

// Dir returns the package root under root.
func (p Package) Dir(root string) string {
	return filepath.Join(root, PackagesDir, p.Name)
}

// Artifact is one editable source file.
type Artifact struct {
	// Package owns the file.
	Package string

	// Rel is the path relative to the package root.
	Rel string

	// Edits run in order against the file.
	Edits []editor.Edit

	// Guard, when set, skips the whole artifact if the chain id is
	// already registered.
	Guard *editor.Guard

	// Required lists the roles this artifact cannot be rendered without.
	Required []string
}

// Path returns the artifact's absolute path under root.
func (a Artifact) Path(root string) string {
	return filepath.Join(root, PackagesDir, a.Package, filepath.FromSlash(a.Rel))
}

// Plan returns the editor plan of a under root.
func (a Artifact) Plan(root string) editor.Plan {
	return editor.Plan{Path: a.Path(root), Edits: a.Edits, Guard: a.Guard}
}

// =============================================================================
// Declarations
// =============================================================================

var (
	chainIDEnum = declaration.Declaration{
		Name:   "ChainId",
		Kind:   declaration.KindEnumMember,
		Marker: "export enum ChainId {",
	}

	supportedChains = declaration.Declaration{
		Name:       "SUPPORTED_CHAINS",
		Kind:       declaration.KindListElement,
		Marker:     "export const SUPPORTED_CHAINS = [",
		Terminator: "] as const",
	}

	chainToAddresses = declaration.Declaration{
		Name:   "CHAIN_TO_ADDRESSES_MAP",
		Kind:   declaration.KindMapEntry,
		Marker: "export const CHAIN_TO_ADDRESSES_MAP: Record<SupportedChainsType, ChainAddresses> = {",
	}

	chainConfigs = declaration.Declaration{
		Name:   "CHAIN_CONFIGS",
		Kind:   declaration.KindMapEntry,
		Marker: "export const CHAIN_CONFIGS: { [key: number]: ChainConfig } = {",
	}

	permit2Address = declaration.Declaration{
		Name:   "permit2Address",
		Kind:   declaration.KindSwitchCase,
		Marker: "export function permit2Address(chainId?: number): string {",
		Anchor: "default:",
	}
)

// zeroDeployment is the V1_2 router value when none is configured.
var zeroDeployment = &config.AddressEntry{Address: config.ZeroAddress, Deployment: true}

// addressFields is the CHAIN_TO_ADDRESSES_MAP entry, in emission order.
var addressFields = []compose.Field{
	{Property: "v3CoreFactoryAddress", Role: config.RoleV3CoreFactory},
	{Property: "multicallAddress", Role: config.RoleMulticall},
	{Property: "quoterAddress", Role: config.RoleQuoter},
	{Property: "v3MigratorAddress", Role: config.RoleV3Migrator},
	{Property: "nonfungiblePositionManagerAddress", Role: config.RoleNonfungiblePositionManager},
	{Property: "tickLensAddress", Role: config.RoleTickLens},
	{Property: "swapRouter02Address", Role: config.RoleSwapRouter02},
	{Property: "mixedRouteQuoterV1Address", Role: config.RoleMixedRouteQuoterV1},
	{Property: "v4PoolManagerAddress", Role: config.RoleV4PoolManager},
	{Property: "v4PositionManagerAddress", Role: config.RoleV4PositionManager},
	{Property: "v4StateView", Role: config.RoleV4StateView},
	{Property: "v4QuoterAddress", Role: config.RoleV4Quoter},
}

var chainConfigFields = []compose.Field{
	{Property: "weth", Role: config.RoleWETH},
	{Property: "routerConfigs", Children: []compose.Field{
		{
			Property:   "[UniversalRouterVersion.V1_2]",
			Role:       config.RoleUniversalRouterV1_2,
			Deployment: true,
			Default:    zeroDeployment,
		},
		{
			Property:   "[UniversalRouterVersion.V2_0]",
			Role:       config.RoleUniversalRouterV2_0,
			Deployment: true,
		},
	}},
}

// =============================================================================
// Catalog
// =============================================================================

// Packages returns the patched packages in patch order.
func Packages() []Package {
	return []Package{
		{Name: SDKCore, OutputDir: DefaultOutputDir},
		{Name: UniversalRouterSDK, OutputDir: DefaultOutputDir},
		{Name: Permit2SDK, OutputDir: DefaultOutputDir},
	}
}

// Artifacts returns every artifact in edit order. Within a package the
// order is also the file order of its source patch.
func Artifacts() []Artifact {
	return []Artifact{
		{
			Package: SDKCore,
			Rel:     "src/addresses.ts",
			Edits: []editor.Edit{{
				Declaration: chainToAddresses,
				Template:    compose.MapTemplate{Key: "[ChainId.{ident}]", Fields: addressFields},
			}},
			Required: []string{config.RoleV3CoreFactory, config.RoleMulticall, config.RoleQuoter},
		},
		{
			Package: UniversalRouterSDK,
			Rel:     "src/utils/constants.ts",
			Edits: []editor.Edit{{
				Declaration: chainConfigs,
				Template:    compose.MapTemplate{Key: "[{id}]", Fields: chainConfigFields},
			}},
			Required: []string{config.RoleWETH, config.RoleUniversalRouterV2_0},
		},
		{
			Package: Permit2SDK,
			Rel:     "src/constants.ts",
			Edits: []editor.Edit{{
				Declaration: permit2Address,
				Template:    compose.SwitchTemplate{Role: config.RolePermit2},
			}},
			Required: []string{config.RolePermit2},
		},
		{
			Package: SDKCore,
			Rel:     "src/chains.ts",
			Edits: []editor.Edit{
				{Declaration: chainIDEnum, Template: compose.EnumTemplate{}},
				{Declaration: supportedChains, Template: compose.ListTemplate{Element: "ChainId.{ident}"}},
			},
			Guard: &editor.Guard{Declaration: chainIDEnum, Value: "{id}"},
		},
	}
}

// ArtifactsOf returns the artifacts of pkg, in catalog order.
func ArtifactsOf(pkg string) []Artifact {
	var out []Artifact
	for _, a := range Artifacts() {
		if a.Package == pkg {
			out = append(out, a)
		}
	}
	return out
}

// RequiredRoles returns the union of every artifact's required roles, in
// catalog order without duplicates.
func RequiredRoles() []string {
	seen := make(map[string]bool)
	var roles []string
	for _, a := range Artifacts() {
		for _, r := range a.Required {
			if !seen[r] {
				seen[r] = true
				roles = append(roles, r)
			}
		}
	}
	return roles
}
