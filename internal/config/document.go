// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the whitelabel configuration document:
// the chain identity and the bag of deployed contract addresses that are
// injected into the SDK sources.
//
// A document is created once per run and is read-only afterwards. Callers
// must validate it before handing it to any mutating component.
package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ZeroAddress is the placeholder address for unset deployment roles.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Address roles known to the SDK sources.
const (
	RoleV2Factory                  = "v2Factory"
	RoleV2Router                   = "v2Router"
	RoleV3CoreFactory              = "v3CoreFactory"
	RoleMulticall                  = "multicall"
	RoleQuoter                     = "quoter"
	RoleNonfungiblePositionManager = "nonfungiblePositionManager"
	RoleV3Migrator                 = "v3Migrator"
	RoleSwapRouter02               = "swapRouter02"
	RoleTickLens                   = "tickLens"
	RoleMixedRouteQuoterV1         = "mixedRouteQuoterV1"
	RoleUniversalRouterV1_2        = "universalRouterV1_2"
	RoleUniversalRouterV2_0        = "universalRouterV2_0"
	RoleWETH                       = "weth"
	RolePermit2                    = "permit2"
	RoleV4PoolManager              = "v4PoolManager"
	RoleV4PositionManager          = "v4PositionManager"
	RoleV4StateView                = "v4StateView"
	RoleV4Quoter                   = "v4Quoter"
)

// KnownRoles lists every role the SDK sources understand.
var KnownRoles = []string{
	RoleV2Factory, RoleV2Router, RoleV3CoreFactory, RoleMulticall, RoleQuoter,
	RoleNonfungiblePositionManager, RoleV3Migrator, RoleSwapRouter02, RoleTickLens,
	RoleMixedRouteQuoterV1, RoleUniversalRouterV1_2, RoleUniversalRouterV2_0,
	RoleWETH, RolePermit2, RoleV4PoolManager, RoleV4PositionManager,
	RoleV4StateView, RoleV4Quoter,
}

// AddressEntry is one address role value: either a bare address or a
// deployment pair of address and creation block.
type AddressEntry struct {
	// Address is the 0x-prefixed contract address, as written.
	Address string

	// CreationBlock is the deployment block. Zero when not given.
	CreationBlock int64

	// Deployment is true when the value was written as an
	// {address, creationBlock} pair.
	Deployment bool
}

// UnmarshalYAML accepts either a scalar address or a mapping with
// "address" and "creationBlock" keys.
func (a *AddressEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		// Raw text: an unquoted 0x... literal must not be resolved as an integer.
		*a = AddressEntry{Address: node.Value}
		return nil
	case yaml.MappingNode:
		var pair struct {
			Address       string `yaml:"address"`
			CreationBlock int64  `yaml:"creationBlock"`
		}
		if err := node.Decode(&pair); err != nil {
			return err
		}
		*a = AddressEntry{Address: pair.Address, CreationBlock: pair.CreationBlock, Deployment: true}
		return nil
	default:
		return fmt.Errorf("line %d: address must be a string or an {address, creationBlock} object", node.Line)
	}
}

// Document is the whitelabel configuration document.
type Document struct {
	// ChainID is the numeric chain identity. Must be positive.
	ChainID int64 `yaml:"chainId" json:"chainId" validate:"gt=0"`

	// ChainName is the display name the enum identifier is derived from.
	ChainName string `yaml:"chainName" json:"chainName" validate:"required,notblank"`

	// Addresses maps role names to address values.
	Addresses map[string]AddressEntry `yaml:"addresses" json:"addresses" validate:"required"`
}

var nonAlphanumericRun = regexp.MustCompile(`[^A-Z0-9]+`)

// Identifier derives the enum member name from ChainName by upper-casing
// it and replacing every run of non-alphanumeric characters with "_".
//
// # Example
//
//	Document{ChainName: "test chain"}.Identifier() // "TEST_CHAIN"
func (d *Document) Identifier() string {
	return nonAlphanumericRun.ReplaceAllString(strings.ToUpper(d.ChainName), "_")
}

// Address returns the entry for role.
func (d *Document) Address(role string) (AddressEntry, bool) {
	entry, ok := d.Addresses[role]
	return entry, ok
}

// Roles returns the configured role names in sorted order.
func (d *Document) Roles() []string {
	roles := make([]string, 0, len(d.Addresses))
	for role := range d.Addresses {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// UnknownRoles returns configured roles that no SDK source understands.
func (d *Document) UnknownRoles() []string {
	known := make(map[string]bool, len(KnownRoles))
	for _, role := range KnownRoles {
		known[role] = true
	}
	var unknown []string
	for _, role := range d.Roles() {
		if !known[role] {
			unknown = append(unknown, role)
		}
	}
	return unknown
}
