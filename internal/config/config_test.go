// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

const jsonDoc = `{
  "$schema": "./whitelabel-config.schema.json",
  "_warning": "generated for tests",
  "chainId": 9999,
  "chainName": "test chain",
  "addresses": {
    "_comment": ["not", "an", "address"],
    "weth": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
    "permit2": "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
    "universalRouterV2_0": {
      "address": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
      "creationBlock": 1234
    }
  }
}`

func TestParse_JSON(t *testing.T) {
	doc, err := Parse([]byte(jsonDoc))
	require.NoError(t, err)

	assert.Equal(t, int64(9999), doc.ChainID)
	assert.Equal(t, "test chain", doc.ChainName)
	assert.Equal(t, []string{"permit2", "universalRouterV2_0", "weth"}, doc.Roles())

	weth, ok := doc.Address(RoleWETH)
	require.True(t, ok)
	assert.Equal(t, AddressEntry{Address: addrA}, weth)

	router, ok := doc.Address(RoleUniversalRouterV2_0)
	require.True(t, ok)
	assert.Equal(t, AddressEntry{Address: addrA, CreationBlock: 1234, Deployment: true}, router)

	require.NoError(t, doc.Validate())
}

func TestParse_YAML(t *testing.T) {
	src := `chainId: 42
chainName: My-Chain
addresses:
  weth: 0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
  universalRouterV1_2:
    address: "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
    creationBlock: 7
`
	doc, err := Parse([]byte(src))
	require.NoError(t, err)

	weth, _ := doc.Address(RoleWETH)
	assert.Equal(t, addrA, weth.Address, "unquoted hex must keep its raw text")
	assert.Equal(t, "MY_CHAIN", doc.Identifier())
	require.NoError(t, doc.Validate())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", "   \n"},
		{"not a document", "{chainId: ["},
		{"address sequence", "chainId: 1\nchainName: x\naddresses:\n  weth: [1, 2]\n"},
		{"chain id not a number", `{"chainId": "one", "chainName": "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			assert.ErrorIs(t, err, ErrConfigParse)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultPath)
	require.NoError(t, os.WriteFile(path, []byte(jsonDoc), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(9999), doc.ChainID)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"test chain", "TEST_CHAIN"},
		{"test  chain", "TEST_CHAIN"},
		{"Base-Sepolia 2", "BASE_SEPOLIA_2"},
		{"zora", "ZORA"},
		{"a.b/c", "A_B_C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Document{ChainName: tt.name}
			assert.Equal(t, tt.want, doc.Identifier())
		})
	}
}

func TestValidate_ReportsEveryField(t *testing.T) {
	doc := &Document{
		ChainID:   0,
		ChainName: "  ",
		Addresses: map[string]AddressEntry{
			RoleWETH:                {Address: "0x1234"},
			RoleUniversalRouterV2_0: {Address: "nope", CreationBlock: -5, Deployment: true},
			RolePermit2:             {Address: addrB},
		},
	}

	err := doc.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	byField := map[string]FieldError{}
	for _, f := range verr.Fields {
		byField[f.Field] = f
	}
	assert.Len(t, verr.Fields, 5)
	assert.Contains(t, byField, "chainId")
	assert.Contains(t, byField, "chainName")
	assert.Equal(t, "0x1234", byField["addresses.weth"].Value)
	assert.Equal(t, "nope", byField["addresses.universalRouterV2_0.address"].Value)
	assert.Equal(t, int64(-5), byField["addresses.universalRouterV2_0.creationBlock"].Value)
	assert.Equal(t, "must be a positive number", byField["chainId"].Message)
}

func TestValidate_IdentifierMustBeUsable(t *testing.T) {
	doc := &Document{ChainID: 1, ChainName: "1chain", Addresses: map[string]AddressEntry{}}

	err := doc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `derived "1CHAIN"`)
}

func TestValidate_MissingAddresses(t *testing.T) {
	doc := &Document{ChainID: 1, ChainName: "x"}
	err := doc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "addresses is required")
}

func TestRequire(t *testing.T) {
	doc, err := Parse([]byte(jsonDoc))
	require.NoError(t, err)

	assert.NoError(t, doc.Require(RoleWETH, RolePermit2))

	err = doc.Require(RoleWETH, RoleQuoter, RoleMulticall, RoleQuoter)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 2)
	assert.True(t, strings.HasPrefix(verr.Fields[0].Field, "addresses.quoter"))
}

func TestUnknownRoles(t *testing.T) {
	doc := &Document{Addresses: map[string]AddressEntry{
		RoleWETH:     {Address: addrA},
		"bridgeHub":  {Address: addrA},
		"aaaUnknown": {Address: addrA},
	}}
	assert.Equal(t, []string{"aaaUnknown", "bridgeHub"}, doc.UnknownRoles())
}
