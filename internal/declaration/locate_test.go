// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package declaration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestLocateBody_Enum(t *testing.T) {
	span, err := LocateBody(chainsSource, "export enum ChainId {", '{', '}')
	require.NoError(t, err)

	assert.Equal(t, byte('{'), chainsSource[span.Open])
	assert.Equal(t, byte('}'), chainsSource[span.Close])
	assert.Equal(t, "\n  MAINNET = 1,\n  GOERLI = 5,\n", span.Body(chainsSource))
}

func TestLocateBody_MarkerWithTypeLiteral(t *testing.T) {
	src := "export const CHAIN_CONFIGS: { [key: number]: ChainConfig } = {\n  [1]: {\n    weth: '0x1',\n  },\n}\n"

	span, err := LocateBody(src, "export const CHAIN_CONFIGS: { [key: number]: ChainConfig } = {", '{', '}')
	require.NoError(t, err)

	assert.Equal(t, "\n  [1]: {\n    weth: '0x1',\n  },\n", span.Body(src))
	assert.Equal(t, len(src)-2, span.Close)
}

func TestLocateBody_OpenAfterMarker(t *testing.T) {
	src := "export function permit2Address(chainId?: number): string\n{\n  switch (chainId) {\n    default:\n      return X\n  }\n}\n"

	span, err := LocateBody(src, "export function permit2Address(chainId?: number): string", '{', '}')
	require.NoError(t, err)
	assert.Equal(t, strings.Index(src, "{"), span.Open)
	assert.Equal(t, len(src)-2, span.Close)
}

func TestLocateBody_FirstOccurrenceWins(t *testing.T) {
	src := "enum A {\n  X = 1,\n}\nenum A {\n  Y = 2,\n}\n"

	span, err := LocateBody(src, "enum A {", '{', '}')
	require.NoError(t, err)
	assert.Equal(t, "\n  X = 1,\n", span.Body(src))
}

func TestLocateBody_NestedDepth(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"flat", " a: 1 "},
		{"depth two", " a: { b: 1 } "},
		{"depth three", " a: { b: { c: 1 }, d: {} } "},
		{"siblings", " {}{}{{}} "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "const m = {" + tt.body + "}\ntrailing { }"
			span, err := LocateBody(src, "const m = {", '{', '}')
			require.NoError(t, err)
			assert.Equal(t, tt.body, span.Body(src))

			depth := 0
			for i := span.Open; i <= span.Close; i++ {
				switch src[i] {
				case '{':
					depth++
				case '}':
					depth--
				}
				if i < span.Close {
					assert.Positive(t, depth, "depth must stay positive inside the body")
				}
			}
			assert.Zero(t, depth)
		})
	}
}

func TestLocateBody_NotFound(t *testing.T) {
	_, err := LocateBody(chainsSource, "export enum Missing {", '{', '}')
	assert.ErrorIs(t, err, ErrDeclarationNotFound)

	_, err = LocateBody(chainsSource, "", '{', '}')
	assert.ErrorIs(t, err, ErrDeclarationNotFound)
}

func TestLocateBody_Unbalanced(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"truncated", "export enum ChainId {\n  MAINNET = 1,\n"},
		{"extra open", "export enum ChainId {\n  A = { {\n}\n"},
		{"no opening delimiter", "export enum ChainId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker := "export enum ChainId {"
			if tt.name == "no opening delimiter" {
				marker = "export enum ChainId"
			}
			_, err := LocateBody(tt.src, marker, '{', '}')
			assert.ErrorIs(t, err, ErrUnbalancedDeclaration)
		})
	}
}

func TestDeclaration_LocateList(t *testing.T) {
	decl := Declaration{
		Name:       "SUPPORTED_CHAINS",
		Kind:       KindListElement,
		Marker:     "export const SUPPORTED_CHAINS = [",
		Terminator: "] as const",
	}

	span, err := decl.Locate(chainsSource)
	require.NoError(t, err)
	assert.Equal(t, "\n  ChainId.MAINNET,\n  ChainId.GOERLI,\n", span.Body(chainsSource))
}

func TestDeclaration_LocateWrapsName(t *testing.T) {
	decl := Declaration{Name: "ChainId", Kind: KindEnumMember, Marker: "enum Nope {"}
	_, err := decl.Locate(chainsSource)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeclarationNotFound)
	assert.Contains(t, err.Error(), "ChainId")
}

func TestScanBalanced_MaxDepth(t *testing.T) {
	src := "{ a: { b: { c: { d: 1 } } } }"

	_, err := ScanBalanced(src, 0, '{', '}', 3)
	assert.ErrorIs(t, err, ErrNestingTooDeep)

	end, err := ScanBalanced(src, 0, '{', '}', 4)
	require.NoError(t, err)
	assert.Equal(t, len(src)-1, end)

	_, err = ScanBalanced(src, 1, '{', '}', 0)
	assert.ErrorIs(t, err, ErrUnbalancedDeclaration)
}

func TestKind(t *testing.T) {
	tests := []struct {
		kind  Kind
		name  string
		open  byte
		close byte
	}{
		{KindMapEntry, "map-entry", '{', '}'},
		{KindEnumMember, "enum-member", '{', '}'},
		{KindListElement, "list-element", '[', ']'},
		{KindSwitchCase, "switch-case", '{', '}'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			assert.True(t, tt.kind.Valid())
			o, c := tt.kind.Delimiters()
			assert.Equal(t, tt.open, o)
			assert.Equal(t, tt.close, c)
		})
	}
	assert.False(t, Kind(0).Valid())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestLineHelpers(t *testing.T) {
	src := "one\n  two\nthree"
	idx := strings.Index(src, "two")

	assert.Equal(t, 4, LineStart(src, idx))
	assert.Equal(t, 9, LineEnd(src, idx))
	assert.Equal(t, len(src), LineEnd(src, strings.Index(src, "three")))
	assert.Equal(t, 2, LastNonSpace(src, 4))
	assert.Equal(t, -1, LastNonSpace("  \n", 3))
}
