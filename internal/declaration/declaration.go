// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package declaration locates named, delimiter-balanced regions inside
// source artifacts without parsing them.
//
// A declaration is introduced by a fixed marker string (usually the line
// that opens the construct) and its body is the region between the opening
// delimiter and the matching closing delimiter. Four declaration shapes are
// supported, expressed as the closed Kind variant:
//
//	KindMapEntry     export const M: Record<K, V> = { [K.A]: { ... }, }
//	KindEnumMember   export enum E { A = 1, }
//	KindListElement  export const L = [ E.A, ] as const
//	KindSwitchCase   function f(id) { switch (id) { case 1: return 'x' default: ... } }
//
// # Limitations
//
// The balance scan is purely lexical. Delimiters inside string literals or
// comments are counted like any other. Target declarations are known not to
// contain delimiter characters inside string values.
package declaration

import (
	"fmt"
)

// =============================================================================
// Kind
// =============================================================================

// Kind is the shape of an editable declaration.
type Kind int

const (
	// KindMapEntry is an object literal keyed by computed or literal keys.
	KindMapEntry Kind = iota + 1

	// KindEnumMember is an enum body of "NAME = value," members.
	KindEnumMember

	// KindListElement is an array literal closed by a terminator token.
	KindListElement

	// KindSwitchCase is a function body containing a switch whose cases
	// return literal values, with a default clause as insertion anchor.
	KindSwitchCase
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindMapEntry:
		return "map-entry"
	case KindEnumMember:
		return "enum-member"
	case KindListElement:
		return "list-element"
	case KindSwitchCase:
		return "switch-case"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Delimiters returns the opening and closing delimiter of the kind's body.
func (k Kind) Delimiters() (open, close byte) {
	if k == KindListElement {
		return '[', ']'
	}
	return '{', '}'
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= KindMapEntry && k <= KindSwitchCase
}

// =============================================================================
// Declaration
// =============================================================================

// Declaration identifies one editable region of an artifact.
type Declaration struct {
	// Name labels the declaration in logs and errors, e.g. "ChainId".
	Name string

	// Kind selects the body shape.
	Kind Kind

	// Marker is the unique text that introduces the declaration. The first
	// occurrence wins.
	Marker string

	// Terminator closes a KindListElement body, e.g. "] as const".
	Terminator string

	// Anchor is the clause a KindSwitchCase entry is inserted before,
	// e.g. "default:".
	Anchor string
}

// Locate finds the body span of d inside text.
//
// # Outputs
//
//   - Span: Opening and closing delimiter positions.
//   - error: ErrDeclarationNotFound or ErrUnbalancedDeclaration, both fatal.
func (d Declaration) Locate(text string) (Span, error) {
	open, close := d.Kind.Delimiters()
	span, err := LocateBody(text, d.Marker, open, close)
	if err != nil {
		return Span{}, fmt.Errorf("declaration %s: %w", d.Name, err)
	}
	return span, nil
}
