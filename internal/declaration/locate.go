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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDeclarationNotFound indicates the marker does not occur in the
	// artifact. The artifact's shape has diverged from what is expected.
	ErrDeclarationNotFound = errors.New("declaration marker not found")

	// ErrUnbalancedDeclaration indicates no matching closing delimiter was
	// found before the end of the artifact.
	ErrUnbalancedDeclaration = errors.New("declaration is unbalanced")

	// ErrNestingTooDeep indicates a bounded scan exceeded its depth limit.
	ErrNestingTooDeep = errors.New("declaration nesting exceeds limit")
)

// Span is a delimiter-balanced region of an artifact.
//
// Open is the index of the opening delimiter and Close the index of its
// matching closing delimiter, so the body is text[Open+1 : Close].
type Span struct {
	Open  int
	Close int
}

// Body returns the text strictly between the delimiters.
func (s Span) Body(text string) string {
	return text[s.Open+1 : s.Close]
}

// Contains reports whether idx lies inside the body.
func (s Span) Contains(idx int) bool {
	return idx > s.Open && idx < s.Close
}

// LocateBody finds the balanced body of the declaration introduced by marker.
//
// # Description
//
// Finds the first occurrence of marker. The body opens at the last opening
// delimiter inside the marker text when the marker ends on its own opening
// delimiter (e.g. "export enum ChainId {"), otherwise at the first opening
// delimiter after the marker. Markers such as
// "CHAIN_CONFIGS: { [key: number]: ChainConfig } = {" carry a type literal
// before the real opening brace, which is why the last one wins.
//
// From the opening delimiter the scan keeps a depth counter, incremented on
// every open and decremented on every close, and stops when the depth
// returns to zero.
//
// # Inputs
//
//   - text: Full artifact content.
//   - marker: Declaration marker. Must be non-empty.
//   - open, close: Delimiter pair, e.g. '{' and '}'.
//
// # Outputs
//
//   - Span: The balanced region.
//   - error: ErrDeclarationNotFound when the marker is absent,
//     ErrUnbalancedDeclaration when the region never closes.
//
// # Limitations
//
// Purely lexical: delimiters inside strings and comments are counted.
//
// # Example
//
//	span, err := LocateBody(src, "export enum ChainId {", '{', '}')
//	body := span.Body(src)
func LocateBody(text, marker string, open, close byte) (Span, error) {
	if marker == "" {
		return Span{}, fmt.Errorf("%w: empty marker", ErrDeclarationNotFound)
	}
	at := strings.Index(text, marker)
	if at < 0 {
		return Span{}, fmt.Errorf("%w: %q", ErrDeclarationNotFound, marker)
	}

	openIdx := -1
	if trimmed := strings.TrimRight(marker, " \t"); strings.HasSuffix(trimmed, string(open)) {
		openIdx = at + len(trimmed) - 1
	} else if rel := strings.IndexByte(text[at+len(marker):], open); rel >= 0 {
		openIdx = at + len(marker) + rel
	}
	if openIdx < 0 {
		return Span{}, fmt.Errorf("%w: no %q after %q", ErrUnbalancedDeclaration, open, marker)
	}

	closeIdx, err := ScanBalanced(text, openIdx, open, close, 0)
	if err != nil {
		return Span{}, fmt.Errorf("%w (marker %q)", err, marker)
	}
	return Span{Open: openIdx, Close: closeIdx}, nil
}

// ScanBalanced returns the index of the delimiter closing the one at openIdx.
//
// # Inputs
//
//   - text: Text to scan.
//   - openIdx: Index of an opening delimiter.
//   - open, close: Delimiter pair.
//   - maxDepth: Nesting limit; 0 means unlimited.
//
// # Outputs
//
//   - int: Index of the matching closing delimiter.
//   - error: ErrUnbalancedDeclaration if the end of text is reached first,
//     ErrNestingTooDeep if maxDepth is exceeded.
func ScanBalanced(text string, openIdx int, open, close byte, maxDepth int) (int, error) {
	if openIdx < 0 || openIdx >= len(text) || text[openIdx] != open {
		return -1, fmt.Errorf("%w: no opening %q at %d", ErrUnbalancedDeclaration, open, openIdx)
	}

	depth := 0
	for i := openIdx; i < len(text); i++ {
		switch text[i] {
		case open:
			depth++
			if maxDepth > 0 && depth > maxDepth {
				return -1, fmt.Errorf("%w: depth %d at offset %d", ErrNestingTooDeep, depth, i)
			}
		case close:
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: %d delimiter(s) left open", ErrUnbalancedDeclaration, depth)
}

// LineStart returns the index of the first byte of the line containing idx.
func LineStart(text string, idx int) int {
	return strings.LastIndexByte(text[:idx], '\n') + 1
}

// LineEnd returns the index of the newline ending the line containing idx,
// or len(text) on the last line.
func LineEnd(text string, idx int) int {
	if rel := strings.IndexByte(text[idx:], '\n'); rel >= 0 {
		return idx + rel
	}
	return len(text)
}

// LastNonSpace returns the index of the last non-whitespace byte before
// idx, or -1 if there is none.
func LastNonSpace(text string, idx int) int {
	for i := idx - 1; i >= 0; i-- {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return i
	}
	return -1
}
