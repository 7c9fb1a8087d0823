// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package editor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/whitelabel/internal/compose"
	"github.com/AleutianAI/whitelabel/internal/declaration"
)

var (
	// ErrSwitchAnchorNotFound indicates the switch declaration has no
	// anchor clause to insert before.
	ErrSwitchAnchorNotFound = errors.New("switch anchor not found")

	// ErrListTerminatorNotFound indicates the list declaration has no
	// terminator token after its marker.
	ErrListTerminatorNotFound = errors.New("list terminator not found")

	// ErrKindMismatch indicates a template was paired with a declaration
	// of a different kind.
	ErrKindMismatch = errors.New("template kind does not match declaration kind")

	// ErrUnsupportedKind indicates a declaration with an unknown kind.
	ErrUnsupportedKind = errors.New("unsupported declaration kind")
)

// replaceDepth bounds the balanced match of an existing keyed region. Map
// entries nest at most three levels (entry, routerConfigs, version pair).
const replaceDepth = 3

// Action is the outcome of one upsert.
type Action int

const (
	// ActionInserted means the entry was new and was spliced in.
	ActionInserted Action = iota + 1

	// ActionReplaced means an existing entry was replaced with new text.
	ActionReplaced

	// ActionUnchanged means the artifact already held the exact entry.
	ActionUnchanged

	// ActionSkipped means the duplicate guard suppressed the edit.
	ActionSkipped
)

// String returns the action name used in logs and metrics.
func (a Action) String() string {
	switch a {
	case ActionInserted:
		return "inserted"
	case ActionReplaced:
		return "replaced"
	case ActionUnchanged:
		return "unchanged"
	case ActionSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Upsert inserts entry into decl, or replaces the existing entry with the
// same key.
//
// # Description
//
// Existence is decided by a per-key pattern searched inside the
// declaration body. A present key has its whole region (the keyed object,
// member line, or case clause) replaced by the fragment. An absent key is
// spliced in before the closing delimiter (map and enum), before the
// anchor clause (switch), or after the last element (list). All other
// bytes are preserved.
//
// # Inputs
//
//   - text: Artifact content.
//   - decl: Target declaration.
//   - entry: Composed key and fragment.
//
// # Outputs
//
//   - string: The mutated text (text itself when unchanged).
//   - Action: Inserted, Replaced, or Unchanged.
//   - error: Locator errors, ErrSwitchAnchorNotFound,
//     ErrListTerminatorNotFound, ErrNestingTooDeep. All fatal.
//
// # Example
//
//	out, action, err := Upsert(src, enumDecl, compose.Entry{
//	    Key: "TEST_CHAIN", Fragment: "  TEST_CHAIN = 9999,",
//	})
func Upsert(text string, decl declaration.Declaration, entry compose.Entry) (string, Action, error) {
	switch decl.Kind {
	case declaration.KindListElement:
		return upsertList(text, decl, entry)
	case declaration.KindMapEntry, declaration.KindEnumMember, declaration.KindSwitchCase:
	default:
		return text, 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, decl.Kind)
	}

	span, err := decl.Locate(text)
	if err != nil {
		return text, 0, err
	}
	nl := lineBreak(text)
	fragment := withLineBreak(entry.Fragment, nl)

	pattern := existencePattern(decl.Kind, entry.Key)
	bodyStart := span.Open + 1
	if loc := pattern.FindStringIndex(text[bodyStart:span.Close]); loc != nil {
		start, end, err := keyedRegion(text, decl.Kind, span, bodyStart+loc[0], bodyStart+loc[1])
		if err != nil {
			return text, 0, fmt.Errorf("declaration %s, key %s: %w", decl.Name, entry.Key, err)
		}
		if end > start && text[end-1] == '\r' {
			end--
		}
		out := text[:start] + fragment + text[end:]
		if out == text {
			return text, ActionUnchanged, nil
		}
		return out, ActionReplaced, nil
	}

	if decl.Kind == declaration.KindSwitchCase {
		out, err := insertBeforeAnchor(text, decl, span, fragment, nl)
		if err != nil {
			return text, 0, err
		}
		return out, ActionInserted, nil
	}
	return insertBeforeClose(text, span, fragment, nl), ActionInserted, nil
}

// existencePattern builds the per-key lookup pattern. The key is escaped
// with regexp.QuoteMeta; computed keys such as "[ChainId.X]" are full of
// metacharacters.
func existencePattern(kind declaration.Kind, key string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(key)
	switch kind {
	case declaration.KindMapEntry:
		return regexp.MustCompile(`(?m)^[ \t]*` + quoted + `\s*:`)
	case declaration.KindEnumMember:
		return regexp.MustCompile(`(?m)^[ \t]*` + quoted + `\s*=`)
	case declaration.KindSwitchCase:
		return regexp.MustCompile(`(?m)^[ \t]*case\s+` + quoted + `\s*:`)
	default:
		return regexp.MustCompile(`(?:^|[\s,\[])` + quoted + `\s*(?:,|$)`)
	}
}

var nextClause = regexp.MustCompile(`(?m)^[ \t]*(?:case\b|default\s*:)`)

// keyedRegion returns the [start, end) bounds of an existing entry whose
// key pattern matched at [matchStart, matchEnd). The region starts at the
// beginning of the key's line and never includes the trailing newline.
func keyedRegion(text string, kind declaration.Kind, span declaration.Span, matchStart, matchEnd int) (int, int, error) {
	start := declaration.LineStart(text, matchStart)
	if start <= span.Open {
		start = matchStart
	}

	switch kind {
	case declaration.KindMapEntry:
		i := matchEnd
		for i < span.Close && (text[i] == ' ' || text[i] == '\t') {
			i++
		}
		if i >= span.Close || text[i] != '{' {
			return start, min(declaration.LineEnd(text, matchEnd), span.Close), nil
		}
		closeIdx, err := declaration.ScanBalanced(text, i, '{', '}', replaceDepth)
		if err != nil {
			return 0, 0, err
		}
		if closeIdx >= span.Close {
			return 0, 0, fmt.Errorf("%w: entry overruns declaration", declaration.ErrUnbalancedDeclaration)
		}
		end := closeIdx + 1
		if end < len(text) && text[end] == ',' {
			end++
		}
		return start, end, nil

	case declaration.KindSwitchCase:
		end := min(declaration.LineEnd(text, matchEnd), span.Close)
		rest := text[matchEnd:span.Close]
		ret := strings.Index(rest, "return")
		if ret < 0 {
			return start, end, nil
		}
		if next := nextClause.FindStringIndex(rest); next != nil && next[0] < ret {
			return start, end, nil
		}
		return start, min(declaration.LineEnd(text, matchEnd+ret), span.Close), nil

	default:
		return start, min(declaration.LineEnd(text, matchEnd), span.Close), nil
	}
}

// insertBeforeClose splices fragment in front of the closing delimiter,
// followed by a line break. A separator is added after the previous entry
// when it lacks one; it goes before a trailing line comment, and
// comment-only lines are never treated as the previous entry.
func insertBeforeClose(text string, span declaration.Span, fragment, nl string) string {
	insertAt := declaration.LineStart(text, span.Close)
	piece := fragment + nl
	if insertAt <= span.Open || strings.TrimSpace(text[insertAt:span.Close]) != "" {
		insertAt = span.Close
		piece = nl + fragment + nl
	}

	prev := lastCode(text, span.Open, insertAt)
	if prev > span.Open && text[prev] != ',' {
		return text[:prev+1] + "," + text[prev+1:insertAt] + piece + text[insertAt:]
	}
	return text[:insertAt] + piece + text[insertAt:]
}

// lastCode returns the index of the last non-whitespace byte before idx
// that is not part of a line comment, or a value <= open when the body
// holds no code.
func lastCode(text string, open, idx int) int {
	for {
		p := declaration.LastNonSpace(text, idx)
		if p <= open {
			return p
		}
		start := max(declaration.LineStart(text, p), open+1)
		c := commentStart(text[start : p+1])
		if c < 0 {
			return p
		}
		idx = start + c
	}
}

// commentStart returns the offset of a "//" line comment in line, skipping
// quoted strings, or -1.
func commentStart(line string) int {
	var quote byte
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return i
		}
	}
	return -1
}

// lineBreak returns "\r\n" for text that uses CRLF line endings and "\n"
// otherwise.
func lineBreak(text string) string {
	if strings.Contains(text, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// withLineBreak converts the bare newlines of fragment to nl.
func withLineBreak(fragment, nl string) string {
	if nl == "\n" {
		return fragment
	}
	return strings.ReplaceAll(strings.ReplaceAll(fragment, "\r\n", "\n"), "\n", nl)
}

// insertBeforeAnchor splices fragment on its own line in front of the
// anchor clause of a switch declaration.
func insertBeforeAnchor(text string, decl declaration.Declaration, span declaration.Span, fragment, nl string) (string, error) {
	if decl.Anchor == "" {
		return text, fmt.Errorf("declaration %s: %w: no anchor configured", decl.Name, ErrSwitchAnchorNotFound)
	}
	rel := strings.Index(text[span.Open+1:span.Close], decl.Anchor)
	if rel < 0 {
		return text, fmt.Errorf("declaration %s: %w: %q", decl.Name, ErrSwitchAnchorNotFound, decl.Anchor)
	}
	anchor := span.Open + 1 + rel

	lineStart := declaration.LineStart(text, anchor)
	if strings.TrimSpace(text[lineStart:anchor]) == "" {
		return text[:lineStart] + fragment + nl + text[lineStart:], nil
	}
	return text[:anchor] + nl + fragment + nl + text[anchor:], nil
}

// upsertList appends element to a list literal closed by decl.Terminator.
//
// The separator is chosen from the list itself: a list whose last element
// already carries a trailing separator gets "element," after it, one that
// does not gets ",element". Single-line lists stay on one line.
func upsertList(text string, decl declaration.Declaration, entry compose.Entry) (string, Action, error) {
	at := strings.Index(text, decl.Marker)
	if decl.Marker == "" || at < 0 {
		return text, 0, fmt.Errorf("declaration %s: %w: %q", decl.Name, declaration.ErrDeclarationNotFound, decl.Marker)
	}
	after := at + len(decl.Marker)

	open := strings.LastIndexByte(decl.Marker, '[')
	if open >= 0 {
		open += at
	} else if rel := strings.IndexByte(text[after:], '['); rel >= 0 {
		open = after + rel
	} else {
		return text, 0, fmt.Errorf("declaration %s: %w: no '[' after marker", decl.Name, declaration.ErrUnbalancedDeclaration)
	}

	if decl.Terminator == "" {
		return text, 0, fmt.Errorf("declaration %s: %w: no terminator configured", decl.Name, ErrListTerminatorNotFound)
	}
	rel := strings.Index(text[open:], decl.Terminator)
	if rel < 0 {
		return text, 0, fmt.Errorf("declaration %s: %w: %q", decl.Name, ErrListTerminatorNotFound, decl.Terminator)
	}
	term := open + rel

	if existencePattern(declaration.KindListElement, entry.Key).MatchString(text[open+1 : term]) {
		return text, ActionUnchanged, nil
	}

	nl := lineBreak(text)
	fragment := withLineBreak(entry.Fragment, nl)
	multiline := strings.Contains(text[open:term], "\n")
	last := lastCode(text, open, term)
	insertAt := last + 1

	var piece string
	switch {
	case last <= open:
		if multiline {
			piece = nl + "  " + fragment + ","
		} else {
			piece = fragment
		}
	case text[last] == ',':
		if multiline {
			insertAt = lineEndBefore(text, last, term)
			piece = nl + lineIndent(text, last) + fragment + ","
		} else {
			piece = " " + fragment + ","
		}
	default:
		if multiline {
			end := lineEndBefore(text, last, term)
			out := text[:insertAt] + "," + text[insertAt:end] + nl + lineIndent(text, last) + fragment + text[end:]
			return out, ActionInserted, nil
		}
		piece = ", " + fragment
	}
	return text[:insertAt] + piece + text[insertAt:], ActionInserted, nil
}

// lineEndBefore returns the end of the line containing idx, excluding any
// carriage return, capped at limit.
func lineEndBefore(text string, idx, limit int) int {
	end := min(declaration.LineEnd(text, idx), limit)
	if end > idx+1 && text[end-1] == '\r' {
		end--
	}
	return end
}

// lineIndent returns the leading whitespace of the line containing idx.
func lineIndent(text string, idx int) string {
	start := declaration.LineStart(text, idx)
	end := start
	for end < len(text) && (text[end] == ' ' || text[end] == '\t') {
		end++
	}
	return text[start:end]
}
