// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose renders the source fragments inserted into declarations.
//
// Composition is pure: a Template and a configuration document go in, an
// Entry (lookup key plus fragment text) comes out. Nothing here reads or
// writes files.
//
// Key and value patterns use two placeholders:
//
//	{ident}  the identifier derived from the chain name, e.g. TEST_CHAIN
//	{id}     the numeric chain id, e.g. 9999
//
// Fragments carry their own indentation and have no trailing newline.
package compose

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/whitelabel/internal/config"
	"github.com/AleutianAI/whitelabel/internal/declaration"
)

var (
	// ErrMissingRole indicates a role the fragment cannot be rendered
	// without is absent from the document.
	ErrMissingRole = errors.New("required address role is missing")

	// ErrEmptyEntry indicates a map template produced no fields at all.
	ErrEmptyEntry = errors.New("entry has no fields to emit")
)

// Entry is a composed fragment and the key that identifies it inside its
// declaration.
type Entry struct {
	// Key is the literal text the editor looks up, e.g. "[ChainId.TEST_CHAIN]".
	Key string

	// Fragment is the text to insert or to replace the existing entry with.
	Fragment string
}

// Template renders one declaration kind. The set of implementations is
// closed: MapTemplate, EnumTemplate, ListTemplate, SwitchTemplate.
type Template interface {
	// Kind returns the declaration kind the template renders for.
	Kind() declaration.Kind

	// Compose renders the entry for doc.
	Compose(doc *config.Document) (Entry, error)

	sealed()
}

// ComposeEntry renders the fragment of tmpl for doc.
//
// # Outputs
//
//   - Entry: Key and fragment text.
//   - error: ErrMissingRole or ErrEmptyEntry.
func ComposeEntry(doc *config.Document, tmpl Template) (Entry, error) {
	if doc == nil {
		return Entry{}, errors.New("compose: nil document")
	}
	entry, err := tmpl.Compose(doc)
	if err != nil {
		return Entry{}, fmt.Errorf("compose %s: %w", tmpl.Kind(), err)
	}
	return entry, nil
}

// Expand substitutes {ident} and {id} in pattern.
func Expand(pattern string, doc *config.Document) string {
	return strings.NewReplacer(
		"{ident}", doc.Identifier(),
		"{id}", strconv.FormatInt(doc.ChainID, 10),
	).Replace(pattern)
}

// =============================================================================
// Map entries
// =============================================================================

// Field is one property of a map entry.
//
// A field is emitted only when its role is configured, unless Default is
// set. A field with Children is a nested object emitted when at least one
// child is.
type Field struct {
	// Property is the emitted property name, e.g. "weth" or
	// "[UniversalRouterVersion.V2_0]".
	Property string

	// Role is the configuration role supplying the value.
	Role string

	// Deployment renders the value as {address, creationBlock}.
	Deployment bool

	// Default is emitted when Role is absent. Nil omits the field.
	Default *config.AddressEntry

	// Children makes the field a nested object.
	Children []Field
}

// MapTemplate renders a keyed object entry:
//
//	[ChainId.TEST_CHAIN]: {
//	  weth: '0x...',
//	},
type MapTemplate struct {
	// Key is the entry key pattern, e.g. "[ChainId.{ident}]" or "[{id}]".
	Key string

	// Fields are emitted in this order.
	Fields []Field

	// Indent is the entry's indentation. Default: two spaces.
	Indent string
}

// Kind implements Template.
func (MapTemplate) Kind() declaration.Kind { return declaration.KindMapEntry }

func (MapTemplate) sealed() {}

// Compose implements Template.
func (t MapTemplate) Compose(doc *config.Document) (Entry, error) {
	indent := orDefault(t.Indent, "  ")
	key := Expand(t.Key, doc)

	lines := renderFields(doc, t.Fields, indent+"  ")
	if len(lines) == 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrEmptyEntry, key)
	}

	var b strings.Builder
	b.WriteString(indent + key + ": {\n")
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	b.WriteString(indent + "},")
	return Entry{Key: key, Fragment: b.String()}, nil
}

func renderFields(doc *config.Document, fields []Field, indent string) []string {
	var lines []string
	for _, f := range fields {
		if len(f.Children) > 0 {
			inner := renderFields(doc, f.Children, indent+"  ")
			if len(inner) == 0 {
				continue
			}
			lines = append(lines, indent+f.Property+": {")
			lines = append(lines, inner...)
			lines = append(lines, indent+"},")
			continue
		}

		entry, ok := doc.Address(f.Role)
		if !ok {
			if f.Default == nil {
				continue
			}
			entry = *f.Default
		}

		if f.Deployment {
			lines = append(lines,
				indent+f.Property+": {",
				indent+"  address: "+quote(entry.Address)+",",
				indent+"  creationBlock: "+strconv.FormatInt(entry.CreationBlock, 10)+",",
				indent+"},",
			)
			continue
		}
		lines = append(lines, indent+f.Property+": "+quote(entry.Address)+",")
	}
	return lines
}

// =============================================================================
// Enum members
// =============================================================================

// EnumTemplate renders a single "NAME = value," member line.
type EnumTemplate struct {
	// Name is the member name pattern. Default: "{ident}".
	Name string

	// Value is the member value pattern. Default: "{id}".
	Value string

	// Indent is the member's indentation. Default: two spaces.
	Indent string
}

// Kind implements Template.
func (EnumTemplate) Kind() declaration.Kind { return declaration.KindEnumMember }

func (EnumTemplate) sealed() {}

// Compose implements Template.
func (t EnumTemplate) Compose(doc *config.Document) (Entry, error) {
	name := Expand(orDefault(t.Name, "{ident}"), doc)
	value := Expand(orDefault(t.Value, "{id}"), doc)
	return Entry{
		Key:      name,
		Fragment: orDefault(t.Indent, "  ") + name + " = " + value + ",",
	}, nil
}

// =============================================================================
// List elements
// =============================================================================

// ListTemplate renders one bare list element. Separators and indentation
// are chosen by the editor from the surrounding list.
type ListTemplate struct {
	// Element is the element pattern, e.g. "ChainId.{ident}".
	Element string
}

// Kind implements Template.
func (ListTemplate) Kind() declaration.Kind { return declaration.KindListElement }

func (ListTemplate) sealed() {}

// Compose implements Template.
func (t ListTemplate) Compose(doc *config.Document) (Entry, error) {
	element := Expand(t.Element, doc)
	return Entry{Key: element, Fragment: element}, nil
}

// =============================================================================
// Switch cases
// =============================================================================

// SwitchTemplate renders a case clause returning a configured address:
//
//	case 9999:
//	  return '0x...'
type SwitchTemplate struct {
	// Case is the case label pattern. Default: "{id}".
	Case string

	// Role supplies the returned address. Required.
	Role string

	// Indent is the case line's indentation. Default: four spaces.
	Indent string
}

// Kind implements Template.
func (SwitchTemplate) Kind() declaration.Kind { return declaration.KindSwitchCase }

func (SwitchTemplate) sealed() {}

// Compose implements Template.
func (t SwitchTemplate) Compose(doc *config.Document) (Entry, error) {
	entry, ok := doc.Address(t.Role)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrMissingRole, t.Role)
	}
	label := Expand(orDefault(t.Case, "{id}"), doc)
	indent := orDefault(t.Indent, "    ")
	return Entry{
		Key:      label,
		Fragment: indent + "case " + label + ":\n" + indent + "  return " + quote(entry.Address),
	}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
