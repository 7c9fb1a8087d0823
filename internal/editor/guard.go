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
	"fmt"
	"regexp"

	"github.com/AleutianAI/whitelabel/internal/declaration"
)

// Guard suppresses every edit of an artifact when a numeric identity is
// already registered in an enum declaration of that artifact.
//
// Re-running against an artifact whose enum already holds "X = 9999"
// would otherwise register the chain a second time under a new name.
type Guard struct {
	// Declaration is the enum whose members are checked.
	Declaration declaration.Declaration

	// Value is the member value pattern, usually "{id}".
	Value string
}

// EnumHasValue reports whether the enum body of decl contains a member
// assigned exactly value.
//
// # Outputs
//
//   - bool: True when "= value" appears as a complete member value.
//   - error: Locator errors, fatal.
func EnumHasValue(text string, decl declaration.Declaration, value string) (bool, error) {
	if decl.Kind != declaration.KindEnumMember {
		return false, fmt.Errorf("%w: guard on %s", ErrKindMismatch, decl.Kind)
	}
	span, err := decl.Locate(text)
	if err != nil {
		return false, err
	}
	pattern := regexp.MustCompile(`=\s*` + regexp.QuoteMeta(value) + `\b`)
	return pattern.MatchString(span.Body(text)), nil
}
