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
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is matched by every ValidationError.
var ErrInvalidConfig = errors.New("invalid configuration")

// configValidate is the validator instance for configuration documents.
// Initialized in init() with custom validators.
var configValidate *validator.Validate

var identifierPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

func init() {
	configValidate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their document names, not Go names.
	configValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = configValidate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = configValidate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
}

// FieldError describes one invalid configuration field.
type FieldError struct {
	// Field is the dotted document path, e.g. "addresses.weth".
	Field string

	// Value is the offending value as written.
	Value any

	// Message explains the constraint that failed.
	Message string
}

// String renders "field: message (got: value)".
func (f FieldError) String() string {
	return fmt.Sprintf("%s %s (got: %v)", f.Field, f.Message, f.Value)
}

// ValidationError lists every invalid field of a document.
type ValidationError struct {
	Fields []FieldError
}

// Error joins all field errors.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(parts, "; "))
}

// Unwrap makes errors.Is(err, ErrInvalidConfig) succeed.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Validate checks every field of the document.
//
// # Description
//
// Checks chainId > 0, a non-blank chainName whose derived identifier is a
// valid enum member name, and for each address role a 0x-prefixed 40 hex
// digit address and a non-negative creation block. All failures are
// collected so the user can fix them in one pass.
//
// # Outputs
//
//   - error: nil, or a *ValidationError listing each offending field.
func (d *Document) Validate() error {
	var fields []FieldError

	if err := configValidate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field:   fe.Field(),
				Value:   fe.Value(),
				Message: describeTag(fe.Tag(), fe.Param()),
			})
		}
	}

	if strings.TrimSpace(d.ChainName) != "" {
		if ident := d.Identifier(); configValidate.Var(ident, "identifier") != nil {
			fields = append(fields, FieldError{
				Field:   "chainName",
				Value:   d.ChainName,
				Message: fmt.Sprintf("must derive a valid identifier (derived %q)", ident),
			})
		}
	}

	for _, role := range d.Roles() {
		entry := d.Addresses[role]
		field := "addresses." + role
		if entry.Deployment {
			field += ".address"
		}
		if err := configValidate.Var(entry.Address, "required,eth_addr"); err != nil {
			fields = append(fields, FieldError{
				Field:   field,
				Value:   entry.Address,
				Message: "must be a valid Ethereum address",
			})
		}
		if err := configValidate.Var(entry.CreationBlock, "gte=0"); err != nil {
			fields = append(fields, FieldError{
				Field:   "addresses." + role + ".creationBlock",
				Value:   entry.CreationBlock,
				Message: "must be a non-negative number",
			})
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Require reports each role in roles that the document does not configure.
//
// # Outputs
//
//   - error: nil, or a *ValidationError with one field per missing role.
func (d *Document) Require(roles ...string) error {
	var fields []FieldError
	seen := make(map[string]bool, len(roles))
	for _, role := range roles {
		if seen[role] {
			continue
		}
		seen[role] = true
		if _, ok := d.Addresses[role]; !ok {
			fields = append(fields, FieldError{
				Field:   "addresses." + role,
				Value:   "<missing>",
				Message: "is required",
			})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func describeTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "notblank":
		return "must be a non-empty string"
	case "gt":
		if param == "0" {
			return "must be a positive number"
		}
		return "must be greater than " + param
	default:
		return fmt.Sprintf("failed %q validation", tag)
	}
}
