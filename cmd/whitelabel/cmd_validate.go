// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/whitelabel/internal/catalog"
	"github.com/AleutianAI/whitelabel/internal/config"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration document without touching the monorepo",
		Long: `Loads the configuration document, validates every field, and checks
that each address role the SDK sources need is configured. Every invalid
field is listed.`,
		Args: cobra.NoArgs,
		RunE: a.runValidate,
	}
}

func (a *app) runValidate(cmd *cobra.Command, args []string) error {
	out := a.printer()
	opts, err := a.options(cmd)
	if err != nil {
		return err
	}
	path := opts.ConfigPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(opts.Root, path)
	}

	doc, err := config.Load(path)
	if err != nil {
		return userError(err)
	}
	var problems []error
	for _, check := range []error{doc.Validate(), doc.Require(catalog.RequiredRoles()...)} {
		if check != nil {
			problems = append(problems, check)
		}
	}
	if len(problems) > 0 {
		out.Error("invalid configuration: " + path)
		for _, p := range problems {
			var verr *config.ValidationError
			if !errors.As(p, &verr) {
				out.Info("  " + p.Error())
				continue
			}
			for _, f := range verr.Fields {
				out.Info("  " + f.String())
			}
		}
		return &ExitError{Code: ExitUserError, Err: errors.Join(problems...), Reported: true}
	}

	if unknown := doc.UnknownRoles(); len(unknown) > 0 {
		out.Warning("unknown address roles are ignored: " + strings.Join(unknown, ", "))
	}
	out.Success(fmt.Sprintf("%s is valid: chain %s (ID: %d, identifier %s)",
		path, doc.ChainName, doc.ChainID, doc.Identifier()))
	return nil
}
