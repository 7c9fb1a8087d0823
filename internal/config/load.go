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
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigParse indicates the configuration file is not valid JSON or YAML.
	ErrConfigParse = errors.New("config file could not be parsed")
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "whitelabel-config.json"

// Load reads and decodes the configuration document at path.
//
// # Description
//
// The file may be JSON or YAML; JSON is decoded through the YAML decoder,
// which accepts it unchanged. Address keys starting with "_" and the
// "$schema" key are annotations and are dropped. Load does not validate;
// call Validate on the result.
//
// # Outputs
//
//   - *Document: The decoded document.
//   - error: ErrConfigNotFound or ErrConfigParse, wrapped with the path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a configuration document from JSON or YAML bytes.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrConfigParse)
	}

	var raw struct {
		ChainID   int64                `yaml:"chainId"`
		ChainName string               `yaml:"chainName"`
		Addresses map[string]yaml.Node `yaml:"addresses"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	doc := &Document{ChainID: raw.ChainID, ChainName: raw.ChainName}
	if raw.Addresses != nil {
		doc.Addresses = make(map[string]AddressEntry, len(raw.Addresses))
	}
	for role, node := range raw.Addresses {
		if isAnnotation(role) {
			continue
		}
		var entry AddressEntry
		if err := node.Decode(&entry); err != nil {
			return nil, fmt.Errorf("%w: addresses.%s: %v", ErrConfigParse, role, err)
		}
		doc.Addresses[role] = entry
	}
	return doc, nil
}

func isAnnotation(key string) bool {
	return strings.HasPrefix(key, "_") || key == "$schema"
}
