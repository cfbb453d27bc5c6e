// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided names that end up inside
// SQL statements or InfluxDB line protocol / Flux. Identifiers cannot be bound
// as query parameters, so they are checked against a strict pattern instead.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches a SQL identifier, optionally schema-qualified.
// Allows: letters, digits, underscores; must start with a letter or underscore.
// Max length: 63 characters per part (PostgreSQL NAMEDATALEN - 1).
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}(\.[A-Za-z_][A-Za-z0-9_]{0,62})?$`)

// tagPattern matches an InfluxDB measurement, tag key or tag value.
// Allows: letters, digits, underscores, hyphens, dots, colons.
var tagPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.:\-]{0,127}$`)

// ValidateIdentifier validates a table or column name before it is
// interpolated into SQL.
//
// Valid identifiers:
//   - 1-63 characters, or schema.table with 1-63 characters each
//   - Letters, digits and underscores
//   - Not starting with a digit
//
// Example:
//
//	if err := validation.ValidateIdentifier(table); err != nil {
//	    return nil, fmt.Errorf("invalid table: %w", err)
//	}
//	// Safe to use in a query string
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier: %q (letters, digits and underscores, optionally schema-qualified)", name)
	}
	return nil
}

// ValidateTag validates an InfluxDB measurement or tag.
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}
	if !tagPattern.MatchString(tag) {
		return fmt.Errorf("invalid tag format: %q (1-128 chars of letters, digits, '_', '-', '.', ':')", tag)
	}
	return nil
}

// ValidateTags validates several tags and lists every invalid one.
func ValidateTags(tags []string) error {
	var invalid []string
	for _, t := range tags {
		if err := ValidateTag(t); err != nil {
			invalid = append(invalid, t)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid tags: %v", invalid)
	}
	return nil
}

// SanitizeIdentifier trims and validates an identifier.
func SanitizeIdentifier(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateIdentifier(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
