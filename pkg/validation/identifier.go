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
// This package contains validators for user-provided inputs that end up in
// file paths. Using these validators prevents path traversal: a session or
// task identifier is always used as a single path segment, so it must never
// contain separators or dot-dot sequences.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches valid workflow identifiers (session ids, task
// ids, summary filenames, review dimensions).
// Allows: letters, digits, dots (WFS-20250101.2), underscores, hyphens.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateIdentifier validates a session/task identifier used as a path segment.
//
// Valid identifiers:
//   - 1+ characters from [A-Za-z0-9._-]
//   - no path separators ("/" or "\")
//   - no ".." anywhere
//   - not "." on its own
//
// Returns an error describing the first violation found.
//
// Example:
//
//	if err := validation.ValidateIdentifier(sessionID); err != nil {
//	    return nil, fmt.Errorf("%w: %v", workflow.ErrInvalidID, err)
//	}
//	// Safe to use in filepath.Join
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("identifier %q contains a path separator", id)
	}

	if strings.Contains(id, "..") {
		return fmt.Errorf("identifier %q contains %q", id, "..")
	}

	if id == "." {
		return fmt.Errorf("identifier cannot be %q", ".")
	}

	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier %q (allowed: letters, digits, dot, underscore, hyphen)", id)
	}

	return nil
}

// ValidateIdentifiers validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateIdentifiers(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// SanitizeIdentifier trims surrounding whitespace and validates the result.
// Returns the trimmed identifier if valid, or an error if invalid.
//
// Use this on identifiers arriving from JSON tool arguments, where trailing
// whitespace from agent output is common:
//
//	id, err := validation.SanitizeIdentifier(raw)
//	if err != nil {
//	    return err
//	}
func SanitizeIdentifier(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateIdentifier(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
