// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for values that
// reach database queries, cache keys or file paths.
//
// Dataset ids, neuron names and class names arrive from HTTP requests and
// are used as Cypher parameters and cache key parts. Rejecting anything
// outside the identifier alphabet keeps control characters and quoting
// out of those paths.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxIdentifierLength bounds dataset ids and neuron or class names.
const MaxIdentifierLength = 64

// ErrInvalidIdentifier is returned for names outside the identifier alphabet.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// identifierPattern matches dataset ids (witvliet_2020_7), neuron names
// (AVAL, BWM-DL01, g1AL) and class names (DefecationMuscles).
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,63}$`)

// ValidateIdentifier validates a dataset id, neuron name or class name.
//
// Valid identifiers:
//   - 1-64 characters
//   - Letters and digits, case preserved
//   - Underscores, dots and hyphens after the first character
//
// Example:
//
//	if err := validation.ValidateIdentifier(q.Start); err != nil {
//	    return err
//	}
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q (must be 1-%d letters, digits, '_', '.' or '-')",
			ErrInvalidIdentifier, name, MaxIdentifierLength)
	}
	return nil
}

// ValidateIdentifiers validates every name and reports all invalid ones.
func ValidateIdentifiers(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateIdentifier(n); err != nil {
			invalid = append(invalid, n)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, invalid)
	}
	return nil
}

// SanitizeIdentifier trims surrounding whitespace and validates the rest.
// Case is kept: AVAL and aval are different neurons.
func SanitizeIdentifier(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateIdentifier(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
