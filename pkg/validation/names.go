// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided names before they reach a
// subprocess command line or its environment.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidEnvVar is returned for a malformed environment variable name.
	ErrInvalidEnvVar = errors.New("invalid environment variable")

	// ErrInvalidServiceName is returned for a malformed compose service name.
	ErrInvalidServiceName = errors.New("invalid service name")
)

// ValidateEnvVarName checks that name matches [a-zA-Z_][a-zA-Z0-9_]*.
//
// Example:
//
//	if err := validation.ValidateEnvVarName(key); err != nil {
//	    return err
//	}
//	// Safe to pass as KEY=value
func ValidateEnvVarName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidEnvVar)
	}
	for i, r := range name {
		if r == '_' || isASCIILetter(r) || (i > 0 && isASCIIDigit(r)) {
			continue
		}
		return fmt.Errorf("%w: key %q contains invalid characters (must match [a-zA-Z_][a-zA-Z0-9_]*)", ErrInvalidEnvVar, name)
	}
	return nil
}

// ValidateEnvVarNames validates every key of vars.
// Returns an error listing all invalid keys, sorted.
func ValidateEnvVarNames(vars map[string]string) error {
	var invalid []string
	for k := range vars {
		if ValidateEnvVarName(k) != nil {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return fmt.Errorf("%w: %s", ErrInvalidEnvVar, strings.Join(invalid, ", "))
	}
	return nil
}

// ValidateServiceName checks a compose service name: letters, digits,
// dot, dash and underscore, starting with a letter or digit.
func ValidateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidServiceName)
	}
	for i, r := range name {
		if isASCIILetter(r) || isASCIIDigit(r) || (i > 0 && strings.ContainsRune("._-", r)) {
			continue
		}
		return fmt.Errorf("%w: %q", ErrInvalidServiceName, name)
	}
	return nil
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
