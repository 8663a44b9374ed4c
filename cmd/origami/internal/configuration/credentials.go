// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package configuration

import (
	"os"

	"github.com/AleutianAI/origami/cmd/origami/internal/dotenv"
)

// DefaultCredentialKeys are the variables copied from the calling process
// into every rendered .env file.
var DefaultCredentialKeys = []string{
	"BLACKFIRE_CLIENT_ID",
	"BLACKFIRE_CLIENT_TOKEN",
	"BLACKFIRE_SERVER_ID",
	"BLACKFIRE_SERVER_TOKEN",
}

// Variables is a source of externally supplied values.
type Variables interface {
	Lookup(key string) (string, bool)
}

// OSVariables reads the process environment.
type OSVariables struct{}

// Lookup implements Variables.
func (OSVariables) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapVariables is a fixed set of values, mainly for tests.
type MapVariables map[string]string

// Lookup implements Variables.
func (m MapVariables) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Credentials selects which external values are injected into .env files.
type Credentials struct {
	// Keys lists the variables to inject. Nil means DefaultCredentialKeys.
	Keys []string

	// Source supplies the values. Nil means OSVariables.
	Source Variables
}

func (c Credentials) withDefaults() Credentials {
	if c.Keys == nil {
		c.Keys = DefaultCredentialKeys
	}
	if c.Source == nil {
		c.Source = OSVariables{}
	}
	return c
}

// Overlay writes every key present and non-empty in the source into doc,
// replacing stored values. It returns the keys it applied.
func (c Credentials) Overlay(doc *dotenv.Document) []string {
	c = c.withDefaults()
	var applied []string
	for _, key := range c.Keys {
		value, ok := c.Source.Lookup(key)
		if !ok || value == "" {
			continue
		}
		doc.Set(key, value)
		applied = append(applied, key)
	}
	return applied
}
