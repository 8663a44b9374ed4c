// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package variables derives the compose variables of an environment.
package variables

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/AleutianAI/origami/cmd/origami/internal/dotenv"
	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
)

// Variable names handed to the compose binary.
const (
	ComposeFile        = "COMPOSE_FILE"
	ComposeProjectName = "COMPOSE_PROJECT_NAME"
	PHPImage           = environment.PHPImageKey
	ProjectLocation    = "PROJECT_LOCATION"
)

// DefaultPHPImage is reported when the .env file has no image.
const DefaultPHPImage = "default"

// Resolver computes the variable map of an environment from its entity and
// its .env file. It never writes.
type Resolver struct {
	fs afero.Fs
}

// NewResolver returns a Resolver reading from fsys. Nil means the OS filesystem.
func NewResolver(fsys afero.Fs) *Resolver {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Resolver{fs: fsys}
}

// Resolve returns COMPOSE_FILE, COMPOSE_PROJECT_NAME, DOCKER_PHP_IMAGE and
// PROJECT_LOCATION for env. A missing .env file yields the default image.
func (r *Resolver) Resolve(env *environment.Environment) (map[string]string, error) {
	doc, err := dotenv.ReadFile(r.fs, env.DotEnvPath())
	if err != nil {
		return nil, &environment.FilesystemError{Op: "read", Path: env.DotEnvPath(), Err: err}
	}

	image, ok := doc.Get(environment.PHPImageKey)
	if !ok || image == "" {
		image = DefaultPHPImage
	}

	return map[string]string{
		ComposeFile:        env.ComposeFilePath(),
		ComposeProjectName: env.ProjectName(),
		PHPImage:           image,
		ProjectLocation:    env.Location,
	}, nil
}

// Keys returns the keys of vars in sorted order.
func Keys(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExportLines renders vars as sorted shell export statements, suitable for
// eval "$(origami root)".
func ExportLines(vars map[string]string) []string {
	lines := make([]string, 0, len(vars))
	for _, k := range Keys(vars) {
		lines = append(lines, fmt.Sprintf("export %s=%s", k, shellQuote(vars[k])))
	}
	return lines
}

// Environ renders vars as KEY=value pairs in sorted order.
func Environ(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for _, k := range Keys(vars) {
		out = append(out, k+"="+vars[k])
	}
	return out
}

func shellQuote(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
	return `"` + r.Replace(v) + `"`
}
