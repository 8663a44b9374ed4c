// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package template maps environment types to their configuration templates.
package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/AleutianAI/origami/cmd/origami/internal/dotenv"
	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
)

// DefaultImageVersion is the PHP image tag used when none is configured.
const DefaultImageVersion = "latest"

//go:embed all:resources
var resources embed.FS

// Descriptor locates the template of one environment type.
type Descriptor struct {
	Type environment.Type

	// SourceDir is the template root inside FS.
	SourceDir string

	// DefaultImageVersion seeds DOCKER_PHP_IMAGE when it is unset.
	DefaultImageVersion string

	// FS holds the template tree.
	FS fs.FS
}

// Entry is one row of the dispatch table.
type Entry struct {
	SourceDir           string
	DefaultImageVersion string
}

// DefaultTable is the dispatch table of the embedded templates.
// TypeCustom is deliberately absent.
var DefaultTable = map[environment.Type]Entry{
	environment.TypeDrupal:      {SourceDir: "resources/drupal", DefaultImageVersion: DefaultImageVersion},
	environment.TypeMagento2:    {SourceDir: "resources/magento2", DefaultImageVersion: DefaultImageVersion},
	environment.TypeOroCommerce: {SourceDir: "resources/orocommerce", DefaultImageVersion: DefaultImageVersion},
	environment.TypeSylius:      {SourceDir: "resources/sylius", DefaultImageVersion: DefaultImageVersion},
	environment.TypeSymfony:     {SourceDir: "resources/symfony", DefaultImageVersion: DefaultImageVersion},
}

// Resolver maps an environment type to its template.
type Resolver interface {
	// Resolve fails with *UnsupportedTypeError for custom or unknown types.
	Resolve(t environment.Type) (Descriptor, error)
}

// DefaultResolver resolves against a dispatch table over an fs.FS.
type DefaultResolver struct {
	fsys  fs.FS
	table map[environment.Type]Entry
}

// NewResolver returns a resolver over the embedded templates.
func NewResolver() *DefaultResolver {
	return NewResolverFS(resources, DefaultTable)
}

// NewResolverFS returns a resolver over an arbitrary tree.
func NewResolverFS(fsys fs.FS, table map[environment.Type]Entry) *DefaultResolver {
	return &DefaultResolver{fsys: fsys, table: table}
}

// Resolve implements Resolver.
func (r *DefaultResolver) Resolve(t environment.Type) (Descriptor, error) {
	entry, ok := r.table[t]
	if !ok || t.IsCustom() {
		return Descriptor{}, &environment.UnsupportedTypeError{Type: string(t)}
	}

	info, err := fs.Stat(r.fsys, entry.SourceDir)
	if err != nil {
		return Descriptor{}, &environment.FilesystemError{Op: "stat template", Path: entry.SourceDir, Err: err}
	}
	if !info.IsDir() {
		return Descriptor{}, &environment.FilesystemError{Op: "stat template", Path: entry.SourceDir, Err: errors.New("not a directory")}
	}

	sub, err := fs.Sub(r.fsys, entry.SourceDir)
	if err != nil {
		return Descriptor{}, &environment.FilesystemError{Op: "open template", Path: entry.SourceDir, Err: err}
	}

	version := entry.DefaultImageVersion
	if version == "" {
		version = DefaultImageVersion
	}
	return Descriptor{
		Type:                t,
		SourceDir:           entry.SourceDir,
		DefaultImageVersion: version,
		FS:                  sub,
	}, nil
}

// DotEnv parses the template's .env file. A template without one yields
// an empty document.
func (d Descriptor) DotEnv() (*dotenv.Document, error) {
	data, err := fs.ReadFile(d.FS, environment.DotEnvFile)
	if errors.Is(err, fs.ErrNotExist) {
		return dotenv.Parse(nil), nil
	}
	if err != nil {
		return nil, &environment.FilesystemError{Op: "read template", Path: path.Join(d.SourceDir, environment.DotEnvFile), Err: err}
	}
	return dotenv.Parse(data), nil
}

// CopyTo writes the template tree under dest, overwriting existing files.
//
// Files for which skip returns true are left untouched; skip receives the
// slash-separated path relative to the template root and may be nil.
// Placeholder .gitkeep files only materialize their directory.
func (d Descriptor) CopyTo(fsys afero.Fs, dest string, skip func(rel string) bool) error {
	return fs.WalkDir(d.FS, ".", func(rel string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))

		if entry.IsDir() {
			if err := fsys.MkdirAll(target, 0755); err != nil {
				return &environment.FilesystemError{Op: "create directory", Path: target, Err: err}
			}
			return nil
		}
		if entry.Name() == ".gitkeep" || (skip != nil && skip(rel)) {
			return nil
		}

		data, err := fs.ReadFile(d.FS, rel)
		if err != nil {
			return &environment.FilesystemError{Op: "read template", Path: rel, Err: err}
		}
		if err := afero.WriteFile(fsys, target, data, 0644); err != nil {
			return &environment.FilesystemError{Op: "write", Path: target, Err: err}
		}
		return nil
	})
}

// Files lists the template files, relative to its root, excluding placeholders.
func (d Descriptor) Files() ([]string, error) {
	var files []string
	err := fs.WalkDir(d.FS, ".", func(rel string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && entry.Name() != ".gitkeep" {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list template %s: %w", d.SourceDir, err)
	}
	return files, nil
}

var _ Resolver = (*DefaultResolver)(nil)
