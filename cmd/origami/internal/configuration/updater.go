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
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/origami/cmd/origami/internal/dotenv"
	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/pkg/telemetry"
)

// UpdateResult is the outcome of a successful update.
type UpdateResult struct {
	// SeededKeys lists template keys added to an existing .env.
	SeededKeys []string

	Warnings []string
}

// Updater refreshes the configuration of an existing environment.
type Updater struct {
	base
}

// NewUpdater creates an Updater.
func NewUpdater(cfg Config) *Updater {
	return &Updater{base: newBase(cfg, "updater")}
}

// Update regenerates env's configuration from its template.
//
// # Description
//
// Every template file except .env is rewritten. The existing .env is
// merged instead: stored values survive, keys new to the template are
// appended, an empty DOCKER_PHP_IMAGE is seeded with the template default,
// and credentials from the calling process always overwrite stored ones.
//
// # Outputs
//
//   - *UpdateResult: Seeded keys and warnings.
//   - error: *InvalidEnvironmentError for custom or running environments,
//     *FilesystemError on I/O failures.
func (u *Updater) Update(ctx context.Context, env *environment.Environment) (result *UpdateResult, err error) {
	if env.Type.IsCustom() {
		return nil, environment.NewInvalidEnvironmentError("Unable to update a custom environment.")
	}
	running, err := u.isRunning(ctx, env)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, environment.NewInvalidEnvironmentError("Unable to update a running environment.")
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "configuration.Update",
		attribute.String("environment", env.Name),
		attribute.String("type", string(env.Type)),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		u.cfg.Metrics.RecordOperation(ctx, "update", err, time.Since(start))
	}()

	result = &UpdateResult{}
	err = u.withLocationLock(ctx, env.Location, func() error {
		desc, err := u.cfg.Templates.Resolve(env.Type)
		if err != nil {
			return err
		}
		if err := desc.CopyTo(u.cfg.Fs, env.ConfigurationPath(), func(rel string) bool {
			return rel == environment.DotEnvFile
		}); err != nil {
			return err
		}

		doc, err := dotenv.ReadFile(u.cfg.Fs, env.DotEnvPath())
		if err != nil {
			return &environment.FilesystemError{Op: "read", Path: env.DotEnvPath(), Err: err}
		}
		defaults, err := desc.DotEnv()
		if err != nil {
			return err
		}
		result.SeededKeys = doc.SeedMissing(defaults)

		if value, ok := doc.Get(environment.PHPImageKey); !ok || value == "" {
			doc.Set(environment.PHPImageKey, desc.DefaultImageVersion)
		}
		u.cfg.Credentials.Overlay(doc)

		if err := dotenv.WriteFile(u.cfg.Fs, env.DotEnvPath(), doc); err != nil {
			return &environment.FilesystemError{Op: "write", Path: env.DotEnvPath(), Err: err}
		}

		if len(env.Domains) > 0 && !u.certificatesPresent(env) {
			_, result.Warnings = u.issueCertificates(ctx, env)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("environment updated", "name", env.Name, "seeded", result.SeededKeys)
	return result, nil
}

func (u *Updater) certificatesPresent(env *environment.Environment) bool {
	for _, name := range []string{CertificateFile, KeyFile} {
		ok, err := afero.Exists(u.cfg.Fs, filepath.Join(env.CertificatesPath(), name))
		if err != nil || !ok {
			return false
		}
	}
	return true
}
