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
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/origami/cmd/origami/internal/dotenv"
	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/pkg/telemetry"
)

// InstallRequest describes a new environment. The values typically come
// from the install wizard or command flags.
type InstallRequest struct {
	Name       string
	Location   string
	Type       environment.Type
	PHPVersion string
	Domains    []string
}

// InstallResult is the outcome of a successful install.
type InstallResult struct {
	Environment *environment.Environment

	// Certificates is nil when no certificate was issued.
	Certificates *CertificatePair

	// Warnings lists recovered problems, such as a failed issuance.
	Warnings []string
}

// Installer renders the configuration of new environments and registers them.
type Installer struct {
	base
}

// NewInstaller creates an Installer.
func NewInstaller(cfg Config) *Installer {
	return &Installer{base: newBase(cfg, "installer")}
}

// Install configures and registers a new environment.
//
// # Description
//
// Preset types get a fresh var/docker tree copied from their template and
// a rendered .env. Custom environments are registered without touching
// the location. Certificate issuance failures are downgraded to warnings.
// Earlier steps are not rolled back when a later one fails.
//
// # Inputs
//
//   - ctx: Bounds the location lock wait and the certificate subprocess.
//   - req: The environment to create.
//
// # Outputs
//
//   - *InstallResult: The registered environment and any warnings.
//   - error: *InvalidEnvironmentError when the location is unusable or
//     already configured, *DuplicateEnvironmentError for a taken name,
//     *FilesystemError on I/O failures.
func (i *Installer) Install(ctx context.Context, req InstallRequest) (result *InstallResult, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "configuration.Install",
		attribute.String("environment", req.Name),
		attribute.String("type", string(req.Type)),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		i.cfg.Metrics.RecordOperation(ctx, "install", err, time.Since(start))
	}()

	env, err := environment.New(req.Name, req.Location, req.Type, req.PHPVersion, req.Domains)
	if err != nil {
		return nil, err
	}
	if err := i.checkAvailability(ctx, env); err != nil {
		return nil, err
	}

	result = &InstallResult{Environment: env}
	err = i.withLocationLock(ctx, env.Location, func() error {
		if err := i.checkLocation(env); err != nil {
			return err
		}
		if env.Type.IsCustom() {
			return nil
		}
		if err := i.render(env); err != nil {
			return err
		}
		if len(env.Domains) > 0 {
			result.Certificates, result.Warnings = i.issueCertificates(ctx, env)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := i.cfg.Registry.Register(ctx, env); err != nil {
		return nil, err
	}
	i.logger.Info("environment installed", "name", env.Name, "type", env.Type, "location", env.Location)
	return result, nil
}

// checkAvailability rejects names and locations already in the registry.
func (i *Installer) checkAvailability(ctx context.Context, env *environment.Environment) error {
	if _, err := i.cfg.Registry.Find(ctx, env.Name); err == nil {
		return &environment.DuplicateEnvironmentError{Name: env.Name}
	} else if !errors.Is(err, environment.ErrNotFound) {
		return err
	}

	existing, err := i.cfg.Registry.List(ctx)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.Location == env.Location {
			return environment.NewInvalidEnvironmentError("The environment %q is already registered at %q.", other.Name, env.Location)
		}
	}
	return nil
}

// checkLocation verifies the location exists, is a writable directory and
// holds no configuration yet.
func (i *Installer) checkLocation(env *environment.Environment) error {
	fsys := i.cfg.Fs

	info, err := fsys.Stat(env.Location)
	if errors.Is(err, fs.ErrNotExist) {
		return environment.NewInvalidEnvironmentError("The location %q does not exist.", env.Location)
	}
	if err != nil {
		return &environment.FilesystemError{Op: "stat", Path: env.Location, Err: err}
	}
	if !info.IsDir() {
		return environment.NewInvalidEnvironmentError("The location %q is not a directory.", env.Location)
	}

	probe, err := afero.TempFile(fsys, env.Location, ".origami-*")
	if err != nil {
		return environment.NewInvalidEnvironmentError("The location %q is not writable.", env.Location)
	}
	_ = probe.Close()
	_ = fsys.Remove(probe.Name())

	if env.Type.IsCustom() {
		return nil
	}
	exists, err := afero.Exists(fsys, env.ConfigurationPath())
	if err != nil {
		return &environment.FilesystemError{Op: "stat", Path: env.ConfigurationPath(), Err: err}
	}
	if exists {
		return environment.NewInvalidEnvironmentError("The location %q already contains an environment configuration.", env.Location)
	}
	return nil
}

// render copies the template tree and writes the .env file.
func (i *Installer) render(env *environment.Environment) error {
	desc, err := i.cfg.Templates.Resolve(env.Type)
	if err != nil {
		return err
	}
	if err := desc.CopyTo(i.cfg.Fs, env.ConfigurationPath(), nil); err != nil {
		return err
	}

	doc, err := desc.DotEnv()
	if err != nil {
		return err
	}
	version := env.PHPVersion
	if version == "" {
		version = desc.DefaultImageVersion
	}
	doc.Set(environment.PHPImageKey, version)
	if applied := i.cfg.Credentials.Overlay(doc); len(applied) > 0 {
		i.logger.Debug("credentials injected", "keys", applied)
	}

	if err := dotenv.WriteFile(i.cfg.Fs, env.DotEnvPath(), doc); err != nil {
		return &environment.FilesystemError{Op: "write", Path: env.DotEnvPath(), Err: err}
	}
	return nil
}
