// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package configuration installs, updates and removes the configuration
// tree of an environment.
//
// The tree lives in {location}/var/docker and is rendered from the
// template of the environment type. Operations on the same location are
// serialized with a file lock kept in LockDir; different locations never
// contend.
package configuration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/process"
	"github.com/AleutianAI/origami/cmd/origami/internal/registry"
	"github.com/AleutianAI/origami/cmd/origami/internal/template"
	"github.com/AleutianAI/origami/pkg/logging"
	"github.com/AleutianAI/origami/pkg/telemetry"
)

const defaultLockTimeout = 10 * time.Second

// Config holds the collaborators shared by Installer, Updater and Uninstaller.
type Config struct {
	// Fs is the filesystem holding environment locations. Default: OS filesystem
	Fs afero.Fs

	// Templates resolves environment types. Default: embedded templates
	Templates template.Resolver

	// Registry persists environments. Required.
	Registry registry.Registry

	// Issuer creates TLS certificates. Nil disables issuance with a warning.
	Issuer Issuer

	// Credentials injected into .env files.
	Credentials Credentials

	// LockDir holds the per-location lock files. Required.
	LockDir string

	// LockTimeout bounds the wait for a location lock. Default: 10s
	LockTimeout time.Duration

	Logger  *logging.Logger
	Metrics *telemetry.Metrics
}

type base struct {
	cfg    Config
	logger *logging.Logger
}

func newBase(cfg Config, component string) base {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Templates == nil {
		cfg.Templates = template.NewResolver()
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.Default()
	}
	cfg.Credentials = cfg.Credentials.withDefaults()
	return base{cfg: cfg, logger: cfg.Logger.With("component", component)}
}

// withLocationLock runs fn while holding the lock of location.
func (b base) withLocationLock(ctx context.Context, location string, fn func() error) error {
	lock := process.NewFileLock(process.FileLockConfig{Path: LockPath(b.cfg.LockDir, location)})

	lockCtx, cancel := context.WithTimeout(ctx, b.cfg.LockTimeout)
	defer cancel()
	if err := lock.Acquire(lockCtx); err != nil {
		return &environment.FilesystemError{Op: "lock environment", Path: location, Err: err}
	}
	defer func() {
		if err := lock.Release(); err != nil {
			b.logger.Warn("failed to release environment lock", "location", location, "error", err)
		}
	}()
	return fn()
}

// isRunning reports whether env is running according to the registry. The
// caller's copy may predate an activation by another invocation. An
// unregistered environment is not running.
func (b base) isRunning(ctx context.Context, env *environment.Environment) (bool, error) {
	if env.Active {
		return true, nil
	}
	current, err := b.cfg.Registry.Find(ctx, env.Name)
	if errors.Is(err, environment.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current.Active, nil
}

// LockPath returns the lock file guarding location.
func LockPath(lockDir, location string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(location)))
	return filepath.Join(lockDir, hex.EncodeToString(sum[:8])+".lock")
}

// issueCertificates requests a certificate for env's domains and turns any
// failure into a warning.
func (b base) issueCertificates(ctx context.Context, env *environment.Environment) (*CertificatePair, []string) {
	if b.cfg.Issuer == nil {
		return nil, []string{"mkcert is not available, no certificate has been issued."}
	}
	dir := env.CertificatesPath()
	if err := b.cfg.Fs.MkdirAll(dir, 0755); err != nil {
		b.logger.Warn("certificate directory not created", "dir", dir, "error", err)
		return nil, []string{"Unable to create the certificates directory: " + err.Error()}
	}
	pair, err := b.cfg.Issuer.Issue(ctx, dir, env.Domains)
	if err != nil {
		b.logger.Warn("certificate issuance failed", "environment", env.Name, "error", err)
		return nil, []string{"Unable to issue a certificate: " + err.Error()}
	}
	return &pair, nil
}
