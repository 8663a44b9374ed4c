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
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/pkg/telemetry"
)

// Uninstaller deletes the configuration of an environment and deregisters it.
type Uninstaller struct {
	base
}

// NewUninstaller creates an Uninstaller.
func NewUninstaller(cfg Config) *Uninstaller {
	return &Uninstaller{base: newBase(cfg, "uninstaller")}
}

// Uninstall removes env's var/docker tree, certificates included, then
// deregisters it.
//
// A running environment is refused before anything is deleted. The running
// state is read from the registry, which also marks the entry so that no
// other invocation can start it while its files are removed. Custom
// environments are only deregistered since their files belong to the
// user. Missing files and a missing registry entry are tolerated so that
// the operation can be retried.
func (u *Uninstaller) Uninstall(ctx context.Context, env *environment.Environment) (err error) {
	if env.Active {
		return &environment.InvalidStateError{Name: env.Name, Message: "Unable to uninstall a running environment."}
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "configuration.Uninstall",
		attribute.String("environment", env.Name),
		attribute.String("type", string(env.Type)),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		u.cfg.Metrics.RecordOperation(ctx, "uninstall", err, time.Since(start))
	}()

	if err := u.cfg.Registry.BeginRemoval(ctx, env); err != nil && !errors.Is(err, environment.ErrNotFound) {
		return err
	}

	err = u.withLocationLock(ctx, env.Location, func() error {
		if env.Type.IsCustom() {
			return nil
		}
		if err := u.cfg.Fs.RemoveAll(env.ConfigurationPath()); err != nil {
			return &environment.FilesystemError{Op: "remove configuration", Path: env.ConfigurationPath(), Err: err}
		}
		return nil
	})
	if err != nil {
		if abortErr := u.cfg.Registry.AbortRemoval(ctx, env); abortErr != nil {
			u.logger.Warn("failed to clear removal mark", "name", env.Name, "error", abortErr)
		}
		return err
	}

	if err := u.cfg.Registry.Remove(ctx, env); err != nil && !errors.Is(err, environment.ErrNotFound) {
		return err
	}
	u.logger.Info("environment uninstalled", "name", env.Name)
	return nil
}
