// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lifecycle is the caller layer of the environment core.
//
// It resolves which environment a command targets, gates on system
// requirements, flips the active flag around compose invocations and
// collects recoverable problems as warnings. Commands only render what
// it returns.
package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/origami/cmd/origami/internal/configuration"
	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/compose"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/mutagen"
	"github.com/AleutianAI/origami/cmd/origami/internal/registry"
	"github.com/AleutianAI/origami/cmd/origami/internal/requirements"
	"github.com/AleutianAI/origami/cmd/origami/internal/variables"
	"github.com/AleutianAI/origami/pkg/logging"
	"github.com/AleutianAI/origami/pkg/telemetry"
)

// MissingContextMessage is reported when no environment can be inferred.
const MissingContextMessage = "An environment must be given, please consider using the install command instead."

// Installer creates environments.
type Installer interface {
	Install(ctx context.Context, req configuration.InstallRequest) (*configuration.InstallResult, error)
}

// Updater refreshes the configuration of an environment.
type Updater interface {
	Update(ctx context.Context, env *environment.Environment) (*configuration.UpdateResult, error)
}

// Uninstaller removes an environment.
type Uninstaller interface {
	Uninstall(ctx context.Context, env *environment.Environment) error
}

// Config wires the collaborators of a Service.
type Config struct {
	Registry     registry.Registry
	Checker      requirements.Checker
	Orchestrator compose.Orchestrator
	Variables    *variables.Resolver
	Installer    Installer
	Updater      Updater
	Uninstaller  Uninstaller

	// Syncer manages file-sync sessions. Nil disables sync.
	Syncer mutagen.Syncer

	Logger  *logging.Logger
	Metrics *telemetry.Metrics
}

// Outcome is what a lifecycle operation reports back to the command.
type Outcome struct {
	Environment *environment.Environment
	Result      *compose.Result
	Warnings    []string
}

func (o *Outcome) warn(msg string) {
	o.Warnings = append(o.Warnings, msg)
}

// Service runs lifecycle operations.
type Service struct {
	cfg    Config
	logger *logging.Logger
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.Default()
	}
	if cfg.Variables == nil {
		cfg.Variables = variables.NewResolver(nil)
	}
	return &Service{cfg: cfg, logger: cfg.Logger.With("component", "lifecycle")}
}

// =============================================================================
// Context resolution
// =============================================================================

// Resolve returns the environment a command targets.
//
// # Description
//
// An explicit name wins. Otherwise the running environment is used, and
// failing that the registered environment whose location contains cwd.
//
// # Outputs
//
//   - *environment.Environment: The target.
//   - error: *NotFoundError for an unknown name, *InvalidEnvironmentError
//     when nothing can be inferred.
func (s *Service) Resolve(ctx context.Context, name, cwd string) (*environment.Environment, error) {
	if name != "" {
		return s.cfg.Registry.Find(ctx, name)
	}

	env, err := s.cfg.Registry.Active(ctx)
	if err == nil {
		return env, nil
	}
	if !errors.Is(err, environment.ErrNoActiveEnvironment) {
		return nil, err
	}

	if cwd != "" {
		env, err = s.cfg.Registry.FindByLocation(ctx, cwd)
		if err == nil {
			return env, nil
		}
		if !errors.Is(err, environment.ErrNotFound) {
			return nil, err
		}
	}
	return nil, environment.NewInvalidEnvironmentError(MissingContextMessage)
}

// Running returns the active environment or *NoActiveEnvironmentError.
func (s *Service) Running(ctx context.Context) (*environment.Environment, error) {
	return s.cfg.Registry.Active(ctx)
}

// List returns every registered environment.
func (s *Service) List(ctx context.Context) ([]*environment.Environment, error) {
	return s.cfg.Registry.List(ctx)
}

// Requirements probes the binaries listed in the requirement catalogs.
func (s *Service) Requirements() requirements.Report {
	return s.cfg.Checker.Report()
}

// Variables returns the compose variables of env.
func (s *Service) Variables(env *environment.Environment) (map[string]string, error) {
	return s.cfg.Variables.Resolve(env)
}

// =============================================================================
// Configuration
// =============================================================================

// Install creates and registers a new environment.
func (s *Service) Install(ctx context.Context, req configuration.InstallRequest) (*configuration.InstallResult, error) {
	return s.cfg.Installer.Install(ctx, req)
}

// Register records cwd as a custom environment. An empty name defaults to
// the base name of cwd.
func (s *Service) Register(ctx context.Context, name, cwd string) (*configuration.InstallResult, error) {
	if name == "" {
		name = filepath.Base(filepath.Clean(cwd))
	}
	return s.cfg.Installer.Install(ctx, configuration.InstallRequest{
		Name:     name,
		Location: cwd,
		Type:     environment.TypeCustom,
	})
}

// Update refreshes the configuration of env.
func (s *Service) Update(ctx context.Context, env *environment.Environment) (*configuration.UpdateResult, error) {
	return s.cfg.Updater.Update(ctx, env)
}

// Uninstall stops the containers of env, removing their volumes, then
// deletes its configuration and deregisters it. A failed teardown is only
// a warning.
//
// A running environment is refused before anything happens. The check is
// made against the registry, which marks the entry as being removed so
// that a concurrent start cannot bring it up during the teardown.
func (s *Service) Uninstall(ctx context.Context, env *environment.Environment) (outcome *Outcome, err error) {
	if env.Active {
		return nil, &environment.InvalidStateError{Name: env.Name, Message: "Unable to uninstall a running environment."}
	}
	ctx, done := s.observe(ctx, "uninstall", env)
	defer func() { done(err) }()

	if err := s.cfg.Registry.BeginRemoval(ctx, env); err != nil && !errors.Is(err, environment.ErrNotFound) {
		return nil, err
	}
	defer func() {
		if err == nil {
			return
		}
		if abortErr := s.cfg.Registry.AbortRemoval(ctx, env); abortErr != nil {
			s.logger.Warn("failed to clear removal mark", "environment", env.Name, "error", abortErr)
		}
	}()

	outcome = &Outcome{Environment: env}
	vars, err := s.Variables(env)
	if err != nil {
		return nil, err
	}
	result, downErr := s.cfg.Orchestrator.Down(ctx, vars, compose.DownOptions{Volumes: true, RemoveImages: true})
	outcome.Result = result
	if downErr != nil {
		s.logger.Warn("teardown before uninstall failed", "environment", env.Name, "error", downErr)
		outcome.warn("An error occurred while removing the Docker resources: " + downErr.Error())
	}

	if err := s.cfg.Uninstaller.Uninstall(ctx, env); err != nil {
		return nil, err
	}
	return outcome, nil
}

// =============================================================================
// Orchestration
// =============================================================================

// Start activates env and brings its containers up.
//
// # Description
//
// Mandatory requirements are checked first. The environment is activated
// before compose runs so that a concurrent start of another environment
// fails with *AlreadyActiveError, and deactivated again if compose fails.
// A failed sync session is reported as a warning.
func (s *Service) Start(ctx context.Context, env *environment.Environment) (outcome *Outcome, err error) {
	ctx, done := s.observe(ctx, "start", env)
	defer func() { done(err) }()

	if err := s.Requirements().Gate(); err != nil {
		return nil, err
	}
	vars, err := s.Variables(env)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.Registry.Activate(ctx, env); err != nil {
		return nil, err
	}

	outcome = &Outcome{Environment: env}
	outcome.Result, err = s.cfg.Orchestrator.Up(ctx, vars)
	if err != nil {
		if derr := s.cfg.Registry.Deactivate(ctx, env); derr != nil {
			s.logger.Error("failed to deactivate after start failure", "environment", env.Name, "error", derr)
		}
		return nil, err
	}

	if s.cfg.Syncer != nil {
		if serr := s.cfg.Syncer.Start(ctx, env); serr != nil {
			s.logger.Warn("sync session not started", "environment", env.Name, "error", serr)
			outcome.warn("Unable to start the file synchronization: " + serr.Error())
		}
	}
	s.logger.Info("environment started", "environment", env.Name)
	return outcome, nil
}

// Stop tears down the running environment and deactivates it.
func (s *Service) Stop(ctx context.Context) (outcome *Outcome, err error) {
	env, err := s.Running(ctx)
	if err != nil {
		return nil, err
	}
	ctx, done := s.observe(ctx, "stop", env)
	defer func() { done(err) }()

	outcome = &Outcome{Environment: env}
	if s.cfg.Syncer != nil {
		if serr := s.cfg.Syncer.Stop(ctx, env); serr != nil {
			s.logger.Warn("sync session not terminated", "environment", env.Name, "error", serr)
			outcome.warn("Unable to stop the file synchronization: " + serr.Error())
		}
	}

	vars, err := s.Variables(env)
	if err != nil {
		return nil, err
	}
	outcome.Result, err = s.cfg.Orchestrator.Down(ctx, vars, compose.DownOptions{})
	if err != nil {
		return nil, err
	}
	if err := s.cfg.Registry.Deactivate(ctx, env); err != nil {
		return nil, err
	}
	s.logger.Info("environment stopped", "environment", env.Name)
	return outcome, nil
}

// Restart restarts the containers of the running environment.
func (s *Service) Restart(ctx context.Context) (*Outcome, error) {
	return s.withRunning(ctx, "restart", func(ctx context.Context, vars map[string]string) (*compose.Result, error) {
		return s.cfg.Orchestrator.Restart(ctx, vars)
	})
}

// Ps shows the services of the running environment.
func (s *Service) Ps(ctx context.Context) (*Outcome, error) {
	return s.withRunning(ctx, "ps", func(ctx context.Context, vars map[string]string) (*compose.Result, error) {
		return s.cfg.Orchestrator.Ps(ctx, vars)
	})
}

// Logs shows the logs of the running environment.
func (s *Service) Logs(ctx context.Context, opts compose.LogsOptions) (*Outcome, error) {
	return s.withRunning(ctx, "logs", func(ctx context.Context, vars map[string]string) (*compose.Result, error) {
		return s.cfg.Orchestrator.Logs(ctx, vars, opts)
	})
}

// Exec opens a command or a shell inside a service of the running environment.
func (s *Service) Exec(ctx context.Context, opts compose.ExecOptions) (*Outcome, error) {
	return s.withRunning(ctx, "exec", func(ctx context.Context, vars map[string]string) (*compose.Result, error) {
		return s.cfg.Orchestrator.Exec(ctx, vars, opts)
	})
}

// Root returns the export statements of the running environment.
func (s *Service) Root(ctx context.Context) ([]string, error) {
	env, err := s.Running(ctx)
	if err != nil {
		return nil, err
	}
	vars, err := s.Variables(env)
	if err != nil {
		return nil, err
	}
	return variables.ExportLines(vars), nil
}

func (s *Service) withRunning(ctx context.Context, op string, fn func(context.Context, map[string]string) (*compose.Result, error)) (outcome *Outcome, err error) {
	env, err := s.Running(ctx)
	if err != nil {
		return nil, err
	}
	ctx, done := s.observe(ctx, op, env)
	defer func() { done(err) }()

	vars, err := s.Variables(env)
	if err != nil {
		return nil, err
	}
	result, err := fn(ctx, vars)
	if err != nil {
		return nil, err
	}
	return &Outcome{Environment: env, Result: result}, nil
}

// observe opens a span for op and returns the function closing it and
// recording the operation metric.
func (s *Service) observe(ctx context.Context, op string, env *environment.Environment) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "lifecycle."+op, attribute.String("environment", env.Name))
	return ctx, func(err error) {
		telemetry.EndSpan(span, err)
		s.cfg.Metrics.RecordOperation(ctx, op, err, time.Since(start))
	}
}
