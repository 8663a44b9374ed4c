// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/AleutianAI/origami/cmd/origami/config"
	"github.com/AleutianAI/origami/cmd/origami/internal/configuration"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/compose"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/mutagen"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/process"
	"github.com/AleutianAI/origami/cmd/origami/internal/lifecycle"
	"github.com/AleutianAI/origami/cmd/origami/internal/registry"
	"github.com/AleutianAI/origami/cmd/origami/internal/requirements"
	"github.com/AleutianAI/origami/cmd/origami/internal/variables"
	"github.com/AleutianAI/origami/pkg/logging"
	"github.com/AleutianAI/origami/pkg/telemetry"
	"github.com/AleutianAI/origami/pkg/ux"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// Replaced in tests.
var (
	newProcessManager = func() process.Manager { return process.NewDefaultManager() }
	newOrchestrator   = func(cfg compose.Config, proc process.Manager) compose.Orchestrator {
		return compose.NewOrchestrator(cfg, proc)
	}
	newPrinter = ux.NewPrinter
)

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	verbose bool
	quiet   bool
	env     string
}

// app holds the collaborators shared by every command of one invocation.
type app struct {
	cfg     config.OrigamiConfig
	logger  *logging.Logger
	printer *ux.Printer
	service *lifecycle.Service
	flags   *globalFlags

	shutdown func(context.Context) error
}

// newApp loads the configuration and wires the lifecycle service.
func newApp(ctx context.Context, cfg config.OrigamiConfig, home string, flags *globalFlags) (*app, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelWarn
	}
	if flags.verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "origami",
		JSON:    cfg.Logging.JSON,
		Quiet:   flags.quiet,
	})

	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceVersion = Version
	if cfg.Telemetry.Traces != "" {
		telCfg.TraceExporter = cfg.Telemetry.Traces
	}
	if cfg.Telemetry.Metrics != "" {
		telCfg.MetricExporter = cfg.Telemetry.Metrics
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
		telCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	}
	telCfg.MetricsFile = cfg.Telemetry.MetricsFile
	shutdown, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	stateDir := cfg.ResolveStateDir(home)
	reg, err := registry.New(registry.Config{
		StateDir:    stateDir,
		LockTimeout: cfg.GetLockTimeout(),
		Logger:      logger,
	})
	if err != nil {
		_ = shutdown(ctx)
		_ = logger.Close()
		return nil, err
	}

	proc := newProcessManager()
	checker := requirements.NewChecker(proc.LookPath)
	report := checker.Report()

	var issuer configuration.Issuer
	if report.OptionalFound("mkcert") {
		issuer = configuration.NewMkcertIssuer(proc, logger)
	}
	confCfg := configuration.Config{
		Registry:    reg,
		Issuer:      issuer,
		Credentials: configuration.Credentials{Keys: cfg.Credentials, Source: configuration.OSVariables{}},
		LockDir:     filepath.Join(stateDir, "locks"),
		LockTimeout: cfg.GetLockTimeout(),
		Logger:      logger,
	}

	printer := newPrinter()
	var syncer mutagen.Syncer
	if cfg.Sync.Enabled {
		syncer = mutagen.NewSyncer(proc, logger)
	}

	service := lifecycle.NewService(lifecycle.Config{
		Registry: reg,
		Checker:  checker,
		Orchestrator: newOrchestrator(compose.Config{
			Binary: cfg.Compose.Binary,
			Stdout: printer.Out,
			Stderr: printer.Err,
			Logger: logger,
		}, proc),
		Variables:   variables.NewResolver(nil),
		Installer:   configuration.NewInstaller(confCfg),
		Updater:     configuration.NewUpdater(confCfg),
		Uninstaller: configuration.NewUninstaller(confCfg),
		Syncer:      syncer,
		Logger:      logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		printer:  printer,
		service:  service,
		flags:    flags,
		shutdown: shutdown,
	}, nil
}

// Close flushes telemetry and closes the log file.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.shutdown(ctx), a.logger.Close())
}

// warn prints every warning of a lifecycle outcome.
func (a *app) warn(warnings []string) {
	for _, w := range warnings {
		a.printer.Warning(w)
	}
}
