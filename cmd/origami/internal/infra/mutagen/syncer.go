// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mutagen controls the file-sync session between an environment's
// location and its syncdata volume.
package mutagen

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/process"
	"github.com/AleutianAI/origami/pkg/logging"
	"github.com/AleutianAI/origami/pkg/telemetry"
)

const (
	// Binary is the sync daemon executable.
	Binary = "mutagen"

	// LabelKey tags every session created by origami.
	LabelKey = "origami"

	// VolumeName is the compose volume the location is mirrored into.
	VolumeName = "syncdata"

	// ContainerPath is where the volume is mounted in the containers.
	ContainerPath = "/var/www/html"
)

// Syncer starts and stops sync sessions.
type Syncer interface {
	Start(ctx context.Context, env *environment.Environment) error
	Stop(ctx context.Context, env *environment.Environment) error
}

// SessionName returns the session name of env: {type}-{name}.
func SessionName(env *environment.Environment) string {
	return fmt.Sprintf("%s-%s", env.Type, env.Name)
}

// VolumeURL returns the docker volume endpoint of env.
func VolumeURL(env *environment.Environment) string {
	return fmt.Sprintf("docker://%s_%s%s", env.ProjectName(), VolumeName, ContainerPath)
}

// DaemonSyncer drives the mutagen CLI.
type DaemonSyncer struct {
	proc    process.Manager
	logger  *logging.Logger
	metrics *telemetry.Metrics
}

// NewSyncer creates a DaemonSyncer. A nil logger discards output.
func NewSyncer(proc process.Manager, logger *logging.Logger) *DaemonSyncer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DaemonSyncer{
		proc:    proc,
		logger:  logger.With("component", "mutagen"),
		metrics: telemetry.Default(),
	}
}

// Start creates the two-way session of env. An existing session with the
// same label is terminated first so that repeated starts converge.
func (s *DaemonSyncer) Start(ctx context.Context, env *environment.Environment) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "mutagen.Start", attribute.String("session", SessionName(env)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.terminate(ctx, env); err != nil {
		s.logger.Debug("no previous session terminated", "error", err)
	}

	return s.run(ctx, env.Location,
		"sync", "create",
		"--name="+SessionName(env),
		"--label="+label(env),
		"--sync-mode=two-way-resolved",
		"--ignore-vcs",
		env.Location,
		VolumeURL(env),
	)
}

// Stop terminates the sessions labelled for env.
func (s *DaemonSyncer) Stop(ctx context.Context, env *environment.Environment) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "mutagen.Stop", attribute.String("session", SessionName(env)))
	defer func() { telemetry.EndSpan(span, err) }()

	return s.terminate(ctx, env)
}

func (s *DaemonSyncer) terminate(ctx context.Context, env *environment.Environment) error {
	return s.run(ctx, env.Location, "sync", "terminate", "--label-selector="+label(env))
}

func (s *DaemonSyncer) run(ctx context.Context, dir string, args ...string) error {
	s.logger.Debug("running mutagen", "args", strings.Join(args, " "))
	_, stderr, code, err := s.proc.RunInDir(ctx, dir, nil, Binary, args...)
	s.metrics.RecordSubprocess(ctx, Binary, code)
	if err != nil {
		return fmt.Errorf("run %s: %w", Binary, err)
	}
	if code != 0 {
		return &environment.SubprocessError{
			Command:  Binary + " " + strings.Join(args[:2], " "),
			ExitCode: code,
			Stderr:   strings.TrimSpace(stderr),
		}
	}
	return nil
}

func label(env *environment.Environment) string {
	return LabelKey + "=" + env.ProjectName()
}

var _ Syncer = (*DaemonSyncer)(nil)
