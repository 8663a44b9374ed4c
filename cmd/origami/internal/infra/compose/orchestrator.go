// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose drives the docker-compose binary for one environment.
package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/process"
	"github.com/AleutianAI/origami/cmd/origami/internal/variables"
	"github.com/AleutianAI/origami/pkg/logging"
	"github.com/AleutianAI/origami/pkg/telemetry"
	"github.com/AleutianAI/origami/pkg/validation"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrUnknownService is returned when a service name is empty or not
	// declared in the compose file.
	ErrUnknownService = errors.New("unknown compose service")

	// ErrMissingVariable is returned when the variable map lacks a key the
	// command line is built from.
	ErrMissingVariable = errors.New("missing compose variable")

	// ErrInvalidEnvVar is returned when a variable name is not a valid
	// environment variable name.
	ErrInvalidEnvVar = validation.ErrInvalidEnvVar
)

// DefaultShell opens bash when the image ships it, sh otherwise.
var DefaultShell = []string{"sh", "-c", "if [ -x /bin/bash ]; then exec /bin/bash; else exec /bin/sh; fi"}

// UnknownServiceError reports a service the compose file does not declare.
type UnknownServiceError struct {
	Service   string
	Available []string
}

// Error implements the error interface.
func (e *UnknownServiceError) Error() string {
	if e.Service == "" {
		return "A service name is required."
	}
	return fmt.Sprintf("The service %q does not exist. Available services: %s.", e.Service, strings.Join(e.Available, ", "))
}

// Unwrap returns ErrUnknownService.
func (e *UnknownServiceError) Unwrap() error {
	return ErrUnknownService
}

// =============================================================================
// Interface Definition
// =============================================================================

// Orchestrator runs compose commands against an environment.
//
// # Description
//
// Every operation takes the variable map produced by variables.Resolver.
// The child process environment is the ambient environment overridden by
// that map, and the command line carries the matching --file and
// --project-name flags.
//
// A non-zero exit returns both the Result and a *SubprocessError. Nothing
// is retried and stdout is never interpreted.
type Orchestrator interface {
	// Up builds and starts the services in the background.
	Up(ctx context.Context, vars map[string]string) (*Result, error)

	// Down stops and removes the containers.
	Down(ctx context.Context, vars map[string]string, opts DownOptions) (*Result, error)

	// Stop stops the containers without removing them.
	Stop(ctx context.Context, vars map[string]string) (*Result, error)

	// Restart restarts the containers.
	Restart(ctx context.Context, vars map[string]string) (*Result, error)

	// Ps shows the status of the services.
	Ps(ctx context.Context, vars map[string]string) (*Result, error)

	// Logs shows the logs of all services or of opts.Service.
	Logs(ctx context.Context, vars map[string]string, opts LogsOptions) (*Result, error)

	// Exec runs a command, a shell by default, inside a service.
	Exec(ctx context.Context, vars map[string]string, opts ExecOptions) (*Result, error)

	// Services lists the services declared by the compose file, sorted.
	Services(vars map[string]string) ([]string, error)
}

// DownOptions configures Down.
type DownOptions struct {
	// Volumes removes named volumes.
	// Maps to: --volumes
	Volumes bool

	// RemoveImages removes images built for the project.
	// Maps to: --rmi local
	RemoveImages bool
}

// LogsOptions configures Logs.
type LogsOptions struct {
	// Service limits the output to one service. Empty means all.
	Service string

	// Tail limits output to the last N lines per container. Zero means all.
	Tail int

	// Follow streams new lines until the context is cancelled.
	Follow bool
}

// ExecOptions configures Exec.
type ExecOptions struct {
	// Service is the target service. Required.
	Service string

	// User runs the command as this user.
	// Maps to: --user
	User string

	// Command defaults to DefaultShell.
	Command []string
}

// Result is the outcome of one compose invocation.
type Result struct {
	Success  bool
	ExitCode int
	Command  string
	Duration time.Duration
	Stderr   string
}

// Err returns a *SubprocessError for a failed invocation, nil otherwise.
func (r *Result) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return &environment.SubprocessError{Command: r.Command, ExitCode: r.ExitCode, Stderr: r.Stderr}
}

// =============================================================================
// Implementation
// =============================================================================

// Config configures a DefaultOrchestrator.
type Config struct {
	// Binary is the compose executable. Default: "docker-compose"
	Binary string

	// Stdout and Stderr receive streamed output. Default: os.Stdout, os.Stderr
	Stdout io.Writer
	Stderr io.Writer

	// Fs reads compose files. Default: OS filesystem
	Fs afero.Fs

	// IsTerminal reports whether stdin is a terminal. Default: isatty on os.Stdin
	IsTerminal func() bool

	Logger  *logging.Logger
	Metrics *telemetry.Metrics
}

// DefaultOrchestrator runs the compose binary through a process.Manager.
type DefaultOrchestrator struct {
	config Config
	proc   process.Manager
	logger *logging.Logger
}

// NewOrchestrator creates a DefaultOrchestrator.
func NewOrchestrator(cfg Config, proc process.Manager) *DefaultOrchestrator {
	if cfg.Binary == "" {
		cfg.Binary = "docker-compose"
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.IsTerminal == nil {
		cfg.IsTerminal = func() bool {
			return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.Default()
	}
	return &DefaultOrchestrator{
		config: cfg,
		proc:   proc,
		logger: cfg.Logger.With("component", "compose"),
	}
}

// Up implements Orchestrator.
func (o *DefaultOrchestrator) Up(ctx context.Context, vars map[string]string) (*Result, error) {
	return o.stream(ctx, "up", vars, "up", "--build", "--detach", "--remove-orphans")
}

// Down implements Orchestrator.
func (o *DefaultOrchestrator) Down(ctx context.Context, vars map[string]string, opts DownOptions) (*Result, error) {
	args := []string{"down", "--remove-orphans"}
	if opts.Volumes {
		args = append(args, "--volumes")
	}
	if opts.RemoveImages {
		args = append(args, "--rmi", "local")
	}
	return o.stream(ctx, "down", vars, args...)
}

// Stop implements Orchestrator.
func (o *DefaultOrchestrator) Stop(ctx context.Context, vars map[string]string) (*Result, error) {
	return o.stream(ctx, "stop", vars, "stop")
}

// Restart implements Orchestrator.
func (o *DefaultOrchestrator) Restart(ctx context.Context, vars map[string]string) (*Result, error) {
	return o.stream(ctx, "restart", vars, "restart")
}

// Ps implements Orchestrator.
func (o *DefaultOrchestrator) Ps(ctx context.Context, vars map[string]string) (*Result, error) {
	return o.stream(ctx, "ps", vars, "ps")
}

// Logs implements Orchestrator.
func (o *DefaultOrchestrator) Logs(ctx context.Context, vars map[string]string, opts LogsOptions) (*Result, error) {
	args := []string{"logs"}
	if opts.Follow {
		args = append(args, "--follow")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail="+strconv.Itoa(opts.Tail))
	}
	if opts.Service != "" {
		if err := o.requireService(vars, opts.Service); err != nil {
			return nil, err
		}
		args = append(args, opts.Service)
	}
	return o.stream(ctx, "logs", vars, args...)
}

// Exec implements Orchestrator.
func (o *DefaultOrchestrator) Exec(ctx context.Context, vars map[string]string, opts ExecOptions) (result *Result, err error) {
	if err := o.requireService(vars, opts.Service); err != nil {
		return nil, err
	}

	args := []string{"exec"}
	if !o.config.IsTerminal() {
		args = append(args, "-T")
	}
	if opts.User != "" {
		args = append(args, "--user", opts.User)
	}
	args = append(args, opts.Service)
	if len(opts.Command) == 0 {
		args = append(args, DefaultShell...)
	} else {
		args = append(args, opts.Command...)
	}

	dir, fullArgs, env, err := o.prepare(vars, args)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "compose.exec", attribute.String("service", opts.Service))
	defer func() { telemetry.EndSpan(span, err) }()

	start := time.Now()
	code, runErr := o.proc.RunInteractive(ctx, dir, env, o.config.Binary, fullArgs...)
	result = o.finish(ctx, "exec", code, start, "")
	if runErr != nil {
		return result, fmt.Errorf("run %s: %w", o.config.Binary, runErr)
	}
	return result, result.Err()
}

// Services implements Orchestrator.
func (o *DefaultOrchestrator) Services(vars map[string]string) ([]string, error) {
	path, ok := vars[variables.ComposeFile]
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingVariable, variables.ComposeFile)
	}
	data, err := afero.ReadFile(o.config.Fs, path)
	if err != nil {
		return nil, &environment.FilesystemError{Op: "read", Path: path, Err: err}
	}

	var doc struct {
		Services map[string]yaml.Node `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// stream runs a compose subcommand with output copied to the configured writers.
func (o *DefaultOrchestrator) stream(ctx context.Context, op string, vars map[string]string, args ...string) (result *Result, err error) {
	dir, fullArgs, env, err := o.prepare(vars, args)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "compose."+op, attribute.String("project", vars[variables.ComposeProjectName]))
	defer func() { telemetry.EndSpan(span, err) }()

	tail := &tailBuffer{limit: 4096}
	start := time.Now()
	code, runErr := o.proc.RunStreaming(ctx, dir, env, o.config.Stdout, io.MultiWriter(o.config.Stderr, tail), o.config.Binary, fullArgs...)
	result = o.finish(ctx, op, code, start, tail.String())
	if runErr != nil {
		return result, fmt.Errorf("run %s: %w", o.config.Binary, runErr)
	}
	return result, result.Err()
}

// prepare validates vars and builds the working directory, full argument
// list and child environment.
func (o *DefaultOrchestrator) prepare(vars map[string]string, args []string) (string, []string, []string, error) {
	for _, key := range []string{variables.ComposeFile, variables.ComposeProjectName} {
		if vars[key] == "" {
			return "", nil, nil, fmt.Errorf("%w: %s", ErrMissingVariable, key)
		}
	}
	if err := validation.ValidateEnvVarNames(vars); err != nil {
		return "", nil, nil, err
	}

	fullArgs := append([]string{
		"--file", vars[variables.ComposeFile],
		"--project-name", vars[variables.ComposeProjectName],
	}, args...)

	o.logCommand(fullArgs, vars)
	return vars[variables.ProjectLocation], fullArgs, buildCommandEnvironment(os.Environ(), vars), nil
}

func (o *DefaultOrchestrator) finish(ctx context.Context, op string, code int, start time.Time, stderr string) *Result {
	o.config.Metrics.RecordSubprocess(ctx, o.config.Binary, code)
	result := &Result{
		Success:  code == 0,
		ExitCode: code,
		Command:  o.config.Binary + " " + op,
		Duration: time.Since(start),
		Stderr:   stderr,
	}
	o.logger.Debug("compose finished", "op", op, "exit_code", code, "duration", result.Duration)
	return result
}

func (o *DefaultOrchestrator) requireService(vars map[string]string, service string) error {
	if service == "" {
		return &UnknownServiceError{}
	}
	if err := validation.ValidateServiceName(service); err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownService, err)
	}
	available, err := o.Services(vars)
	if err != nil {
		return err
	}
	for _, name := range available {
		if name == service {
			return nil
		}
	}
	return &UnknownServiceError{Service: service, Available: available}
}

// logCommand logs the invocation with sensitive values redacted.
func (o *DefaultOrchestrator) logCommand(args []string, vars map[string]string) {
	attrs := make([]any, 0, 2*len(vars)+2)
	attrs = append(attrs, "command", o.config.Binary+" "+strings.Join(args, " "))
	for _, k := range variables.Keys(vars) {
		v := vars[k]
		if isSensitiveEnvVar(k) {
			v = "[REDACTED]"
		}
		attrs = append(attrs, k, v)
	}
	o.logger.Debug("running compose", attrs...)
}

// buildCommandEnvironment overrides ambient with vars. Output is sorted.
func buildCommandEnvironment(ambient []string, vars map[string]string) []string {
	envMap := make(map[string]string, len(ambient)+len(vars))
	for _, kv := range ambient {
		if idx := strings.Index(kv, "="); idx > 0 {
			envMap[kv[:idx]] = kv[idx+1:]
		}
	}
	for k, v := range vars {
		envMap[k] = v
	}
	return variables.Environ(envMap)
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	return strings.Contains(upper, "TOKEN") ||
		strings.Contains(upper, "SECRET") ||
		strings.Contains(upper, "PASSWORD") ||
		strings.Contains(upper, "CREDENTIAL")
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

var _ Orchestrator = (*DefaultOrchestrator)(nil)
