// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/origami/cmd/origami/internal/configuration"
	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/compose"
	"github.com/AleutianAI/origami/cmd/origami/internal/registry"
	"github.com/AleutianAI/origami/cmd/origami/internal/requirements"
	"github.com/AleutianAI/origami/cmd/origami/internal/variables"
)

type fakeSyncer struct {
	startErr error
	stopErr  error
	started  []string
	stopped  []string
}

func (f *fakeSyncer) Start(_ context.Context, env *environment.Environment) error {
	f.started = append(f.started, env.Name)
	return f.startErr
}

func (f *fakeSyncer) Stop(_ context.Context, env *environment.Environment) error {
	f.stopped = append(f.stopped, env.Name)
	return f.stopErr
}

type failingUninstaller struct {
	err error
}

func (u failingUninstaller) Uninstall(context.Context, *environment.Environment) error {
	return u.err
}

type fixture struct {
	fs       afero.Fs
	registry *registry.FileRegistry
	compose  *compose.MockOrchestrator
	syncer   *fakeSyncer
	missing  map[string]bool
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fsys := afero.NewMemMapFs()
	for _, dir := range []string{"/srv/shop", "/srv/blog"} {
		require.NoError(t, fsys.MkdirAll(dir, 0755))
	}
	reg, err := registry.New(registry.Config{StateDir: t.TempDir()})
	require.NoError(t, err)

	f := &fixture{
		fs:       fsys,
		registry: reg,
		compose:  compose.NewMockOrchestrator(),
		syncer:   &fakeSyncer{},
		missing:  map[string]bool{},
	}
	confCfg := configuration.Config{
		Fs:          fsys,
		Registry:    reg,
		Issuer:      &configuration.MockIssuer{},
		Credentials: configuration.Credentials{Source: configuration.MapVariables{}},
		LockDir:     t.TempDir(),
	}
	f.service = NewService(Config{
		Registry: reg,
		Checker: requirements.NewChecker(func(name string) (string, error) {
			if f.missing[name] {
				return "", exec.ErrNotFound
			}
			return "/usr/bin/" + name, nil
		}),
		Orchestrator: f.compose,
		Variables:    variables.NewResolver(fsys),
		Installer:    configuration.NewInstaller(confCfg),
		Updater:      configuration.NewUpdater(confCfg),
		Uninstaller:  configuration.NewUninstaller(confCfg),
		Syncer:       f.syncer,
	})
	return f
}

func (f *fixture) install(t *testing.T, name, location string) *environment.Environment {
	t.Helper()
	result, err := f.service.Install(context.Background(), configuration.InstallRequest{
		Name:     name,
		Location: location,
		Type:     environment.TypeSymfony,
	})
	require.NoError(t, err)
	return result.Environment
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shop := f.install(t, "shop", "/srv/shop")
	f.install(t, "blog", "/srv/blog")

	env, err := f.service.Resolve(ctx, "blog", "/srv/shop")
	require.NoError(t, err)
	assert.Equal(t, "blog", env.Name)

	env, err = f.service.Resolve(ctx, "", "/srv/shop/src/Controller")
	require.NoError(t, err)
	assert.Equal(t, "shop", env.Name)

	_, err = f.service.Resolve(ctx, "", "/tmp")
	require.ErrorIs(t, err, environment.ErrInvalidEnvironment)
	assert.Equal(t, MissingContextMessage, err.Error())

	_, err = f.service.Resolve(ctx, "unknown", "")
	assert.ErrorIs(t, err, environment.ErrNotFound)

	_, err = f.service.Start(ctx, shop)
	require.NoError(t, err)
	env, err = f.service.Resolve(ctx, "", "/srv/blog")
	require.NoError(t, err)
	assert.Equal(t, "shop", env.Name, "the running environment takes precedence over the location")
}

func TestStart_ActivatesAndSyncs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")

	outcome, err := f.service.Start(ctx, env)
	require.NoError(t, err)
	assert.Empty(t, outcome.Warnings)
	assert.Equal(t, 1, f.compose.CallCount("Up"))
	assert.Equal(t, "symfony_shop", f.compose.Vars[0][variables.ComposeProjectName])
	assert.Equal(t, []string{"shop"}, f.syncer.started)

	active, err := f.registry.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shop", active.Name)
}

func TestStart_MissingRequirements(t *testing.T) {
	f := newFixture(t)
	env := f.install(t, "shop", "/srv/shop")
	f.missing["docker-compose"] = true

	_, err := f.service.Start(context.Background(), env)
	require.ErrorIs(t, err, environment.ErrMissingRequirements)
	assert.Zero(t, f.compose.CallCount("Up"))

	_, err = f.registry.Active(context.Background())
	assert.ErrorIs(t, err, environment.ErrNoActiveEnvironment)
}

func TestStart_AnotherEnvironmentRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shop := f.install(t, "shop", "/srv/shop")
	blog := f.install(t, "blog", "/srv/blog")

	_, err := f.service.Start(ctx, shop)
	require.NoError(t, err)

	_, err = f.service.Start(ctx, blog)
	var activeErr *environment.AlreadyActiveError
	require.ErrorAs(t, err, &activeErr)
	assert.Equal(t, "shop", activeErr.Active)
	assert.Equal(t, 1, f.compose.CallCount("Up"))
}

func TestStart_ComposeFailureDeactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")
	f.compose.UpFunc = func(context.Context, map[string]string) (*compose.Result, error) {
		return &compose.Result{ExitCode: 1}, &environment.SubprocessError{Command: "docker-compose up", ExitCode: 1}
	}

	_, err := f.service.Start(ctx, env)
	require.ErrorIs(t, err, environment.ErrSubprocessFailure)

	_, err = f.registry.Active(ctx)
	assert.ErrorIs(t, err, environment.ErrNoActiveEnvironment)
	assert.Empty(t, f.syncer.started)
}

func TestStart_SyncFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	env := f.install(t, "shop", "/srv/shop")
	f.syncer.startErr = errors.New("daemon unreachable")

	outcome, err := f.service.Start(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "daemon unreachable")
}

func TestStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")
	_, err := f.service.Start(ctx, env)
	require.NoError(t, err)

	outcome, err := f.service.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shop", outcome.Environment.Name)
	assert.Equal(t, 1, f.compose.CallCount("Down"))
	assert.Equal(t, []string{"shop"}, f.syncer.stopped)

	_, err = f.registry.Active(ctx)
	assert.ErrorIs(t, err, environment.ErrNoActiveEnvironment)
}

func TestStop_ComposeFailureKeepsActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")
	_, err := f.service.Start(ctx, env)
	require.NoError(t, err)
	f.compose.DownFunc = func(context.Context, map[string]string, compose.DownOptions) (*compose.Result, error) {
		return &compose.Result{ExitCode: 2}, &environment.SubprocessError{Command: "docker-compose down", ExitCode: 2}
	}

	_, err = f.service.Stop(ctx)
	require.Error(t, err)

	active, err := f.registry.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shop", active.Name)
}

func TestCommandsRequireRunningEnvironment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.install(t, "shop", "/srv/shop")

	calls := map[string]func() error{
		"stop":    func() error { _, err := f.service.Stop(ctx); return err },
		"restart": func() error { _, err := f.service.Restart(ctx); return err },
		"ps":      func() error { _, err := f.service.Ps(ctx); return err },
		"logs":    func() error { _, err := f.service.Logs(ctx, compose.LogsOptions{}); return err },
		"exec":    func() error { _, err := f.service.Exec(ctx, compose.ExecOptions{Service: "php"}); return err },
		"root":    func() error { _, err := f.service.Root(ctx); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.ErrorIs(t, err, environment.ErrNoActiveEnvironment)
			assert.Equal(t, "There is no running environment.", err.Error())
			assert.Equal(t, environment.ExitInvalid, environment.ExitCodeFor(err))
		})
	}
	assert.Empty(t, f.compose.Calls)
}

func TestRunningOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")
	_, err := f.service.Start(ctx, env)
	require.NoError(t, err)

	_, err = f.service.Ps(ctx)
	require.NoError(t, err)
	_, err = f.service.Restart(ctx)
	require.NoError(t, err)
	_, err = f.service.Logs(ctx, compose.LogsOptions{Service: "php"})
	require.NoError(t, err)
	_, err = f.service.Exec(ctx, compose.ExecOptions{Service: "php"})
	require.NoError(t, err)

	for _, method := range []string{"Ps", "Restart", "Logs", "Exec"} {
		assert.Equal(t, 1, f.compose.CallCount(method), method)
	}

	lines, err := f.service.Root(ctx)
	require.NoError(t, err)
	assert.Contains(t, lines, `export COMPOSE_PROJECT_NAME="symfony_shop"`)
	assert.Contains(t, lines, `export DOCKER_PHP_IMAGE="latest"`)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Register(context.Background(), "", "/srv/blog")
	require.NoError(t, err)
	assert.Equal(t, "blog", result.Environment.Name)
	assert.Equal(t, environment.TypeCustom, result.Environment.Type)

	exists, err := afero.DirExists(f.fs, "/srv/blog/var/docker")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUninstall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")

	var downOpts compose.DownOptions
	f.compose.DownFunc = func(_ context.Context, _ map[string]string, opts compose.DownOptions) (*compose.Result, error) {
		downOpts = opts
		return &compose.Result{Success: true}, nil
	}

	outcome, err := f.service.Uninstall(ctx, env)
	require.NoError(t, err)
	assert.Empty(t, outcome.Warnings)
	assert.True(t, downOpts.Volumes)

	exists, err := afero.DirExists(f.fs, "/srv/shop/var/docker")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.registry.Find(ctx, "shop")
	assert.ErrorIs(t, err, environment.ErrNotFound)
}

func TestUninstall_TeardownFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	env := f.install(t, "shop", "/srv/shop")
	f.compose.DownFunc = func(context.Context, map[string]string, compose.DownOptions) (*compose.Result, error) {
		return &compose.Result{ExitCode: 1}, &environment.SubprocessError{Command: "docker-compose down", ExitCode: 1}
	}

	outcome, err := f.service.Uninstall(context.Background(), env)
	require.NoError(t, err)
	assert.Len(t, outcome.Warnings, 1)
}

func TestUninstall_RunningRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")
	_, err := f.service.Start(ctx, env)
	require.NoError(t, err)

	_, err = f.service.Uninstall(ctx, env)
	require.ErrorIs(t, err, environment.ErrInvalidState)
	assert.Equal(t, "Unable to uninstall a running environment.", err.Error())
	assert.Zero(t, f.compose.CallCount("Down"))

	exists, err := afero.DirExists(f.fs, "/srv/shop/var/docker")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpdate_RunningRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")
	_, err := f.service.Start(ctx, env)
	require.NoError(t, err)

	_, err = f.service.Update(ctx, env)
	require.ErrorIs(t, err, environment.ErrInvalidEnvironment)
	assert.Equal(t, "Unable to update a running environment.", err.Error())
}

func TestUninstall_StaleCopyOfRunningEnvironment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")
	stale := env.Clone()
	_, err := f.service.Start(ctx, env)
	require.NoError(t, err)

	_, err = f.service.Uninstall(ctx, stale)
	require.ErrorIs(t, err, environment.ErrInvalidState)
	assert.Zero(t, f.compose.CallCount("Down"))

	exists, err := afero.DirExists(f.fs, "/srv/shop/var/docker")
	require.NoError(t, err)
	assert.True(t, exists)
	running, err := f.registry.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shop", running.Name)
}

func TestUninstall_StartDuringTeardownIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")
	other := env.Clone()

	var startErr error
	f.compose.DownFunc = func(context.Context, map[string]string, compose.DownOptions) (*compose.Result, error) {
		_, startErr = f.service.Start(ctx, other)
		return &compose.Result{Success: true}, nil
	}

	_, err := f.service.Uninstall(ctx, env)
	require.NoError(t, err)
	assert.ErrorIs(t, startErr, environment.ErrInvalidState)
	assert.Zero(t, f.compose.CallCount("Up"))

	_, err = f.registry.Find(ctx, "shop")
	assert.ErrorIs(t, err, environment.ErrNotFound)
}

func TestUninstall_FailureClearsRemovalMark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")
	f.service.cfg.Uninstaller = failingUninstaller{err: &environment.FilesystemError{Op: "remove configuration", Path: "/srv/shop/var/docker", Err: errors.New("busy")}}

	_, err := f.service.Uninstall(ctx, env)
	require.ErrorIs(t, err, environment.ErrFilesystem)

	stored, err := f.registry.Find(ctx, "shop")
	require.NoError(t, err)
	assert.False(t, stored.Removing)
}

func TestUpdate_StaleCopyOfRunningEnvironment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := f.install(t, "shop", "/srv/shop")
	stale := env.Clone()
	_, err := f.service.Start(ctx, env)
	require.NoError(t, err)

	_, err = f.service.Update(ctx, stale)
	require.ErrorIs(t, err, environment.ErrInvalidEnvironment)
	assert.Equal(t, "Unable to update a running environment.", err.Error())
}
