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
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/origami/cmd/origami/config"
	"github.com/AleutianAI/origami/cmd/origami/internal/configuration"
	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/compose"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/process"
	"github.com/AleutianAI/origami/pkg/ux"
)

func swap[T any](t *testing.T, target *T, value T) {
	t.Helper()
	old := *target
	*target = value
	t.Cleanup(func() { *target = old })
}

type harness struct {
	out     *bytes.Buffer
	errOut  *bytes.Buffer
	proc    *process.MockManager
	compose *compose.MockOrchestrator
	project string
	cwd     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	stateDir := t.TempDir()
	h := &harness{
		out:     &bytes.Buffer{},
		errOut:  &bytes.Buffer{},
		proc:    &process.MockManager{},
		compose: compose.NewMockOrchestrator(),
		project: filepath.Join(t.TempDir(), "shop"),
	}
	require.NoError(t, os.MkdirAll(h.project, 0755))
	h.cwd = h.project

	cfg := config.DefaultConfig()
	cfg.StateDir = stateDir
	cfg.Compose.DefaultUser = "www-data"
	cfg.Sync.Enabled = true

	swap(t, &loadConfig, func() (config.OrigamiConfig, string, error) { return cfg, stateDir, nil })
	swap(t, &newProcessManager, func() process.Manager { return h.proc })
	swap(t, &newOrchestrator, func(compose.Config, process.Manager) compose.Orchestrator { return h.compose })
	swap(t, &newPrinter, func() *ux.Printer { return &ux.Printer{Out: h.out, Err: h.errOut, Mode: ux.ModePlain} })
	swap(t, &getwd, func() (string, error) { return h.cwd, nil })
	swap(t, &isTerminal, func() bool { return false })
	return h
}

func (h *harness) run(args ...string) int {
	h.out.Reset()
	h.errOut.Reset()
	return run(args)
}

func (h *harness) install(t *testing.T) {
	t.Helper()
	code := h.run("install", "--name", "shop", "--type", "symfony", "--php", "8.2")
	require.Equal(t, 0, code, h.errOut.String())
}

func TestInstallStartStop(t *testing.T) {
	h := newHarness(t)
	h.install(t)
	assert.Contains(t, h.out.String(), "[OK] Environment successfully installed.")
	assert.FileExists(t, filepath.Join(h.project, "var", "docker", ".env"))

	require.Equal(t, 0, h.run("start"), h.errOut.String())
	assert.Contains(t, h.out.String(), "Docker services successfully started.")
	assert.Equal(t, 1, h.compose.CallCount("Up"))
	assert.Equal(t, "8.2", h.compose.Vars[0]["DOCKER_PHP_IMAGE"])
	assert.NotEmpty(t, h.proc.CallsTo("RunInDir"), "the sync session is created")

	require.Equal(t, 0, h.run("list"))
	assert.Contains(t, h.out.String(), "shop\t"+h.project+"\tsymfony\t8.2\t\tRunning")

	require.Equal(t, 0, h.run("root"))
	assert.Contains(t, h.out.String(), `export COMPOSE_PROJECT_NAME="symfony_shop"`)

	require.Equal(t, 0, h.run("ps"))
	assert.Equal(t, 1, h.compose.CallCount("Ps"))

	require.Equal(t, 0, h.run("stop"))
	assert.Contains(t, h.out.String(), "Docker services successfully stopped.")
	assert.Equal(t, 1, h.compose.CallCount("Down"))
}

func TestNoRunningEnvironment(t *testing.T) {
	h := newHarness(t)
	h.install(t)

	for _, args := range [][]string{{"ps"}, {"logs"}, {"root"}, {"stop"}, {"restart"}, {"php"}} {
		code := h.run(args...)
		assert.Equal(t, int(environment.ExitInvalid), code, args)
		assert.Equal(t, "[ERROR] There is no running environment.\n", h.errOut.String(), args)
	}
	assert.Empty(t, h.compose.Calls)
}

func TestInstall_RequiresFlagsWithoutTerminal(t *testing.T) {
	h := newHarness(t)

	code := h.run("install", "--type", "symfony")
	assert.Equal(t, int(environment.ExitException), code)
	assert.Contains(t, h.errOut.String(), "--name and --type")
}

func TestInstall_Wizard(t *testing.T) {
	h := newHarness(t)
	swap(t, &isTerminal, func() bool { return true })
	swap(t, &runInstallWizard, func(req *configuration.InstallRequest) error {
		req.Name = "wizard"
		req.Type = environment.TypeSylius
		return nil
	})

	require.Equal(t, 0, h.run("install"), h.errOut.String())
	require.Equal(t, 0, h.run("config", "--env", "wizard"))
	assert.Contains(t, h.out.String(), "COMPOSE_PROJECT_NAME\tsylius_wizard")
}

func TestInstall_UnknownType(t *testing.T) {
	h := newHarness(t)

	code := h.run("install", "--name", "shop", "--type", "wordpress")
	assert.Equal(t, int(environment.ExitException), code)
	assert.Empty(t, h.out.String())
}

func TestUpdate_RunningEnvironment(t *testing.T) {
	h := newHarness(t)
	h.install(t)
	require.Equal(t, 0, h.run("start"))

	code := h.run("update")
	assert.Equal(t, int(environment.ExitException), code)
	assert.Equal(t, "[ERROR] Unable to update a running environment.\n", h.errOut.String())

	require.Equal(t, 0, h.run("stop"))
	require.Equal(t, 0, h.run("update"), h.errOut.String())
	assert.Contains(t, h.out.String(), "Environment successfully updated.")
}

func TestUninstall(t *testing.T) {
	h := newHarness(t)
	h.install(t)

	assert.Equal(t, int(environment.ExitException), h.run("uninstall"))
	assert.DirExists(t, filepath.Join(h.project, "var", "docker"))

	swap(t, &isTerminal, func() bool { return true })
	swap(t, &confirm, func(string) (bool, error) { return false, nil })
	assert.Equal(t, int(environment.ExitException), h.run("uninstall"))
	assert.Contains(t, h.errOut.String(), "Operation aborted.")

	require.Equal(t, 0, h.run("uninstall", "--force"), h.errOut.String())
	assert.NoDirExists(t, filepath.Join(h.project, "var", "docker"))

	require.Equal(t, 0, h.run("list"))
	assert.Contains(t, h.errOut.String(), "There is no registered environment.")
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.run("register"), h.errOut.String())
	assert.Contains(t, h.out.String(), `Environment "shop" successfully registered.`)

	code := h.run("update")
	assert.Equal(t, int(environment.ExitException), code)
	assert.Contains(t, h.errOut.String(), "Unable to update a custom environment.")
}

func TestStart_NoContext(t *testing.T) {
	h := newHarness(t)
	h.cwd = t.TempDir()

	code := h.run("start")
	assert.Equal(t, int(environment.ExitException), code)
	assert.Contains(t, h.errOut.String(), "An environment must be given")
}

func TestCheck_MissingBinary(t *testing.T) {
	h := newHarness(t)
	h.proc.LookPathFunc = func(name string) (string, error) {
		if name == "mutagen" {
			return "", exec.ErrNotFound
		}
		return "/usr/bin/" + name, nil
	}

	code := h.run("check")
	assert.Equal(t, int(environment.ExitException), code)
	assert.Contains(t, h.out.String(), "mutagen\t")
	assert.Contains(t, h.out.String(), "Missing")
}

func TestCheck_Ready(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.run("check"))
	assert.Contains(t, h.out.String(), "[OK] Your system is ready.")
}

func TestShellShortcutUsesDefaultUser(t *testing.T) {
	h := newHarness(t)
	h.install(t)
	require.Equal(t, 0, h.run("start"))

	var got compose.ExecOptions
	h.compose.ExecFunc = func(_ context.Context, _ map[string]string, opts compose.ExecOptions) (*compose.Result, error) {
		got = opts
		return &compose.Result{Success: true}, nil
	}

	require.Equal(t, 0, h.run("php"))
	assert.Equal(t, compose.ExecOptions{Service: "php", User: "www-data"}, got)

	require.Equal(t, 0, h.run("exec", "database", "--", "mysql", "-V"))
	assert.Equal(t, compose.ExecOptions{Service: "database", Command: []string{"mysql", "-V"}}, got)
}

func TestExec_SubprocessFailure(t *testing.T) {
	h := newHarness(t)
	h.install(t)
	require.Equal(t, 0, h.run("start"))
	h.compose.ExecFunc = func(context.Context, map[string]string, compose.ExecOptions) (*compose.Result, error) {
		return &compose.Result{ExitCode: 3}, &environment.SubprocessError{Command: "docker-compose exec", ExitCode: 3}
	}

	assert.Equal(t, int(environment.ExitException), h.run("exec", "php"))
	assert.Contains(t, h.errOut.String(), "docker-compose exec exited with code 3")
}
