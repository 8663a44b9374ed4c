// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Manager abstracts external process execution.
//
// # Description
//
// All subprocesses (compose tool, certificate utility, sync daemon) go
// through Manager so that tests can substitute MockManager.
//
// A non-zero exit status is not an error: it is reported through the
// returned exit code. The error is reserved for failures to start the
// process (binary missing, bad working directory) or cancellation.
type Manager interface {
	// RunInDir executes a command and captures its output.
	//
	// # Inputs
	//
	//   - ctx: Cancelling it kills the child.
	//   - dir: Working directory; "" keeps the current one.
	//   - env: Full environment of the child; nil inherits os.Environ().
	//   - name, args: Executable and arguments.
	//
	// # Outputs
	//
	//   - stdout, stderr: Captured output.
	//   - exitCode: Exit status, -1 if the process never ran.
	//   - err: Non-nil only if the process could not be run.
	RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (stdout, stderr string, exitCode int, err error)

	// RunStreaming executes a command and copies its output to the writers
	// as it is produced.
	RunStreaming(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, name string, args ...string) (exitCode int, err error)

	// RunInteractive executes a command attached to the current terminal.
	RunInteractive(ctx context.Context, dir string, env []string, name string, args ...string) (exitCode int, err error)

	// LookPath resolves a binary on PATH.
	LookPath(name string) (string, error)
}

// DefaultManager runs real processes with os/exec.
type DefaultManager struct{}

// NewDefaultManager creates a DefaultManager.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// RunInDir implements Manager.
func (m *DefaultManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	var stdout, stderr bytes.Buffer
	code, err := m.run(ctx, dir, env, nil, &stdout, &stderr, name, args...)
	return stdout.String(), stderr.String(), code, err
}

// RunStreaming implements Manager.
func (m *DefaultManager) RunStreaming(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, name string, args ...string) (int, error) {
	return m.run(ctx, dir, env, nil, stdout, stderr, name, args...)
}

// RunInteractive implements Manager.
func (m *DefaultManager) RunInteractive(ctx context.Context, dir string, env []string, name string, args ...string) (int, error) {
	return m.run(ctx, dir, env, os.Stdin, os.Stdout, os.Stderr, name, args...)
}

// LookPath implements Manager.
func (m *DefaultManager) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (m *DefaultManager) run(ctx context.Context, dir string, env []string, stdin io.Reader, stdout, stderr io.Writer, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	if ctx.Err() != nil {
		return -1, fmt.Errorf("%s: %w", name, ctx.Err())
	}
	return -1, fmt.Errorf("run %s: %w", name, err)
}

// =============================================================================
// MockManager
// =============================================================================

// MockManager records invocations and delegates to the configured funcs.
// A nil func succeeds with empty output.
type MockManager struct {
	RunInDirFunc       func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)
	RunStreamingFunc   func(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, name string, args ...string) (int, error)
	RunInteractiveFunc func(ctx context.Context, dir string, env []string, name string, args ...string) (int, error)
	LookPathFunc       func(name string) (string, error)

	Calls []Call
	mu    sync.Mutex
}

// Call is one recorded MockManager invocation.
type Call struct {
	Method string
	Dir    string
	Env    []string
	Name   string
	Args   []string
}

// RunInDir implements Manager.
func (m *MockManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	m.record("RunInDir", dir, env, name, args)
	if m.RunInDirFunc == nil {
		return "", "", 0, nil
	}
	return m.RunInDirFunc(ctx, dir, env, name, args...)
}

// RunStreaming implements Manager.
func (m *MockManager) RunStreaming(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, name string, args ...string) (int, error) {
	m.record("RunStreaming", dir, env, name, args)
	if m.RunStreamingFunc == nil {
		return 0, nil
	}
	return m.RunStreamingFunc(ctx, dir, env, stdout, stderr, name, args...)
}

// RunInteractive implements Manager.
func (m *MockManager) RunInteractive(ctx context.Context, dir string, env []string, name string, args ...string) (int, error) {
	m.record("RunInteractive", dir, env, name, args)
	if m.RunInteractiveFunc == nil {
		return 0, nil
	}
	return m.RunInteractiveFunc(ctx, dir, env, name, args...)
}

// LookPath implements Manager.
func (m *MockManager) LookPath(name string) (string, error) {
	m.record("LookPath", "", nil, name, nil)
	if m.LookPathFunc == nil {
		return "/usr/local/bin/" + name, nil
	}
	return m.LookPathFunc(name)
}

// CallsTo returns the recorded calls for one method.
func (m *MockManager) CallsTo(method string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockManager) record(method, dir string, env []string, name string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{
		Method: method,
		Dir:    dir,
		Env:    env,
		Name:   name,
		Args:   append([]string(nil), args...),
	})
}

var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
