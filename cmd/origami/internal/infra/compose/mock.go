// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"sync"
)

// MockOrchestrator is a test double for Orchestrator.
//
// A nil func succeeds with an exit code of zero. Every call is recorded in
// Calls by method name.
type MockOrchestrator struct {
	UpFunc       func(ctx context.Context, vars map[string]string) (*Result, error)
	DownFunc     func(ctx context.Context, vars map[string]string, opts DownOptions) (*Result, error)
	StopFunc     func(ctx context.Context, vars map[string]string) (*Result, error)
	RestartFunc  func(ctx context.Context, vars map[string]string) (*Result, error)
	PsFunc       func(ctx context.Context, vars map[string]string) (*Result, error)
	LogsFunc     func(ctx context.Context, vars map[string]string, opts LogsOptions) (*Result, error)
	ExecFunc     func(ctx context.Context, vars map[string]string, opts ExecOptions) (*Result, error)
	ServicesFunc func(vars map[string]string) ([]string, error)

	Calls []string
	Vars  []map[string]string
	mu    sync.Mutex
}

// NewMockOrchestrator creates a mock where every operation succeeds.
func NewMockOrchestrator() *MockOrchestrator {
	return &MockOrchestrator{}
}

func (m *MockOrchestrator) record(method string, vars map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, method)
	m.Vars = append(m.Vars, vars)
}

func ok(op string) *Result {
	return &Result{Success: true, Command: "docker-compose " + op}
}

// Up implements Orchestrator.
func (m *MockOrchestrator) Up(ctx context.Context, vars map[string]string) (*Result, error) {
	m.record("Up", vars)
	if m.UpFunc != nil {
		return m.UpFunc(ctx, vars)
	}
	return ok("up"), nil
}

// Down implements Orchestrator.
func (m *MockOrchestrator) Down(ctx context.Context, vars map[string]string, opts DownOptions) (*Result, error) {
	m.record("Down", vars)
	if m.DownFunc != nil {
		return m.DownFunc(ctx, vars, opts)
	}
	return ok("down"), nil
}

// Stop implements Orchestrator.
func (m *MockOrchestrator) Stop(ctx context.Context, vars map[string]string) (*Result, error) {
	m.record("Stop", vars)
	if m.StopFunc != nil {
		return m.StopFunc(ctx, vars)
	}
	return ok("stop"), nil
}

// Restart implements Orchestrator.
func (m *MockOrchestrator) Restart(ctx context.Context, vars map[string]string) (*Result, error) {
	m.record("Restart", vars)
	if m.RestartFunc != nil {
		return m.RestartFunc(ctx, vars)
	}
	return ok("restart"), nil
}

// Ps implements Orchestrator.
func (m *MockOrchestrator) Ps(ctx context.Context, vars map[string]string) (*Result, error) {
	m.record("Ps", vars)
	if m.PsFunc != nil {
		return m.PsFunc(ctx, vars)
	}
	return ok("ps"), nil
}

// Logs implements Orchestrator.
func (m *MockOrchestrator) Logs(ctx context.Context, vars map[string]string, opts LogsOptions) (*Result, error) {
	m.record("Logs", vars)
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, vars, opts)
	}
	return ok("logs"), nil
}

// Exec implements Orchestrator.
func (m *MockOrchestrator) Exec(ctx context.Context, vars map[string]string, opts ExecOptions) (*Result, error) {
	m.record("Exec", vars)
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, vars, opts)
	}
	return ok("exec"), nil
}

// Services implements Orchestrator.
func (m *MockOrchestrator) Services(vars map[string]string) ([]string, error) {
	m.record("Services", vars)
	if m.ServicesFunc != nil {
		return m.ServicesFunc(vars)
	}
	return nil, nil
}

// CallCount returns how many times method was called.
func (m *MockOrchestrator) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == method {
			n++
		}
	}
	return n
}

var _ Orchestrator = (*MockOrchestrator)(nil)
