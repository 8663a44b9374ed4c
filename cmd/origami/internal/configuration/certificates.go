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
	"fmt"
	"path/filepath"
	"sync"

	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/process"
	"github.com/AleutianAI/origami/pkg/logging"
	"github.com/AleutianAI/origami/pkg/telemetry"
)

// Certificate file names inside the certificates directory.
const (
	CertificateFile = "custom.pem"
	KeyFile         = "custom.key"
)

// ErrNoDomains is returned when issuance is requested without domains.
var ErrNoDomains = errors.New("no domains to certify")

// CertificatePair locates issued TLS material.
type CertificatePair struct {
	CertPath string
	KeyPath  string
}

// Issuer creates a certificate covering every domain.
type Issuer interface {
	Issue(ctx context.Context, dir string, domains []string) (CertificatePair, error)
}

// MkcertIssuer issues locally trusted certificates with mkcert.
type MkcertIssuer struct {
	proc    process.Manager
	binary  string
	logger  *logging.Logger
	metrics *telemetry.Metrics
}

// NewMkcertIssuer returns an Issuer running mkcert through proc.
func NewMkcertIssuer(proc process.Manager, logger *logging.Logger) *MkcertIssuer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &MkcertIssuer{
		proc:    proc,
		binary:  "mkcert",
		logger:  logger.With("component", "mkcert"),
		metrics: telemetry.Default(),
	}
}

// Issue writes custom.pem and custom.key into dir.
//
// # Inputs
//
//   - dir: Existing directory receiving the files.
//   - domains: Hostnames, wildcards allowed. Must not be empty.
//
// # Outputs
//
//   - CertificatePair: Paths of the written files.
//   - error: ErrNoDomains, or a *SubprocessError when mkcert fails.
func (m *MkcertIssuer) Issue(ctx context.Context, dir string, domains []string) (CertificatePair, error) {
	if len(domains) == 0 {
		return CertificatePair{}, ErrNoDomains
	}
	pair := CertificatePair{
		CertPath: filepath.Join(dir, CertificateFile),
		KeyPath:  filepath.Join(dir, KeyFile),
	}

	args := append([]string{"-cert-file", pair.CertPath, "-key-file", pair.KeyPath}, domains...)
	m.logger.Debug("issuing certificate", "dir", dir, "domains", domains)

	_, stderr, code, err := m.proc.RunInDir(ctx, dir, nil, m.binary, args...)
	m.metrics.RecordSubprocess(ctx, m.binary, code)
	if err != nil {
		return CertificatePair{}, fmt.Errorf("run %s: %w", m.binary, err)
	}
	if code != 0 {
		return CertificatePair{}, &environment.SubprocessError{Command: m.binary, ExitCode: code, Stderr: stderr}
	}
	return pair, nil
}

// MockIssuer records requests and delegates to IssueFunc. A nil IssueFunc
// returns the conventional file paths.
type MockIssuer struct {
	IssueFunc func(ctx context.Context, dir string, domains []string) (CertificatePair, error)

	Calls [][]string
	mu    sync.Mutex
}

// Issue implements Issuer.
func (m *MockIssuer) Issue(ctx context.Context, dir string, domains []string) (CertificatePair, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, append([]string(nil), domains...))
	m.mu.Unlock()

	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, dir, domains)
	}
	return CertificatePair{
		CertPath: filepath.Join(dir, CertificateFile),
		KeyPath:  filepath.Join(dir, KeyFile),
	}, nil
}

var (
	_ Issuer = (*MkcertIssuer)(nil)
	_ Issuer = (*MockIssuer)(nil)
)
