// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"path/filepath"
	"time"
)

// CurrentConfigVersion is written to new configuration files.
const CurrentConfigVersion = "1"

// DefaultLockTimeout bounds waits on the registry and environment locks.
const DefaultLockTimeout = 10 * time.Second

type OrigamiConfig struct {
	Meta ConfigMeta `yaml:"meta"`

	// StateDir holds the registry, its lock and the environment locks.
	// Defaults to the directory of the config file.
	StateDir string `yaml:"state_dir,omitempty"`

	Compose ComposeConfig `yaml:"compose"`

	Logging LoggingConfig `yaml:"logging"`

	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Credentials: environment variables injected into generated .env files
	Credentials []string `yaml:"credentials" validate:"dive,required"`

	Sync SyncConfig `yaml:"sync"`

	// LockTimeout e.g. "10s"
	LockTimeout time.Duration `yaml:"lock_timeout" validate:"gte=0"`
}

type ConfigMeta struct {
	Version string `yaml:"version"`
}

type ComposeConfig struct {
	Binary      string `yaml:"binary" validate:"required"` // e.g. docker-compose
	DefaultUser string `yaml:"default_user,omitempty"`     // e.g. www-data
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	Traces       string `yaml:"traces" validate:"omitempty,oneof=none stdout otlp"`
	Metrics      string `yaml:"metrics" validate:"omitempty,oneof=none stdout prometheus"`
	MetricsFile  string `yaml:"metrics_file,omitempty" validate:"required_if=Metrics prometheus"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	OTLPInsecure bool   `yaml:"otlp_insecure,omitempty"`
}

// SyncConfig enables the mutagen session mirroring the location into the
// syncdata volume. It needs a compose file mounting that volume.
type SyncConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ResolveStateDir returns StateDir, or home when it is empty.
func (c OrigamiConfig) ResolveStateDir(home string) string {
	if c.StateDir == "" {
		return home
	}
	return filepath.Clean(c.StateDir)
}

// GetLockTimeout returns LockTimeout or DefaultLockTimeout when unset.
func (c OrigamiConfig) GetLockTimeout() time.Duration {
	if c.LockTimeout <= 0 {
		return DefaultLockTimeout
	}
	return c.LockTimeout
}

func DefaultConfig() OrigamiConfig {
	return OrigamiConfig{
		Meta: ConfigMeta{Version: CurrentConfigVersion},
		Compose: ComposeConfig{
			Binary: "docker-compose",
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
		Telemetry: TelemetryConfig{
			Traces:  "none",
			Metrics: "none",
		},
		Credentials: []string{
			"BLACKFIRE_CLIENT_ID",
			"BLACKFIRE_CLIENT_TOKEN",
			"BLACKFIRE_SERVER_ID",
			"BLACKFIRE_SERVER_TOKEN",
		},
		Sync:        SyncConfig{Enabled: false},
		LockTimeout: DefaultLockTimeout,
	}
}
