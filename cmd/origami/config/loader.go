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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// HomeEnv overrides the configuration directory.
const HomeEnv = "ORIGAMI_HOME"

// FileName is the configuration file inside Home().
const FileName = "origami.yaml"

var (
	// Global is a singleton instance
	Global OrigamiConfig
	once   sync.Once

	validate = validator.New()
)

// Load ensures the config is loaded into the Global variable
func Load() error {
	var err error
	once.Do(func() {
		var home string
		home, err = Home()
		if err != nil {
			return
		}
		Global, err = LoadFrom(filepath.Join(home, FileName))
	})
	return err
}

// Home returns $ORIGAMI_HOME, or ~/.origami.
func Home() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return filepath.Clean(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".origami"), nil
}

// LoadFrom reads and validates the config at path, creating it with
// defaults on first run. Keys missing from the file keep their default.
func LoadFrom(configPath string) (OrigamiConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := createDefault(configPath); err != nil {
			return OrigamiConfig{}, err
		}
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return OrigamiConfig{}, fmt.Errorf("failed to read the config file %w", err)
	}

	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return OrigamiConfig{}, fmt.Errorf("failed to parse the config file %s: %w", configPath, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return OrigamiConfig{}, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	defaultCfg := DefaultConfig()
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
