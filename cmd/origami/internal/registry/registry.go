// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry persists the known environments and which one is active.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
	"github.com/AleutianAI/origami/cmd/origami/internal/infra/process"
	"github.com/AleutianAI/origami/pkg/logging"
)

const (
	// StateFileName is the registry file inside the state directory.
	StateFileName = "environments.json"

	lockFileName  = "registry.lock"
	formatVersion = 1

	defaultLockTimeout = 10 * time.Second
)

// ErrCorruptState is returned when the state file cannot be decoded.
var ErrCorruptState = errors.New("registry state file is corrupted")

// Registry is the persistent store of environments.
//
// Every mutating call is a read-modify-write of the state file performed
// under an exclusive file lock, so concurrent invocations of the tool
// observe a serial history.
type Registry interface {
	// Register adds env. Fails with *DuplicateEnvironmentError if the name
	// exists and *InvalidEnvironmentError if the location is already taken.
	Register(ctx context.Context, env *environment.Environment) error

	// Find returns the environment named name, or *NotFoundError.
	Find(ctx context.Context, name string) (*environment.Environment, error)

	// FindByLocation returns the environment whose location contains dir.
	FindByLocation(ctx context.Context, dir string) (*environment.Environment, error)

	// Active returns the running environment, or *NoActiveEnvironmentError.
	Active(ctx context.Context) (*environment.Environment, error)

	// List returns all environments in registration order.
	List(ctx context.Context) ([]*environment.Environment, error)

	// Activate marks env as running. Fails with *AlreadyActiveError if
	// another environment is running and *InvalidStateError if env is being
	// uninstalled.
	Activate(ctx context.Context, env *environment.Environment) error

	// Deactivate marks env as stopped.
	Deactivate(ctx context.Context, env *environment.Environment) error

	// Remove deregisters env. Fails with *InvalidStateError if it is running.
	Remove(ctx context.Context, env *environment.Environment) error

	// BeginRemoval marks env as being uninstalled so that it can no longer
	// be activated. Fails with *InvalidStateError if the stored record is
	// running, whatever the state of env.
	BeginRemoval(ctx context.Context, env *environment.Environment) error

	// AbortRemoval clears the mark set by BeginRemoval.
	AbortRemoval(ctx context.Context, env *environment.Environment) error
}

// Config configures a FileRegistry.
type Config struct {
	// StateDir holds the state file and its lock.
	StateDir string

	// LockTimeout bounds the wait for the registry lock.
	// Default: 10s
	LockTimeout time.Duration

	// Logger receives debug traces; nil discards them.
	Logger *logging.Logger
}

// FileRegistry is a Registry stored as a JSON document.
type FileRegistry struct {
	path    string
	lock    process.Locker
	timeout time.Duration
	logger  *logging.Logger
}

type stateFile struct {
	Version      int                        `json:"version"`
	Environments []*environment.Environment `json:"environments"`
}

// New creates a FileRegistry rooted at cfg.StateDir.
func New(cfg Config) (*FileRegistry, error) {
	if cfg.StateDir == "" {
		return nil, fmt.Errorf("registry: state directory must not be empty")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &FileRegistry{
		path:    filepath.Join(cfg.StateDir, StateFileName),
		lock:    process.NewFileLock(process.FileLockConfig{Path: filepath.Join(cfg.StateDir, lockFileName)}),
		timeout: cfg.LockTimeout,
		logger:  cfg.Logger.With("component", "registry"),
	}, nil
}

// Path returns the state file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Register implements Registry.
func (r *FileRegistry) Register(ctx context.Context, env *environment.Environment) error {
	if err := env.Validate(); err != nil {
		return err
	}
	return r.mutate(ctx, func(s *stateFile) error {
		if _, existing := s.find(env.Name); existing != nil {
			return &environment.DuplicateEnvironmentError{Name: env.Name}
		}
		for _, other := range s.Environments {
			if other.Location == env.Location {
				return environment.NewInvalidEnvironmentError("The environment %q is already registered at %q.", other.Name, env.Location)
			}
		}
		if env.ID == uuid.Nil {
			env.ID = uuid.New()
		}
		if env.CreatedAt.IsZero() {
			env.CreatedAt = time.Now().UTC()
		}
		env.Active = false
		env.Removing = false
		s.Environments = append(s.Environments, env.Clone())
		r.logger.Debug("environment registered", "name", env.Name, "type", env.Type.String())
		return nil
	})
}

// Find implements Registry.
func (r *FileRegistry) Find(_ context.Context, name string) (*environment.Environment, error) {
	s, err := r.load()
	if err != nil {
		return nil, err
	}
	_, env := s.find(name)
	if env == nil {
		return nil, &environment.NotFoundError{Name: name}
	}
	return env, nil
}

// FindByLocation implements Registry. The deepest matching location wins.
func (r *FileRegistry) FindByLocation(_ context.Context, dir string) (*environment.Environment, error) {
	s, err := r.load()
	if err != nil {
		return nil, err
	}
	var best *environment.Environment
	for _, env := range s.Environments {
		if env.Contains(dir) && (best == nil || len(env.Location) > len(best.Location)) {
			best = env
		}
	}
	if best == nil {
		return nil, &environment.NotFoundError{Name: dir}
	}
	return best, nil
}

// Active implements Registry.
func (r *FileRegistry) Active(_ context.Context) (*environment.Environment, error) {
	s, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, env := range s.Environments {
		if env.Active {
			return env, nil
		}
	}
	return nil, &environment.NoActiveEnvironmentError{}
}

// List implements Registry.
func (r *FileRegistry) List(_ context.Context) ([]*environment.Environment, error) {
	s, err := r.load()
	if err != nil {
		return nil, err
	}
	return s.Environments, nil
}

// Activate implements Registry.
func (r *FileRegistry) Activate(ctx context.Context, env *environment.Environment) error {
	return r.mutate(ctx, func(s *stateFile) error {
		_, target := s.find(env.Name)
		if target == nil {
			return &environment.NotFoundError{Name: env.Name}
		}
		if target.Removing {
			return &environment.InvalidStateError{
				Name:    env.Name,
				Message: fmt.Sprintf("Unable to start the environment %q while it is being uninstalled.", env.Name),
			}
		}
		for _, other := range s.Environments {
			if other.Active && other.Name != target.Name {
				return &environment.AlreadyActiveError{Requested: target.Name, Active: other.Name}
			}
		}
		target.Activate()
		env.Activate()
		return nil
	})
}

// Deactivate implements Registry.
func (r *FileRegistry) Deactivate(ctx context.Context, env *environment.Environment) error {
	return r.mutate(ctx, func(s *stateFile) error {
		_, target := s.find(env.Name)
		if target == nil {
			return &environment.NotFoundError{Name: env.Name}
		}
		target.Deactivate()
		env.Deactivate()
		return nil
	})
}

// Remove implements Registry.
func (r *FileRegistry) Remove(ctx context.Context, env *environment.Environment) error {
	return r.mutate(ctx, func(s *stateFile) error {
		idx, target := s.find(env.Name)
		if target == nil {
			return &environment.NotFoundError{Name: env.Name}
		}
		if target.Active || env.Active {
			return &environment.InvalidStateError{
				Name:    env.Name,
				Message: fmt.Sprintf("Unable to remove the running environment %q.", env.Name),
			}
		}
		s.Environments = append(s.Environments[:idx], s.Environments[idx+1:]...)
		r.logger.Debug("environment removed", "name", env.Name)
		return nil
	})
}

// BeginRemoval implements Registry. Marking an environment twice is allowed
// so that an interrupted uninstall can be retried.
func (r *FileRegistry) BeginRemoval(ctx context.Context, env *environment.Environment) error {
	return r.mutate(ctx, func(s *stateFile) error {
		_, target := s.find(env.Name)
		if target == nil {
			return &environment.NotFoundError{Name: env.Name}
		}
		if target.Active {
			env.Activate()
			return &environment.InvalidStateError{Name: env.Name, Message: "Unable to uninstall a running environment."}
		}
		target.Removing = true
		env.Removing = true
		r.logger.Debug("environment removal started", "name", env.Name)
		return nil
	})
}

// AbortRemoval implements Registry. A missing entry is not an error.
func (r *FileRegistry) AbortRemoval(ctx context.Context, env *environment.Environment) error {
	return r.mutate(ctx, func(s *stateFile) error {
		env.Removing = false
		if _, target := s.find(env.Name); target != nil {
			target.Removing = false
		}
		return nil
	})
}

// =============================================================================
// Persistence
// =============================================================================

// mutate runs fn against a fresh copy of the state under the registry lock
// and persists the result only if fn succeeds.
func (r *FileRegistry) mutate(ctx context.Context, fn func(*stateFile) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.lock.Acquire(lockCtx); err != nil {
		return &environment.FilesystemError{Op: "lock registry", Path: r.path, Err: err}
	}
	defer func() {
		if err := r.lock.Release(); err != nil {
			r.logger.Warn("failed to release registry lock", "error", err)
		}
	}()

	s, err := r.load()
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return r.save(s)
}

// load reads the state file. A missing file is an empty registry.
// Readers do not take the lock: save replaces the file with a rename, so
// a reader sees either the previous or the next complete document.
func (r *FileRegistry) load() (*stateFile, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &stateFile{Version: formatVersion}, nil
	}
	if err != nil {
		return nil, &environment.FilesystemError{Op: "read registry", Path: r.path, Err: err}
	}

	var s stateFile
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &environment.FilesystemError{Op: "decode registry", Path: r.path, Err: fmt.Errorf("%w: %v", ErrCorruptState, err)}
	}
	if s.Version > formatVersion {
		return nil, &environment.FilesystemError{Op: "decode registry", Path: r.path, Err: fmt.Errorf("%w: unsupported version %d", ErrCorruptState, s.Version)}
	}
	s.Version = formatVersion
	return &s, nil
}

// save writes the state to a temp file and renames it into place.
func (r *FileRegistry) save(s *stateFile) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return &environment.FilesystemError{Op: "create state directory", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, StateFileName+".*.tmp")
	if err != nil {
		return &environment.FilesystemError{Op: "write registry", Path: r.path, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return &environment.FilesystemError{Op: "write registry", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &environment.FilesystemError{Op: "sync registry", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &environment.FilesystemError{Op: "write registry", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return &environment.FilesystemError{Op: "replace registry", Path: r.path, Err: err}
	}
	return nil
}

func (s *stateFile) find(name string) (int, *environment.Environment) {
	for i, env := range s.Environments {
		if env.Name == name {
			return i, env
		}
	}
	return -1, nil
}

var _ Registry = (*FileRegistry)(nil)
