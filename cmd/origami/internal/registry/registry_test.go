// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
)

func newTestRegistry(t *testing.T, dir string) *FileRegistry {
	t.Helper()
	r, err := New(Config{StateDir: dir})
	require.NoError(t, err)
	return r
}

func newTestEnvironment(t *testing.T, name string) *environment.Environment {
	t.Helper()
	env, err := environment.New(name, filepath.Join("/srv", name), environment.TypeSymfony, "", nil)
	require.NoError(t, err)
	return env
}

func TestNew_RequiresStateDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestRegister_AndFind(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir())
	env := newTestEnvironment(t, "origami")

	require.NoError(t, r.Register(ctx, env))

	found, err := r.Find(ctx, "origami")
	require.NoError(t, err)
	assert.Equal(t, env.ID, found.ID)
	assert.Equal(t, env.Location, found.Location)
	assert.False(t, found.Active)

	_, err = r.Find(ctx, "missing")
	assert.ErrorIs(t, err, environment.ErrNotFound)
}

func TestRegister_Duplicate(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir())

	require.NoError(t, r.Register(ctx, newTestEnvironment(t, "origami")))
	err := r.Register(ctx, newTestEnvironment(t, "origami"))

	var dup *environment.DuplicateEnvironmentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "origami", dup.Name)

	envs, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, envs, 1)
}

func TestRegister_RejectsInvalidEntity(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())
	err := r.Register(context.Background(), &environment.Environment{Name: "x", Location: "relative", Type: environment.TypeSymfony})
	assert.ErrorIs(t, err, environment.ErrInvalidEnvironment)
}

func TestList_PreservesRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(ctx, newTestEnvironment(t, name)))
	}

	envs, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 3)
	assert.Equal(t, "zeta", envs[0].Name)
	assert.Equal(t, "alpha", envs[1].Name)
	assert.Equal(t, "mid", envs[2].Name)
}

func TestActivate_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir())
	first := newTestEnvironment(t, "first")
	second := newTestEnvironment(t, "second")
	require.NoError(t, r.Register(ctx, first))
	require.NoError(t, r.Register(ctx, second))

	require.NoError(t, r.Activate(ctx, first))
	assert.True(t, first.Active)

	err := r.Activate(ctx, second)
	var already *environment.AlreadyActiveError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, "first", already.Active)
	assert.False(t, second.Active)

	// Activating the running environment again is harmless.
	require.NoError(t, r.Activate(ctx, first))

	active, err := r.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", active.Name)

	require.NoError(t, r.Deactivate(ctx, first))
	assert.False(t, first.Active)
	require.NoError(t, r.Activate(ctx, second))
}

func TestActive_NoneRunning(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())
	_, err := r.Active(context.Background())
	assert.ErrorIs(t, err, environment.ErrNoActiveEnvironment)
	assert.Equal(t, environment.ExitInvalid, environment.ExitCodeFor(err))
}

func TestActivate_Unknown(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())
	err := r.Activate(context.Background(), newTestEnvironment(t, "ghost"))
	assert.ErrorIs(t, err, environment.ErrNotFound)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir())
	env := newTestEnvironment(t, "origami")
	require.NoError(t, r.Register(ctx, env))
	require.NoError(t, r.Activate(ctx, env))

	err := r.Remove(ctx, env)
	assert.ErrorIs(t, err, environment.ErrInvalidState)
	_, err = r.Find(ctx, "origami")
	require.NoError(t, err, "a running environment must stay registered")

	require.NoError(t, r.Deactivate(ctx, env))
	require.NoError(t, r.Remove(ctx, env))
	_, err = r.Find(ctx, "origami")
	assert.ErrorIs(t, err, environment.ErrNotFound)
}

func TestRemove_StaleInactiveCopyOfRunningEnvironment(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir())
	env := newTestEnvironment(t, "origami")
	require.NoError(t, r.Register(ctx, env))
	require.NoError(t, r.Activate(ctx, env))

	stale := env.Clone()
	stale.Active = false
	assert.ErrorIs(t, r.Remove(ctx, stale), environment.ErrInvalidState)
}

func TestBeginRemoval_StaleCopyOfRunningEnvironment(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir())
	env := newTestEnvironment(t, "origami")
	require.NoError(t, r.Register(ctx, env))

	stale := env.Clone()
	require.NoError(t, r.Activate(ctx, env))

	err := r.BeginRemoval(ctx, stale)
	require.ErrorIs(t, err, environment.ErrInvalidState)
	assert.True(t, stale.Active, "the copy is refreshed")

	stored, err := r.Find(ctx, "origami")
	require.NoError(t, err)
	assert.False(t, stored.Removing)
}

func TestBeginRemoval_BlocksActivation(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir())
	env := newTestEnvironment(t, "origami")
	require.NoError(t, r.Register(ctx, env))

	require.NoError(t, r.BeginRemoval(ctx, env))
	require.NoError(t, r.BeginRemoval(ctx, env.Clone()), "marking twice is allowed")

	err := r.Activate(ctx, env.Clone())
	require.ErrorIs(t, err, environment.ErrInvalidState)
	_, err = r.Active(ctx)
	assert.ErrorIs(t, err, environment.ErrNoActiveEnvironment)

	require.NoError(t, r.AbortRemoval(ctx, env))
	assert.False(t, env.Removing)
	require.NoError(t, r.Activate(ctx, env))
}

func TestBeginRemoval_Unknown(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())
	env := newTestEnvironment(t, "origami")

	assert.ErrorIs(t, r.BeginRemoval(context.Background(), env), environment.ErrNotFound)
	assert.NoError(t, r.AbortRemoval(context.Background(), env))
}

func TestRegister_LocationTaken(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir())
	require.NoError(t, r.Register(ctx, newTestEnvironment(t, "origami")))

	other, err := environment.New("other", "/srv/origami", environment.TypeCustom, "", nil)
	require.NoError(t, err)

	err = r.Register(ctx, other)
	require.ErrorIs(t, err, environment.ErrInvalidEnvironment)
	assert.Contains(t, err.Error(), `"origami"`)

	envs, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, envs, 1)
}

func TestRegister_ConcurrentSameLocation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	const n = 4
	registries := make([]*FileRegistry, n)
	candidates := make([]*environment.Environment, n)
	for i := range registries {
		registries[i] = newTestRegistry(t, dir)
		env, err := environment.New(fmt.Sprintf("app%d", i), "/srv/app", environment.TypeCustom, "", nil)
		require.NoError(t, err)
		candidates[i] = env
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range registries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = registries[i].Register(ctx, candidates[i])
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, environment.ErrInvalidEnvironment)
	}
	assert.Equal(t, 1, accepted)
	envs, err := newTestRegistry(t, dir).List(ctx)
	require.NoError(t, err)
	assert.Len(t, envs, 1)
}

func TestFindByLocation_DeepestMatch(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir())

	outer, err := environment.New("outer", "/srv/sites", environment.TypeCustom, "", nil)
	require.NoError(t, err)
	inner, err := environment.New("inner", "/srv/sites/shop", environment.TypeMagento2, "", nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(ctx, outer))
	require.NoError(t, r.Register(ctx, inner))

	found, err := r.FindByLocation(ctx, "/srv/sites/shop/app/code")
	require.NoError(t, err)
	assert.Equal(t, "inner", found.Name)

	found, err = r.FindByLocation(ctx, "/srv/sites/blog")
	require.NoError(t, err)
	assert.Equal(t, "outer", found.Name)

	_, err = r.FindByLocation(ctx, "/home")
	assert.ErrorIs(t, err, environment.ErrNotFound)
}

func TestPersistence_AcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	env := newTestEnvironment(t, "origami")
	require.NoError(t, newTestRegistry(t, dir).Register(ctx, env))
	require.NoError(t, newTestRegistry(t, dir).Activate(ctx, env))

	active, err := newTestRegistry(t, dir).Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.ID, active.ID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files must not be left behind")
	}
}

func TestLoad_CorruptState(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateFileName), []byte("{not json"), 0600))

	_, err := newTestRegistry(t, dir).List(context.Background())
	assert.ErrorIs(t, err, ErrCorruptState)
	assert.ErrorIs(t, err, environment.ErrFilesystem)
}

func TestActivate_ConcurrentInvocations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	const n = 8
	envs := make([]*environment.Environment, n)
	for i := range envs {
		envs[i] = newTestEnvironment(t, fmt.Sprintf("env%d", i))
		require.NoError(t, newTestRegistry(t, dir).Register(ctx, envs[i]))
	}

	// Each goroutine plays a separate invocation with its own lock handle.
	registries := make([]*FileRegistry, n)
	for i := range registries {
		registries[i] = newTestRegistry(t, dir)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range envs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = registries[i].Activate(ctx, envs[i].Clone())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, environment.ErrAlreadyActive), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)

	all, err := newTestRegistry(t, dir).List(ctx)
	require.NoError(t, err)
	active := 0
	for _, env := range all {
		if env.Active {
			active++
		}
	}
	assert.Equal(t, 1, active)
}
