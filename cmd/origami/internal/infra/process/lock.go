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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// Locker serializes access to a shared resource across processes.
type Locker interface {
	// Acquire blocks until the lock is obtained or ctx is done.
	Acquire(ctx context.Context) error

	// TryAcquire attempts to get the lock without waiting.
	// Returns *ErrLockHeld if another holder has it.
	TryAcquire() error

	// Release releases the lock if held.
	// Safe to call multiple times or if the lock was never acquired.
	Release() error

	// IsHeld returns true if this instance currently holds the lock.
	IsHeld() bool

	// HolderPID returns the PID recorded by the current holder, or 0.
	HolderPID() int
}

// FileLockConfig configures a FileLock.
type FileLockConfig struct {
	// Path is the lock file. Its parent directory is created on demand.
	Path string

	// PollInterval is the delay between attempts while waiting in Acquire.
	// Default: 50ms
	PollInterval time.Duration
}

// FileLock is an advisory exclusive lock backed by flock(2).
//
// # Description
//
// The lock is bound to an open file description, so two FileLock values
// pointing at the same path contend with each other even inside a single
// process. The holder writes its PID into the lock file for diagnostics.
// The file is left in place on Release so that waiters never lock an
// unlinked inode.
//
// # Limitations
//
//   - Advisory only: processes that do not use flock are not excluded.
//   - Not reliable on network filesystems that do not implement flock.
//
// # Thread Safety
//
// Safe for concurrent use; a single FileLock is held at most once.
type FileLock struct {
	config  FileLockConfig
	limiter *rate.Limiter

	mu   sync.Mutex
	file *os.File
}

// NewFileLock creates a FileLock. No file is opened until Acquire.
func NewFileLock(config FileLockConfig) *FileLock {
	if config.PollInterval <= 0 {
		config.PollInterval = 50 * time.Millisecond
	}
	return &FileLock{
		config:  config,
		limiter: rate.NewLimiter(rate.Every(config.PollInterval), 1),
	}
}

// Acquire blocks until the lock is held, ctx is cancelled, or a
// non-contention error occurs.
//
// # Inputs
//
//   - ctx: Bounds the wait. A context without deadline waits forever.
//
// # Outputs
//
//   - error: nil once held. Wraps ctx.Err() and carries the last
//     *ErrLockHeld when the wait is abandoned.
func (l *FileLock) Acquire(ctx context.Context) error {
	for {
		err := l.TryAcquire()
		if err == nil {
			return nil
		}
		var held *ErrLockHeld
		if !errors.As(err, &held) {
			return err
		}
		if werr := l.limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("%w: %w", held, ctxErr(ctx, werr))
		}
	}
}

// TryAcquire attempts a non-blocking exclusive lock.
func (l *FileLock) TryAcquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.config.Path), 0750); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.config.Path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", l.config.Path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return &ErrLockHeld{HolderPID: l.readHolderPID(), LockPath: l.config.Path}
		}
		return fmt.Errorf("flock %s: %w", l.config.Path, err)
	}

	l.file = f
	l.writePID()
	return nil
}

// Release unlocks and closes the lock file.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	_ = l.file.Truncate(0)
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.config.Path, err)
	}
	return nil
}

// IsHeld returns true if this instance holds the lock.
func (l *FileLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

// HolderPID returns the PID written by the current holder, or 0.
func (l *FileLock) HolderPID() int {
	return l.readHolderPID()
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.config.Path
}

// writePID is best effort; the lock is held even if it fails.
func (l *FileLock) writePID() {
	if err := l.file.Truncate(0); err != nil {
		return
	}
	_, _ = l.file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
}

func (l *FileLock) readHolderPID() int {
	f, err := os.Open(l.config.Path)
	if err != nil {
		return 0
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, 32))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// ctxErr prefers the context's own error over the limiter's wording.
func ctxErr(ctx context.Context, fallback error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fallback
}

// ErrLockHeld is returned when another holder owns the lock.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

// Error implements the error interface.
func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("lock %s is held by another origami process (PID %d)", e.LockPath, e.HolderPID)
	}
	return fmt.Sprintf("lock %s is held by another origami process", e.LockPath)
}

var _ Locker = (*FileLock)(nil)
