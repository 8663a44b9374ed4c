// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides abstractions for external process execution and
inter-process synchronization.

# Overview

This package contains two main components:

  - Manager: Abstracts external process execution for testability
  - FileLock: flock(2) based locking shared by concurrent origami invocations

# Manager

Every exec.Command call goes through Manager so that unit tests can script
the compose tool, mkcert and mutagen:

	pm := process.NewDefaultManager()
	stdout, stderr, code, err := pm.RunInDir(ctx, "", nil, "mkcert", "-CAROOT")

For testing, use MockManager:

	mock := &process.MockManager{
	    RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	        return "", "unknown flag", 1, nil
	    },
	}

# FileLock

The registry and each environment's configuration directory are guarded
by a FileLock. Acquire waits with a fixed poll rate until the context
expires:

	lock := process.NewFileLock(process.FileLockConfig{Path: "/home/me/.origami/registry.lock"})
	if err := lock.Acquire(ctx); err != nil {
	    return err
	}
	defer lock.Release()
*/
package process
