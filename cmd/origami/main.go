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
	"context"
	"os"

	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command line and returns the process exit code.
// Interrupts reach subprocesses through the terminal's process group, so
// the context is never cancelled here.
func run(args []string) int {
	c := &cli{}
	defer c.close()

	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if err != nil {
		printer := newPrinter()
		if c.app != nil {
			printer = c.app.printer
		}
		printer.Error(err.Error())
	}
	return int(environment.ExitCodeFor(err))
}
