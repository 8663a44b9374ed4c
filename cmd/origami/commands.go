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

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/origami/cmd/origami/config"
	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
)

// Replaced in tests.
var (
	loadConfig = func() (config.OrigamiConfig, string, error) {
		if err := config.Load(); err != nil {
			return config.OrigamiConfig{}, "", err
		}
		home, err := config.Home()
		return config.Global, home, err
	}
	getwd      = os.Getwd
	isTerminal = func() bool {
		return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	}
)

// cli is one invocation of the command tree. The app is built lazily by
// the first command that needs it.
type cli struct {
	flags globalFlags
	app   *app
}

func (c *cli) load(cmd *cobra.Command) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, home, err := loadConfig()
	if err != nil {
		return nil, err
	}
	c.app, err = newApp(cmd.Context(), cfg, home, &c.flags)
	return c.app, err
}

// resolve returns the environment targeted by --env, the running
// environment or the working directory.
func (c *cli) resolve(cmd *cobra.Command, a *app) (*environment.Environment, error) {
	cwd, err := getwd()
	if err != nil {
		return nil, err
	}
	return a.service.Resolve(cmd.Context(), c.flags.env, cwd)
}

func (c *cli) close() {
	if c.app != nil {
		_ = c.app.Close(context.Background())
	}
}

// action adapts a command body that needs the app to cobra's RunE.
func (c *cli) action(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := c.load(cmd)
		if err != nil {
			return err
		}
		return fn(cmd, a, args)
	}
}

// rootCmd builds the command tree.
func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "origami",
		Short: "Manage local Docker environments for PHP projects",
		Long: `Origami installs, starts and stops containerized development
environments. Only one environment runs at a time.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&c.flags.verbose, "verbose", "v", false, "Print debug logs")
	root.PersistentFlags().BoolVarP(&c.flags.quiet, "quiet", "q", false, "Silence logs")
	root.PersistentFlags().StringVarP(&c.flags.env, "env", "e", "", "Name of the targeted environment")

	root.AddGroup(
		&cobra.Group{ID: "config", Title: "Configuration:"},
		&cobra.Group{ID: "stack", Title: "Containers:"},
		&cobra.Group{ID: "info", Title: "Information:"},
	)

	for _, cmd := range []*cobra.Command{
		c.installCmd(), c.registerCmd(), c.updateCmd(), c.uninstallCmd(),
	} {
		cmd.GroupID = "config"
		root.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{
		c.startCmd(), c.stopCmd(), c.restartCmd(), c.psCmd(), c.logsCmd(), c.execCmd(),
		c.shellCmd("php"), c.shellCmd("nginx"), c.shellCmd("database"),
	} {
		cmd.GroupID = "stack"
		root.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{
		c.rootVarsCmd(), c.listCmd(), c.checkCmd(), c.configCmd(),
	} {
		cmd.GroupID = "info"
		root.AddCommand(cmd)
	}
	return root
}
