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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/origami/cmd/origami/internal/infra/compose"
)

func (c *cli) startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start an environment",
		Args:  cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			env, err := c.resolve(cmd, a)
			if err != nil {
				return err
			}
			outcome, err := a.service.Start(cmd.Context(), env)
			if err != nil {
				return err
			}
			a.warn(outcome.Warnings)
			a.printer.Success("Docker services successfully started.")
			return nil
		}),
	}
}

func (c *cli) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running environment",
		Args:  cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			outcome, err := a.service.Stop(cmd.Context())
			if err != nil {
				return err
			}
			a.warn(outcome.Warnings)
			a.printer.Success("Docker services successfully stopped.")
			return nil
		}),
	}
}

func (c *cli) restartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the running environment",
		Args:  cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			if _, err := a.service.Restart(cmd.Context()); err != nil {
				return err
			}
			a.printer.Success("Docker services successfully restarted.")
			return nil
		}),
	}
}

func (c *cli) psCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "Show the status of the running environment's services",
		Args:  cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			_, err := a.service.Ps(cmd.Context())
			return err
		}),
	}
}

func (c *cli) logsCmd() *cobra.Command {
	var opts compose.LogsOptions
	cmd := &cobra.Command{
		Use:   "logs [service]",
		Short: "Show the logs of the running environment",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.action(func(cmd *cobra.Command, a *app, args []string) error {
			if len(args) == 1 {
				opts.Service = args[0]
			}
			_, err := a.service.Logs(cmd.Context(), opts)
			return err
		}),
	}
	cmd.Flags().IntVarP(&opts.Tail, "tail", "t", 0, "Number of lines to show from the end of the logs")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "Follow the log output")
	return cmd
}

func (c *cli) execCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "exec <service> [-- command...]",
		Short: "Run a command, or open a shell, in a service of the running environment",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.action(func(cmd *cobra.Command, a *app, args []string) error {
			return c.exec(cmd, a, compose.ExecOptions{Service: args[0], User: user, Command: args[1:]})
		}),
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "Run the command as this user")
	return cmd
}

// shellCmd opens a shell in one well-known service.
func (c *cli) shellCmd(service string) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   service,
		Short: "Open a shell in the " + service + " service",
		Args:  cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			if user == "" && service == "php" {
				user = a.cfg.Compose.DefaultUser
			}
			return c.exec(cmd, a, compose.ExecOptions{Service: service, User: user})
		}),
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "Open the shell as this user")
	return cmd
}

func (c *cli) exec(cmd *cobra.Command, a *app, opts compose.ExecOptions) error {
	_, err := a.service.Exec(cmd.Context(), opts)
	return err
}
