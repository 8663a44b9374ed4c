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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/origami/cmd/origami/internal/requirements"
	"github.com/AleutianAI/origami/cmd/origami/internal/variables"
)

func (c *cli) rootVarsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "root",
		Short: "Print the compose variables of the running environment",
		Long: `Print the compose variables of the running environment as shell exports.

Use eval "$(origami root)" to run docker-compose by hand.`,
		Args: cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			lines, err := a.service.Root(cmd.Context())
			if err != nil {
				return err
			}
			for _, line := range lines {
				a.printer.Println(line)
			}
			return nil
		}),
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the registered environments",
		Args:    cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			envs, err := a.service.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(envs) == 0 {
				a.printer.Note("There is no registered environment.")
				return nil
			}
			rows := make([][]string, 0, len(envs))
			for _, env := range envs {
				status := "Stopped"
				if env.Active {
					status = "Running"
				}
				php := env.PHPVersion
				if php == "" {
					php = "-"
				}
				rows = append(rows, []string{
					env.Name, env.Location, env.Type.String(), php,
					strings.Join(env.Domains, " "), status,
				})
			}
			a.printer.Table([]string{"Name", "Location", "Type", "PHP", "Domains", "Status"}, rows)
			return nil
		}),
	}
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the system requirements",
		Args:  cobra.NoArgs,
		RunE: c.action(func(_ *cobra.Command, a *app, _ []string) error {
			report := a.service.Requirements()
			a.printer.Title("Mandatory binaries")
			a.printer.Table(statusHeaders, statusRows(report.Mandatory))
			a.printer.Title("Optional binaries")
			a.printer.Table(statusHeaders, statusRows(report.Optional))

			if err := report.Gate(); err != nil {
				return err
			}
			a.printer.Success("Your system is ready.")
			return nil
		}),
	}
}

func (c *cli) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the compose variables of an environment",
		Args:  cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			env, err := c.resolve(cmd, a)
			if err != nil {
				return err
			}
			vars, err := a.service.Variables(env)
			if err != nil {
				return err
			}
			a.printer.Title(env.Name)
			rows := make([][]string, 0, len(vars))
			for _, k := range variables.Keys(vars) {
				rows = append(rows, []string{k, vars[k]})
			}
			a.printer.Table([]string{"Variable", "Value"}, rows)
			return nil
		}),
	}
}

var statusHeaders = []string{"Binary", "Description", "Status"}

func statusRows(statuses []requirements.Status) [][]string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		state := "Missing"
		if s.Found {
			state = "Installed"
		}
		rows = append(rows, []string{s.Name, s.Description, state})
	}
	return rows
}
