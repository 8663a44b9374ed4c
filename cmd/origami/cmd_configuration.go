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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/origami/cmd/origami/internal/configuration"
	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
)

func (c *cli) installCmd() *cobra.Command {
	var (
		req     configuration.InstallRequest
		typ     string
		wizard  bool
		domains []string
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a new environment",
		Long: `Install a new environment in a project directory.

Missing values are asked interactively when the terminal allows it.`,
		Args: cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			if req.Location == "" {
				cwd, err := getwd()
				if err != nil {
					return err
				}
				req.Location = cwd
			}
			abs, err := filepath.Abs(req.Location)
			if err != nil {
				return err
			}
			req.Location = abs
			req.Domains = domains
			if typ != "" {
				if req.Type, err = environment.ParseType(typ); err != nil {
					return err
				}
			}

			if wizard || req.Name == "" || req.Type == "" {
				if !isTerminal() {
					return environment.NewInvalidEnvironmentError("The --name and --type options are required when the terminal is not interactive.")
				}
				if err := runInstallWizard(&req); err != nil {
					return err
				}
			}

			result, err := a.service.Install(cmd.Context(), req)
			if err != nil {
				return err
			}
			a.warn(result.Warnings)
			if result.Certificates != nil {
				a.printer.Note(fmt.Sprintf("A certificate has been issued for %s.", strings.Join(result.Environment.Domains, ", ")))
			}
			a.printer.Success("Environment successfully installed.")
			return nil
		}),
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Name of the environment")
	cmd.Flags().StringVar(&typ, "type", "", fmt.Sprintf("Type of the environment (%s)", typeList()))
	cmd.Flags().StringVar(&req.Location, "location", "", "Project directory (default: working directory)")
	cmd.Flags().StringVar(&req.PHPVersion, "php", "", "PHP image version (default: latest)")
	cmd.Flags().StringSliceVar(&domains, "domains", nil, "Domains to issue a certificate for")
	cmd.Flags().BoolVarP(&wizard, "interactive", "i", false, "Ask for every value")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the working directory as a custom environment",
		Args:  cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			cwd, err := getwd()
			if err != nil {
				return err
			}
			result, err := a.service.Register(cmd.Context(), name, cwd)
			if err != nil {
				return err
			}
			a.warn(result.Warnings)
			a.printer.Success(fmt.Sprintf("Environment %q successfully registered.", result.Environment.Name))
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "Name of the environment (default: directory name)")
	return cmd
}

func (c *cli) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update the configuration of an environment",
		Long: `Copy the latest template files into the environment configuration.

Values already present in the .env file are kept.`,
		Args: cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			env, err := c.resolve(cmd, a)
			if err != nil {
				return err
			}
			result, err := a.service.Update(cmd.Context(), env)
			if err != nil {
				return err
			}
			a.warn(result.Warnings)
			if len(result.SeededKeys) > 0 {
				a.printer.Note("New variables added to the .env file: " + strings.Join(result.SeededKeys, ", "))
			}
			a.printer.Success("Environment successfully updated.")
			return nil
		}),
	}
}

func (c *cli) uninstallCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall an environment and its Docker resources",
		Args:  cobra.NoArgs,
		RunE: c.action(func(cmd *cobra.Command, a *app, _ []string) error {
			env, err := c.resolve(cmd, a)
			if err != nil {
				return err
			}
			if !force {
				if !isTerminal() {
					return environment.NewInvalidEnvironmentError("The --force option is required when the terminal is not interactive.")
				}
				ok, err := confirm(fmt.Sprintf("Are you sure you want to uninstall %q?", env.Name))
				if err != nil {
					return err
				}
				if !ok {
					return errAborted
				}
			}

			outcome, err := a.service.Uninstall(cmd.Context(), env)
			if err != nil {
				return err
			}
			a.warn(outcome.Warnings)
			a.printer.Success("Environment successfully uninstalled.")
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Do not ask for confirmation")
	return cmd
}

func typeList() string {
	names := make([]string, 0, len(environment.Types()))
	for _, t := range environment.Types() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}
