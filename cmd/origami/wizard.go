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
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/AleutianAI/origami/cmd/origami/internal/configuration"
	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
)

// errAborted is returned when the user cancels a prompt.
var errAborted = errors.New("Operation aborted.")

// Replaced in tests.
var (
	runInstallWizard = installWizard
	confirm          = confirmPrompt
)

// installWizard asks for the fields of req that are still empty.
func installWizard(req *configuration.InstallRequest) error {
	if req.Name == "" {
		req.Name = filepath.Base(req.Location)
	}
	if req.Type == "" {
		req.Type = environment.TypeSymfony
	}

	typeOptions := make([]huh.Option[environment.Type], 0, len(environment.Types()))
	for _, t := range environment.Types() {
		typeOptions = append(typeOptions, huh.NewOption(t.String(), t))
	}
	domains := strings.Join(req.Domains, " ")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("What is the name of the environment?").
				Value(&req.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("the name is required")
					}
					return nil
				}),
			huh.NewSelect[environment.Type]().
				Title("Which type of environment do you want to install?").
				Options(typeOptions...).
				Value(&req.Type),
			huh.NewInput().
				Title("Which version of PHP do you want to use?").
				Placeholder("latest").
				Value(&req.PHPVersion),
			huh.NewInput().
				Title("Which domains does this environment need? (space separated)").
				Placeholder("origami.localhost www.origami.localhost").
				Value(&domains),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errAborted
		}
		return err
	}
	req.Domains = strings.Fields(domains)
	return nil
}

// confirmPrompt asks a yes/no question, defaulting to no.
func confirmPrompt(question string) (bool, error) {
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(question).Affirmative("Yes").Negative("No").Value(&ok),
	)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
