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
Package requirements provides pre-flight detection of the external binaries
origami drives.

# Catalogs

Two fixed catalogs are probed on PATH:

	mandatory: docker, docker-compose, mutagen
	optional:  mkcert

The checker only reports. Deciding whether a missing binary aborts an
operation is up to the caller (see Report.Gate).

# Usage

	checker := requirements.NewChecker(nil)
	report := checker.Report()
	fmt.Print(report.String())
	if err := report.Gate(); err != nil {
	    return err
	}
*/
package requirements

import (
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/origami/cmd/origami/internal/environment"
)

// Requirement is a binary expected on PATH.
type Requirement struct {
	Name        string
	Description string
	Remediation string
}

// Status is the outcome of probing one Requirement.
type Status struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Found       bool   `json:"found"`
	Path        string `json:"path,omitempty"`
	Remediation string `json:"-"`
}

// MandatoryCatalog lists the binaries every operation relies on.
var MandatoryCatalog = []Requirement{
	{
		Name:        "docker",
		Description: "A self-sufficient runtime for containers.",
		Remediation: "Install Docker: https://docs.docker.com/get-docker/",
	},
	{
		Name:        "docker-compose",
		Description: "Define and run multi-container applications with Docker.",
		Remediation: "Install Docker Compose: https://docs.docker.com/compose/install/",
	},
	{
		Name:        "mutagen",
		Description: "Fast and efficient way to synchronize code to Docker containers.",
		Remediation: "Install Mutagen: https://mutagen.io/documentation/introduction/installation",
	},
}

// OptionalCatalog lists binaries that enable extra features.
var OptionalCatalog = []Requirement{
	{
		Name:        "mkcert",
		Description: "A simple zero-config tool to make locally trusted development certificates.",
		Remediation: "Install mkcert to get HTTPS on custom domains: https://github.com/FiloSottile/mkcert",
	},
}

// LookPathFunc resolves a binary name to a path.
type LookPathFunc func(name string) (string, error)

// Checker probes the requirement catalogs.
type Checker interface {
	// CheckMandatory returns one Status per mandatory binary, in catalog order.
	CheckMandatory() []Status

	// CheckOptional returns one Status per optional binary, in catalog order.
	CheckOptional() []Status

	// Report runs both checks.
	Report() Report
}

// DefaultChecker probes PATH through a LookPathFunc.
type DefaultChecker struct {
	lookPath  LookPathFunc
	mandatory []Requirement
	optional  []Requirement
}

// NewChecker creates a DefaultChecker. A nil lookPath uses exec.LookPath.
func NewChecker(lookPath LookPathFunc) *DefaultChecker {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	return &DefaultChecker{
		lookPath:  lookPath,
		mandatory: MandatoryCatalog,
		optional:  OptionalCatalog,
	}
}

// CheckMandatory implements Checker.
func (c *DefaultChecker) CheckMandatory() []Status {
	return c.check(c.mandatory)
}

// CheckOptional implements Checker.
func (c *DefaultChecker) CheckOptional() []Status {
	return c.check(c.optional)
}

// Report implements Checker.
func (c *DefaultChecker) Report() Report {
	return Report{
		Mandatory: c.CheckMandatory(),
		Optional:  c.CheckOptional(),
	}
}

// check probes every requirement concurrently. Results keep catalog order
// and a lookup error only ever means "not found".
func (c *DefaultChecker) check(catalog []Requirement) []Status {
	statuses := make([]Status, len(catalog))

	var g errgroup.Group
	g.SetLimit(4)
	for i, req := range catalog {
		g.Go(func() error {
			status := Status{
				Name:        req.Name,
				Description: req.Description,
				Remediation: req.Remediation,
			}
			if path, err := c.lookPath(req.Name); err == nil && path != "" {
				status.Found = true
				status.Path = path
			}
			statuses[i] = status
			return nil
		})
	}
	_ = g.Wait()

	return statuses
}

// =============================================================================
// Report
// =============================================================================

// Report aggregates both catalogs.
type Report struct {
	Mandatory []Status `json:"mandatory"`
	Optional  []Status `json:"optional"`
}

// Missing returns the mandatory binaries that were not found.
func (r Report) Missing() []string {
	var missing []string
	for _, s := range r.Mandatory {
		if !s.Found {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

// Gate returns *MissingRequirementsError when a mandatory binary is absent.
func (r Report) Gate() error {
	if missing := r.Missing(); len(missing) > 0 {
		return &environment.MissingRequirementsError{Missing: missing}
	}
	return nil
}

// OptionalFound reports whether the named optional binary was found.
func (r Report) OptionalFound(name string) bool {
	for _, s := range r.Optional {
		if s.Name == name {
			return s.Found
		}
	}
	return false
}

// String renders the report as plain text.
func (r Report) String() string {
	var b strings.Builder
	writeSection(&b, "Mandatory", r.Mandatory)
	writeSection(&b, "Optional", r.Optional)
	return b.String()
}

func writeSection(b *strings.Builder, title string, statuses []Status) {
	fmt.Fprintf(b, "[%s]\n", title)
	for _, s := range statuses {
		mark := "✗"
		if s.Found {
			mark = "✓"
		}
		fmt.Fprintf(b, "  %s %-15s %s\n", mark, s.Name, s.Description)
		if !s.Found && s.Remediation != "" {
			fmt.Fprintf(b, "      → %s\n", s.Remediation)
		}
	}
}

var _ Checker = (*DefaultChecker)(nil)
