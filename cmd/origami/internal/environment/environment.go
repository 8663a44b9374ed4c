// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package environment

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/mod/semver"
)

// Layout of the configuration tree rendered inside an environment location.
const (
	// InstallDir is the configuration directory, relative to the location.
	InstallDir = "var/docker"

	// DotEnvFile holds the variables read by the compose file.
	DotEnvFile = ".env"

	// ComposeFile is the compose definition rendered from the template.
	ComposeFile = "docker-compose.yml"

	// CertificatesDir receives the TLS material, relative to InstallDir.
	CertificatesDir = "nginx/certs"

	// PHPImageKey selects the tag of the PHP runtime image.
	PHPImageKey = "DOCKER_PHP_IMAGE"
)

// Type is the closed set of environment presets.
type Type string

// Supported environment types.
const (
	TypeSymfony     Type = "symfony"
	TypeDrupal      Type = "drupal"
	TypeMagento2    Type = "magento2"
	TypeOroCommerce Type = "orocommerce"
	TypeSylius      Type = "sylius"

	// TypeCustom is registered but never templated or updated.
	TypeCustom Type = "custom"
)

var presetTypes = []Type{TypeDrupal, TypeMagento2, TypeOroCommerce, TypeSylius, TypeSymfony}

// PresetTypes returns the types backed by a configuration template.
func PresetTypes() []Type {
	out := make([]Type, len(presetTypes))
	copy(out, presetTypes)
	return out
}

// Types returns every known type, presets first.
func Types() []Type {
	return append(PresetTypes(), TypeCustom)
}

// ParseType converts user input into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &UnsupportedTypeError{Type: s}
	}
	return t, nil
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	if t == TypeCustom {
		return true
	}
	for _, p := range presetTypes {
		if p == t {
			return true
		}
	}
	return false
}

// IsCustom reports whether t has no template.
func (t Type) IsCustom() bool {
	return t == TypeCustom
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

// Environment is a registered development environment.
//
// # Invariants
//
//   - Name is unique within the registry.
//   - At most one registered Environment has Active set.
//   - ID, Name, Location and Type never change after registration.
type Environment struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name" validate:"required,envname"`
	Location   string    `json:"location" validate:"required,abspath"`
	Type       Type      `json:"type" validate:"required,envtype"`
	PHPVersion string    `json:"php_version,omitempty" validate:"omitempty,phpversion"`
	Domains    []string  `json:"domains,omitempty" validate:"omitempty,dive,certdomain"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`

	// Removing is set while an uninstall is in progress. Such an
	// environment cannot be activated.
	Removing bool `json:"removing,omitempty"`
}

// New builds and validates an inactive Environment.
//
// # Inputs
//
//   - name: Identifier, letters, digits, dot, dash and underscore.
//   - location: Absolute path of the project.
//   - typ: One of Types().
//   - phpVersion: Optional image tag such as "8.2" or "latest".
//   - domains: Optional hostnames used for certificate issuance.
//
// # Outputs
//
//   - *Environment: A fresh entity with a random ID.
//   - error: An InvalidEnvironmentError describing the first invalid field.
func New(name, location string, typ Type, phpVersion string, domains []string) (*Environment, error) {
	env := &Environment{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(name),
		Location:   filepath.Clean(location),
		Type:       typ,
		PHPVersion: strings.TrimSpace(phpVersion),
		Domains:    normalizeDomains(domains),
		CreatedAt:  time.Now().UTC(),
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Validate checks the entity fields.
func (e *Environment) Validate() error {
	err := validate.Struct(e)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewInvalidEnvironmentError("Invalid environment: %v", err)
	}
	fe := verrs[0]
	switch fe.StructField() {
	case "Name":
		return NewInvalidEnvironmentError("The environment name %q is invalid.", e.Name)
	case "Location":
		return NewInvalidEnvironmentError("The location %q must be an absolute path.", e.Location)
	case "Type":
		return &UnsupportedTypeError{Type: string(e.Type)}
	case "PHPVersion":
		return NewInvalidEnvironmentError("The PHP version %q is invalid.", e.PHPVersion)
	default:
		return NewInvalidEnvironmentError("The domain %q is invalid.", fe.Value())
	}
}

// Activate marks the environment as running.
func (e *Environment) Activate() { e.Active = true }

// Deactivate marks the environment as stopped.
func (e *Environment) Deactivate() { e.Active = false }

// ProjectName is the compose project name, "{type}_{name}".
func (e *Environment) ProjectName() string {
	return fmt.Sprintf("%s_%s", e.Type, e.Name)
}

// ConfigurationPath is the directory holding the rendered configuration tree.
func (e *Environment) ConfigurationPath() string {
	return filepath.Join(e.Location, InstallDir)
}

// DotEnvPath is the path of the environment's .env file.
func (e *Environment) DotEnvPath() string {
	return filepath.Join(e.ConfigurationPath(), DotEnvFile)
}

// ComposeFilePath is the path of the environment's compose definition.
func (e *Environment) ComposeFilePath() string {
	return filepath.Join(e.ConfigurationPath(), ComposeFile)
}

// CertificatesPath is the directory receiving issued certificates.
func (e *Environment) CertificatesPath() string {
	return filepath.Join(e.ConfigurationPath(), CertificatesDir)
}

// Contains reports whether dir is the location or one of its descendants.
func (e *Environment) Contains(dir string) bool {
	rel, err := filepath.Rel(e.Location, filepath.Clean(dir))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Clone returns a deep copy.
func (e *Environment) Clone() *Environment {
	c := *e
	if e.Domains != nil {
		c.Domains = append([]string(nil), e.Domains...)
	}
	return &c
}

// normalizeDomains trims, lowercases and de-duplicates while keeping order.
func normalizeDomains(domains []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		for _, f := range strings.Fields(d) {
			f = strings.ToLower(f)
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// =============================================================================
// Validation
// =============================================================================

var (
	validate      *validator.Validate
	namePattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	latestVersion = "latest"
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("envname", validateName)
	_ = validate.RegisterValidation("abspath", validateAbsPath)
	_ = validate.RegisterValidation("envtype", validateType)
	_ = validate.RegisterValidation("phpversion", validatePHPVersion)
	_ = validate.RegisterValidation("certdomain", validateCertDomain)
}

func validateName(fl validator.FieldLevel) bool {
	return namePattern.MatchString(fl.Field().String())
}

func validateAbsPath(fl validator.FieldLevel) bool {
	return filepath.IsAbs(fl.Field().String())
}

func validateType(fl validator.FieldLevel) bool {
	return Type(fl.Field().String()).Valid()
}

// validatePHPVersion accepts "latest" or a MAJOR[.MINOR[.PATCH]] version.
func validatePHPVersion(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == latestVersion {
		return true
	}
	return semver.IsValid("v" + strings.TrimPrefix(v, "v"))
}

// validateCertDomain accepts RFC 1123 hostnames and one leading wildcard label.
func validateCertDomain(fl validator.FieldLevel) bool {
	host := strings.TrimPrefix(fl.Field().String(), "*.")
	return validate.Var(host, "hostname_rfc1123") == nil
}
