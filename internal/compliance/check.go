// SPDX-License-Identifier: AGPL-3.0-or-later

// Package compliance compares a repository's on-disk state with its effective
// configuration and organization conventions.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/raibid-labs/cfgsync/internal/classifier"
	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/resolver"
	"github.com/raibid-labs/cfgsync/internal/scanner"
	"github.com/raibid-labs/cfgsync/pkg/projectconfig"
)

// Check IDs.
const (
	IDConfigPresence       = "config-presence"
	IDJSONValidity         = "json-validity"
	IDExtends              = "extends"
	IDRequiredFields       = "required-fields"
	IDRequiredIntegration  = "required-integration"
	IDDirectoryConventions = "directory-conventions"
	IDVCSHygiene           = "vcs-hygiene"
	IDSecretsHygiene       = "secrets-hygiene"
)

// Check is one independent, side-effect-free compliance rule.
type Check interface {
	// ID returns the check identifier reported on each finding.
	ID() string

	// Run inspects the target. It must not modify it.
	Run(ctx context.Context, t *Target) []finding.Finding
}

// TemplateIndex answers questions about template references.
type TemplateIndex interface {
	Known(ref string) (string, bool)
	InStore(ref string) bool
	TypeRef(t classifier.Type) string
}

// Target is everything a check may look at for one repository.
type Target struct {
	Name       string
	Dir        string
	Type       classifier.Type
	ConfigPath string // relative to Dir

	// Raw is nil when the configuration document is absent.
	Raw      []byte
	Doc      *projectconfig.Document
	ParseErr error

	Effective *resolver.Effective
	Templates TemplateIndex
	Scanner   *scanner.Scanner
}

// LoadTarget reads the configuration document of the working copy at dir.
// A missing document is not an error.
func LoadTarget(name, dir string, t classifier.Type, configPath string) (*Target, error) {
	tgt := &Target{
		Name:       name,
		Dir:        dir,
		Type:       t,
		ConfigPath: configPath,
		Scanner:    scanner.New(dir),
	}
	raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(configPath)))
	switch {
	case err == nil:
		tgt.Raw = raw
		tgt.Doc, tgt.ParseErr = projectconfig.Parse(raw)
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}
	return tgt, nil
}
