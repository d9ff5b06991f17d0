// SPDX-License-Identifier: AGPL-3.0-or-later

package compliance

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/config"
)

// Registry returns the checks in reporting order.
func Registry(cfg config.Compliance) []Check {
	return []Check{
		NewConfigPresence(),
		NewJSONValidity(),
		NewExtends(),
		NewRequiredFields(),
		NewRequiredIntegration(cfg.RequiredServer.Name),
		NewDirectoryConventions(cfg.RecommendedDirs, cfg.MinRecommendedDirs),
		NewVCSHygiene(cfg.GitignorePatterns),
		NewSecretsHygiene(cfg.SecretFiles, cfg.SecretAllowFiles, cfg.SecretIgnorePatterns),
	}
}

// addressable lists the checks whose errors a sync can fix.
var addressable = map[string]bool{
	IDConfigPresence:      true,
	IDExtends:             true,
	IDRequiredIntegration: true,
}

// Addressable reports whether the report carries an error a sync can fix.
// A document that is not valid JSON is never rewritten.
func Addressable(r *finding.Report) bool {
	if r.Has(finding.Error, IDJSONValidity) {
		return false
	}
	for _, f := range r.Findings {
		if f.Severity == finding.Error && addressable[f.Check] {
			return true
		}
	}
	return false
}

// Validator runs a set of checks.
type Validator struct {
	checks []Check
}

// NewValidator returns a validator over checks.
func NewValidator(checks []Check) *Validator {
	return &Validator{checks: checks}
}

// Checks returns the registered checks.
func (v *Validator) Checks() []Check { return v.checks }

// Validate runs every check concurrently and builds a report whose findings
// start with prior (resolution findings) followed by each check's findings in
// registry order.
func (v *Validator) Validate(ctx context.Context, t *Target, prior []finding.Finding) *finding.Report {
	results := make([][]finding.Finding, len(v.checks))

	var g errgroup.Group
	for i, c := range v.checks {
		g.Go(func() error {
			results[i] = c.Run(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return finding.NewReport(append([][]finding.Finding{prior}, results...)...)
}
