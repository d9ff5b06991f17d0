// SPDX-License-Identifier: AGPL-3.0-or-later

package compliance

import (
	"context"
	"strings"

	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/logging"
	"github.com/raibid-labs/cfgsync/internal/scanner"
)

// SecretsHygiene flags tracked sensitive files and missing ignore patterns.
type SecretsHygiene struct {
	files    []string
	allow    []string
	patterns []string
}

// NewSecretsHygiene takes doublestar globs for sensitive files, globs for
// committed templates such as .env.example that match them but hold no
// secrets, and the .gitignore entries expected to keep secrets out of git.
func NewSecretsHygiene(files, allow, patterns []string) Check {
	return &SecretsHygiene{files: files, allow: allow, patterns: patterns}
}

func (c *SecretsHygiene) ID() string { return IDSecretsHygiene }

func (c *SecretsHygiene) Run(ctx context.Context, t *Target) []finding.Finding {
	var out []finding.Finding
	if t.Scanner.IsWorkingCopy(ctx) {
		tracked, err := t.Scanner.TrackedMatching(ctx, c.files)
		if err != nil {
			logging.Component(ctx, "compliance").Debug().Err(err).Msg("listing tracked files")
		}
		for _, f := range tracked {
			if len(c.allow) > 0 && scanner.MatchAny(f, c.allow) {
				continue
			}
			out = append(out, finding.Errorf(c.ID(), "sensitive file %s is tracked by git", f))
		}
	}

	lines, _ := readGitignore(t.Dir)
	if missing := missingPatterns(lines, c.patterns); len(missing) > 0 {
		out = append(out, finding.Warnf(c.ID(), ".gitignore lacks secret patterns: %s", strings.Join(missing, ", ")))
	}
	return out
}
