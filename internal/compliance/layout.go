// SPDX-License-Identifier: AGPL-3.0-or-later

package compliance

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
)

// DirectoryConventions warns when few recommended top-level directories exist.
type DirectoryConventions struct {
	dirs []string
	min  int
}

func NewDirectoryConventions(dirs []string, minimum int) Check {
	return &DirectoryConventions{dirs: dirs, min: minimum}
}

func (c *DirectoryConventions) ID() string { return IDDirectoryConventions }

func (c *DirectoryConventions) Run(_ context.Context, t *Target) []finding.Finding {
	if len(c.dirs) == 0 {
		return nil
	}
	var present, missing []string
	for _, d := range c.dirs {
		if info, err := os.Stat(filepath.Join(t.Dir, d)); err == nil && info.IsDir() {
			present = append(present, d)
		} else {
			missing = append(missing, d)
		}
	}
	need := c.min
	if need > len(c.dirs) {
		need = len(c.dirs)
	}
	if len(present) >= need {
		return nil
	}
	return []finding.Finding{finding.Warnf(c.ID(), "%d of %d recommended directories present (missing: %s)",
		len(present), need, strings.Join(missing, ", "))}
}

// VCSHygiene checks the working copy, .gitignore and README.
type VCSHygiene struct {
	patterns []string
}

func NewVCSHygiene(patterns []string) Check { return &VCSHygiene{patterns: patterns} }

func (c *VCSHygiene) ID() string { return IDVCSHygiene }

func (c *VCSHygiene) Run(ctx context.Context, t *Target) []finding.Finding {
	var out []finding.Finding
	if !t.Scanner.IsWorkingCopy(ctx) {
		out = append(out, finding.Errorf(c.ID(), "%s is not a git working copy", t.Dir))
	}

	lines, ok := readGitignore(t.Dir)
	if !ok {
		out = append(out, finding.Warnf(c.ID(), ".gitignore is missing"))
	} else if missing := missingPatterns(lines, c.patterns); len(missing) > 0 {
		out = append(out, finding.Warnf(c.ID(), ".gitignore lacks expected patterns: %s", strings.Join(missing, ", ")))
	}

	if !hasReadme(t.Dir) {
		out = append(out, finding.Warnf(c.ID(), "README is missing"))
	}
	return out
}

func hasReadme(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if !e.IsDir() && (name == "readme" || strings.HasPrefix(name, "readme.")) {
			return true
		}
	}
	return false
}

// readGitignore returns the non-comment entries of dir/.gitignore.
func readGitignore(dir string) ([]string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil, false
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, true
}

// missingPatterns returns the wanted entries no line covers. A line covers an
// entry when it is the same entry, matches it as a doublestar glob (base name
// only for a line without a slash, as git does), or names a parent directory. A leading slash and a trailing slash are not
// significant; negated lines cover nothing.
func missingPatterns(lines, want []string) []string {
	var missing []string
	for _, w := range want {
		if !covered(lines, normalizeIgnore(w)) {
			missing = append(missing, w)
		}
	}
	return missing
}

func covered(lines []string, want string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, "!") {
			continue
		}
		line := normalizeIgnore(l)
		if line == want || strings.HasPrefix(want, line+"/") {
			return true
		}
		target := want
		if !strings.Contains(line, "/") {
			target = path.Base(want)
		}
		if ok, err := doublestar.Match(line, target); err == nil && ok {
			return true
		}
	}
	return false
}

func normalizeIgnore(p string) string {
	return strings.TrimSuffix(strings.TrimPrefix(p, "/"), "/")
}
