// Package fixture builds on-disk template stores and git working copies for tests.
package fixture

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/raibid-labs/cfgsync/internal/classifier"
)

// RequiredServer is the mandatory MCP server declared by the fixture base template.
const RequiredServer = "github"

// BaseTemplate is the body of the fixture base template.
const BaseTemplate = `{
  "$schema": "https://claude.ai/schemas/project-config.json",
  "version": "1.0.0",
  "rules": {"style": "org", "review": "required"},
  "mcpServers": {"github": {"command": "github-mcp"}}
}
`

// TemplateStore writes a store with a base template and one template per
// repository type, each extending the base, and returns its root directory.
func TemplateStore(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "store")
	WriteFile(t, root, "base-project.json", BaseTemplate)
	for _, typ := range classifier.AllTypes() {
		WriteFile(t, root, filepath.Join("templates", string(typ)+".json"), fmt.Sprintf(`{
  "extends": "../base-project.json",
  "type": %q,
  "rules": {"lint": %q}
}
`, typ, typ))
	}
	return root
}

// WriteFile creates dir/rel with content, making parent directories.
func WriteFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}

// Git runs git in dir and fails the test on error.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test User", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=Test User", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\nOutput: %s", args, err, out)
	}
	return string(out)
}

// HygienicRepo creates a committed git working copy named name that passes the
// directory, VCS and secrets checks, plus any extra files.
func HygienicRepo(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	Git(t, dir, "init", "--quiet", "--initial-branch=main")

	WriteFile(t, dir, "README.md", "# "+name+"\n")
	WriteFile(t, dir, ".gitignore", ".env\n.env.*\n*.pem\n*.key\n.claude/settings.local.json\n")
	for _, d := range []string{"docs", "scripts", "tests"} {
		WriteFile(t, dir, filepath.Join(d, ".keep"), "")
	}
	for rel, content := range files {
		WriteFile(t, dir, rel, content)
	}

	Git(t, dir, "add", "-A")
	Git(t, dir, "commit", "--quiet", "-m", "initial")
	return dir
}

// Remote creates a bare repository seeded from HygienicRepo(name, files) and
// returns its path, usable as a clone URL.
func Remote(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	src := HygienicRepo(t, name, files)
	bare := filepath.Join(t.TempDir(), name+".git")
	Git(t, filepath.Dir(bare), "init", "--quiet", "--bare", "--initial-branch=main", bare)
	Git(t, src, "remote", "add", "origin", bare)
	Git(t, src, "push", "--quiet", "origin", "main")
	return bare
}
