package scanner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterFiles(t *testing.T) {
	tests := []struct {
		name     string
		paths    []string
		opts     FilterOptions
		expected []string
	}{
		{
			name:  "exclude node_modules",
			paths: []string{"a.pem", "node_modules/bad.pem", "pkg/good.pem"},
			opts: FilterOptions{
				ExcludeDirs: []string{"node_modules"},
			},
			expected: []string{"a.pem", "pkg/good.pem"},
		},
		{
			name:  "segment matching only",
			paths: []string{"vendor_stuff/a", "myvendor/b", "pkg/vendor/c"},
			opts: FilterOptions{
				ExcludeDirs: []string{"vendor"},
			},
			expected: []string{"myvendor/b", "vendor_stuff/a"},
		},
		{
			name:  "base name patterns match at any depth",
			paths: []string{".env", "svc/.env.local", "environment.md", "certs/server.pem"},
			opts: FilterOptions{
				Patterns: []string{".env", ".env.*", "*.pem"},
			},
			expected: []string{".env", "certs/server.pem", "svc/.env.local"},
		},
		{
			name:  "slash patterns match full path",
			paths: []string{"credentials.json", "config/credentials.json", "config/other.json"},
			opts: FilterOptions{
				Patterns: []string{"**/credentials.json"},
			},
			expected: []string{"config/credentials.json", "credentials.json"},
		},
		{
			name:  "excludes and patterns",
			paths: []string{"vendor/a.key", "b.key", "c.js"},
			opts: FilterOptions{
				ExcludeDirs: []string{"vendor"},
				Patterns:    []string{"*.key"},
			},
			expected: []string{"b.key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterFiles(tt.paths, tt.opts)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestScanner(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test User")

	createFile(t, dir, "main.go")
	createFile(t, dir, "vendor/foo.pem")
	createFile(t, dir, ".gitignore", "ignored.key\n")
	createFile(t, dir, "ignored.key")
	createFile(t, dir, "deploy/server.key")

	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "Initial commit")

	s := New(dir)
	assert.True(t, s.IsWorkingCopy(ctx))

	tracked, err := s.TrackedFiles(ctx)
	require.NoError(t, err)
	assert.Contains(t, tracked, "main.go")
	assert.Contains(t, tracked, "vendor/foo.pem")
	assert.NotContains(t, tracked, "ignored.key") // respected .gitignore

	secrets, err := s.TrackedMatching(ctx, []string{"*.pem", "*.key"})
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy/server.key"}, secrets)

	none, err := s.TrackedMatching(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestScanner_NotAWorkingCopy(t *testing.T) {
	s := New(t.TempDir())
	assert.False(t, s.IsWorkingCopy(context.Background()))

	_, err := s.TrackedFiles(context.Background())
	assert.Error(t, err)
}

func runGit(t *testing.T, dir string, args ...string) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\nOutput: %s", args, err, out)
	}
}

func createFile(t *testing.T, dir, path string, content ...string) {
	fullPath := filepath.Join(dir, path)
	err := os.MkdirAll(filepath.Dir(fullPath), 0755)
	require.NoError(t, err)

	data := ""
	if len(content) > 0 {
		data = content[0]
	}
	err = os.WriteFile(fullPath, []byte(data), 0644)
	require.NoError(t, err)
}
