// SPDX-License-Identifier: AGPL-3.0-or-later

package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		dirName  string
		files    map[string]string
		dirs     []string
		wantType Type
		wantRule string
	}{
		{
			name:     "cargo manifest",
			files:    map[string]string{"Cargo.toml": "[package]"},
			wantType: RustService,
			wantRule: "cargo-manifest",
		},
		{
			name:     "mcp sdk dependency",
			files:    map[string]string{"package.json": `{"dependencies": {"@modelcontextprotocol/sdk": "^1.0.0"}}`},
			wantType: MCPIntegration,
			wantRule: "package-mcp-sdk",
		},
		{
			name:     "docs site dev dependency",
			files:    map[string]string{"package.json": `{"devDependencies": {"vitepress": "1.0.0"}}`},
			wantType: TypeScriptDocs,
			wantRule: "package-docs-site",
		},
		{
			name:     "plain package manifest",
			files:    map[string]string{"package.json": `{"dependencies": {"left-pad": "1.0.0"}}`},
			wantType: Library,
			wantRule: "package-manifest",
		},
		{
			name:     "unparseable package manifest",
			files:    map[string]string{"package.json": `{not json`},
			wantType: Library,
			wantRule: "package-manifest",
		},
		{
			name:     "python with ml prefix",
			dirName:  "dgx-trainer",
			files:    map[string]string{"pyproject.toml": "[project]"},
			wantType: PythonML,
			wantRule: "python-ml-prefix",
		},
		{
			name:     "python without ml prefix",
			dirName:  "tools",
			files:    map[string]string{"setup.py": ""},
			wantType: Library,
			wantRule: "python-manifest",
		},
		{
			name:     "terraform dir",
			dirs:     []string{"terraform"},
			wantType: IaCK8s,
			wantRule: "infrastructure-dirs",
		},
		{
			name:     "k8s dir",
			dirs:     []string{"k8s"},
			wantType: IaCK8s,
			wantRule: "infrastructure-dirs",
		},
		{
			name:     "terraform as file is not a dir",
			files:    map[string]string{"terraform": ""},
			wantType: Library,
			wantRule: "fallback",
		},
		{
			name:     "mkdocs",
			files:    map[string]string{"mkdocs.yml": "site_name: x"},
			wantType: Docs,
			wantRule: "mkdocs",
		},
		{
			name:     "nothing matches",
			files:    map[string]string{"README.md": "# hi"},
			wantType: Library,
			wantRule: "fallback",
		},
	}

	c := NewDefault([]string{"dgx-"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := makeRepo(t, tt.dirName, tt.files, tt.dirs)
			got := c.Classify(dir)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantRule, got.Rule)
		})
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	c := NewDefault([]string{"dgx-"})

	// Cargo.toml outranks an MCP package manifest and infrastructure dirs.
	dir := makeRepo(t, "", map[string]string{
		"Cargo.toml":   "",
		"package.json": `{"dependencies": {"@modelcontextprotocol/sdk": "1"}}`,
		"mkdocs.yml":   "",
	}, []string{"k8s"})
	assert.Equal(t, RustService, c.Classify(dir).Type)

	// Any package.json stops evaluation before python and infrastructure rules.
	dir = makeRepo(t, "dgx-thing", map[string]string{
		"package.json":   `{}`,
		"pyproject.toml": "",
	}, []string{"terraform"})
	assert.Equal(t, Classification{Type: Library, Rule: "package-manifest"}, c.Classify(dir))

	// MCP wins over docs-site when both dependencies are present.
	dir = makeRepo(t, "", map[string]string{
		"package.json": `{"dependencies": {"docusaurus": "3", "@modelcontextprotocol/sdk": "1"}}`,
	}, nil)
	assert.Equal(t, MCPIntegration, c.Classify(dir).Type)
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewDefault([]string{"dgx-"})
	dir := makeRepo(t, "", map[string]string{"mkdocs.yml": ""}, []string{"terraform"})

	first := c.Classify(dir)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Classify(dir))
	}

	// Unrelated files do not change the outcome.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "deep"), 0o755))
	assert.Equal(t, first, c.Classify(dir))
}

func TestClassify_MissingDirectoryFallsBack(t *testing.T) {
	c := NewDefault(nil)
	got := c.Classify(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Equal(t, Classification{Type: Fallback, Rule: "fallback"}, got)
}

func TestTypeHelpers(t *testing.T) {
	assert.True(t, RustService.Valid())
	assert.False(t, Type("java-service").Valid())
	assert.Equal(t, "rust", RustService.PrimaryLanguage())
	assert.Equal(t, "unknown", Library.PrimaryLanguage())
	assert.Len(t, AllTypes(), 7)
}

func makeRepo(t *testing.T, name string, files map[string]string, dirs []string) string {
	t.Helper()
	if name == "" {
		name = "repo"
	}
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for rel, content := range files {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
	}
	return dir
}
