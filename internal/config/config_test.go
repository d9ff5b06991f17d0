// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfgsync.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	p := writeConfig(t, `
org: raibid-labs
workers: 8
templates:
  store: https://raw.example.com/workspace/main
  types:
    docs: templates/docs-site.json
compliance:
  required_server:
    name: linear
sync:
  branch_prefix: chore/config
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "raibid-labs", cfg.Org)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "https://raw.example.com/workspace/main", cfg.Templates.Store)
	assert.Equal(t, "base-project.json", cfg.Templates.Base)
	assert.Equal(t, "templates/docs-site.json", cfg.Templates.Types["docs"])
	assert.Equal(t, "linear", cfg.Compliance.RequiredServer.Name)
	assert.Equal(t, "chore/config", cfg.Sync.BranchPrefix)
	assert.Equal(t, ".claude/project.json", cfg.ConfigPath)
	assert.Equal(t, []string{"workspace"}, cfg.Exclude)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "workers: [oops"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) { c.Templates.Store = "/srv/templates" },
		},
		{
			name:    "missing store",
			mutate:  func(c *Config) {},
			wantErr: "Templates.Store",
		},
		{
			name: "zero workers",
			mutate: func(c *Config) {
				c.Templates.Store = "/srv/templates"
				c.Workers = 0
			},
			wantErr: "Workers",
		},
		{
			name: "bad log format",
			mutate: func(c *Config) {
				c.Templates.Store = "/srv/templates"
				c.Log.Format = "xml"
			},
			wantErr: "Log.Format",
		},
		{
			name: "history without path",
			mutate: func(c *Config) {
				c.Templates.Store = "/srv/templates"
				c.History.Path = ""
			},
			wantErr: "History.Path",
		},
		{
			name: "bad author email",
			mutate: func(c *Config) {
				c.Templates.Store = "/srv/templates"
				c.Sync.AuthorEmail = "not-an-email"
			},
			wantErr: "Sync.AuthorEmail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "from-gh")
	t.Setenv("CFGSYNC_TOKEN", "")

	cfg := Default()
	cfg.GitHub.TokenEnv = "CFGSYNC_TOKEN"
	assert.Equal(t, "from-gh", cfg.Token())

	t.Setenv("CFGSYNC_TOKEN", "mine")
	assert.Equal(t, "mine", cfg.Token())
}
