// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the cfgsync run configuration (cfgsync.yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when --config is not given.
const DefaultFile = "cfgsync.yaml"

// Config is the full run configuration.
type Config struct {
	Org          string     `yaml:"org"`
	WorkspaceDir string     `yaml:"workspace_dir" validate:"required"`
	ConfigPath   string     `yaml:"config_path" validate:"required"`
	Workers      int        `yaml:"workers" validate:"min=1,max=64"`
	Include      []string   `yaml:"include"`
	Exclude      []string   `yaml:"exclude"`
	StateDir     string     `yaml:"state_dir" validate:"required"`
	Templates    Templates  `yaml:"templates"`
	Compliance   Compliance `yaml:"compliance"`
	Sync         Sync       `yaml:"sync"`
	GitHub       GitHub     `yaml:"github"`
	History      History    `yaml:"history"`
	Log          Log        `yaml:"log"`
}

// Templates locates the template store.
type Templates struct {
	Store      string            `yaml:"store" validate:"required"`
	Base       string            `yaml:"base" validate:"required"`
	Types      map[string]string `yaml:"types"`
	MLPrefixes []string          `yaml:"ml_prefixes"`
}

// Compliance tunes the compliance checks.
type Compliance struct {
	RequiredServer       RequiredServer `yaml:"required_server"`
	RecommendedDirs      []string       `yaml:"recommended_dirs"`
	MinRecommendedDirs   int            `yaml:"min_recommended_dirs" validate:"min=0"`
	GitignorePatterns    []string       `yaml:"gitignore_patterns"`
	SecretFiles          []string       `yaml:"secret_files"`
	SecretAllowFiles     []string       `yaml:"secret_allow_files"`
	SecretIgnorePatterns []string       `yaml:"secret_ignore_patterns"`
}

// RequiredServer is the MCP server every repository must have configured.
// An empty Name disables the required-integration check.
type RequiredServer struct {
	Name       string         `yaml:"name"`
	Definition map[string]any `yaml:"definition"`
}

// Sync configures branch, commit and pull request content.
type Sync struct {
	BranchPrefix  string `yaml:"branch_prefix" validate:"required,printascii"`
	CommitMessage string `yaml:"commit_message" validate:"required"`
	PRTitle       string `yaml:"pr_title" validate:"required"`
	PRBody        string `yaml:"pr_body"`
	AuthorName    string `yaml:"author_name" validate:"required"`
	AuthorEmail   string `yaml:"author_email" validate:"required,email"`
}

// GitHub configures the hosting API.
type GitHub struct {
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	TokenEnv string `yaml:"token_env"`
}

// History configures the run history database.
type History struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WorkspaceDir: ".cfgsync/workspace",
		ConfigPath:   ".claude/project.json",
		Workers:      4,
		Exclude:      []string{"workspace"},
		StateDir:     ".cfgsync/run",
		Templates: Templates{
			Base:       "base-project.json",
			MLPrefixes: []string{"dgx-"},
		},
		Compliance: Compliance{
			RequiredServer: RequiredServer{
				Name: "github",
				Definition: map[string]any{
					"command": "npx",
					"args":    []any{"-y", "@modelcontextprotocol/server-github"},
					"env":     map[string]any{"GITHUB_TOKEN": "${GITHUB_TOKEN}"},
				},
			},
			RecommendedDirs:      []string{"docs", "scripts", "tests", "examples", ".github"},
			MinRecommendedDirs:   3,
			GitignorePatterns:    []string{".env", ".claude/settings.local.json"},
			SecretFiles:          []string{".env", ".env.*", "*.pem", "*.key", "**/credentials.json", "**/id_rsa"},
			SecretAllowFiles:     []string{".env.example", ".env.sample", ".env.template", ".env.dist"},
			SecretIgnorePatterns: []string{".env", "*.pem", "*.key"},
		},
		Sync: Sync{
			BranchPrefix:  "cfgsync/project-config",
			CommitMessage: "chore: sync project configuration with organization templates",
			PRTitle:       "chore: sync project configuration",
			PRBody:        DefaultPRBody,
			AuthorName:    "cfgsync",
			AuthorEmail:   "cfgsync@users.noreply.github.com",
		},
		GitHub: GitHub{TokenEnv: "GITHUB_TOKEN"},
		History: History{
			Enabled: true,
			Path:    ".cfgsync/history.db",
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

// DefaultPRBody is the standard pull request body.
const DefaultPRBody = `This pull request brings the repository's project configuration in line with the organization templates.

Changes:
{{changes}}

Generated by cfgsync. Review the diff and merge when ready.`

// Load reads path over the defaults. An empty path loads DefaultFile when
// present, or the defaults alone. Callers apply flag overrides and then Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Token returns the hosting API token from the configured variable,
// falling back to GITHUB_TOKEN and GH_TOKEN.
func (c *Config) Token() string {
	for _, name := range []string{c.GitHub.TokenEnv, "GITHUB_TOKEN", "GH_TOKEN"} {
		if name == "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
