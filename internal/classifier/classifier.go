// SPDX-License-Identifier: AGPL-3.0-or-later

// Package classifier assigns a repository type from the marker files in a working copy.
package classifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Type is one of the closed set of repository types.
type Type string

const (
	RustService    Type = "rust-service"
	MCPIntegration Type = "mcp-integration"
	TypeScriptDocs Type = "typescript-docs"
	PythonML       Type = "python-ml"
	IaCK8s         Type = "iac-k8s"
	Docs           Type = "docs"
	Library        Type = "library"
)

// Fallback is returned when no rule matches.
const Fallback = Library

// AllTypes lists every repository type in a stable order.
func AllTypes() []Type {
	return []Type{RustService, MCPIntegration, TypeScriptDocs, PythonML, IaCK8s, Docs, Library}
}

// Valid reports whether t belongs to the closed set.
func (t Type) Valid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// PrimaryLanguage returns the language a repository of this type is written in.
func (t Type) PrimaryLanguage() string {
	switch t {
	case RustService:
		return "rust"
	case PythonML:
		return "python"
	case TypeScriptDocs, MCPIntegration:
		return "typescript"
	case IaCK8s:
		return "hcl"
	case Docs:
		return "markdown"
	default:
		return "unknown"
	}
}

// Snapshot is the read-only view of a working copy that rules inspect.
type Snapshot struct {
	Dir string

	pkg       *packageManifest
	pkgLoaded bool
}

// Name is the base name of the working-copy directory.
func (s *Snapshot) Name() string {
	return filepath.Base(filepath.Clean(s.Dir))
}

// HasFile reports whether rel exists and is a regular file.
func (s *Snapshot) HasFile(rel string) bool {
	info, err := os.Stat(filepath.Join(s.Dir, rel))
	return err == nil && !info.IsDir()
}

// HasDir reports whether rel exists and is a directory.
func (s *Snapshot) HasDir(rel string) bool {
	info, err := os.Stat(filepath.Join(s.Dir, rel))
	return err == nil && info.IsDir()
}

type packageManifest struct {
	Dependencies    map[string]any `json:"dependencies"`
	DevDependencies map[string]any `json:"devDependencies"`
}

// PackageDependsOn reports whether package.json lists any of names in its
// dependencies or devDependencies. An unreadable manifest has no dependencies.
func (s *Snapshot) PackageDependsOn(names ...string) bool {
	if !s.pkgLoaded {
		s.pkgLoaded = true
		data, err := os.ReadFile(filepath.Join(s.Dir, "package.json"))
		if err == nil {
			var m packageManifest
			if json.Unmarshal(data, &m) == nil {
				s.pkg = &m
			}
		}
	}
	if s.pkg == nil {
		return false
	}
	for _, n := range names {
		if _, ok := s.pkg.Dependencies[n]; ok {
			return true
		}
		if _, ok := s.pkg.DevDependencies[n]; ok {
			return true
		}
	}
	return false
}

// Rule maps a predicate over a snapshot to a repository type.
type Rule struct {
	Name  string
	Type  Type
	Match func(s *Snapshot) bool
}

// Classification is the outcome of Classify.
type Classification struct {
	Type Type   `json:"type"`
	Rule string `json:"rule"`
}

// Classifier evaluates rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// New returns a classifier over the given ordered rules.
func New(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// NewDefault returns a classifier using DefaultRules with the given ML name prefixes.
func NewDefault(mlPrefixes []string) *Classifier {
	return New(DefaultRules(mlPrefixes))
}

// Rules returns the rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify returns the type of the working copy at dir. It never fails:
// when nothing matches, the fallback type is returned.
func (c *Classifier) Classify(dir string) Classification {
	snap := &Snapshot{Dir: dir}
	for _, r := range c.rules {
		if r.Match(snap) {
			return Classification{Type: r.Type, Rule: r.Name}
		}
	}
	return Classification{Type: Fallback, Rule: "fallback"}
}

// DefaultRules is the documented priority order. A repository matching several
// rules gets the type of the earliest one.
func DefaultRules(mlPrefixes []string) []Rule {
	pythonManifest := func(s *Snapshot) bool {
		return s.HasFile("pyproject.toml") || s.HasFile("setup.py")
	}
	return []Rule{
		{Name: "cargo-manifest", Type: RustService, Match: func(s *Snapshot) bool {
			return s.HasFile("Cargo.toml")
		}},
		{Name: "package-mcp-sdk", Type: MCPIntegration, Match: func(s *Snapshot) bool {
			return s.HasFile("package.json") && s.PackageDependsOn("@modelcontextprotocol/sdk")
		}},
		{Name: "package-docs-site", Type: TypeScriptDocs, Match: func(s *Snapshot) bool {
			return s.HasFile("package.json") && s.PackageDependsOn("vitepress", "docusaurus")
		}},
		{Name: "package-manifest", Type: Library, Match: func(s *Snapshot) bool {
			return s.HasFile("package.json")
		}},
		{Name: "python-ml-prefix", Type: PythonML, Match: func(s *Snapshot) bool {
			return pythonManifest(s) && hasAnyPrefix(s.Name(), mlPrefixes)
		}},
		{Name: "python-manifest", Type: Library, Match: pythonManifest},
		{Name: "infrastructure-dirs", Type: IaCK8s, Match: func(s *Snapshot) bool {
			return s.HasDir("terraform") || s.HasDir("k8s")
		}},
		{Name: "mkdocs", Type: Docs, Match: func(s *Snapshot) bool {
			return s.HasFile("mkdocs.yml")
		}},
	}
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
