// SPDX-License-Identifier: AGPL-3.0-or-later

// Package templates fetches and caches the organization's configuration templates.
package templates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/raibid-labs/cfgsync/internal/classifier"
	"github.com/raibid-labs/cfgsync/pkg/projectconfig"
)

// ErrNotFound is returned when a reference does not resolve to a document.
var ErrNotFound = errors.New("template not found")

// BaseName identifies the base template in Known results.
const BaseName = "base"

// Template is one immutable document of the store.
type Template struct {
	Ref     string
	Extends string // absolute reference of the parent, "" when the chain ends here
	Body    *projectconfig.Document
}

// Options configures a Store.
type Options struct {
	// Root is the store location: an http(s) or file URL, or a directory path.
	Root string
	// Base is the base template reference, relative to Root unless absolute.
	Base string
	// Types overrides the per-type template references, relative to Root unless absolute.
	Types map[string]string
	// HTTPClient is used for http(s) references. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Store resolves references and caches fetched templates for the lifetime of a run.
type Store struct {
	root   string
	base   string
	types  map[classifier.Type]string
	client *http.Client

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	tpl *Template
	err error
}

// New builds a store. Type templates default to templates/<type>.json under Root.
func New(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, fmt.Errorf("template store root is required")
	}
	root, err := normalize(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("template store root: %w", err)
	}
	s := &Store{
		root:   strings.TrimSuffix(root, "/"),
		types:  make(map[classifier.Type]string),
		client: opts.HTTPClient,
		cache:  make(map[string]cached),
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}

	base := opts.Base
	if base == "" {
		base = "base-project.json"
	}
	s.base = s.Resolve(s.root+"/", base)

	for _, t := range classifier.AllTypes() {
		ref := "templates/" + string(t) + ".json"
		if override, ok := opts.Types[string(t)]; ok && override != "" {
			ref = override
		}
		s.types[t] = s.Resolve(s.root+"/", ref)
	}
	return s, nil
}

// Root returns the normalized store root.
func (s *Store) Root() string { return s.root }

// BaseRef returns the absolute reference of the base template.
func (s *Store) BaseRef() string { return s.base }

// TypeRef returns the absolute reference of the template for t.
func (s *Store) TypeRef(t classifier.Type) string {
	if ref, ok := s.types[t]; ok {
		return ref
	}
	return s.types[classifier.Fallback]
}

// Known maps a reference to the base or a type template name.
func (s *Store) Known(ref string) (string, bool) {
	norm, err := normalize(ref)
	if err != nil || !isAbsolute(ref) {
		return "", false
	}
	if norm == s.base {
		return BaseName, true
	}
	for _, t := range classifier.AllTypes() {
		if s.types[t] == norm {
			return string(t), true
		}
	}
	return "", false
}

// InStore reports whether ref is an absolute reference under the store root.
func (s *Store) InStore(ref string) bool {
	if !isAbsolute(ref) {
		return false
	}
	norm, err := normalize(ref)
	if err != nil {
		return false
	}
	return norm == s.root || strings.HasPrefix(norm, s.root+"/")
}

// Resolve interprets ref relative to the document at from.
func (s *Store) Resolve(from, ref string) string {
	if isAbsolute(ref) {
		if norm, err := normalize(ref); err == nil {
			return norm
		}
		return ref
	}
	if isURL(from) {
		base, err := url.Parse(from)
		if err != nil {
			return ref
		}
		rel, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		out := base.ResolveReference(rel).String()
		if norm, err := normalize(out); err == nil {
			return norm
		}
		return out
	}
	dir := from
	if !strings.HasSuffix(from, "/") {
		dir = filepath.Dir(from)
	}
	return filepath.Clean(filepath.Join(dir, filepath.FromSlash(ref)))
}

// Fetch returns the template at ref. Results, including failures, are cached:
// a template never changes within a run.
func (s *Store) Fetch(ctx context.Context, ref string) (*Template, error) {
	key := ref
	if norm, err := normalize(ref); err == nil {
		key = norm
	}

	s.mu.Lock()
	if c, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return c.tpl, c.err
	}
	s.mu.Unlock()

	tpl, err := s.load(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache[key]; ok {
		return c.tpl, c.err
	}
	s.cache[key] = cached{tpl: tpl, err: err}
	return tpl, err
}

func (s *Store) load(ctx context.Context, ref string) (*Template, error) {
	data, err := s.read(ctx, ref)
	if err != nil {
		return nil, err
	}
	body, err := projectconfig.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", ref, err)
	}
	tpl := &Template{Ref: ref, Body: body}
	if ext := body.Extends(); ext != "" {
		tpl.Extends = s.Resolve(ref, ext)
	}
	return tpl, nil
}

func (s *Store) read(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", ref, err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching template %s: %w", ref, err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching template %s: unexpected status %s", ref, resp.Status)
		}
		return io.ReadAll(resp.Body)
	}

	p := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", ref, err)
		}
		p = filepath.FromSlash(u.Path)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("reading template %s: %w", ref, err)
	}
	return data, nil
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "file://")
}

func isAbsolute(ref string) bool {
	return isURL(ref) || filepath.IsAbs(ref)
}

// normalize cleans URLs and turns relative paths into absolute ones.
func normalize(ref string) (string, error) {
	if isURL(ref) {
		u, err := url.Parse(ref)
		if err != nil {
			return "", err
		}
		if u.Path != "" {
			trailing := strings.HasSuffix(u.Path, "/")
			u.Path = path.Clean(u.Path)
			if trailing && u.Path != "/" {
				u.Path += "/"
			}
		}
		return u.String(), nil
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return "", err
	}
	return abs, nil
}
