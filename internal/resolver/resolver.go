// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resolver flattens a repository's extends chain into one effective configuration.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/raibid-labs/cfgsync/internal/classifier"
	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/templates"
	"github.com/raibid-labs/cfgsync/pkg/projectconfig"
)

// CheckID tags the findings produced during resolution.
const CheckID = "resolution"

// MaxDepth bounds the number of templates walked above the repository.
const MaxDepth = 8

// Layer names used in provenance.
const (
	LayerBase       = "base"
	LayerRepository = "repository"
)

// TypeLayer names the layer contributed by a template that is neither base nor repository.
func TypeLayer(ref string) string { return "template:" + ref }

// Source is the subset of the template store the resolver needs.
type Source interface {
	BaseRef() string
	TypeRef(t classifier.Type) string
	Fetch(ctx context.Context, ref string) (*templates.Template, error)
}

// Effective is the merged configuration of one repository.
type Effective struct {
	Values     map[string]any    `json:"values"`
	Provenance map[string]string `json:"provenance"`
	// Chain lists the template references merged, most general first.
	Chain []string `json:"chain"`
	// Local reports whether a repository layer took part.
	Local bool `json:"local"`
}

// Get returns the value at a dotted path.
func (e *Effective) Get(path ...string) (any, bool) {
	var cur any = e.Values
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// MarshalIndent renders the merged values as indented JSON with sorted keys.
func (e *Effective) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(e.Values, "", "  ")
}

// ProvenanceKeys returns provenance keys in sorted order.
func (e *Effective) ProvenanceKeys() []string {
	keys := make([]string, 0, len(e.Provenance))
	for k := range e.Provenance {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Effective *Effective
	Findings  []finding.Finding
	// Degraded is set when the type template chain was unusable and the
	// templates part of the result is the base template alone.
	Degraded bool
}

// Resolver walks template chains from a Source.
type Resolver struct {
	src Source
}

// New returns a resolver reading templates from src.
func New(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve merges base, the type template chain, and the repository's own
// configuration (nil when absent). Problems never abort resolution; they are
// returned as findings and the chain degrades to the nearest valid layer.
func (r *Resolver) Resolve(ctx context.Context, t classifier.Type, local []byte) Resolution {
	var res Resolution
	eff := &Effective{Values: map[string]any{}, Provenance: map[string]string{}}
	res.Effective = eff

	baseRef := r.src.BaseRef()
	var layers []*templates.Template
	base, err := r.src.Fetch(ctx, baseRef)
	if err != nil {
		res.add(finding.Error, "base template %s unavailable: %v", baseRef, err)
		res.Degraded = true
	} else {
		chain, err := r.typeChain(ctx, t, baseRef)
		if err != nil {
			res.add(finding.Error, "type template for %s: %v; falling back to base template", t, err)
			res.Degraded = true
			layers = []*templates.Template{base}
		} else {
			layers = append([]*templates.Template{base}, chain...)
		}
	}

	for _, tpl := range layers {
		name := TypeLayer(tpl.Ref)
		if tpl.Ref == baseRef {
			name = LayerBase
		}
		vals, err := tpl.Body.Values()
		if err != nil {
			res.add(finding.Error, "template %s: %v", tpl.Ref, err)
			continue
		}
		res.merge(vals, name)
		eff.Chain = append(eff.Chain, tpl.Ref)
	}

	if local != nil {
		doc, err := projectconfig.Parse(local)
		if err != nil {
			res.add(finding.Warning, "local configuration is not valid JSON (%v); resolved from templates only", err)
			return res
		}
		vals, err := doc.Values()
		if err != nil {
			res.add(finding.Warning, "local configuration unreadable (%v); resolved from templates only", err)
			return res
		}
		res.merge(vals, LayerRepository)
		eff.Local = true
	}
	return res
}

// typeChain returns the templates between base (exclusive) and the type
// template (inclusive), most general first.
func (r *Resolver) typeChain(ctx context.Context, t classifier.Type, baseRef string) ([]*templates.Template, error) {
	ref := r.src.TypeRef(t)
	seen := map[string]bool{baseRef: true}
	var chain []*templates.Template

	for depth := 0; ; depth++ {
		if depth >= MaxDepth {
			return nil, fmt.Errorf("extends chain deeper than %d", MaxDepth)
		}
		if seen[ref] {
			return nil, fmt.Errorf("cyclic extends at %s", ref)
		}
		seen[ref] = true

		tpl, err := r.src.Fetch(ctx, ref)
		if err != nil {
			if errors.Is(err, templates.ErrNotFound) {
				return nil, fmt.Errorf("unknown template %s", ref)
			}
			return nil, err
		}
		chain = append([]*templates.Template{tpl}, chain...)

		switch {
		case tpl.Extends == "":
			return nil, fmt.Errorf("template %s does not extend the base template", ref)
		case tpl.Extends == baseRef:
			return chain, nil
		default:
			ref = tpl.Extends
		}
	}
}

func (res *Resolution) merge(vals map[string]any, layer string) {
	delete(vals, projectconfig.KeyExtends)
	for _, p := range mergeLayer(res.Effective.Values, vals, res.Effective.Provenance, layer) {
		res.add(finding.Warning, "%s layer sets %q to %q but no ancestor defines it", layer, p, Inherit)
	}
}

func (res *Resolution) add(sev finding.Severity, format string, args ...any) {
	res.Findings = append(res.Findings, finding.New(sev, CheckID, fmt.Sprintf(format, args...)))
}
