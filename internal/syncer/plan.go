// SPDX-License-Identifier: AGPL-3.0-or-later

package syncer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/raibid-labs/cfgsync/internal/classifier"
	"github.com/raibid-labs/cfgsync/internal/compliance"
	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/config"
	"github.com/raibid-labs/cfgsync/internal/resolver"
	"github.com/raibid-labs/cfgsync/pkg/projectconfig"
)

// PlanInput is what a plan is computed from.
type PlanInput struct {
	Name string
	Type classifier.Type
	// Raw is the current document, nil when absent.
	Raw          []byte
	Report       *finding.Report
	Effective    *resolver.Effective
	TypeRef      string
	TypeTemplate *projectconfig.Document
	Required     config.RequiredServer
}

// Plan is the minimal edit that fixes the addressable findings.
type Plan struct {
	Content      []byte
	Changes      []Change
	Materialized bool
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool { return len(p.Changes) == 0 }

// BuildPlan computes the document that fixes in.Report's addressable errors.
// A document that is present but not valid JSON yields an error.
func BuildPlan(in PlanInput) (*Plan, error) {
	if in.Raw == nil {
		return materialize(in)
	}
	doc, err := projectconfig.Parse(in.Raw)
	if err != nil {
		return nil, fmt.Errorf("existing configuration is not valid JSON; not rewriting it: %w", err)
	}

	plan := &Plan{}
	if in.Report.Has(finding.Error, compliance.IDExtends) {
		old, _ := doc.Raw(projectconfig.KeyExtends)
		if err := doc.Set(projectconfig.KeyExtends, in.TypeRef); err != nil {
			return nil, err
		}
		plan.Changes = append(plan.Changes, Change{Field: projectconfig.KeyExtends, Old: rawString(old), New: in.TypeRef})
	}
	if in.Report.Has(finding.Error, compliance.IDRequiredIntegration) && in.Required.Name != "" {
		if err := addServer(doc, in.Required); err != nil {
			return nil, err
		}
		plan.Changes = append(plan.Changes, Change{Field: projectconfig.KeyMCPServers + "." + in.Required.Name, New: "added"})
	}
	if plan.Empty() {
		return plan, nil
	}
	plan.Content, err = doc.Marshal()
	return plan, err
}

func materialize(in PlanInput) (*Plan, error) {
	doc := projectconfig.New()
	plan := &Plan{Materialized: true}
	set := func(key string, v any, shown string) error {
		if err := doc.Set(key, v); err != nil {
			return err
		}
		plan.Changes = append(plan.Changes, Change{Field: key, New: shown})
		return nil
	}

	if in.TypeTemplate != nil {
		for _, key := range []string{projectconfig.KeySchema, projectconfig.KeyVersion} {
			if raw, ok := in.TypeTemplate.Raw(key); ok {
				doc.SetRaw(key, raw)
				plan.Changes = append(plan.Changes, Change{Field: key, New: rawString(raw)})
			}
		}
	}
	description := "Project configuration for " + in.Name
	steps := []struct {
		key   string
		value any
		shown string
	}{
		{projectconfig.KeyExtends, in.TypeRef, in.TypeRef},
		{projectconfig.KeyName, in.Name, in.Name},
		{projectconfig.KeyDescription, description, description},
		{projectconfig.KeyType, string(in.Type), string(in.Type)},
		{projectconfig.KeyLanguage, map[string]string{"primary": in.Type.PrimaryLanguage()}, in.Type.PrimaryLanguage()},
	}
	for _, s := range steps {
		if err := set(s.key, s.value, s.shown); err != nil {
			return nil, err
		}
	}

	if in.Required.Name != "" && !hasServer(in.Effective, in.Required.Name) {
		if err := addServer(doc, in.Required); err != nil {
			return nil, err
		}
		plan.Changes = append(plan.Changes, Change{Field: projectconfig.KeyMCPServers + "." + in.Required.Name, New: "added"})
	}

	var err error
	plan.Content, err = doc.Marshal()
	return plan, err
}

func hasServer(eff *resolver.Effective, name string) bool {
	if eff == nil {
		return false
	}
	_, ok := eff.Get(projectconfig.KeyMCPServers, name)
	return ok
}

// addServer sets mcpServers[name], keeping the other servers in order.
func addServer(doc *projectconfig.Document, srv config.RequiredServer) error {
	servers := projectconfig.New()
	if raw, ok := doc.Raw(projectconfig.KeyMCPServers); ok {
		if existing, err := projectconfig.Parse(raw); err == nil {
			servers = existing
		}
	}
	def := srv.Definition
	if def == nil {
		def = map[string]any{}
	}
	if err := servers.Set(srv.Name, def); err != nil {
		return fmt.Errorf("encoding %s server: %w", srv.Name, err)
	}
	body, err := servers.Marshal()
	if err != nil {
		return err
	}
	doc.SetRaw(projectconfig.KeyMCPServers, json.RawMessage(bytes.TrimSpace(body)))
	return nil
}

func rawString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
