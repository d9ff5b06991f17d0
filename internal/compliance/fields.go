// SPDX-License-Identifier: AGPL-3.0-or-later

package compliance

import (
	"context"

	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
)

// RequiredFields warns about missing descriptive fields.
type RequiredFields struct{}

func NewRequiredFields() Check { return &RequiredFields{} }

func (c *RequiredFields) ID() string { return IDRequiredFields }

func (c *RequiredFields) Run(_ context.Context, t *Target) []finding.Finding {
	if t.Doc == nil {
		return nil
	}
	var out []finding.Finding
	if t.Doc.ProjectName() == "" {
		out = append(out, finding.Warnf(c.ID(), "name is missing"))
	}
	if t.Doc.Description() == "" {
		out = append(out, finding.Warnf(c.ID(), "description is missing"))
	}
	if t.Doc.ProjectType() == "" {
		out = append(out, finding.Warnf(c.ID(), "type is missing"))
	}
	return out
}

// RequiredIntegration requires the mandatory MCP server in the effective configuration.
type RequiredIntegration struct {
	server string
}

// NewRequiredIntegration returns the check; an empty server disables it.
func NewRequiredIntegration(server string) Check { return &RequiredIntegration{server: server} }

func (c *RequiredIntegration) ID() string { return IDRequiredIntegration }

func (c *RequiredIntegration) Run(_ context.Context, t *Target) []finding.Finding {
	if c.server == "" {
		return nil
	}
	if t.Effective != nil {
		if _, ok := t.Effective.Get("mcpServers", c.server); ok {
			return nil
		}
	}
	return []finding.Finding{finding.Errorf(c.ID(), "required MCP server %q is not configured", c.server)}
}
