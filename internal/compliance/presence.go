// SPDX-License-Identifier: AGPL-3.0-or-later

package compliance

import (
	"context"

	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
)

// ConfigPresence requires the project configuration document to exist.
type ConfigPresence struct{}

func NewConfigPresence() Check { return &ConfigPresence{} }

func (c *ConfigPresence) ID() string { return IDConfigPresence }

func (c *ConfigPresence) Run(_ context.Context, t *Target) []finding.Finding {
	if t.Raw != nil {
		return nil
	}
	return []finding.Finding{finding.Errorf(c.ID(), "no project configuration at %s", t.ConfigPath)}
}

// JSONValidity requires an existing document to be a JSON object.
type JSONValidity struct{}

func NewJSONValidity() Check { return &JSONValidity{} }

func (c *JSONValidity) ID() string { return IDJSONValidity }

func (c *JSONValidity) Run(_ context.Context, t *Target) []finding.Finding {
	if t.Raw == nil || t.ParseErr == nil {
		return nil
	}
	return []finding.Finding{finding.Errorf(c.ID(), "%s is not a valid JSON object: %v", t.ConfigPath, t.ParseErr)}
}
