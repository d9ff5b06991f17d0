// SPDX-License-Identifier: AGPL-3.0-or-later

package compliance

import (
	"context"

	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/pkg/projectconfig"
)

// Extends verifies the document inherits from a template of the store.
type Extends struct{}

func NewExtends() Check { return &Extends{} }

func (c *Extends) ID() string { return IDExtends }

func (c *Extends) Run(_ context.Context, t *Target) []finding.Finding {
	if t.Doc == nil {
		return nil
	}
	want := ""
	if t.Templates != nil {
		want = t.Templates.TypeRef(t.Type)
	}

	ref := t.Doc.Extends()
	if ref == "" {
		if t.Doc.Has(projectconfig.KeyExtends) {
			return []finding.Finding{finding.Errorf(c.ID(), "extends must be a template reference string (expected %s)", want)}
		}
		return []finding.Finding{finding.Errorf(c.ID(), "extends is missing (expected %s)", want)}
	}
	if t.Templates == nil || !t.Templates.InStore(ref) {
		return []finding.Finding{finding.Errorf(c.ID(), "extends %q is outside the template store (expected %s)", ref, want)}
	}

	name, ok := t.Templates.Known(ref)
	switch {
	case !ok:
		return []finding.Finding{finding.Warnf(c.ID(), "extends %q is not a recognized template", ref)}
	case name != string(t.Type):
		return []finding.Finding{finding.Infof(c.ID(), "extends the %s template but the repository is classified as %s", name, t.Type)}
	}
	return nil
}
